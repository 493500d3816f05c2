// Package features turns a loaded metrics table into a numeric feature set
// for one target column: whitelist, leakage guard, median imputation and
// ratio synthesis when too few raw features survive.
package features

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/internal/dataset"
	"github.com/HaoJinjin/open-soda/metrics"
	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
	"github.com/HaoJinjin/open-soda/preprocessing"
)

// Candidates is the fixed whitelist of feature columns, in selection order.
var Candidates = []string{
	"bus_factor",
	"change_requests",
	"change_requests_accepted",
	"change_requests_reviews",
	"code_change_lines_add",
	"code_change_lines_remove",
	"inactive_contributors",
	"issues_closed",
	"issues_new",
	"issue_comments",
	"new_contributors",
}

// Synthesized ratio features.
const (
	CodeChangeRatio     = "code_change_ratio"
	IssueResolutionRate = "issue_resolution_rate"
)

const (
	// LeakageThreshold excludes a feature whose |corr| with the target
	// reaches it.
	LeakageThreshold = 0.95
	// MinFeatures triggers ratio synthesis when fewer raw features pass.
	MinFeatures = 3
)

// FeatureSet is the numeric design for one target. All slices are aligned
// with Rows, the indices of the table rows whose target converted.
type FeatureSet struct {
	Names        []string
	Columns      map[string][]float64
	Target       []float64
	Rows         []int
	Encoding     dataset.Encoding
	Correlations map[string]float64
}

// Len returns the number of valid rows.
func (fs *FeatureSet) Len() int { return len(fs.Rows) }

// Matrix lays the selected columns out as a rows × features matrix.
func (fs *FeatureSet) Matrix() *mat.Dense {
	X := mat.NewDense(len(fs.Rows), len(fs.Names), nil)
	for j, name := range fs.Names {
		X.SetCol(j, fs.Columns[name])
	}
	return X
}

// Select builds the FeatureSet of table for target.
func Select(table *dataset.Table, target string) (*FeatureSet, error) {
	if !table.HasColumn(target) {
		return nil, errors.NewInputErrorf("SelectFeatures", "target column %q not found", target)
	}
	if table.Len() == 0 {
		return nil, errors.NewInputError("SelectFeatures", "table has no rows")
	}

	converted, enc, ok := dataset.ConvertColumn(table.Column(target))
	if !ok {
		return nil, errors.NewInputErrorf("SelectFeatures",
			"target column %q is neither numeric nor date-like for more than half of %d rows",
			target, table.Len())
	}

	if enc == dataset.EncodingDate {
		errors.Warn(errors.NewDataConversionWarning(target, "string", "date_unix_seconds",
			"target parsed as dates"))
	}

	fs := &FeatureSet{
		Columns:      make(map[string][]float64),
		Encoding:     enc,
		Correlations: make(map[string]float64),
	}
	for i, v := range converted {
		if !math.IsNaN(v) {
			fs.Rows = append(fs.Rows, i)
			fs.Target = append(fs.Target, v)
		}
	}
	if len(fs.Rows) == 0 {
		return nil, errors.NewInputErrorf("SelectFeatures", "no rows with a valid %q", target)
	}

	logger := log.GetLoggerWithName("features").With(log.TargetColumnKey, target)

	raw := make(map[string][]float64)
	for _, name := range Candidates {
		if !table.HasColumn(name) {
			continue
		}
		raw[name] = fs.align(table.Numeric(name))
		fs.consider(name, raw[name], logger)
	}

	if len(fs.Names) < MinFeatures {
		add, remove := raw["code_change_lines_add"], raw["code_change_lines_remove"]
		if add != nil && remove != nil {
			fs.consider(CodeChangeRatio, ratio(add, remove), logger)
		}
		closed, opened := raw["issues_closed"], raw["issues_new"]
		if closed != nil && opened != nil {
			fs.consider(IssueResolutionRate, ratio(closed, opened), logger)
		}
	}

	if len(fs.Names) == 0 {
		return nil, errors.NewInputErrorf("SelectFeatures",
			"no usable features for %q after the leakage guard", target)
	}
	logger.Info("Features selected",
		log.FeaturesKey, len(fs.Names),
		log.SamplesKey, len(fs.Rows),
	)
	return fs, nil
}

// align keeps the values of the valid rows.
func (fs *FeatureSet) align(values []float64) []float64 {
	out := make([]float64, len(fs.Rows))
	for i, row := range fs.Rows {
		out[i] = values[row]
	}
	return out
}

// consider applies the leakage guard and, when the feature passes, adds
// its median-imputed column. A NaN correlation never passes.
func (fs *FeatureSet) consider(name string, values []float64, logger log.Logger) {
	corr := metrics.PearsonCorrelation(values, fs.Target)
	if !(math.Abs(corr) < LeakageThreshold) {
		logger.Debug("Feature excluded", "feature", name, "correlation", corr)
		return
	}
	imp := preprocessing.NewSimpleImputer(preprocessing.ImputeMedian)
	filled, err := imp.FitTransform(mat.NewVecDense(len(values), values))
	if err != nil {
		logger.Warn("Feature imputation failed", err, "feature", name)
		return
	}
	fs.Names = append(fs.Names, name)
	fs.Columns[name] = mat.Col(nil, 0, filled)
	fs.Correlations[name] = corr
	logger.Debug("Feature included", "feature", name, "correlation", corr)
}

// ratio computes (a+1)/(b+1); non-finite results are missing.
func ratio(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		v := (a[i] + 1) / (b[i] + 1)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}
