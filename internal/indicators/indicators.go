// Package indicators computes descriptive statistics, a correlation matrix
// and a top-10 comparison over the project activity indicators.
package indicators

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/HaoJinjin/open-soda/internal/dataset"
	"github.com/HaoJinjin/open-soda/metrics"
	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
	"github.com/HaoJinjin/open-soda/preprocessing"
)

// Indicator is an analysed column and its display name.
type Indicator struct {
	Column string
	Name   string
}

// Indicators are the six analysed columns, in output order.
var Indicators = []Indicator{
	{Column: "inactive_contributors", Name: "非活跃贡献者"},
	{Column: "issues_and_change_request_active", Name: "活跃工单/PR"},
	{Column: "issues_closed", Name: "已关闭工单"},
	{Column: "issues_new", Name: "新增工单"},
	{Column: "new_contributors", Name: "新贡献者"},
	{Column: "participants", Name: "参与者总数"},
}

// TopN is the number of leading valid projects in the comparison list.
const TopN = 10

// Statistics is the JSON document of the indicators endpoint.
// Undefined values (a std over one row, a constant column's correlation)
// are null.
type Statistics struct {
	Metadata            Metadata                       `json:"metadata"`
	IndicatorStatistics []IndicatorStat                `json:"indicator_statistics"`
	CorrelationMatrix   map[string]map[string]*float64 `json:"correlation_matrix"`
	Top10Projects       []ProjectIndicators            `json:"top10_projects"`
}

// Metadata describes the analysed file.
type Metadata struct {
	DataSource         string   `json:"data_source"`
	TotalProjects      int      `json:"total_projects"`
	ValidProjects      int      `json:"valid_projects"`
	MissingDataRatio   string   `json:"missing_data_ratio"`
	AnalysisIndicators []string `json:"analysis_indicators"`
}

// IndicatorStat holds the summary of one indicator over the valid rows.
type IndicatorStat struct {
	IndicatorColumn string   `json:"indicator_column"`
	IndicatorName   string   `json:"indicator_name"`
	Mean            *float64 `json:"mean"`
	Median          *float64 `json:"median"`
	Std             *float64 `json:"std"`
	Min             *float64 `json:"min"`
	Max             *float64 `json:"max"`
	Quantile25      *float64 `json:"quantile_25"`
	Quantile75      *float64 `json:"quantile_75"`
	Quantile95      *float64 `json:"quantile_95"`
}

// ProjectIndicators carries raw and z-scaled indicator values of a project.
type ProjectIndicators struct {
	ProjectName     string              `json:"project_name"`
	OriginalIndex   int                 `json:"original_index"`
	IndicatorValues map[string]*float64 `json:"indicator_values"`
}

// ComputeFile loads path and computes its statistics.
func ComputeFile(path string) (*Statistics, error) {
	table, err := dataset.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "indicator statistics")
	}
	st, err := Compute(table, filepath.Base(path))
	if err != nil {
		return nil, errors.Wrap(err, "indicator statistics")
	}
	return st, nil
}

// Compute analyses the rows of table where every indicator is numeric.
func Compute(table *dataset.Table, source string) (*Statistics, error) {
	if table.Len() == 0 {
		return nil, errors.NewInputError("IndicatorStatistics", "table has no rows")
	}
	raw := make([][]float64, len(Indicators))
	columns := make([]string, len(Indicators))
	for k, ind := range Indicators {
		if !table.HasColumn(ind.Column) {
			return nil, errors.NewInputErrorf("IndicatorStatistics", "column %q not found", ind.Column)
		}
		raw[k] = table.Numeric(ind.Column)
		columns[k] = ind.Column
	}

	var validRows []int
	for i := 0; i < table.Len(); i++ {
		complete := true
		for k := range raw {
			if math.IsNaN(raw[k][i]) {
				complete = false
				break
			}
		}
		if complete {
			validRows = append(validRows, i)
		}
	}
	valid := make([][]float64, len(Indicators))
	for k := range raw {
		valid[k] = make([]float64, len(validRows))
		for j, row := range validRows {
			valid[k][j] = raw[k][row]
		}
	}

	total := table.Len()
	st := &Statistics{
		Metadata: Metadata{
			DataSource:         source,
			TotalProjects:      total,
			ValidProjects:      len(validRows),
			MissingDataRatio:   fmt.Sprintf("%.2f%%", errors.SafeDivide(float64(total-len(validRows)), float64(total))*100),
			AnalysisIndicators: columns,
		},
		IndicatorStatistics: make([]IndicatorStat, len(Indicators)),
		CorrelationMatrix:   make(map[string]map[string]*float64, len(Indicators)),
	}

	means := make([]float64, len(Indicators))
	stds := make([]float64, len(Indicators))
	for k, ind := range Indicators {
		means[k], stds[k] = meanStd(valid[k])
		st.IndicatorStatistics[k] = describe(ind, valid[k], means[k], stds[k])
	}

	corr := metrics.CorrelationMatrix(valid)
	for a, ia := range Indicators {
		row := make(map[string]*float64, len(Indicators))
		for b, ib := range Indicators {
			row[ib.Column] = number(corr[a][b])
		}
		st.CorrelationMatrix[ia.Column] = row
	}

	n := TopN
	if len(validRows) < n {
		n = len(validRows)
	}
	st.Top10Projects = make([]ProjectIndicators, n)
	for j := 0; j < n; j++ {
		row := validRows[j]
		values := make(map[string]*float64, 2*len(Indicators))
		for k, ind := range Indicators {
			v := valid[k][j]
			values[ind.Column] = number(v)
			values[ind.Column+"_scaled"] = number((v - means[k]) / stds[k])
		}
		st.Top10Projects[j] = ProjectIndicators{
			ProjectName:     projectName(table, row),
			OriginalIndex:   row,
			IndicatorValues: values,
		}
	}

	log.GetLoggerWithName("indicators").Info("Indicator statistics computed",
		log.SourceKey, source,
		log.SamplesKey, len(validRows),
	)
	return st, nil
}

// meanStd returns the mean and the sample (n-1) standard deviation. Both
// are NaN for empty input; the deviation is NaN for a single value.
func meanStd(values []float64) (float64, float64) {
	switch len(values) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return values[0], math.NaN()
	}
	return stat.MeanStdDev(values, nil)
}

func describe(ind Indicator, values []float64, mean, std float64) IndicatorStat {
	s := IndicatorStat{
		IndicatorColumn: ind.Column,
		IndicatorName:   ind.Name,
		Mean:            number(mean),
		Std:             number(std),
	}
	if len(values) == 0 {
		return s
	}
	s.Median = number(preprocessing.Median(values))
	s.Min = number(floats.Min(values))
	s.Max = number(floats.Max(values))
	s.Quantile25 = number(preprocessing.Percentile(values, 25))
	s.Quantile75 = number(preprocessing.Percentile(values, 75))
	s.Quantile95 = number(preprocessing.Percentile(values, 95))
	return s
}

// projectName prefers projectname2, the display form of the repository.
func projectName(table *dataset.Table, row int) string {
	for _, col := range []string{"projectname2", "projectname"} {
		if v := table.Cell(row, col); v != "" {
			return v
		}
	}
	return "project_" + strconv.Itoa(row)
}

// number rounds v to 4 places; non-finite values become nil.
func number(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := math.Round(v*1e4) / 1e4
	return &r
}
