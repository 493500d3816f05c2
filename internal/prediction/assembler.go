package prediction

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/internal/dataset"
	"github.com/HaoJinjin/open-soda/pkg/errors"
)

// relativeErrorEpsilon keeps the relative error finite for a zero target.
const relativeErrorEpsilon = 1e-8

// Project name columns, in lookup order.
var projectNameColumns = []string{"projectname", "projectname2"}

// Importances converts an explanation into feature importances ordered by
// descending absolute value. Equal magnitudes keep feature order.
func Importances(names []string, exp model.Explanation) ([]FeatureImportance, error) {
	if len(exp.Values) != len(names) {
		return nil, errors.NewDimensionError("Importances", len(names), len(exp.Values), 1)
	}
	out := make([]FeatureImportance, len(names))
	for i, name := range names {
		v := exp.Values[i]
		fi := FeatureImportance{FeatureName: name, Importance: v}
		switch exp.Kind {
		case model.LinearCoefficients:
			fi.AbsImportance = math.Abs(v)
		case model.TreeImportances:
			fi.AbsImportance = v
		default:
			return nil, errors.NewValueError("Importances", fmt.Sprintf("unknown explanation kind %s", exp.Kind))
		}
		out[i] = fi
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].AbsImportance > out[b].AbsImportance
	})
	return out, nil
}

// ProjectName returns the display name of table row, falling back to
// project_<row> when no name column has a value.
func ProjectName(table *dataset.Table, row int) string {
	for _, col := range projectNameColumns {
		if name := table.Cell(row, col); name != "" {
			return name
		}
	}
	return "project_" + strconv.Itoa(row)
}

// NewRecord computes the error fields for one prediction.
func NewRecord(name string, trueValue, predicted float64) PredictionRecord {
	diff := math.Abs(trueValue - predicted)
	return PredictionRecord{
		ProjectName:          name,
		TrueValue:            trueValue,
		PredictedValue:       predicted,
		AbsoluteError:        round(diff, 4),
		RelativeErrorPercent: round(diff/(math.Abs(trueValue)+relativeErrorEpsilon)*100, 2),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
