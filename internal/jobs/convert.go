package jobs

import (
	"github.com/HaoJinjin/open-soda/internal/dataset"
)

// ConvertResult is the result of a CSV to JSON conversion.
type ConvertResult struct {
	Data     []map[string]string `json:"data"`
	RowCount int                 `json:"row_count"`
}

// ConvertCSV returns a job body that reads the CSV at path into one map
// per row, reporting progress after every row.
func ConvertCSV(path string) Func {
	return func(progress ProgressFunc) (any, error) {
		table, err := dataset.Load(path)
		if err != nil {
			return nil, err
		}
		rows := table.Records(func(done, total int) {
			progress(done*100/total, "")
		})
		return ConvertResult{Data: rows, RowCount: len(rows)}, nil
	}
}
