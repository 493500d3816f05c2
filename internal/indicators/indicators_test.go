package indicators

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HaoJinjin/open-soda/internal/dataset"
	"github.com/HaoJinjin/open-soda/pkg/errors"
)

func header() []string {
	h := []string{"projectname", "projectname2"}
	for _, ind := range Indicators {
		h = append(h, ind.Column)
	}
	return h
}

func row(name string, vals ...string) []string {
	return append([]string{name, ""}, vals...)
}

func TestComputeStatistics(t *testing.T) {
	tbl := dataset.NewTable(header(), [][]string{
		row("a", "1", "10", "5", "2", "0", "7"),
		row("b", "2", "20", "5", "4", "1", "7"),
		row("c", "", "30", "5", "6", "2", "7"), // incomplete
		row("d", "3", "30", "5", "6", "2", "7"),
		row("e", "4", "40", "5", "8", "x", "7"), // incomplete
	})
	st, err := Compute(tbl, "metrics.csv")
	require.NoError(t, err)

	assert.Equal(t, 5, st.Metadata.TotalProjects)
	assert.Equal(t, 3, st.Metadata.ValidProjects)
	assert.Equal(t, "40.00%", st.Metadata.MissingDataRatio)
	assert.Len(t, st.Metadata.AnalysisIndicators, 6)

	inactive := st.IndicatorStatistics[0]
	assert.Equal(t, "inactive_contributors", inactive.IndicatorColumn)
	require.NotNil(t, inactive.Mean)
	assert.Equal(t, 2.0, *inactive.Mean)
	assert.Equal(t, 2.0, *inactive.Median)
	assert.Equal(t, 1.0, *inactive.Std) // sample std of 1,2,3
	assert.Equal(t, 1.0, *inactive.Min)
	assert.Equal(t, 3.0, *inactive.Max)
	assert.Equal(t, 1.5, *inactive.Quantile25)
	assert.Equal(t, 2.5, *inactive.Quantile75)
	assert.Equal(t, 2.9, *inactive.Quantile95)

	// issues_closed is constant: std 0, correlations undefined
	closed := st.IndicatorStatistics[2]
	assert.Equal(t, 0.0, *closed.Std)
	assert.Nil(t, st.CorrelationMatrix["issues_closed"]["issues_new"])
	assert.Equal(t, 1.0, *st.CorrelationMatrix["issues_closed"]["issues_closed"])
	assert.Equal(t, 1.0, *st.CorrelationMatrix["inactive_contributors"]["issues_new"])

	require.Len(t, st.Top10Projects, 3)
	first := st.Top10Projects[0]
	assert.Equal(t, "a", first.ProjectName)
	assert.Equal(t, 0, first.OriginalIndex)
	assert.Equal(t, 1.0, *first.IndicatorValues["inactive_contributors"])
	assert.Equal(t, -1.0, *first.IndicatorValues["inactive_contributors_scaled"])
	assert.Nil(t, first.IndicatorValues["issues_closed_scaled"])
	assert.Equal(t, 3, st.Top10Projects[2].OriginalIndex)

	_, err = json.Marshal(st)
	require.NoError(t, err)
}

func TestComputeTopTenAndNames(t *testing.T) {
	rows := make([][]string, 15)
	for i := range rows {
		v := strconv.Itoa(i)
		rows[i] = []string{"org/p" + v, "P" + v, v, v, v, v, v, v}
	}
	rows[1][1] = ""
	st, err := Compute(dataset.NewTable(header(), rows), "x.csv")
	require.NoError(t, err)
	require.Len(t, st.Top10Projects, TopN)
	assert.Equal(t, "P0", st.Top10Projects[0].ProjectName)
	assert.Equal(t, "org/p1", st.Top10Projects[1].ProjectName)
	assert.Equal(t, "0.00%", st.Metadata.MissingDataRatio)
}

func TestComputeErrors(t *testing.T) {
	_, err := Compute(dataset.NewTable(header(), nil), "x.csv")
	assert.True(t, errors.IsInputError(err))

	_, err = Compute(dataset.NewTable([]string{"issues_new"}, [][]string{{"1"}}), "x.csv")
	assert.True(t, errors.IsInputError(err))
	assert.Contains(t, err.Error(), "inactive_contributors")
}

func TestComputeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "top_metrics.csv")
	content := "projectname,inactive_contributors,issues_and_change_request_active,issues_closed,issues_new,new_contributors,participants\n" +
		"a,1,2,3,4,5,6\nb,2,3,4,5,6,8\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	st, err := ComputeFile(path)
	require.NoError(t, err)
	assert.Equal(t, "top_metrics.csv", st.Metadata.DataSource)
	assert.Equal(t, 2, st.Metadata.ValidProjects)

	_, err = ComputeFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.True(t, errors.IsInputError(err))
}
