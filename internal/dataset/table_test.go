package dataset

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HaoJinjin/open-soda/pkg/errors"
)

func TestReadCleansHeaderAndPadsRows(t *testing.T) {
	in := "\ufeff\"projectname\", stars ,forks\nalpha,10,3\nbeta,20\n"
	tbl, err := Read(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"projectname", "stars", "forks"}, tbl.Columns)
	assert.Equal(t, 2, tbl.Len())
	assert.True(t, tbl.HasColumn("stars"))
	assert.False(t, tbl.HasColumn("watchers"))
	assert.Equal(t, []string{"3", ""}, tbl.Column("forks"))
	assert.Nil(t, tbl.Column("watchers"))
	assert.Equal(t, "beta", tbl.Cell(1, "projectname"))
	assert.Equal(t, "", tbl.Cell(5, "projectname"))
}

func TestReadQuotedFields(t *testing.T) {
	in := "name,history\nx,\"{'2022-01': 1.5, '2022-02': 2}\"\n"
	tbl, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "{'2022-01': 1.5, '2022-02': 2}", tbl.Cell(0, "history"))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, errors.IsInputError(err))

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = Load(empty)
	require.Error(t, err)
	assert.True(t, errors.IsInputError(err))
	assert.Contains(t, err.Error(), "empty")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n3,x\n"), 0o600))

	tbl, err := Load(path)
	require.NoError(t, err)
	got := tbl.Numeric("b")
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0])
	assert.True(t, math.IsNaN(got[1]))
}

func TestRecordsProgress(t *testing.T) {
	tbl := NewTable([]string{"a", "b"}, [][]string{{"1", "2"}, {"3", "4"}, {"5"}})
	var seen []int
	recs := tbl.Records(func(done, total int) {
		assert.Equal(t, 3, total)
		seen = append(seen, done)
	})
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, map[string]string{"a": "5", "b": ""}, recs[2])
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{" 3.5 ", 3.5, true},
		{"-2", -2, true},
		{"1e3", 1000, true},
		{"", 0, false},
		{"NaN", 0, false},
		{"None", 0, false},
		{"inf", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumeric(tt.in)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseDateLayouts(t *testing.T) {
	want := 1688169600.0 // 2023-07-01T00:00:00Z
	for _, in := range []string{
		"2023-07-01",
		"2023-07-01 00:00:00",
		"2023/07/01",
		"20230701",
		"2023-07-01T00:00:00Z",
		"2023-07",
	} {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseDate("July 2023")
	assert.False(t, ok)
}

func TestConvertColumn(t *testing.T) {
	t.Run("numeric", func(t *testing.T) {
		vals, enc, ok := ConvertColumn([]string{"1", "2", "x"})
		require.True(t, ok)
		assert.Equal(t, EncodingNumeric, enc)
		assert.True(t, math.IsNaN(vals[2]))
	})
	t.Run("dates", func(t *testing.T) {
		vals, enc, ok := ConvertColumn([]string{"2020-01-01", "2020/01/02", "junk"})
		require.True(t, ok)
		assert.Equal(t, EncodingDate, enc)
		assert.Equal(t, 1577836800.0, vals[0])
		assert.Equal(t, 1577836800.0+86400, vals[1])
		assert.True(t, math.IsNaN(vals[2]))
	})
	t.Run("monthly keys", func(t *testing.T) {
		vals, enc, ok := ConvertColumn([]string{"2023-07", "2023-08", ""})
		require.True(t, ok)
		assert.Equal(t, EncodingDate, enc)
		assert.Equal(t, 1688169600.0, vals[0])
		assert.Equal(t, 1690848000.0, vals[1])
	})
	t.Run("neither", func(t *testing.T) {
		_, _, ok := ConvertColumn([]string{"a", "b", "1"})
		assert.False(t, ok)
	})
	t.Run("exactly half is not enough", func(t *testing.T) {
		_, _, ok := ConvertColumn([]string{"1", "b"})
		assert.False(t, ok)
	})
}
