package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var missingTokens = map[string]struct{}{
	"": {}, "nan": {}, "none": {}, "null": {}, "na": {}, "n/a": {},
}

// ParseNumeric parses a finite decimal number. Blank cells and the usual
// missing-value tokens are reported as not ok.
func ParseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if _, missing := missingTokens[strings.ToLower(s)]; missing {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// NumericOrNaN is ParseNumeric with NaN standing in for missing.
func NumericOrNaN(s string) float64 {
	if v, ok := ParseNumeric(s); ok {
		return v
	}
	return math.NaN()
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"20060102",
	time.RFC3339,
	"2006-01",
}

// ParseDate parses a date-like cell and returns Unix seconds (UTC).
func ParseDate(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return float64(ts.Unix()), true
		}
	}
	return 0, false
}

// Encoding names how a target column was turned into numbers.
type Encoding string

const (
	EncodingNumeric Encoding = "numeric"
	EncodingDate    Encoding = "date_unix_seconds"
)

// Coverage returns the fraction of values that are not NaN.
func Coverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

// ConvertColumn parses raw cells as numbers and, when at most half of them
// parse, as dates. ok is false when neither encoding covers more than half
// of the cells; values then holds the numeric attempt.
func ConvertColumn(raw []string) (values []float64, enc Encoding, ok bool) {
	values = make([]float64, len(raw))
	for i, s := range raw {
		values[i] = NumericOrNaN(s)
	}
	if Coverage(values) > 0.5 {
		return values, EncodingNumeric, true
	}

	dates := make([]float64, len(raw))
	for i, s := range raw {
		if v, parsed := ParseDate(s); parsed {
			dates[i] = v
		} else {
			dates[i] = math.NaN()
		}
	}
	if Coverage(dates) > 0.5 {
		return dates, EncodingDate, true
	}
	return values, EncodingNumeric, false
}
