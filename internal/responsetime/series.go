package responsetime

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// BaseYear anchors the month_order feature.
const BaseYear = 2015

var monthKey = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// Point is one monthly observation.
type Point struct {
	Month string // "2006-01"
	Value float64
}

// ParseSeries reads a monthly history such as {'2022-08': 3.5, '2022-09': 4}.
// Keys that are not year-month (yearly or quarterly roll-ups) are ignored.
// Unparseable input yields an empty series. Points come back in month order.
func ParseSeries(raw string) []Point {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(strings.ReplaceAll(raw, "'", `"`)), &m); err != nil {
		return nil
	}
	out := make([]Point, 0, len(m))
	for k, v := range m {
		if !monthKey.MatchString(k) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, Point{Month: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// Calendar holds the features derived from a month label.
type Calendar struct {
	Year       int
	Month      int
	Quarter    int
	MonthOrder int
	QuarterEnd bool
	YearEnd    bool
	PeakSeason bool
	MonthSin   float64
	MonthCos   float64
}

// CalendarOf decomposes a "2006-01" label. ok is false for other shapes.
func CalendarOf(label string) (Calendar, bool) {
	m := monthKey.FindStringSubmatch(label)
	if m == nil {
		return Calendar{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return Calendar{}, false
	}
	angle := 2 * math.Pi * float64(month) / 12
	return Calendar{
		Year:       year,
		Month:      month,
		Quarter:    (month-1)/3 + 1,
		MonthOrder: (year-BaseYear)*12 + month,
		QuarterEnd: month%3 == 0,
		YearEnd:    month == 12,
		PeakSeason: month <= 2 || month >= 9,
		MonthSin:   math.Sin(angle),
		MonthCos:   math.Cos(angle),
	}, true
}

// AddMonths returns the month label i months after c.
func AddMonths(c Calendar, i int) string {
	total := c.Year*12 + (c.Month - 1) + i
	return strconv.Itoa(total/12) + "-" + pad2(total%12+1)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// Temporal holds the per-project history features of one observation.
type Temporal struct {
	MA3, MA6   float64
	Std3, Std6 float64
	Diff1      float64
	Lag1, Lag2 float64
}

// TemporalFeatures computes rolling means and sample deviations over the
// trailing 3 and 6 points (partial windows allowed, a single point has
// deviation 0), the first difference and lags 1 and 2 (0 when absent).
func TemporalFeatures(values []float64) []Temporal {
	out := make([]Temporal, len(values))
	for i, v := range values {
		t := Temporal{}
		t.MA3, t.Std3 = rolling(values, i, 3)
		t.MA6, t.Std6 = rolling(values, i, 6)
		if i >= 1 {
			t.Diff1 = v - values[i-1]
			t.Lag1 = values[i-1]
		}
		if i >= 2 {
			t.Lag2 = values[i-2]
		}
		out[i] = t
	}
	return out
}

func rolling(values []float64, i, window int) (mean, std float64) {
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	w := values[start : i+1]
	if len(w) == 1 {
		return w[0], 0
	}
	return stat.MeanStdDev(w, nil)
}
