package dataset

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Required OHLCV columns for any price frame, lowercase by convention.
var requiredPriceColumns = []string{"open", "high", "low", "close", "volume"}

// Frame is a date-indexed numeric table: OHLCV plus any number of feature
// columns, all aligned 1:1 with the date index. The index must be strictly
// increasing with no duplicates; Validate enforces this once at load time.
type Frame struct {
	dates   []time.Time
	order   []string
	columns map[string][]float64
}

// NewFrame builds a frame from pre-parsed columns. The column order argument
// fixes iteration order for deterministic downstream behavior.
func NewFrame(dates []time.Time, order []string, columns map[string][]float64) (*Frame, error) {
	f := &Frame{dates: dates, order: order, columns: columns}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// ReadCSV loads a frame from a CSV file with a "date" column and numeric
// columns. Empty cells and unparseable numbers become NaN; Sanitize decides
// what to do with them.
func ReadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("data file %s has no rows", path)
	}

	header := records[0]
	dateIdx := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "date") {
			dateIdx = i
			break
		}
	}
	if dateIdx < 0 {
		return nil, fmt.Errorf("data file %s has no date column", path)
	}

	order := make([]string, 0, len(header)-1)
	columns := make(map[string][]float64, len(header)-1)
	for i, name := range header {
		if i == dateIdx {
			continue
		}
		col := strings.ToLower(strings.TrimSpace(name))
		order = append(order, col)
		columns[col] = make([]float64, 0, len(records)-1)
	}

	dates := make([]time.Time, 0, len(records)-1)
	for rowNum, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, want %d", rowNum+2, len(rec), len(header))
		}
		ts, err := parseDate(rec[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum+2, err)
		}
		dates = append(dates, ts)
		for i, name := range header {
			if i == dateIdx {
				continue
			}
			col := strings.ToLower(strings.TrimSpace(name))
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				v = math.NaN()
			}
			columns[col] = append(columns[col], v)
		}
	}

	return NewFrame(dates, order, columns)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// Validate checks structural invariants: non-empty, equal column lengths and
// a strictly increasing date index.
func (f *Frame) Validate() error {
	if len(f.dates) == 0 {
		return fmt.Errorf("frame is empty")
	}
	for _, name := range f.order {
		col, ok := f.columns[name]
		if !ok {
			return fmt.Errorf("column %s missing from data", name)
		}
		if len(col) != len(f.dates) {
			return fmt.Errorf("column %s has %d rows, index has %d", name, len(col), len(f.dates))
		}
	}
	for i := 1; i < len(f.dates); i++ {
		if !f.dates[i].After(f.dates[i-1]) {
			return fmt.Errorf("date index not strictly increasing at row %d (%s)", i, f.dates[i].Format("2006-01-02"))
		}
	}
	return nil
}

// RequireOHLCV fails fast when any of the lowercase open/high/low/close/volume
// columns is absent.
func (f *Frame) RequireOHLCV() error {
	for _, name := range requiredPriceColumns {
		if _, ok := f.columns[name]; !ok {
			return fmt.Errorf("required price column %q missing", name)
		}
	}
	return nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.dates) }

// Dates returns the date index. Callers must not mutate it.
func (f *Frame) Dates() []time.Time { return f.dates }

// Columns returns column names in their original order.
func (f *Frame) Columns() []string { return f.order }

// HasColumn reports whether the frame carries the named column.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Column returns the named column, or an error for structurally missing data.
func (f *Frame) Column(name string) ([]float64, error) {
	col, ok := f.columns[name]
	if !ok {
		return nil, fmt.Errorf("column %q missing", name)
	}
	return col, nil
}

// Slice returns a view of rows [i0, i1). Bounds are clamped; an inverted
// range yields an empty frame.
func (f *Frame) Slice(i0, i1 int) *Frame {
	if i0 < 0 {
		i0 = 0
	}
	if i1 > len(f.dates) {
		i1 = len(f.dates)
	}
	if i0 >= i1 {
		return &Frame{order: f.order, columns: map[string][]float64{}}
	}
	columns := make(map[string][]float64, len(f.order))
	for _, name := range f.order {
		columns[name] = f.columns[name][i0:i1]
	}
	return &Frame{dates: f.dates[i0:i1], order: f.order, columns: columns}
}

// TrimYears keeps only rows within the given number of years before the last
// date. Zero or negative years keeps everything.
func (f *Frame) TrimYears(years int) *Frame {
	if years <= 0 || len(f.dates) == 0 {
		return f
	}
	cutoff := f.dates[len(f.dates)-1].AddDate(-years, 0, 0)
	start := sort.Search(len(f.dates), func(i int) bool { return !f.dates[i].Before(cutoff) })
	return f.Slice(start, len(f.dates))
}

// FeatureMatrix extracts the named columns into row-major form for modeling.
// A missing column is a data error, not something to paper over with zeros.
func (f *Frame) FeatureMatrix(names []string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for j, name := range names {
		col, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}
	rows := make([][]float64, len(f.dates))
	for i := range rows {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][i]
		}
		rows[i] = row
	}
	return rows, nil
}

// FeatureColumns returns the columns usable as model features: everything
// numeric except the raw price/volume columns and any names in extraExclude.
func (f *Frame) FeatureColumns(extraExclude ...string) []string {
	excluded := map[string]bool{
		"open": true, "high": true, "low": true, "close": true,
		"volume": true, "vix_close": true,
	}
	for _, name := range extraExclude {
		excluded[strings.ToLower(name)] = true
	}
	out := make([]string, 0, len(f.order))
	for _, name := range f.order {
		if !excluded[name] {
			out = append(out, name)
		}
	}
	return out
}

// SanitizeFeatures replaces NaN and infinities with 0 in the named columns,
// in place. Price columns are deliberately left untouched: a hole there is a
// data error that must surface, not be zeroed.
func (f *Frame) SanitizeFeatures(names []string) {
	for _, name := range names {
		col, ok := f.columns[name]
		if !ok {
			continue
		}
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				col[i] = 0
			}
		}
	}
}
