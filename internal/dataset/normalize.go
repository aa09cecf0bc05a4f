// internal/dataset/normalize.go
package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order for every timestamp cell
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// Normalized is a table whose every row carries exactly one timestamp
type Normalized struct {
	Table           *Table // persisted form, timestamps rewritten as RFC3339Nano UTC
	Rows            []Row  // file order, not sorted
	TimestampColumn string
	LabelColumn     string
	Synthetic       bool
	Dropped         int
}

// FindTimestampColumn returns the first column whose name contains "time" or "date"
func FindTimestampColumn(header []string) (int, bool) {
	for i, name := range header {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "time") || strings.Contains(lower, "date") {
			return i, true
		}
	}
	return -1, false
}

// ParseTimestamp parses a timestamp cell. Numeric cells are Unix seconds.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(secs) && !math.IsInf(secs, 0) {
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
	}
	return time.Time{}, false
}

// Normalize detects or synthesizes the timestamp column.
//
// Rows whose timestamp cell cannot be parsed are dropped and counted; this is a
// data-quality policy, not an error. When no time-like column exists, a column
// named SyntheticColumn is prepended starting at SyntheticEpoch and advancing one
// second per row in file order. An empty table is returned unchanged.
func Normalize(t *Table, labelColumn string) *Normalized {
	out := &Normalized{}
	labelIdx := columnIndex(t.Header, labelColumn)
	if labelIdx >= 0 {
		out.LabelColumn = t.Header[labelIdx]
	}

	tsIdx, found := FindTimestampColumn(t.Header)
	switch {
	case found:
		out.TimestampColumn = t.Header[tsIdx]
		out.Table = &Table{Header: append([]string(nil), t.Header...)}
		for _, rec := range t.Records {
			if tsIdx >= len(rec) {
				out.Dropped++
				continue
			}
			ts, ok := ParseTimestamp(rec[tsIdx])
			if !ok {
				out.Dropped++
				continue
			}
			normalized := append([]string(nil), rec...)
			normalized[tsIdx] = ts.Format(time.RFC3339Nano)
			out.Rows = append(out.Rows, buildRow(len(out.Rows), ts, t.Header, rec, tsIdx, labelIdx))
			out.Table.Records = append(out.Table.Records, normalized)
		}

	case len(t.Records) == 0:
		out.Table = &Table{Header: append([]string(nil), t.Header...)}

	default:
		out.Synthetic = true
		out.TimestampColumn = SyntheticColumn
		out.Table = &Table{Header: append([]string{SyntheticColumn}, t.Header...)}
		for i, rec := range t.Records {
			ts := SyntheticEpoch.Add(time.Duration(i) * time.Second)
			out.Rows = append(out.Rows, buildRow(i, ts, t.Header, rec, -1, labelIdx))
			out.Table.Records = append(out.Table.Records, append([]string{ts.Format(time.RFC3339Nano)}, rec...))
		}
	}

	return out
}

func buildRow(index int, ts time.Time, header, rec []string, tsIdx, labelIdx int) Row {
	row := Row{
		Index:     index,
		Timestamp: ts,
		Features:  make(map[string]float64, len(header)),
	}
	for i, name := range header {
		if i == tsIdx || i >= len(rec) {
			continue
		}
		if i == labelIdx {
			if label, ok := parseLabel(rec[i]); ok {
				row.Label = &label
			}
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			row.Features[name] = v
		}
	}
	return row
}

func parseLabel(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func columnIndex(header []string, name string) int {
	if name == "" {
		return -1
	}
	for i, h := range header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}
