// internal/dataset/profile.go
package dataset

import "time"

// Summarize profiles normalized rows. It is pure: identical input yields identical output.
func Summarize(n *Normalized, polarity Polarity) Profile {
	p := Profile{
		RowCount:           len(n.Rows),
		ColumnCount:        len(n.Table.Header),
		Columns:            append([]string(nil), n.Table.Header...),
		TimestampColumn:    n.TimestampColumn,
		LabelColumn:        n.LabelColumn,
		SyntheticTimestamp: n.Synthetic,
		DroppedRows:        n.Dropped,
	}
	if len(n.Rows) == 0 {
		return p
	}

	earliest, latest := n.Rows[0].Timestamp, n.Rows[0].Timestamp
	passed := 0
	for _, row := range n.Rows {
		if row.Timestamp.Before(earliest) {
			earliest = row.Timestamp
		}
		if row.Timestamp.After(latest) {
			latest = row.Timestamp
		}
		if row.Label != nil && *row.Label == polarity.PassValue {
			passed++
		}
	}
	p.Earliest = earliest
	p.Latest = latest

	if n.LabelColumn != "" {
		p.PassRate = float64(passed) / float64(len(n.Rows)) * 100
	}
	return p
}

// Span returns the time covered by the profile
func (p Profile) Span() time.Duration {
	return p.Latest.Sub(p.Earliest)
}
