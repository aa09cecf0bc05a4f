// internal/dataset/profile_test.go
package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	table := &Table{
		Header: []string{"Date", "temp", "Response"},
		Records: [][]string{
			{"2024-01-03", "1", "0"},
			{"2024-01-01", "2", "0"},
			{"2024-01-05", "3", "1"},
			{"2024-01-02", "4", "0"},
		},
	}
	n := Normalize(table, "Response")

	p := Summarize(n, DefaultPolarity())
	assert.Equal(t, 4, p.RowCount)
	assert.Equal(t, 3, p.ColumnCount)
	assert.Equal(t, 75.0, p.PassRate)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), p.Earliest)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), p.Latest)
	assert.Equal(t, 4*24*time.Hour, p.Span())
	assert.Equal(t, "Response", p.LabelColumn)

	t.Run("inverted polarity", func(t *testing.T) {
		inv := Polarity{Column: "Response", PassValue: 1, DefectValue: 0}
		assert.Equal(t, 25.0, Summarize(n, inv).PassRate)
	})

	t.Run("pure", func(t *testing.T) {
		assert.Equal(t, p, Summarize(n, DefaultPolarity()))
	})
}

func TestSummarize_NoLabelColumn(t *testing.T) {
	n := Normalize(&Table{Header: []string{"temp"}, Records: [][]string{{"1"}, {"2"}}}, "Response")
	p := Summarize(n, DefaultPolarity())
	assert.Equal(t, 2, p.RowCount)
	assert.Zero(t, p.PassRate)
	assert.True(t, p.SyntheticTimestamp)
	assert.Equal(t, time.Second, p.Span())
}

func TestSummarize_Empty(t *testing.T) {
	n := Normalize(&Table{Header: []string{"temp", "Response"}}, "Response")
	p := Summarize(n, DefaultPolarity())
	assert.Zero(t, p.RowCount)
	assert.True(t, p.Earliest.IsZero())
}
