// internal/partition/partition_test.go
package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func endOfDay(d int) time.Time {
	return time.Date(2024, 1, d, 23, 59, 59, 0, time.UTC)
}

var bounds = Bounds{Earliest: day(1), Latest: endOfDay(30), RowCount: 720}

func contiguous() Partition {
	return Partition{
		Training:   Window{Start: day(1), End: day(15)},
		Testing:    Window{Start: day(15), End: day(22)},
		Simulation: Window{Start: day(22), End: endOfDay(30)},
	}
}

func TestValidate_Contiguous(t *testing.T) {
	res := Validate(bounds, contiguous())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.NotNil(t, res.Errors)

	assert.Equal(t, 15, res.Summary.Training.Days)
	assert.Equal(t, 8, res.Summary.Testing.Days)
	assert.Equal(t, 9, res.Summary.Simulation.Days)
	assert.Equal(t, day(22), res.Summary.Simulation.Start)
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Partition)
		want   []string
	}{
		{
			name:   "training overlaps testing",
			mutate: func(p *Partition) { p.Training.End = day(16) },
			want:   []string{"training period must end before testing period starts"},
		},
		{
			name:   "testing overlaps simulation",
			mutate: func(p *Partition) { p.Testing.End = day(23) },
			want:   []string{"testing period must end before simulation period starts"},
		},
		{
			name:   "before dataset start",
			mutate: func(p *Partition) { p.Training.Start = day(1).Add(-time.Second) },
			want:   []string{"training period cannot start before dataset start date"},
		},
		{
			name:   "after dataset end",
			mutate: func(p *Partition) { p.Simulation.End = day(31).Add(time.Hour) },
			want:   []string{"simulation period cannot end after dataset end date"},
		},
		{
			name:   "inverted window",
			mutate: func(p *Partition) { p.Testing.Start, p.Testing.End = day(20), day(16) },
			want:   []string{"testing period start must not be after its end"},
		},
		{
			name: "all at once",
			mutate: func(p *Partition) {
				p.Training = Window{Start: day(1).Add(-time.Hour), End: day(18)}
				p.Testing.End = day(25)
				p.Simulation.End = day(31).Add(time.Hour)
			},
			want: []string{
				"training period must end before testing period starts",
				"testing period must end before simulation period starts",
				"training period cannot start before dataset start date",
				"simulation period cannot end after dataset end date",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := contiguous()
			tt.mutate(&p)
			res := Validate(bounds, p)
			assert.False(t, res.Valid)
			assert.Equal(t, tt.want, res.Errors)
		})
	}
}

func TestDays(t *testing.T) {
	assert.Equal(t, 1, Days(Window{Start: day(5), End: day(5)}))
	assert.Equal(t, 1, Days(Window{Start: day(5).Add(time.Hour), End: endOfDay(5)}))
	assert.Equal(t, 2, Days(Window{Start: endOfDay(5), End: day(6).Add(time.Minute)}))
	assert.Equal(t, 31, Days(Window{Start: day(1), End: endOfDay(31)}))
	assert.Equal(t, 0, Days(Window{Start: day(6), End: day(5)}))
}

func TestEstimateRecords(t *testing.T) {
	b := Bounds{Earliest: day(1), Latest: day(11), RowCount: 1000}

	assert.Equal(t, 1000, EstimateRecords(b, Window{Start: day(1), End: day(11)}))
	assert.Equal(t, 500, EstimateRecords(b, Window{Start: day(1), End: day(6)}))
	// clamped to the dataset span
	assert.Equal(t, 1000, EstimateRecords(b, Window{Start: day(1).AddDate(0, -1, 0), End: day(20)}))
	assert.Equal(t, 0, EstimateRecords(b, Window{Start: day(12), End: day(15)}))
	assert.Equal(t, 0, EstimateRecords(Bounds{Earliest: day(1), Latest: day(1), RowCount: 5}, Window{Start: day(1), End: day(1)}))
}

func TestWindow_Contains(t *testing.T) {
	w := Window{Start: day(1), End: day(2)}
	require.True(t, w.Contains(day(1)))
	require.True(t, w.Contains(day(2)))
	require.False(t, w.Contains(day(2).Add(time.Nanosecond)))
}
