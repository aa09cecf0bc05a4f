// internal/partition/partition.go
package partition

import (
	"fmt"
	"math"
	"time"
)

// Window names
const (
	Training   = "training"
	Testing    = "testing"
	Simulation = "simulation"
)

// Window is a contiguous time range
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether ts lies in [Start, End]
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// Partition holds the three ordered windows
type Partition struct {
	Training   Window `json:"training"`
	Testing    Window `json:"testing"`
	Simulation Window `json:"simulation"`
}

// Bounds describes the dataset the partition must fit in
type Bounds struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
	RowCount int       `json:"row_count"`
}

// WindowSummary describes one window
type WindowSummary struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Days             int       `json:"days"`
	EstimatedRecords int       `json:"estimated_records"`
}

// Summary describes all three windows
type Summary struct {
	Training   WindowSummary `json:"training"`
	Testing    WindowSummary `json:"testing"`
	Simulation WindowSummary `json:"simulation"`
}

// Result is the outcome of a validation
type Result struct {
	Valid   bool     `json:"valid"`
	Errors  []string `json:"errors"`
	Summary Summary  `json:"summary"`
}

// Validate checks ordering and coverage. Every violated rule is reported.
func Validate(b Bounds, p Partition) Result {
	errs := []string{}

	for _, nw := range []struct {
		name string
		w    Window
	}{{Training, p.Training}, {Testing, p.Testing}, {Simulation, p.Simulation}} {
		if nw.w.Start.After(nw.w.End) {
			errs = append(errs, fmt.Sprintf("%s period start must not be after its end", nw.name))
		}
	}
	if p.Training.End.After(p.Testing.Start) {
		errs = append(errs, "training period must end before testing period starts")
	}
	if p.Testing.End.After(p.Simulation.Start) {
		errs = append(errs, "testing period must end before simulation period starts")
	}
	if p.Training.Start.Before(b.Earliest) {
		errs = append(errs, "training period cannot start before dataset start date")
	}
	if p.Simulation.End.After(b.Latest) {
		errs = append(errs, "simulation period cannot end after dataset end date")
	}

	return Result{
		Valid:  len(errs) == 0,
		Errors: errs,
		Summary: Summary{
			Training:   summarize(b, p.Training),
			Testing:    summarize(b, p.Testing),
			Simulation: summarize(b, p.Simulation),
		},
	}
}

// Days counts calendar days touched by w, both ends inclusive.
// A window inside a single day counts as 1; an inverted window counts as 0.
func Days(w Window) int {
	if w.Start.After(w.End) {
		return 0
	}
	s := w.Start.UTC()
	e := w.End.UTC()
	startDay := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	return int(endDay.Sub(startDay).Hours()/24) + 1
}

// EstimateRecords scales the dataset row count by the share of its span the window covers.
// It is an estimate, not a count of rows.
func EstimateRecords(b Bounds, w Window) int {
	span := b.Latest.Sub(b.Earliest).Seconds()
	if span <= 0 || w.Start.After(w.End) {
		return 0
	}
	start := w.Start
	if start.Before(b.Earliest) {
		start = b.Earliest
	}
	end := w.End
	if end.After(b.Latest) {
		end = b.Latest
	}
	covered := end.Sub(start).Seconds()
	if covered <= 0 {
		return 0
	}
	return int(math.Round(float64(b.RowCount) * covered / span))
}

func summarize(b Bounds, w Window) WindowSummary {
	return WindowSummary{
		Start:            w.Start,
		End:              w.End,
		Days:             Days(w),
		EstimatedRecords: EstimateRecords(b, w),
	}
}
