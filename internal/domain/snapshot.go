// internal/domain/snapshot.go
package domain

// Snapshot is the status view returned to callers
type Snapshot struct {
	Session
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
}

// NewSnapshot derives classification metrics from the confusion counters.
// The defect label is the positive class.
func NewSnapshot(s *Session) Snapshot {
	snap := Snapshot{Session: *s}
	tp := float64(s.TruePositives)
	if d := tp + float64(s.FalsePositives); d > 0 {
		snap.Precision = tp / d
	}
	if d := tp + float64(s.FalseNegatives); d > 0 {
		snap.Recall = tp / d
	}
	if d := snap.Precision + snap.Recall; d > 0 {
		snap.F1 = 2 * snap.Precision * snap.Recall / d
	}
	return snap
}
