// internal/domain/session.go
package domain

import (
	"errors"
	"time"

	"github.com/FairForge/intellinspect/internal/partition"
)

// ErrNotFound is returned by stores for missing records
var ErrNotFound = errors.New("not found")

// Status is a session lifecycle state
type Status string

// Session states
const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Alert severities
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Session is one replay of a simulation window
type Session struct {
	ID              string           `json:"id"`
	ModelID         string           `json:"model_id"`
	DatasetID       string           `json:"dataset_id"`
	Window          partition.Window `json:"window"`
	SpeedMultiplier float64          `json:"speed_multiplier"`
	Status          Status           `json:"status"`

	Progress

	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Progress holds the counters a worker persists at each checkpoint
type Progress struct {
	TotalRows        int        `json:"total_rows"`
	RowsProcessed    int        `json:"rows_processed"`
	PredictionsCount int        `json:"predictions_count"`
	AlertsCount      int        `json:"alerts_count"`
	OracleFailures   int        `json:"oracle_failures"`
	CorrectCount     int        `json:"correct_count"`
	LabeledCount     int        `json:"labeled_count"`
	TruePositives    int        `json:"true_positives"`
	FalsePositives   int        `json:"false_positives"`
	TrueNegatives    int        `json:"true_negatives"`
	FalseNegatives   int        `json:"false_negatives"`
	QualityScore     float64    `json:"quality_score"`
	Percent          float64    `json:"progress"`
	CurrentTimestamp *time.Time `json:"current_timestamp,omitempty"`
}

// ProgressUpdate is an atomic partial update of a session
type ProgressUpdate struct {
	Status       Status
	Progress     Progress
	ErrorMessage string
	CompletedAt  *time.Time
}

// PredictionRecord is one replayed row's result. Never mutated after creation.
type PredictionRecord struct {
	ID          string             `json:"id"`
	SessionID   string             `json:"session_id"`
	Seq         int                `json:"seq"`
	Timestamp   time.Time          `json:"timestamp"`
	Label       int                `json:"label"`
	Confidence  float64            `json:"confidence"`
	GroundTruth *int               `json:"ground_truth,omitempty"`
	Alert       bool               `json:"alert"`
	Features    map[string]float64 `json:"features"`
	CreatedAt   time.Time          `json:"created_at"`
}

// QualityAlert is raised for a confident defect prediction
type QualityAlert struct {
	ID         string             `json:"id"`
	SessionID  string             `json:"session_id"`
	Seq        int                `json:"seq"`
	Severity   string             `json:"severity"`
	Message    string             `json:"message"`
	Timestamp  time.Time          `json:"timestamp"`
	Label      int                `json:"label"`
	Confidence float64            `json:"confidence"`
	Features   map[string]float64 `json:"features"`
	CreatedAt  time.Time          `json:"created_at"`
}
