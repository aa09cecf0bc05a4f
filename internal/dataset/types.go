// internal/dataset/types.go
package dataset

import (
	"errors"
	"time"
)

// SyntheticColumn is the name given to a generated timestamp column
const SyntheticColumn = "timestamp"

// SyntheticEpoch is the first synthesized timestamp; each following row adds one second
var SyntheticEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

var (
	ErrEmptyFile     = errors.New("dataset: file has no header")
	ErrUnknownSource = errors.New("dataset: unsupported source uri")
	ErrOutsideRoot   = errors.New("dataset: path is outside the dataset root")
)

// Row is one sensor/quality observation. Immutable once parsed.
type Row struct {
	Index     int                // position in the normalized file
	Timestamp time.Time          // normalized, UTC
	Features  map[string]float64 // numeric sensor readings
	Label     *int               // ground truth, nil when absent
}

// Polarity maps label values to their meaning
type Polarity struct {
	Column      string `yaml:"label_column"`
	PassValue   int    `yaml:"pass_value"`
	DefectValue int    `yaml:"defect_value"`
}

// DefaultPolarity follows the production-line convention where 1 marks a defect
func DefaultPolarity() Polarity {
	return Polarity{
		Column:      "Response",
		PassValue:   0,
		DefectValue: 1,
	}
}

// Table is a parsed CSV file in original file order
type Table struct {
	Header  []string
	Records [][]string
}

// Profile describes an ingested dataset
type Profile struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	RowCount           int       `json:"row_count"`
	ColumnCount        int       `json:"column_count"`
	PassRate           float64   `json:"pass_rate"`
	Earliest           time.Time `json:"earliest"`
	Latest             time.Time `json:"latest"`
	SyntheticTimestamp bool      `json:"synthetic_timestamp"`
	Columns            []string  `json:"columns"`
	TimestampColumn    string    `json:"timestamp_column"`
	LabelColumn        string    `json:"label_column,omitempty"`
	DroppedRows        int       `json:"dropped_rows"`
	Path               string    `json:"path"`
	CreatedAt          time.Time `json:"created_at"`
}
