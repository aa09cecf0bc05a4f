// internal/store/sql.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/FairForge/intellinspect/internal/dataset"
	"github.com/FairForge/intellinspect/internal/domain"
	"github.com/FairForge/intellinspect/internal/partition"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id                VARCHAR(64) PRIMARY KEY,
		model_id          VARCHAR(255) NOT NULL,
		dataset_id        VARCHAR(128) NOT NULL,
		window_start      TIMESTAMP NOT NULL,
		window_end        TIMESTAMP NOT NULL,
		speed_multiplier  DOUBLE PRECISION NOT NULL,
		status            VARCHAR(16) NOT NULL,
		total_rows        INTEGER NOT NULL DEFAULT 0,
		rows_processed    INTEGER NOT NULL DEFAULT 0,
		predictions_count INTEGER NOT NULL DEFAULT 0,
		alerts_count      INTEGER NOT NULL DEFAULT 0,
		oracle_failures   INTEGER NOT NULL DEFAULT 0,
		correct_count     INTEGER NOT NULL DEFAULT 0,
		labeled_count     INTEGER NOT NULL DEFAULT 0,
		true_positives    INTEGER NOT NULL DEFAULT 0,
		false_positives   INTEGER NOT NULL DEFAULT 0,
		true_negatives    INTEGER NOT NULL DEFAULT 0,
		false_negatives   INTEGER NOT NULL DEFAULT 0,
		quality_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
		progress          DOUBLE PRECISION NOT NULL DEFAULT 0,
		current_timestamp_at TIMESTAMP NULL,
		error_message     TEXT NOT NULL DEFAULT '',
		started_at        TIMESTAMP NOT NULL,
		completed_at      TIMESTAMP NULL,
		updated_at        TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS predictions (
		id           VARCHAR(64) PRIMARY KEY,
		session_id   VARCHAR(64) NOT NULL,
		seq          INTEGER NOT NULL,
		ts           TIMESTAMP NOT NULL,
		label        INTEGER NOT NULL,
		confidence   DOUBLE PRECISION NOT NULL,
		ground_truth INTEGER NULL,
		alert        BOOLEAN NOT NULL,
		features     TEXT NOT NULL,
		created_at   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_session ON predictions(session_id, seq)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id         VARCHAR(64) PRIMARY KEY,
		session_id VARCHAR(64) NOT NULL,
		seq        INTEGER NOT NULL,
		severity   VARCHAR(16) NOT NULL,
		message    TEXT NOT NULL,
		ts         TIMESTAMP NOT NULL,
		label      INTEGER NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		features   TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_session ON alerts(session_id, seq)`,
	`CREATE TABLE IF NOT EXISTS datasets (
		id                  VARCHAR(128) PRIMARY KEY,
		name                VARCHAR(255) NOT NULL,
		row_count           INTEGER NOT NULL,
		column_count        INTEGER NOT NULL,
		pass_rate           DOUBLE PRECISION NOT NULL,
		earliest            TIMESTAMP NOT NULL,
		latest              TIMESTAMP NOT NULL,
		synthetic_timestamp BOOLEAN NOT NULL,
		columns_json        TEXT NOT NULL,
		timestamp_column    VARCHAR(255) NOT NULL,
		label_column        VARCHAR(255) NOT NULL,
		dropped_rows        INTEGER NOT NULL,
		path                TEXT NOT NULL,
		created_at          TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS partitions (
		dataset_id VARCHAR(128) PRIMARY KEY,
		body       TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

const sessionColumns = `id, model_id, dataset_id, window_start, window_end, speed_multiplier, status,
	total_rows, rows_processed, predictions_count, alerts_count, oracle_failures,
	correct_count, labeled_count, true_positives, false_positives, true_negatives, false_negatives,
	quality_score, progress, current_timestamp_at, error_message, started_at, completed_at, updated_at`

// SQLStore persists to sqlite3 or postgres through database/sql
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

// NewSQLStore opens the database and creates the schema
func NewSQLStore(ctx context.Context, driver, dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if driver == DriverSQLite {
		// sqlite serializes writers; one connection avoids "database is locked"
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &SQLStore{db: db, driver: driver, logger: logger}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("store ready", zap.String("driver", driver))
	return s, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) createTables(ctx context.Context) error {
	for _, query := range schema {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("store: create table: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// CreateSession inserts a new session
func (s *SQLStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	p := sess.Progress
	_, err := s.exec(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ModelID, sess.DatasetID, sess.Window.Start.UTC(), sess.Window.End.UTC(),
		sess.SpeedMultiplier, string(sess.Status),
		p.TotalRows, p.RowsProcessed, p.PredictionsCount, p.AlertsCount, p.OracleFailures,
		p.CorrectCount, p.LabeledCount, p.TruePositives, p.FalsePositives, p.TrueNegatives, p.FalseNegatives,
		p.QualityScore, p.Percent, nullTime(p.CurrentTimestamp), sess.ErrorMessage,
		sess.StartedAt.UTC(), nullTime(sess.CompletedAt), sess.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert session: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*domain.Session, error) {
	var (
		sess      domain.Session
		status    string
		current   sql.NullTime
		completed sql.NullTime
	)
	p := &sess.Progress
	err := row.Scan(
		&sess.ID, &sess.ModelID, &sess.DatasetID, &sess.Window.Start, &sess.Window.End,
		&sess.SpeedMultiplier, &status,
		&p.TotalRows, &p.RowsProcessed, &p.PredictionsCount, &p.AlertsCount, &p.OracleFailures,
		&p.CorrectCount, &p.LabeledCount, &p.TruePositives, &p.FalsePositives, &p.TrueNegatives, &p.FalseNegatives,
		&p.QualityScore, &p.Percent, &current, &sess.ErrorMessage,
		&sess.StartedAt, &completed, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.Status = domain.Status(status)
	sess.Window.Start = sess.Window.Start.UTC()
	sess.Window.End = sess.Window.End.UTC()
	sess.StartedAt = sess.StartedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()
	p.CurrentTimestamp = timePtr(current)
	sess.CompletedAt = timePtr(completed)
	return &sess, nil
}

// LoadSession returns a session by id
func (s *SQLStore) LoadSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`), id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load session: %w", err)
	}
	return sess, nil
}

// ListSessions returns the newest sessions first
func (s *SQLStore) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SaveSessionProgress applies a partial update in a single statement
func (s *SQLStore) SaveSessionProgress(ctx context.Context, id string, u domain.ProgressUpdate) error {
	p := u.Progress
	res, err := s.exec(ctx, `UPDATE sessions SET
		status = ?, total_rows = ?, rows_processed = ?, predictions_count = ?, alerts_count = ?,
		oracle_failures = ?, correct_count = ?, labeled_count = ?,
		true_positives = ?, false_positives = ?, true_negatives = ?, false_negatives = ?,
		quality_score = ?, progress = ?, current_timestamp_at = ?, error_message = ?,
		completed_at = ?, updated_at = ?
		WHERE id = ?`,
		string(u.Status), p.TotalRows, p.RowsProcessed, p.PredictionsCount, p.AlertsCount,
		p.OracleFailures, p.CorrectCount, p.LabeledCount,
		p.TruePositives, p.FalsePositives, p.TrueNegatives, p.FalseNegatives,
		p.QualityScore, p.Percent, nullTime(p.CurrentTimestamp), u.ErrorMessage,
		nullTime(u.CompletedAt), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: session %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendPrediction inserts a prediction record
func (s *SQLStore) AppendPrediction(ctx context.Context, p *domain.PredictionRecord) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("store: encode features: %w", err)
	}
	var truth sql.NullInt64
	if p.GroundTruth != nil {
		truth = sql.NullInt64{Int64: int64(*p.GroundTruth), Valid: true}
	}
	_, err = s.exec(ctx, `INSERT INTO predictions
		(id, session_id, seq, ts, label, confidence, ground_truth, alert, features, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SessionID, p.Seq, p.Timestamp.UTC(), p.Label, p.Confidence, truth, p.Alert,
		string(features), p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert prediction: %w", err)
	}
	return nil
}

// AppendAlert inserts a quality alert
func (s *SQLStore) AppendAlert(ctx context.Context, a *domain.QualityAlert) error {
	features, err := json.Marshal(a.Features)
	if err != nil {
		return fmt.Errorf("store: encode features: %w", err)
	}
	_, err = s.exec(ctx, `INSERT INTO alerts
		(id, session_id, seq, severity, message, ts, label, confidence, features, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.Seq, a.Severity, a.Message, a.Timestamp.UTC(), a.Label, a.Confidence,
		string(features), a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert alert: %w", err)
	}
	return nil
}

func withLimit(query string, args []interface{}, limit int) (string, []interface{}) {
	if limit > 0 {
		return query + ` LIMIT ?`, append(args, limit)
	}
	return query, args
}

// ListRecentPredictions returns up to limit predictions, most recent first
func (s *SQLStore) ListRecentPredictions(ctx context.Context, sessionID string, limit int) ([]*domain.PredictionRecord, error) {
	query, args := withLimit(`SELECT id, session_id, seq, ts, label, confidence, ground_truth, alert, features, created_at
		FROM predictions WHERE session_id = ? ORDER BY seq DESC`, []interface{}{sessionID}, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list predictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*domain.PredictionRecord{}
	for rows.Next() {
		var (
			p        domain.PredictionRecord
			truth    sql.NullInt64
			features string
		)
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Seq, &p.Timestamp, &p.Label, &p.Confidence,
			&truth, &p.Alert, &features, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan prediction: %w", err)
		}
		if truth.Valid {
			v := int(truth.Int64)
			p.GroundTruth = &v
		}
		if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
			return nil, fmt.Errorf("store: decode features: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		p.CreatedAt = p.CreatedAt.UTC()
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ListAlerts returns up to limit alerts, most recent first
func (s *SQLStore) ListAlerts(ctx context.Context, sessionID string, limit int) ([]*domain.QualityAlert, error) {
	query, args := withLimit(`SELECT id, session_id, seq, severity, message, ts, label, confidence, features, created_at
		FROM alerts WHERE session_id = ? ORDER BY seq DESC`, []interface{}{sessionID}, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*domain.QualityAlert{}
	for rows.Next() {
		var (
			a        domain.QualityAlert
			features string
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Seq, &a.Severity, &a.Message, &a.Timestamp,
			&a.Label, &a.Confidence, &features, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan alert: %w", err)
		}
		if err := json.Unmarshal([]byte(features), &a.Features); err != nil {
			return nil, fmt.Errorf("store: decode features: %w", err)
		}
		a.Timestamp = a.Timestamp.UTC()
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, &a)
	}
	return out, rows.Err()
}

const datasetColumns = `id, name, row_count, column_count, pass_rate, earliest, latest,
	synthetic_timestamp, columns_json, timestamp_column, label_column, dropped_rows, path, created_at`

// SaveDataset inserts or replaces a profile
func (s *SQLStore) SaveDataset(ctx context.Context, p *dataset.Profile) error {
	columns, err := json.Marshal(p.Columns)
	if err != nil {
		return fmt.Errorf("store: encode columns: %w", err)
	}
	_, err = s.exec(ctx, `INSERT INTO datasets (`+datasetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, row_count = excluded.row_count, column_count = excluded.column_count,
			pass_rate = excluded.pass_rate, earliest = excluded.earliest, latest = excluded.latest,
			synthetic_timestamp = excluded.synthetic_timestamp, columns_json = excluded.columns_json,
			timestamp_column = excluded.timestamp_column, label_column = excluded.label_column,
			dropped_rows = excluded.dropped_rows, path = excluded.path, created_at = excluded.created_at`,
		p.ID, p.Name, p.RowCount, p.ColumnCount, p.PassRate, p.Earliest.UTC(), p.Latest.UTC(),
		p.SyntheticTimestamp, string(columns), p.TimestampColumn, p.LabelColumn, p.DroppedRows,
		p.Path, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: upsert dataset: %w", err)
	}
	return nil
}

func scanDataset(row scanner) (*dataset.Profile, error) {
	var (
		p       dataset.Profile
		columns string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.RowCount, &p.ColumnCount, &p.PassRate, &p.Earliest, &p.Latest,
		&p.SyntheticTimestamp, &columns, &p.TimestampColumn, &p.LabelColumn, &p.DroppedRows,
		&p.Path, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(columns), &p.Columns); err != nil {
		return nil, fmt.Errorf("store: decode columns: %w", err)
	}
	p.Earliest = p.Earliest.UTC()
	p.Latest = p.Latest.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// LoadDataset returns a profile by id
func (s *SQLStore) LoadDataset(ctx context.Context, id string) (*dataset.Profile, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+datasetColumns+` FROM datasets WHERE id = ?`), id)
	p, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: dataset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load dataset: %w", err)
	}
	return p, nil
}

// ListDatasets returns profiles ordered by id
func (s *SQLStore) ListDatasets(ctx context.Context) ([]*dataset.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+datasetColumns+` FROM datasets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*dataset.Profile{}
	for rows.Next() {
		p, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan dataset: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePartition records the accepted partition of a dataset
func (s *SQLStore) SavePartition(ctx context.Context, datasetID string, p partition.Partition) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: encode partition: %w", err)
	}
	_, err = s.exec(ctx, `INSERT INTO partitions (dataset_id, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (dataset_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		datasetID, string(body), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: upsert partition: %w", err)
	}
	return nil
}

// LoadPartition returns the accepted partition of a dataset
func (s *SQLStore) LoadPartition(ctx context.Context, datasetID string) (partition.Partition, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT body FROM partitions WHERE dataset_id = ?`), datasetID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return partition.Partition{}, fmt.Errorf("store: partition for %s: %w", datasetID, ErrNotFound)
	}
	if err != nil {
		return partition.Partition{}, fmt.Errorf("store: load partition: %w", err)
	}

	var p partition.Partition
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return partition.Partition{}, fmt.Errorf("store: decode partition: %w", err)
	}
	return p, nil
}

// PurgeSessions removes terminal sessions completed before the cutoff, with their records
func (s *SQLStore) PurgeSessions(ctx context.Context, before time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const victims = `SELECT id FROM sessions WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?`
	args := []interface{}{string(domain.StatusCompleted), string(domain.StatusError), before.UTC()}

	for _, table := range []string{"predictions", "alerts"} {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM `+table+` WHERE session_id IN (`+victims+`)`), args...); err != nil {
			return 0, fmt.Errorf("store: purge %s: %w", table, err)
		}
	}

	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE id IN (`+victims+`)`), args...)
	if err != nil {
		return 0, fmt.Errorf("store: purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: purge sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit purge: %w", err)
	}
	if n > 0 {
		s.logger.Info("purged sessions", zap.Int64("count", n), zap.Time("before", before))
	}
	return int(n), nil
}
