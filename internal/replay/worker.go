// internal/replay/worker.go
package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/FairForge/intellinspect/internal/dataset"
	"github.com/FairForge/intellinspect/internal/domain"
	"github.com/FairForge/intellinspect/internal/events"
	"github.com/FairForge/intellinspect/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// run is the session's only writer while its handle is registered
func (e *Engine) run(ctx context.Context, h *Handle, sess *domain.Session) {
	defer e.wg.Done()
	defer close(h.done)
	defer h.cancel(nil)

	metrics.WorkerStarted()
	defer metrics.WorkerStopped()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("replay worker panicked",
				zap.String("session_id", sess.ID),
				zap.Any("panic", r))
			e.finish(sess, domain.StatusError, fmt.Sprintf("replay worker panicked: %v", r))
		}
	}()

	status, msg := e.replay(ctx, sess)
	e.finish(sess, status, msg)
}

// replay walks the window from the persisted cursor and reports how the session ended
func (e *Engine) replay(ctx context.Context, sess *domain.Session) (domain.Status, string) {
	rows, err := e.windowRows(ctx, sess)
	if err != nil {
		if st, ok := signalled(ctx); ok {
			return st, ""
		}
		return domain.StatusError, fmt.Sprintf("failed to load dataset rows: %v", err)
	}
	if len(rows) == 0 {
		return domain.StatusError, fmt.Sprintf("no records found in simulation window %s to %s",
			sess.Window.Start.Format(time.RFC3339), sess.Window.End.Format(time.RFC3339))
	}

	sess.TotalRows = len(rows)
	if sess.RowsProcessed > len(rows) {
		sess.RowsProcessed = len(rows)
	}
	sess.Status = domain.StatusRunning
	sess.Percent = percent(sess.RowsProcessed, sess.TotalRows)
	if err := e.save(context.WithoutCancel(ctx), sess); err != nil {
		return domain.StatusError, err.Error()
	}

	delay := Interval(sess.SpeedMultiplier)
	for i := sess.RowsProcessed; i < len(rows); i++ {
		if st, ok := signalled(ctx); ok {
			return st, ""
		}

		if err := e.step(ctx, sess, i, rows[i]); err != nil {
			if st, ok := signalled(ctx); ok {
				return st, ""
			}
			return domain.StatusError, err.Error()
		}

		if sess.RowsProcessed%e.config.PersistEvery == 0 {
			if err := e.save(context.WithoutCancel(ctx), sess); err != nil {
				return domain.StatusError, err.Error()
			}
			e.publish(events.SessionProgress, sess)
		}

		if i < len(rows)-1 {
			if err := e.pacer.Wait(ctx, delay); err != nil {
				if st, ok := signalled(ctx); ok {
					return st, ""
				}
				return domain.StatusError, fmt.Sprintf("pacing failed: %v", err)
			}
		}
	}
	return domain.StatusCompleted, ""
}

// windowRows returns the rows inside the window ordered by timestamp, ties in file order
func (e *Engine) windowRows(ctx context.Context, sess *domain.Session) ([]dataset.Row, error) {
	all, err := e.rows.Rows(ctx, sess.DatasetID)
	if err != nil {
		return nil, err
	}

	rows := make([]dataset.Row, 0, len(all))
	for _, row := range all {
		if sess.Window.Contains(row.Timestamp) {
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
	return rows, nil
}

// step replays one row. Oracle failures skip the row; only store failures are returned.
func (e *Engine) step(ctx context.Context, sess *domain.Session, seq int, row dataset.Row) error {
	start := time.Now()
	pred, err := e.oracle.Predict(ctx, sess.ModelID, row.Features)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.RecordOracleFailure(time.Since(start))
		e.logger.Warn("oracle call failed, skipping row",
			zap.String("session_id", sess.ID),
			zap.Int("row", seq),
			zap.Error(err))
		sess.OracleFailures++
		e.advance(sess, row)
		return nil
	}
	metrics.RecordPrediction(pred.Label, time.Since(start))

	alert, severity := e.config.Classify(pred)
	now := time.Now().UTC()
	writeCtx := context.WithoutCancel(ctx)

	rec := &domain.PredictionRecord{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		Seq:         seq,
		Timestamp:   row.Timestamp,
		Label:       pred.Label,
		Confidence:  pred.Confidence,
		GroundTruth: row.Label,
		Alert:       alert,
		Features:    row.Features,
		CreatedAt:   now,
	}
	if err := e.store.AppendPrediction(writeCtx, rec); err != nil {
		return fmt.Errorf("failed to record prediction: %w", err)
	}

	if alert {
		qa := &domain.QualityAlert{
			ID:         uuid.NewString(),
			SessionID:  sess.ID,
			Seq:        seq,
			Severity:   severity,
			Message:    AlertMessage(pred.Confidence),
			Timestamp:  row.Timestamp,
			Label:      pred.Label,
			Confidence: pred.Confidence,
			Features:   row.Features,
			CreatedAt:  now,
		}
		if err := e.store.AppendAlert(writeCtx, qa); err != nil {
			return fmt.Errorf("failed to record alert: %w", err)
		}
		metrics.RecordAlert(severity)
		_ = e.events.Publish(writeCtx, events.Event{
			Type:      events.AlertRaised,
			SessionID: sess.ID,
			Alert:     qa,
		})
	}

	e.config.score(&sess.Progress, pred.Label, row.Label, alert)
	e.advance(sess, row)
	return nil
}

func (e *Engine) advance(sess *domain.Session, row dataset.Row) {
	ts := row.Timestamp
	sess.RowsProcessed++
	sess.CurrentTimestamp = &ts
	sess.Percent = percent(sess.RowsProcessed, sess.TotalRows)
	metrics.RowReplayed()
}

// finish writes the worker's final state and releases its handle
func (e *Engine) finish(sess *domain.Session, status domain.Status, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.registry.Remove(sess.ID)

	sess.Status = status
	sess.ErrorMessage = msg
	if status.Terminal() {
		now := time.Now().UTC()
		sess.CompletedAt = &now
	}
	if status == domain.StatusCompleted && sess.TotalRows > 0 && sess.RowsProcessed == sess.TotalRows {
		sess.Percent = 100
	}

	if err := e.save(context.Background(), sess); err != nil {
		e.logger.Error("failed to persist final session state",
			zap.String("session_id", sess.ID),
			zap.String("status", string(status)),
			zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("session_id", sess.ID),
		zap.String("status", string(status)),
		zap.Int("rows_processed", sess.RowsProcessed),
		zap.Int("total_rows", sess.TotalRows),
	}
	switch status {
	case domain.StatusPaused:
		e.publish(events.SessionPaused, sess)
		e.logger.Info("simulation paused", fields...)
	case domain.StatusCompleted:
		metrics.SessionFinished(string(status))
		e.publish(events.SessionCompleted, sess)
		e.logger.Info("simulation completed", append(fields,
			zap.Int("alerts", sess.AlertsCount),
			zap.Float64("quality_score", sess.QualityScore))...)
	case domain.StatusError:
		metrics.SessionFinished(string(status))
		e.publish(events.SessionFailed, sess)
		e.logger.Error("simulation failed", append(fields, zap.String("error", msg))...)
	}
}

// signalled maps a cancelled scope to the state the worker must persist
func signalled(ctx context.Context) (domain.Status, bool) {
	if ctx.Err() == nil {
		return "", false
	}
	if errors.Is(context.Cause(ctx), errStop) {
		return domain.StatusCompleted, true
	}
	return domain.StatusPaused, true
}

func percent(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}
