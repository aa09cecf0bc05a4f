// internal/events/logger.go
package events

import (
	"context"

	"go.uber.org/zap"
)

// LogHandler writes every event to the structured log
func LogHandler(logger *zap.Logger) Handler {
	return func(ctx context.Context, event Event) error {
		fields := []zap.Field{
			zap.String("type", string(event.Type)),
			zap.String("session_id", event.SessionID),
		}
		if event.Session != nil {
			fields = append(fields,
				zap.String("status", string(event.Session.Status)),
				zap.Int("rows_processed", event.Session.RowsProcessed),
				zap.Int("total_rows", event.Session.TotalRows))
		}
		if event.Alert != nil {
			fields = append(fields,
				zap.String("severity", event.Alert.Severity),
				zap.Float64("confidence", event.Alert.Confidence))
		}
		logger.Debug("event", fields...)
		return nil
	}
}
