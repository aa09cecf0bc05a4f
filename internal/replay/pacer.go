// internal/replay/pacer.go
package replay

import (
	"context"
	"time"
)

// Pacer spaces replayed rows in wall-clock time
type Pacer interface {
	// Wait blocks for d or until ctx is cancelled
	Wait(ctx context.Context, d time.Duration) error
}

// TimerPacer sleeps on a real timer
type TimerPacer struct{}

// Wait implements Pacer
func (TimerPacer) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Interval is the pause between rows at a given speed multiplier
func Interval(speed float64) time.Duration {
	if speed <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / speed)
}
