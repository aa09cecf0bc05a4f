// internal/events/events.go
package events

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/FairForge/intellinspect/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrClosed is returned when publishing on a closed bus
var ErrClosed = errors.New("events: bus closed")

// EventType categorizes events
type EventType string

const (
	SessionStarted   EventType = "session.started"
	SessionProgress  EventType = "session.progress"
	SessionPaused    EventType = "session.paused"
	SessionResumed   EventType = "session.resumed"
	SessionCompleted EventType = "session.completed"
	SessionFailed    EventType = "session.failed"
	AlertRaised      EventType = "alert.raised"
)

// Event represents something that happened to a session
type Event struct {
	ID        string               `json:"id"`
	Type      EventType            `json:"type"`
	SessionID string               `json:"session_id"`
	Timestamp time.Time            `json:"timestamp"`
	Session   *domain.Snapshot     `json:"session,omitempty"`
	Alert     *domain.QualityAlert `json:"alert,omitempty"`
}

// Handler processes events
type Handler func(ctx context.Context, event Event) error

// Publisher is what producers need
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus is an in-memory event bus. Handlers run on one dispatcher goroutine,
// so every subscriber sees events in publish order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler

	buffer chan Event
	done   chan struct{}
	closed bool
	logger *zap.Logger
}

// NewBus creates a bus and starts its dispatcher
func NewBus(logger *zap.Logger) *Bus {
	b := &Bus{
		handlers: make(map[string][]Handler),
		buffer:   make(chan Event, 1000),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go b.process()
	return b
}

// Publish queues an event. A full buffer drops the event rather than block a replay worker.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	select {
	case b.buffer <- event:
	default:
		b.logger.Warn("event buffer full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("session_id", event.SessionID))
	}
	return nil
}

// Subscribe registers a handler for an exact type, a "prefix.*" pattern or "*"
func (b *Bus) Subscribe(pattern string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[pattern] = append(b.handlers[pattern], handler)
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.buffer)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) process() {
	defer close(b.done)
	for event := range b.buffer {
		b.mu.RLock()
		var targets []Handler
		for pattern, handlers := range b.handlers {
			if matchesPattern(string(event.Type), pattern) {
				targets = append(targets, handlers...)
			}
		}
		b.mu.RUnlock()

		for _, handler := range targets {
			if err := handler(context.Background(), event); err != nil {
				b.logger.Warn("event handler failed",
					zap.String("type", string(event.Type)),
					zap.String("session_id", event.SessionID),
					zap.Error(err))
			}
		}
	}
}

func matchesPattern(eventType, pattern string) bool {
	if pattern == "*" || eventType == pattern {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(eventType, prefix+".")
	}
	return false
}
