// internal/events/events_test.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/FairForge/intellinspect/internal/domain"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var (
		mu       sync.Mutex
		all      []EventType
		sessions []EventType
		alerts   []EventType
	)
	record := func(dst *[]EventType) Handler {
		return func(ctx context.Context, e Event) error {
			mu.Lock()
			defer mu.Unlock()
			*dst = append(*dst, e.Type)
			return nil
		}
	}
	require.NoError(t, bus.Subscribe("*", record(&all)))
	require.NoError(t, bus.Subscribe("session.*", record(&sessions)))
	require.NoError(t, bus.Subscribe(string(AlertRaised), record(&alerts)))

	ctx := context.Background()
	for _, typ := range []EventType{SessionStarted, AlertRaised, SessionProgress, SessionCompleted} {
		require.NoError(t, bus.Publish(ctx, Event{Type: typ, SessionID: "s1"}))
	}
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventType{SessionStarted, AlertRaised, SessionProgress, SessionCompleted}, all)
	assert.Equal(t, []EventType{SessionStarted, SessionProgress, SessionCompleted}, sessions)
	assert.Equal(t, []EventType{AlertRaised}, alerts)
}

func TestBus_PublishStampsEvents(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []Event
	require.NoError(t, bus.Subscribe("*", func(ctx context.Context, e Event) error {
		got = append(got, e)
		return nil
	}))

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Now().UTC()
	require.NoError(t, bus.Publish(context.Background(), Event{Type: SessionStarted}))
	require.NoError(t, bus.Publish(context.Background(), Event{ID: "fixed", Type: SessionPaused, Timestamp: at}))
	bus.Close()

	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.Before(before))
	assert.Equal(t, "fixed", got[1].ID)
	assert.Equal(t, at, got[1].Timestamp)
}

func TestBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(zap.NewNop())

	calls := 0
	require.NoError(t, bus.Subscribe("*", func(ctx context.Context, e Event) error {
		calls++
		return errors.New("downstream unavailable")
	}))
	require.NoError(t, bus.Publish(context.Background(), Event{Type: SessionStarted}))
	require.NoError(t, bus.Publish(context.Background(), Event{Type: SessionPaused}))
	bus.Close()

	assert.Equal(t, 2, calls)
}

func TestMatchesPattern(t *testing.T) {
	assert.True(t, matchesPattern("session.paused", "*"))
	assert.True(t, matchesPattern("session.paused", "session.*"))
	assert.True(t, matchesPattern("session.paused", "session.paused"))
	assert.False(t, matchesPattern("alert.raised", "session.*"))
	assert.False(t, matchesPattern("sessions.x", "session.*"))
}

type fakeRedis struct {
	channels []string
	messages [][]byte
	err      error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channels = append(f.channels, channel)
	f.messages = append(f.messages, message.([]byte))
	return redis.NewIntResult(1, f.err)
}

func TestRedisForwarder_Handle(t *testing.T) {
	t.Run("publishes on session channel", func(t *testing.T) {
		fake := &fakeRedis{}
		fwd := NewForwarder(fake, "plant", zap.NewNop())

		snap := domain.Snapshot{Session: domain.Session{ID: "s1", Status: domain.StatusRunning}}
		require.NoError(t, fwd.Handle(context.Background(), Event{Type: SessionProgress, SessionID: "s1", Session: &snap}))

		require.Len(t, fake.channels, 1)
		assert.Equal(t, "plant:s1", fake.channels[0])

		var decoded Event
		require.NoError(t, json.Unmarshal(fake.messages[0], &decoded))
		assert.Equal(t, SessionProgress, decoded.Type)
		require.NotNil(t, decoded.Session)
		assert.Equal(t, domain.StatusRunning, decoded.Session.Status)
	})

	t.Run("default prefix", func(t *testing.T) {
		fwd := NewForwarder(&fakeRedis{}, "", zap.NewNop())
		assert.Equal(t, "intellinspect:abc", fwd.Channel("abc"))
	})

	t.Run("publish failure", func(t *testing.T) {
		fwd := NewForwarder(&fakeRedis{err: errors.New("conn refused")}, "p", zap.NewNop())
		assert.Error(t, fwd.Handle(context.Background(), Event{Type: SessionStarted, SessionID: "s1"}))
	})
}
