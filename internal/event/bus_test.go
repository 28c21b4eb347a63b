package event

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	events, unsubscribe := bus.Subscribe()

	bus.Publish(Event{Type: TypeLoginFailed, Reason: ReasonWrongPassword})

	select {
	case e := <-events:
		assert.Equal(t, TypeLoginFailed, e.Type)
		assert.NotEmpty(t, e.ID)
		assert.NotEmpty(t, e.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	unsubscribe()
	_, open := <-events
	assert.False(t, open)

	// publishing without subscribers is a no-op
	bus.Publish(Event{Type: TypeLoginSucceeded})
}

func TestInMemoryBus_DropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	_, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	var mu sync.Mutex
	dropped := 0
	bus.OnDrop(func(Event) {
		mu.Lock()
		dropped++
		mu.Unlock()
	})

	for i := 0; i < 105; i++ {
		bus.Publish(Event{Type: TypeUserRegistered})
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, dropped)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type memoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *memoryRecorder) Record(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memoryRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, Event) error {
	return errors.New("db down")
}

func TestRunAuditLog_RecorderFailureIsLogged(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(out, nil))
	bus := NewBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunAuditLog(ctx, bus, logger, failingRecorder{})

	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	bus.Publish(Event{Type: TypeUserRegistered, ActorID: "u-1"})

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "audit event not persisted")
	}, time.Second, 5*time.Millisecond)
}

func TestRunAuditLog(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(out, nil))
	bus := NewBus()
	recorder := &memoryRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunAuditLog(ctx, bus, logger, recorder)
		close(done)
	}()

	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	bus.Publish(Event{Type: TypeLoginFailed, Email: "a@x.com", Reason: ReasonUnknownEmail})
	bus.Publish(Event{Type: TypeLoginSucceeded, ActorID: "u-1"})

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "\n") == 2 && recorder.len() == 2
	}, time.Second, 5*time.Millisecond)

	logged := out.String()
	assert.Contains(t, logged, `"level":"WARN"`)
	assert.Contains(t, logged, `"reason":"unknown_email"`)
	assert.Contains(t, logged, `"user_id":"u-1"`)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("audit log did not stop")
	}
}
