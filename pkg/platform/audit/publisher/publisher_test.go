package publisher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "stagegate/pkg/platform/audit"
	"stagegate/pkg/platform/audit/store/memory"
	"stagegate/pkg/platform/circuit"
	"stagegate/pkg/requestcontext"
)

func botRecord(entity string) audit.TransitionRecord {
	return audit.TransitionRecord{
		EntityID:    entity,
		Domain:      audit.DomainBot,
		From:        "PAPER",
		To:          "SHADOW",
		Allowed:     true,
		TriggeredBy: "scheduler",
	}
}

// blockingSink holds every Append until release is closed.
type blockingSink struct {
	release chan struct{}
	calls   atomic.Int32
}

func (s *blockingSink) Append(ctx context.Context, _ audit.TransitionRecord) error {
	s.calls.Add(1)
	<-s.release
	return nil
}

// failingSink fails the first n Appends.
type failingSink struct {
	mu       sync.Mutex
	failures int
	inner    *memory.InMemoryStore
}

func (s *failingSink) Append(ctx context.Context, r audit.TransitionRecord) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("sink unavailable")
	}
	s.mu.Unlock()
	return s.inner.Append(ctx, r)
}

func TestPublisher_LogOnly(t *testing.T) {
	pub := New(audit.NewLog(10), nil)
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), botRecord("bot-1")))

	recent := pub.Recent(0)
	require.Len(t, recent, 1)
	assert.NotEmpty(t, recent[0].ID)
	assert.False(t, recent[0].Timestamp.IsZero())
}

func TestPublisher_DrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(audit.NewLog(100), store, WithQueueSize(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), botRecord("bot-1")))
	}
	require.NoError(t, pub.Close())

	records, err := store.ListByEntity(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.Len(t, records, 10, "all records should be drained on close")
}

func TestPublisher_QueueFullDropsWithoutBlocking(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	metrics := audit.NewMetrics(prometheus.NewRegistry())
	pub := New(audit.NewLog(100), sink, WithQueueSize(1), WithMetrics(metrics))

	var dropped int
	for range 10 {
		if err := pub.Emit(context.Background(), botRecord("bot-1")); errors.Is(err, ErrQueueFull) {
			dropped++
		}
	}

	assert.Positive(t, dropped)
	assert.Equal(t, float64(dropped), testutil.ToFloat64(metrics.QueueDropped))
	assert.Equal(t, 10, pub.Log().Len(), "dropped records stay in the log")

	close(sink.release)
	require.NoError(t, pub.Close())
}

func TestPublisher_FillsMetadataFromContext(t *testing.T) {
	pub := New(audit.NewLog(10), nil)
	defer pub.Close()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), at)
	ctx = requestcontext.WithRequestID(ctx, "req-42")

	require.NoError(t, pub.Emit(ctx, botRecord("bot-1")))

	got := pub.ForEntity("bot-1", 1)
	require.Len(t, got, 1)
	assert.Equal(t, at, got[0].Timestamp)
	assert.Equal(t, "req-42", got[0].RequestID)
}

func TestPublisher_PreservesExistingFields(t *testing.T) {
	pub := New(audit.NewLog(10), nil)
	defer pub.Close()

	custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := botRecord("bot-1")
	rec.ID = "fixed-id"
	rec.Timestamp = custom

	require.NoError(t, pub.Emit(context.Background(), rec))

	got := pub.Recent(1)
	require.Len(t, got, 1)
	assert.Equal(t, "fixed-id", got[0].ID)
	assert.Equal(t, custom, got[0].Timestamp)
}

func TestPublisher_RetriesTransientSinkFailure(t *testing.T) {
	sink := &failingSink{failures: 2, inner: memory.NewInMemoryStore()}
	pub := New(audit.NewLog(10), sink, WithRetry(100*time.Millisecond, 5*time.Second))

	require.NoError(t, pub.Emit(context.Background(), botRecord("bot-1")))
	require.NoError(t, pub.Close())

	records, err := sink.inner.ListByEntity(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestPublisher_OpenBreakerDropsRecords(t *testing.T) {
	sink := &failingSink{failures: 1000, inner: memory.NewInMemoryStore()}
	metrics := audit.NewMetrics(prometheus.NewRegistry())
	breaker := circuit.New("audit-sink", circuit.WithFailureThreshold(1), circuit.WithProbeInterval(time.Hour))
	pub := New(audit.NewLog(10), sink,
		WithBreaker(breaker),
		WithMetrics(metrics),
		WithRetry(10*time.Millisecond, 20*time.Millisecond),
	)

	for range 3 {
		require.NoError(t, pub.Emit(context.Background(), botRecord("bot-1")))
	}
	require.NoError(t, pub.Close())

	assert.True(t, breaker.IsOpen())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SinkFailures))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.BreakerDropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BreakerState))
	assert.Equal(t, 3, pub.Log().Len())
}

func TestPublisher_EmitAfterCloseIsSafe(t *testing.T) {
	pub := New(audit.NewLog(10), memory.NewInMemoryStore())
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())

	assert.NoError(t, pub.Emit(context.Background(), botRecord("bot-1")))
	assert.Equal(t, 1, pub.Log().Len())
}
