package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "stagegate/pkg/platform/audit"
	"stagegate/pkg/platform/circuit"
)

type scriptedSink struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	stored    []audit.TransitionRecord
}

func (s *scriptedSink) Append(_ context.Context, r audit.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return errors.New("sink unavailable")
	}
	s.stored = append(s.stored, r)
	return nil
}

func (s *scriptedSink) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFirst = 0
}

func drain(w *Worker, inbox chan audit.TransitionRecord, records ...audit.TransitionRecord) {
	for _, r := range records {
		inbox <- r
	}
	close(inbox)
	w.Run()
}

func rec(id string) audit.TransitionRecord {
	return audit.TransitionRecord{ID: id, EntityID: "bot-1", Domain: audit.DomainBot}
}

func TestWorker_RetriesUntilDelivered(t *testing.T) {
	sink := &scriptedSink{failFirst: 2}
	inbox := make(chan audit.TransitionRecord, 1)
	w := NewWorker(sink, inbox, WithRetry(100*time.Millisecond, 5*time.Second))

	drain(w, inbox, rec("r-1"))

	assert.Equal(t, 3, sink.calls)
	require.Len(t, sink.stored, 1)
	assert.Equal(t, "r-1", sink.stored[0].ID)
}

func TestWorker_OpenCircuitDropsRecords(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	breaker := circuit.New("audit-sink",
		circuit.WithFailureThreshold(2),
		circuit.WithProbeInterval(time.Hour),
		circuit.WithClock(clock),
	)
	metrics := audit.NewMetrics(prometheus.NewRegistry())
	sink := &scriptedSink{failFirst: 1 << 30}

	inbox := make(chan audit.TransitionRecord, 4)
	w := NewWorker(sink, inbox,
		WithBreaker(breaker),
		WithMetrics(metrics),
		WithRetry(5*time.Millisecond, 20*time.Millisecond),
	)
	drain(w, inbox, rec("r-1"), rec("r-2"), rec("r-3"), rec("r-4"))

	assert.True(t, breaker.IsOpen())
	assert.Empty(t, sink.stored)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SinkFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BreakerDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BreakerState))

	t.Run("a probe after the interval closes the circuit", func(t *testing.T) {
		sink.heal()
		now = now.Add(2 * time.Hour)

		inbox := make(chan audit.TransitionRecord, 1)
		w := NewWorker(sink, inbox, WithBreaker(breaker), WithMetrics(metrics))
		drain(w, inbox, rec("r-5"))

		assert.False(t, breaker.IsOpen())
		require.Len(t, sink.stored, 1)
		assert.Equal(t, "r-5", sink.stored[0].ID)
		assert.Equal(t, 0.0, testutil.ToFloat64(metrics.BreakerState))
	})
}
