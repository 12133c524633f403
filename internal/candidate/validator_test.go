package candidate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stagegate/internal/lifecycle"
	dErrors "stagegate/pkg/domain-errors"
)

type edge struct{ from, to lifecycle.Disposition }

func allowedEdges() map[edge]bool {
	out := map[edge]bool{}
	add := func(from lifecycle.Disposition, tos ...lifecycle.Disposition) {
		for _, to := range tos {
			out[edge{from, to}] = true
		}
	}
	add(lifecycle.DispositionPendingReview, lifecycle.DispositionQueued, lifecycle.DispositionQueuedForQC,
		lifecycle.DispositionSentToLab, lifecycle.DispositionRejected, lifecycle.DispositionExpired)
	add(lifecycle.DispositionQueued, lifecycle.DispositionQueuedForQC, lifecycle.DispositionSentToLab,
		lifecycle.DispositionRejected, lifecycle.DispositionExpired, lifecycle.DispositionReady)
	add(lifecycle.DispositionQueuedForQC, lifecycle.DispositionSentToLab, lifecycle.DispositionReady,
		lifecycle.DispositionRejected, lifecycle.DispositionExpired)
	add(lifecycle.DispositionReady, lifecycle.DispositionSentToLab, lifecycle.DispositionQueuedForQC,
		lifecycle.DispositionRejected, lifecycle.DispositionExpired, lifecycle.DispositionMerged)
	add(lifecycle.DispositionSentToLab, lifecycle.DispositionMerged, lifecycle.DispositionRejected,
		lifecycle.DispositionRecycled)
	add(lifecycle.DispositionExpired, lifecycle.DispositionRecycled)
	add(lifecycle.DispositionRecycled, lifecycle.DispositionPendingReview, lifecycle.DispositionQueued)
	return out
}

func TestValidateAdjacencyGrid(t *testing.T) {
	allowed := allowedEdges()
	for _, from := range lifecycle.AllDispositions() {
		for _, to := range lifecycle.AllDispositions() {
			d := Validate(from, to)
			if from == to || allowed[edge{from, to}] {
				assert.True(t, d.Allowed, "%s → %s should be allowed", from, to)
				continue
			}
			assert.False(t, d.Allowed, "%s → %s should be rejected", from, to)
			assert.NotEmpty(t, d.Code)
		}
	}
}

func TestTerminalDispositions(t *testing.T) {
	for _, d := range lifecycle.AllDispositions() {
		want := d == lifecycle.DispositionRejected || d == lifecycle.DispositionMerged
		assert.Equal(t, want, IsTerminal(d), d)
	}

	for _, from := range []lifecycle.Disposition{lifecycle.DispositionRejected, lifecycle.DispositionMerged} {
		for _, to := range lifecycle.AllDispositions() {
			if to == from {
				continue
			}
			d := Validate(from, to)
			assert.False(t, d.Allowed)
			assert.Equal(t, dErrors.CodeTerminalState, d.Code)
		}
	}
}

func TestRecycledReentry(t *testing.T) {
	for _, to := range lifecycle.AllDispositions() {
		d := Validate(lifecycle.DispositionRecycled, to)
		switch to {
		case lifecycle.DispositionRecycled, lifecycle.DispositionPendingReview, lifecycle.DispositionQueued:
			assert.True(t, d.Allowed, to)
		default:
			assert.False(t, d.Allowed, to)
			assert.Contains(t, d.Reason, "PENDING_REVIEW, QUEUED")
		}
	}
}

func TestUnknownDisposition(t *testing.T) {
	d := Validate(lifecycle.DispositionQueued, lifecycle.Disposition("ARCHIVED"))
	assert.False(t, d.Allowed)
	assert.Equal(t, dErrors.CodeValidationRejected, d.Code)
	assert.False(t, IsTerminal(lifecycle.Disposition("ARCHIVED")))
}
