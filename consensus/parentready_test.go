package consensus

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func TestParentReadyTracker_MarkNotarFallbackMakesNextWindowReady(t *testing.T) {
	tr := newParentReadyTracker()
	hash := Hash{1}

	// Slot 11 is the last slot of its window, so its parent becomes ready
	// for the next window start immediately, no skip cert needed.
	triples := tr.markNotarFallback(11, hash)
	require.Len(t, triples, 1)
	assert.Equal(t, readyTriple{childSlot: 12, parentSlot: 11, parentHash: hash}, triples[0])
	assert.True(t, tr.isParentReady(12, 11, hash))
	assert.False(t, tr.isParentReady(13, 11, hash))
}

func TestParentReadyTracker_MarkSkippedExtendsAcrossWholeSkippedWindow(t *testing.T) {
	tr := newParentReadyTracker()
	hash := Hash{2}

	tr.markNotarFallback(11, hash)
	assert.True(t, tr.isParentReady(12, 11, hash))

	first := tr.markSkipped(12)
	assert.Empty(t, first, "only one slot of the next window is skipped so far")

	second := tr.markSkipped(13)
	require.Len(t, second, 1)
	assert.Equal(t, Slot(14), second[0].childSlot)
	assert.True(t, tr.isParentReady(14, 11, hash))
}

func TestParentReadyTracker_PendingEntryResolvesWhenRestOfWindowSkipped(t *testing.T) {
	tr := newParentReadyTracker()
	hash := Hash{3}

	// Slot 4 is a window start; its parent only becomes ready once the
	// rest of its own window (slot 5) is also skip-certified.
	pending := tr.markNotarFallback(4, hash)
	assert.Empty(t, pending)
	assert.False(t, tr.isParentReady(6, 4, hash))

	triples := tr.markSkipped(5)
	require.Len(t, triples, 1)
	assert.Equal(t, readyTriple{childSlot: 6, parentSlot: 4, parentHash: hash}, triples[0])
	assert.True(t, tr.isParentReady(6, 4, hash))
}

func TestParentReadyTracker_MarkSkippedIsIdempotent(t *testing.T) {
	tr := newParentReadyTracker()
	hash := Hash{3}
	tr.markNotarFallback(4, hash)

	first := tr.markSkipped(5)
	second := tr.markSkipped(5)

	assert.Len(t, first, 1)
	assert.Empty(t, second)
}

func TestParentReadyTracker_OutOfOrderCertArrivalConvergesToSameState(t *testing.T) {
	// Skip cert for slot 1 arrives before the notar cert for slot 0.
	a := newParentReadyTracker()
	a.markSkipped(1)
	a.markNotarFallback(0, Hash{4})

	// Same certs, reverse order.
	b := newParentReadyTracker()
	b.markNotarFallback(0, Hash{4})
	b.markSkipped(1)

	assert.True(t, a.isParentReady(2, 0, Hash{4}))
	assert.True(t, b.isParentReady(2, 0, Hash{4}))
}

func TestParentReadyTracker_ParentsReadySortedByParentSlot(t *testing.T) {
	tr := newParentReadyTracker()
	tr.markNotarFallback(3, Hash{5}) // window-end slot, ready for window 4 immediately
	tr.markNotarFallback(2, Hash{6}) // window-start slot, pending on slot 3 being skipped
	tr.markSkipped(3)

	parents := tr.parentsReady(4)
	require.Len(t, parents, 2)
	assert.True(t, parents[0].parentSlot < parents[1].parentSlot)
}
