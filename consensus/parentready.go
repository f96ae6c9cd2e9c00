package consensus

import "sort"

// parentEntry identifies one (parentSlot, parentHash) candidate.
type parentEntry struct {
	parentSlot Slot
	parentHash Hash
}

// readyTriple is one newly-enabled (childSlot, parentSlot, parentHash)
// relationship, as returned by markNotarFallback/markSkipped. childSlot is
// always aligned on a SlotsPerWindow boundary: ParentReady only matters at
// the start of a leader window, since within a window the same leader just
// keeps building on their own prior block.
type readyTriple struct {
	childSlot  Slot
	parentSlot Slot
	parentHash Hash
}

// parentReadyTracker is the cross-slot DAG described in DESIGN.md:
// ParentReady(windowStart, parentSlot, parentHash) holds iff the parent is
// at least notar-fallback certified and every slot in (parentSlot,
// windowStart) is skip-certified. A candidate parent that is not the last
// slot of its own window waits in pending until the rest of that window is
// skip-certified, so it can only ever surface at a window boundary.
type parentReadyTracker struct {
	ready   map[Slot]map[parentEntry]struct{} // keyed by window-start slot only
	skipped map[Slot]struct{}
	pending map[Slot][]parentEntry // keyed by WindowStart(parentSlot)
}

func newParentReadyTracker() *parentReadyTracker {
	return &parentReadyTracker{
		ready:   make(map[Slot]map[parentEntry]struct{}),
		skipped: make(map[Slot]struct{}),
		pending: make(map[Slot][]parentEntry),
	}
}

func nextWindowStart(slot Slot) Slot {
	return WindowStart(slot) + SlotsPerWindow
}

func (t *parentReadyTracker) isSkipped(slot Slot) bool {
	_, ok := t.skipped[slot]
	return ok
}

// restOfWindowSkipped reports whether every slot after p within p's own
// window is skip-certified (vacuously true when p is already its window's
// last slot).
func (t *parentReadyTracker) restOfWindowSkipped(p Slot) bool {
	for s := p + 1; s <= WindowEnd(p); s++ {
		if !t.isSkipped(s) {
			return false
		}
	}
	return true
}

// windowFullySkipped reports whether every slot of the window starting at
// windowStart is skip-certified.
func (t *parentReadyTracker) windowFullySkipped(windowStart Slot) bool {
	for s := windowStart; s < windowStart+SlotsPerWindow; s++ {
		if !t.isSkipped(s) {
			return false
		}
	}
	return true
}

func (t *parentReadyTracker) addReady(windowStart Slot, entry parentEntry) bool {
	set, ok := t.ready[windowStart]
	if !ok {
		set = make(map[parentEntry]struct{})
		t.ready[windowStart] = set
	}
	if _, exists := set[entry]; exists {
		return false
	}
	set[entry] = struct{}{}
	return true
}

// extendChain registers entry as ready starting at windowStart, and keeps
// advancing by whole windows as long as each successive window is already
// fully skip-certified.
func (t *parentReadyTracker) extendChain(windowStart Slot, entry parentEntry) []readyTriple {
	var out []readyTriple
	cur := windowStart
	for {
		if t.addReady(cur, entry) {
			out = append(out, readyTriple{childSlot: cur, parentSlot: entry.parentSlot, parentHash: entry.parentHash})
		}
		if !t.windowFullySkipped(cur) {
			break
		}
		cur += SlotsPerWindow
	}
	return out
}

// markNotarFallback records that (slot, hash) is now at least notar-fallback
// certified, and returns the newly enabled (childSlot, parentSlot,
// parentHash) triples this makes ready. If slot is not the last slot of its
// own window, the entry is held pending until the remainder of that window
// is skip-certified.
func (t *parentReadyTracker) markNotarFallback(slot Slot, hash Hash) []readyTriple {
	entry := parentEntry{parentSlot: slot, parentHash: hash}
	if t.restOfWindowSkipped(slot) {
		out := t.extendChain(nextWindowStart(slot), entry)
		sortTriples(out)
		return out
	}
	ws := WindowStart(slot)
	t.pending[ws] = append(t.pending[ws], entry)
	return nil
}

// markSkipped records that slot is now skip-certified, and returns the
// newly enabled triples this makes ready, in ascending (childSlot,
// parentSlot) order.
func (t *parentReadyTracker) markSkipped(slot Slot) []readyTriple {
	if t.isSkipped(slot) {
		return nil
	}
	t.skipped[slot] = struct{}{}

	var out []readyTriple
	ws := WindowStart(slot)

	if pending := t.pending[ws]; len(pending) > 0 {
		var remaining []parentEntry
		for _, entry := range pending {
			if t.restOfWindowSkipped(entry.parentSlot) {
				out = append(out, t.extendChain(nextWindowStart(entry.parentSlot), entry)...)
			} else {
				remaining = append(remaining, entry)
			}
		}
		if len(remaining) > 0 {
			t.pending[ws] = remaining
		} else {
			delete(t.pending, ws)
		}
	}

	if t.windowFullySkipped(ws) {
		entries := make([]parentEntry, 0, len(t.ready[ws]))
		for entry := range t.ready[ws] {
			entries = append(entries, entry)
		}
		for _, entry := range entries {
			out = append(out, t.extendChain(ws+SlotsPerWindow, entry)...)
		}
	}

	sortTriples(out)
	return out
}

// parentsReady returns the sorted (by parentSlot) list of parents currently
// ready for childSlot.
func (t *parentReadyTracker) parentsReady(childSlot Slot) []parentEntry {
	set := t.ready[childSlot]
	out := make([]parentEntry, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].parentSlot < out[j].parentSlot })
	return out
}

func (t *parentReadyTracker) isParentReady(childSlot Slot, parentSlot Slot, parentHash Hash) bool {
	_, ok := t.ready[childSlot][parentEntry{parentSlot: parentSlot, parentHash: parentHash}]
	return ok
}

func sortTriples(triples []readyTriple) {
	sort.Slice(triples, func(i, j int) bool {
		if triples[i].childSlot != triples[j].childSlot {
			return triples[i].childSlot < triples[j].childSlot
		}
		return triples[i].parentSlot < triples[j].parentSlot
	})
}
