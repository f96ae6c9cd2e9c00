package consensus

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/alpenglow/storage"
)

// RepairRequest is a (slot, hash) tuple emitted opportunistically whenever
// an admitted vote carries a hash, consumed by the repair subsystem.
type RepairRequest struct {
	Slot Slot
	Hash Hash
}

type pendingChild struct {
	childSlot Slot
	childHash Hash
}

// Pool is the orchestrator: it routes votes/certs to slot states,
// propagates events, manages finalization, pruning, durable persistence,
// and standstill recovery. It is guarded by a single RWMutex: status
// queries take the read lock, add_vote/add_cert/add_block take the write
// lock.
type Pool struct {
	mu sync.RWMutex

	epoch      EpochInfo
	db         storage.DB
	blockstore Blockstore
	log        *zap.Logger
	metrics    *metrics

	slots              map[Slot]*slotState
	tracker            *parentReadyTracker
	parentsPendingCert map[parentEntry]pendingChild

	highestFinalizedSlot     Slot
	highestNotarFallbackSlot Slot

	events chan VotorEvent
	repair chan RepairRequest
}

// Options configures Pool construction.
type Options struct {
	EventChannelCapacity  int
	RepairChannelCapacity int
}

func (o Options) withDefaults() Options {
	if o.EventChannelCapacity <= 0 {
		o.EventChannelCapacity = 1024
	}
	if o.RepairChannelCapacity <= 0 {
		o.RepairChannelCapacity = 1024
	}
	return o
}

// New creates a pool backed by db, for the given epoch, replaying any
// certificates already durably stored. Any later emitted events are sent
// on the returned Pool's Events() channel.
func New(db storage.DB, epochInfo EpochInfo, blockstore Blockstore, opts Options) (*Pool, error) {
	opts = opts.withDefaults()
	log, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if blockstore == nil {
		blockstore = NoopBlockstore{}
	}
	p := &Pool{
		epoch:              epochInfo,
		db:                 db,
		blockstore:         blockstore,
		log:                log,
		metrics:            newMetrics(),
		slots:              make(map[Slot]*slotState),
		tracker:            newParentReadyTracker(),
		parentsPendingCert: make(map[parentEntry]pendingChild),
		events:             make(chan VotorEvent, opts.EventChannelCapacity),
		repair:             make(chan RepairRequest, opts.RepairChannelCapacity),
	}
	if err := p.loadFromStore(); err != nil {
		return nil, fmt.Errorf("load pool from store: %w", err)
	}
	return p, nil
}

// Events returns the outbound voter-facing event channel.
func (p *Pool) Events() <-chan VotorEvent { return p.events }

// Repair returns the outbound repair-request channel.
func (p *Pool) Repair() <-chan RepairRequest { return p.repair }

func (p *Pool) sendEvent(ev VotorEvent) {
	p.metrics.eventQueueDepth.Set(float64(len(p.events)))
	// A closed channel means the consumer (Votor) has died and the node
	// cannot make progress safely; per §5/§7 this is fatal, not retried.
	p.events <- ev
}

func (p *Pool) trySendEvent(ev VotorEvent) bool {
	select {
	case p.events <- ev:
		return true
	default:
		return false
	}
}

func (p *Pool) sendRepair(r RepairRequest) {
	p.repair <- r
}

func (p *Pool) slotState(slot Slot) *slotState {
	s, ok := p.slots[slot]
	if !ok {
		s = newSlotState(slot)
		p.slots[slot] = s
	}
	return s
}

func (p *Pool) inBounds(slot Slot) bool {
	if slot < p.highestFinalizedSlot {
		return false
	}
	if slot >= p.highestFinalizedSlot+2*SlotsPerEpoch {
		return false
	}
	return true
}

// AddVote admits a single vote, per §4.5 add_vote.
func (p *Pool) AddVote(v Vote) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inBounds(v.Slot) {
		return errOutOfBounds(fmt.Sprintf("slot %d", v.Slot))
	}

	if v.Kind.hasHash() {
		p.sendRepair(RepairRequest{Slot: v.Slot, Hash: v.Hash})
	}

	pub, ok := p.epoch.Pubkey(v.Signer)
	if !ok {
		return errInvalidSignature(fmt.Sprintf("unknown signer %d", v.Signer))
	}
	if err := v.Verify(pub); err != nil {
		return errInvalidSignature(err.Error())
	}

	stake, ok := p.epoch.Stake(v.Signer)
	if !ok {
		return errInvalidSignature(fmt.Sprintf("unknown signer %d", v.Signer))
	}

	outcome := p.slotState(v.Slot).admit(v, stake, p.epoch.TotalStake())
	if outcome.err != nil {
		if outcome.err.Kind == ErrSlashableVote {
			p.log.Warn("slashable offence", zap.String("offence", outcome.err.Offence.Error()))
			p.metrics.slashableOffences.WithLabelValues(outcome.err.Offence.Offence.String()).Inc()
		} else {
			p.log.Debug("duplicate vote", zap.Uint64("slot", uint64(v.Slot)), zap.Uint32("signer", uint32(v.Signer)))
		}
		return outcome.err
	}

	for _, c := range outcome.certs {
		p.addValidCert(c)
	}
	for _, ev := range outcome.events {
		p.sendEvent(ev)
	}
	return nil
}

// AddCert admits an externally-received certificate, per §4.5 add_cert.
func (p *Pool) AddCert(c Cert) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inBounds(c.Slot) {
		return errOutOfBounds(fmt.Sprintf("slot %d", c.Slot))
	}
	if err := c.Verify(p.epoch.Pubkey); err != nil {
		return errInvalidSignature(err.Error())
	}
	if p.isDuplicateCert(c) {
		return errDuplicate()
	}
	p.addValidCert(c)
	return nil
}

func (p *Pool) isDuplicateCert(c Cert) bool {
	s, ok := p.slots[c.Slot]
	if !ok {
		return false
	}
	switch c.Kind {
	case CertNotar:
		return s.notar != nil
	case CertNotarFallback:
		_, ok := s.notarFallback[c.Hash]
		return ok
	case CertSkip:
		return s.skip != nil
	case CertFastFinal:
		return s.fastFinal != nil
	case CertFinal:
		return s.final != nil
	}
	return false
}

// addValidCert performs the durable write, installation, and kind-dependent
// follow-up described in §4.5. The caller must hold p.mu.
func (p *Pool) addValidCert(c Cert) {
	if err := p.persistCert(c); err != nil {
		// Durable-store write failures are logged and swallowed: the
		// in-memory update still proceeds.
		p.log.Warn("durable cert write failed", zap.Error(err), zap.Uint64("slot", uint64(c.Slot)))
	}

	// Certs built from votes are already installed by the slot state that
	// built them, and AddCert rejects duplicates before calling here, so an
	// already-present cert does not stop the follow-up below.
	p.slotState(c.Slot).installCert(c)
	p.metrics.certsCreated.WithLabelValues(c.Kind.String()).Inc()

	switch c.Kind {
	case CertNotar, CertNotarFallback:
		p.log.Info("notarized(-fallback) block", zap.Uint64("slot", uint64(c.Slot)))
		if pending, ok := p.parentsPendingCert[parentEntry{parentSlot: c.Slot, parentHash: c.Hash}]; ok {
			delete(p.parentsPendingCert, parentEntry{parentSlot: c.Slot, parentHash: c.Hash})
			p.sendEvent(evSafeToNotar(pending.childSlot, pending.childHash))
		}
		for _, t := range p.tracker.markNotarFallback(c.Slot, c.Hash) {
			if t.childSlot > p.highestFinalizedSlot {
				p.sendEvent(evParentReady(t.childSlot, t.parentSlot, t.parentHash))
			}
		}
		if c.Slot > p.highestNotarFallbackSlot {
			p.highestNotarFallbackSlot = c.Slot
			p.metrics.highestNotarFallback.Set(float64(c.Slot))
		}

	case CertSkip:
		p.log.Warn("skipped slot", zap.Uint64("slot", uint64(c.Slot)))
		for _, t := range p.tracker.markSkipped(c.Slot) {
			if t.childSlot%SlotsPerWindow != 0 {
				panic(fmt.Sprintf("protocol invariant violated: parent-ready child slot %d not aligned on window boundary", t.childSlot))
			}
			p.sendEvent(evParentReady(t.childSlot, t.parentSlot, t.parentHash))
		}

	case CertFastFinal:
		p.log.Info("fast finalized slot", zap.Uint64("slot", uint64(c.Slot)))
		p.advanceFinalized(c.Slot)
		p.blockstore.TryMarkFinalized(c.Slot, time.Now().UnixNano())
		p.prune()

	case CertFinal:
		p.log.Info("slow finalized slot", zap.Uint64("slot", uint64(c.Slot)))
		p.advanceFinalized(c.Slot)
		p.blockstore.TryMarkFinalized(c.Slot, time.Now().UnixNano())
		p.prune()
	}

	p.sendEvent(evCertCreated(c))
}

func (p *Pool) advanceFinalized(slot Slot) {
	if slot > p.highestFinalizedSlot {
		p.highestFinalizedSlot = slot
		p.metrics.highestFinalized.Set(float64(slot))
	}
}

func (p *Pool) persistCert(c Cert) error {
	return p.db.Set(certKey(c.Slot, c.Kind), c.Encode())
}

// AddBlock registers that slot's block announced parentSlot/parentHash as
// its parent, per §4.5 add_block.
func (p *Pool) AddBlock(info BlockInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if parent, ok := p.slots[info.ParentSlot]; ok && parent.isNotarizedFallback() {
		// The parent is already certified: this block's own hash is safe to
		// notarize immediately, mirroring notify_parent_certified's
		// s2n_waiting_parent_cert resolution rather than asserting the
		// tracker's skip-chain ParentReady relationship directly.
		p.sendEvent(evSafeToNotar(info.Slot, info.Hash))
		return
	}
	p.parentsPendingCert[parentEntry{parentSlot: info.ParentSlot, parentHash: info.ParentHash}] = pendingChild{
		childSlot: info.Slot,
		childHash: info.Hash,
	}
}

// RecoverFromStandstill collects every certificate at slots >=
// highest_finalized_slot and every own vote at slots >=
// highest_finalized_slot+1, and emits a single Standstill event. It is a
// read-only snapshot operation: no pool state is mutated.
func (p *Pool) RecoverFromStandstill() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	slot := p.highestFinalizedSlot
	certs := p.certsFrom(slot)
	votes := p.ownVotesFrom(slot + 1)

	p.log.Warn("recovering from standstill", zap.Uint64("slot", uint64(slot)))
	p.log.Debug("re-broadcasting", zap.Int("certs", len(certs)), zap.Int("votes", len(votes)))

	// The event names last_finalized+1 so Votor discards it if progress
	// happened in the race window between the standstill check and here.
	p.sendEvent(evStandstill(slot+1, certs, votes))
}

func (p *Pool) certsFrom(slot Slot) []Cert {
	slots := p.sortedSlotsFrom(slot)
	var out []Cert
	for _, sl := range slots {
		s := p.slots[sl]
		if s.final != nil {
			out = append(out, *s.final)
		}
		if s.fastFinal != nil {
			out = append(out, *s.fastFinal)
		}
		if s.notar != nil {
			out = append(out, *s.notar)
		}
		for _, c := range s.notarFallback {
			out = append(out, *c)
		}
		if s.skip != nil {
			out = append(out, *s.skip)
		}
	}
	return out
}

func (p *Pool) ownVotesFrom(slot Slot) []Vote {
	own := p.epoch.OwnValidatorID()
	slots := p.sortedSlotsFrom(slot)
	var out []Vote
	for _, sl := range slots {
		out = append(out, p.slots[sl].tally.ownVotes(sl, own)...)
	}
	return out
}

func (p *Pool) sortedSlotsFrom(slot Slot) []Slot {
	out := make([]Slot, 0, len(p.slots))
	for sl := range p.slots {
		if sl >= slot {
			out = append(out, sl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// prune drops every slot state strictly below highestFinalizedSlot.
// parentsPendingCert entries are not explicitly pruned; they self-expire
// when the child slot's data is eventually pruned.
func (p *Pool) prune() {
	for slot := range p.slots {
		if slot < p.highestFinalizedSlot {
			delete(p.slots, slot)
		}
	}
}

// FinalizedSlot returns the highest slot finalized (fast or slow).
func (p *Pool) FinalizedSlot() Slot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.highestFinalizedSlot
}

// Tip returns the current chain tip for block production.
func (p *Pool) Tip() Slot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.highestNotarFallbackSlot
}

// IsFinalized reports whether slot has a Final or FastFinal certificate.
func (p *Pool) IsFinalized(slot Slot) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.slots[slot]
	return ok && s.isFinalized()
}

// IsNotarized reports whether slot has a Notar certificate.
func (p *Pool) IsNotarized(slot Slot) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.slots[slot]
	return ok && s.isNotarized()
}

// IsNotarizedFallback reports whether slot has a Notar or NotarFallback certificate.
func (p *Pool) IsNotarizedFallback(slot Slot) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.slots[slot]
	return ok && s.isNotarizedFallback()
}

// IsSkipCertified reports whether slot has a Skip certificate.
func (p *Pool) IsSkipCertified(slot Slot) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.slots[slot]
	return ok && s.isSkipCertified()
}

// IsParentReady reports whether (parentSlot, parentHash) is a ready parent for slot.
func (p *Pool) IsParentReady(slot Slot, parentSlot Slot, parentHash Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tracker.isParentReady(slot, parentSlot, parentHash)
}

// ParentReadyPair is one ready parent, exported for callers outside the package.
type ParentReadyPair struct {
	ParentSlot Slot
	ParentHash Hash
}

// ParentsReady returns every ready parent for slot, sorted by parent slot.
func (p *Pool) ParentsReady(slot Slot) []ParentReadyPair {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entries := p.tracker.parentsReady(slot)
	out := make([]ParentReadyPair, len(entries))
	for i, e := range entries {
		out[i] = ParentReadyPair{ParentSlot: e.parentSlot, ParentHash: e.parentHash}
	}
	return out
}

// SlotStatesLen returns the number of slots currently tracked, for testing/observability.
func (p *Pool) SlotStatesLen() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.slots)
}

const metaFinalSlotKey = "meta|final_slot"

// loadFromStore replays the durable store on construction: decoding every
// cert|* entry, recomputing cursors, discarding certs above the retained
// window, deleting stale keys, replaying retained certs, and deciding
// mid-window vs clean-boundary restart. The caller must hold no lock (this
// only runs during New, before the Pool is published).
func (p *Pool) loadFromStore() error {
	if val, err := p.db.Get([]byte(metaFinalSlotKey)); err == nil && len(val) == 8 {
		p.highestFinalizedSlot = Slot(binary.BigEndian.Uint64(val))
	}

	type rawCert struct {
		key  []byte
		cert Cert
	}
	var raw []rawCert
	var highestNotarFallback Slot

	it := p.db.NewIterator([]byte("cert|"))
	for it.Next() {
		key := append([]byte(nil), it.Key()...)
		val := it.Value()
		c, err := DecodeCert(val)
		if err != nil {
			p.log.Warn("skipping corrupt cert entry during reload", zap.Error(err))
			continue
		}
		switch c.Kind {
		case CertFastFinal, CertFinal:
			if c.Slot > p.highestFinalizedSlot {
				p.highestFinalizedSlot = c.Slot
			}
		case CertNotar, CertNotarFallback:
			if c.Slot > highestNotarFallback {
				highestNotarFallback = c.Slot
			}
		}
		raw = append(raw, rawCert{key: key, cert: c})
	}
	it.Release()
	if err := it.Error(); err != nil {
		return fmt.Errorf("iterate durable store: %w", err)
	}

	retainUpTo := p.highestFinalizedSlot
	if highestNotarFallback > retainUpTo {
		retainUpTo = highestNotarFallback
	}

	var retained []Cert
	for _, rc := range raw {
		if rc.cert.Slot <= retainUpTo {
			retained = append(retained, rc.cert)
			continue
		}
		if err := p.db.Delete(rc.key); err != nil {
			p.log.Warn("failed to delete stale cert key during reload", zap.Error(err))
		}
	}

	p.tracker = newParentReadyTracker()
	p.slots = make(map[Slot]*slotState)

	sort.Slice(retained, func(i, j int) bool {
		if retained[i].Slot != retained[j].Slot {
			return retained[i].Slot < retained[j].Slot
		}
		return retained[i].Kind < retained[j].Kind
	})

	for _, c := range retained {
		p.slotState(c.Slot).installCert(c)
		switch c.Kind {
		case CertNotar, CertNotarFallback:
			for _, t := range p.tracker.markNotarFallback(c.Slot, c.Hash) {
				if t.childSlot > p.highestFinalizedSlot {
					p.trySendEvent(evParentReady(t.childSlot, t.parentSlot, t.parentHash))
				}
			}
			if c.Slot > p.highestNotarFallbackSlot {
				p.highestNotarFallbackSlot = c.Slot
			}
		case CertSkip:
			for _, t := range p.tracker.markSkipped(c.Slot) {
				if t.childSlot > p.highestFinalizedSlot {
					p.trySendEvent(evParentReady(t.childSlot, t.parentSlot, t.parentHash))
				}
			}
		}
	}

	finalBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(finalBytes, uint64(p.highestFinalizedSlot))
	if err := p.db.Set([]byte(metaFinalSlotKey), finalBytes); err != nil {
		p.log.Warn("failed to persist meta|final_slot during reload", zap.Error(err))
	}

	windowEnd := WindowEnd(p.highestFinalizedSlot)
	if p.highestFinalizedSlot < windowEnd {
		p.log.Info("mid-window restart detected", zap.Uint64("final_slot", uint64(p.highestFinalizedSlot)))
		for slot := p.highestFinalizedSlot + 1; slot <= windowEnd; slot++ {
			p.trySendEvent(evTimeout(slot))
		}
	} else {
		p.log.Info("clean window-boundary restart", zap.Uint64("final_slot", uint64(p.highestFinalizedSlot)))
	}

	return nil
}
