package consensus

// slotState holds the tally and certificates for one slot, and decides when
// thresholds are crossed. It also derives the local SafeToNotar/SafeToSkip
// vote-upgrade triggers, which are encoded here rather than re-derived by
// the pool (see DESIGN.md: this heuristic resolves an Open Question not
// settled by the retrieved source).
type slotState struct {
	slot  Slot
	tally *tally

	notar         *Cert
	notarFallback map[Hash]*Cert
	skip          *Cert
	fastFinal     *Cert
	final         *Cert

	// leadingHash is the hash of the first Notar vote ever admitted for
	// this slot, i.e. the block this slot is normally notarizing.
	// SafeToNotar must not fire for it: that threshold crossing is the
	// expected path to a Notar cert, not a byzantine-alternate upgrade.
	leadingHash *Hash

	safeToNotarFired map[Hash]bool
	safeToSkipFired  bool
}

func newSlotState(slot Slot) *slotState {
	return &slotState{
		slot:             slot,
		tally:            newTally(),
		notarFallback:    make(map[Hash]*Cert),
		safeToNotarFired: make(map[Hash]bool),
	}
}

// crossesThreshold reports stake*5 > total*numerator, the integer
// cross-multiplication form of stake/total > numerator/5 (60% -> 3/5,
// 40% -> 2/5, 80% -> 4/5), avoiding floating-point error entirely.
func crossesThreshold(stake, total Stake, numerator uint64) bool {
	if total == 0 {
		return false
	}
	return uint64(stake)*5 > uint64(total)*numerator
}

const (
	thresholdNumeratorNotar         = 3 // >60%
	thresholdNumeratorNotarFallback = 2 // >40%
	thresholdNumeratorSkip          = 3 // >60%
	thresholdNumeratorFastFinal     = 4 // >80%
	thresholdNumeratorFinal         = 3 // >60%
)

// admitOutcome carries what admitting one vote produced.
type admitOutcome struct {
	err    *PoolError
	certs  []Cert
	events []VotorEvent
}

// admit runs a vote through the tally, then evaluates whether any
// certificate thresholds were newly crossed and whether SafeToNotar/
// SafeToSkip should fire.
func (s *slotState) admit(v Vote, stake Stake, totalStake Stake) admitOutcome {
	res := s.tally.admit(v, stake)
	if res.offence != nil {
		return admitOutcome{err: errSlashable(res.offence)}
	}
	if res.duplicate {
		return admitOutcome{err: errDuplicate()}
	}

	if v.Kind == VoteNotar && s.leadingHash == nil {
		hash := v.Hash
		s.leadingHash = &hash
	}

	var out admitOutcome
	switch v.Kind {
	case VoteNotar:
		out.merge(s.checkNotar(v.Hash, totalStake))
		out.merge(s.checkSafeToNotar(v.Hash, totalStake))
		out.merge(s.checkFastFinal(v.Hash, totalStake))
	case VoteNotarFallback:
		out.merge(s.checkNotarFallback(v.Hash, totalStake))
		out.merge(s.checkSafeToNotar(v.Hash, totalStake))
	case VoteSkip, VoteSkipFallback:
		out.merge(s.checkSkip(totalStake))
		out.merge(s.checkSafeToSkip(totalStake))
	case VoteFinal:
		out.merge(s.checkFinal(totalStake))
	}
	return out
}

func (o *admitOutcome) merge(other admitOutcome) {
	o.certs = append(o.certs, other.certs...)
	o.events = append(o.events, other.events...)
}

func (s *slotState) checkNotar(hash Hash, total Stake) admitOutcome {
	if s.notar != nil {
		return admitOutcome{}
	}
	stake := s.tally.notarStake[hash]
	if !crossesThreshold(stake, total, thresholdNumeratorNotar) {
		return admitOutcome{}
	}
	signers, sigs := s.tally.signersFor(VoteNotar, hash)
	cert := Cert{Kind: CertNotar, Slot: s.slot, Hash: hash, Signers: signers, Sigs: sigs}
	s.notar = &cert
	return admitOutcome{
		certs:  []Cert{cert},
		events: []VotorEvent{evBlockNotarized(s.slot, hash)},
	}
}

func (s *slotState) checkNotarFallback(hash Hash, total Stake) admitOutcome {
	if _, ok := s.notarFallback[hash]; ok {
		return admitOutcome{}
	}
	// NotarFallback stake is Notar+NotarFallback combined on this hash.
	stake := s.tally.notarStake[hash] + s.tally.notarFallbackStake[hash]
	if !crossesThreshold(stake, total, thresholdNumeratorNotarFallback) {
		return admitOutcome{}
	}
	signers, sigs := s.tally.signersFor(VoteNotarFallback, hash)
	cert := Cert{Kind: CertNotarFallback, Slot: s.slot, Hash: hash, Signers: signers, Sigs: sigs}
	s.notarFallback[hash] = &cert
	return admitOutcome{certs: []Cert{cert}}
}

func (s *slotState) checkSkip(total Stake) admitOutcome {
	if s.skip != nil {
		return admitOutcome{}
	}
	if !crossesThreshold(s.tally.skipStake, total, thresholdNumeratorSkip) {
		return admitOutcome{}
	}
	signers, sigs := s.tally.signersFor(VoteSkip, Hash{})
	cert := Cert{Kind: CertSkip, Slot: s.slot, Signers: signers, Sigs: sigs}
	s.skip = &cert
	return admitOutcome{certs: []Cert{cert}}
}

func (s *slotState) checkFastFinal(hash Hash, total Stake) admitOutcome {
	if s.fastFinal != nil {
		return admitOutcome{}
	}
	stake := s.tally.notarStake[hash]
	if !crossesThreshold(stake, total, thresholdNumeratorFastFinal) {
		return admitOutcome{}
	}
	signers, sigs := s.tally.signersFor(VoteNotar, hash)
	cert := Cert{Kind: CertFastFinal, Slot: s.slot, Hash: hash, Signers: signers, Sigs: sigs}
	s.fastFinal = &cert
	return admitOutcome{certs: []Cert{cert}}
}

func (s *slotState) checkFinal(total Stake) admitOutcome {
	if s.final != nil {
		return admitOutcome{}
	}
	if s.notar == nil {
		// Final presupposes a Notar cert so the referent is unambiguous.
		return admitOutcome{}
	}
	if !crossesThreshold(s.tally.finalStake, total, thresholdNumeratorFinal) {
		return admitOutcome{}
	}
	signers, sigs := s.tally.signersFor(VoteFinal, Hash{})
	cert := Cert{Kind: CertFinal, Slot: s.slot, Signers: signers, Sigs: sigs}
	s.final = &cert
	return admitOutcome{certs: []Cert{cert}}
}

// checkSafeToNotar fires the first time some hash other than this slot's
// own leading Notar vote crosses the NotarFallback threshold — signalling
// it is now safe for a validator to cast a NotarFallback vote for an
// alternate block. It must never fire for the leading hash itself: that
// threshold crossing is the expected path to a plain Notar certificate.
func (s *slotState) checkSafeToNotar(hash Hash, total Stake) admitOutcome {
	if s.safeToNotarFired[hash] {
		return admitOutcome{}
	}
	if s.leadingHash != nil && *s.leadingHash == hash {
		return admitOutcome{}
	}
	stake := s.tally.notarStake[hash] + s.tally.notarFallbackStake[hash]
	if !crossesThreshold(stake, total, thresholdNumeratorNotarFallback) {
		return admitOutcome{}
	}
	s.safeToNotarFired[hash] = true
	return admitOutcome{events: []VotorEvent{evSafeToNotar(s.slot, hash)}}
}

// checkSafeToSkip fires the first time combined Skip+SkipFallback stake
// crosses the skip threshold while no Notar cert exists yet for the slot.
func (s *slotState) checkSafeToSkip(total Stake) admitOutcome {
	if s.safeToSkipFired || s.notar != nil {
		return admitOutcome{}
	}
	if !crossesThreshold(s.tally.skipStake, total, thresholdNumeratorSkip) {
		return admitOutcome{}
	}
	s.safeToSkipFired = true
	return admitOutcome{events: []VotorEvent{evSafeToSkip(s.slot)}}
}

// installCert installs an externally-validated certificate (received via
// add_cert or replayed from the durable store) into this slot state,
// without re-running threshold evaluation. Returns false if it was already
// present (idempotent re-add).
func (s *slotState) installCert(c Cert) bool {
	switch c.Kind {
	case CertNotar:
		if s.notar != nil {
			return false
		}
		cp := c
		s.notar = &cp
	case CertNotarFallback:
		if _, ok := s.notarFallback[c.Hash]; ok {
			return false
		}
		cp := c
		s.notarFallback[c.Hash] = &cp
	case CertSkip:
		if s.skip != nil {
			return false
		}
		cp := c
		s.skip = &cp
	case CertFastFinal:
		if s.fastFinal != nil {
			return false
		}
		cp := c
		s.fastFinal = &cp
	case CertFinal:
		if s.final != nil {
			return false
		}
		cp := c
		s.final = &cp
	}
	return true
}

// certs returns every certificate currently installed in this slot state.
func (s *slotState) certs() []Cert {
	var out []Cert
	if s.notar != nil {
		out = append(out, *s.notar)
	}
	for _, c := range s.notarFallback {
		out = append(out, *c)
	}
	if s.skip != nil {
		out = append(out, *s.skip)
	}
	if s.fastFinal != nil {
		out = append(out, *s.fastFinal)
	}
	if s.final != nil {
		out = append(out, *s.final)
	}
	return out
}

func (s *slotState) isNotarized() bool         { return s.notar != nil }
func (s *slotState) isNotarizedFallback() bool { return s.notar != nil || len(s.notarFallback) > 0 }
func (s *slotState) isSkipCertified() bool     { return s.skip != nil }
func (s *slotState) isFinalized() bool         { return s.fastFinal != nil || s.final != nil }
