package consensus

// tally accumulates per-kind, per-validator vote records for one slot and
// detects duplicates and slashable offences before admission. The shapes
// differ per kind: Notar/NotarFallback are keyed by hash (fallback allows
// several hashes per signer), Skip/SkipFallback/Final are unkeyed.
type tally struct {
	notar         map[ValidatorId]voteRecord            // at most one hash per signer
	notarFallback map[ValidatorId]map[Hash]voteRecord   // several hashes per signer
	skip          map[ValidatorId]voteRecord
	skipFallback  map[ValidatorId]voteRecord
	final         map[ValidatorId]voteRecord

	// stake sums of distinct signers, per (kind[, hash])
	notarStake         map[Hash]Stake
	notarFallbackStake map[Hash]Stake
	skipStake          Stake // Skip + SkipFallback combined, distinct signers
	finalStake         Stake

	skipSigners map[ValidatorId]struct{} // union of Skip/SkipFallback signers, for skipStake dedup
}

type voteRecord struct {
	hash Hash
	sig  string
}

func newTally() *tally {
	return &tally{
		notar:              make(map[ValidatorId]voteRecord),
		notarFallback:      make(map[ValidatorId]map[Hash]voteRecord),
		skip:               make(map[ValidatorId]voteRecord),
		skipFallback:       make(map[ValidatorId]voteRecord),
		final:              make(map[ValidatorId]voteRecord),
		notarStake:         make(map[Hash]Stake),
		notarFallbackStake: make(map[Hash]Stake),
		skipSigners:        make(map[ValidatorId]struct{}),
	}
}

// admitResult reports what happened when a vote was offered to the tally.
type admitResult struct {
	duplicate bool
	offence   *SlashableOffence
}

// admit applies the should-ignore and slashable-offence checks, then (if
// clear) records the vote and updates stake tallies.
func (t *tally) admit(v Vote, stake Stake) admitResult {
	if off := t.checkSlashable(v); off != nil {
		return admitResult{offence: off}
	}
	if t.isDuplicate(v) {
		return admitResult{duplicate: true}
	}
	t.record(v, stake)
	return admitResult{}
}

func (t *tally) isDuplicate(v Vote) bool {
	switch v.Kind {
	case VoteNotar:
		_, ok := t.notar[v.Signer]
		return ok
	case VoteNotarFallback:
		byHash, ok := t.notarFallback[v.Signer]
		if !ok {
			return false
		}
		_, ok = byHash[v.Hash]
		return ok
	case VoteSkip:
		_, ok := t.skip[v.Signer]
		return ok
	case VoteSkipFallback:
		_, ok := t.skipFallback[v.Signer]
		return ok
	case VoteFinal:
		_, ok := t.final[v.Signer]
		return ok
	}
	return false
}

func (t *tally) checkSlashable(v Vote) *SlashableOffence {
	switch v.Kind {
	case VoteNotar:
		if r, ok := t.notar[v.Signer]; ok && r.hash != v.Hash {
			return &SlashableOffence{Offence: OffenceNotarDifferentHash, Validator: v.Signer, Slot: v.Slot}
		}
		if _, ok := t.skip[v.Signer]; ok {
			return &SlashableOffence{Offence: OffenceSkipAndNotarize, Validator: v.Signer, Slot: v.Slot}
		}
		if _, ok := t.skipFallback[v.Signer]; ok {
			return &SlashableOffence{Offence: OffenceSkipAndNotarize, Validator: v.Signer, Slot: v.Slot}
		}
	case VoteNotarFallback:
		if _, ok := t.final[v.Signer]; ok {
			return &SlashableOffence{Offence: OffenceNotarFallbackAndFinalize, Validator: v.Signer, Slot: v.Slot}
		}
	case VoteSkip, VoteSkipFallback:
		if _, ok := t.notar[v.Signer]; ok {
			return &SlashableOffence{Offence: OffenceSkipAndNotarize, Validator: v.Signer, Slot: v.Slot}
		}
		if _, ok := t.final[v.Signer]; ok {
			return &SlashableOffence{Offence: OffenceSkipAndFinalize, Validator: v.Signer, Slot: v.Slot}
		}
	case VoteFinal:
		if _, ok := t.skip[v.Signer]; ok {
			return &SlashableOffence{Offence: OffenceSkipAndFinalize, Validator: v.Signer, Slot: v.Slot}
		}
		if _, ok := t.skipFallback[v.Signer]; ok {
			return &SlashableOffence{Offence: OffenceSkipAndFinalize, Validator: v.Signer, Slot: v.Slot}
		}
		if byHash, ok := t.notarFallback[v.Signer]; ok && len(byHash) > 0 {
			return &SlashableOffence{Offence: OffenceNotarFallbackAndFinalize, Validator: v.Signer, Slot: v.Slot}
		}
	}
	// Notar + NotarFallback from the same validator is explicitly not slashable.
	return nil
}

func (t *tally) record(v Vote, stake Stake) {
	rec := voteRecord{hash: v.Hash, sig: v.Signature}
	switch v.Kind {
	case VoteNotar:
		t.notar[v.Signer] = rec
		t.notarStake[v.Hash] += stake
	case VoteNotarFallback:
		byHash, ok := t.notarFallback[v.Signer]
		if !ok {
			byHash = make(map[Hash]voteRecord)
			t.notarFallback[v.Signer] = byHash
		}
		byHash[v.Hash] = rec
		t.notarFallbackStake[v.Hash] += stake
	case VoteSkip:
		t.skip[v.Signer] = rec
		t.addSkipStake(v.Signer, stake)
	case VoteSkipFallback:
		t.skipFallback[v.Signer] = rec
		t.addSkipStake(v.Signer, stake)
	case VoteFinal:
		t.final[v.Signer] = rec
		t.finalStake += stake
	}
}

func (t *tally) addSkipStake(signer ValidatorId, stake Stake) {
	if _, ok := t.skipSigners[signer]; ok {
		return
	}
	t.skipSigners[signer] = struct{}{}
	t.skipStake += stake
}

// signersFor returns the sorted signer bitmap and signatures for the given
// kind/hash, used when a threshold is first crossed and a certificate must
// be constructed.
func (t *tally) signersFor(kind VoteKind, hash Hash) (Bitmap, map[ValidatorId]string) {
	sigs := make(map[ValidatorId]string)
	ids := make(map[ValidatorId]struct{})
	switch kind {
	case VoteNotar:
		for id, r := range t.notar {
			if r.hash == hash {
				ids[id] = struct{}{}
				sigs[id] = r.sig
			}
		}
	case VoteNotarFallback:
		for id, byHash := range t.notarFallback {
			if r, ok := byHash[hash]; ok {
				ids[id] = struct{}{}
				sigs[id] = r.sig
			}
		}
		for id, r := range t.notar {
			if r.hash == hash {
				ids[id] = struct{}{}
				sigs[id] = r.sig
			}
		}
	case VoteSkip:
		for id, r := range t.skip {
			ids[id] = struct{}{}
			sigs[id] = r.sig
		}
		for id, r := range t.skipFallback {
			ids[id] = struct{}{}
			sigs[id] = r.sig
		}
	case VoteFinal:
		for id, r := range t.final {
			ids[id] = struct{}{}
			sigs[id] = r.sig
		}
	}
	return newBitmap(ids), sigs
}

// ownVotes returns every vote self cast in this slot, of any kind; it powers
// standstill recovery's "own votes" collection.
func (t *tally) ownVotes(slot Slot, self ValidatorId) []Vote {
	var out []Vote
	if r, ok := t.notar[self]; ok {
		out = append(out, Vote{Kind: VoteNotar, Slot: slot, Hash: r.hash, Signer: self, Signature: r.sig})
	}
	if byHash, ok := t.notarFallback[self]; ok {
		for h, r := range byHash {
			out = append(out, Vote{Kind: VoteNotarFallback, Slot: slot, Hash: h, Signer: self, Signature: r.sig})
		}
	}
	if r, ok := t.skip[self]; ok {
		out = append(out, Vote{Kind: VoteSkip, Slot: slot, Signer: self, Signature: r.sig})
	}
	if r, ok := t.skipFallback[self]; ok {
		out = append(out, Vote{Kind: VoteSkipFallback, Slot: slot, Signer: self, Signature: r.sig})
	}
	if r, ok := t.final[self]; ok {
		out = append(out, Vote{Kind: VoteFinal, Slot: slot, Signer: self, Signature: r.sig})
	}
	return out
}
