package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTally_DuplicateVoteIsIgnoredNotSlashable(t *testing.T) {
	tr := newTally()
	v := Vote{Kind: VoteNotar, Slot: 1, Hash: Hash{1}, Signer: 0, Signature: "sig-a"}

	res := tr.admit(v, 1)
	assert.False(t, res.duplicate)
	assert.Nil(t, res.offence)

	res = tr.admit(v, 1)
	assert.True(t, res.duplicate)
	assert.Nil(t, res.offence)
}

func TestTally_NotarThenNotarFallbackIsNotSlashable(t *testing.T) {
	tr := newTally()
	notar := Vote{Kind: VoteNotar, Slot: 1, Hash: Hash{1}, Signer: 0, Signature: "a"}
	fallback := Vote{Kind: VoteNotarFallback, Slot: 1, Hash: Hash{2}, Signer: 0, Signature: "b"}

	assert.Nil(t, tr.admit(notar, 1).offence)
	assert.Nil(t, tr.admit(fallback, 1).offence)
}

func TestTally_NotarDifferentHashIsSlashable(t *testing.T) {
	tr := newTally()
	first := Vote{Kind: VoteNotar, Slot: 1, Hash: Hash{1}, Signer: 0, Signature: "a"}
	second := Vote{Kind: VoteNotar, Slot: 1, Hash: Hash{2}, Signer: 0, Signature: "b"}

	assert.Nil(t, tr.admit(first, 1).offence)
	res := tr.admit(second, 1)
	if assert.NotNil(t, res.offence) {
		assert.Equal(t, OffenceNotarDifferentHash, res.offence.Offence)
	}
}

func TestTally_SkipAndNotarizeIsSlashableBothDirections(t *testing.T) {
	tr := newTally()
	notar := Vote{Kind: VoteNotar, Slot: 1, Hash: Hash{1}, Signer: 0, Signature: "a"}
	skip := Vote{Kind: VoteSkip, Slot: 1, Signer: 0, Signature: "b"}
	assert.Nil(t, tr.admit(notar, 1).offence)
	res := tr.admit(skip, 1)
	if assert.NotNil(t, res.offence) {
		assert.Equal(t, OffenceSkipAndNotarize, res.offence.Offence)
	}

	tr2 := newTally()
	assert.Nil(t, tr2.admit(skip, 1).offence)
	res2 := tr2.admit(notar, 1)
	if assert.NotNil(t, res2.offence) {
		assert.Equal(t, OffenceSkipAndNotarize, res2.offence.Offence)
	}
}

func TestTally_SkipAndFinalizeIsSlashable(t *testing.T) {
	tr := newTally()
	final := Vote{Kind: VoteFinal, Slot: 1, Signer: 0, Signature: "a"}
	skip := Vote{Kind: VoteSkip, Slot: 1, Signer: 0, Signature: "b"}
	assert.Nil(t, tr.admit(final, 1).offence)
	res := tr.admit(skip, 1)
	if assert.NotNil(t, res.offence) {
		assert.Equal(t, OffenceSkipAndFinalize, res.offence.Offence)
	}
}

func TestTally_NotarFallbackAndFinalizeIsSlashable(t *testing.T) {
	tr := newTally()
	fallback := Vote{Kind: VoteNotarFallback, Slot: 1, Hash: Hash{1}, Signer: 0, Signature: "a"}
	final := Vote{Kind: VoteFinal, Slot: 1, Signer: 0, Signature: "b"}
	assert.Nil(t, tr.admit(fallback, 1).offence)
	res := tr.admit(final, 1)
	if assert.NotNil(t, res.offence) {
		assert.Equal(t, OffenceNotarFallbackAndFinalize, res.offence.Offence)
	}
}

func TestTally_SkipFallbackAndNotarizeIsSlashable(t *testing.T) {
	tr := newTally()
	skipFallback := Vote{Kind: VoteSkipFallback, Slot: 1, Signer: 0, Signature: "a"}
	notar := Vote{Kind: VoteNotar, Slot: 1, Hash: Hash{1}, Signer: 0, Signature: "b"}
	assert.Nil(t, tr.admit(skipFallback, 1).offence)
	res := tr.admit(notar, 1)
	if assert.NotNil(t, res.offence) {
		assert.Equal(t, OffenceSkipAndNotarize, res.offence.Offence)
	}
}

func TestTally_FinalizeThenNotarFallbackIsSlashable(t *testing.T) {
	tr := newTally()
	final := Vote{Kind: VoteFinal, Slot: 1, Signer: 0, Signature: "a"}
	fallback := Vote{Kind: VoteNotarFallback, Slot: 1, Hash: Hash{1}, Signer: 0, Signature: "b"}
	assert.Nil(t, tr.admit(final, 1).offence)
	res := tr.admit(fallback, 1)
	if assert.NotNil(t, res.offence) {
		assert.Equal(t, OffenceNotarFallbackAndFinalize, res.offence.Offence)
	}
}

func TestTally_SkipStakeDedupsAcrossSkipAndSkipFallback(t *testing.T) {
	tr := newTally()
	skip := Vote{Kind: VoteSkip, Slot: 1, Signer: 0, Signature: "a"}
	fallback := Vote{Kind: VoteSkipFallback, Slot: 1, Signer: 0, Signature: "b"}
	tr.admit(skip, 7)
	assert.Equal(t, Stake(7), tr.skipStake)
	// same signer casting the fallback variant too must not double count stake.
	res := tr.admit(fallback, 7)
	assert.Nil(t, res.offence)
	assert.False(t, res.duplicate)
	assert.Equal(t, Stake(7), tr.skipStake)
}

func TestTally_SignersForNotarFallbackIncludesNotarVoters(t *testing.T) {
	tr := newTally()
	hash := Hash{9}
	notar := Vote{Kind: VoteNotar, Slot: 1, Hash: hash, Signer: 0, Signature: "a"}
	fallback := Vote{Kind: VoteNotarFallback, Slot: 1, Hash: hash, Signer: 1, Signature: "b"}
	tr.admit(notar, 1)
	tr.admit(fallback, 1)

	signers, sigs := tr.signersFor(VoteNotarFallback, hash)
	assert.ElementsMatch(t, Bitmap{0, 1}, signers)
	assert.Equal(t, "a", sigs[0])
	assert.Equal(t, "b", sigs[1])
}

func TestTally_OwnVotesCollectsEveryKindForSelf(t *testing.T) {
	tr := newTally()
	self := ValidatorId(2)
	tr.admit(Vote{Kind: VoteNotar, Slot: 1, Hash: Hash{1}, Signer: self, Signature: "a"}, 1)
	tr.admit(Vote{Kind: VoteFinal, Slot: 1, Signer: self, Signature: "b"}, 1)

	votes := tr.ownVotes(1, self)
	assert.Len(t, votes, 2)
}
