package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const elevenValidatorsTotalStake = Stake(11)

func admitN(t *testing.T, s *slotState, kind VoteKind, slot Slot, hash Hash, from, to int, total Stake) admitOutcome {
	t.Helper()
	var merged admitOutcome
	for i := from; i < to; i++ {
		out := s.admit(Vote{Kind: kind, Slot: slot, Hash: hash, Signer: ValidatorId(i), Signature: "s"}, 1, total)
		require.Nil(t, out.err)
		merged.merge(out)
	}
	return merged
}

func TestSlotState_NotarCertAtSevenOfEleven(t *testing.T) {
	s := newSlotState(1)
	hash := Hash{1}

	out := admitN(t, s, VoteNotar, 1, hash, 0, 6, elevenValidatorsTotalStake)
	assert.Empty(t, out.certs, "6/11 must not cross 60%%")

	out = admitN(t, s, VoteNotar, 1, hash, 6, 7, elevenValidatorsTotalStake)
	require.Len(t, out.certs, 1)
	assert.Equal(t, CertNotar, out.certs[0].Kind)
	assert.True(t, s.isNotarized())
}

func TestSlotState_FastFinalAtNineOfEleven(t *testing.T) {
	s := newSlotState(1)
	hash := Hash{1}

	admitN(t, s, VoteNotar, 1, hash, 0, 7, elevenValidatorsTotalStake)
	assert.True(t, s.isNotarized())
	assert.Nil(t, s.fastFinal)

	out := admitN(t, s, VoteNotar, 1, hash, 7, 9, elevenValidatorsTotalStake)
	var sawFastFinal bool
	for _, c := range out.certs {
		if c.Kind == CertFastFinal {
			sawFastFinal = true
		}
	}
	assert.True(t, sawFastFinal)
}

func TestSlotState_SkipCertAtSevenOfEleven(t *testing.T) {
	s := newSlotState(1)
	admitN(t, s, VoteSkip, 1, Hash{}, 0, 6, elevenValidatorsTotalStake)
	assert.False(t, s.isSkipCertified())

	out := admitN(t, s, VoteSkip, 1, Hash{}, 6, 7, elevenValidatorsTotalStake)
	require.Len(t, out.certs, 1)
	assert.Equal(t, CertSkip, out.certs[0].Kind)
}

func TestSlotState_FinalRequiresPriorNotarCert(t *testing.T) {
	s := newSlotState(1)
	// Final votes alone, without ever reaching a Notar cert, must not
	// produce a Final certificate even past the 60% threshold.
	out := admitN(t, s, VoteFinal, 1, Hash{}, 0, 11, elevenValidatorsTotalStake)
	for _, c := range out.certs {
		assert.NotEqual(t, CertFinal, c.Kind)
	}
	assert.Nil(t, s.final)
}

func TestSlotState_FinalAfterNotarCert(t *testing.T) {
	s := newSlotState(1)
	hash := Hash{1}
	admitN(t, s, VoteNotar, 1, hash, 0, 7, elevenValidatorsTotalStake)
	require.True(t, s.isNotarized())

	out := admitN(t, s, VoteFinal, 1, Hash{}, 0, 7, elevenValidatorsTotalStake)
	var sawFinal bool
	for _, c := range out.certs {
		if c.Kind == CertFinal {
			sawFinal = true
		}
	}
	assert.True(t, sawFinal)
}

func TestSlotState_NotarFallbackCrossesAtFortyPercent(t *testing.T) {
	s := newSlotState(1)
	hash := Hash{1}
	out := admitN(t, s, VoteNotarFallback, 1, hash, 0, 4, elevenValidatorsTotalStake)
	assert.Empty(t, out.certs)

	out = admitN(t, s, VoteNotarFallback, 1, hash, 4, 5, elevenValidatorsTotalStake)
	require.Len(t, out.certs, 1)
	assert.Equal(t, CertNotarFallback, out.certs[0].Kind)
}

func TestSlotState_SafeToNotarFiresOnceForAlternateHash(t *testing.T) {
	s := newSlotState(1)
	own := Hash{1}
	other := Hash{2}
	admitN(t, s, VoteNotar, 1, own, 0, 7, elevenValidatorsTotalStake)
	require.True(t, s.isNotarized())

	out := admitN(t, s, VoteNotarFallback, 1, other, 0, 4, elevenValidatorsTotalStake)
	assert.Empty(t, safeToNotarEvents(out))

	out = admitN(t, s, VoteNotarFallback, 1, other, 4, 5, elevenValidatorsTotalStake)
	events := safeToNotarEvents(out)
	require.Len(t, events, 1)
	assert.Equal(t, other, events[0].Hash)

	// Firing again for the same hash must not repeat.
	out = admitN(t, s, VoteNotarFallback, 1, other, 5, 6, elevenValidatorsTotalStake)
	assert.Empty(t, safeToNotarEvents(out))
}

func safeToNotarEvents(out admitOutcome) []VotorEvent {
	var evs []VotorEvent
	for _, e := range out.events {
		if e.Kind == EventSafeToNotar {
			evs = append(evs, e)
		}
	}
	return evs
}

func TestSlotState_InstallCertIsIdempotent(t *testing.T) {
	s := newSlotState(1)
	cert := Cert{Kind: CertSkip, Slot: 1}
	assert.True(t, s.installCert(cert))
	assert.False(t, s.installCert(cert))
}

func TestCrossesThreshold_IntegerCrossMultiplication(t *testing.T) {
	assert.True(t, crossesThreshold(7, 11, thresholdNumeratorNotar))
	assert.False(t, crossesThreshold(6, 11, thresholdNumeratorNotar))
	assert.False(t, crossesThreshold(5, 11, thresholdNumeratorNotar))
	assert.True(t, crossesThreshold(9, 11, thresholdNumeratorFastFinal))
	assert.False(t, crossesThreshold(8, 11, thresholdNumeratorFastFinal))
}
