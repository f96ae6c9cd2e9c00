package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/alpenglow/crypto"
)

func TestVote_VerifyAcceptsValidSignature(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	v := Vote{Kind: VoteNotar, Slot: 5, Hash: Hash{1}, Signer: 0}
	v.Signature = crypto.Sign(priv, v.SigningBytes())

	assert.NoError(t, v.Verify(pub))
}

func TestVote_VerifyRejectsWrongSlot(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	v := Vote{Kind: VoteNotar, Slot: 5, Hash: Hash{1}, Signer: 0}
	v.Signature = crypto.Sign(priv, v.SigningBytes())

	tampered := v
	tampered.Slot = 6
	assert.Error(t, tampered.Verify(pub))
}

func TestVote_SigningBytesOmitsHashForUnhashedKinds(t *testing.T) {
	v1 := Vote{Kind: VoteSkip, Slot: 5, Signer: 0}
	v2 := Vote{Kind: VoteSkip, Slot: 5, Hash: Hash{9}, Signer: 0}
	assert.Equal(t, v1.SigningBytes(), v2.SigningBytes())
}
