package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/alpenglow/crypto"
)

func TestCert_EncodeDecodeRoundTrip(t *testing.T) {
	c := Cert{
		Kind:    CertNotarFallback,
		Slot:    42,
		Hash:    Hash{7},
		Signers: Bitmap{1, 3, 9},
		Sigs:    map[ValidatorId]string{1: "sig1", 3: "sig3", 9: "sig9"},
	}
	decoded, err := DecodeCert(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c.Kind, decoded.Kind)
	assert.Equal(t, c.Slot, decoded.Slot)
	assert.Equal(t, c.Hash, decoded.Hash)
	assert.ElementsMatch(t, c.Signers, decoded.Signers)
	assert.Equal(t, c.Sigs, decoded.Sigs)
}

func TestCert_KeyMatchesDurableStoreLayout(t *testing.T) {
	key := certKey(42, CertSkip)
	assert.Equal(t, "cert|000000000000002A|2", string(key))
}

func TestCert_VerifyRejectsTamperedStatement(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	c := Cert{Kind: CertNotar, Slot: 1, Hash: Hash{1}, Signers: Bitmap{0}}
	sig := crypto.Sign(priv, c.SigningBytes())
	c.Sigs = map[ValidatorId]string{0: sig}

	lookup := func(id ValidatorId) (crypto.PublicKey, bool) {
		if id == 0 {
			return pub, true
		}
		return nil, false
	}
	require.NoError(t, c.Verify(lookup))

	c.Hash = Hash{2} // tamper with the certified statement
	assert.Error(t, c.Verify(lookup))
}

func TestCert_VerifyRejectsUnknownSigner(t *testing.T) {
	c := Cert{Kind: CertSkip, Slot: 1, Signers: Bitmap{5}, Sigs: map[ValidatorId]string{5: "x"}}
	err := c.Verify(func(ValidatorId) (crypto.PublicKey, bool) { return nil, false })
	assert.Error(t, err)
}
