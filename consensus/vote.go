package consensus

import (
	"fmt"

	"github.com/tolelom/alpenglow/crypto"
)

// Vote is a single validator's vote. Hash is the zero value for kinds that
// do not carry one (Skip, SkipFallback, Final).
type Vote struct {
	Kind      VoteKind
	Slot      Slot
	Hash      Hash
	Signer    ValidatorId
	Signature string // hex-encoded ed25519 signature, per crypto.Sign
}

// SigningBytes returns the canonical payload a vote's signature covers.
func (v Vote) SigningBytes() []byte {
	b := make([]byte, 0, 10+32)
	b = append(b, byte(v.Kind))
	b = appendUint64(b, uint64(v.Slot))
	if v.Kind.hasHash() {
		b = append(b, v.Hash[:]...)
	}
	return b
}

// Verify checks the vote's signature against the signer's voting pubkey.
func (v Vote) Verify(pub crypto.PublicKey) error {
	if err := crypto.Verify(pub, v.SigningBytes(), v.Signature); err != nil {
		return fmt.Errorf("vote signature: %w", err)
	}
	return nil
}

func appendUint64(b []byte, v uint64) []byte {
	return append(b,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
