package consensus

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/tolelom/alpenglow/crypto"
)

// Bitmap is a sorted set of validator ids that contributed to a certificate.
type Bitmap []ValidatorId

func newBitmap(ids map[ValidatorId]struct{}) Bitmap {
	b := make(Bitmap, 0, len(ids))
	for id := range ids {
		b = append(b, id)
	}
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	return b
}

// Cert is an aggregated certificate: a signer bitmap plus that signer's
// individual signature over the certified statement, keyed by validator id.
// This stands in for a true BLS aggregate signature (see DESIGN.md) — each
// signature is verified individually against the signer's voting pubkey.
type Cert struct {
	Kind    CertKind
	Slot    Slot
	Hash    Hash // zero value when Kind.hasHash() is false
	Signers Bitmap
	Sigs    map[ValidatorId]string // validator id -> hex-encoded ed25519 signature
}

// SigningBytes returns the payload signed by votes of the certificate's
// primary vote kind (see certVoteKind) — identical to that vote's signing
// bytes, so a certificate's signatures are exactly the member votes'
// signatures. NotarFallback certs may also hold Notar votes on the same
// hash, and Skip certs SkipFallback votes; those signatures cover their own
// vote kind's payload, which Verify also accepts.
func (c Cert) SigningBytes() []byte {
	voteKind := certVoteKind(c.Kind)
	b := make([]byte, 0, 10+32)
	b = append(b, byte(voteKind))
	b = appendUint64(b, uint64(c.Slot))
	if c.Kind.hasHash() {
		b = append(b, c.Hash[:]...)
	}
	return b
}

// certVoteKind maps a certificate kind to the vote kind whose signatures it
// aggregates. FastFinal certifies Notar votes; Final certifies Final votes.
func certVoteKind(k CertKind) VoteKind {
	switch k {
	case CertNotar, CertFastFinal:
		return VoteNotar
	case CertNotarFallback:
		return VoteNotarFallback
	case CertSkip:
		return VoteSkip
	case CertFinal:
		return VoteFinal
	default:
		return VoteNotar
	}
}

// Verify checks every signer's individual signature against their voting
// pubkey from the epoch's validator table.
func (c Cert) Verify(lookup func(ValidatorId) (crypto.PublicKey, bool)) error {
	if len(c.Signers) == 0 {
		return fmt.Errorf("cert has no signers")
	}
	payload := c.SigningBytes()
	var alt []byte
	switch c.Kind {
	case CertNotarFallback:
		alt = Vote{Kind: VoteNotar, Slot: c.Slot, Hash: c.Hash}.SigningBytes()
	case CertSkip:
		alt = Vote{Kind: VoteSkipFallback, Slot: c.Slot}.SigningBytes()
	}
	for _, id := range c.Signers {
		sig, ok := c.Sigs[id]
		if !ok {
			return fmt.Errorf("cert missing signature for validator %d", id)
		}
		pub, ok := lookup(id)
		if !ok {
			return fmt.Errorf("unknown validator %d in cert bitmap", id)
		}
		if err := crypto.Verify(pub, payload, sig); err != nil {
			if alt == nil || crypto.Verify(pub, alt, sig) != nil {
				return fmt.Errorf("cert signature for validator %d: %w", id, err)
			}
		}
	}
	return nil
}

// key returns the durable-store key for this certificate:
// "cert|HHHHHHHHHHHHHHHH|K" with H the 16-hex-char upper-case big-endian
// slot and K a single ASCII digit 0-4 per CertKind's ordinal.
func (c Cert) key() []byte {
	return certKey(c.Slot, c.Kind)
}

func certKey(slot Slot, kind CertKind) []byte {
	return []byte(fmt.Sprintf("cert|%016X|%d", uint64(slot), uint8(kind)))
}

// Encode produces the canonical binary encoding stored under a cert key:
// kind(1) | slot(8) | hash(32) | signerCount(4) | [signerID(4) | sigLen(2) | sig]...
func (c Cert) Encode() []byte {
	buf := make([]byte, 0, 1+8+32+4+len(c.Signers)*40)
	buf = append(buf, byte(c.Kind))
	buf = appendUint64(buf, uint64(c.Slot))
	buf = append(buf, c.Hash[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Signers)))
	for _, id := range c.Signers {
		buf = binary.BigEndian.AppendUint32(buf, uint32(id))
		sig := c.Sigs[id]
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(sig)))
		buf = append(buf, sig...)
	}
	return buf
}

// DecodeCert decodes the canonical binary encoding produced by Encode.
func DecodeCert(data []byte) (Cert, error) {
	if len(data) < 1+8+32+4 {
		return Cert{}, fmt.Errorf("cert encoding too short: %d bytes", len(data))
	}
	var c Cert
	c.Kind = CertKind(data[0])
	c.Slot = Slot(binary.BigEndian.Uint64(data[1:9]))
	copy(c.Hash[:], data[9:41])
	n := binary.BigEndian.Uint32(data[41:45])
	off := 45
	c.Sigs = make(map[ValidatorId]string, n)
	signers := make(Bitmap, 0, n)
	for i := uint32(0); i < n; i++ {
		if off+4+2 > len(data) {
			return Cert{}, fmt.Errorf("cert encoding truncated at signer %d", i)
		}
		id := ValidatorId(binary.BigEndian.Uint32(data[off : off+4]))
		off += 4
		sigLen := int(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		if off+sigLen > len(data) {
			return Cert{}, fmt.Errorf("cert encoding truncated at signature %d", i)
		}
		c.Sigs[id] = string(data[off : off+sigLen])
		off += sigLen
		signers = append(signers, id)
	}
	c.Signers = signers
	return c, nil
}
