package testutil

import (
	"github.com/tolelom/alpenglow/consensus"
	"github.com/tolelom/alpenglow/crypto"
)

// SignVote signs a vote's canonical payload with signer's secret key and
// returns the populated Vote, mirroring the Rust test suite's helper of the
// same purpose.
func SignVote(kind consensus.VoteKind, slot consensus.Slot, hash consensus.Hash, signer consensus.ValidatorId, secretKeys []crypto.PrivateKey) consensus.Vote {
	v := consensus.Vote{Kind: kind, Slot: slot, Hash: hash, Signer: signer}
	v.Signature = crypto.Sign(secretKeys[signer], v.SigningBytes())
	return v
}

// Hash builds a Hash fixture from a single repeated byte, for readable test data.
func Hash(b byte) consensus.Hash {
	var h consensus.Hash
	for i := range h {
		h[i] = b
	}
	return h
}
