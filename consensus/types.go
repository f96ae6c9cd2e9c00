// Package consensus implements the vote-and-certificate pool at the heart
// of the Alpenglow-style consensus protocol: it ingests votes, aggregates
// them into certificates once stake thresholds are met, tracks which
// parent blocks are ready to build upon across skipped windows, persists
// certificates durably, and drives Votor via an event channel.
package consensus

import "fmt"

// Slot is a monotonically increasing slot number.
type Slot uint64

// Hash is a 32-byte block digest.
type Hash [32]byte

// ValidatorId indexes into the epoch's validator table.
type ValidatorId uint32

// Stake is a validator's voting weight.
type Stake uint64

// Protocol constants (tunable but specified).
const (
	SlotsPerWindow = Slot(2)
	SlotsPerEpoch  = Slot(4500)
)

// WindowStart returns the first slot of the leader window containing s.
func WindowStart(s Slot) Slot {
	return (s / SlotsPerWindow) * SlotsPerWindow
}

// WindowEnd returns the last slot of the leader window containing s.
func WindowEnd(s Slot) Slot {
	return WindowStart(s) + SlotsPerWindow - 1
}

// CertKind enumerates certificate kinds. The ordinal values are load-bearing:
// they are the single ASCII digit ('0'-'4') written into the durable store
// key "cert|SLOT|K", so this ordering must never change.
type CertKind uint8

const (
	CertNotar CertKind = iota
	CertNotarFallback
	CertSkip
	CertFastFinal
	CertFinal
)

func (k CertKind) String() string {
	switch k {
	case CertNotar:
		return "Notar"
	case CertNotarFallback:
		return "NotarFallback"
	case CertSkip:
		return "Skip"
	case CertFastFinal:
		return "FastFinal"
	case CertFinal:
		return "Final"
	default:
		return fmt.Sprintf("CertKind(%d)", uint8(k))
	}
}

// VoteKind enumerates vote kinds.
type VoteKind uint8

const (
	VoteNotar VoteKind = iota
	VoteNotarFallback
	VoteSkip
	VoteSkipFallback
	VoteFinal
)

func (k VoteKind) String() string {
	switch k {
	case VoteNotar:
		return "Notar"
	case VoteNotarFallback:
		return "NotarFallback"
	case VoteSkip:
		return "Skip"
	case VoteSkipFallback:
		return "SkipFallback"
	case VoteFinal:
		return "Final"
	default:
		return fmt.Sprintf("VoteKind(%d)", uint8(k))
	}
}

// hasHash reports whether votes/certs of this kind carry a block hash.
func (k VoteKind) hasHash() bool {
	return k == VoteNotar || k == VoteNotarFallback
}

func (k CertKind) hasHash() bool {
	return k == CertNotar || k == CertNotarFallback || k == CertFastFinal
}
