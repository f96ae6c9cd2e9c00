package consensus

import "fmt"

// ErrKind identifies the category of a PoolError, mirroring the closed
// error taxonomy in the admission path.
type ErrKind uint8

const (
	// ErrSlotOutOfBounds: slot < highest_finalized_slot, or
	// slot >= highest_finalized_slot + 2*SlotsPerEpoch.
	ErrSlotOutOfBounds ErrKind = iota
	// ErrInvalidSignature: the vote/cert signature failed verification.
	ErrInvalidSignature
	// ErrDuplicate: an equivalent vote/cert was already admitted.
	ErrDuplicate
	// ErrSlashableVote: the vote conflicts with a prior vote from the same signer.
	ErrSlashableVote
)

func (k ErrKind) String() string {
	switch k {
	case ErrSlotOutOfBounds:
		return "slot out of bounds"
	case ErrInvalidSignature:
		return "invalid signature"
	case ErrDuplicate:
		return "duplicate"
	case ErrSlashableVote:
		return "slashable"
	default:
		return "unknown"
	}
}

// OffenceKind identifies a slashable voting pattern.
type OffenceKind uint8

const (
	OffenceNotarDifferentHash OffenceKind = iota
	OffenceSkipAndNotarize
	OffenceSkipAndFinalize
	OffenceNotarFallbackAndFinalize
)

func (o OffenceKind) String() string {
	switch o {
	case OffenceNotarDifferentHash:
		return "NotarDifferentHash"
	case OffenceSkipAndNotarize:
		return "SkipAndNotarize"
	case OffenceSkipAndFinalize:
		return "SkipAndFinalize"
	case OffenceNotarFallbackAndFinalize:
		return "NotarFallbackAndFinalize"
	default:
		return "Unknown"
	}
}

// SlashableOffence is the evidence record produced when a validator's vote
// conflicts with one it already cast. No punitive action is taken here;
// detection only.
type SlashableOffence struct {
	Offence   OffenceKind
	Validator ValidatorId
	Slot      Slot
}

func (o *SlashableOffence) Error() string {
	return fmt.Sprintf("%s(validator=%d, slot=%d)", o.Offence, o.Validator, o.Slot)
}

// PoolError is the error type returned from vote/cert admission.
type PoolError struct {
	Kind     ErrKind
	Offence  *SlashableOffence // set only when Kind == ErrSlashableVote
	Detail   string
}

func (e *PoolError) Error() string {
	if e.Offence != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Offence)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return e.Kind.String()
}

func (e *PoolError) Unwrap() error {
	if e.Offence != nil {
		return e.Offence
	}
	return nil
}

func errOutOfBounds(detail string) *PoolError {
	return &PoolError{Kind: ErrSlotOutOfBounds, Detail: detail}
}

func errInvalidSignature(detail string) *PoolError {
	return &PoolError{Kind: ErrInvalidSignature, Detail: detail}
}

func errDuplicate() *PoolError {
	return &PoolError{Kind: ErrDuplicate}
}

func errSlashable(o *SlashableOffence) *PoolError {
	return &PoolError{Kind: ErrSlashableVote, Offence: o}
}

// IsSlotOutOfBounds reports whether err is a PoolError of kind ErrSlotOutOfBounds.
func IsSlotOutOfBounds(err error) bool { return hasKind(err, ErrSlotOutOfBounds) }

// IsDuplicate reports whether err is a PoolError of kind ErrDuplicate.
func IsDuplicate(err error) bool { return hasKind(err, ErrDuplicate) }

// IsSlashable reports whether err is a PoolError of kind ErrSlashableVote.
func IsSlashable(err error) bool { return hasKind(err, ErrSlashableVote) }

func hasKind(err error, k ErrKind) bool {
	pe, ok := err.(*PoolError)
	return ok && pe.Kind == k
}
