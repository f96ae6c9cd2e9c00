package consensus

// EventKind tags the variant of a VotorEvent.
type EventKind uint8

const (
	EventBlockNotarized EventKind = iota
	EventParentReady
	EventSafeToNotar
	EventSafeToSkip
	EventCertCreated
	EventTimeout
	EventStandstill
)

func (k EventKind) String() string {
	switch k {
	case EventBlockNotarized:
		return "BlockNotarized"
	case EventParentReady:
		return "ParentReady"
	case EventSafeToNotar:
		return "SafeToNotar"
	case EventSafeToSkip:
		return "SafeToSkip"
	case EventCertCreated:
		return "CertCreated"
	case EventTimeout:
		return "Timeout"
	case EventStandstill:
		return "Standstill"
	default:
		return "Unknown"
	}
}

// VotorEvent is a single item on the outbound voter-facing event queue.
// Only the fields relevant to Kind are populated; callers switch on Kind.
type VotorEvent struct {
	Kind EventKind

	Slot       Slot  // BlockNotarized, ParentReady (child slot), SafeToNotar, SafeToSkip, Timeout, Standstill (= last_finalized+1)
	Hash       Hash  // BlockNotarized, SafeToNotar
	ParentSlot Slot  // ParentReady
	ParentHash Hash  // ParentReady
	Cert       Cert  // CertCreated
	Certs      []Cert // Standstill
	OwnVotes   []Vote // Standstill
}

func evBlockNotarized(slot Slot, hash Hash) VotorEvent {
	return VotorEvent{Kind: EventBlockNotarized, Slot: slot, Hash: hash}
}

func evParentReady(childSlot, parentSlot Slot, parentHash Hash) VotorEvent {
	return VotorEvent{Kind: EventParentReady, Slot: childSlot, ParentSlot: parentSlot, ParentHash: parentHash}
}

func evSafeToNotar(slot Slot, hash Hash) VotorEvent {
	return VotorEvent{Kind: EventSafeToNotar, Slot: slot, Hash: hash}
}

func evSafeToSkip(slot Slot) VotorEvent {
	return VotorEvent{Kind: EventSafeToSkip, Slot: slot}
}

func evCertCreated(c Cert) VotorEvent {
	return VotorEvent{Kind: EventCertCreated, Cert: c}
}

func evTimeout(slot Slot) VotorEvent {
	return VotorEvent{Kind: EventTimeout, Slot: slot}
}

func evStandstill(slot Slot, certs []Cert, ownVotes []Vote) VotorEvent {
	return VotorEvent{Kind: EventStandstill, Slot: slot, Certs: certs, OwnVotes: ownVotes}
}
