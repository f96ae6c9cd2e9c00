// Package epoch holds the validator set and stake table for one epoch, and
// the leader schedule derived from it.
package epoch

import (
	"fmt"

	"github.com/tolelom/alpenglow/consensus"
	"github.com/tolelom/alpenglow/crypto"
)

// Validator is one epoch participant's identity and weight.
type Validator struct {
	ID     consensus.ValidatorId
	Pubkey crypto.PublicKey
	Stake  consensus.Stake
}

// Info is the validator table for one epoch, plus which validator id this
// node is (OwnID), matching pool.rs's epoch_info.own_id used to collect
// "own votes" during standstill recovery.
type Info struct {
	Validators []Validator
	OwnID      consensus.ValidatorId

	byID       map[consensus.ValidatorId]Validator
	totalStake consensus.Stake
}

// NewInfo builds an Info from a validator list, indexing it for lookup.
func NewInfo(validators []Validator, ownID consensus.ValidatorId) *Info {
	byID := make(map[consensus.ValidatorId]Validator, len(validators))
	var total consensus.Stake
	for _, v := range validators {
		byID[v.ID] = v
		total += v.Stake
	}
	return &Info{Validators: validators, OwnID: ownID, byID: byID, totalStake: total}
}

// TotalStake is the sum of stake across every validator in the epoch.
func (info *Info) TotalStake() consensus.Stake {
	return info.totalStake
}

// Validator looks up a validator by id.
func (info *Info) Validator(id consensus.ValidatorId) (Validator, bool) {
	v, ok := info.byID[id]
	return v, ok
}

// Stake returns the stake weight of validator id.
func (info *Info) Stake(id consensus.ValidatorId) (consensus.Stake, bool) {
	v, ok := info.byID[id]
	if !ok {
		return 0, false
	}
	return v.Stake, true
}

// OwnValidatorID returns the validator id this node votes as, used to
// collect "own votes" during standstill recovery.
func (info *Info) OwnValidatorID() consensus.ValidatorId {
	return info.OwnID
}

// Pubkey resolves a validator id to its voting public key, for signature
// verification. Matches the (ValidatorId) (crypto.PublicKey, bool) shape
// consensus.Cert.Verify expects.
func (info *Info) Pubkey(id consensus.ValidatorId) (crypto.PublicKey, bool) {
	v, ok := info.byID[id]
	if !ok {
		return nil, false
	}
	return v.Pubkey, true
}

// Leader returns the validator id that owns slot, using round-robin
// assignment over the leader window — the same index arithmetic the
// teacher's PoA engine used for per-height proposer selection, generalized
// from one slot per index to one window per index.
func (info *Info) Leader(slot consensus.Slot) (consensus.ValidatorId, error) {
	if len(info.Validators) == 0 {
		return 0, fmt.Errorf("epoch has no validators")
	}
	windowIdx := uint64(slot) / uint64(consensus.SlotsPerWindow)
	idx := int(windowIdx % uint64(len(info.Validators)))
	return info.Validators[idx].ID, nil
}
