package consensus

import "github.com/tolelom/alpenglow/crypto"

// EpochInfo is the validator-table boundary the pool depends on. It is
// declared here (rather than imported from the epoch package) so that
// epoch.Info — which needs consensus.ValidatorId/Stake to describe a
// validator — can depend on this package without creating an import
// cycle; epoch.Info satisfies this interface.
type EpochInfo interface {
	TotalStake() Stake
	Stake(id ValidatorId) (Stake, bool)
	Pubkey(id ValidatorId) (crypto.PublicKey, bool)
	OwnValidatorID() ValidatorId
}
