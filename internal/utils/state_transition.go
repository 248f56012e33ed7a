package utils

import (
	"github.com/prstake/stake-settlement-service/internal/types"
)

// QualifiedStatesToConfirmed returns the qualified existing states to transition to "confirmed"
func QualifiedStatesToConfirmed() []types.DepositState {
	return []types.DepositState{types.Pending}
}

// QualifiedStatesToRefunded returns the qualified existing states to transition to "refunded"
func QualifiedStatesToRefunded() []types.DepositState {
	return []types.DepositState{types.Confirmed}
}

// QualifiedStatesToSlashed returns the qualified existing states to transition to "slashed"
func QualifiedStatesToSlashed() []types.DepositState {
	return []types.DepositState{types.Confirmed}
}

// QualifiedStatesToExpired returns the qualified existing states to transition to "expired".
// A pending deposit can expire directly when its create tx was never confirmed
// and the on-chain timeout exit is observed regardless.
func QualifiedStatesToExpired() []types.DepositState {
	return []types.DepositState{types.Pending, types.Confirmed}
}

// QualifiedStatesForSettlementRequest returns the mirror states in which an
// off-chain settlement signature may be requested.
func QualifiedStatesForSettlementRequest() []types.DepositState {
	return []types.DepositState{types.Confirmed}
}
