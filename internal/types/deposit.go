package types

// DepositState is the mirrored deposit lifecycle. The chain is authoritative;
// the mirror only ever moves forward, and terminal states are set strictly
// after the caller supplies on-chain confirmation.
type DepositState string

const (
	// Pending: the create transaction was submitted but not yet observed on-chain.
	Pending DepositState = "pending"
	// Confirmed: on-chain Active, attributes verified against the issued terms.
	Confirmed DepositState = "confirmed"
	// Refunded, Slashed: terminal, set only with a settlement tx reference.
	Refunded DepositState = "refunded"
	Slashed  DepositState = "slashed"
	// Expired: terminal, timeout exit observed.
	Expired DepositState = "expired"
)

func (s DepositState) ToString() string {
	return string(s)
}

// IsTerminal reports whether no further mirror transition is possible.
func (s DepositState) IsTerminal() bool {
	return s == Refunded || s == Slashed || s == Expired
}

// PRState is the pull request state the webhook glue reports alongside a
// settlement request. Refunds are only issued for merged or closed PRs.
type PRState string

const (
	PROpen   PRState = "open"
	PRMerged PRState = "merged"
	PRClosed PRState = "closed"
)

// IsSettleable reports whether the PR state permits a refund request.
func (s PRState) IsSettleable() bool {
	return s == PRMerged || s == PRClosed
}
