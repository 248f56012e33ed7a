package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is implemented by every escrow ledger event.
type Event interface {
	DepositID() uint64
}

// DepositCreatedEvent is emitted once per deposit creation. It carries every
// economically relevant field so off-chain observers can verify the deposit
// terms without a separate state read.
type DepositCreatedEvent struct {
	ID            uint64
	Depositor     common.Address
	RepoKey       common.Hash
	SubjectNumber uint64
	Amount        *big.Int
	Treasury      common.Address
}

func (e DepositCreatedEvent) DepositID() uint64 { return e.ID }

type DepositRefundedEvent struct {
	ID        uint64
	Depositor common.Address
	Amount    *big.Int
}

func (e DepositRefundedEvent) DepositID() uint64 { return e.ID }

type DepositSlashedEvent struct {
	ID       uint64
	Treasury common.Address
	Amount   *big.Int
}

func (e DepositSlashedEvent) DepositID() uint64 { return e.ID }

// DepositTimedOutEvent records the caller that triggered the timeout exit;
// funds always go to the depositor regardless of caller.
type DepositTimedOutEvent struct {
	ID        uint64
	Depositor common.Address
	Amount    *big.Int
	Caller    common.Address
}

func (e DepositTimedOutEvent) DepositID() uint64 { return e.ID }
