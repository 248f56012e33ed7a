package client

const (
	DepositConfirmedQueueName string = "deposit_confirmed_queue"
	ExpiredDepositQueueName   string = "expired_deposit_queue"
)

type EventType int

const (
	DepositConfirmedEventType EventType = 1
	ExpiredDepositEventType   EventType = 2
)

// DepositConfirmedEvent is published by the chain-watching glue once a
// DepositCreated log reaches finality. It carries every economically relevant
// field from the event so the mirror can verify the deposit terms.
type DepositConfirmedEvent struct {
	EventType        EventType `json:"event_type"` // always 1
	DepositId        uint64    `json:"deposit_id"`
	DepositorAddress string    `json:"depositor_address"`
	RepoKeyHex       string    `json:"repo_key_hex"`
	PrNumber         uint64    `json:"pr_number"`
	Amount           uint64    `json:"amount"`
	TreasuryAddress  string    `json:"treasury_address"`
	TxRef            string    `json:"tx_ref"`
}

// ExpiredDepositEvent is published when the timeout exit is observed on-chain.
type ExpiredDepositEvent struct {
	EventType EventType `json:"event_type"` // always 2
	DepositId uint64    `json:"deposit_id"`
}
