package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prstake/stake-settlement-service/internal/escrow/eip712"
	"github.com/prstake/stake-settlement-service/internal/escrow/signer"
)

// TimeoutDuration is the fixed, non-configurable window after which a deposit
// becomes claimable by anyone via the signature-free timeout exit.
const TimeoutDuration = 30 * 24 * time.Hour

// Failure taxonomy. Every operation fails atomically: an error means no state
// was mutated and no funds moved.
var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrDepositNotFound      = errors.New("deposit not found")
	ErrDepositNotActive     = errors.New("deposit not active")
	ErrSignatureExpired     = errors.New("signature expired")
	ErrSignatureAlreadyUsed = errors.New("signature already used")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrTimeoutNotReached    = errors.New("timeout not reached")
)

type DepositStatus uint8

const (
	StatusActive DepositStatus = iota
	StatusRefunded
	StatusSlashed
	StatusTimedOut
)

func (s DepositStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRefunded:
		return "refunded"
	case StatusSlashed:
		return "slashed"
	case StatusTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Deposit is the authoritative per-stake record. All fields except Status are
// immutable after creation; Status is monotone and never returns to Active.
type Deposit struct {
	Depositor     common.Address
	Amount        *big.Int
	RepoKey       common.Hash
	SubjectNumber uint64
	Treasury      common.Address
	CreatedAt     time.Time
	Status        DepositStatus
}

// Ledger is the escrow state machine. Every state-changing path other than
// Create requires either a fresh, non-replayed authorization recovering to the
// authority address, or wall-clock time past the fixed timeout window. There
// is no third path; in particular there is no admin override.
//
// The mutex serializes transitions the way chain execution would: racing
// settlements for one deposit resolve first-wins, the rest fail
// ErrDepositNotActive.
type Ledger struct {
	mu sync.Mutex

	token     Token
	address   common.Address
	authority common.Address
	domain    *eip712.Domain
	now       func() time.Time

	nextID      uint64
	deposits    map[uint64]*Deposit
	usedDigests map[common.Hash]struct{}
	events      []Event
}

type Option func(*Ledger)

// WithClock overrides the wall clock. Tests use it to cross the timeout
// window without sleeping.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New constructs a ledger. token, contractAddress, chainID and authority are
// the deployment constants; none of them can change afterwards.
func New(token Token, contractAddress common.Address, chainID *big.Int, authority common.Address, opts ...Option) *Ledger {
	l := &Ledger{
		token:       token,
		address:     contractAddress,
		authority:   authority,
		domain:      eip712.NewDomain(chainID, contractAddress),
		now:         time.Now,
		nextID:      1,
		deposits:    make(map[uint64]*Deposit),
		usedDigests: make(map[common.Hash]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Domain exposes the EIP-712 domain so the off-chain side signs over exactly
// what the ledger verifies.
func (l *Ledger) Domain() *eip712.Domain {
	return l.domain
}

// Address returns the address escrowed funds are held under.
func (l *Ledger) Address() common.Address {
	return l.address
}

// Authority returns the settlement authority's public identity.
func (l *Ledger) Authority() common.Address {
	return l.authority
}

// Create escrows amount from depositor and returns the new deposit id.
// State is fully written only after the funds are in; a failed transfer
// leaves the ledger untouched.
func (l *Ledger) Create(depositor common.Address, repoKey common.Hash, subjectNumber uint64, treasury common.Address, amount *big.Int) (uint64, error) {
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if treasury == (common.Address{}) {
		return 0, ErrInvalidAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.token.Transfer(depositor, l.address, amount); err != nil {
		return 0, fmt.Errorf("deposit transfer failed: %w", err)
	}

	id := l.nextID
	l.nextID++
	l.deposits[id] = &Deposit{
		Depositor:     depositor,
		Amount:        new(big.Int).Set(amount),
		RepoKey:       repoKey,
		SubjectNumber: subjectNumber,
		Treasury:      treasury,
		CreatedAt:     l.now(),
		Status:        StatusActive,
	}
	l.emit(DepositCreatedEvent{
		ID:            id,
		Depositor:     depositor,
		RepoKey:       repoKey,
		SubjectNumber: subjectNumber,
		Amount:        new(big.Int).Set(amount),
		Treasury:      treasury,
	})
	return id, nil
}

// Refund settles the deposit back to its depositor, gated on a valid,
// unexpired, never-used refund authorization.
func (l *Ledger) Refund(depositID uint64, deadline int64, sig []byte) error {
	return l.settle(eip712.IntentRefund, depositID, deadline, sig)
}

// Slash forfeits the deposit to the treasury recorded at creation, gated the
// same way as Refund but over the slash digest.
func (l *Ledger) Slash(depositID uint64, deadline int64, sig []byte) error {
	return l.settle(eip712.IntentSlash, depositID, deadline, sig)
}

func (l *Ledger) settle(intent eip712.Intent, depositID uint64, deadline int64, sig []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.now().Unix() > deadline {
		return ErrSignatureExpired
	}

	deposit, ok := l.deposits[depositID]
	if !ok {
		return ErrDepositNotFound
	}
	if deposit.Status != StatusActive {
		return ErrDepositNotActive
	}

	digest := l.domain.IntentDigest(intent, depositID, deadline)
	if _, used := l.usedDigests[digest]; used {
		return ErrSignatureAlreadyUsed
	}

	recovered, err := signer.RecoverSigner(digest, sig)
	if err != nil || recovered != l.authority {
		return ErrInvalidSignature
	}

	recipient := deposit.Depositor
	if intent == eip712.IntentSlash {
		recipient = deposit.Treasury
	}
	if err := l.token.Transfer(l.address, recipient, deposit.Amount); err != nil {
		return fmt.Errorf("settlement transfer failed: %w", err)
	}

	l.usedDigests[digest] = struct{}{}
	if intent == eip712.IntentSlash {
		deposit.Status = StatusSlashed
		l.emit(DepositSlashedEvent{ID: depositID, Treasury: recipient, Amount: new(big.Int).Set(deposit.Amount)})
	} else {
		deposit.Status = StatusRefunded
		l.emit(DepositRefundedEvent{ID: depositID, Depositor: recipient, Amount: new(big.Int).Set(deposit.Amount)})
	}
	return nil
}

// ClaimTimeout is the trust-minimization escape hatch: callable by anyone, no
// signature, once the fixed window has elapsed. Funds always return to the
// depositor regardless of caller.
func (l *Ledger) ClaimTimeout(caller common.Address, depositID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	deposit, ok := l.deposits[depositID]
	if !ok {
		return ErrDepositNotFound
	}
	if deposit.Status != StatusActive {
		return ErrDepositNotActive
	}
	if l.now().Before(deposit.CreatedAt.Add(TimeoutDuration)) {
		return ErrTimeoutNotReached
	}

	if err := l.token.Transfer(l.address, deposit.Depositor, deposit.Amount); err != nil {
		return fmt.Errorf("timeout transfer failed: %w", err)
	}

	deposit.Status = StatusTimedOut
	l.emit(DepositTimedOutEvent{
		ID:        depositID,
		Depositor: deposit.Depositor,
		Amount:    new(big.Int).Set(deposit.Amount),
		Caller:    caller,
	})
	return nil
}

// NextID returns the id the next Create call will assign. Local deployments
// use it to back the orchestrator's chain reader without an rpc endpoint.
func (l *Ledger) NextID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID
}

// GetDeposit returns a copy of the deposit record.
func (l *Ledger) GetDeposit(depositID uint64) (Deposit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	deposit, ok := l.deposits[depositID]
	if !ok {
		return Deposit{}, ErrDepositNotFound
	}
	copied := *deposit
	copied.Amount = new(big.Int).Set(deposit.Amount)
	return copied, nil
}

// CanClaimTimeout reports whether ClaimTimeout would currently succeed.
func (l *Ledger) CanClaimTimeout(depositID uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	deposit, ok := l.deposits[depositID]
	if !ok || deposit.Status != StatusActive {
		return false
	}
	return !l.now().Before(deposit.CreatedAt.Add(TimeoutDuration))
}

// TimeUntilTimeout returns the remaining wait before the timeout exit opens,
// or 0 once past due or when the deposit is not Active.
func (l *Ledger) TimeUntilTimeout(depositID uint64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	deposit, ok := l.deposits[depositID]
	if !ok || deposit.Status != StatusActive {
		return 0
	}
	remaining := deposit.CreatedAt.Add(TimeoutDuration).Sub(l.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Events returns the emitted event log in order.
func (l *Ledger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// emit assumes the lock is held.
func (l *Ledger) emit(e Event) {
	l.events = append(l.events, e)
}
