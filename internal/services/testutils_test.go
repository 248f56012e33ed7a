package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/prstake/stake-settlement-service/internal/config"
	"github.com/prstake/stake-settlement-service/internal/db"
	"github.com/prstake/stake-settlement-service/internal/db/model"
	"github.com/prstake/stake-settlement-service/internal/escrow/eip712"
	"github.com/prstake/stake-settlement-service/internal/escrow/signer"
	"github.com/prstake/stake-settlement-service/internal/types"
)

// inMemoryDbClient reproduces the conditional-update semantics of the mongo
// client: state transitions and the signature-request mark are filtered
// updates that fail with NotFoundError when no document matches.
type inMemoryDbClient struct {
	mu             sync.Mutex
	depositsByPrId map[string]*model.DepositDocument
	unprocessable  []model.UnprocessableMessageDocument
}

func newInMemoryDbClient() *inMemoryDbClient {
	return &inMemoryDbClient{
		depositsByPrId: make(map[string]*model.DepositDocument),
	}
}

func (c *inMemoryDbClient) Ping(ctx context.Context) error {
	return nil
}

func (c *inMemoryDbClient) SaveDeposit(ctx context.Context, document *model.DepositDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.depositsByPrId[document.PrId]; ok {
		return &db.DuplicateKeyError{Key: document.PrId, Message: "deposit already exists for this PR"}
	}
	for _, d := range c.depositsByPrId {
		if d.DepositId == document.DepositId {
			return &db.DuplicateKeyError{Key: document.PrId, Message: "deposit id already recorded"}
		}
	}
	copied := *document
	c.depositsByPrId[document.PrId] = &copied
	return nil
}

func (c *inMemoryDbClient) FindDepositByPrId(ctx context.Context, prId string) (*model.DepositDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.depositsByPrId[prId]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, &db.NotFoundError{Key: prId, Message: "deposit not found"}
}

func (c *inMemoryDbClient) FindDepositByDepositId(ctx context.Context, depositId uint64) (*model.DepositDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d := c.findByDepositId(depositId); d != nil {
		copied := *d
		return &copied, nil
	}
	return nil, &db.NotFoundError{Key: strconv.FormatUint(depositId, 10), Message: "deposit not found"}
}

func (c *inMemoryDbClient) FindDepositsByOwner(ctx context.Context, ownerUserId string, paginationToken string) (*db.DbResultMap[model.DepositDocument], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if paginationToken != "" {
		if _, err := model.DecodeDepositByOwnerPaginationToken(paginationToken); err != nil {
			return nil, &db.InvalidPaginationTokenError{Message: "invalid pagination token"}
		}
	}

	var deposits []model.DepositDocument
	for _, d := range c.depositsByPrId {
		if d.OwnerUserId == ownerUserId {
			deposits = append(deposits, *d)
		}
	}
	sort.Slice(deposits, func(i, j int) bool {
		if deposits[i].CreatedAt != deposits[j].CreatedAt {
			return deposits[i].CreatedAt > deposits[j].CreatedAt
		}
		return deposits[i].PrId < deposits[j].PrId
	})
	return &db.DbResultMap[model.DepositDocument]{Data: deposits}, nil
}

func (c *inMemoryDbClient) TransitionToConfirmedState(ctx context.Context, depositId uint64) error {
	return c.transitionState(depositId, types.Confirmed, []types.DepositState{types.Pending}, "")
}

func (c *inMemoryDbClient) TransitionToRefundedState(ctx context.Context, depositId uint64, settleTxRef string) error {
	return c.transitionState(depositId, types.Refunded, []types.DepositState{types.Confirmed}, settleTxRef)
}

func (c *inMemoryDbClient) TransitionToSlashedState(ctx context.Context, depositId uint64, settleTxRef string) error {
	return c.transitionState(depositId, types.Slashed, []types.DepositState{types.Confirmed}, settleTxRef)
}

func (c *inMemoryDbClient) TransitionToExpiredState(ctx context.Context, depositId uint64) error {
	return c.transitionState(depositId, types.Expired, []types.DepositState{types.Pending, types.Confirmed}, "")
}

func (c *inMemoryDbClient) transitionState(
	depositId uint64, newState types.DepositState,
	eligiblePreviousStates []types.DepositState, settleTxRef string,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.findByDepositId(depositId)
	if d == nil {
		return &db.NotFoundError{Message: "deposit not found or not eligible"}
	}
	eligible := false
	for _, s := range eligiblePreviousStates {
		if d.State == s {
			eligible = true
		}
	}
	if !eligible {
		return &db.NotFoundError{Message: "deposit not found or not eligible"}
	}
	d.State = newState
	if settleTxRef != "" {
		d.SettleTxRef = settleTxRef
	}
	return nil
}

func (c *inMemoryDbClient) MarkSignatureRequested(
	ctx context.Context, depositId uint64,
	intent, requestedBy, slashReason string, requestedAt int64,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.findByDepositId(depositId)
	if d == nil || d.State != types.Confirmed || d.SignatureRequestedAt != 0 {
		return &db.NotFoundError{Message: "deposit not eligible for a settlement request"}
	}
	d.RequestedIntent = intent
	d.SignatureRequestedAt = requestedAt
	d.SignatureRequestedBy = requestedBy
	if slashReason != "" {
		d.SlashReason = slashReason
	}
	return nil
}

func (c *inMemoryDbClient) SaveUnprocessableMessage(ctx context.Context, messageBody, receipt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unprocessable = append(c.unprocessable, *model.NewUnprocessableMessageDocument(messageBody, receipt))
	return nil
}

func (c *inMemoryDbClient) FindUnprocessableMessages(ctx context.Context) ([]model.UnprocessableMessageDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.UnprocessableMessageDocument{}, c.unprocessable...), nil
}

func (c *inMemoryDbClient) DeleteUnprocessableMessage(ctx context.Context, receipt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.unprocessable {
		if m.Receipt == receipt {
			c.unprocessable = append(c.unprocessable[:i], c.unprocessable[i+1:]...)
			return nil
		}
	}
	return nil
}

// findByDepositId must be called with the lock held.
func (c *inMemoryDbClient) findByDepositId(depositId uint64) *model.DepositDocument {
	for _, d := range c.depositsByPrId {
		if d.DepositId == depositId {
			return d
		}
	}
	return nil
}

// countingSigner counts Sign calls; used to verify that validation failures
// never reach the signing authority.
type countingSigner struct {
	inner     signer.Signer
	signCalls int
}

func (s *countingSigner) Sign(digest common.Hash) ([]byte, error) {
	s.signCalls++
	return s.inner.Sign(digest)
}

func (s *countingSigner) Address() common.Address {
	return s.inner.Address()
}

// failingSigner models an unavailable signing backend.
type failingSigner struct{}

func (failingSigner) Sign(digest common.Hash) ([]byte, error) {
	return nil, errors.New("hsm unreachable")
}

func (failingSigner) Address() common.Address {
	return common.Address{}
}

// failingChainReader models an unreachable rpc endpoint.
type failingChainReader struct{}

func (failingChainReader) NextDepositID(ctx context.Context) (uint64, error) {
	return 0, errors.New("rpc unreachable")
}

type staticChainReader struct {
	next uint64
}

func (r staticChainReader) NextDepositID(ctx context.Context) (uint64, error) {
	return r.next, nil
}

const (
	testChainId         = int64(8453)
	testContractAddress = "0x00000000000000000000000000000000000000e5"
	testTreasuryAddress = "0x00000000000000000000000000000000000000a1"
)

var testNow = time.Unix(1_700_000_000, 0)

func testConfig() *config.Config {
	return &config.Config{
		Escrow: config.EscrowConfig{
			ChainId:             testChainId,
			ContractAddress:     testContractAddress,
			TreasuryAddress:     testTreasuryAddress,
			SignatureTTL:        15 * time.Minute,
			BaseStakeAmount:     5_000_000,
			ElevatedStakeAmount: 20_000_000,
		},
	}
}

type testServices struct {
	*Services
	dbClient  *inMemoryDbClient
	authority *countingSigner
}

func newTestServices(chain ChainReader) *testServices {
	cfg := testConfig()
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	authority := &countingSigner{inner: signer.FromKey(key)}
	dbClient := newInMemoryDbClient()
	return &testServices{
		Services: &Services{
			DbClient: dbClient,
			cfg:      cfg,
			signer:   authority,
			domain:   eip712.NewDomain(cfg.Escrow.GetChainId(), cfg.Escrow.GetContractAddress()),
			chain:    chain,
			now:      func() time.Time { return testNow },
		},
		dbClient:  dbClient,
		authority: authority,
	}
}

func confirmedDeposit(depositId uint64, ownerUserId string) *model.DepositDocument {
	return &model.DepositDocument{
		PrId:             "PR_" + strconv.FormatUint(depositId, 10),
		DepositId:        depositId,
		RepoFullName:     "prstake/escrow",
		RepoKeyHex:       eip712.RepoKey("prstake/escrow").Hex(),
		PrNumber:         42,
		OwnerUserId:      ownerUserId,
		Amount:           5_000_000,
		DepositorAddress: "0x1111111111111111111111111111111111111111",
		TreasuryAddress:  testTreasuryAddress,
		State:            types.Confirmed,
		CreateTxRef:      "0xcreate",
		CreatedAt:        testNow.Unix(),
		ExpiresAt:        testNow.Add(30 * 24 * time.Hour).Unix(),
	}
}
