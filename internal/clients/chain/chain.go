package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/prstake/stake-settlement-service/internal/config"
)

// Client reads escrow contract state over JSON-RPC. Only view calls: this
// service never submits transactions.
type Client struct {
	eth      *ethclient.Client
	contract common.Address

	nextDepositIdSelector []byte
}

func New(ctx context.Context, cfg *config.EscrowConfig) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RpcAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to dial escrow rpc: %w", err)
	}

	return &Client{
		eth:                   eth,
		contract:              cfg.GetContractAddress(),
		nextDepositIdSelector: crypto.Keccak256([]byte("nextDepositId()"))[:4],
	}, nil
}

// NextDepositID returns the id the escrow contract will assign to the next
// deposit. Used to precompute deposit terms before the create transaction.
func (c *Client) NextDepositID(ctx context.Context) (uint64, error) {
	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contract,
		Data: c.nextDepositIdSelector,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("nextDepositId call failed: %w", err)
	}
	if len(result) != 32 {
		return 0, fmt.Errorf("unexpected nextDepositId return length: %d", len(result))
	}

	return new(big.Int).SetBytes(result).Uint64(), nil
}

func (c *Client) Close() {
	c.eth.Close()
}
