package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EscrowConfig carries the deployment constants of the on-chain escrow
// contract plus the off-chain signing policy. The signer key is expected to
// arrive via environment override (ESCROW_SIGNER__PRIVATE__KEY), never from a
// checked-in file.
type EscrowConfig struct {
	RpcAddress          string        `mapstructure:"rpc-address"`
	ChainId             int64         `mapstructure:"chain-id"`
	ContractAddress     string        `mapstructure:"contract-address"`
	TreasuryAddress     string        `mapstructure:"treasury-address"`
	SignerPrivateKey    string        `mapstructure:"signer-private-key"`
	SignatureTTL        time.Duration `mapstructure:"signature-ttl"`
	BaseStakeAmount     uint64        `mapstructure:"base-stake-amount"`
	ElevatedStakeAmount uint64        `mapstructure:"elevated-stake-amount"`
}

func (cfg *EscrowConfig) Validate() error {
	if cfg.RpcAddress == "" {
		return fmt.Errorf("escrow rpc address cannot be empty")
	}

	if cfg.ChainId <= 0 {
		return fmt.Errorf("chain id must be a positive integer")
	}

	if !common.IsHexAddress(cfg.ContractAddress) {
		return fmt.Errorf("invalid escrow contract address: %s", cfg.ContractAddress)
	}

	if !common.IsHexAddress(cfg.TreasuryAddress) {
		return fmt.Errorf("invalid treasury address: %s", cfg.TreasuryAddress)
	}

	if common.HexToAddress(cfg.TreasuryAddress) == (common.Address{}) {
		return fmt.Errorf("treasury address must not be the zero address")
	}

	if cfg.SignatureTTL <= 0 {
		return fmt.Errorf("signature ttl must be positive")
	}

	if cfg.BaseStakeAmount == 0 {
		return fmt.Errorf("base stake amount must be greater than 0")
	}

	if cfg.ElevatedStakeAmount < cfg.BaseStakeAmount {
		return fmt.Errorf("elevated stake amount must not be below the base amount")
	}

	return nil
}

func (cfg *EscrowConfig) GetChainId() *big.Int {
	return big.NewInt(cfg.ChainId)
}

func (cfg *EscrowConfig) GetContractAddress() common.Address {
	return common.HexToAddress(cfg.ContractAddress)
}

func (cfg *EscrowConfig) GetTreasuryAddress() common.Address {
	return common.HexToAddress(cfg.TreasuryAddress)
}
