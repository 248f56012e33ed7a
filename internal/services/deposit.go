package services

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/prstake/stake-settlement-service/internal/db"
	"github.com/prstake/stake-settlement-service/internal/db/model"
	"github.com/prstake/stake-settlement-service/internal/escrow/eip712"
	"github.com/prstake/stake-settlement-service/internal/escrow/ledger"
	"github.com/prstake/stake-settlement-service/internal/observability/tracing"
	"github.com/prstake/stake-settlement-service/internal/types"
)

// RiskTier is the risk-score classification supplied by the external
// reputation collaborator. It only affects the required stake amount; even a
// blacklisted user gets deposit terms rather than a hard rejection.
type RiskTier string

const (
	RiskTierStandard RiskTier = "standard"
	RiskTierElevated RiskTier = "elevated"
)

// DepositInfoPublic carries everything a depositor needs to call create on
// the escrow contract.
type DepositInfoPublic struct {
	NextDepositId   uint64 `json:"next_deposit_id,omitempty"`
	RepoKeyHex      string `json:"repo_key_hex"`
	Amount          uint64 `json:"amount"`
	TreasuryAddress string `json:"treasury_address"`
	ContractAddress string `json:"contract_address"`
	ChainId         int64  `json:"chain_id"`
}

// DepositPublic is the transparency view of a mirrored deposit.
type DepositPublic struct {
	DepositId    uint64 `json:"deposit_id"`
	PrId         string `json:"pr_id"`
	RepoFullName string `json:"repo_full_name"`
	PrNumber     uint64 `json:"pr_number"`
	OwnerUserId  string `json:"owner_user_id"`
	Amount       uint64 `json:"amount"`
	State        string `json:"state"`
	SlashReason  string `json:"slash_reason,omitempty"`
	SlashedBy    string `json:"slashed_by,omitempty"`
	SettleTxRef  string `json:"settle_tx_ref,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

func fromDepositDocument(d *model.DepositDocument) *DepositPublic {
	pub := &DepositPublic{
		DepositId:    d.DepositId,
		PrId:         d.PrId,
		RepoFullName: d.RepoFullName,
		PrNumber:     d.PrNumber,
		OwnerUserId:  d.OwnerUserId,
		Amount:       d.Amount,
		State:        d.State.ToString(),
		SlashReason:  d.SlashReason,
		SettleTxRef:  d.SettleTxRef,
		CreatedAt:    d.CreatedAt,
		ExpiresAt:    d.ExpiresAt,
	}
	if d.RequestedIntent == eip712.IntentSlash.String() {
		pub.SlashedBy = d.SignatureRequestedBy
	}
	return pub
}

// GetDepositInfo precomputes the create-call parameters for a
// (repository, PR) pair. The stake amount follows the supplied risk tier.
func (s *Services) GetDepositInfo(ctx context.Context, repoFullName string, prNumber uint64, tier RiskTier) (*DepositInfoPublic, *types.Error) {
	info := &DepositInfoPublic{
		RepoKeyHex:      eip712.RepoKey(repoFullName).Hex(),
		Amount:          s.stakeAmountForTier(tier),
		TreasuryAddress: s.cfg.Escrow.GetTreasuryAddress().Hex(),
		ContractAddress: s.cfg.Escrow.GetContractAddress().Hex(),
		ChainId:         s.cfg.Escrow.ChainId,
	}

	if s.chain != nil {
		nextId, err := tracing.WrapWithSpan(ctx, "chainNextDepositId", func() (uint64, error) {
			return s.chain.NextDepositID(ctx)
		})
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to read next deposit id from chain")
			return nil, types.NewErrorWithMsg(
				http.StatusServiceUnavailable, types.UpstreamUnavailable,
				"chain read failed, please retry",
			)
		}
		info.NextDepositId = nextId
	}

	return info, nil
}

func (s *Services) stakeAmountForTier(tier RiskTier) uint64 {
	if tier == RiskTierElevated {
		return s.cfg.Escrow.ElevatedStakeAmount
	}
	return s.cfg.Escrow.BaseStakeAmount
}

// RecordDeposit creates the optimistic pending mirror record once the caller
// observed the create transaction being submitted. Fails with Conflict if a
// deposit is already recorded for the PR.
func (s *Services) RecordDeposit(
	ctx context.Context,
	prId, repoFullName string, prNumber uint64,
	ownerUserId, depositorAddress, txRef string,
	onchainId uint64, amount uint64,
) *types.Error {
	now := s.now()
	document := &model.DepositDocument{
		PrId:             prId,
		DepositId:        onchainId,
		RepoFullName:     repoFullName,
		RepoKeyHex:       eip712.RepoKey(repoFullName).Hex(),
		PrNumber:         prNumber,
		OwnerUserId:      ownerUserId,
		Amount:           amount,
		DepositorAddress: depositorAddress,
		TreasuryAddress:  s.cfg.Escrow.GetTreasuryAddress().Hex(),
		State:            types.Pending,
		CreateTxRef:      txRef,
		CreatedAt:        now.Unix(),
		ExpiresAt:        now.Add(ledger.TimeoutDuration).Unix(),
	}

	if err := s.DbClient.SaveDeposit(ctx, document); err != nil {
		if ok := db.IsDuplicateKeyError(err); ok {
			log.Ctx(ctx).Warn().Err(err).Str("prId", prId).Msg("deposit already recorded for this PR")
			return types.NewErrorWithMsg(http.StatusConflict, types.Conflict, "deposit already recorded for this PR")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to save deposit record")
		return types.NewError(http.StatusInternalServerError, types.InternalServiceError, err)
	}
	return nil
}

// GetDeposit returns the mirrored deposit by its on-chain id.
func (s *Services) GetDeposit(ctx context.Context, depositId uint64) (*DepositPublic, *types.Error) {
	document, err := s.DbClient.FindDepositByDepositId(ctx, depositId)
	if err != nil {
		if ok := db.IsNotFoundError(err); ok {
			return nil, types.NewErrorWithMsg(http.StatusNotFound, types.NotFound, "deposit not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("error while fetching deposit")
		return nil, types.NewError(http.StatusInternalServerError, types.InternalServiceError, err)
	}
	return fromDepositDocument(document), nil
}

// GetDepositsByOwner lists a user's mirrored deposits, newest first.
func (s *Services) GetDepositsByOwner(ctx context.Context, ownerUserId, pageToken string) ([]*DepositPublic, string, *types.Error) {
	resultMap, err := s.DbClient.FindDepositsByOwner(ctx, ownerUserId, pageToken)
	if err != nil {
		if ok := db.IsInvalidPaginationTokenError(err); ok {
			return nil, "", types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "invalid pagination token")
		}
		log.Ctx(ctx).Error().Err(err).Msg("error while fetching deposits by owner")
		return nil, "", types.NewError(http.StatusInternalServerError, types.InternalServiceError, err)
	}

	deposits := make([]*DepositPublic, 0, len(resultMap.Data))
	for i := range resultMap.Data {
		deposits = append(deposits, fromDepositDocument(&resultMap.Data[i]))
	}
	return deposits, resultMap.PaginationToken, nil
}
