package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog/log"

	"github.com/prstake/stake-settlement-service/internal/db"
	"github.com/prstake/stake-settlement-service/internal/db/model"
	"github.com/prstake/stake-settlement-service/internal/escrow/eip712"
	"github.com/prstake/stake-settlement-service/internal/observability/metrics"
	"github.com/prstake/stake-settlement-service/internal/types"
	"github.com/prstake/stake-settlement-service/internal/utils"
)

const (
	// Slash reasons are public transparency data; enforce sane bounds before
	// touching the signing authority.
	MinSlashReasonLength = 8
	MaxSlashReasonLength = 512
)

// Identity is the authenticated caller context the webhook/UI glue attaches
// to settlement requests. The glue layer verifies it against GitHub; this
// service only consumes the result.
type Identity struct {
	UserId   string
	RepoRole string
	PRState  types.PRState
}

// HasWriteRole reports whether the identity holds maintainer/write-level
// authority over the repository.
func (id Identity) HasWriteRole() bool {
	return id.RepoRole == "admin" || id.RepoRole == "maintain" || id.RepoRole == "write"
}

// SettlementAuthorization is the relay payload: whoever submits the on-chain
// call carries this. The orchestrator itself never moves funds.
type SettlementAuthorization struct {
	DepositId       uint64 `json:"deposit_id"`
	Deadline        int64  `json:"deadline"`
	SignatureHex    string `json:"signature_hex"`
	ContractAddress string `json:"contract_address"`
	ChainId         int64  `json:"chain_id"`
}

// RequestRefund issues a short-lived refund authorization for a deposit owned
// by the caller, provided the mirror has confirmed the deposit on-chain and
// the PR is merged or closed.
func (s *Services) RequestRefund(ctx context.Context, caller Identity, depositId uint64) (*SettlementAuthorization, *types.Error) {
	if caller.UserId == "" {
		return nil, types.NewErrorWithMsg(http.StatusUnauthorized, types.Unauthorized, "missing caller identity")
	}

	deposit, fetchErr := s.fetchDepositForSettlement(ctx, depositId)
	if fetchErr != nil {
		return nil, fetchErr
	}

	if deposit.OwnerUserId != caller.UserId {
		log.Ctx(ctx).Warn().Uint64("depositId", depositId).Msg("refund requested by non-owner")
		return nil, types.NewErrorWithMsg(http.StatusForbidden, types.Forbidden, "only the deposit owner can request a refund")
	}

	if !caller.PRState.IsSettleable() {
		return nil, types.NewErrorWithMsg(http.StatusForbidden, types.Forbidden, "PR must be merged or closed before a refund")
	}

	return s.issueAuthorization(ctx, eip712.IntentRefund, deposit, caller, "")
}

// RequestSlash issues a slash authorization. The caller must hold write-level
// repository authority and supply a bounded, non-empty public reason. The
// reason is checked before any signing authority call.
func (s *Services) RequestSlash(ctx context.Context, caller Identity, depositId uint64, reason string) (*SettlementAuthorization, *types.Error) {
	if caller.UserId == "" {
		return nil, types.NewErrorWithMsg(http.StatusUnauthorized, types.Unauthorized, "missing caller identity")
	}
	if !caller.HasWriteRole() {
		return nil, types.NewErrorWithMsg(http.StatusForbidden, types.Forbidden, "slashing requires write-level repository authority")
	}
	if len(reason) < MinSlashReasonLength || len(reason) > MaxSlashReasonLength {
		return nil, types.NewErrorWithMsg(
			http.StatusConflict, types.Conflict,
			fmt.Sprintf("slash reason must be between %d and %d characters", MinSlashReasonLength, MaxSlashReasonLength),
		)
	}

	deposit, fetchErr := s.fetchDepositForSettlement(ctx, depositId)
	if fetchErr != nil {
		return nil, fetchErr
	}

	return s.issueAuthorization(ctx, eip712.IntentSlash, deposit, caller, reason)
}

// fetchDepositForSettlement loads the mirror record and applies the dedup
// gate: the deposit must be confirmed and must not already carry an
// outstanding settlement request.
func (s *Services) fetchDepositForSettlement(ctx context.Context, depositId uint64) (*model.DepositDocument, *types.Error) {
	deposit, err := s.DbClient.FindDepositByDepositId(ctx, depositId)
	if err != nil {
		if ok := db.IsNotFoundError(err); ok {
			return nil, types.NewErrorWithMsg(http.StatusNotFound, types.NotFound, "deposit not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("error while fetching deposit")
		return nil, types.NewError(http.StatusInternalServerError, types.InternalServiceError, err)
	}

	if !utils.Contains(utils.QualifiedStatesForSettlementRequest(), deposit.State) {
		return nil, types.NewErrorWithMsg(
			http.StatusConflict, types.Conflict,
			fmt.Sprintf("deposit is %s, settlement can only be requested on a confirmed deposit", deposit.State),
		)
	}
	if deposit.SignatureRequestedAt != 0 {
		return nil, types.NewErrorWithMsg(http.StatusConflict, types.Conflict, "a settlement request is already outstanding for this deposit")
	}
	return deposit, nil
}

// issueAuthorization signs the intent digest and only then records the
// request trail in the mirror: a signing failure must not leave any mirror
// mutation behind. The conditional mark tolerates the narrow race in which
// two requests pass the read check; the ledger's own not-Active gate makes
// the losing signature inert.
func (s *Services) issueAuthorization(
	ctx context.Context, intent eip712.Intent,
	deposit *model.DepositDocument, caller Identity, reason string,
) (*SettlementAuthorization, *types.Error) {
	deadline := s.now().Add(s.cfg.Escrow.SignatureTTL).Unix()
	digest := s.domain.IntentDigest(intent, deposit.DepositId, deadline)

	sig, err := s.signer.Sign(digest)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Uint64("depositId", deposit.DepositId).Msg("signing authority unavailable")
		metrics.RecordSettlementRequest(intent.String(), metrics.Error)
		return nil, types.NewErrorWithMsg(
			http.StatusServiceUnavailable, types.UpstreamUnavailable,
			"signing authority unavailable, please retry",
		)
	}

	markErr := s.DbClient.MarkSignatureRequested(
		ctx, deposit.DepositId, intent.String(), caller.UserId, reason, s.now().Unix(),
	)
	if markErr != nil {
		if ok := db.IsNotFoundError(markErr); ok {
			// Lost the read-check-write race; the signature is never relayed.
			return nil, types.NewErrorWithMsg(http.StatusConflict, types.Conflict, "a settlement request is already outstanding for this deposit")
		}
		log.Ctx(ctx).Error().Err(markErr).Msg("failed to record settlement request")
		return nil, types.NewError(http.StatusInternalServerError, types.InternalServiceError, markErr)
	}

	metrics.RecordSettlementRequest(intent.String(), metrics.Success)
	return &SettlementAuthorization{
		DepositId:       deposit.DepositId,
		Deadline:        deadline,
		SignatureHex:    hexutil.Encode(sig),
		ContractAddress: s.cfg.Escrow.GetContractAddress().Hex(),
		ChainId:         s.cfg.Escrow.ChainId,
	}, nil
}

// ConfirmRefund marks the mirror terminal after the caller attests the
// on-chain refund transaction succeeded. Idempotent-once: a second
// confirmation fails with Conflict.
func (s *Services) ConfirmRefund(ctx context.Context, depositId uint64, settleTxRef string) *types.Error {
	return s.confirmSettlement(ctx, depositId, settleTxRef, s.DbClient.TransitionToRefundedState)
}

// ConfirmSlash is the slash-side counterpart of ConfirmRefund.
func (s *Services) ConfirmSlash(ctx context.Context, depositId uint64, settleTxRef string) *types.Error {
	return s.confirmSettlement(ctx, depositId, settleTxRef, s.DbClient.TransitionToSlashedState)
}

func (s *Services) confirmSettlement(
	ctx context.Context, depositId uint64, settleTxRef string,
	transition func(ctx context.Context, depositId uint64, settleTxRef string) error,
) *types.Error {
	if settleTxRef == "" {
		return types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing settlement tx reference")
	}

	if err := transition(ctx, depositId, settleTxRef); err != nil {
		if ok := db.IsNotFoundError(err); ok {
			// Either the deposit is unknown or it is already terminal.
			// Distinguish for the caller: a missing record is NotFound, a
			// terminal one is Conflict (idempotent-once).
			if _, findErr := s.DbClient.FindDepositByDepositId(ctx, depositId); findErr != nil {
				return types.NewErrorWithMsg(http.StatusNotFound, types.NotFound, "deposit not found")
			}
			return types.NewErrorWithMsg(http.StatusConflict, types.Conflict, "deposit settlement already confirmed")
		}
		log.Ctx(ctx).Error().Err(err).Uint64("depositId", depositId).Msg("failed to confirm settlement")
		return types.NewError(http.StatusInternalServerError, types.InternalServiceError, err)
	}
	return nil
}
