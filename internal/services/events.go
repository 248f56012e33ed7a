package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/prstake/stake-settlement-service/internal/db"
	"github.com/prstake/stake-settlement-service/internal/types"
)

// ProcessDepositConfirmation handles an observed on-chain DepositCreated
// event: it verifies the deposit's attributes against the issued terms and
// flips the mirror from pending to confirmed. Duplicate deliveries are
// tolerated.
func (s *Services) ProcessDepositConfirmation(
	ctx context.Context, depositId uint64,
	depositorAddress, repoKeyHex, treasuryAddress string, amount uint64,
) *types.Error {
	deposit, err := s.DbClient.FindDepositByDepositId(ctx, depositId)
	if err != nil {
		if ok := db.IsNotFoundError(err); ok {
			// The record may not have been created yet; surface as retryable.
			log.Ctx(ctx).Warn().Uint64("depositId", depositId).Msg("confirmation for unknown deposit, will retry")
			return types.NewErrorWithMsg(http.StatusNotFound, types.NotFound, "deposit not recorded yet")
		}
		return types.NewError(http.StatusInternalServerError, types.InternalServiceError, err)
	}

	if deposit.State != types.Pending {
		// Duplicate message; the transition already happened.
		return nil
	}

	// The chain is authoritative, but a mismatch between the observed event
	// and the terms we issued means the depositor called create with altered
	// parameters. Such deposits are never confirmed.
	if deposit.Amount != amount || deposit.RepoKeyHex != repoKeyHex ||
		deposit.TreasuryAddress != treasuryAddress || deposit.DepositorAddress != depositorAddress {
		log.Ctx(ctx).Error().Uint64("depositId", depositId).Msg("on-chain deposit attributes do not match issued terms")
		return types.NewErrorWithMsg(
			http.StatusUnprocessableEntity, types.ValidationError,
			fmt.Sprintf("deposit %d attributes do not match issued terms", depositId),
		)
	}

	if err := s.DbClient.TransitionToConfirmedState(ctx, depositId); err != nil {
		if ok := db.IsNotFoundError(err); ok {
			// Raced with another consumer; already confirmed.
			return nil
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to transition deposit to confirmed")
		return types.NewError(http.StatusInternalServerError, types.InternalServiceError, err)
	}
	return nil
}

// ProcessExpiredDeposit records an observed timeout exit. Terminal mirror
// records are left untouched.
func (s *Services) ProcessExpiredDeposit(ctx context.Context, depositId uint64) *types.Error {
	deposit, err := s.DbClient.FindDepositByDepositId(ctx, depositId)
	if err != nil {
		if ok := db.IsNotFoundError(err); ok {
			log.Ctx(ctx).Warn().Uint64("depositId", depositId).Msg("expiry for unknown deposit")
			return types.NewErrorWithMsg(http.StatusNotFound, types.NotFound, "deposit not recorded")
		}
		return types.NewError(http.StatusInternalServerError, types.InternalServiceError, err)
	}

	if deposit.State.IsTerminal() {
		return nil
	}

	if err := s.DbClient.TransitionToExpiredState(ctx, depositId); err != nil {
		if ok := db.IsNotFoundError(err); ok {
			return nil
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to transition deposit to expired")
		return types.NewError(http.StatusInternalServerError, types.InternalServiceError, err)
	}
	return nil
}

// SaveUnprocessableMessages dumps a poisoned queue message for replay.
func (s *Services) SaveUnprocessableMessages(ctx context.Context, messageBody, receipt string) *types.Error {
	err := s.DbClient.SaveUnprocessableMessage(ctx, messageBody, receipt)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error while saving unprocessable message")
		return types.NewErrorWithMsg(http.StatusInternalServerError, types.InternalServiceError, "error while saving unprocessable message")
	}
	return nil
}
