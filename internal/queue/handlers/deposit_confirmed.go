package handlers

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	queueClient "github.com/prstake/stake-settlement-service/internal/queue/client"
)

// DepositConfirmedHandler handles the on-chain deposit confirmation event.
// This handler is designed to be idempotent, capable of handling duplicate
// messages gracefully: a deposit already confirmed is simply skipped.
func (h *QueueHandler) DepositConfirmedHandler(ctx context.Context, messageBody string) error {
	var event queueClient.DepositConfirmedEvent
	err := json.Unmarshal([]byte(messageBody), &event)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal the message body into DepositConfirmedEvent")
		return err
	}

	confirmErr := h.Services.ProcessDepositConfirmation(
		ctx, event.DepositId,
		event.DepositorAddress, event.RepoKeyHex,
		event.TreasuryAddress, event.Amount,
	)
	if confirmErr != nil {
		log.Ctx(ctx).Error().Err(confirmErr).
			Uint64("depositId", event.DepositId).
			Msg("Failed to process deposit confirmation")
		return confirmErr
	}

	return nil
}
