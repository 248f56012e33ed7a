package handlers

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	queueClient "github.com/prstake/stake-settlement-service/internal/queue/client"
)

// ExpiredDepositHandler records an observed on-chain timeout exit in the
// mirror. Duplicate messages and already-terminal deposits are tolerated.
func (h *QueueHandler) ExpiredDepositHandler(ctx context.Context, messageBody string) error {
	var event queueClient.ExpiredDepositEvent
	err := json.Unmarshal([]byte(messageBody), &event)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal the message body into ExpiredDepositEvent")
		return err
	}

	expireErr := h.Services.ProcessExpiredDeposit(ctx, event.DepositId)
	if expireErr != nil {
		log.Ctx(ctx).Error().Err(expireErr).
			Uint64("depositId", event.DepositId).
			Msg("Failed to process expired deposit")
		return expireErr
	}

	return nil
}
