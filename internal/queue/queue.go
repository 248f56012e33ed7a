package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prstake/stake-settlement-service/internal/config"
	"github.com/prstake/stake-settlement-service/internal/observability/metrics"
	"github.com/prstake/stake-settlement-service/internal/queue/client"
	"github.com/prstake/stake-settlement-service/internal/queue/handlers"
	"github.com/prstake/stake-settlement-service/internal/services"
)

type MessageHandler func(ctx context.Context, messageBody string) error

type Queues struct {
	DepositConfirmedQueueClient client.QueueClient
	ExpiredDepositQueueClient   client.QueueClient
	Handlers                    *handlers.QueueHandler
	processingTimeout           time.Duration
}

func New(cfg config.QueueConfig, service *services.Services) *Queues {
	depositConfirmedQueueClient, err := client.NewQueueClient(
		cfg.Url, cfg.QueueUser, cfg.QueuePassword, cfg.DepositConfirmedQueueName,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("error while creating DepositConfirmedQueueClient")
	}
	expiredDepositQueueClient, err := client.NewQueueClient(
		cfg.Url, cfg.QueueUser, cfg.QueuePassword, cfg.ExpiredDepositQueueName,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("error while creating ExpiredDepositQueueClient")
	}
	queueHandlers := handlers.NewQueueHandler(service)
	return &Queues{
		DepositConfirmedQueueClient: depositConfirmedQueueClient,
		ExpiredDepositQueueClient:   expiredDepositQueueClient,
		Handlers:                    queueHandlers,
		processingTimeout:           time.Duration(cfg.QueueProcessingTimeout) * time.Second,
	}
}

// Start all message processing
func (q *Queues) StartReceivingMessages() {
	startQueueMessageProcessing(q.DepositConfirmedQueueClient, q.Handlers.DepositConfirmedHandler, log.Logger, q.processingTimeout)
	startQueueMessageProcessing(q.ExpiredDepositQueueClient, q.Handlers.ExpiredDepositHandler, log.Logger, q.processingTimeout)
}

// Turn off all message processing
func (q *Queues) StopReceivingMessages() {
	q.DepositConfirmedQueueClient.Stop() // nolint:errcheck
	q.ExpiredDepositQueueClient.Stop()   // nolint:errcheck
}

// IsConnectionHealthy pings every queue connection; used by the healthcheck cron.
func (q *Queues) IsConnectionHealthy() error {
	if err := q.DepositConfirmedQueueClient.Ping(); err != nil {
		return err
	}
	return q.ExpiredDepositQueueClient.Ping()
}

func startQueueMessageProcessing(
	queueClient client.QueueClient, handler MessageHandler,
	logger zerolog.Logger, timeout time.Duration,
) {
	messagesChan, err := queueClient.ReceiveMessages()
	if err != nil {
		logger.Fatal().Err(err).Str("queueName", queueClient.GetQueueName()).Msg("error setting up message channel from queue")
	}

	go func() {
		for message := range messagesChan {
			// For each message, create a new context with a deadline or timeout
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := handler(ctx, message.Body)
			if err != nil {
				logger.Error().Err(err).Str("queueName", queueClient.GetQueueName()).Msg("error while processing message from queue")
				metrics.RecordQueueMessage(queueClient.GetQueueName(), metrics.Error)
				cancel()
				continue
			}

			delErr := queueClient.DeleteMessage(message.Receipt)
			if delErr != nil {
				logger.Error().Err(delErr).Str("queueName", queueClient.GetQueueName()).Msg("error while deleting message from queue")
			}
			metrics.RecordQueueMessage(queueClient.GetQueueName(), metrics.Success)
			cancel()
		}
	}()
}
