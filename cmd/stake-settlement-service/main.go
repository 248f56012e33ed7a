package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/prstake/stake-settlement-service/cmd/stake-settlement-service/cli"
	"github.com/prstake/stake-settlement-service/cmd/stake-settlement-service/scripts"
	"github.com/prstake/stake-settlement-service/internal/api"
	"github.com/prstake/stake-settlement-service/internal/clients/chain"
	"github.com/prstake/stake-settlement-service/internal/config"
	"github.com/prstake/stake-settlement-service/internal/db/model"
	"github.com/prstake/stake-settlement-service/internal/escrow/signer"
	"github.com/prstake/stake-settlement-service/internal/observability/healthcheck"
	"github.com/prstake/stake-settlement-service/internal/observability/metrics"
	"github.com/prstake/stake-settlement-service/internal/queue"
	"github.com/prstake/stake-settlement-service/internal/services"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("failed to load .env file")
	}
}

func main() {
	ctx := context.Background()

	// setup cli commands and flags
	if err := cli.Setup(); err != nil {
		log.Fatal().Err(err).Msg("error while setting up cli")
	}

	// load config
	cfgPath := cli.GetConfigPath()
	cfg, err := config.New(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg(fmt.Sprintf("error while loading config file: %s", cfgPath))
	}

	// The signing authority key never leaves this process.
	authority, err := signer.NewLocalSigner(cfg.Escrow.SignerPrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("error while loading signing authority key")
	}
	log.Info().Str("authority", authority.Address().Hex()).Msg("signing authority loaded")

	chainClient, err := chain.New(ctx, &cfg.Escrow)
	if err != nil {
		log.Fatal().Err(err).Msg("error while connecting to escrow rpc")
	}
	defer chainClient.Close()

	// initialize metrics with the metrics port from config
	metricsPort := cfg.Metrics.GetMetricsPort()
	metrics.Init(metricsPort)

	err = model.Setup(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("error while setting up deposit mirror db model")
	}
	services, err := services.New(ctx, cfg, authority, chainClient)
	if err != nil {
		log.Fatal().Err(err).Msg("error while setting up settlement services layer")
	}
	// Start the event queue processing
	queues := queue.New(cfg.Queue, services)

	// Check if the replay flag is set
	if cli.GetReplayFlag() {
		log.Info().Msg("Replay flag is set. Starting replay of unprocessable messages.")
		err := scripts.ReplayUnprocessableMessages(ctx, cfg, queues, services.DbClient)
		if err != nil {
			log.Fatal().Err(err).Msg("error while replaying unprocessable messages")
		}
		return
	}

	queues.StartReceivingMessages()

	if err := healthcheck.StartHealthCheckCron(ctx, queues, cfg.Server.HealthCheckInterval); err != nil {
		log.Fatal().Err(err).Msg("error while starting health check cron")
	}

	apiServer, err := api.New(ctx, cfg, services)
	if err != nil {
		log.Fatal().Err(err).Msg("error while setting up settlement api service")
	}
	if err = apiServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("error while starting settlement api service")
	}
}
