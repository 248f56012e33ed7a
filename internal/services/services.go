package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prstake/stake-settlement-service/internal/config"
	"github.com/prstake/stake-settlement-service/internal/db"
	"github.com/prstake/stake-settlement-service/internal/escrow/eip712"
	"github.com/prstake/stake-settlement-service/internal/escrow/signer"
)

// ChainReader is the minimal chain-read surface the orchestrator needs.
// Production backs it with an RPC client; local deployments and tests back it
// with the in-process escrow ledger.
type ChainReader interface {
	NextDepositID(ctx context.Context) (uint64, error)
}

// Services is the settlement orchestrator. It decides when to request a
// signed settlement authorization and relays it; it never moves funds itself.
// The signing authority is an injected capability, not a global.
type Services struct {
	DbClient db.DBClient
	cfg      *config.Config
	signer   signer.Signer
	domain   *eip712.Domain
	chain    ChainReader
	now      func() time.Time
}

func New(ctx context.Context, cfg *config.Config, authority signer.Signer, chain ChainReader) (*Services, error) {
	dbClient, err := db.New(ctx, cfg.Db)
	if err != nil {
		log.Ctx(ctx).Fatal().Err(err).Msg("error while creating db client")
		return nil, err
	}
	return &Services{
		DbClient: dbClient,
		cfg:      cfg,
		signer:   authority,
		domain:   eip712.NewDomain(cfg.Escrow.GetChainId(), cfg.Escrow.GetContractAddress()),
		chain:    chain,
		now:      time.Now,
	}, nil
}

// DoHealthCheck checks the health of the services by ping the database.
func (s *Services) DoHealthCheck(ctx context.Context) error {
	return s.DbClient.Ping(ctx)
}
