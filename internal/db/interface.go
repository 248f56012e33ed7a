package db

import (
	"context"

	"github.com/prstake/stake-settlement-service/internal/db/model"
)

// DBClient is the mirror-store surface consumed by the service layer. It is an
// interface so tests can swap in an in-memory implementation.
type DBClient interface {
	Ping(ctx context.Context) error
	SaveDeposit(ctx context.Context, document *model.DepositDocument) error
	FindDepositByPrId(ctx context.Context, prId string) (*model.DepositDocument, error)
	FindDepositByDepositId(ctx context.Context, depositId uint64) (*model.DepositDocument, error)
	FindDepositsByOwner(ctx context.Context, ownerUserId string, paginationToken string) (*DbResultMap[model.DepositDocument], error)
	TransitionToConfirmedState(ctx context.Context, depositId uint64) error
	TransitionToRefundedState(ctx context.Context, depositId uint64, settleTxRef string) error
	TransitionToSlashedState(ctx context.Context, depositId uint64, settleTxRef string) error
	TransitionToExpiredState(ctx context.Context, depositId uint64) error
	MarkSignatureRequested(ctx context.Context, depositId uint64, intent, requestedBy, slashReason string, requestedAt int64) error
	SaveUnprocessableMessage(ctx context.Context, messageBody, receipt string) error
	FindUnprocessableMessages(ctx context.Context) ([]model.UnprocessableMessageDocument, error)
	DeleteUnprocessableMessage(ctx context.Context, receipt string) error
}
