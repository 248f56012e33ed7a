package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/prstake/stake-settlement-service/internal/db/model"
	"github.com/prstake/stake-settlement-service/internal/types"
	"github.com/prstake/stake-settlement-service/internal/utils"
)

// SaveDeposit inserts the mirror record for a freshly submitted deposit.
// The PR id is the primary key, so a second deposit for the same PR fails
// with a DuplicateKeyError (at-most-one-deposit-per-PR).
func (db *Database) SaveDeposit(ctx context.Context, document *model.DepositDocument) error {
	client := db.Client.Database(db.DbName).Collection(model.DepositCollection)
	_, err := client.InsertOne(ctx, document)
	if err != nil {
		var writeErr mongo.WriteException
		if errors.As(err, &writeErr) {
			for _, e := range writeErr.WriteErrors {
				if mongo.IsDuplicateKeyError(e) {
					// Return the custom error type so that we can return 4xx errors to client
					return &DuplicateKeyError{
						Key:     document.PrId,
						Message: "deposit already exists for this PR",
					}
				}
			}
		}
		return err
	}
	return nil
}

func (db *Database) FindDepositByPrId(ctx context.Context, prId string) (*model.DepositDocument, error) {
	client := db.Client.Database(db.DbName).Collection(model.DepositCollection)
	filter := bson.M{"_id": prId}
	var deposit model.DepositDocument
	err := client.FindOne(ctx, filter).Decode(&deposit)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     prId,
				Message: "deposit not found",
			}
		}
		return nil, err
	}
	return &deposit, nil
}

func (db *Database) FindDepositByDepositId(ctx context.Context, depositId uint64) (*model.DepositDocument, error) {
	client := db.Client.Database(db.DbName).Collection(model.DepositCollection)
	filter := bson.M{"deposit_id": depositId}
	var deposit model.DepositDocument
	err := client.FindOne(ctx, filter).Decode(&deposit)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     strconv.FormatUint(depositId, 10),
				Message: "deposit not found",
			}
		}
		return nil, err
	}
	return &deposit, nil
}

func (db *Database) FindDepositsByOwner(ctx context.Context, ownerUserId string, paginationToken string) (*DbResultMap[model.DepositDocument], error) {
	client := db.Client.Database(db.DbName).Collection(model.DepositCollection)

	filter := bson.M{"owner_user_id": ownerUserId}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	opts.SetLimit(db.cfg.MaxPaginationLimit)

	if paginationToken != "" {
		decodedToken, err := model.DecodeDepositByOwnerPaginationToken(paginationToken)
		if err != nil {
			return nil, &InvalidPaginationTokenError{
				Message: "invalid pagination token",
			}
		}
		filter = bson.M{
			"owner_user_id": ownerUserId,
			"$or": []bson.M{
				{"created_at": bson.M{"$lt": decodedToken.CreatedAt}},
				{"created_at": decodedToken.CreatedAt, "_id": bson.M{"$gt": decodedToken.PrId}},
			},
		}
	}

	cursor, err := client.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var deposits []model.DepositDocument
	if err = cursor.All(ctx, &deposits); err != nil {
		return nil, err
	}

	return toResultMapWithPaginationToken(db.cfg, deposits, model.BuildDepositByOwnerPaginationToken)
}

// TransitionState updates the deposit state guarded by the eligible previous
// states. It returns a NotFoundError when the deposit does not exist or is not
// in an eligible state, so the conditional check and the write are a single
// atomic operation on the database side.
func (db *Database) transitionState(
	ctx context.Context, depositId uint64,
	newState types.DepositState, eligiblePreviousStates []types.DepositState,
	extraUpdates bson.M,
) error {
	client := db.Client.Database(db.DbName).Collection(model.DepositCollection)

	states := make([]string, 0, len(eligiblePreviousStates))
	for _, s := range eligiblePreviousStates {
		states = append(states, s.ToString())
	}

	filter := bson.M{"deposit_id": depositId, "state": bson.M{"$in": states}}
	set := bson.M{"state": newState.ToString()}
	for k, v := range extraUpdates {
		set[k] = v
	}
	update := bson.M{"$set": set}

	result := client.FindOneAndUpdate(ctx, filter, update)
	if result.Err() != nil {
		if errors.Is(result.Err(), mongo.ErrNoDocuments) {
			return &NotFoundError{
				Key:     strconv.FormatUint(depositId, 10),
				Message: fmt.Sprintf("deposit not found or not eligible to transition to %s", newState),
			}
		}
		return result.Err()
	}
	return nil
}

// TransitionToConfirmedState flips a pending deposit to confirmed once the
// on-chain DepositCreated event has been observed and its attributes verified.
func (db *Database) TransitionToConfirmedState(ctx context.Context, depositId uint64) error {
	return db.transitionState(
		ctx, depositId, types.Confirmed,
		utils.QualifiedStatesToConfirmed(),
		nil,
	)
}

// TransitionToRefundedState marks the mirror terminal, strictly after the
// caller attested the on-chain refund with a tx reference.
func (db *Database) TransitionToRefundedState(ctx context.Context, depositId uint64, settleTxRef string) error {
	return db.transitionState(
		ctx, depositId, types.Refunded,
		utils.QualifiedStatesToRefunded(),
		bson.M{"settle_tx_ref": settleTxRef},
	)
}

// TransitionToSlashedState mirrors TransitionToRefundedState for the slash path.
func (db *Database) TransitionToSlashedState(ctx context.Context, depositId uint64, settleTxRef string) error {
	return db.transitionState(
		ctx, depositId, types.Slashed,
		utils.QualifiedStatesToSlashed(),
		bson.M{"settle_tx_ref": settleTxRef},
	)
}

// TransitionToExpiredState records the observed timeout exit.
func (db *Database) TransitionToExpiredState(ctx context.Context, depositId uint64) error {
	return db.transitionState(
		ctx, depositId, types.Expired,
		utils.QualifiedStatesToExpired(),
		nil,
	)
}

// MarkSignatureRequested records the settlement request trail
// (intent, requester, optional slash reason) on a confirmed deposit that has
// no outstanding request yet. The filter doubles as the read-check-write guard
// keeping at most one off-chain-initiated settlement outstanding per deposit.
func (db *Database) MarkSignatureRequested(
	ctx context.Context, depositId uint64,
	intent, requestedBy, slashReason string, requestedAt int64,
) error {
	client := db.Client.Database(db.DbName).Collection(model.DepositCollection)

	filter := bson.M{
		"deposit_id":             depositId,
		"state":                  types.Confirmed.ToString(),
		"signature_requested_at": bson.M{"$exists": false},
	}
	set := bson.M{
		"requested_intent":       intent,
		"signature_requested_at": requestedAt,
		"signature_requested_by": requestedBy,
	}
	if slashReason != "" {
		set["slash_reason"] = slashReason
	}

	result := client.FindOneAndUpdate(ctx, filter, bson.M{"$set": set})
	if result.Err() != nil {
		if errors.Is(result.Err(), mongo.ErrNoDocuments) {
			return &NotFoundError{
				Key:     strconv.FormatUint(depositId, 10),
				Message: "deposit not eligible for a settlement request",
			}
		}
		return result.Err()
	}
	return nil
}
