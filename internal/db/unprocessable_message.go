package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/prstake/stake-settlement-service/internal/db/model"
)

// SaveUnprocessableMessage saves a message that failed processing into the
// database for manual inspection and replay.
func (db *Database) SaveUnprocessableMessage(ctx context.Context, messageBody, receipt string) error {
	unprocessableMsgClient := db.Client.Database(db.DbName).Collection(model.UnprocessableMsgCollection)
	_, err := unprocessableMsgClient.InsertOne(ctx, model.NewUnprocessableMessageDocument(messageBody, receipt))
	return err
}

// FindUnprocessableMessages fetches all unprocessable messages for replay.
func (db *Database) FindUnprocessableMessages(ctx context.Context) ([]model.UnprocessableMessageDocument, error) {
	unprocessableMsgClient := db.Client.Database(db.DbName).Collection(model.UnprocessableMsgCollection)
	cursor, err := unprocessableMsgClient.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []model.UnprocessableMessageDocument
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteUnprocessableMessage removes a replayed message by its receipt.
func (db *Database) DeleteUnprocessableMessage(ctx context.Context, receipt string) error {
	unprocessableMsgClient := db.Client.Database(db.DbName).Collection(model.UnprocessableMsgCollection)
	_, err := unprocessableMsgClient.DeleteOne(ctx, bson.M{"receipt": receipt})
	return err
}
