package repository

import (
	"context"

	"github.com/tieubaoca/rag-be/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const messageCollection = "messages"

type MessageRepo interface {
	CreateMessage(ctx context.Context, msg *types.Message) error
	ListMessages(ctx context.Context, conversationID, userID string) ([]types.Message, error)
}

type messageRepo struct {
	collection *mongo.Collection
}

func NewMessageRepo(ctx context.Context, db *mongo.Database) (MessageRepo, error) {
	collection := db.Collection(messageCollection)
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "conversation_id", Value: 1},
				{Key: "created_at", Value: 1},
			},
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, err
	}
	return &messageRepo{collection: collection}, nil
}

func (r *messageRepo) CreateMessage(ctx context.Context, msg *types.Message) error {
	_, err := r.collection.InsertOne(ctx, msg)
	return err
}

func (r *messageRepo) ListMessages(ctx context.Context, conversationID, userID string) ([]types.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"conversation_id": conversationID, "user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	msgs := make([]types.Message, 0)
	for cursor.Next(ctx) {
		var msg types.Message
		if err := cursor.Decode(&msg); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, cursor.Err()
}
