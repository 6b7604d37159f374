package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tieubaoca/rag-be/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const conversationCollection = "conversations"

type ConversationRepo interface {
	CreateConversation(ctx context.Context, conv *types.Conversation) error
	GetConversation(ctx context.Context, id, userID string) (*types.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]types.Conversation, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// UnpinDocument removes documentID from every conversation's pin list.
	UnpinDocument(ctx context.Context, documentID string) error
}

type conversationRepo struct {
	collection *mongo.Collection
}

func NewConversationRepo(ctx context.Context, db *mongo.Database) (ConversationRepo, error) {
	collection := db.Collection(conversationCollection)
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "updated_at", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "document_ids", Value: 1}},
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, err
	}
	return &conversationRepo{collection: collection}, nil
}

func (r *conversationRepo) CreateConversation(ctx context.Context, conv *types.Conversation) error {
	_, err := r.collection.InsertOne(ctx, conv)
	return err
}

func (r *conversationRepo) GetConversation(ctx context.Context, id, userID string) (*types.Conversation, error) {
	var conv types.Conversation
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) ListConversations(ctx context.Context, userID string) ([]types.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	convs := make([]types.Conversation, 0)
	for cursor.Next(ctx) {
		var conv types.Conversation
		if err := cursor.Decode(&conv); err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, cursor.Err()
}

func (r *conversationRepo) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"updated_at": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *conversationRepo) UnpinDocument(ctx context.Context, documentID string) error {
	_, err := r.collection.UpdateMany(ctx,
		bson.M{"document_ids": documentID},
		bson.M{"$pull": bson.M{"document_ids": documentID}},
	)
	return err
}
