package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository persists chat messages in the messages collection. The log
// is append-only: no update or delete operation exists.
type MessageRepository struct {
	collection *mongo.Collection
}

// NewMessageRepository creates a MessageRepository backed by the given database.
func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{collection: db.Collection("messages")}
}

// EnsureIndexes creates the timestamp index used by Recent.
func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}

// Insert appends a message to the log and returns the persisted record with
// its server-assigned id and creation time.
func (r *MessageRepository) Insert(ctx context.Context, message *Message) (*Message, error) {
	message.CreatedAt = time.Now().UTC()

	result, err := r.collection.InsertOne(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		message.ID = id
	}
	return message, nil
}

// Recent returns the newest limit messages ordered by ascending send time.
// The query fetches newest-first and the slice is reversed before returning.
func (r *MessageRepository) Recent(ctx context.Context, limit int) ([]Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	var messages []Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode recent messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
