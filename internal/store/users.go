package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository persists user identity and presence records in the users
// collection.
type UserRepository struct {
	collection *mongo.Collection
}

// NewUserRepository creates a UserRepository backed by the given database.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection("users")}
}

// EnsureIndexes creates the unique indexes on username and email.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

// Create inserts a new user. The email is stored lowercased and the presence
// status starts as offline. Returns ErrDuplicate when the username or email is
// already taken.
func (r *UserRepository) Create(ctx context.Context, user *User) (*User, error) {
	now := time.Now().UTC()
	user.Email = strings.ToLower(user.Email)
	user.Status = StatusOffline
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		user.ID = id
	}
	return user, nil
}

// FindByID looks up a user by hex object id with the password hash projected
// out of the result. Returns ErrNotFound for unknown or malformed ids.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	projection := options.FindOne().SetProjection(bson.D{{Key: "password", Value: 0}})

	var user User
	err = r.collection.FindOne(ctx, bson.D{{Key: "_id", Value: objectID}}, projection).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}
	return &user, nil
}

// FindByLogin looks up a user by username or email, including the password
// hash so the caller can verify credentials.
func (r *UserRepository) FindByLogin(ctx context.Context, login string) (*User, error) {
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: login}},
		bson.D{{Key: "email", Value: strings.ToLower(login)}},
	}}}

	var user User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user by login: %w", err)
	}
	return &user, nil
}

// UpdateStatus sets a user's presence status and, when lastSeen is non-nil,
// the last-seen timestamp. This is a single-document update with
// last-writer-wins semantics per connection event.
func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status string, lastSeen *time.Time) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	set := bson.D{
		{Key: "status", Value: status},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}
	if lastSeen != nil {
		set = append(set, bson.E{Key: "lastSeen", Value: lastSeen.UTC()})
	}

	result, err := r.collection.UpdateByID(ctx, objectID, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
