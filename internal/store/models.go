// Package store implements MongoDB persistence for relaychat: the user
// directory and the append-only message log.
package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Presence status values stored on a user record.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
)

// User is an identity record in the users collection. The password hash is
// never serialized to JSON.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username  string             `bson:"username" json:"username"`
	Email     string             `bson:"email" json:"email"`
	Password  string             `bson:"password,omitempty" json:"-"`
	Status    string             `bson:"status" json:"status"`
	LastSeen  time.Time          `bson:"lastSeen,omitempty" json:"lastSeen,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Message is a chat message in the messages collection. The author's username
// is denormalized at send time so historical messages keep the name the author
// had when the message was sent. Messages are immutable once inserted.
type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	Username  string             `bson:"username" json:"username"`
	Content   string             `bson:"content" json:"content"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
