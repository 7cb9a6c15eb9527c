// Package store defines the persistence interface for conversation
// memory. The schema mirrors what the voice agent needs: users, their
// tutoring conversations, the message transcript, and per-topic
// learning progress.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User is a tutoring app user. Users are created lazily the first time
// the agent sees an identity, so the backend never blocks a session on
// registration state.
type User struct {
	ID        int64
	Username  string
	Email     string
	FullName  string
	IsActive  bool
	CreatedAt time.Time
}

// Conversation is one tutoring session in one room.
type Conversation struct {
	ID        string
	UserID    int64
	RoomName  string
	StartedAt time.Time
	EndedAt   *time.Time
	Summary   *string
	Topic     *string
}

// Message is a single transcript entry.
type Message struct {
	ID             int64
	ConversationID string
	Role           string // "user" or "assistant"
	Content        string
	CreatedAt      time.Time
}

// LearningProgress tracks proficiency per subject/topic pair.
type LearningProgress struct {
	UserID          int64
	Subject         string
	Topic           string
	Proficiency     int // 1..10
	Notes           *string
	LastPracticedAt time.Time
}

// Stats summarizes the store for the admin overview.
type Stats struct {
	TotalUsers         int64
	TotalConversations int64
	TotalMessages      int64
	OpenConversations  int64
}

// Store is the persistence boundary for conversation memory.
type Store interface {
	// EnsureUser finds a user by username (or email) and creates one
	// when absent.
	EnsureUser(ctx context.Context, username, email, fullName string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context, search string) ([]*User, error)
	DeleteUser(ctx context.Context, userID int64) error

	StartConversation(ctx context.Context, conv *Conversation) error
	EndConversation(ctx context.Context, conversationID string, summary, topic *string) error
	// OpenConversationByRoom returns the newest conversation for a room
	// that has not ended yet.
	OpenConversationByRoom(ctx context.Context, roomName string) (*Conversation, error)
	ListConversations(ctx context.Context, userID int64, limit int) ([]*Conversation, error)

	AddMessage(ctx context.Context, msg *Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	// RecallMessages returns a user's newest messages across all past
	// conversations, newest first.
	RecallMessages(ctx context.Context, userID int64, limit int) ([]*Message, error)

	GetProgress(ctx context.Context, userID int64, subject string) ([]*LearningProgress, error)
	UpsertProgress(ctx context.Context, progress *LearningProgress) error

	GetStats(ctx context.Context) (*Stats, error)

	Close()
}
