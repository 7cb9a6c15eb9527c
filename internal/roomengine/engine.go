package roomengine

import (
	"context"
	"time"
)

// Room is the subset of media-server room state the coordinator cares about.
type Room struct {
	Name            string
	SID             string
	NumParticipants int
}

// Participant describes a connected room participant.
type Participant struct {
	Identity string
	Name     string
	IsAgent  bool
}

// CreateRoomOptions bound the lifetime and size of a created room.
type CreateRoomOptions struct {
	Name            string
	EmptyTimeout    time.Duration
	MaxParticipants int
}

// TokenRequest describes a join token to mint. When Dispatch is set the
// token carries an agent-dispatch instruction for AgentName; an empty
// AgentName means any available agent.
type TokenRequest struct {
	Identity  string
	Name      string
	Metadata  string
	Room      string
	TTL       time.Duration
	Dispatch  bool
	AgentName string
}

// Engine abstracts the media backend the tutoring sessions run on.
type Engine interface {
	// ServerURL returns the client-facing media server URL.
	ServerURL() string

	// ListRooms returns the rooms matching the given names.
	ListRooms(ctx context.Context, names []string) ([]Room, error)

	// ListParticipants enumerates participants of a room.
	ListParticipants(ctx context.Context, roomName string) ([]Participant, error)

	// CreateRoom creates a room with a bounded empty timeout and
	// participant count.
	CreateRoom(ctx context.Context, opts CreateRoomOptions) (*Room, error)

	// DeleteRoom removes a room, disconnecting any participants.
	DeleteRoom(ctx context.Context, roomName string) error

	// MintToken produces a signed, time-bounded join token.
	MintToken(req TokenRequest) (string, error)
}
