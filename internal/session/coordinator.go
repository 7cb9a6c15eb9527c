// Package session decides, per user, how a tutoring room is prepared
// and who triggers the agent dispatch into it.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/anandk/vidya-server/internal/identity"
	"github.com/anandk/vidya-server/internal/ratelimit"
	"github.com/anandk/vidya-server/internal/roomengine"
)

// RoomName returns the deterministic room for a user. Stable across
// calls so reconnects land in the same room, and distinct per user id.
func RoomName(userID string) string {
	return "room_" + userID
}

// RateLimitError reports a rejected connection attempt and how long the
// caller should wait before retrying.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}

// Descriptor is everything a client needs to join its room.
type Descriptor struct {
	ServerURL           string
	RoomName            string
	ParticipantName     string
	ParticipantToken    string
	ParticipantIdentity string
}

// Options bound room lifetimes and the lock/teardown timing.
type Options struct {
	RoomEmptyTimeout    time.Duration
	RoomMaxParticipants int
	TokenTTL            time.Duration

	// DeleteSettleDelay is the pause between deleting a stale room and
	// creating the fresh one, so the deletion can propagate.
	DeleteSettleDelay time.Duration

	// LockGrace keeps a finished setup cycle's lock around so a burst
	// of near-simultaneous reconnects reuses the result instead of
	// churning the room again.
	LockGrace time.Duration
}

// setupCycle is the shared completion signal for one room's
// teardown/recreate sequence: one leader closes done, any number of
// followers wait on it.
type setupCycle struct {
	done chan struct{}
}

// Coordinator guarantees that for each user exactly one stable room is
// prepared and exactly one agent dispatch is issued per setup cycle,
// however many concurrent reconnect attempts arrive.
//
// All coordination state is process-local. Horizontally scaled
// deployments enforce the dispatch and rate-limit guarantees only per
// instance; a shared backing store would be needed for global
// enforcement, and the state is injected (not package-global) so that
// swap stays possible without touching call sites.
type Coordinator struct {
	engine  roomengine.Engine
	limiter *ratelimit.Limiter
	log     *zerolog.Logger
	opts    Options

	mu     sync.Mutex
	setups map[string]*setupCycle
}

// NewCoordinator creates a coordinator backed by the given engine.
func NewCoordinator(engine roomengine.Engine, limiter *ratelimit.Limiter, opts Options, logger *zerolog.Logger) *Coordinator {
	return &Coordinator{
		engine:  engine,
		limiter: limiter,
		log:     logger,
		opts:    opts,
		setups:  make(map[string]*setupCycle),
	}
}

// ResolveConnection admits the request, prepares the user's room, and
// mints a join token. The caller that initiates a setup cycle (the
// leader) gets a token carrying the agent-dispatch instruction; callers
// that waited on an in-flight cycle get plain join tokens, because the
// dispatch already happened once for that cycle.
func (c *Coordinator) ResolveConnection(ctx context.Context, id identity.Identity, agentName string) (*Descriptor, error) {
	if ok, retryAfter := c.limiter.Allow(id.UserID); !ok {
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}

	roomName := RoomName(id.UserID)

	c.mu.Lock()
	cycle, inFlight := c.setups[roomName]
	leader := !inFlight
	if leader {
		cycle = &setupCycle{done: make(chan struct{})}
		c.setups[roomName] = cycle
	}
	c.mu.Unlock()

	if leader {
		c.runSetup(ctx, roomName, cycle)
	} else {
		select {
		case <-cycle.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	token, err := c.engine.MintToken(roomengine.TokenRequest{
		Identity:  id.UserID,
		Name:      id.DisplayName(),
		Metadata:  id.MetadataJSON(),
		Room:      roomName,
		TTL:       c.opts.TokenTTL,
		Dispatch:  leader,
		AgentName: agentName,
	})
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}

	c.log.Info().
		Str("room", roomName).
		Str("identity", id.UserID).
		Bool("leader", leader).
		Msg("connection resolved")

	return &Descriptor{
		ServerURL:           c.engine.ServerURL(),
		RoomName:            roomName,
		ParticipantName:     id.DisplayName(),
		ParticipantToken:    token,
		ParticipantIdentity: id.UserID,
	}, nil
}

// runSetup executes one teardown/recreate cycle: delete whatever room
// exists, wait for the deletion to settle, create a fresh room. Room
// service failures are non-fatal; the room may simply not exist yet, or
// may survive from a prior cycle, and either way a join is still valid.
func (c *Coordinator) runSetup(ctx context.Context, roomName string, cycle *setupCycle) {
	defer func() {
		close(cycle.done)
		time.AfterFunc(c.opts.LockGrace, func() {
			c.mu.Lock()
			if c.setups[roomName] == cycle {
				delete(c.setups, roomName)
			}
			c.mu.Unlock()
		})
	}()

	if err := c.engine.DeleteRoom(ctx, roomName); err != nil {
		c.log.Warn().Err(err).Str("room", roomName).Msg("room delete failed, assuming it did not exist")
	}

	select {
	case <-time.After(c.opts.DeleteSettleDelay):
	case <-ctx.Done():
		return
	}

	if _, err := c.engine.CreateRoom(ctx, roomengine.CreateRoomOptions{
		Name:            roomName,
		EmptyTimeout:    c.opts.RoomEmptyTimeout,
		MaxParticipants: c.opts.RoomMaxParticipants,
	}); err != nil {
		c.log.Warn().Err(err).Str("room", roomName).Msg("room create failed, continuing with existing room")
	}
}
