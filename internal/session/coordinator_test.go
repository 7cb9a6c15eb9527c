package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anandk/vidya-server/internal/identity"
	"github.com/anandk/vidya-server/internal/log"
	"github.com/anandk/vidya-server/internal/ratelimit"
	"github.com/anandk/vidya-server/internal/roomengine"
)

// fakeEngine records room service calls and minted tokens.
type fakeEngine struct {
	mu         sync.Mutex
	deletes    []string
	creates    []string
	dispatches []string

	deleteErr error
	createErr error
	mintErr   error
}

func (f *fakeEngine) ServerURL() string { return "ws://fake:7880" }

func (f *fakeEngine) ListRooms(_ context.Context, names []string) ([]roomengine.Room, error) {
	return nil, nil
}

func (f *fakeEngine) ListParticipants(_ context.Context, _ string) ([]roomengine.Participant, error) {
	return nil, nil
}

func (f *fakeEngine) CreateRoom(_ context.Context, opts roomengine.CreateRoomOptions) (*roomengine.Room, error) {
	f.mu.Lock()
	f.creates = append(f.creates, opts.Name)
	f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &roomengine.Room{Name: opts.Name}, nil
}

func (f *fakeEngine) DeleteRoom(_ context.Context, roomName string) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, roomName)
	f.mu.Unlock()
	return f.deleteErr
}

func (f *fakeEngine) MintToken(req roomengine.TokenRequest) (string, error) {
	if f.mintErr != nil {
		return "", f.mintErr
	}
	f.mu.Lock()
	if req.Dispatch {
		f.dispatches = append(f.dispatches, req.Room)
	}
	f.mu.Unlock()
	return "tok-" + req.Identity, nil
}

func (f *fakeEngine) dispatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatches)
}

func (f *fakeEngine) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

func testOptions() Options {
	return Options{
		RoomEmptyTimeout:    time.Minute,
		RoomMaxParticipants: 10,
		TokenTTL:            15 * time.Minute,
		DeleteSettleDelay:   10 * time.Millisecond,
		LockGrace:           30 * time.Millisecond,
	}
}

func newTestCoordinator(engine roomengine.Engine, limit int) *Coordinator {
	return NewCoordinator(engine, ratelimit.New(limit, time.Minute), testOptions(), log.Nop())
}

func TestRoomNameStability(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCoordinator(engine, 100)
	id := identity.Sanitize(identity.Raw{UserID: "alice42"})

	first, err := c.ResolveConnection(context.Background(), id, "")
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	second, err := c.ResolveConnection(context.Background(), id, "")
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}

	if first.RoomName != second.RoomName {
		t.Errorf("room name not stable: %q vs %q", first.RoomName, second.RoomName)
	}
	if first.RoomName != "room_alice42" {
		t.Errorf("expected room_alice42, got %q", first.RoomName)
	}
}

func TestAtMostOneDispatchPerCycle(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCoordinator(engine, 100)
	id := identity.Sanitize(identity.Raw{UserID: "alice"})

	const n = 20
	var wg sync.WaitGroup
	descriptors := make([]*Descriptor, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			descriptors[i], errs[i] = c.ResolveConnection(context.Background(), id, "tutor")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("resolve %d failed: %v", i, err)
		}
		if descriptors[i].ParticipantToken == "" {
			t.Fatalf("resolve %d returned empty token", i)
		}
		if descriptors[i].RoomName != "room_alice" {
			t.Errorf("resolve %d got room %q", i, descriptors[i].RoomName)
		}
	}

	if got := engine.dispatchCount(); got != 1 {
		t.Errorf("expected exactly 1 agent dispatch, got %d", got)
	}
	if got := engine.createCount(); got != 1 {
		t.Errorf("expected exactly 1 room create, got %d", got)
	}
}

func TestFollowerWithinGraceReusesCycle(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCoordinator(engine, 100)
	id := identity.Sanitize(identity.Raw{UserID: "bob"})

	if _, err := c.ResolveConnection(context.Background(), id, ""); err != nil {
		t.Fatalf("leader resolve failed: %v", err)
	}
	// Still inside the lock grace window: no new cycle, no new dispatch.
	if _, err := c.ResolveConnection(context.Background(), id, ""); err != nil {
		t.Fatalf("follower resolve failed: %v", err)
	}

	if got := engine.dispatchCount(); got != 1 {
		t.Errorf("expected 1 dispatch within grace window, got %d", got)
	}
	if got := engine.createCount(); got != 1 {
		t.Errorf("expected 1 create within grace window, got %d", got)
	}
}

func TestNewCycleAfterGraceElapsed(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCoordinator(engine, 100)
	id := identity.Sanitize(identity.Raw{UserID: "carol"})

	if _, err := c.ResolveConnection(context.Background(), id, ""); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	if _, err := c.ResolveConnection(context.Background(), id, ""); err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}

	if got := engine.dispatchCount(); got != 2 {
		t.Errorf("expected a fresh dispatch after grace elapsed, got %d total", got)
	}
	if got := engine.createCount(); got != 2 {
		t.Errorf("expected a fresh create after grace elapsed, got %d total", got)
	}
}

func TestUsersProceedIndependently(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCoordinator(engine, 100)

	var wg sync.WaitGroup
	for _, user := range []string{"dave", "erin", "frank"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			id := identity.Sanitize(identity.Raw{UserID: user})
			if _, err := c.ResolveConnection(context.Background(), id, ""); err != nil {
				t.Errorf("resolve for %s failed: %v", user, err)
			}
		}(user)
	}
	wg.Wait()

	if got := engine.dispatchCount(); got != 3 {
		t.Errorf("expected one dispatch per user, got %d", got)
	}
}

func TestRoomServiceFailuresAreNonFatal(t *testing.T) {
	engine := &fakeEngine{
		deleteErr: errors.New("room not found"),
		createErr: errors.New("room already exists"),
	}
	c := newTestCoordinator(engine, 100)
	id := identity.Sanitize(identity.Raw{UserID: "grace"})

	desc, err := c.ResolveConnection(context.Background(), id, "")
	if err != nil {
		t.Fatalf("resolve should survive room service failures, got: %v", err)
	}
	if desc.ParticipantToken == "" {
		t.Error("expected a valid token despite room service failures")
	}
}

func TestMintFailurePropagates(t *testing.T) {
	engine := &fakeEngine{mintErr: errors.New("signing failed")}
	c := newTestCoordinator(engine, 100)
	id := identity.Sanitize(identity.Raw{UserID: "henry"})

	if _, err := c.ResolveConnection(context.Background(), id, ""); err == nil {
		t.Fatal("expected token mint failure to propagate")
	}
}

func TestRateLimitRejection(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCoordinator(engine, 1)
	id := identity.Sanitize(identity.Raw{UserID: "iris"})

	if _, err := c.ResolveConnection(context.Background(), id, ""); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}

	_, err := c.ResolveConnection(context.Background(), id, "")
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.RetryAfter <= 0 {
		t.Errorf("expected positive retry-after, got %v", rle.RetryAfter)
	}
}

func TestDescriptorFields(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCoordinator(engine, 100)
	id := identity.Sanitize(identity.Raw{UserName: "Alice"})

	desc, err := c.ResolveConnection(context.Background(), id, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if desc.ServerURL != "ws://fake:7880" {
		t.Errorf("unexpected server url %q", desc.ServerURL)
	}
	if desc.ParticipantIdentity != "user_alice" {
		t.Errorf("expected derived identity user_alice, got %q", desc.ParticipantIdentity)
	}
	if desc.RoomName != fmt.Sprintf("room_%s", desc.ParticipantIdentity) {
		t.Errorf("room %q does not match identity %q", desc.RoomName, desc.ParticipantIdentity)
	}
	if desc.ParticipantName != "Alice" {
		t.Errorf("expected participant name Alice, got %q", desc.ParticipantName)
	}
}
