package memory

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anandk/vidya-server/internal/log"
	"github.com/anandk/vidya-server/internal/store"
)

// fakeStore is an in-memory store.Store for exercising the service.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]*store.User
	conversations map[string]*store.Conversation
	messages      []*store.Message
	progress      []*store.LearningProgress
	nextUserID    int64
	nextMsgID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]*store.User),
		conversations: make(map[string]*store.Conversation),
	}
}

func (f *fakeStore) EnsureUser(_ context.Context, username, email, fullName string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[username]; ok {
		return user, nil
	}
	f.nextUserID++
	user := &store.User{ID: f.nextUserID, Username: username, Email: email, FullName: fullName, IsActive: true, CreatedAt: time.Now()}
	f.users[username] = user
	return user, nil
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[username]; ok {
		return user, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListUsers(_ context.Context, _ string) ([]*store.User, error) { return nil, nil }
func (f *fakeStore) DeleteUser(_ context.Context, _ int64) error                  { return nil }

func (f *fakeStore) StartConversation(_ context.Context, conv *store.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv.ID == "" {
		conv.ID = "conv-" + conv.RoomName
	}
	conv.StartedAt = time.Now()
	f.conversations[conv.ID] = conv
	return nil
}

func (f *fakeStore) EndConversation(_ context.Context, conversationID string, summary, topic *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[conversationID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	conv.EndedAt = &now
	conv.Summary = summary
	conv.Topic = topic
	return nil
}

func (f *fakeStore) OpenConversationByRoom(_ context.Context, roomName string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.conversations {
		if conv.RoomName == roomName && conv.EndedAt == nil {
			return conv, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListConversations(_ context.Context, _ int64, _ int) ([]*store.Conversation, error) {
	return nil, nil
}

func (f *fakeStore) AddMessage(_ context.Context, msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsgID++
	msg.ID = f.nextMsgID
	msg.CreatedAt = time.Now()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Message
	for _, msg := range f.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) RecallMessages(_ context.Context, userID int64, limit int) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Message
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		msg := f.messages[i]
		if conv, ok := f.conversations[msg.ConversationID]; ok && conv.UserID == userID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeStore) GetProgress(_ context.Context, userID int64, subject string) ([]*store.LearningProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.LearningProgress
	for _, p := range f.progress {
		if p.UserID == userID && (subject == "" || p.Subject == subject) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertProgress(_ context.Context, p *store.LearningProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.progress {
		if existing.UserID == p.UserID && existing.Subject == p.Subject && existing.Topic == p.Topic {
			f.progress[i] = p
			return nil
		}
	}
	f.progress = append(f.progress, p)
	return nil
}

func (f *fakeStore) GetStats(_ context.Context) (*store.Stats, error) { return &store.Stats{}, nil }
func (f *fakeStore) Close()                                           {}

var _ store.Store = (*fakeStore)(nil)

func TestStartSessionCreatesUserAndConversation(t *testing.T) {
	svc := NewService(newFakeStore(), nil, log.Nop())

	session, err := svc.StartSession(context.Background(), "alice", "alice@example.com", "Alice", "room_alice")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if session.ConversationID == "" {
		t.Error("expected a conversation id")
	}
	if session.UserID == 0 {
		t.Error("expected a user id")
	}

	conv, err := svc.OpenByRoom(context.Background(), "room_alice")
	if err != nil {
		t.Fatalf("open by room failed: %v", err)
	}
	if conv.ID != session.ConversationID {
		t.Errorf("open conversation %q does not match session %q", conv.ID, session.ConversationID)
	}
}

func TestLogTurnAndRecall(t *testing.T) {
	svc := NewService(newFakeStore(), nil, log.Nop())
	ctx := context.Background()

	session, err := svc.StartSession(ctx, "bob", "", "", "room_bob")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}

	if err := svc.LogTurn(ctx, session.ConversationID, "bob", "what is photosynthesis", "plants convert light to energy"); err != nil {
		t.Fatalf("log turn failed: %v", err)
	}

	history, err := svc.Recall(ctx, "bob")
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	if !strings.Contains(history, "photosynthesis") {
		t.Errorf("recall missing user message: %q", history)
	}
	if !strings.Contains(history, "tutor:") {
		t.Errorf("recall missing tutor role label: %q", history)
	}
}

func TestRecallEmptyForNewUser(t *testing.T) {
	svc := NewService(newFakeStore(), nil, log.Nop())

	history, err := svc.Recall(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	if history != "" {
		t.Errorf("expected empty recall for unknown user, got %q", history)
	}
}

func TestContextPromptWrapsHistory(t *testing.T) {
	svc := NewService(newFakeStore(), nil, log.Nop())
	ctx := context.Background()

	session, _ := svc.StartSession(ctx, "carol", "", "", "room_carol")
	_ = svc.LogTurn(ctx, session.ConversationID, "carol", "help with algebra", "sure, let us start with equations")

	prompt, err := svc.ContextPrompt(ctx, "carol")
	if err != nil {
		t.Fatalf("context prompt failed: %v", err)
	}
	if !strings.Contains(prompt, "# Memory Context") {
		t.Errorf("prompt missing header: %q", prompt)
	}
	if !strings.Contains(prompt, "algebra") {
		t.Errorf("prompt missing history: %q", prompt)
	}

	empty, err := svc.ContextPrompt(ctx, "new-student")
	if err != nil {
		t.Fatalf("context prompt for new user failed: %v", err)
	}
	if empty != "" {
		t.Errorf("expected empty prompt for new user, got %q", empty)
	}
}

func TestShortTermBufferIsBounded(t *testing.T) {
	svc := NewService(newFakeStore(), nil, log.Nop())
	ctx := context.Background()

	session, _ := svc.StartSession(ctx, "dave", "", "", "room_dave")
	for i := 0; i < shortTermCap+5; i++ {
		_ = svc.LogTurn(ctx, session.ConversationID, "dave", "question", "answer")
	}

	if got := len(svc.ShortTerm(session.ConversationID)); got != shortTermCap {
		t.Errorf("short-term buffer length = %d, want %d", got, shortTermCap)
	}
}

func TestEndConversationDropsShortTerm(t *testing.T) {
	svc := NewService(newFakeStore(), nil, log.Nop())
	ctx := context.Background()

	session, _ := svc.StartSession(ctx, "erin", "", "", "room_erin")
	_ = svc.LogTurn(ctx, session.ConversationID, "erin", "hi", "hello")

	summary := "greeting only"
	if err := svc.EndConversation(ctx, session.ConversationID, &summary, nil); err != nil {
		t.Fatalf("end conversation failed: %v", err)
	}

	if got := len(svc.ShortTerm(session.ConversationID)); got != 0 {
		t.Errorf("short-term buffer not dropped, %d entries remain", got)
	}
	if _, err := svc.OpenByRoom(ctx, "room_erin"); err == nil {
		t.Error("conversation still open after end")
	}
}

func TestTranscriptFormat(t *testing.T) {
	svc := NewService(newFakeStore(), nil, log.Nop())
	ctx := context.Background()

	session, _ := svc.StartSession(ctx, "frank", "", "", "room_frank")
	_ = svc.LogTurn(ctx, session.ConversationID, "frank", "what is gravity", "a force between masses")

	transcript, err := svc.Transcript(ctx, session.ConversationID, 50)
	if err != nil {
		t.Fatalf("transcript failed: %v", err)
	}
	if !strings.Contains(transcript, "Student: what is gravity") {
		t.Errorf("transcript missing student line: %q", transcript)
	}
	if !strings.Contains(transcript, "Tutor: a force between masses") {
		t.Errorf("transcript missing tutor line: %q", transcript)
	}
}

func TestKnowledgeWithoutStore(t *testing.T) {
	svc := NewService(newFakeStore(), nil, log.Nop())

	answer, err := svc.Knowledge(context.Background(), "what did we cover")
	if err != nil {
		t.Fatalf("knowledge failed: %v", err)
	}
	if answer != "" {
		t.Errorf("answer = %q, want empty without a knowledge store", answer)
	}
}
