// Package memory gives the voice agent a two-tier conversation memory:
// a small in-process short-term buffer per conversation, and long-term
// recall backed by the store (optionally mirrored into LightRAG).
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/anandk/vidya-server/internal/rag"
	"github.com/anandk/vidya-server/internal/store"
)

const (
	// shortTermCap bounds the per-conversation exchange buffer.
	shortTermCap = 10
	// recallLimit bounds how much history a recall pulls from the store.
	recallLimit = 20
)

// Exchange is one user/tutor turn pair.
type Exchange struct {
	UserMsg  string
	AgentMsg string
	At       time.Time
}

// Session identifies a started tutoring conversation.
type Session struct {
	ConversationID string
	UserID         int64
	Username       string
}

// Service implements conversation memory on top of the store.
type Service struct {
	store store.Store
	rag   *rag.Client // nil when LightRAG mirroring is disabled
	log   *zerolog.Logger

	mu        sync.Mutex
	shortTerm map[string][]Exchange // keyed by conversation id
}

// NewService creates a memory service. ragClient may be nil.
func NewService(st store.Store, ragClient *rag.Client, logger *zerolog.Logger) *Service {
	return &Service{
		store:     st,
		rag:       ragClient,
		log:       logger,
		shortTerm: make(map[string][]Exchange),
	}
}

// StartSession ensures the user exists and opens a conversation bound
// to the room.
func (s *Service) StartSession(ctx context.Context, username, email, fullName, roomName string) (*Session, error) {
	user, err := s.store.EnsureUser(ctx, username, email, fullName)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	conv := &store.Conversation{UserID: user.ID, RoomName: roomName}
	if err := s.store.StartConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}

	s.log.Info().
		Str("username", username).
		Str("room", roomName).
		Str("conversation_id", conv.ID).
		Msg("session started")

	return &Session{ConversationID: conv.ID, UserID: user.ID, Username: username}, nil
}

// LogTurn persists one user/tutor exchange and mirrors it into the
// knowledge store. Mirroring failures are logged, never returned.
func (s *Service) LogTurn(ctx context.Context, conversationID, username, userMsg, agentMsg string) error {
	for _, msg := range []*store.Message{
		{ConversationID: conversationID, Role: "user", Content: userMsg},
		{ConversationID: conversationID, Role: "assistant", Content: agentMsg},
	} {
		if err := s.store.AddMessage(ctx, msg); err != nil {
			return fmt.Errorf("log turn: %w", err)
		}
	}

	s.mu.Lock()
	buf := append(s.shortTerm[conversationID], Exchange{UserMsg: userMsg, AgentMsg: agentMsg, At: time.Now()})
	if len(buf) > shortTermCap {
		buf = buf[len(buf)-shortTermCap:]
	}
	s.shortTerm[conversationID] = buf
	s.mu.Unlock()

	if s.rag != nil {
		if err := s.rag.InsertConversation(ctx, username, conversationID, userMsg, agentMsg); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("lightrag mirror failed")
		}
	}

	return nil
}

// Recall returns a formatted block of the user's conversation history,
// or "" when there is none.
func (s *Service) Recall(ctx context.Context, username string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("recall: %w", err)
	}

	messages, err := s.store.RecallMessages(ctx, user.ID, recallLimit)
	if err != nil {
		return "", fmt.Errorf("recall: %w", err)
	}
	if len(messages) == 0 {
		return "", nil
	}

	return formatMessages(messages), nil
}

// ContextPrompt wraps recalled history into an instruction block for
// the agent, or returns "" for a new student.
func (s *Service) ContextPrompt(ctx context.Context, username string) (string, error) {
	history, err := s.Recall(ctx, username)
	if err != nil {
		return "", err
	}
	if history == "" {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("# Memory Context\n")
	b.WriteString("This student has talked with you before. Relevant history:\n\n")
	b.WriteString(history)
	b.WriteString("\nReference past discussions naturally when helpful; do not recite this list.\n")
	return b.String(), nil
}

// Knowledge asks the knowledge graph a free-form question, e.g. "what
// has this student struggled with in algebra". Returns "" when no
// knowledge store is configured.
func (s *Service) Knowledge(ctx context.Context, query string) (string, error) {
	if s.rag == nil {
		return "", nil
	}
	return s.rag.Query(ctx, query)
}

// ShortTerm returns the buffered exchanges of a conversation.
func (s *Service) ShortTerm(conversationID string) []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Exchange(nil), s.shortTerm[conversationID]...)
}

// OpenByRoom returns the still-open conversation for a room.
func (s *Service) OpenByRoom(ctx context.Context, roomName string) (*store.Conversation, error) {
	return s.store.OpenConversationByRoom(ctx, roomName)
}

// Transcript renders a conversation's recent messages as plain text
// for summarization.
func (s *Service) Transcript(ctx context.Context, conversationID string, limit int) (string, error) {
	messages, err := s.store.RecentMessages(ctx, conversationID, limit)
	if err != nil {
		return "", fmt.Errorf("transcript: %w", err)
	}

	var b strings.Builder
	for _, msg := range messages {
		role := "Student"
		if msg.Role == "assistant" {
			role = "Tutor"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, msg.Content)
	}
	return b.String(), nil
}

// EndConversation closes a conversation and drops its short-term buffer.
func (s *Service) EndConversation(ctx context.Context, conversationID string, summary, topic *string) error {
	if err := s.store.EndConversation(ctx, conversationID, summary, topic); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.shortTerm, conversationID)
	s.mu.Unlock()
	return nil
}

// Progress returns the user's learning progress rows.
func (s *Service) Progress(ctx context.Context, username, subject string) ([]*store.LearningProgress, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.store.GetProgress(ctx, user.ID, subject)
}

// UpdateProgress upserts a proficiency row for the user.
func (s *Service) UpdateProgress(ctx context.Context, username, subject, topic string, proficiency int, notes *string) error {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	return s.store.UpsertProgress(ctx, &store.LearningProgress{
		UserID:      user.ID,
		Subject:     subject,
		Topic:       topic,
		Proficiency: proficiency,
		Notes:       notes,
	})
}

func formatMessages(messages []*store.Message) string {
	var b strings.Builder
	b.WriteString("Past conversations with this student:\n")
	for _, msg := range messages {
		role := "student"
		if msg.Role == "assistant" {
			role = "tutor"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", msg.CreatedAt.Format("2006-01-02 15:04"), role, msg.Content)
	}
	return b.String()
}
