// Package postgres implements store.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anandk/vidya-server/internal/store"
)

// Store wraps a pgx connection pool. All queries are parameterized.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database and verifies the connection.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureUser finds a user by username, falling back to email, creating
// one when absent.
func (s *Store) EnsureUser(ctx context.Context, username, email, fullName string) (*store.User, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if email != "" {
		user, err = s.getUserByEmail(ctx, email)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING id, username, email, full_name, is_active, created_at`,
		username, email, fullName)

	return scanUser(row)
}

// GetUserByUsername returns the user with the given username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, email, full_name, is_active, created_at
		FROM users WHERE username = $1`, username)
	return scanUser(row)
}

func (s *Store) getUserByEmail(ctx context.Context, email string) (*store.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, email, full_name, is_active, created_at
		FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// ListUsers returns users, optionally filtered by a case-insensitive
// search over username, email, and full name.
func (s *Store) ListUsers(ctx context.Context, search string) ([]*store.User, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if search != "" {
		pattern := "%" + search + "%"
		rows, err = s.pool.Query(ctx, `
			SELECT id, username, email, full_name, is_active, created_at
			FROM users
			WHERE username ILIKE $1 OR email ILIKE $1 OR full_name ILIKE $1
			ORDER BY created_at DESC`, pattern)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, username, email, full_name, is_active, created_at
			FROM users ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// DeleteUser removes a user and everything attached to them.
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for _, q := range []string{
		`DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE user_id = $1)`,
		`DELETE FROM learning_progress WHERE user_id = $1`,
		`DELETE FROM conversations WHERE user_id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, userID); err != nil {
			return fmt.Errorf("delete user data: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	return tx.Commit(ctx)
}

// StartConversation records the beginning of a tutoring session.
// Fills in ID and StartedAt when unset.
func (s *Store) StartConversation(ctx context.Context, conv *store.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, user_id, room_name)
		VALUES ($1, $2, $3)
		RETURNING started_at`,
		conv.ID, conv.UserID, conv.RoomName)

	if err := row.Scan(&conv.StartedAt); err != nil {
		return fmt.Errorf("start conversation: %w", err)
	}
	return nil
}

// EndConversation marks a conversation as finished, optionally
// attaching a summary and topic.
func (s *Store) EndConversation(ctx context.Context, conversationID string, summary, topic *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET ended_at = NOW(), summary = COALESCE($2, summary), topic = COALESCE($3, topic)
		WHERE id = $1`,
		conversationID, summary, topic)
	if err != nil {
		return fmt.Errorf("end conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// OpenConversationByRoom returns the newest still-open conversation for
// a room.
func (s *Store) OpenConversationByRoom(ctx context.Context, roomName string) (*store.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, room_name, started_at, ended_at, summary, topic
		FROM conversations
		WHERE room_name = $1 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1`, roomName)
	return scanConversation(row)
}

// ListConversations returns a user's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, userID int64, limit int) ([]*store.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, room_name, started_at, ended_at, summary, topic
		FROM conversations
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*store.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// AddMessage appends a transcript entry.
func (s *Store) AddMessage(ctx context.Context, msg *store.Message) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		msg.ConversationID, msg.Role, msg.Content)

	if err := row.Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest messages of one conversation in
// chronological order.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) newest
		ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// RecallMessages returns a user's newest messages across all
// conversations, newest first.
func (s *Store) RecallMessages(ctx context.Context, userID int64, limit int) ([]*store.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.conversation_id, m.role, m.content, m.created_at
		FROM messages m
		JOIN conversations c ON m.conversation_id = c.id
		WHERE c.user_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recall messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// GetProgress returns learning progress rows, optionally scoped to one
// subject.
func (s *Store) GetProgress(ctx context.Context, userID int64, subject string) ([]*store.LearningProgress, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if subject != "" {
		rows, err = s.pool.Query(ctx, `
			SELECT user_id, subject, topic, proficiency_level, notes, last_practiced_at
			FROM learning_progress
			WHERE user_id = $1 AND subject = $2
			ORDER BY last_practiced_at DESC`, userID, subject)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT user_id, subject, topic, proficiency_level, notes, last_practiced_at
			FROM learning_progress
			WHERE user_id = $1
			ORDER BY last_practiced_at DESC`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	defer rows.Close()

	var progress []*store.LearningProgress
	for rows.Next() {
		p := &store.LearningProgress{}
		if err := rows.Scan(&p.UserID, &p.Subject, &p.Topic, &p.Proficiency, &p.Notes, &p.LastPracticedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}

// UpsertProgress inserts or refreshes a proficiency row.
func (s *Store) UpsertProgress(ctx context.Context, p *store.LearningProgress) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO learning_progress (user_id, subject, topic, proficiency_level, notes, last_practiced_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, subject, topic)
		DO UPDATE SET
			proficiency_level = EXCLUDED.proficiency_level,
			notes = COALESCE(EXCLUDED.notes, learning_progress.notes),
			last_practiced_at = NOW()`,
		p.UserID, p.Subject, p.Topic, p.Proficiency, p.Notes)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// GetStats summarizes the store for the admin overview.
func (s *Store) GetStats(ctx context.Context) (*store.Stats, error) {
	stats := &store.Stats{}
	row := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM conversations WHERE ended_at IS NULL)`)
	if err := row.Scan(&stats.TotalUsers, &stats.TotalConversations, &stats.TotalMessages, &stats.OpenConversations); err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return stats, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUser(row scannable) (*store.User, error) {
	user := &store.User{}
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.IsActive, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func scanConversation(row scannable) (*store.Conversation, error) {
	conv := &store.Conversation{}
	err := row.Scan(&conv.ID, &conv.UserID, &conv.RoomName, &conv.StartedAt, &conv.EndedAt, &conv.Summary, &conv.Topic)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return conv, nil
}

func collectMessages(rows pgx.Rows) ([]*store.Message, error) {
	var messages []*store.Message
	for rows.Next() {
		msg := &store.Message{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)
