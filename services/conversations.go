package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/LovationAdmin/advisor-api/models"

	"github.com/google/uuid"
)

// ConversationLog persists chat history of authenticated users. Silent
// messages are stored for the model's context but never rendered.
type ConversationLog interface {
	Ensure(ctx context.Context, userID, conversationID, firstMessage string) (string, error)
	Append(ctx context.Context, conversationID string, msg models.ChatMessage) error
	List(ctx context.Context, userID string) ([]models.Conversation, error)
	// Messages returns the visible history, oldest first.
	Messages(ctx context.Context, userID, conversationID string) ([]models.ChatMessage, error)
}

var ErrConversationNotFound = errors.New("conversation not found")

type PostgresConversationLog struct {
	DB *sql.DB
}

func NewPostgresConversationLog(db *sql.DB) *PostgresConversationLog {
	return &PostgresConversationLog{DB: db}
}

// Ensure returns conversationID when it belongs to the user, or creates a new
// conversation titled after the first message.
func (l *PostgresConversationLog) Ensure(ctx context.Context, userID, conversationID, firstMessage string) (string, error) {
	if conversationID != "" {
		var exists bool
		err := l.DB.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1 AND user_id = $2)`,
			conversationID, userID).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("failed to check conversation: %w", err)
		}
		if exists {
			return conversationID, nil
		}
	}

	id := uuid.New().String()
	_, err := l.DB.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, created_at)
		VALUES ($1, $2, $3, NOW())
	`, id, userID, conversationTitle(firstMessage))
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return id, nil
}

func (l *PostgresConversationLog) Append(ctx context.Context, conversationID string, msg models.ChatMessage) error {
	_, err := l.DB.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, silent, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, uuid.New().String(), conversationID, msg.Role, msg.Content, msg.Silent)
	if err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	return nil
}

func (l *PostgresConversationLog) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := l.DB.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(title, ''), created_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 50
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (l *PostgresConversationLog) Messages(ctx context.Context, userID, conversationID string) ([]models.ChatMessage, error) {
	var exists bool
	err := l.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1 AND user_id = $2)`,
		conversationID, userID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check conversation: %w", err)
	}
	if !exists {
		return nil, ErrConversationNotFound
	}

	rows, err := l.DB.QueryContext(ctx, `
		SELECT role, content
		FROM messages
		WHERE conversation_id = $1 AND silent = FALSE
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	messages := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func conversationTitle(firstMessage string) string {
	title := strings.Join(strings.Fields(firstMessage), " ")
	if title == "" {
		return "New conversation"
	}
	return truncateRunes(title, 60)
}
