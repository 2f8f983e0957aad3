package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/PixlGalaxy/EagleDocs/internal/models"
)

// ChatRepository persists chats and their messages.
type ChatRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewChatRepository constructs the repository.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a chat.
func (r *ChatRepository) Create(ctx context.Context, chat *models.Chat) error {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = r.now()
	}
	const query = `INSERT INTO chats (id, user_id, title, created_at) VALUES (:id, :user_id, :title, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, chat); err != nil {
		return fmt.Errorf("create chat: %w", err)
	}
	return nil
}

// ListByUser returns a user's chats, newest first.
func (r *ChatRepository) ListByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	const query = `SELECT id, user_id, title, created_at FROM chats WHERE user_id = $1 ORDER BY created_at DESC`
	var chats []models.Chat
	if err := r.db.SelectContext(ctx, &chats, query, userID); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// GetForUser returns the chat only if userID owns it; otherwise sql.ErrNoRows.
func (r *ChatRepository) GetForUser(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	const query = `SELECT id, user_id, title, created_at FROM chats WHERE id = $1 AND user_id = $2`
	var chat models.Chat
	if err := r.db.GetContext(ctx, &chat, query, chatID, userID); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListMessages returns a chat's messages in timestamp order.
func (r *ChatRepository) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	const query = `SELECT id, chat_id, sender, content, timestamp FROM messages WHERE chat_id = $1 ORDER BY timestamp ASC`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, chatID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// BeginTurn locks the chat row, reads the history and appends the user's message,
// all in one transaction. Concurrent turns on the same chat serialize on the lock.
// The returned history excludes the new message.
func (r *ChatRepository) BeginTurn(ctx context.Context, chatID, userID, content string) (history []models.Message, userMsg *models.Message, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin chat turn: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lockedID string
	const lockQuery = `SELECT id FROM chats WHERE id = $1 AND user_id = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &lockedID, lockQuery, chatID, userID); err != nil {
		return nil, nil, fmt.Errorf("lock chat: %w", err)
	}

	const historyQuery = `SELECT id, chat_id, sender, content, timestamp FROM messages WHERE chat_id = $1 ORDER BY timestamp ASC`
	if err = tx.SelectContext(ctx, &history, historyQuery, chatID); err != nil {
		return nil, nil, fmt.Errorf("load chat history: %w", err)
	}

	userMsg = &models.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Sender:    models.SenderUser,
		Content:   content,
		Timestamp: r.now(),
	}
	if err = insertMessage(ctx, tx, userMsg); err != nil {
		return nil, nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit chat turn: %w", err)
	}
	return history, userMsg, nil
}

// AppendMessage adds a message outside of a turn transaction.
func (r *ChatRepository) AppendMessage(ctx context.Context, chatID, sender, content string) (*models.Message, error) {
	msg := &models.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Sender:    sender,
		Content:   content,
		Timestamp: r.now(),
	}
	if err := insertMessage(ctx, r.db, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func insertMessage(ctx context.Context, exec sqlx.ExecerContext, msg *models.Message) error {
	const query = `INSERT INTO messages (id, chat_id, sender, content, timestamp) VALUES ($1, $2, $3, $4, $5)`
	if _, err := exec.ExecContext(ctx, query, msg.ID, msg.ChatID, msg.Sender, msg.Content, msg.Timestamp); err != nil {
		return fmt.Errorf("insert %s message: %w", msg.Sender, err)
	}
	return nil
}
