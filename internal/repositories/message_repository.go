package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"chatspace/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for messages and their
// attachment rows.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID, senderID int, content string, attachments []models.Attachment) (models.Message, error)
	ListMessagesPage(ctx context.Context, chatID, limit, offset int) ([]models.Message, error)
	CountMessages(ctx context.Context, chatID int) (int, error)
	ListAttachmentRefs(ctx context.Context, chatID int) ([]models.AttachmentRef, error)
	DeleteChatMessages(ctx context.Context, chatID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and its attachment rows atomically,
// preserving attachment order.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID, senderID int, content string, attachments []models.Attachment) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.Message
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, content) VALUES ($1, $2, $3) RETURNING id, chat_id, sender_id, content, created_at`,
		chatID, senderID, content).
		Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.CreatedAt); err != nil {
		return models.Message{}, err
	}

	for i, a := range attachments {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO attachments (message_id, public_id, resource_type, url, position) VALUES ($1, $2, $3, $4, $5)`,
			msg.ID, a.PublicID, a.ResourceType, a.URL, i); err != nil {
			return models.Message{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	msg.Attachments = attachments
	return msg, nil
}

// ListMessagesPage returns one newest-first window of chat messages with
// their attachments loaded in stored order.
func (r *MessageRepo) ListMessagesPage(ctx context.Context, chatID, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, chat_id, sender_id, content, created_at FROM messages
         WHERE chat_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if err := r.db.SelectContext(ctx, &msgs[i].Attachments,
			`SELECT public_id, resource_type, url FROM attachments WHERE message_id=$1 ORDER BY position`,
			msgs[i].ID); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// CountMessages returns the number of messages in the chat.
func (r *MessageRepo) CountMessages(ctx context.Context, chatID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE chat_id=$1`, chatID)
	return count, err
}

// ListAttachmentRefs flattens the blob references of every message in
// the chat, for the deletion cascade.
func (r *MessageRepo) ListAttachmentRefs(ctx context.Context, chatID int) ([]models.AttachmentRef, error) {
	var refs []models.AttachmentRef
	err := r.db.SelectContext(ctx, &refs,
		`SELECT a.public_id, a.resource_type FROM attachments a
         INNER JOIN messages m ON m.id = a.message_id
         WHERE m.chat_id=$1 ORDER BY a.id`, chatID)
	return refs, err
}

// DeleteChatMessages removes every message of the chat; attachment rows
// cascade.
func (r *MessageRepo) DeleteChatMessages(ctx context.Context, chatID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id=$1`, chatID)
	return err
}
