package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"chatspace/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	// ErrInvalidID marks identifiers the store cannot even parse, as
	// opposed to well-formed ids that resolve to nothing.
	ErrInvalidID = errors.New("invalid identifier")
)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateChat(ctx context.Context, name string, isGroup bool, creatorID int, memberIDs []int) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	ListChatsForUser(ctx context.Context, userID int) ([]models.Chat, error)
	ListGroupsCreatedBy(ctx context.Context, userID int) ([]models.Chat, error)
	FindDirectChat(ctx context.Context, userID, otherID int) (models.Chat, error)
	AddMembers(ctx context.Context, chatID int, memberIDs []int) error
	SetMembers(ctx context.Context, chatID int, memberIDs []int, creatorID int) error
	Rename(ctx context.Context, chatID int, name string) error
	DeleteChat(ctx context.Context, chatID int) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateChat creates a chat and its member rows atomically. For group
// chats the creator is always part of the member set.
func (r *ChatRepo) CreateChat(ctx context.Context, name string, isGroup bool, creatorID int, memberIDs []int) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	var creator sql.NullInt64
	if isGroup {
		creator = sql.NullInt64{Int64: int64(creatorID), Valid: true}
	}
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (name, is_group, creator_id) VALUES ($1, $2, $3) RETURNING id, name, is_group, created_at`,
		name, isGroup, creator).
		Scan(&chat.ID, &chat.Name, &chat.IsGroup, &chat.CreatedAt); err != nil {
		return models.Chat{}, err
	}
	if isGroup {
		chat.CreatorID = creatorID
	}

	// dedupe and keep the creator in the set
	memberSet := map[int]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]int, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	chat.Members = ids
	return chat, nil
}

// GetChat fetches a single chat together with its member ids.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	var creator sql.NullInt64
	err := r.db.QueryRowxContext(ctx,
		`SELECT id, name, is_group, creator_id, created_at FROM chats WHERE id=$1`, chatID).
		Scan(&chat.ID, &chat.Name, &chat.IsGroup, &creator, &chat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	if creator.Valid {
		chat.CreatorID = int(creator.Int64)
	}

	if err := r.db.SelectContext(ctx, &chat.Members,
		`SELECT user_id FROM chat_members WHERE chat_id=$1 ORDER BY user_id`, chatID); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// ListChatsForUser returns the chats that include the user, members loaded.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID int) ([]models.Chat, error) {
	return r.listWithMembers(ctx,
		`SELECT c.id, c.name, c.is_group, COALESCE(c.creator_id, 0) AS creator_id, c.created_at
         FROM chats c INNER JOIN chat_members cm ON cm.chat_id = c.id
         WHERE cm.user_id=$1 ORDER BY c.created_at DESC`, userID)
}

// ListGroupsCreatedBy returns the group chats the user created.
func (r *ChatRepo) ListGroupsCreatedBy(ctx context.Context, userID int) ([]models.Chat, error) {
	return r.listWithMembers(ctx,
		`SELECT id, name, is_group, COALESCE(creator_id, 0) AS creator_id, created_at
         FROM chats WHERE is_group = TRUE AND creator_id=$1 ORDER BY created_at DESC`, userID)
}

// FindDirectChat returns the direct chat holding exactly the two users.
func (r *ChatRepo) FindDirectChat(ctx context.Context, userID, otherID int) (models.Chat, error) {
	var chatID int
	err := r.db.GetContext(ctx, &chatID,
		`SELECT c.id FROM chats c
         WHERE c.is_group = FALSE
           AND EXISTS (SELECT 1 FROM chat_members WHERE chat_id=c.id AND user_id=$1)
           AND EXISTS (SELECT 1 FROM chat_members WHERE chat_id=c.id AND user_id=$2)
         LIMIT 1`, userID, otherID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	return r.GetChat(ctx, chatID)
}

func (r *ChatRepo) listWithMembers(ctx context.Context, query string, arg int) ([]models.Chat, error) {
	var chats []models.Chat
	if err := r.db.SelectContext(ctx, &chats, query, arg); err != nil {
		return nil, err
	}
	for i := range chats {
		if err := r.db.SelectContext(ctx, &chats[i].Members,
			`SELECT user_id FROM chat_members WHERE chat_id=$1 ORDER BY user_id`, chats[i].ID); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

// AddMembers inserts member rows, skipping ids already present.
func (r *ChatRepo) AddMembers(ctx context.Context, chatID int, memberIDs []int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	for _, id := range memberIDs {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, chatID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetMembers replaces the member set and the creator in one transaction.
// This is the write half of the read-modify-write the lifecycle
// operations perform; the transaction is the consistency boundary.
func (r *ChatRepo) SetMembers(ctx context.Context, chatID int, memberIDs []int, creatorID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM chat_members WHERE chat_id=$1`, chatID); err != nil {
		return err
	}
	for _, id := range memberIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chatID, id); err != nil {
			return err
		}
	}
	var creator sql.NullInt64
	if creatorID != 0 {
		creator = sql.NullInt64{Int64: int64(creatorID), Valid: true}
	}
	if _, err = tx.ExecContext(ctx, `UPDATE chats SET creator_id=$2 WHERE id=$1`, chatID, creator); err != nil {
		return err
	}
	return tx.Commit()
}

// Rename updates the chat display name.
func (r *ChatRepo) Rename(ctx context.Context, chatID int, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET name=$2 WHERE id=$1`, chatID, name)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}

// DeleteChat removes the chat row; member rows cascade.
func (r *ChatRepo) DeleteChat(ctx context.Context, chatID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID)
	return err
}
