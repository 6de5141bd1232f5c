package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chatspace/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads user records; this service never writes them.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	BulkUsers(ctx context.Context, ids []int) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a single user.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, username, avatar_url, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// BulkUsers fetches several users in one query. Every requested id must
// resolve; a missing id fails with ErrUserNotFound so callers don't
// build notifications around half-resolved names.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, username, avatar_url, created_at FROM users WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	found := make(map[int]struct{}, len(users))
	for _, u := range users {
		found[u.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return nil, ErrUserNotFound
		}
	}
	return users, nil
}
