package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"transfer_requests_back/models"
)

const userColumns = `id, email, name, role_id, wallet_address, wallet_verified, is_active, created_at`

type UsersPostgres struct {
	db *sqlx.DB
}

func NewUsersPostgres(db *sqlx.DB) *UsersPostgres {
	return &UsersPostgres{db: db}
}

func (r *UsersPostgres) GetUser(ctx context.Context, id int64) (models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND is_active`
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return user, ErrNotFound
	}
	return user, errors.Wrap(err, "get user")
}

func (r *UsersPostgres) GetUsers(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	var users []models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1) AND is_active`
	if err := r.db.SelectContext(ctx, &users, query, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "get users")
	}
	out := make(map[int64]models.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *UsersPostgres) SetVerifiedWallet(ctx context.Context, userID int64, address string) (models.User, error) {
	var user models.User
	query := `
        UPDATE users SET wallet_address = $1, wallet_verified = true
        WHERE id = $2 AND is_active
        RETURNING ` + userColumns
	err := r.db.GetContext(ctx, &user, query, address, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return user, ErrNotFound
	}
	return user, errors.Wrap(err, "set wallet")
}
