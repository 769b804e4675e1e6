package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/weekend-academy-api/internal/models"
)

const adminColumns = `id, email, password_hash, full_name, role, active, last_login_at, created_at, updated_at`

// UserRepository reads and stamps administrator accounts. Teachers and
// students live in their own tables.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository wires the repository to the pool.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail matches case-insensitively. sql.ErrNoRows means "not an admin"
// and is returned unwrapped so the login chain can fall through.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + adminColumns + ` FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var admin models.User
	err := r.db.GetContext(ctx, &admin, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("lookup admin %q: %w", email, err)
	}
	return &admin, nil
}

// RecordLogin stamps a successful sign-in.
func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("record login for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
