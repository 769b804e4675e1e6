package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/weekend-academy-api/internal/models"
)

// ClassRepository reads classes together with their live roster size.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository wires the repository to the pool.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns the class and how many students are currently placed in
// it. sql.ErrNoRows comes back unwrapped.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `
SELECT c.id, c.course_id, c.name, c.capacity, c.created_at,
       (SELECT COUNT(*) FROM students s WHERE s.class_id = c.id) AS enrolled
FROM classes c
WHERE c.id = $1`
	var class models.Class
	err := r.db.GetContext(ctx, &class, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("load class %s: %w", id, err)
	}
	return &class, nil
}
