// Package repository wraps all SQL used throughout the API and worker. It
// implements the same store interfaces as the in-memory store, backed by
// Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/workflow"
)

// Store holds the shared connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a repository.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func notFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, workflow.ErrNotFound)
}

// --- identity ---

// CreateUser inserts a directory entry.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, full_name, email, password_hash, active, roles, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, u.ID, u.FullName, u.Email, u.PasswordHash, u.Active, u.Roles, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	return s.userBy(ctx, "id", id)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.userBy(ctx, "email", email)
}

func (s *Store) userBy(ctx context.Context, column, value string) (*model.User, error) {
	var u model.User
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, full_name, email, password_hash, active, roles, created_at
		FROM users WHERE %s=$1
	`, column), value)
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Active, &u.Roles, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("user", value)
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

// SaveUser updates the mutable fields of a directory entry.
func (s *Store) SaveUser(ctx context.Context, u *model.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET full_name=$1, email=$2, password_hash=$3, active=$4, roles=$5
		WHERE id=$6
	`, u.FullName, u.Email, u.PasswordHash, u.Active, u.Roles, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("user", u.ID)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, full_name, email, password_hash, active, roles, created_at
		FROM users ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Active, &u.Roles, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
