package permissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	dErrors "batisecure/pkg/domain-errors"
)

// PostgresRoleStore resolves roles from the users table.
type PostgresRoleStore struct {
	db *sql.DB
}

// NewPostgresRoleStore constructs a PostgreSQL-backed role store.
func NewPostgresRoleStore(db *sql.DB) *PostgresRoleStore {
	return &PostgresRoleStore{db: db}
}

func (s *PostgresRoleStore) RoleByUserID(ctx context.Context, userID string) (Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return "", fmt.Errorf("query user role: %w", err)
	}
	r := Role(role)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unknown role %q", role))
	}
	return r, nil
}
