package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/asakaida/sharing/internal/entities"
	"github.com/asakaida/sharing/internal/repositories"
)

// PostgresIdentityRepository implements IdentityRepository using PostgreSQL
type PostgresIdentityRepository struct {
	db *sql.DB
}

// NewPostgresIdentityRepository creates a new PostgreSQL identity repository
func NewPostgresIdentityRepository(db *sql.DB) repositories.IdentityRepository {
	return &PostgresIdentityRepository{db: db}
}

// GetUser resolves an active user with its groups
func (r *PostgresIdentityRepository) GetUser(ctx context.Context, userID string) (*entities.User, error) {
	if userID == "" {
		return entities.Anonymous(), nil
	}

	var superuser bool
	err := r.db.QueryRowContext(ctx,
		`SELECT is_superuser FROM users WHERE id = $1 AND is_active`,
		userID,
	).Scan(&superuser)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Anonymous(), nil
	}
	if err != nil {
		return nil, repositories.NewStorageError("read user", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT group_id FROM group_memberships WHERE user_id = $1 ORDER BY group_id`,
		userID,
	)
	if err != nil {
		return nil, repositories.NewStorageError("read group memberships", err)
	}
	defer rows.Close()

	groups := make([]string, 0)
	for rows.Next() {
		var groupID string
		if err := rows.Scan(&groupID); err != nil {
			return nil, repositories.NewStorageError("scan group membership", err)
		}
		groups = append(groups, groupID)
	}

	if err := rows.Err(); err != nil {
		return nil, repositories.NewStorageError("iterate group memberships", err)
	}

	return &entities.User{
		ID:            userID,
		Authenticated: true,
		Superuser:     superuser,
		Groups:        groups,
	}, nil
}

// UserExists checks if an active user record exists
func (r *PostgresIdentityRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND is_active)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, repositories.NewStorageError("check user existence", err)
	}

	return exists, nil
}

// AddMember adds a user to a group, creating the user record if needed
func (r *PostgresIdentityRepository) AddMember(ctx context.Context, userID string, groupID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repositories.NewStorageError("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		userID,
	); err != nil {
		return repositories.NewStorageError("create user", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_memberships (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, groupID,
	); err != nil {
		return repositories.NewStorageError("add group member", err)
	}

	if err := tx.Commit(); err != nil {
		return repositories.NewStorageError("commit transaction", err)
	}

	return nil
}

// RemoveMember removes a user from a group
func (r *PostgresIdentityRepository) RemoveMember(ctx context.Context, userID string, groupID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM group_memberships WHERE user_id = $1 AND group_id = $2`,
		userID, groupID,
	)
	if err != nil {
		return repositories.NewStorageError("remove group member", err)
	}

	return nil
}

// PutUser creates or updates a user record
func (r *PostgresIdentityRepository) PutUser(ctx context.Context, userID string, superuser bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, is_superuser, is_active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (id) DO UPDATE SET is_superuser = EXCLUDED.is_superuser, is_active = TRUE
	`, userID, superuser)
	if err != nil {
		return repositories.NewStorageError("put user", err)
	}

	return nil
}
