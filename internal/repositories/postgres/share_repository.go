package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asakaida/sharing/internal/entities"
	"github.com/asakaida/sharing/internal/repositories"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const grantColumns = `id, subject_kind, subject_id, target_kind, target_id, can_view, can_change, can_delete, created_at, updated_at`

// PostgresShareRepository implements ShareRepository using PostgreSQL
type PostgresShareRepository struct {
	db *sql.DB
}

// NewPostgresShareRepository creates a new PostgreSQL share repository
func NewPostgresShareRepository(db *sql.DB) repositories.ShareRepository {
	return &PostgresShareRepository{db: db}
}

// Create stores a new grant with a fresh UUID
func (r *PostgresShareRepository) Create(ctx context.Context, grant *entities.Grant) (*entities.Grant, error) {
	if err := grant.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grant: %w", err)
	}

	query := `
		INSERT INTO grants (
			id, subject_kind, subject_id, target_kind, target_id,
			can_view, can_change, can_delete, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING ` + grantColumns

	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, query,
		uuid.NewString(), string(grant.Subject.Kind), grant.Subject.ID,
		grant.Target.Kind, grant.Target.ID,
		grant.CanView, grant.CanChange, grant.CanDelete, now,
	)

	created, err := scanGrant(row)
	if err != nil {
		return nil, repositories.NewStorageError("create grant", err)
	}

	return created, nil
}

// Get retrieves a grant by ID
func (r *PostgresShareRepository) Get(ctx context.Context, id string) (*entities.Grant, error) {
	if _, err := uuid.Parse(id); err != nil {
		// Not a UUID, so it cannot name a stored grant
		return nil, repositories.ErrGrantNotFound
	}

	query := `SELECT ` + grantColumns + ` FROM grants WHERE id = $1`
	grant, err := scanGrant(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repositories.ErrGrantNotFound
	}
	if err != nil {
		return nil, repositories.NewStorageError("get grant", err)
	}

	return grant, nil
}

// List retrieves grants matching the filter
func (r *PostgresShareRepository) List(ctx context.Context, filter *repositories.GrantFilter) ([]*entities.Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM grants WHERE TRUE`
	args := []interface{}{}
	argIdx := 1

	// Build dynamic WHERE clause based on filter
	if filter != nil {
		if filter.TargetKind != "" {
			query += fmt.Sprintf(" AND target_kind = $%d", argIdx)
			args = append(args, filter.TargetKind)
			argIdx++
		}
		if filter.TargetID != "" {
			query += fmt.Sprintf(" AND target_id = $%d", argIdx)
			args = append(args, filter.TargetID)
			argIdx++
		}
		if filter.SubjectKind != "" {
			query += fmt.Sprintf(" AND subject_kind = $%d", argIdx)
			args = append(args, string(filter.SubjectKind))
			argIdx++
		}
		if filter.SubjectID != "" {
			query += fmt.Sprintf(" AND subject_id = $%d", argIdx)
			args = append(args, filter.SubjectID)
			argIdx++
		}
	}

	query += " ORDER BY created_at, id"

	return r.queryGrants(ctx, "list grants", query, args...)
}

// UpdateCapabilities replaces the capability flags of a grant
func (r *PostgresShareRepository) UpdateCapabilities(ctx context.Context, id string, caps entities.CapabilitySet) (*entities.Grant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repositories.ErrGrantNotFound
	}

	query := `
		UPDATE grants
		SET can_view = $2, can_change = $3, can_delete = $4, updated_at = $5
		WHERE id = $1
		RETURNING ` + grantColumns

	grant, err := scanGrant(r.db.QueryRowContext(ctx, query,
		id, caps.View, caps.Change, caps.Delete, time.Now().UTC(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repositories.ErrGrantNotFound
	}
	if err != nil {
		return nil, repositories.NewStorageError("update grant", err)
	}

	return grant, nil
}

// Delete removes a grant
func (r *PostgresShareRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return repositories.ErrGrantNotFound
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM grants WHERE id = $1`, id)
	if err != nil {
		return repositories.NewStorageError("delete grant", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return repositories.NewStorageError("delete grant", err)
	}
	if affected == 0 {
		return repositories.ErrGrantNotFound
	}

	return nil
}

// DeleteByTarget removes every grant referencing the target
func (r *PostgresShareRepository) DeleteByTarget(ctx context.Context, target entities.ObjectRef) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM grants WHERE target_kind = $1 AND target_id = $2`,
		target.Kind, target.ID,
	)
	if err != nil {
		return 0, repositories.NewStorageError("delete grants by target", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, repositories.NewStorageError("delete grants by target", err)
	}

	return affected, nil
}

// ListTargets returns the distinct targets referenced by grants
func (r *PostgresShareRepository) ListTargets(ctx context.Context) ([]entities.ObjectRef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT target_kind, target_id
		FROM grants
		ORDER BY target_kind, target_id
	`)
	if err != nil {
		return nil, repositories.NewStorageError("list targets", err)
	}
	defer rows.Close()

	targets := make([]entities.ObjectRef, 0)
	for rows.Next() {
		var ref entities.ObjectRef
		if err := rows.Scan(&ref.Kind, &ref.ID); err != nil {
			return nil, repositories.NewStorageError("scan target", err)
		}
		targets = append(targets, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, repositories.NewStorageError("iterate targets", err)
	}

	return targets, nil
}

// GrantsForUserAndTarget retrieves the user grants of a user on a target
func (r *PostgresShareRepository) GrantsForUserAndTarget(ctx context.Context, userID string, target entities.ObjectRef) ([]*entities.Grant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM grants
		WHERE subject_kind = 'user'
			AND subject_id = $1
			AND target_kind = $2
			AND target_id = $3
		ORDER BY created_at, id
	`
	return r.queryGrants(ctx, "read user grants", query, userID, target.Kind, target.ID)
}

// GrantsForGroupsAndTarget retrieves the group grants of any of the groups on a target
func (r *PostgresShareRepository) GrantsForGroupsAndTarget(ctx context.Context, groupIDs []string, target entities.ObjectRef) ([]*entities.Grant, error) {
	if len(groupIDs) == 0 {
		return []*entities.Grant{}, nil
	}

	query := `
		SELECT ` + grantColumns + `
		FROM grants
		WHERE subject_kind = 'group'
			AND subject_id = ANY($1)
			AND target_kind = $2
			AND target_id = $3
		ORDER BY created_at, id
	`
	return r.queryGrants(ctx, "read group grants", query, pq.Array(groupIDs), target.Kind, target.ID)
}

// GrantsForUserAndTargets retrieves the user grants of a user on any of the targets in one query
func (r *PostgresShareRepository) GrantsForUserAndTargets(ctx context.Context, userID string, targets []entities.ObjectRef) ([]*entities.Grant, error) {
	if len(targets) == 0 {
		return []*entities.Grant{}, nil
	}

	kinds, ids := splitTargets(targets)
	query := `
		SELECT ` + grantColumns + `
		FROM grants
		WHERE subject_kind = 'user'
			AND subject_id = $1
			AND (target_kind, target_id) IN (
				SELECT * FROM unnest($2::text[], $3::text[])
			)
		ORDER BY created_at, id
	`
	return r.queryGrants(ctx, "read user grants", query, userID, pq.Array(kinds), pq.Array(ids))
}

// GrantsForGroupsAndTargets retrieves the group grants of any of the groups on any of the targets in one query
func (r *PostgresShareRepository) GrantsForGroupsAndTargets(ctx context.Context, groupIDs []string, targets []entities.ObjectRef) ([]*entities.Grant, error) {
	if len(groupIDs) == 0 || len(targets) == 0 {
		return []*entities.Grant{}, nil
	}

	kinds, ids := splitTargets(targets)
	query := `
		SELECT ` + grantColumns + `
		FROM grants
		WHERE subject_kind = 'group'
			AND subject_id = ANY($1)
			AND (target_kind, target_id) IN (
				SELECT * FROM unnest($2::text[], $3::text[])
			)
		ORDER BY created_at, id
	`
	return r.queryGrants(ctx, "read group grants", query, pq.Array(groupIDs), pq.Array(kinds), pq.Array(ids))
}

// queryGrants runs a SELECT returning grantColumns
func (r *PostgresShareRepository) queryGrants(ctx context.Context, op string, query string, args ...interface{}) ([]*entities.Grant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, repositories.NewStorageError(op, err)
	}
	defer rows.Close()

	grants := make([]*entities.Grant, 0)
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, repositories.NewStorageError(op, err)
		}
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, repositories.NewStorageError(op, err)
	}

	return grants, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGrant(row rowScanner) (*entities.Grant, error) {
	var grant entities.Grant
	var subjectKind string

	err := row.Scan(
		&grant.ID, &subjectKind, &grant.Subject.ID,
		&grant.Target.Kind, &grant.Target.ID,
		&grant.CanView, &grant.CanChange, &grant.CanDelete,
		&grant.CreatedAt, &grant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	grant.Subject.Kind = entities.SubjectKind(strings.TrimSpace(subjectKind))
	return &grant, nil
}

func splitTargets(targets []entities.ObjectRef) ([]string, []string) {
	kinds := make([]string, len(targets))
	ids := make([]string, len(targets))
	for i, t := range targets {
		kinds[i] = t.Kind
		ids[i] = t.ID
	}
	return kinds, ids
}
