package repositories

import (
	"context"

	"github.com/asakaida/sharing/internal/entities"
)

// GrantFilter defines filter criteria for listing grants
type GrantFilter struct {
	TargetKind  string               // Filter by target kind (optional)
	TargetID    string               // Filter by target ID (optional)
	SubjectKind entities.SubjectKind // Filter by subject kind (optional)
	SubjectID   string               // Filter by subject ID (optional)
}

// ShareRepository defines the interface for grant data access
// Query methods return an empty slice, not an error, when nothing matches.
type ShareRepository interface {
	// Create stores a new grant and assigns its ID and timestamps
	Create(ctx context.Context, grant *entities.Grant) (*entities.Grant, error)

	// Get retrieves a grant by ID
	// Returns ErrGrantNotFound if the grant does not exist
	Get(ctx context.Context, id string) (*entities.Grant, error)

	// List retrieves grants matching the filter in creation order
	List(ctx context.Context, filter *GrantFilter) ([]*entities.Grant, error)

	// UpdateCapabilities replaces the capability flags of a grant
	// Subject and target are never modified.
	UpdateCapabilities(ctx context.Context, id string, caps entities.CapabilitySet) (*entities.Grant, error)

	// Delete removes a grant
	// Returns ErrGrantNotFound if the grant does not exist
	Delete(ctx context.Context, id string) error

	// DeleteByTarget removes every grant referencing the target and returns the count
	DeleteByTarget(ctx context.Context, target entities.ObjectRef) (int64, error)

	// ListTargets returns the distinct targets referenced by grants
	ListTargets(ctx context.Context) ([]entities.ObjectRef, error)

	// GrantsForUserAndTarget retrieves the user grants of a user on a target
	GrantsForUserAndTarget(ctx context.Context, userID string, target entities.ObjectRef) ([]*entities.Grant, error)

	// GrantsForGroupsAndTarget retrieves the group grants of any of the groups on a target
	GrantsForGroupsAndTarget(ctx context.Context, groupIDs []string, target entities.ObjectRef) ([]*entities.Grant, error)

	// GrantsForUserAndTargets is the batched form of GrantsForUserAndTarget
	GrantsForUserAndTargets(ctx context.Context, userID string, targets []entities.ObjectRef) ([]*entities.Grant, error)

	// GrantsForGroupsAndTargets is the batched form of GrantsForGroupsAndTarget
	GrantsForGroupsAndTargets(ctx context.Context, groupIDs []string, targets []entities.ObjectRef) ([]*entities.Grant, error)
}
