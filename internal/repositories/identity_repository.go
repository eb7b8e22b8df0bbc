package repositories

import (
	"context"

	"github.com/asakaida/sharing/internal/entities"
)

// IdentityRepository defines the interface for reading users and group memberships
type IdentityRepository interface {
	// GetUser resolves a user ID with its current groups
	// Unknown or inactive users resolve to an anonymous user, not an error.
	GetUser(ctx context.Context, userID string) (*entities.User, error)

	// UserExists checks if an active user record exists
	UserExists(ctx context.Context, userID string) (bool, error)

	// AddMember adds a user to a group (idempotent)
	AddMember(ctx context.Context, userID string, groupID string) error

	// RemoveMember removes a user from a group
	RemoveMember(ctx context.Context, userID string, groupID string) error
}
