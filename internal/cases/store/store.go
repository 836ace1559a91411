// Package store persists cases. Implementations follow the store error
// contract: sentinel errors for infrastructure facts (not found, stale
// version, conflict), wrapped with context for real failures. Services
// translate sentinels into domain error codes.
package store

import (
	"context"

	"landregistry/internal/cases/models"
	"landregistry/pkg/domain"
)

// Store is the narrow read/write contract the engine's service depends on.
// The engine itself never touches it; one transition is one
// load → apply → update round trip.
type Store interface {
	// Create persists a new case. Returns sentinel.ErrConflict when the id
	// already exists.
	Create(ctx context.Context, c *models.Case) error

	// FindByID returns the current persisted case, or sentinel.ErrNotFound.
	FindByID(ctx context.Context, id domain.CaseID) (*models.Case, error)

	// Update persists a mutated case iff the stored version still matches
	// c.Version (optimistic lock), incrementing the version on success.
	// Returns sentinel.ErrStale when a concurrent transition won the race
	// and sentinel.ErrNotFound for unknown ids.
	Update(ctx context.Context, c *models.Case) (*models.Case, error)

	// ListByStatuses returns cases currently in any of the given statuses,
	// newest first.
	ListByStatuses(ctx context.Context, statuses []models.CaseStatus) ([]*models.Case, error)

	// ListByInitiator returns the initiator's cases, newest first.
	ListByInitiator(ctx context.Context, initiator domain.ActorID) ([]*models.Case, error)
}
