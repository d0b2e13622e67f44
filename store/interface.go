package store

import (
	"context"
	"errors"

	"github.com/josephgoksu/plantrack/models"
)

var (
	// ErrNotFound is returned when no plan has the requested ID.
	ErrNotFound = errors.New("plan not found")

	// ErrConcurrentModify is returned by Save when the stored revision is not
	// the one the caller read. Reload and retry.
	ErrConcurrentModify = errors.New("plan was modified concurrently")
)

// PlanStore defines the interface for plan persistence.
// The core packages never call it; internal/app does.
type PlanStore interface {
	// Load retrieves a plan by ID. It returns ErrNotFound if the plan does not exist.
	Load(ctx context.Context, id string) (*models.Plan, error)

	// Save writes a plan. A new ID is inserted as is. For an existing ID the
	// stored revision must be exactly plan.Metadata.Revision-1, otherwise
	// Save fails with ErrConcurrentModify and nothing is written.
	Save(ctx context.Context, plan *models.Plan) error

	// List returns every stored plan ordered by ID.
	List(ctx context.Context) ([]*models.Plan, error)

	// Delete removes a plan. It returns ErrNotFound if the plan does not exist.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store, such as file locks or
	// database connections.
	Close() error
}

// CheckRevision applies the Save contract: stored is the revision on
// disk, exists reports whether the plan was found at all.
func CheckRevision(exists bool, stored int, plan *models.Plan) error {
	if !exists {
		return nil
	}
	if stored != plan.Metadata.Revision-1 {
		return ErrConcurrentModify
	}
	return nil
}
