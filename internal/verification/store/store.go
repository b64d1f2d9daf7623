// Package store persists verification records keyed by id and mono reference.
//
// Both implementations express every status change as one atomic step: a single
// conditional UPDATE in Postgres, a single critical section in memory. Status and
// raw response are never written separately.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Khrees2412/provepoc/internal/verification/models"
)

// DefaultListLimit bounds List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Store is the contract shared by the memory and Postgres implementations.
type Store interface {
	// Insert fails with sentinel.ErrConflict when the id or mono reference is taken.
	Insert(ctx context.Context, v *models.Verification) error
	// FindByReference returns sentinel.ErrNotFound when nothing matches.
	FindByReference(ctx context.Context, reference string) (*models.Verification, error)
	// UpdateStatus is the unconditional variant of Transition: it sets status,
	// raw response and updated_at whatever the current status is. The service
	// applies webhooks through Transition.
	UpdateStatus(ctx context.Context, reference string, status models.Status, raw json.RawMessage, now time.Time) (*models.Verification, error)
	// Transition applies the same write only while the record's status is in from.
	// A non-empty customerID is written in the same statement. applied=false
	// returns the unchanged record.
	Transition(ctx context.Context, reference string, to models.Status, from []models.Status, raw json.RawMessage, customerID string, now time.Time) (*models.Verification, bool, error)
	// List returns the newest records first.
	List(ctx context.Context, limit int) ([]*models.Verification, error)
}
