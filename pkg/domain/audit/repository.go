package audit

import (
	"context"
	"time"

	"github.com/leakwatch/gateway/pkg/pagination"
)

// Repository defines the interface for audit persistence.
type Repository interface {
	// Create persists a new record. Creating the same ID twice is a no-op.
	Create(ctx context.Context, r *Record) error

	// List retrieves records matching the filter, newest first.
	List(ctx context.Context, filter Filter, page pagination.Window) (pagination.Result[*Record], error)

	// DeleteOlderThan deletes records older than before.
	// Used for retention policy enforcement.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Filter defines criteria for filtering records.
type Filter struct {
	Actor        string
	ResourceType ResourceType
	ResourceID   string
	Since        *time.Time
}

// Validate rejects filters the store cannot match.
func (f Filter) Validate() error {
	if f.ResourceType != "" && !f.ResourceType.IsValid() {
		return InvalidFilterError("unknown resource type " + string(f.ResourceType))
	}
	if f.Since != nil && f.Since.IsZero() {
		return InvalidFilterError("since is zero")
	}
	return nil
}
