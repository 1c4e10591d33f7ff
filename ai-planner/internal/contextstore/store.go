package contextstore

import (
	"context"
	"time"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

var ErrNotFound = models.ErrNotFound

// Store keeps PlanRecords under keys it assigns. Stored records are never
// mutated; a changed plan is stored again under a new key.
type Store interface {
	// Store persists rec and returns a fresh key that is never reused, even
	// after the record is purged.
	Store(ctx context.Context, rec models.PlanRecord) (models.ContextKey, error)

	// Retrieve returns ErrNotFound for keys never stored or purged by retention.
	Retrieve(ctx context.Context, key models.ContextKey) (models.PlanRecord, error)

	// Recent returns at most limit plans, most recent first. limit 0 yields an
	// empty slice.
	Recent(ctx context.Context, limit int) ([]models.StoredPlan, error)

	// Purge applies an explicit retention policy and reports how many records
	// were removed. Nothing is evicted implicitly.
	Purge(ctx context.Context, policy RetentionPolicy) (int, error)

	Ping(ctx context.Context) error
}

// RetentionPolicy is applied only when Purge is called. Zero fields disable
// the corresponding rule.
type RetentionPolicy struct {
	MaxRecords int
	MaxAge     time.Duration
	// Now overrides the clock used for MaxAge; nil means time.Now.
	Now func() time.Time
}

func (p RetentionPolicy) Enabled() bool {
	return p.MaxRecords > 0 || p.MaxAge > 0
}

func (p RetentionPolicy) cutoff() (time.Time, bool) {
	if p.MaxAge <= 0 {
		return time.Time{}, false
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().UTC().Add(-p.MaxAge), true
}
