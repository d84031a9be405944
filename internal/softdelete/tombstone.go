package softdelete

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultRetention is how long a tombstone stays restorable.
const DefaultRetention = 70 * 24 * time.Hour

// Tombstone records one soft-delete event.
type Tombstone struct {
	ID         uuid.UUID
	Ref        EntityRef
	Snapshot   Snapshot
	DeletedAt  time.Time
	DeletedBy  *string
	ExpiresAt  time.Time
	RestoredAt *time.Time
	RestoredBy *string
}

// NewTombstone builds the tombstone for deleting ref at deletedAt. A zero
// expiresAt falls back to deletedAt plus retention.
func NewTombstone(ref EntityRef, snapshot Snapshot, actor Actor, deletedAt time.Time, expiresAt time.Time, retention time.Duration) (Tombstone, error) {
	if ref.IsZero() {
		return Tombstone{}, fmt.Errorf("%w: tombstone needs an entity reference", ErrInconsistentState)
	}
	if err := snapshot.Validate(); err != nil {
		return Tombstone{}, err
	}

	deletedAt = deletedAt.UTC()
	if expiresAt.IsZero() {
		if retention <= 0 {
			retention = DefaultRetention
		}
		expiresAt = deletedAt.Add(retention)
	}
	if !expiresAt.After(deletedAt) {
		return Tombstone{}, fmt.Errorf("%w: expires_at must be after deleted_at", ErrInvalidExpiry)
	}

	t := Tombstone{
		ID:        uuid.New(),
		Ref:       ref,
		Snapshot:  snapshot.Clone(),
		DeletedAt: deletedAt,
		ExpiresAt: expiresAt.UTC(),
	}
	if actor != nil {
		if id := actor.ActorID(); id != "" {
			t.DeletedBy = &id
		}
	}
	return t, nil
}

func (t Tombstone) IsRestored() bool { return t.RestoredAt != nil }

func (t Tombstone) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Restorable reports whether the tombstone may still be reversed at now.
func (t Tombstone) Restorable(now time.Time, allowExpired bool) bool {
	if t.IsRestored() {
		return false
	}
	return allowExpired || !t.IsExpired(now)
}
