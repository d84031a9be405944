// Package softdelete holds the recycle-bin core: the capability every
// soft-deletable record implements, the polymorphic key used to correlate a
// record with its tombstone, and the type registry that dispatches on it.
package softdelete

import (
	"context"
	"time"
)

// Record is implemented by every business type that can be soft-deleted.
type Record interface {
	Ref() EntityRef
	// Snapshot returns the business fields only, never is_deleted/deleted_at.
	Snapshot() Snapshot
	// MarkDeleted and MarkRestored only flip in-memory state; the caller persists.
	MarkDeleted(at time.Time)
	MarkRestored()
	IsDeleted() bool
	DeletedAt() *time.Time
}

// Behavior carries the deletion bookkeeping. Business types embed it to get
// the flag half of Record.
type Behavior struct {
	Deleted       bool       `json:"-"`
	DeletedAtTime *time.Time `json:"-"`
}

func (b *Behavior) MarkDeleted(at time.Time) {
	at = at.UTC()
	b.Deleted = true
	b.DeletedAtTime = &at
}

func (b *Behavior) MarkRestored() {
	b.Deleted = false
	b.DeletedAtTime = nil
}

func (b *Behavior) IsDeleted() bool { return b.Deleted }

func (b *Behavior) DeletedAt() *time.Time { return b.DeletedAtTime }

// Visibility selects which rows a lookup may return.
type Visibility uint8

const (
	// Default hides soft-deleted rows; every business read uses it.
	Default Visibility = iota
	// IncludingDeleted is reserved for recycle-bin paths that must reach a
	// tombstoned row.
	IncludingDeleted
)

func (v Visibility) String() string {
	if v == IncludingDeleted {
		return "including_deleted"
	}
	return "default"
}

// Descriptor names a registered type.
type Descriptor struct {
	Type    EntityType
	Slug    string
	KeyKind KeyKind
}

// Store is the per-type persistence the recycle bin dispatches to. Every
// method joins the transaction carried by ctx when there is one.
type Store interface {
	Descriptor() Descriptor
	// Find returns ErrNotFound when the row is absent in the given mode.
	Find(ctx context.Context, ref EntityRef, mode Visibility) (Record, error)
	// SaveDeletionState writes the record's is_deleted/deleted_at.
	SaveDeletionState(ctx context.Context, record Record) error
	// HardDelete erases the row, returning ErrNotFound when it is already gone.
	HardDelete(ctx context.Context, ref EntityRef) error
}

// Actor is whoever triggers an operation. The privilege predicate is decided
// outside this package.
type Actor interface {
	ActorID() string
	CanHardDelete() bool
}

type systemActor struct{}

func (systemActor) ActorID() string     { return "" }
func (systemActor) CanHardDelete() bool { return true }

// System is the privileged actor used by background jobs; it records no identity.
var System Actor = systemActor{}
