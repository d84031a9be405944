package model

import (
	"time"

	"compass/internal/softdelete"
)

// RecycleBinItem is the listing view of a tombstone.
type RecycleBinItem struct {
	ID         string              `json:"id"`
	EntityType string              `json:"entity_type"`
	EntityID   string              `json:"entity_id"`
	Snapshot   softdelete.Snapshot `json:"snapshot"`
	DeletedAt  time.Time           `json:"deleted_at"`
	DeletedBy  *string             `json:"deleted_by"`
	ExpiresAt  time.Time           `json:"expires_at"`
	IsExpired  bool                `json:"is_expired"`
	RestoredAt *time.Time          `json:"restored_at"`
	RestoredBy *string             `json:"restored_by"`
}

func NewRecycleBinItem(t softdelete.Tombstone, now time.Time) RecycleBinItem {
	return RecycleBinItem{
		ID:         t.ID.String(),
		EntityType: string(t.Ref.Type),
		EntityID:   t.Ref.Key(),
		Snapshot:   t.Snapshot,
		DeletedAt:  t.DeletedAt,
		DeletedBy:  t.DeletedBy,
		ExpiresAt:  t.ExpiresAt,
		IsExpired:  t.IsExpired(now),
		RestoredAt: t.RestoredAt,
		RestoredBy: t.RestoredBy,
	}
}

// DeleteOutcome says how a delete request was carried out.
type DeleteOutcome struct {
	EntityType  string  `json:"entity_type"`
	EntityID    string  `json:"entity_id"`
	Permanent   bool    `json:"permanent"`
	TombstoneID *string `json:"tombstone_id,omitempty"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
}

// RestoreOutcome identifies the record brought back.
type RestoreOutcome struct {
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	TombstoneID string    `json:"tombstone_id"`
	RestoredAt  time.Time `json:"restored_at"`
}
