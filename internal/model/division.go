package model

import (
	"time"

	"github.com/google/uuid"

	"compass/internal/softdelete"
)

const (
	TypeDivision  softdelete.EntityType = "Division"
	SlugDivisions                       = "divisions"
)

var DivisionNames = []string{"nisria", "maisha"}

type Division struct {
	softdelete.Behavior

	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	LeadID      *uuid.UUID `json:"lead"`
	DateCreated time.Time  `json:"date_created"`
	DateUpdated time.Time  `json:"date_updated"`
}

func (d *Division) Ref() softdelete.EntityRef { return softdelete.IntRef(TypeDivision, d.ID) }

func (d *Division) Snapshot() softdelete.Snapshot {
	return softdelete.Snapshot{}.
		Put("id", d.ID).
		Put("name", d.Name).
		Put("description", d.Description).
		Put("lead", d.LeadID).
		Put("date_created", d.DateCreated).
		Put("date_updated", d.DateUpdated)
}

func (d *Division) ApplySnapshot(s softdelete.Snapshot) error {
	r := snapshotReader{s: s}
	next := Division{
		ID:          r.int64("id"),
		Name:        r.text("name"),
		Description: r.text("description"),
		LeadID:      r.optUUID("lead"),
		DateCreated: r.time("date_created"),
		DateUpdated: r.time("date_updated"),
	}
	if r.err != nil {
		return r.err
	}

	next.Behavior = d.Behavior
	*d = next
	return nil
}

func (d *Division) Validate() error {
	return oneOf("name", d.Name, DivisionNames)
}
