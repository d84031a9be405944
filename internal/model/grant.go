package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"compass/internal/softdelete"
)

const (
	TypeGrant  softdelete.EntityType = "Grant"
	SlugGrants                       = "grants"
)

var (
	GrantStatuses          = []string{"pending", "applied", "approved", "denied", "expired"}
	GrantOrganizationTypes = []string{"normal", "grant_awarder"}
)

// maxGrantAmount bounds amount_value to NUMERIC(15, 2).
var maxGrantAmount = decimal.New(1, 13)

type Grant struct {
	softdelete.Behavior

	ID                  int64           `json:"id"`
	OrganizationName    string          `json:"organization_name"`
	ApplicationLink     *string         `json:"application_link"`
	AmountCurrency      string          `json:"amount_currency"`
	AmountValue         decimal.Decimal `json:"amount_value"`
	ProgramID           *int64          `json:"program"`
	Notes               string          `json:"notes"`
	Status              string          `json:"status"`
	ContactTel          string          `json:"contact_tel"`
	ContactEmail        string          `json:"contact_email"`
	Location            string          `json:"location"`
	OrganizationType    string          `json:"organization_type"`
	ApplicationDeadline *Date           `json:"application_deadline"`
	AwardDate           *Date           `json:"award_date"`
	SubmittedBy         *uuid.UUID      `json:"submitted_by"`
	DateCreated         time.Time       `json:"date_created"`
	DateUpdated         time.Time       `json:"date_updated"`
}

func (g *Grant) Ref() softdelete.EntityRef { return softdelete.IntRef(TypeGrant, g.ID) }

func (g *Grant) Snapshot() softdelete.Snapshot {
	return softdelete.Snapshot{}.
		Put("id", g.ID).
		Put("organization_name", g.OrganizationName).
		Put("application_link", g.ApplicationLink).
		Put("amount_currency", g.AmountCurrency).
		Put("amount_value", g.AmountValue.StringFixed(2)).
		Put("program", g.ProgramID).
		Put("notes", g.Notes).
		Put("status", g.Status).
		Put("contact_tel", g.ContactTel).
		Put("contact_email", g.ContactEmail).
		Put("location", g.Location).
		Put("organization_type", g.OrganizationType).
		PutDate("application_deadline", g.ApplicationDeadline.TimePtr()).
		PutDate("award_date", g.AwardDate.TimePtr()).
		Put("submitted_by", g.SubmittedBy).
		Put("date_created", g.DateCreated).
		Put("date_updated", g.DateUpdated)
}

func (g *Grant) ApplySnapshot(s softdelete.Snapshot) error {
	r := snapshotReader{s: s}
	next := Grant{
		ID:                  r.int64("id"),
		OrganizationName:    r.text("organization_name"),
		ApplicationLink:     r.optText("application_link"),
		AmountCurrency:      r.text("amount_currency"),
		AmountValue:         r.decimal("amount_value"),
		ProgramID:           r.optInt64("program"),
		Notes:               r.text("notes"),
		Status:              r.text("status"),
		ContactTel:          r.text("contact_tel"),
		ContactEmail:        r.text("contact_email"),
		Location:            r.text("location"),
		OrganizationType:    r.text("organization_type"),
		ApplicationDeadline: r.optDate("application_deadline"),
		AwardDate:           r.optDate("award_date"),
		SubmittedBy:         r.optUUID("submitted_by"),
		DateCreated:         r.time("date_created"),
		DateUpdated:         r.time("date_updated"),
	}
	if r.err != nil {
		return r.err
	}

	next.Behavior = g.Behavior
	*g = next
	return nil
}

// Validate fills in the default pending status.
func (g *Grant) Validate() error {
	if strings.TrimSpace(g.Status) == "" {
		g.Status = "pending"
	}

	if err := requireText("organization_name", g.OrganizationName, 255); err != nil {
		return err
	}
	if g.ApplicationLink != nil && strings.TrimSpace(*g.ApplicationLink) != "" {
		if err := validURL("application_link", *g.ApplicationLink); err != nil {
			return err
		}
	}
	if err := requireText("amount_currency", g.AmountCurrency, 10); err != nil {
		return err
	}
	if g.AmountValue.IsNegative() || g.AmountValue.GreaterThanOrEqual(maxGrantAmount) {
		return fmt.Errorf("%w: amount_value must be between 0 and %s", ErrInvalidInput, maxGrantAmount)
	}
	if err := oneOf("status", g.Status, GrantStatuses); err != nil {
		return err
	}
	if err := requireText("contact_tel", g.ContactTel, 20); err != nil {
		return err
	}
	if err := validEmail("contact_email", g.ContactEmail); err != nil {
		return err
	}
	if err := requireText("location", g.Location, 255); err != nil {
		return err
	}
	return oneOf("organization_type", g.OrganizationType, GrantOrganizationTypes)
}

// AssignAuthor records the submitting user unless the request named one.
func (g *Grant) AssignAuthor(userID uuid.UUID) {
	if g.SubmittedBy == nil {
		g.SubmittedBy = &userID
	}
}
