package model

import (
	"time"

	"github.com/google/uuid"

	"compass/internal/softdelete"
)

const (
	TypeEmailTemplate  softdelete.EntityType = "EmailTemplate"
	SlugEmailTemplates                       = "email-templates"
)

var EmailTemplateTypes = []string{
	"grant_application", "partnership_appeal", "service_provision_contract",
	"program_application", "impact_Update_to_donors", "employee_contract", "concept_note",
}

// EmailTemplate bodies use {{placeholders}} for dynamic fields.
type EmailTemplate struct {
	softdelete.Behavior

	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	TemplateType    string     `json:"template_type"`
	SubjectTemplate string     `json:"subject_template"`
	BodyTemplate    string     `json:"body_template"`
	CreatedBy       *uuid.UUID `json:"created_by"`
	UpdatedBy       *uuid.UUID `json:"updated_by"`
	DateCreated     time.Time  `json:"date_created"`
	LastUpdated     time.Time  `json:"last_updated"`
}

func (t *EmailTemplate) Ref() softdelete.EntityRef {
	return softdelete.UUIDRef(TypeEmailTemplate, t.ID)
}

func (t *EmailTemplate) Snapshot() softdelete.Snapshot {
	return softdelete.Snapshot{}.
		Put("id", t.ID).
		Put("name", t.Name).
		Put("template_type", t.TemplateType).
		Put("subject_template", t.SubjectTemplate).
		Put("body_template", t.BodyTemplate).
		Put("created_by", t.CreatedBy).
		Put("updated_by", t.UpdatedBy).
		Put("date_created", t.DateCreated).
		Put("last_updated", t.LastUpdated)
}

func (t *EmailTemplate) ApplySnapshot(s softdelete.Snapshot) error {
	r := snapshotReader{s: s}
	next := EmailTemplate{
		ID:              r.uuid("id"),
		Name:            r.text("name"),
		TemplateType:    r.text("template_type"),
		SubjectTemplate: r.text("subject_template"),
		BodyTemplate:    r.text("body_template"),
		CreatedBy:       r.optUUID("created_by"),
		UpdatedBy:       r.optUUID("updated_by"),
		DateCreated:     r.time("date_created"),
		LastUpdated:     r.time("last_updated"),
	}
	if r.err != nil {
		return r.err
	}

	next.Behavior = t.Behavior
	*t = next
	return nil
}

func (t *EmailTemplate) Validate() error {
	if err := requireText("name", t.Name, 100); err != nil {
		return err
	}
	if err := oneOf("template_type", t.TemplateType, EmailTemplateTypes); err != nil {
		return err
	}
	if err := requireText("subject_template", t.SubjectTemplate, 255); err != nil {
		return err
	}
	return requireText("body_template", t.BodyTemplate, 0)
}

func (t *EmailTemplate) AssignAuthor(userID uuid.UUID) {
	t.CreatedBy = &userID
	t.UpdatedBy = &userID
}
