package model

import (
	"time"

	"compass/internal/softdelete"
)

const (
	TypeDocument  softdelete.EntityType = "Document"
	SlugDocuments                       = "documents"
)

var (
	DocumentTypes = []string{
		"bank_statement", "cbo_cert", "ngo_cert", "impact_report", "pitch_deck",
		"monthly_budget_nisira", "monthly_budget_maisha",
		"yearly_budget_nisira", "yearly_budget_maisha", "overall_budget",
	}
	DocumentFormats   = []string{"pdf", "excel", "docx", "canva", "pptx", "jpg", "png"}
	DocumentDivisions = []string{"overall", "nisira", "maisha"}
)

type Document struct {
	softdelete.Behavior

	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	DocumentType   string    `json:"document_type"`
	DocumentFormat string    `json:"document_format"`
	DocumentLink   string    `json:"document_link"`
	Division       string    `json:"division"`
	DateUploaded   time.Time `json:"date_uploaded"`
}

func (d *Document) Ref() softdelete.EntityRef { return softdelete.IntRef(TypeDocument, d.ID) }

func (d *Document) Snapshot() softdelete.Snapshot {
	return softdelete.Snapshot{}.
		Put("id", d.ID).
		Put("name", d.Name).
		Put("description", d.Description).
		Put("document_type", d.DocumentType).
		Put("document_format", d.DocumentFormat).
		Put("document_link", d.DocumentLink).
		Put("division", d.Division).
		Put("date_uploaded", d.DateUploaded)
}

func (d *Document) ApplySnapshot(s softdelete.Snapshot) error {
	r := snapshotReader{s: s}
	next := Document{
		ID:             r.int64("id"),
		Name:           r.text("name"),
		Description:    r.text("description"),
		DocumentType:   r.text("document_type"),
		DocumentFormat: r.text("document_format"),
		DocumentLink:   r.text("document_link"),
		Division:       r.text("division"),
		DateUploaded:   r.time("date_uploaded"),
	}
	if r.err != nil {
		return r.err
	}

	next.Behavior = d.Behavior
	*d = next
	return nil
}

func (d *Document) Validate() error {
	if err := requireText("name", d.Name, 255); err != nil {
		return err
	}
	if err := oneOf("document_type", d.DocumentType, DocumentTypes); err != nil {
		return err
	}
	if err := oneOf("document_format", d.DocumentFormat, DocumentFormats); err != nil {
		return err
	}
	if err := validURL("document_link", d.DocumentLink); err != nil {
		return err
	}
	return oneOf("division", d.Division, DocumentDivisions)
}
