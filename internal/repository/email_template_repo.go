package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"compass/internal/database"
	"compass/internal/model"
	"compass/internal/softdelete"
)

const emailTemplateColumns = `id, name, template_type, subject_template, body_template,
	created_by, updated_by, date_created, last_updated, is_deleted, deleted_at`

type EmailTemplateRepository struct {
	softDeleteTable
}

func NewEmailTemplateRepository(pool database.PgxPool) *EmailTemplateRepository {
	return &EmailTemplateRepository{softDeleteTable{
		pool:       pool,
		table:      "email_templates",
		descriptor: softdelete.Descriptor{Type: model.TypeEmailTemplate, Slug: model.SlugEmailTemplates, KeyKind: softdelete.KeyUUID},
	}}
}

// Create assigns a fresh id when the template has none.
func (r *EmailTemplateRepository) Create(ctx context.Context, t *model.EmailTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO email_templates (id, name, template_type, subject_template, body_template, created_by, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING date_created, last_updated`,
		t.ID, t.Name, t.TemplateType, t.SubjectTemplate, t.BodyTemplate, t.CreatedBy, t.UpdatedBy).
		Scan(&t.DateCreated, &t.LastUpdated)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: email template %s already exists", model.ErrConflict, t.ID)
	}
	if err != nil {
		return fmt.Errorf("create email template: %w", err)
	}
	return nil
}

func (r *EmailTemplateRepository) Get(ctx context.Context, ref softdelete.EntityRef) (*model.EmailTemplate, error) {
	return r.get(ctx, ref, softdelete.Default)
}

func (r *EmailTemplateRepository) Find(ctx context.Context, ref softdelete.EntityRef, mode softdelete.Visibility) (softdelete.Record, error) {
	record, err := r.get(ctx, ref, mode)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *EmailTemplateRepository) get(ctx context.Context, ref softdelete.EntityRef, mode softdelete.Visibility) (*model.EmailTemplate, error) {
	key, err := r.key(ref)
	if err != nil {
		return nil, err
	}

	row := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+emailTemplateColumns+` FROM email_templates WHERE id = $1`+visible(mode), key)
	t, err := scanEmailTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", softdelete.ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("find email template: %w", err)
	}
	return t, nil
}

func (r *EmailTemplateRepository) List(ctx context.Context, page model.PageQuery) ([]*model.EmailTemplate, int, error) {
	total, err := r.count(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := database.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+emailTemplateColumns+` FROM email_templates
		 WHERE is_deleted = FALSE
		 ORDER BY last_updated DESC, id
		 LIMIT $1 OFFSET $2`, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list email templates: %w", err)
	}
	defer rows.Close()

	items := make([]*model.EmailTemplate, 0)
	for rows.Next() {
		t, err := scanEmailTemplate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan email template: %w", err)
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func scanEmailTemplate(row rowScanner) (*model.EmailTemplate, error) {
	var t model.EmailTemplate
	if err := row.Scan(&t.ID, &t.Name, &t.TemplateType, &t.SubjectTemplate, &t.BodyTemplate,
		&t.CreatedBy, &t.UpdatedBy, &t.DateCreated, &t.LastUpdated, &t.Deleted, &t.DeletedAtTime); err != nil {
		return nil, err
	}
	return &t, nil
}
