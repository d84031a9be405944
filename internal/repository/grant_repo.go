package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"compass/internal/database"
	"compass/internal/model"
	"compass/internal/softdelete"
)

// amount_value is read as text so the decimal keeps every digit.
const grantColumns = `id, organization_name, application_link, amount_currency, amount_value::text,
	program_id, notes, status, contact_tel, contact_email, location, organization_type,
	application_deadline, award_date, submitted_by, date_created, date_updated, is_deleted, deleted_at`

type GrantRepository struct {
	softDeleteTable
}

func NewGrantRepository(pool database.PgxPool) *GrantRepository {
	return &GrantRepository{softDeleteTable{
		pool:       pool,
		table:      "grants",
		descriptor: softdelete.Descriptor{Type: model.TypeGrant, Slug: model.SlugGrants, KeyKind: softdelete.KeyInt},
	}}
}

func (r *GrantRepository) Create(ctx context.Context, g *model.Grant) error {
	err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO grants
		 (organization_name, application_link, amount_currency, amount_value, program_id, notes, status,
		  contact_tel, contact_email, location, organization_type, application_deadline, award_date, submitted_by)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id, date_created, date_updated`,
		g.OrganizationName, g.ApplicationLink, g.AmountCurrency, g.AmountValue.StringFixed(2), g.ProgramID,
		g.Notes, g.Status, g.ContactTel, g.ContactEmail, g.Location, g.OrganizationType,
		g.ApplicationDeadline.TimePtr(), g.AwardDate.TimePtr(), g.SubmittedBy).
		Scan(&g.ID, &g.DateCreated, &g.DateUpdated)
	if err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

func (r *GrantRepository) Get(ctx context.Context, ref softdelete.EntityRef) (*model.Grant, error) {
	return r.get(ctx, ref, softdelete.Default)
}

func (r *GrantRepository) Find(ctx context.Context, ref softdelete.EntityRef, mode softdelete.Visibility) (softdelete.Record, error) {
	record, err := r.get(ctx, ref, mode)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *GrantRepository) get(ctx context.Context, ref softdelete.EntityRef, mode softdelete.Visibility) (*model.Grant, error) {
	key, err := r.key(ref)
	if err != nil {
		return nil, err
	}

	row := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+grantColumns+` FROM grants WHERE id = $1`+visible(mode), key)
	g, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", softdelete.ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("find grant: %w", err)
	}
	return g, nil
}

func (r *GrantRepository) List(ctx context.Context, page model.PageQuery) ([]*model.Grant, int, error) {
	total, err := r.count(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := database.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+grantColumns+` FROM grants
		 WHERE is_deleted = FALSE
		 ORDER BY date_created DESC, id DESC
		 LIMIT $1 OFFSET $2`, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	items := make([]*model.Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan grant: %w", err)
		}
		items = append(items, g)
	}
	return items, total, rows.Err()
}

func scanGrant(row rowScanner) (*model.Grant, error) {
	var (
		g                 model.Grant
		amount            string
		deadline, awarded *time.Time
	)

	if err := row.Scan(&g.ID, &g.OrganizationName, &g.ApplicationLink, &g.AmountCurrency, &amount,
		&g.ProgramID, &g.Notes, &g.Status, &g.ContactTel, &g.ContactEmail, &g.Location, &g.OrganizationType,
		&deadline, &awarded, &g.SubmittedBy, &g.DateCreated, &g.DateUpdated, &g.Deleted, &g.DeletedAtTime); err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: grant %d amount %q", softdelete.ErrInconsistentState, g.ID, amount)
	}
	g.AmountValue = value
	g.ApplicationDeadline = model.DatePtr(deadline)
	g.AwardDate = model.DatePtr(awarded)
	return &g, nil
}
