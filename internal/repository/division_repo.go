package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"compass/internal/database"
	"compass/internal/model"
	"compass/internal/softdelete"
)

const divisionColumns = `id, name, description, lead_id, date_created, date_updated, is_deleted, deleted_at`

type DivisionRepository struct {
	softDeleteTable
}

func NewDivisionRepository(pool database.PgxPool) *DivisionRepository {
	return &DivisionRepository{softDeleteTable{
		pool:       pool,
		table:      "divisions",
		descriptor: softdelete.Descriptor{Type: model.TypeDivision, Slug: model.SlugDivisions, KeyKind: softdelete.KeyInt},
	}}
}

func (r *DivisionRepository) Create(ctx context.Context, d *model.Division) error {
	err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO divisions (name, description, lead_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, date_created, date_updated`,
		d.Name, d.Description, d.LeadID).
		Scan(&d.ID, &d.DateCreated, &d.DateUpdated)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: division %q already exists", model.ErrConflict, d.Name)
	}
	if err != nil {
		return fmt.Errorf("create division: %w", err)
	}
	return nil
}

func (r *DivisionRepository) Get(ctx context.Context, ref softdelete.EntityRef) (*model.Division, error) {
	return r.get(ctx, ref, softdelete.Default)
}

func (r *DivisionRepository) Find(ctx context.Context, ref softdelete.EntityRef, mode softdelete.Visibility) (softdelete.Record, error) {
	record, err := r.get(ctx, ref, mode)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *DivisionRepository) get(ctx context.Context, ref softdelete.EntityRef, mode softdelete.Visibility) (*model.Division, error) {
	key, err := r.key(ref)
	if err != nil {
		return nil, err
	}

	row := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+divisionColumns+` FROM divisions WHERE id = $1`+visible(mode), key)
	d, err := scanDivision(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", softdelete.ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("find division: %w", err)
	}
	return d, nil
}

func (r *DivisionRepository) List(ctx context.Context, page model.PageQuery) ([]*model.Division, int, error) {
	total, err := r.count(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := database.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+divisionColumns+` FROM divisions
		 WHERE is_deleted = FALSE
		 ORDER BY id
		 LIMIT $1 OFFSET $2`, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list divisions: %w", err)
	}
	defer rows.Close()

	items := make([]*model.Division, 0)
	for rows.Next() {
		d, err := scanDivision(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan division: %w", err)
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func scanDivision(row rowScanner) (*model.Division, error) {
	var d model.Division
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.LeadID,
		&d.DateCreated, &d.DateUpdated, &d.Deleted, &d.DeletedAtTime); err != nil {
		return nil, err
	}
	return &d, nil
}
