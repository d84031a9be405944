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

const documentColumns = `id, name, description, document_type, document_format, document_link,
	division, date_uploaded, is_deleted, deleted_at`

type DocumentRepository struct {
	softDeleteTable
}

func NewDocumentRepository(pool database.PgxPool) *DocumentRepository {
	return &DocumentRepository{softDeleteTable{
		pool:       pool,
		table:      "documents",
		descriptor: softdelete.Descriptor{Type: model.TypeDocument, Slug: model.SlugDocuments, KeyKind: softdelete.KeyInt},
	}}
}

func (r *DocumentRepository) Create(ctx context.Context, d *model.Document) error {
	err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO documents (name, description, document_type, document_format, document_link, division)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, date_uploaded`,
		d.Name, d.Description, d.DocumentType, d.DocumentFormat, d.DocumentLink, d.Division).
		Scan(&d.ID, &d.DateUploaded)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, ref softdelete.EntityRef) (*model.Document, error) {
	return r.get(ctx, ref, softdelete.Default)
}

func (r *DocumentRepository) Find(ctx context.Context, ref softdelete.EntityRef, mode softdelete.Visibility) (softdelete.Record, error) {
	record, err := r.get(ctx, ref, mode)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *DocumentRepository) get(ctx context.Context, ref softdelete.EntityRef, mode softdelete.Visibility) (*model.Document, error) {
	key, err := r.key(ref)
	if err != nil {
		return nil, err
	}

	row := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`+visible(mode), key)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", softdelete.ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepository) List(ctx context.Context, page model.PageQuery) ([]*model.Document, int, error) {
	total, err := r.count(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := database.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE is_deleted = FALSE
		 ORDER BY date_uploaded DESC, id DESC
		 LIMIT $1 OFFSET $2`, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]*model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var d model.Document
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.DocumentType, &d.DocumentFormat,
		&d.DocumentLink, &d.Division, &d.DateUploaded, &d.Deleted, &d.DeletedAtTime); err != nil {
		return nil, err
	}
	return &d, nil
}
