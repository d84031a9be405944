package repository

import (
	"context"
	"fmt"

	"compass/internal/database"
	"compass/internal/softdelete"
)

// softDeleteTable implements the bookkeeping half of softdelete.Store for a
// table with is_deleted/deleted_at columns.
type softDeleteTable struct {
	pool       database.PgxPool
	table      string
	descriptor softdelete.Descriptor
}

func (t softDeleteTable) Descriptor() softdelete.Descriptor { return t.descriptor }

// key checks that ref belongs to this table and returns its primary key value.
func (t softDeleteTable) key(ref softdelete.EntityRef) (any, error) {
	if ref.Type != t.descriptor.Type {
		return nil, fmt.Errorf("%w: %s is not a %s reference", softdelete.ErrInconsistentState, ref, t.descriptor.Type)
	}
	switch t.descriptor.KeyKind {
	case softdelete.KeyInt:
		if id, ok := ref.IntID(); ok {
			return id, nil
		}
	case softdelete.KeyUUID:
		if id, ok := ref.UUID(); ok {
			return id, nil
		}
	}
	return nil, fmt.Errorf("%w: %s needs a %s key", softdelete.ErrInconsistentState, ref, t.descriptor.KeyKind)
}

// visible is the predicate of a lookup in mode.
func visible(mode softdelete.Visibility) string {
	if mode == softdelete.IncludingDeleted {
		return ""
	}
	return " AND is_deleted = FALSE"
}

func (t softDeleteTable) SaveDeletionState(ctx context.Context, record softdelete.Record) error {
	key, err := t.key(record.Ref())
	if err != nil {
		return err
	}

	tag, err := database.Conn(ctx, t.pool).Exec(ctx,
		`UPDATE `+t.table+` SET is_deleted = $2, deleted_at = $3 WHERE id = $1`,
		key, record.IsDeleted(), record.DeletedAt())
	if err != nil {
		return fmt.Errorf("save deletion state of %s: %w", record.Ref(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", softdelete.ErrNotFound, record.Ref())
	}
	return nil
}

func (t softDeleteTable) HardDelete(ctx context.Context, ref softdelete.EntityRef) error {
	key, err := t.key(ref)
	if err != nil {
		return err
	}

	tag, err := database.Conn(ctx, t.pool).Exec(ctx, `DELETE FROM `+t.table+` WHERE id = $1`, key)
	if err != nil {
		return fmt.Errorf("hard delete %s: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", softdelete.ErrNotFound, ref)
	}
	return nil
}

// count returns the number of live rows.
func (t softDeleteTable) count(ctx context.Context) (int, error) {
	var total int
	err := database.Conn(ctx, t.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM `+t.table+` WHERE is_deleted = FALSE`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.table, err)
	}
	return total, nil
}
