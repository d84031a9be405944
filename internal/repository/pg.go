package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"compass/internal/softdelete"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}

// refColumns splits a reference into the two key slots of a tombstone row.
func refColumns(ref softdelete.EntityRef) (*int64, *uuid.UUID, error) {
	if id, ok := ref.IntID(); ok {
		return &id, nil, nil
	}
	if id, ok := ref.UUID(); ok {
		return nil, &id, nil
	}
	return nil, nil, fmt.Errorf("%w: empty entity reference", softdelete.ErrInconsistentState)
}

// refFromColumns rebuilds the reference from a row; exactly one slot must be set.
func refFromColumns(entityType string, intID *int64, uuidID *uuid.UUID) (softdelete.EntityRef, error) {
	switch {
	case intID != nil && uuidID == nil:
		return softdelete.IntRef(softdelete.EntityType(entityType), *intID), nil
	case uuidID != nil && intID == nil:
		return softdelete.UUIDRef(softdelete.EntityType(entityType), *uuidID), nil
	default:
		return softdelete.EntityRef{}, fmt.Errorf("%w: %s row must carry exactly one key", softdelete.ErrInconsistentState, entityType)
	}
}
