package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"compass/internal/database"
	"compass/internal/softdelete"
)

const tombstoneColumns = `id, entity_type, entity_id_int, entity_id_uuid, snapshot,
	deleted_at, deleted_by, expires_at, restored_at, restored_by`

// TombstoneFilter narrows the non-restored listing. The scope pair compares
// one top-level snapshot field as text.
type TombstoneFilter struct {
	EntityType string
	ScopeField string
	ScopeValue string
	Limit      int
	Offset     int
}

type RecycleBinRepository struct {
	pool database.PgxPool
}

func NewRecycleBinRepository(pool database.PgxPool) *RecycleBinRepository {
	return &RecycleBinRepository{pool: pool}
}

// Create inserts a tombstone. A second active tombstone for the same record
// trips the partial unique index and surfaces as ErrNotFound: a concurrent
// delete of that record already won.
func (r *RecycleBinRepository) Create(ctx context.Context, t softdelete.Tombstone) error {
	intID, uuidID, err := refColumns(t.Ref)
	if err != nil {
		return err
	}

	snapshot, err := json.Marshal(t.Snapshot)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %v", softdelete.ErrInconsistentState, err)
	}

	_, err = database.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO recycle_bin_items
		 (id, entity_type, entity_id_int, entity_id_uuid, snapshot, deleted_at, deleted_by, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, string(t.Ref.Type), intID, uuidID, snapshot, t.DeletedAt, t.DeletedBy, t.ExpiresAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s already has an active tombstone", softdelete.ErrNotFound, t.Ref)
	}
	if err != nil {
		return fmt.Errorf("create tombstone: %w", err)
	}
	return nil
}

// FindActive returns the non-restored tombstone of ref. The row stays locked
// until the surrounding transaction ends, so a competing restore or purge
// waits and then sees the tombstone gone.
func (r *RecycleBinRepository) FindActive(ctx context.Context, ref softdelete.EntityRef) (softdelete.Tombstone, error) {
	intID, uuidID, err := refColumns(ref)
	if err != nil {
		return softdelete.Tombstone{}, err
	}

	keyClause := `entity_id_int = $2`
	var key any = intID
	if uuidID != nil {
		keyClause = `entity_id_uuid = $2`
		key = uuidID
	}

	row := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+tombstoneColumns+`
		 FROM recycle_bin_items
		 WHERE entity_type = $1 AND `+keyClause+` AND restored_at IS NULL
		 ORDER BY deleted_at DESC LIMIT 1
		 FOR UPDATE`, string(ref.Type), key)

	t, err := scanTombstone(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return softdelete.Tombstone{}, fmt.Errorf("%w: no active tombstone for %s", softdelete.ErrNotFound, ref)
	}
	if err != nil {
		return softdelete.Tombstone{}, fmt.Errorf("find tombstone by entity: %w", err)
	}
	return t, nil
}

// FindActiveByID returns the tombstone id unless it is restored. Like
// FindActive it locks the row for the rest of the transaction.
func (r *RecycleBinRepository) FindActiveByID(ctx context.Context, id uuid.UUID) (softdelete.Tombstone, error) {
	row := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+tombstoneColumns+`
		 FROM recycle_bin_items
		 WHERE id = $1 AND restored_at IS NULL
		 FOR UPDATE`, id)

	t, err := scanTombstone(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return softdelete.Tombstone{}, fmt.Errorf("%w: tombstone %s", softdelete.ErrNotFound, id)
	}
	if err != nil {
		return softdelete.Tombstone{}, fmt.Errorf("find tombstone by id: %w", err)
	}
	return t, nil
}

// MarkRestored sets restored_at once; a restored or missing tombstone is ErrNotFound.
func (r *RecycleBinRepository) MarkRestored(ctx context.Context, id uuid.UUID, at time.Time, by *string) error {
	tag, err := database.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE recycle_bin_items
		 SET restored_at = $2, restored_by = $3
		 WHERE id = $1 AND restored_at IS NULL`,
		id, at.UTC(), by)
	if err != nil {
		return fmt.Errorf("mark restored: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: tombstone %s", softdelete.ErrNotFound, id)
	}
	return nil
}

// Delete erases a tombstone that is not restored; a restored or missing one is ErrNotFound.
func (r *RecycleBinRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := database.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM recycle_bin_items WHERE id = $1 AND restored_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete tombstone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: tombstone %s", softdelete.ErrNotFound, id)
	}
	return nil
}

// List returns non-restored tombstones newest first, plus the unpaged total.
func (r *RecycleBinRepository) List(ctx context.Context, filter TombstoneFilter) ([]softdelete.Tombstone, int, error) {
	conditions := []string{"restored_at IS NULL"}
	args := make([]any, 0, 5)

	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		conditions = append(conditions, "entity_type = $"+strconv.Itoa(len(args)))
	}
	if filter.ScopeField != "" {
		args = append(args, filter.ScopeField, filter.ScopeValue)
		conditions = append(conditions, fmt.Sprintf("snapshot ->> $%d = $%d", len(args)-1, len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	conn := database.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM recycle_bin_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tombstones: %w", err)
	}

	query := `SELECT ` + tombstoneColumns + ` FROM recycle_bin_items` + where + ` ORDER BY deleted_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tombstones: %w", err)
	}
	defer rows.Close()

	items, err := collectTombstones(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListExpired returns up to limit non-restored tombstones with expires_at <= now,
// oldest expiry first.
func (r *RecycleBinRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]softdelete.Tombstone, error) {
	rows, err := database.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+tombstoneColumns+`
		 FROM recycle_bin_items
		 WHERE expires_at <= $1 AND restored_at IS NULL
		 ORDER BY expires_at
		 LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list expired tombstones: %w", err)
	}
	defer rows.Close()

	return collectTombstones(rows)
}

func collectTombstones(rows pgx.Rows) ([]softdelete.Tombstone, error) {
	items := make([]softdelete.Tombstone, 0)
	for rows.Next() {
		t, err := scanTombstone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func scanTombstone(row rowScanner) (softdelete.Tombstone, error) {
	var (
		t          softdelete.Tombstone
		entityType string
		intID      *int64
		uuidID     *uuid.UUID
		snapshot   []byte
	)

	if err := row.Scan(&t.ID, &entityType, &intID, &uuidID, &snapshot,
		&t.DeletedAt, &t.DeletedBy, &t.ExpiresAt, &t.RestoredAt, &t.RestoredBy); err != nil {
		return softdelete.Tombstone{}, err
	}

	ref, err := refFromColumns(entityType, intID, uuidID)
	if err != nil {
		return softdelete.Tombstone{}, err
	}
	t.Ref = ref

	t.Snapshot = softdelete.Snapshot{}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &t.Snapshot); err != nil {
			return softdelete.Tombstone{}, fmt.Errorf("%w: decode snapshot of %s: %v", softdelete.ErrInconsistentState, t.ID, err)
		}
	}
	return t, nil
}
