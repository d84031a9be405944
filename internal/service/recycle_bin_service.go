package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"compass/internal/database"
	"compass/internal/model"
	"compass/internal/repository"
	"compass/internal/softdelete"
)

var recycleBinOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recycle_bin_operations_total",
		Help: "Recycle bin operations by kind, entity type and outcome",
	},
	[]string{"operation", "entity_type", "outcome"},
)

// TombstoneStore persists tombstones. Every method joins the transaction in ctx.
type TombstoneStore interface {
	Create(ctx context.Context, t softdelete.Tombstone) error
	FindActive(ctx context.Context, ref softdelete.EntityRef) (softdelete.Tombstone, error)
	FindActiveByID(ctx context.Context, id uuid.UUID) (softdelete.Tombstone, error)
	MarkRestored(ctx context.Context, id uuid.UUID, at time.Time, by *string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter repository.TombstoneFilter) ([]softdelete.Tombstone, int, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]softdelete.Tombstone, error)
}

type RecycleBinOptions struct {
	// Retention is the default tombstone lifetime; zero means softdelete.DefaultRetention.
	Retention time.Duration
	// AllowExpiredRestore lets Restore reverse tombstones past expires_at that
	// the sweeper has not erased yet.
	AllowExpiredRestore bool
	Now                 func() time.Time
}

// RecycleBinService decides between soft and hard deletes and moves records
// through active, soft_deleted, restored and permanently_deleted.
type RecycleBinService struct {
	registry            *softdelete.Registry
	tombstones          TombstoneStore
	tx                  database.TxRunner
	retention           time.Duration
	allowExpiredRestore bool
	now                 func() time.Time
	logger              *slog.Logger
}

func NewRecycleBinService(registry *softdelete.Registry, tombstones TombstoneStore, tx database.TxRunner, opts RecycleBinOptions) *RecycleBinService {
	if opts.Retention <= 0 {
		opts.Retention = softdelete.DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &RecycleBinService{
		registry:            registry,
		tombstones:          tombstones,
		tx:                  tx,
		retention:           opts.Retention,
		allowExpiredRestore: opts.AllowExpiredRestore,
		now:                 opts.Now,
		logger:              slog.Default().With("component", "recycle_bin"),
	}
}

type deleteConfig struct {
	expiresAt time.Time
}

type DeleteOption func(*deleteConfig)

// WithExpiry overrides the retention window for one soft delete.
func WithExpiry(at time.Time) DeleteOption {
	return func(c *deleteConfig) { c.expiresAt = at }
}

// Delete hard-deletes ref for privileged actors and soft-deletes it with a
// tombstone otherwise. The record is looked up through the default view, so
// deleting an already soft-deleted record is ErrNotFound.
func (s *RecycleBinService) Delete(ctx context.Context, ref softdelete.EntityRef, actor softdelete.Actor, opts ...DeleteOption) (model.DeleteOutcome, error) {
	if actor == nil {
		return model.DeleteOutcome{}, softdelete.ErrPermissionDenied
	}

	cfg := deleteConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	store, err := s.registry.Lookup(ref.Type)
	if err != nil {
		return model.DeleteOutcome{}, err
	}

	outcome := model.DeleteOutcome{EntityType: string(ref.Type), EntityID: ref.Key()}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		record, err := store.Find(ctx, ref, softdelete.Default)
		if err != nil {
			return err
		}

		if actor.CanHardDelete() {
			outcome.Permanent = true
			return store.HardDelete(ctx, ref)
		}

		now := s.now().UTC()
		tomb, err := softdelete.NewTombstone(ref, record.Snapshot(), actor, now, cfg.expiresAt, s.retention)
		if err != nil {
			return err
		}

		record.MarkDeleted(now)
		if err := store.SaveDeletionState(ctx, record); err != nil {
			return err
		}
		if err := s.tombstones.Create(ctx, tomb); err != nil {
			return err
		}

		tombID := tomb.ID.String()
		expiresAt := tomb.ExpiresAt.Format(time.RFC3339)
		outcome.TombstoneID = &tombID
		outcome.ExpiresAt = &expiresAt
		return nil
	})

	operation := "soft_delete"
	if outcome.Permanent {
		operation = "hard_delete"
	}
	s.observe(operation, ref.Type, err)
	if err != nil {
		return model.DeleteOutcome{}, fmt.Errorf("delete %s: %w", ref, err)
	}

	s.logger.Info("record deleted", "entity", ref.String(), "permanent", outcome.Permanent, "actor", actor.ActorID())
	return outcome, nil
}

// Restore reverses the active tombstone of ref.
func (s *RecycleBinService) Restore(ctx context.Context, ref softdelete.EntityRef, actor softdelete.Actor) (model.RestoreOutcome, error) {
	if err := requireElevated(actor); err != nil {
		return model.RestoreOutcome{}, err
	}

	var outcome model.RestoreOutcome
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		tomb, err := s.tombstones.FindActive(ctx, ref)
		if err != nil {
			return err
		}
		outcome, err = s.restore(ctx, tomb, actor)
		return err
	})

	s.observe("restore", ref.Type, err)
	if err != nil {
		return model.RestoreOutcome{}, fmt.Errorf("restore %s: %w", ref, err)
	}
	return outcome, nil
}

// RestoreTombstone reverses the tombstone with the given id.
func (s *RecycleBinService) RestoreTombstone(ctx context.Context, id uuid.UUID, actor softdelete.Actor) (model.RestoreOutcome, error) {
	if err := requireElevated(actor); err != nil {
		return model.RestoreOutcome{}, err
	}

	var (
		outcome    model.RestoreOutcome
		entityType softdelete.EntityType
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		tomb, err := s.tombstones.FindActiveByID(ctx, id)
		if err != nil {
			return err
		}
		entityType = tomb.Ref.Type
		outcome, err = s.restore(ctx, tomb, actor)
		return err
	})

	s.observe("restore", entityType, err)
	if err != nil {
		return model.RestoreOutcome{}, fmt.Errorf("restore tombstone %s: %w", id, err)
	}
	return outcome, nil
}

func (s *RecycleBinService) restore(ctx context.Context, tomb softdelete.Tombstone, actor softdelete.Actor) (model.RestoreOutcome, error) {
	now := s.now().UTC()
	if !tomb.Restorable(now, s.allowExpiredRestore) {
		return model.RestoreOutcome{}, fmt.Errorf("%w: tombstone %s expired at %s", softdelete.ErrNotFound, tomb.ID, tomb.ExpiresAt.Format(time.RFC3339))
	}

	store, err := s.storeFor(tomb)
	if err != nil {
		return model.RestoreOutcome{}, err
	}

	record, err := store.Find(ctx, tomb.Ref, softdelete.IncludingDeleted)
	if err != nil {
		return model.RestoreOutcome{}, err
	}

	record.MarkRestored()
	if err := store.SaveDeletionState(ctx, record); err != nil {
		return model.RestoreOutcome{}, err
	}
	if err := s.tombstones.MarkRestored(ctx, tomb.ID, now, actorRef(actor)); err != nil {
		return model.RestoreOutcome{}, err
	}

	s.logger.Info("record restored", "entity", tomb.Ref.String(), "tombstone_id", tomb.ID, "actor", actor.ActorID())
	return model.RestoreOutcome{
		EntityType:  string(tomb.Ref.Type),
		EntityID:    tomb.Ref.Key(),
		TombstoneID: tomb.ID.String(),
		RestoredAt:  now,
	}, nil
}

// PermanentDelete erases the record behind the active tombstone of ref, if it
// still exists, and always erases the tombstone. Expired tombstones qualify.
func (s *RecycleBinService) PermanentDelete(ctx context.Context, ref softdelete.EntityRef, actor softdelete.Actor) error {
	if err := requireElevated(actor); err != nil {
		return err
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		tomb, err := s.tombstones.FindActive(ctx, ref)
		if err != nil {
			return err
		}
		return s.erase(ctx, tomb)
	})

	s.observe("permanent_delete", ref.Type, err)
	if err != nil {
		return fmt.Errorf("permanently delete %s: %w", ref, err)
	}

	s.logger.Info("record permanently deleted", "entity", ref.String(), "actor", actor.ActorID())
	return nil
}

func (s *RecycleBinService) PermanentDeleteTombstone(ctx context.Context, id uuid.UUID, actor softdelete.Actor) error {
	if err := requireElevated(actor); err != nil {
		return err
	}

	var entityType softdelete.EntityType
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		tomb, err := s.tombstones.FindActiveByID(ctx, id)
		if err != nil {
			return err
		}
		entityType = tomb.Ref.Type
		return s.erase(ctx, tomb)
	})

	s.observe("permanent_delete", entityType, err)
	if err != nil {
		return fmt.Errorf("permanently delete tombstone %s: %w", id, err)
	}

	s.logger.Info("tombstone permanently deleted", "tombstone_id", id, "actor", actor.ActorID())
	return nil
}

// erase hard-deletes the record when present, then the tombstone.
func (s *RecycleBinService) erase(ctx context.Context, tomb softdelete.Tombstone) error {
	store, err := s.storeFor(tomb)
	if err != nil {
		return err
	}

	if err := store.HardDelete(ctx, tomb.Ref); err != nil && !errors.Is(err, softdelete.ErrNotFound) {
		return err
	}
	return s.tombstones.Delete(ctx, tomb.ID)
}

// List returns non-restored tombstones newest first.
func (s *RecycleBinService) List(ctx context.Context, actor softdelete.Actor, query model.RecycleBinQuery) ([]model.RecycleBinItem, model.Meta, error) {
	if err := requireElevated(actor); err != nil {
		return nil, model.Meta{}, err
	}
	if err := query.Validate(); err != nil {
		return nil, model.Meta{}, err
	}
	if query.EntityType != "" {
		if _, err := s.registry.Lookup(softdelete.EntityType(query.EntityType)); err != nil {
			return nil, model.Meta{}, err
		}
	}

	tombs, total, err := s.tombstones.List(ctx, repository.TombstoneFilter{
		EntityType: query.EntityType,
		ScopeField: query.ScopeField,
		ScopeValue: query.ScopeValue,
		Limit:      query.Limit,
		Offset:     query.Offset(),
	})
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("list recycle bin: %w", err)
	}

	now := s.now().UTC()
	items := make([]model.RecycleBinItem, 0, len(tombs))
	for _, tomb := range tombs {
		items = append(items, model.NewRecycleBinItem(tomb, now))
	}
	return items, query.Meta(total), nil
}

// storeFor resolves the store of a persisted tombstone. An unknown tag there
// means the row is unusable, not that the caller asked for a bad type.
func (s *RecycleBinService) storeFor(tomb softdelete.Tombstone) (softdelete.Store, error) {
	store, err := s.registry.Lookup(tomb.Ref.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: tombstone %s: %v", softdelete.ErrInconsistentState, tomb.ID, err)
	}
	return store, nil
}

func (s *RecycleBinService) observe(operation string, entityType softdelete.EntityType, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, softdelete.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, softdelete.ErrInconsistentState):
		outcome = "inconsistent"
		s.logger.Error("recycle bin state is inconsistent", "operation", operation, "entity_type", entityType, "error", err)
	default:
		outcome = "error"
	}
	recycleBinOperationsTotal.WithLabelValues(operation, string(entityType), outcome).Inc()
}

func requireElevated(actor softdelete.Actor) error {
	if actor == nil || !actor.CanHardDelete() {
		return softdelete.ErrPermissionDenied
	}
	return nil
}

func actorRef(actor softdelete.Actor) *string {
	if actor == nil {
		return nil
	}
	id := actor.ActorID()
	if id == "" {
		return nil
	}
	return &id
}
