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
	"compass/internal/softdelete"
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recycle_bin_sweep_runs_total",
		Help: "Sweep runs by result",
	}, []string{"result"})

	sweepPurgedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recycle_bin_sweep_purged_total",
		Help: "Expired tombstones erased together with their records",
	}, []string{"entity_type"})

	sweepFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recycle_bin_sweep_failures_total",
		Help: "Expired tombstones the sweeper could not erase",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recycle_bin_sweep_duration_seconds",
		Help:    "Duration of one sweep run",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

const (
	sweepLockKey          = "recycle-bin-sweep"
	defaultSweepBatchSize = 100
)

// SweepItemError is one tombstone the sweeper left in place.
type SweepItemError struct {
	TombstoneID uuid.UUID
	Ref         softdelete.EntityRef
	Err         error
}

func (e SweepItemError) Error() string {
	return fmt.Sprintf("sweep tombstone %s (%s): %v", e.TombstoneID, e.Ref, e.Err)
}

func (e SweepItemError) Unwrap() error { return e.Err }

// SweepResult summarises one sweep run.
type SweepResult struct {
	Purged int
	// AlreadyGone counts tombstones restored or erased between listing and purge.
	AlreadyGone int
	Failed      int
	// Skipped is set when another instance held the sweep lease.
	Skipped  bool
	Duration time.Duration
	Errors   []SweepItemError
}

type SweeperOptions struct {
	Interval  time.Duration
	LockTTL   time.Duration
	BatchSize int
	Now       func() time.Time
}

// Sweeper permanently erases records whose tombstones expired.
type Sweeper struct {
	registry   *softdelete.Registry
	tombstones TombstoneStore
	tx         database.TxRunner
	locker     Locker
	interval   time.Duration
	lockTTL    time.Duration
	batchSize  int
	now        func() time.Time
	logger     *slog.Logger
}

func NewSweeper(registry *softdelete.Registry, tombstones TombstoneStore, tx database.TxRunner, locker Locker, opts SweeperOptions) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if locker == nil {
		locker = NewLocalLocker()
	}

	return &Sweeper{
		registry:   registry,
		tombstones: tombstones,
		tx:         tx,
		locker:     locker,
		interval:   opts.Interval,
		lockTTL:    opts.LockTTL,
		batchSize:  opts.BatchSize,
		now:        opts.Now,
		logger:     slog.Default().With("component", "sweeper"),
	}
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started", "interval", s.interval.String())

	s.runLogged(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Sweeper) runLogged(ctx context.Context) {
	result, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}
	if result.Skipped {
		s.logger.Debug("sweep skipped, lease held elsewhere")
		return
	}
	s.logger.Info("sweep finished",
		"purged", result.Purged,
		"already_gone", result.AlreadyGone,
		"failed", result.Failed,
		"duration", result.Duration.String(),
	)
}

// RunOnce erases every tombstone expired at the time the run starts. A
// failing item is logged and left for the next run; the rest proceed.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	result := SweepResult{}

	release, acquired, err := s.locker.TryLock(ctx, sweepLockKey, s.lockTTL)
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		return result, err
	}
	if !acquired {
		result.Skipped = true
		sweepRunsTotal.WithLabelValues("skipped").Inc()
		return result, nil
	}
	defer release()

	now := s.now().UTC()
	failed := map[uuid.UUID]struct{}{}

	for ctx.Err() == nil {
		limit := s.batchSize + len(failed)
		batch, err := s.tombstones.ListExpired(ctx, now, limit)
		if err != nil {
			result.Duration = time.Since(start)
			sweepRunsTotal.WithLabelValues("error").Inc()
			return result, fmt.Errorf("list expired tombstones: %w", err)
		}

		progressed := false
		for _, tomb := range batch {
			if _, seen := failed[tomb.ID]; seen {
				continue
			}
			progressed = true

			switch err := s.purge(ctx, tomb); {
			case err == nil:
				result.Purged++
				sweepPurgedTotal.WithLabelValues(string(tomb.Ref.Type)).Inc()
			case errors.Is(err, softdelete.ErrNotFound):
				result.AlreadyGone++
			default:
				failed[tomb.ID] = struct{}{}
				result.Failed++
				result.Errors = append(result.Errors, SweepItemError{TombstoneID: tomb.ID, Ref: tomb.Ref, Err: err})
				sweepFailuresTotal.Inc()
				s.logger.Error("sweep item failed", "tombstone_id", tomb.ID, "entity_type", tomb.Ref.Type, "entity_id", tomb.Ref.Key(), "error", err)
			}
		}

		if !progressed || len(batch) < limit {
			break
		}
	}

	result.Duration = time.Since(start)
	sweepDurationSeconds.Observe(result.Duration.Seconds())
	sweepRunsTotal.WithLabelValues("ok").Inc()
	return result, nil
}

// purge erases one record and its tombstone in a single transaction. The
// tombstone is re-read and locked first; a restore that committed in between
// leaves it restored, and purge reports ErrNotFound without touching the record.
func (s *Sweeper) purge(ctx context.Context, tomb softdelete.Tombstone) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.tombstones.FindActiveByID(ctx, tomb.ID)
		if err != nil {
			return err
		}

		store, err := s.registry.Lookup(current.Ref.Type)
		if err != nil {
			return fmt.Errorf("%w: %v", softdelete.ErrInconsistentState, err)
		}

		record, err := store.Find(ctx, current.Ref, softdelete.IncludingDeleted)
		switch {
		case errors.Is(err, softdelete.ErrNotFound):
		case err != nil:
			return err
		case !record.IsDeleted():
			return fmt.Errorf("%w: %s is live but has an active tombstone", softdelete.ErrInconsistentState, current.Ref)
		default:
			if err := store.HardDelete(ctx, current.Ref); err != nil && !errors.Is(err, softdelete.ErrNotFound) {
				return err
			}
		}

		if err := s.tombstones.Delete(ctx, current.ID); err != nil {
			return err
		}
		return nil
	})
}
