package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"compass/internal/model"
	"compass/internal/softdelete"
)

type sweepFixture struct {
	sweeper    *Sweeper
	bin        *RecycleBinService
	divisions  *memStore
	tombstones *memTombstones
	clock      *clock
}

func newSweepFixture(t *testing.T, locker Locker, batchSize int, divisions ...*model.Division) *sweepFixture {
	t.Helper()

	records := make([]softdelete.Record, 0, len(divisions))
	for _, d := range divisions {
		records = append(records, d)
	}

	f := &sweepFixture{
		divisions:  divisionStore(records...),
		tombstones: newMemTombstones(),
		clock:      &clock{now: epoch},
	}
	registry, err := softdelete.NewRegistry(f.divisions)
	require.NoError(t, err)

	f.bin = NewRecycleBinService(registry, f.tombstones, passThroughTx{}, RecycleBinOptions{Retention: time.Hour, Now: f.clock.Now})
	f.sweeper = NewSweeper(registry, f.tombstones, passThroughTx{}, locker, SweeperOptions{BatchSize: batchSize, Now: f.clock.Now})
	return f
}

func divisionsNamed(ids ...int64) []*model.Division {
	out := make([]*model.Division, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.Division{ID: id, Name: "maisha", DateCreated: epoch, DateUpdated: epoch})
	}
	return out
}

func TestSweeper_PurgesOnlyExpired(t *testing.T) {
	t.Parallel()

	f := newSweepFixture(t, nil, 10, divisionsNamed(1, 2, 3, 4)...)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		_, err := f.bin.Delete(ctx, softdelete.IntRef(model.TypeDivision, id), staff)
		require.NoError(t, err)
	}
	_, err := f.bin.Delete(ctx, softdelete.IntRef(model.TypeDivision, 3), staff, WithExpiry(epoch.Add(48*time.Hour)))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	result, err := f.sweeper.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Purged)
	assert.Zero(t, result.Failed)
	assert.False(t, result.Skipped)

	_, ok := f.divisions.get("1")
	assert.False(t, ok)
	_, ok = f.divisions.get("2")
	assert.False(t, ok)

	pending, ok := f.divisions.get("3")
	require.True(t, ok)
	assert.True(t, pending.IsDeleted())

	live, ok := f.divisions.get("4")
	require.True(t, ok)
	assert.False(t, live.IsDeleted())

	assert.Equal(t, 1, f.tombstones.len())
}

func TestSweeper_IgnoresRestoredTombstones(t *testing.T) {
	t.Parallel()

	f := newSweepFixture(t, nil, 10, divisionsNamed(1)...)
	ctx := context.Background()
	ref := softdelete.IntRef(model.TypeDivision, 1)

	_, err := f.bin.Delete(ctx, ref, staff)
	require.NoError(t, err)
	_, err = f.bin.Restore(ctx, ref, admin)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	result, err := f.sweeper.RunOnce(ctx)
	require.NoError(t, err)

	assert.Zero(t, result.Purged)
	_, ok := f.divisions.get("1")
	assert.True(t, ok)
	assert.Equal(t, 1, f.tombstones.len())
}

func TestSweeper_ContinuesPastFailingItems(t *testing.T) {
	t.Parallel()

	f := newSweepFixture(t, nil, 1, divisionsNamed(1, 2, 3)...)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := f.bin.Delete(ctx, softdelete.IntRef(model.TypeDivision, id), staff)
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	f.divisions.failHard["1"] = errBoom

	f.clock.Advance(2 * time.Hour)
	result, err := f.sweeper.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Purged)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], errBoom)
	assert.Equal(t, softdelete.IntRef(model.TypeDivision, 1), result.Errors[0].Ref)

	_, ok := f.divisions.get("1")
	assert.True(t, ok)
	assert.Equal(t, 1, f.tombstones.len())

	delete(f.divisions.failHard, "1")
	result, err = f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Purged)
	assert.Zero(t, f.tombstones.len())
}

func TestSweeper_RecordAlreadyGoneStillClearsTombstone(t *testing.T) {
	t.Parallel()

	f := newSweepFixture(t, nil, 10, divisionsNamed(1)...)
	ctx := context.Background()
	ref := softdelete.IntRef(model.TypeDivision, 1)

	_, err := f.bin.Delete(ctx, ref, staff)
	require.NoError(t, err)
	require.NoError(t, f.divisions.HardDelete(ctx, ref))

	f.clock.Advance(2 * time.Hour)
	result, err := f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Purged)
	assert.Zero(t, f.tombstones.len())
}

func TestSweeper_RefusesToEraseLiveRecord(t *testing.T) {
	t.Parallel()

	f := newSweepFixture(t, nil, 10, divisionsNamed(1)...)
	ctx := context.Background()
	ref := softdelete.IntRef(model.TypeDivision, 1)

	_, err := f.bin.Delete(ctx, ref, staff)
	require.NoError(t, err)
	stored, _ := f.divisions.get("1")
	stored.MarkRestored()

	f.clock.Advance(2 * time.Hour)
	result, err := f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.ErrorIs(t, result.Errors[0], softdelete.ErrInconsistentState)

	_, ok := f.divisions.get("1")
	assert.True(t, ok)
}

func TestSweeper_SkipsWhenLeaseIsHeld(t *testing.T) {
	t.Parallel()

	locker := NewLocalLocker()
	f := newSweepFixture(t, locker, 10, divisionsNamed(1)...)
	ctx := context.Background()

	_, err := f.bin.Delete(ctx, softdelete.IntRef(model.TypeDivision, 1), staff)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	release, acquired, err := locker.TryLock(ctx, sweepLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	result, err := f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, 1, f.tombstones.len())

	release()
	result, err = f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Purged)
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	t.Parallel()

	f := newSweepFixture(t, nil, 10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.sweeper.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestLocalLocker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("one holder at a time", func(t *testing.T) {
		l := NewLocalLocker()
		release, ok, err := l.TryLock(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = l.TryLock(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, _ = l.TryLock(ctx, "other", time.Minute)
		assert.True(t, ok)

		release()
		release()
		_, ok, _ = l.TryLock(ctx, "k", time.Minute)
		assert.True(t, ok)
	})

	t.Run("expired lease can be taken over", func(t *testing.T) {
		c := &clock{now: epoch}
		l := NewLocalLocker()
		l.now = c.Now

		staleRelease, ok, _ := l.TryLock(ctx, "k", time.Minute)
		require.True(t, ok)

		c.Advance(2 * time.Minute)
		_, ok, _ = l.TryLock(ctx, "k", time.Minute)
		require.True(t, ok)

		staleRelease()
		_, ok, _ = l.TryLock(ctx, "k", time.Minute)
		assert.False(t, ok)
	})
}

func TestSweeper_LockErrorFailsRun(t *testing.T) {
	t.Parallel()

	locker := new(MockLocker)
	locker.On("TryLock", mock.Anything, sweepLockKey, 10*time.Minute).Return(nil, false, errBoom).Once()

	f := newSweepFixture(t, locker, 10, divisionsNamed(1)...)
	_, err := f.sweeper.RunOnce(context.Background())

	assert.ErrorIs(t, err, errBoom)
	locker.AssertExpectations(t)
}

func TestSweeper_ReleasesLeaseAfterRun(t *testing.T) {
	t.Parallel()

	released := 0
	locker := new(MockLocker)
	locker.On("TryLock", mock.Anything, sweepLockKey, mock.AnythingOfType("time.Duration")).
		Return(func() { released++ }, true, nil).Twice()

	f := newSweepFixture(t, locker, 10, divisionsNamed(1)...)
	ctx := context.Background()

	_, err := f.bin.Delete(ctx, softdelete.IntRef(model.TypeDivision, 1), staff)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	result, err := f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Purged)

	result, err = f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Purged)

	assert.Equal(t, 2, released)
	locker.AssertExpectations(t)
}

// listThenRun runs afterList once the sweeper has read its batch.
type listThenRun struct {
	*memTombstones
	afterList func()
}

func (l *listThenRun) ListExpired(ctx context.Context, now time.Time, limit int) ([]softdelete.Tombstone, error) {
	batch, err := l.memTombstones.ListExpired(ctx, now, limit)
	if l.afterList != nil {
		l.afterList()
		l.afterList = nil
	}
	return batch, err
}

func TestSweeper_RestoreAfterListingSurvivesPurge(t *testing.T) {
	t.Parallel()

	f := newSweepFixture(t, nil, 10, divisionsNamed(1)...)
	ctx := context.Background()
	ref := softdelete.IntRef(model.TypeDivision, 1)

	_, err := f.bin.Delete(ctx, ref, staff)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	registry, err := softdelete.NewRegistry(f.divisions)
	require.NoError(t, err)
	bin := NewRecycleBinService(registry, f.tombstones, passThroughTx{}, RecycleBinOptions{
		Retention: time.Hour, Now: f.clock.Now, AllowExpiredRestore: true,
	})
	racing := &listThenRun{memTombstones: f.tombstones, afterList: func() {
		_, err := bin.Restore(ctx, ref, admin)
		require.NoError(t, err)
	}}
	sweeper := NewSweeper(registry, racing, passThroughTx{}, nil, SweeperOptions{BatchSize: 10, Now: f.clock.Now})

	result, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)

	assert.Zero(t, result.Purged)
	assert.Equal(t, 1, result.AlreadyGone)
	assert.Zero(t, result.Failed)

	record, ok := f.divisions.get("1")
	require.True(t, ok)
	assert.False(t, record.IsDeleted())
	assert.Equal(t, 1, f.tombstones.len())
}
