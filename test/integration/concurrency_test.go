//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compass/internal/database"
	"compass/internal/model"
	"compass/internal/service"
	"compass/internal/softdelete"
)

var rootActor = model.AuditActor{UserID: "c0a8e5d2-1f3b-4b6e-8d2a-77e4a9f1b302", Username: "root", Role: "super_admin", Elevated: true}

// restoreUncommitted restores ref inside a transaction the caller commits.
func restoreUncommitted(t *testing.T, env *testEnv, ref softdelete.EntityRef) func() {
	t.Helper()
	ctx := context.Background()

	tx, err := env.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(ctx) })

	_, err = env.core.RecycleBin.Restore(database.WithTx(ctx, tx), ref, rootActor)
	require.NoError(t, err)

	return func() { require.NoError(t, tx.Commit(ctx)) }
}

func divisionState(t *testing.T, env *testEnv, id int64) (exists bool, deleted bool) {
	t.Helper()
	err := env.db.Pool.QueryRow(context.Background(),
		"SELECT is_deleted FROM divisions WHERE id = $1", id).Scan(&deleted)
	if err != nil {
		return false, false
	}
	return true, deleted
}

func TestRestoreDuringSweepKeepsRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	division := createDivision(t, env, "nisria")
	expiresAt := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	status, _ := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/divisions/%d/soft-delete?expires_at=%s", division.ID, expiresAt), env.staffToken, nil)
	require.Equal(t, http.StatusOK, status)

	commit := restoreUncommitted(t, env, softdelete.IntRef(model.TypeDivision, division.ID))

	sweeper := service.NewSweeper(env.core.Registry, env.core.Tombstones, env.db, nil, service.SweeperOptions{
		BatchSize: 10,
		Now:       func() time.Time { return time.Now().Add(2 * time.Hour) },
	})
	type outcome struct {
		result service.SweepResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := sweeper.RunOnce(ctx)
		done <- outcome{result, err}
	}()

	select {
	case <-done:
		t.Fatal("sweep finished while the restore still held the tombstone")
	case <-time.After(300 * time.Millisecond):
	}
	commit()

	got := <-done
	require.NoError(t, got.err)
	assert.Zero(t, got.result.Purged)
	assert.Equal(t, 1, got.result.AlreadyGone)
	assert.Zero(t, got.result.Failed)

	exists, deleted := divisionState(t, env, division.ID)
	assert.True(t, exists)
	assert.False(t, deleted)

	var restored int
	require.NoError(t, env.db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM recycle_bin_items WHERE entity_type = 'Division' AND entity_id_int = $1 AND restored_at IS NOT NULL",
		division.ID).Scan(&restored))
	assert.Equal(t, 1, restored)
}

func TestRestoreBeforePermanentDeleteWins(t *testing.T) {
	env := newTestEnv(t)

	division := createDivision(t, env, "maisha")
	status, _ := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/divisions/%d/soft-delete", division.ID), env.staffToken, nil)
	require.Equal(t, http.StatusOK, status)

	commit := restoreUncommitted(t, env, softdelete.IntRef(model.TypeDivision, division.ID))

	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/v1/divisions/%d/permanent-delete", env.server.URL, division.ID), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.adminToken)

	done := make(chan int, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			done <- 0
			return
		}
		_ = resp.Body.Close()
		done <- resp.StatusCode
	}()

	select {
	case <-done:
		t.Fatal("permanent delete finished while the restore still held the tombstone")
	case <-time.After(300 * time.Millisecond):
	}
	commit()

	assert.Equal(t, http.StatusNotFound, <-done)

	exists, deleted := divisionState(t, env, division.ID)
	assert.True(t, exists)
	assert.False(t, deleted)
}
