//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"compass/internal/app"
	"compass/internal/authz"
	"compass/internal/config"
	"compass/internal/database"
	"compass/internal/handler"
	"compass/internal/middleware"
	"compass/internal/router"
	"compass/internal/service"
)

const testSecret = "integration-secret"

type testEnv struct {
	db         *database.DB
	core       *app.Core
	cfg        *config.Config
	server     *httptest.Server
	staffToken string
	adminToken string
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		tcpostgres.WithDatabase("compass_test"),
		tcpostgres.WithUsername("compass"),
		tcpostgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}

func startRedis(t *testing.T) *database.Redis {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	rdb, err := database.NewRedis(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	url := startPostgres(t)
	require.NoError(t, database.Migrate(url))

	db, err := database.New(ctx, url, 5, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	cfg := &config.Config{
		ServerPort:           "8080",
		RequestTimeout:       30 * time.Second,
		DatabaseURL:          url,
		JWTSecret:            testSecret,
		ElevatedRoles:        authz.DefaultElevatedRoles,
		CORSOrigins:          []string{"*"},
		RateLimitRPM:         10000,
		MutationRateLimitRPM: 10000,
		RecycleBinRetention:  70 * 24 * time.Hour,
		SweepInterval:        time.Hour,
		SweepLockTTL:         time.Minute,
		SweepBatchSize:       10,
	}

	core, err := app.NewCore(db, cfg)
	require.NoError(t, err)

	tokens, err := service.NewTokenService(testSecret)
	require.NoError(t, err)
	policy := authz.NewRolePolicy(cfg.ElevatedRoles)

	h := router.New(cfg,
		middleware.NewAuthMiddleware(tokens),
		policy,
		handler.NewRecycleBinHandler(core.RecycleBin, core.Registry, policy),
		core.Subjects(policy),
		func(r *http.Request) error { return db.Health(r.Context()) },
	)
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	staff, err := tokens.IssueAccessToken("8b2f3c1e-6a71-4d2a-9a55-0d5a4b1d7e10", "wanjiru", "staff", time.Hour)
	require.NoError(t, err)
	admin, err := tokens.IssueAccessToken("c0a8e5d2-1f3b-4b6e-8d2a-77e4a9f1b302", "root", "super_admin", time.Hour)
	require.NoError(t, err)

	return &testEnv{db: db, core: core, cfg: cfg, server: server, staffToken: staff, adminToken: admin}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
	Meta *struct {
		Total int `json:"total"`
	} `json:"meta"`
}

func (e *testEnv) do(t *testing.T, method string, path string, token string, body any) (int, envelope) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}
