package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"compass/internal/authz"
	"compass/internal/config"
	"compass/internal/database"
	"compass/internal/handler"
	"compass/internal/middleware"
	"compass/internal/model"
	"compass/internal/repository"
	"compass/internal/router"
	"compass/internal/service"
	"compass/internal/softdelete"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	server       *http.Server
	sweeper      *service.Sweeper
	cleanupFuncs []func()
}

// Core is the recycle-bin wiring shared by the server and the sweep command.
type Core struct {
	Registry   *softdelete.Registry
	Tombstones *repository.RecycleBinRepository
	RecycleBin *service.RecycleBinService

	divisions      *repository.DivisionRepository
	grants         *repository.GrantRepository
	documents      *repository.DocumentRepository
	emailTemplates *repository.EmailTemplateRepository
	db             *database.DB
}

func NewCore(db *database.DB, cfg *config.Config) (*Core, error) {
	c := &Core{
		Tombstones:     repository.NewRecycleBinRepository(db.Pool),
		divisions:      repository.NewDivisionRepository(db.Pool),
		grants:         repository.NewGrantRepository(db.Pool),
		documents:      repository.NewDocumentRepository(db.Pool),
		emailTemplates: repository.NewEmailTemplateRepository(db.Pool),
		db:             db,
	}

	registry, err := softdelete.NewRegistry(c.divisions, c.grants, c.documents, c.emailTemplates)
	if err != nil {
		return nil, fmt.Errorf("build type registry: %w", err)
	}
	c.Registry = registry

	c.RecycleBin = service.NewRecycleBinService(registry, c.Tombstones, db, service.RecycleBinOptions{
		Retention:           cfg.RecycleBinRetention,
		AllowExpiredRestore: cfg.AllowExpiredRestore,
	})
	return c, nil
}

// Subjects builds the create/read handlers of every registered type.
func (c *Core) Subjects(policy authz.RolePolicy) []handler.SubjectHandler {
	return []handler.SubjectHandler{
		handler.NewEntityHandler[*model.Division](service.NewCatalogService[*model.Division](c.divisions), func() *model.Division { return &model.Division{} }, policy),
		handler.NewEntityHandler[*model.Grant](service.NewCatalogService[*model.Grant](c.grants), func() *model.Grant { return &model.Grant{} }, policy),
		handler.NewEntityHandler[*model.Document](service.NewCatalogService[*model.Document](c.documents), func() *model.Document { return &model.Document{} }, policy),
		handler.NewEntityHandler[*model.EmailTemplate](service.NewCatalogService[*model.EmailTemplate](c.emailTemplates), func() *model.EmailTemplate { return &model.EmailTemplate{} }, policy),
	}
}

func (c *Core) NewSweeper(locker service.Locker, cfg *config.Config) *service.Sweeper {
	return service.NewSweeper(c.Registry, c.Tombstones, c.db, locker, service.SweeperOptions{
		Interval:  cfg.SweepInterval,
		LockTTL:   cfg.SweepLockTTL,
		BatchSize: cfg.SweepBatchSize,
	})
}

// NewLocker picks the Redis lease when Redis is configured and the
// in-process one otherwise.
func NewLocker(rdb *database.Redis) service.Locker {
	if rdb == nil {
		slog.Warn("REDIS_URL not set, sweep lease is process-local")
		return service.NewLocalLocker()
	}
	return service.NewRedisLocker(rdb.Client)
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a := &App{cleanupFuncs: []func(){db.Close}}

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	rdb, err := database.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if rdb != nil {
		a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = rdb.Close() })
	}

	core, err := NewCore(db, cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	slog.Info("recycle bin ready", "types", len(core.Registry.Descriptors()), "retention", cfg.RecycleBinRetention.String())

	tokens, err := service.NewTokenService(cfg.JWTSecret)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	authMiddleware := middleware.NewAuthMiddleware(tokens)
	policy := authz.NewRolePolicy(cfg.ElevatedRoles)
	slog.Info("role policy loaded", "elevated_roles", policy.Roles())

	recycleBinHandler := handler.NewRecycleBinHandler(core.RecycleBin, core.Registry, policy)
	health := func(r *http.Request) error {
		if err := db.Health(r.Context()); err != nil {
			return err
		}
		if rdb != nil {
			return rdb.Health(r.Context())
		}
		return nil
	}

	appRouter := router.New(cfg, authMiddleware, policy, recycleBinHandler, core.Subjects(policy), health)

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	if cfg.SweepEnabled {
		a.sweeper = core.NewSweeper(NewLocker(rdb), cfg)
	} else {
		slog.Info("recycle bin sweeper disabled")
	}

	return a, nil
}

// Run serves until SIGINT or SIGTERM, then shuts the server and the sweeper down.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if a.sweeper != nil {
		g.Go(func() error {
			return a.sweeper.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server stopped")
		return nil
	})

	return g.Wait()
}

func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}
