package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"compass/internal/authz"
	"compass/internal/config"
	"compass/internal/handler"
	"compass/internal/middleware"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func(r *http.Request) error

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	policy authz.RolePolicy,
	recycleBin *handler.RecycleBinHandler,
	subjects []handler.SubjectHandler,
	health HealthChecker,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.MutationRateLimitRPM)

	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			if err := health(req); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))
		api.Use(authMiddleware.RequireAuth)

		for _, subject := range subjects {
			d := subject.Descriptor()
			api.Route("/"+d.Slug, func(sr chi.Router) {
				sr.Post("/", subject.Create)
				sr.Get("/", subject.List)
				sr.Get("/recycle-bin", recycleBin.ListType(d.Type))
				sr.Get("/{id}", subject.Get)
				sr.Delete("/{id}/soft-delete", recycleBin.SoftDelete(d.Type))
				sr.Post("/{id}/restore", recycleBin.Restore(d.Type))
				sr.Delete("/{id}/permanent-delete", recycleBin.PermanentDelete(d.Type))
			})
		}

		api.Route("/recycle-bin", func(rb chi.Router) {
			rb.Use(authMiddleware.RequireElevated(policy))
			rb.Get("/", recycleBin.List)
			rb.Post("/{tombstone_id}/restore", recycleBin.RestoreTombstone)
			rb.Delete("/{tombstone_id}", recycleBin.PermanentDeleteTombstone)
		})
	})

	return r
}
