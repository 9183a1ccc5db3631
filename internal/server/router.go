package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"flowlytix/licensing/internal/security"
)

// Pinger reports storage reachability for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthChecker reports whether a component can serve requests.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouterConfig wires the handlers and cross-cutting middleware into one mux.
type RouterConfig struct {
	Licensing *LicensingHandler
	Admin     *AdminHandler

	Hasher       *security.Hasher
	AdminKeyHash string // empty disables the admin surface

	// DB is nil when running on the in-memory ledger; health then skips it.
	DB Pinger
	// Policy is the entitlement engine health probe. Optional.
	Policy HealthChecker
}

// NewRouter assembles the HTTP surface: public license endpoints under
// /api/v1/license, the key-guarded admin API under /api/v1/admin, and
// /healthz.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(WithClientIP)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/healthz", healthHandler(cfg.DB, cfg.Policy))

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/license", cfg.Licensing.Routes())
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdminKey(cfg.Hasher, cfg.AdminKeyHash))
			r.Mount("/", cfg.Admin.Routes())
		})
	})

	return otelhttp.NewHandler(r, "licensing-http")
}

func healthHandler(db Pinger, policy HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				checks["database"] = err.Error()
				healthy = false
			} else {
				checks["database"] = "ok"
			}
		}
		if policy != nil {
			if err := policy.HealthCheck(ctx); err != nil {
				checks["entitlement"] = err.Error()
				healthy = false
			} else {
				checks["entitlement"] = "ok"
			}
		}

		status := "ok"
		if !healthy {
			status = "degraded"
			render.Status(r, http.StatusServiceUnavailable)
		}
		render.JSON(w, r, map[string]interface{}{
			"status": status,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
