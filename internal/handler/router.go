package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/observability"
	"github.com/boddenberg/flexcard-bfa-go/internal/service"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the application services the router exposes.
type Services struct {
	Auth      *service.AuthService
	Customers *service.CustomerService
	Publisher *service.PublisherService
	Display   *service.DisplayService
	Messaging *service.MessagingService
	Import    *service.ImportService
	Settings  *service.LineSettingsService
}

// Options tunes the HTTP layer.
type Options struct {
	// Origins allowed to call the API with credentials. Empty disables
	// CORS; "*" is dropped since it cannot be combined with credentials.
	CORSAllowedOrigins  []string
	SessionCookieSecure bool
	// Use X-Forwarded-For / X-Real-IP as the client address. Set only
	// behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
	// Dependencies checked by /healthz, by name.
	Health map[string]Pinger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(durationMiddleware(metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	if origins := explicitOrigins(opts.CORSAllowedOrigins); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(opts.Health))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- Public card pages ---
	r.Get("/card/{share_id}", cardPageHandler(svc.Display, logger))
	r.Get("/card/{share_id}/vcard", vcardHandler(svc.Display, logger))

	// --- API ---
	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(svc.Auth, logger))
		login := RequireLogin(logger)
		perm := func(p domain.Permission) func(http.Handler) http.Handler {
			return RequirePermission(p, logger)
		}

		// =============================================
		// Auth
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authLoginHandler(svc.Auth, opts.SessionCookieSecure, logger))
			r.Post("/logout", authLogoutHandler(svc.Auth, opts.SessionCookieSecure, logger))
			r.Get("/check-auth", authCheckHandler())
			r.With(login).Get("/current-user", authCurrentUserHandler())
			r.With(login).Post("/change-password", authChangePasswordHandler(svc.Auth, logger))

			r.Route("/users", func(r chi.Router) {
				r.Use(perm(domain.PermUserManagement))
				r.Get("/", listUsersHandler(svc.Auth, logger))
				r.Post("/", createUserHandler(svc.Auth, logger))
				r.Put("/{id}", updateUserHandler(svc.Auth, logger))
				r.Delete("/{id}", deleteUserHandler(svc.Auth, logger))
			})
		})

		// =============================================
		// Customers
		// =============================================
		r.Route("/customers", func(r chi.Router) {
			r.Use(perm(domain.PermCustomerManagement))
			r.Post("/", createCustomerHandler(svc.Customers, logger))
			r.Get("/", listCustomersHandler(svc.Customers, logger))
			r.Get("/search", searchCustomersHandler(svc.Customers, logger))
			r.Get("/{id}", getCustomerHandler(svc.Customers, logger))
			r.Put("/{id}", updateCustomerHandler(svc.Customers, logger))
			r.Delete("/{id}", deleteCustomerHandler(svc.Customers, logger))
		})

		// =============================================
		// Cards
		// =============================================
		r.Route("/cards", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(perm(domain.PermCardPublish))
				r.Post("/publish", publishCardHandler(svc.Publisher, logger))
				r.Get("/published", listPublishedHandler(svc.Publisher, logger))
				r.Get("/published/{customer_id}", getPublishedHandler(svc.Publisher, logger))
				r.Post("/unpublish/{customer_id}", unpublishHandler(svc.Publisher, logger))
			})
			r.Group(func(r chi.Router) {
				r.Use(perm(domain.PermCardDesign))
				r.Get("/preview/{customer_id}", previewCardHandler(svc.Publisher, logger))
				r.Get("/templates", templatesHandler())
			})
			r.Group(func(r chi.Router) {
				r.Use(perm(domain.PermCardImport))
				r.Post("/import", importCardHandler(svc.Import, logger))
				r.Post("/parse-flex", parseFlexHandler(svc.Import, logger))
			})
			r.With(perm(domain.PermViewStatistics)).Get("/stats", cardStatsHandler(svc.Publisher, logger))
			r.With(perm(domain.PermExportData)).Get("/export", exportCardsHandler(svc.Publisher, logger))
		})

		// =============================================
		// LINE
		// =============================================
		r.Route("/line", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(perm(domain.PermCardPublish))
				r.Post("/send-card/{customer_id}", sendCardHandler(svc.Messaging, logger))
				r.Post("/send-card-batch", sendCardBatchHandler(svc.Messaging, logger))
			})
			r.Group(func(r chi.Router) {
				r.Use(perm(domain.PermSystemSettings))
				r.Get("/config", getLineConfigHandler(svc.Settings))
				r.Post("/config", updateLineConfigHandler(svc.Settings, logger))
				r.Post("/test-connection", testConnectionHandler(svc.Messaging, logger))
			})
		})
	})

	return r
}

func explicitOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o != "" && o != "*" {
			out = append(out, o)
		}
	}
	return out
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "flexcard-api", Status: "healthy", LastChecked: now},
		}
		overall := "healthy"
		for name, dep := range deps {
			start := time.Now()
			err := dep.Ping(ctx)
			h := domain.ServiceHealth{
				Name:        name,
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				h.Status = "unhealthy"
				h.Error = err.Error()
				overall = "degraded"
			}
			services = append(services, h)
		}

		status := http.StatusOK
		if overall != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
