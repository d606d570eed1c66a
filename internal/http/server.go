// Package http exposes the engine as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"fisse/internal/backend"
	"fisse/internal/ledger"
	"fisse/internal/log"
	"fisse/internal/metrics"
	"fisse/internal/middleware/ratelimit"
	"fisse/internal/middleware/security"
)

// Server is the API server. Embedding http.Server keeps ListenAndServe and
// friends available to cmd/fisse.
type Server struct {
	http.Server
	svc         *backend.Services
	history     ledger.HistorySource
	reachable   func(ctx context.Context) bool
	rateLimiter *ratelimit.Limiter
	logger      *log.Logger

	shutdownOnce sync.Once
}

// Options tune the server; the zero value is usable.
type Options struct {
	AllowedOrigins    []string
	RequestsPerMinute int
	Logger            *log.Logger
}

// NewServer configures routes over svc, returning a ready-to-run server.
// history feeds the migration endpoint; reachable backs /readyz.
func NewServer(addr string, svc *backend.Services, history ledger.HistorySource, reachable func(ctx context.Context) bool, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		svc:       svc,
		history:   history,
		reachable: reachable,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RequestsPerMinute,
		}),
		logger: logger.WithComponent(log.ComponentHTTP),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware(security.NewClientIPResolver().ClientIP, func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
		}))

		r.Route("/templates/{side}", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.With(middleware.AllowContentType("application/json")).Post("/", s.handleCreateTemplate)
			r.Get("/{id}", s.handleGetTemplate)
			r.With(middleware.AllowContentType("application/json")).Put("/{id}", s.handleUpdateTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
		})

		r.Route("/periods/{period}", func(r chi.Router) {
			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", s.handleGetExpensePeriod)
				r.Post("/regenerate", s.handleRegenerateExpensePeriod)
				r.Post("/{itemID}/pay", s.handlePay)
				r.Post("/{itemID}/undo", s.handleUndo)
				r.Post("/{itemID}/skip", s.handleSkip)
				r.Put("/{itemID}/amount", s.handleUpdateExpenseAmount)
			})
			r.Route("/income", func(r chi.Router) {
				r.Get("/", s.handleGetIncomePeriod)
				r.Post("/regenerate", s.handleRegenerateIncomePeriod)
				r.Put("/{itemID}/received", s.handleToggleReceived)
				r.Put("/{itemID}/amount", s.handleUpdateIncomeAmount)
				r.Post("/extras", s.handleAddExtra)
				r.Put("/extras/{extraID}", s.handleEditExtra)
				r.Delete("/extras/{extraID}", s.handleDeleteExtra)
			})
			r.Post("/repair", s.handleRepairPeriod)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/migrate", s.handleMigrate)
			r.Post("/rollover", s.handleRollover)
			r.Get("/outbox", s.handleOutboxStats)
			r.Post("/outbox/retry", s.handleOutboxRetry)
		})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
