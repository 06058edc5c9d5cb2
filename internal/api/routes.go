package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/swaggest/swgui/v5emb"
	"go.uber.org/zap"

	"github.com/mrwolf/geolocator/internal/config"
	"github.com/mrwolf/geolocator/internal/db"
	"github.com/mrwolf/geolocator/internal/locator"
	"github.com/mrwolf/geolocator/internal/metrics"
	"github.com/mrwolf/geolocator/internal/report"
)

// Deps are the collaborators the HTTP layer needs. Reports, Model and
// Monitor may be nil.
type Deps struct {
	Config  *config.Config
	DB      *db.DB
	Reports *report.Writer
	Locator *locator.Locator
	Model   HealthChecker
	Monitor ModelMonitor
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

func NewRouter(deps Deps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger.Named("http")))
	r.Use(middleware.Recoverer)

	handlers := &Handlers{
		cfg:     deps.Config,
		db:      deps.DB,
		reports: deps.Reports,
		locator: deps.Locator,
		model:   deps.Model,
		monitor: deps.Monitor,
		logger:  logger,
	}

	// Public endpoints
	r.Get("/health", handlers.Health)
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Geolocator API", "/openapi.json", "/docs"))
	if deps.Metrics != nil {
		r.Method("GET", "/metrics", deps.Metrics.Handler())
	}

	limiter := NewRateLimiter(deps.Config.RateLimit, time.Minute)

	// API v1 routes (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(JSONContentType)
		r.Use(AuthMiddleware(deps.Config))
		r.Use(RateLimitMiddleware(limiter))

		r.Post("/analyze", handlers.Analyze)
		r.Post("/validate", handlers.Validate)
		r.Get("/analyses", handlers.ListAnalyses)
		r.Get("/analyses/{id}", handlers.GetAnalysis)
		r.Delete("/analyses/{id}", handlers.DeleteAnalysis)
	})

	return r
}
