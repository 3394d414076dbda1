package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mrwolf/moodtrack/internal/config"
	"github.com/mrwolf/moodtrack/internal/db"
	"github.com/mrwolf/moodtrack/internal/insights"
	"github.com/mrwolf/moodtrack/internal/metrics"
)

func NewRouter(cfg *config.Config, database *db.DB, svc *insights.Service, m *metrics.Metrics, jobs JobRunner) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware(m))

	handlers := NewHandlers(cfg, database, svc)
	if jobs != nil {
		handlers.SetJobRunner(jobs)
	}

	// Public endpoints
	r.Get("/health", handlers.Health)
	r.Handle("/metrics", m.Handler())

	// API v1 routes (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg))
		r.Use(JSONContentType)
		if cfg.RateLimit > 0 {
			r.Use(RateLimitMiddleware(NewRateLimiter(cfg.RateLimit, time.Minute, nil)))
		}

		r.Post("/observations", handlers.Observe)
		r.Get("/days", handlers.Days)
		r.Get("/weeks", handlers.Weeks)
		r.Get("/prediction", handlers.Prediction)
		r.Post("/predict", handlers.Predict)
		r.Get("/predictions", handlers.Predictions)
		r.Get("/reports", handlers.Reports)
		r.Post("/reports/weekly", handlers.GenerateWeekly)
		r.Get("/reports/{week}", handlers.Report)
		r.Get("/jobs", handlers.Jobs)
		r.Post("/rules/reload", handlers.ReloadRules)
	})

	return r
}
