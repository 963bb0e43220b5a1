package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ai-analysis-ops/internal/domain/ports/repository"
	"ai-analysis-ops/internal/infra/breaker"
	"ai-analysis-ops/internal/usecase"
)

// Server exposes the admin API: operation inspection and control,
// queue and breaker management, and historical metrics.
type Server struct {
	ops      usecase.OperationUseCase
	queue    usecase.RetryQueueUseCase
	metrics  usecase.MetricsUseCase
	alerts   usecase.AlertUseCase
	alertLog repository.AlertLogRepository
	breaker  *breaker.Breaker
	auth     *AuthManager
	log      *zerolog.Logger
}

func NewServer(
	ops usecase.OperationUseCase,
	queue usecase.RetryQueueUseCase,
	metrics usecase.MetricsUseCase,
	alerts usecase.AlertUseCase,
	alertLog repository.AlertLogRepository,
	brk *breaker.Breaker,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		ops:      ops,
		queue:    queue,
		metrics:  metrics,
		alerts:   alerts,
		alertLog: alertLog,
		breaker:  brk,
		auth:     auth,
		log:      &l,
	}
}

// Router builds the full route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.RequireAdmin)

		r.Get("/operations", s.listOperations)
		r.Route("/operations/{operationID}", func(r chi.Router) {
			r.Get("/", s.getOperation)
			r.Get("/events", s.listEvents)
			r.Get("/verify", s.verifyHistory)
			r.Post("/pause", s.pauseOperation)
			r.Post("/resume", s.resumeOperation)
			r.Post("/cancel", s.cancelOperation)
			r.Post("/retry", s.retryOperation)
			r.Post("/notes", s.addNote)
		})
		r.Get("/sessions/{sessionID}/operation", s.getSessionOperation)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/stats", s.queueStats)
			r.Post("/{sessionID}/cancel", s.cancelQueueItem)
		})

		r.Route("/breaker", func(r chi.Router) {
			r.Get("/", s.breakerStats)
			r.Post("/reset", s.breakerReset)
		})

		r.Get("/failure-rate", s.failureRate)
		r.Get("/metrics/history", s.metricsHistory)
		r.Get("/metrics/recent", s.recentMetrics)
		r.Get("/metrics/errors", s.metricsErrors)
		r.Get("/alerts/recent", s.recentAlerts)
	})

	return r
}
