package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/post-scraper/internal/domain"
	"github.com/user/post-scraper/internal/monitoring"
)

// RunService starts and reports scrape runs. *usecase.RunManager satisfies it.
type RunService interface {
	Trigger() (string, error)
	Get(id string) (domain.RunState, error)
	Latest() (domain.RunState, error)
}

// Pinger is a dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	router     http.Handler
	httpServer *http.Server
	runs       RunService
	checks     map[string]Pinger
	gatherer   prometheus.Gatherer
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// NewServer wires the API. checks maps a dependency name ("postgres",
// "redis") to its pinger; only configured dependencies should be passed.
func NewServer(port string, runs RunService, checks map[string]Pinger, g prometheus.Gatherer, m *monitoring.Metrics, l *zap.Logger) *Server {
	s := &Server{
		runs:     runs,
		checks:   checks,
		gatherer: g,
		metrics:  m,
		logger:   l,
	}
	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
