package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wildfly/wildfly-core-sub044/pkg/grpcapi"
	"github.com/wildfly/wildfly-core-sub044/pkg/hostreg"
	"github.com/wildfly/wildfly-core-sub044/pkg/logging"
)

// HostLister lists the registered host controllers.
type HostLister interface {
	Hosts() []hostreg.Host
}

// Config configures the API server.
type Config struct {
	Addr string
	Auth *AuthConfig // nil = no authentication
	// Controller serves /management; nil disables it.
	Controller grpcapi.Controller
	// Observer is told about requests executed through /management.
	Observer grpcapi.Observer
	Audit    *logging.EventBuffer
	Hosts    HostLister
	// Metrics are exported on /metrics next to the host gauges.
	Metrics *Metrics
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	controller grpcapi.Controller
	observer   grpcapi.Observer
	audit      *logging.EventBuffer
	hosts      HostLister
	startTime  time.Time
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		controller: cfg.Controller,
		observer:   cfg.Observer,
		audit:      cfg.Audit,
		hosts:      cfg.Hosts,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)

	// Prometheus metrics with isolated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(newCollector(s))
	if cfg.Metrics != nil {
		registry.MustRegister(cfg.Metrics.collectors()...)
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Management requests, as JSON bodies or as resource paths.
	mux.HandleFunc("POST /management", s.managementPostHandler)
	mux.HandleFunc("GET /management", s.managementGetHandler)
	mux.HandleFunc("GET /management/{path...}", s.managementGetHandler)

	mux.HandleFunc("GET /api/v1/hosts", s.hostsHandler)
	mux.HandleFunc("GET /api/v1/audit", s.auditHandler)
	mux.HandleFunc("GET /api/v1/audit/stream", s.auditStreamHandler)

	var handler http.Handler = mux
	if cfg.Auth != nil {
		handler = authMiddleware(*cfg.Auth, mux)
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, authentication included.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled, then shuts down within 5s.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API server listening", "addr", lis.Addr().String())
		if err := s.httpServer.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
