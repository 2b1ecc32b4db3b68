package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/tempo-operator/pkg/events"
	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/metrics"
	"github.com/cuemby/tempo-operator/pkg/types"
	"github.com/rs/zerolog"
)

// Backend is the reconciler surface exposed over the API
type Backend interface {
	// ListReceivers computes the receiver set from a fresh synthesis
	ListReceivers(ctx context.Context) ([]types.ReceiverSpec, error)
	// Status returns the report of the most recent pass
	Status() types.StatusReport
	// Trigger requests a reconciliation pass
	Trigger(reason string)
}

// Server serves the operator HTTP API: probes, metrics, status and actions
type Server struct {
	backend Backend
	broker  *events.Broker
	mux     *http.ServeMux
	server  *http.Server
	logger  zerolog.Logger
}

// NewServer creates the HTTP API server. broker may be nil, in which case
// /v1/events always returns an empty list.
func NewServer(backend Backend, broker *events.Broker) *Server {
	mux := http.NewServeMux()
	s := &Server{
		backend: backend,
		broker:  broker,
		mux:     mux,
		logger:  log.WithComponent("api"),
	}

	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/v1/status", s.statusHandler)
	mux.HandleFunc("/v1/actions/list-receivers", s.listReceiversHandler)
	mux.HandleFunc("/v1/actions/reconcile", s.reconcileHandler)
	mux.HandleFunc("/v1/events", s.eventsHandler)

	return s
}

// Handler returns the instrumented HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.instrument(s.mux)
}

// Start listens on addr and serves until Shutdown is called
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Serve serves the API on an existing listener
func (s *Server) Serve(lis net.Listener) error {
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("HTTP API listening")
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// statusRecorder captures the response code for metrics
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument labels requests by the matched mux pattern so unknown paths
// share a single series
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		_, pattern := s.mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}
		route := r.Method + " " + pattern
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)
	})
}
