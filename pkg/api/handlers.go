package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/tempo-operator/pkg/events"
	"github.com/cuemby/tempo-operator/pkg/types"
)

// receiversTimeout bounds the fresh synthesis behind list-receivers
const receiversTimeout = 10 * time.Second

// defaultEventLimit is the number of events returned without ?limit
const defaultEventLimit = 20

// ReceiversResponse is the result of the list-receivers action
type ReceiversResponse struct {
	Receivers []types.ReceiverSpec `json:"receivers"`
}

// ErrorResponse is returned for failed requests
type ErrorResponse struct {
	Error string `json:"error"`
}

// ReconcileResponse acknowledges a requested pass
type ReconcileResponse struct {
	Triggered bool      `json:"triggered"`
	Timestamp time.Time `json:"timestamp"`
}

// statusHandler implements GET /v1/status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.backend.Status())
}

// listReceiversHandler implements GET /v1/actions/list-receivers
func (s *Server) listReceiversHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), receiversTimeout)
	defer cancel()

	receivers, err := s.backend.ListReceivers(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("list-receivers failed")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	if receivers == nil {
		receivers = []types.ReceiverSpec{}
	}
	writeJSON(w, http.StatusOK, ReceiversResponse{Receivers: receivers})
}

// reconcileHandler implements POST /v1/actions/reconcile
func (s *Server) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.backend.Trigger("api")
	writeJSON(w, http.StatusAccepted, ReconcileResponse{Triggered: true, Timestamp: time.Now()})
}

// eventsHandler implements GET /v1/events?limit=n
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	list := []*events.Event{}
	if s.broker != nil {
		list = append(list, s.broker.Recent(limit)...)
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
