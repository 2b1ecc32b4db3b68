package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/tempo-operator/pkg/events"
	"github.com/cuemby/tempo-operator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu        sync.Mutex
	receivers []types.ReceiverSpec
	err       error
	report    types.StatusReport
	triggers  []string
}

func (f *fakeBackend) ListReceivers(ctx context.Context) ([]types.ReceiverSpec, error) {
	return f.receivers, f.err
}

func (f *fakeBackend) Status() types.StatusReport { return f.report }

func (f *fakeBackend) Trigger(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, reason)
}

func TestListReceiversHandler(t *testing.T) {
	backend := &fakeBackend{receivers: []types.ReceiverSpec{
		{Protocol: types.ProtocolOTLPGRPC, Port: 4317, Path: "/", TLSRequired: true},
		{Protocol: types.ProtocolTempoHTTP, Port: 3200, Path: "/", TLSRequired: true},
	}}
	srv := NewServer(backend, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/actions/list-receivers", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var raw map[string][]map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	require.Len(t, raw["receivers"], 2)
	first := raw["receivers"][0]
	assert.Equal(t, "otlp-grpc", first["protocol"])
	assert.Equal(t, float64(4317), first["port"])
	assert.Equal(t, "/", first["path"])
	assert.Equal(t, true, first["tls-required"])
}

func TestListReceiversEmptyAndError(t *testing.T) {
	t.Run("empty list is an array", func(t *testing.T) {
		srv := NewServer(&fakeBackend{}, nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/actions/list-receivers", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"receivers":[]}`, w.Body.String())
	})

	t.Run("backend failure", func(t *testing.T) {
		srv := NewServer(&fakeBackend{err: errors.New("relations unavailable")}, nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/actions/list-receivers", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "relations unavailable")
	})
}

func TestMethodsRejected(t *testing.T) {
	srv := NewServer(&fakeBackend{}, nil)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"POST status", http.MethodPost, "/v1/status"},
		{"DELETE receivers", http.MethodDelete, "/v1/actions/list-receivers"},
		{"GET reconcile", http.MethodGet, "/v1/actions/reconcile"},
		{"PUT events", http.MethodPut, "/v1/events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}
}

func TestStatusHandler(t *testing.T) {
	backend := &fakeBackend{report: types.StatusReport{
		Unit:    "tempo/0",
		Leader:  true,
		Status:  types.UnitStatus{Level: types.StatusWaiting, Message: "waiting for certificate"},
		Version: 3,
		Passes:  5,
		Relations: map[types.RelationKind]types.Presence{
			types.RelationCertificates: types.Invalid,
		},
	}}
	srv := NewServer(backend, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var report types.StatusReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.Equal(t, "tempo/0", report.Unit)
	assert.Equal(t, types.StatusWaiting, report.Status.Level)
	assert.Equal(t, uint64(3), report.Version)
	assert.Equal(t, types.Invalid, report.Relations[types.RelationCertificates])
}

func TestReconcileTriggers(t *testing.T) {
	backend := &fakeBackend{}
	srv := NewServer(backend, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/actions/reconcile", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"api"}, backend.triggers)

	// Actions live under /v1/actions only
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/reconcile", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, backend.triggers, 1)
}

func TestEventsHandler(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	srv := NewServer(&fakeBackend{}, broker)

	broker.Publish(events.New(events.EventPassCompleted, "first", nil))
	broker.Publish(events.New(events.EventConfigApplied, "second", nil))
	require.Eventually(t, func() bool { return len(broker.Recent(0)) == 2 }, 2*time.Second, 10*time.Millisecond)

	t.Run("limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/events?limit=1", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var list []events.Event
		require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
		require.Len(t, list, 1)
		assert.Equal(t, events.EventConfigApplied, list[0].Type)
	})

	t.Run("invalid limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/events?limit=zero", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no broker returns empty list", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewServer(&fakeBackend{}, nil).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})
}

func TestHealthEndpoints(t *testing.T) {
	srv := NewServer(&fakeBackend{}, nil)

	for _, path := range []string{"/live", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
