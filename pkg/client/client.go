package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/tempo-operator/pkg/api"
	"github.com/cuemby/tempo-operator/pkg/events"
	"github.com/cuemby/tempo-operator/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultTimeout bounds every request made by the client
const DefaultTimeout = 30 * time.Second

// Client talks to a running operator's HTTP API for CLI usage
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for addr, which may be host:port or a full URL
func NewClient(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// ListReceivers runs the list-receivers action
func (c *Client) ListReceivers(ctx context.Context) ([]types.ReceiverSpec, error) {
	var resp api.ReceiversResponse
	if err := c.do(ctx, http.MethodGet, "/v1/actions/list-receivers", &resp); err != nil {
		return nil, err
	}
	return resp.Receivers, nil
}

// Status returns the report of the operator's last pass
func (c *Client) Status(ctx context.Context) (*types.StatusReport, error) {
	var report types.StatusReport
	if err := c.do(ctx, http.MethodGet, "/v1/status", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Reconcile requests a pass
func (c *Client) Reconcile(ctx context.Context) error {
	var resp api.ReconcileResponse
	return c.do(ctx, http.MethodPost, "/v1/actions/reconcile", &resp)
}

// Events returns up to limit recent events
func (c *Client) Events(ctx context.Context, limit int) ([]*events.Event, error) {
	path := "/v1/events"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var list []*events.Event
	if err := c.do(ctx, http.MethodGet, path, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach operator at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CheckHealth queries the gRPC health service of the operator at addr
func CheckHealth(ctx context.Context, addr string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus(), nil
}
