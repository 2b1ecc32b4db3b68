/*
Package api exposes the tempo operator over HTTP and gRPC.

The HTTP server carries the probes used by the orchestrator, the Prometheus
endpoint and a small JSON API backed by the reconciler. The gRPC server only
registers the standard grpc.health.v1 service, whose status follows the
outcome of the most recent reconciliation pass.

# Endpoints

	GET  /health                      component health (metrics.HealthHandler)
	GET  /ready                       readiness of storage, peer and reconciler
	GET  /live                        liveness
	GET  /metrics                     Prometheus metrics
	GET  /v1/status                   types.StatusReport of the last pass
	GET  /v1/actions/list-receivers   receivers from a fresh synthesis
	POST /v1/actions/reconcile        request a pass
	GET  /v1/events?limit=n           recent operator events

Every request is counted in tempo_operator_api_requests_total, labelled by the
matched route pattern. gRPC calls are recorded the same way by
MetricsInterceptor using the full method name.

# Usage

	srv := api.NewServer(reconciler, broker)
	go func() {
		if err := srv.Start(cfg.API.Addr); err != nil {
			logger.Error().Err(err).Msg("HTTP API stopped")
		}
	}()
	defer srv.Shutdown(ctx)
*/
package api
