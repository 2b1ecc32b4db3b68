/*
Package health checks whether the tracing workload is ready to serve.

After a restart the applier waits for the workload's readiness endpoint
before the new configuration counts as applied. Tempo answers GET /ready
with status 200 and the body "ready" once all of its modules are running;
any other status or body means it is still starting.

	checker := health.NewReadyChecker("http://localhost:3200/ready")
	status, err := health.WaitReady(ctx, checker, health.Config{
		Interval: time.Second,
		Timeout:  60 * time.Second,
	})

WaitReady polls at Interval until the checker reports healthy or Timeout
expires, and returns the last Status either way so failures can be
reported with the workload's own message.
*/
package health
