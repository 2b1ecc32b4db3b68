/*
Package reconciler drives the tempo operator: it turns relation databags
into a running, correctly configured Tempo workload, one pass at a time.

# Pass

Every pass runs the same pipeline, start to finish:

	relation.Source ──▶ NormalizeAll ──▶ certs.Resolve ──▶ synth.Synthesize
	                                                            │
	      ┌─────────────────────────────────────────────────────┘
	      ▼
	peer.Assign ──▶ certs.Renew ──▶ ingress.Sync ──▶ applier.Apply
	                                                      │
	      ┌───────────────────────────────────────────────┘
	      ▼
	peer.RecordApplied ──▶ peer.PublishUnits ──▶ relation publications

Step failures are folded into the pass status with types.StatusFor and the
rest of the pipeline still runs, so a failing certificate issuer never stops
routes or configuration from converging. Only an unreadable relation source
or an InvariantViolation aborts a pass, and a panic anywhere is recovered and
reported as degraded.

# Triggers

Passes run on a single goroutine. Trigger is a non-blocking send on a channel
with one slot: while a pass runs, any number of triggers leave exactly one
pass pending. Triggers come from the relation watcher, leadership changes,
the API, a cron resync (ResyncSchedule) and certificate issuance. A
golang.org/x/time/rate limiter keeps MinPassInterval between passes.

# Publications

Each unit publishes its peer bag (address and applied config version). The
leader alone publishes the application bags: tracing ingesters, scrape jobs
and grafana dashboards with the datasource. A bag is retracted when its
relation goes away.
*/
package reconciler
