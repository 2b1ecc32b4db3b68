/*
Package metrics exposes Prometheus metrics and health endpoints for the
tempo operator.

Metrics are registered on the default registry at init and served by
Handler. The reconciler updates them at the end of every pass:

  - tempo_operator_passes_total{status}, tempo_operator_pass_duration_seconds
  - tempo_operator_triggers_total{source}, tempo_operator_triggers_coalesced_total
  - tempo_operator_relation_presence{relation,presence}
  - tempo_operator_config_version, tempo_operator_applies_total{result}
  - tempo_operator_receivers_enabled, tempo_operator_tls_enabled,
    tempo_operator_certificate_expiry_timestamp_seconds
  - tempo_operator_routes_published, tempo_operator_is_leader
  - tempo_operator_raft_log_index, tempo_operator_raft_applied_index
    (copied from the raft node by Collector)

The health half tracks named components. /health reports unhealthy when
any component is, /ready requires every entry of CriticalComponents to be
registered and healthy, and /live answers as long as the process runs.

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PassDuration)
*/
package metrics
