/*
Package types defines the core data structures used throughout the tempo operator.

This package contains the domain model shared by every stage of a reconciliation
pass: normalized relation states, the receiver protocol table, the workload
configuration descriptor, the applied state record and the leader-owned peer
snapshot. It also defines the error taxonomy used to turn failures into unit
status instead of process faults.

# Architecture

A reconciliation pass moves data through these types in one direction:

	┌──────────────┐   ┌───────────────────┐   ┌────────────────┐   ┌──────────────┐
	│   Databag    │──▶│ RelationState[P]  │──▶│ WorkloadConfig │──▶│ AppliedState │
	│ (per relation│   │ Absent / Invalid /│   │ (pure function │   │ (after apply │
	│  per app)    │   │ Present(payload)  │   │  of the states)│   │  succeeded)  │
	└──────────────┘   └───────────────────┘   └────────────────┘   └──────────────┘

RelationState values are rebuilt from scratch on every pass. WorkloadConfig is
recomputed every pass and only becomes an AppliedState once the applier has
written it and the workload restarted on it.

# Relation States

Every relation kind normalizes to RelationState[P] with one of three presences:

  - Absent: no remote application provides the relation
  - Invalid: data was supplied but failed validation; Reason says why
  - Present: Payload holds validated data

Invalid never counts as Present. Consumers treat it exactly like Absent and only
use the Reason for logging and status.

# Receiver Protocols

ProtocolKind is a closed enumeration. The Protocols table maps each kind to its
default port, ingest path, transport and whether it can be served over TLS:

	tempo-http            3200   http  tls
	otlp-grpc             4317   grpc  tls
	otlp-http             4318   http  tls
	zipkin                9411   http  tls
	jaeger-thrift-http   14268   http  tls
	jaeger-grpc          14250   grpc  tls
	jaeger-thrift-compact 6831   udp   -

# Errors

  - ValidationError: malformed relation data, feature falls back to Absent
  - TransientError: external dependency failed, status waiting, retried next pass
  - ApplyError: local file or process step failed, status degraded
  - InvariantViolation: contradiction detected, pass aborted

StatusFor maps any error to the UnitStatus surfaced for the pass.
*/
package types
