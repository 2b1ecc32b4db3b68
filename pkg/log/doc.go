/*
Package log provides structured logging for the tempo operator using zerolog.

The log package wraps the zerolog library with a package-level logger,
configurable level and output format, and child loggers that carry the
context fields used across the operator (component, unit, relation, pass).

# Architecture

	┌──────────────────── LOGGING ─────────────────────┐
	│                                                    │
	│  log.Init(Config{Level, JSONOutput, Output})       │
	│                 │                                  │
	│                 ▼                                  │
	│        Global zerolog.Logger                       │
	│                 │                                  │
	│   ┌─────────────┼──────────────┬──────────────┐    │
	│   ▼             ▼              ▼              ▼    │
	│ WithComponent WithUnit   WithRelation     WithPass │
	│ "reconciler"  "tempo/0"  "certificates"   pass id  │
	└────────────────────────────────────────────────────┘

# Usage

Initializing the logger:

	import "github.com/cuemby/tempo-operator/pkg/log"

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stdout,
	})

Component loggers:

	logger := log.WithComponent("applier")
	logger.Info().
		Uint64("version", cfg.Version).
		Str("hash", hash).
		Msg("configuration applied")

Relation context:

	relLog := log.WithRelation(string(types.RelationCertificates))
	relLog.Warn().Str("reason", state.Reason.String()).Msg("relation invalid, treating as absent")

# Levels

  - debug: per-relation normalization results, route diffs
  - info: pass summaries, leadership changes, applied versions
  - warn: invalid relations, renewal pending, retried issuance
  - error: apply failures, invariant violations
  - fatal: startup failures in cmd only

Output is console formatted by default and JSON when JSONOutput is set, which
is the expected mode when the operator runs in a pod.
*/
package log
