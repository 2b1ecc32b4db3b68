package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// FieldError is a validation error for one configuration field
type FieldError struct {
	// Field is the dotted path to the field, e.g. "certificates.renewal_fraction"
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks cfg and returns a ValidationError listing every problem
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateUnit(&cfg.Unit)...)
	errs = append(errs, validatePaths(&cfg.Paths)...)
	errs = append(errs, validateReceivers(&cfg.Receivers)...)
	errs = append(errs, validateCertificates(&cfg.Certificates)...)
	errs = append(errs, validateReconcile(&cfg.Reconcile)...)
	errs = append(errs, validatePeer(&cfg.Peer)...)
	errs = append(errs, validateWorkload(&cfg.Workload)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateUnit(cfg *UnitConfig) []FieldError {
	var errs []FieldError
	if cfg.ID == "" {
		errs = append(errs, FieldError{Field: "unit.id", Message: "unit id is required"})
	}
	if cfg.App == "" {
		errs = append(errs, FieldError{Field: "unit.app", Message: "application name is required"})
	}
	return errs
}

func validatePaths(cfg *PathsConfig) []FieldError {
	var errs []FieldError
	check := func(field, v string) {
		if v == "" {
			errs = append(errs, FieldError{Field: field, Message: "path is required"})
		}
	}
	check("paths.config", cfg.Config)
	check("paths.wal", cfg.WAL)
	check("paths.traces", cfg.Traces)
	check("paths.cert_dir", cfg.CertDir)
	check("paths.state", cfg.State)
	return errs
}

func validateReceivers(cfg *ReceiversConfig) []FieldError {
	var errs []FieldError

	for _, name := range cfg.Enabled {
		if !types.ProtocolKind(name).Valid() {
			errs = append(errs, FieldError{
				Field:   "receivers.enabled",
				Message: fmt.Sprintf("unknown receiver protocol %q", name),
			})
		}
	}
	for _, name := range cfg.RequireTLS {
		if !types.ProtocolKind(name).Valid() {
			errs = append(errs, FieldError{
				Field:   "receivers.require_tls",
				Message: fmt.Sprintf("unknown receiver protocol %q", name),
			})
		}
	}

	seen := make(map[int]string)
	for name, port := range cfg.Ports {
		if !types.ProtocolKind(name).Valid() {
			errs = append(errs, FieldError{
				Field:   "receivers.ports",
				Message: fmt.Sprintf("unknown receiver protocol %q", name),
			})
			continue
		}
		if port <= 0 || port > 65535 {
			errs = append(errs, FieldError{
				Field:   "receivers.ports." + name,
				Message: fmt.Sprintf("port %d out of range", port),
			})
			continue
		}
		if other, ok := seen[port]; ok {
			errs = append(errs, FieldError{
				Field:   "receivers.ports." + name,
				Message: fmt.Sprintf("port %d already used by %s", port, other),
			})
		}
		seen[port] = name
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		errs = append(errs, FieldError{
			Field:   "receivers.http_port",
			Message: fmt.Sprintf("port %d out of range", cfg.HTTPPort),
		})
	}

	return errs
}

func validateCertificates(cfg *CertificatesConfig) []FieldError {
	var errs []FieldError

	switch cfg.Issuer {
	case "relation", "self-signed":
	case "acme":
		if cfg.ACME.Email == "" {
			errs = append(errs, FieldError{Field: "certificates.acme.email", Message: "email is required for acme issuer"})
		}
		if len(cfg.ACME.Domains) == 0 {
			errs = append(errs, FieldError{Field: "certificates.acme.domains", Message: "at least one domain is required for acme issuer"})
		}
		if _, err := url.Parse(cfg.ACME.DirectoryURL); err != nil {
			errs = append(errs, FieldError{Field: "certificates.acme.directory_url", Message: err.Error()})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "certificates.issuer",
			Message: fmt.Sprintf("unknown issuer %q, expected relation, self-signed or acme", cfg.Issuer),
		})
	}

	if cfg.RenewalFraction <= 0 || cfg.RenewalFraction >= 1 {
		errs = append(errs, FieldError{
			Field:   "certificates.renewal_fraction",
			Message: "renewal fraction must be between 0 and 1",
		})
	}
	if cfg.RetryAttempts == 0 {
		errs = append(errs, FieldError{Field: "certificates.retry_attempts", Message: "at least one attempt is required"})
	}
	if cfg.RetryMaxDelay < cfg.RetryDelay {
		errs = append(errs, FieldError{Field: "certificates.retry_max_delay", Message: "max delay must not be less than retry delay"})
	}
	if cfg.IssueTimeout <= 0 {
		errs = append(errs, FieldError{Field: "certificates.issue_timeout", Message: "issue timeout must be positive"})
	}

	return errs
}

func validateReconcile(cfg *ReconcileConfig) []FieldError {
	var errs []FieldError

	if cfg.PassTimeout <= 0 {
		errs = append(errs, FieldError{Field: "reconcile.pass_timeout", Message: "pass timeout must be positive"})
	}
	if cfg.MinPassInterval < 0 {
		errs = append(errs, FieldError{Field: "reconcile.min_pass_interval", Message: "min pass interval must not be negative"})
	}
	if cfg.ResyncSchedule != "" {
		if _, err := cron.ParseStandard(cfg.ResyncSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "reconcile.resync_schedule",
				Message: fmt.Sprintf("invalid schedule: %v", err),
			})
		}
	}

	return errs
}

func validatePeer(cfg *PeerConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "static":
	case "raft":
		if _, _, err := net.SplitHostPort(cfg.Raft.BindAddr); err != nil {
			errs = append(errs, FieldError{Field: "peer.raft.bind_addr", Message: err.Error()})
		}
		if cfg.Raft.DataDir == "" {
			errs = append(errs, FieldError{Field: "peer.raft.data_dir", Message: "data dir is required for raft backend"})
		}
		for i, s := range cfg.Raft.Servers {
			if s.ID == "" || s.Address == "" {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("peer.raft.servers[%d]", i),
					Message: "id and address are required",
				})
			}
		}
	default:
		errs = append(errs, FieldError{
			Field:   "peer.backend",
			Message: fmt.Sprintf("unknown peer backend %q, expected static or raft", cfg.Backend),
		})
	}

	return errs
}

func validateWorkload(cfg *WorkloadConfig) []FieldError {
	var errs []FieldError
	if cfg.ReadyURL != "" {
		if _, err := url.ParseRequestURI(cfg.ReadyURL); err != nil {
			errs = append(errs, FieldError{Field: "workload.ready_url", Message: err.Error()})
		}
	}
	if cfg.ReadyTimeout <= 0 {
		errs = append(errs, FieldError{Field: "workload.ready_timeout", Message: "ready timeout must be positive"})
	}
	return errs
}
