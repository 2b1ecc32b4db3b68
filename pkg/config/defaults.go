package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// Default values for configuration fields.
const (
	DefaultUnitID  = "tempo/0"
	DefaultApp     = "tempo"
	DefaultModel   = "default"
	DefaultAddress = "localhost"

	DefaultConfigPath        = "/etc/tempo.yaml"
	DefaultLogForwardingPath = "/etc/tempo/log-forwarding.yaml"
	DefaultWALPath           = "/etc/tempo_wal"
	DefaultTracesPath        = "/traces"
	DefaultCertDir           = "/etc/tempo/tls"
	DefaultStateDir          = "/var/lib/tempo-operator"
	DefaultSecretsDir        = "/var/lib/tempo-operator/secrets"

	DefaultHTTPPort = 3200

	DefaultIssuer          = "relation"
	DefaultRenewalFraction = 2.0 / 3.0
	DefaultIssueTimeout    = 30 * time.Second
	DefaultRetryAttempts   = uint(3)
	DefaultRetryDelay      = time.Second
	DefaultRetryMaxDelay   = 10 * time.Second
	DefaultCertValidity    = 90 * 24 * time.Hour
	DefaultACMEDirectory   = "https://acme-staging-v02.api.letsencrypt.org/directory"
	DefaultACMEHTTPAddr    = ":80"

	DefaultPassTimeout     = 2 * time.Minute
	DefaultMinPassInterval = time.Second
	DefaultResyncSchedule  = "@every 5m"

	DefaultPeerBackend      = "static"
	DefaultRaftBindAddr     = "127.0.0.1:7946"
	DefaultRaftApplyTimeout = 5 * time.Second

	DefaultAPIAddr  = ":8080"
	DefaultGRPCAddr = ":8081"

	DefaultRelationsDir   = "/var/lib/tempo-operator/relations"
	DefaultOutboxDir      = "/var/lib/tempo-operator/outbox"
	DefaultRestartTimeout = 30 * time.Second
	DefaultReadyTimeout   = 60 * time.Second

	DefaultLogLevel = "info"
)

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field with its default
func ApplyDefaults(cfg *Config) {
	setString(&cfg.Unit.ID, DefaultUnitID)
	setString(&cfg.Unit.App, DefaultApp)
	setString(&cfg.Unit.Model, DefaultModel)
	setString(&cfg.Unit.Address, DefaultAddress)

	setString(&cfg.Paths.Config, DefaultConfigPath)
	setString(&cfg.Paths.LogForwarding, DefaultLogForwardingPath)
	setString(&cfg.Paths.WAL, DefaultWALPath)
	setString(&cfg.Paths.Traces, DefaultTracesPath)
	setString(&cfg.Paths.CertDir, DefaultCertDir)
	setString(&cfg.Paths.State, DefaultStateDir)
	setString(&cfg.Paths.Secrets, DefaultSecretsDir)

	if len(cfg.Receivers.Enabled) == 0 {
		for _, p := range types.DefaultReceivers {
			cfg.Receivers.Enabled = append(cfg.Receivers.Enabled, string(p))
		}
	}
	if cfg.Receivers.HTTPPort == 0 {
		cfg.Receivers.HTTPPort = DefaultHTTPPort
	}

	setString(&cfg.Certificates.Issuer, DefaultIssuer)
	if cfg.Certificates.RenewalFraction == 0 {
		cfg.Certificates.RenewalFraction = DefaultRenewalFraction
	}
	setDuration(&cfg.Certificates.IssueTimeout, DefaultIssueTimeout)
	if cfg.Certificates.RetryAttempts == 0 {
		cfg.Certificates.RetryAttempts = DefaultRetryAttempts
	}
	setDuration(&cfg.Certificates.RetryDelay, DefaultRetryDelay)
	setDuration(&cfg.Certificates.RetryMaxDelay, DefaultRetryMaxDelay)
	setDuration(&cfg.Certificates.Validity, DefaultCertValidity)
	setString(&cfg.Certificates.ACME.DirectoryURL, DefaultACMEDirectory)
	setString(&cfg.Certificates.ACME.HTTPAddr, DefaultACMEHTTPAddr)

	setDuration(&cfg.Reconcile.PassTimeout, DefaultPassTimeout)
	setDuration(&cfg.Reconcile.MinPassInterval, DefaultMinPassInterval)
	setString(&cfg.Reconcile.ResyncSchedule, DefaultResyncSchedule)

	setString(&cfg.Peer.Backend, DefaultPeerBackend)
	setString(&cfg.Peer.Raft.BindAddr, DefaultRaftBindAddr)
	setDuration(&cfg.Peer.Raft.ApplyTimeout, DefaultRaftApplyTimeout)
	setString(&cfg.Peer.Raft.DataDir, filepath.Join(cfg.Paths.State, "raft"))

	setString(&cfg.API.Addr, DefaultAPIAddr)
	setString(&cfg.API.GRPCAddr, DefaultGRPCAddr)

	setString(&cfg.Relations.Dir, DefaultRelationsDir)
	setString(&cfg.Relations.Outbox, DefaultOutboxDir)

	setString(&cfg.Workload.ReadyURL, fmt.Sprintf("http://localhost:%d/ready", cfg.Receivers.HTTPPort))
	setDuration(&cfg.Workload.RestartTimeout, DefaultRestartTimeout)
	setDuration(&cfg.Workload.ReadyTimeout, DefaultReadyTimeout)

	setString(&cfg.Log.Level, DefaultLogLevel)
}

func setString(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

func setDuration(field *time.Duration, def time.Duration) {
	if *field == 0 {
		*field = def
	}
}
