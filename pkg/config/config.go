package config

import (
	"time"
)

// Config is the static configuration of the operator. It is loaded once at
// startup and passed read-only into every reconciliation pass.
type Config struct {
	Unit         UnitConfig         `yaml:"unit"`
	Paths        PathsConfig        `yaml:"paths"`
	Receivers    ReceiversConfig    `yaml:"receivers"`
	Certificates CertificatesConfig `yaml:"certificates"`
	Reconcile    ReconcileConfig    `yaml:"reconcile"`
	Peer         PeerConfig         `yaml:"peer"`
	API          APIConfig          `yaml:"api"`
	Relations    RelationsConfig    `yaml:"relations"`
	Workload     WorkloadConfig     `yaml:"workload"`
	Log          LogConfig          `yaml:"log"`
}

// UnitConfig identifies this unit
type UnitConfig struct {
	// ID is the unit identity, e.g. "tempo/0"
	ID string `yaml:"id"`

	// App is the application name, used to name routes and publications
	App string `yaml:"app"`

	// Model is the deployment namespace
	Model string `yaml:"model"`

	// Address is the address other components reach this unit on
	Address string `yaml:"address"`
}

// PathsConfig holds every local file location the operator writes to
type PathsConfig struct {
	Config        string `yaml:"config"`
	LogForwarding string `yaml:"log_forwarding"`
	WAL           string `yaml:"wal"`
	Traces        string `yaml:"traces"`
	CertDir       string `yaml:"cert_dir"`
	State         string `yaml:"state"`
	Secrets       string `yaml:"secrets"`
}

// ReceiversConfig controls the statically enabled receivers
type ReceiversConfig struct {
	// Enabled lists protocol names enabled regardless of tracing requests
	Enabled []string `yaml:"enabled"`

	// Ports overrides the default port of a protocol
	Ports map[string]int `yaml:"ports"`

	// RequireTLS lists protocols that must not be served without TLS.
	// They are disabled while TLS is off.
	RequireTLS []string `yaml:"require_tls"`

	// AllowPlaintextWithTLS keeps receivers that cannot do TLS enabled
	// in plaintext while TLS is on
	AllowPlaintextWithTLS bool `yaml:"allow_plaintext_with_tls"`

	// HTTPPort is Tempo's own HTTP API port
	HTTPPort int `yaml:"http_port"`
}

// CertificatesConfig controls the certificate lifecycle
type CertificatesConfig struct {
	// Issuer is one of "relation", "self-signed", "acme"
	Issuer string `yaml:"issuer"`

	// RenewalFraction is the fraction of validity after which renewal starts
	RenewalFraction float64 `yaml:"renewal_fraction"`

	IssueTimeout  time.Duration `yaml:"issue_timeout"`
	RetryAttempts uint          `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	RetryMaxDelay time.Duration `yaml:"retry_max_delay"`

	// Validity is the lifetime requested from self-signed issuance
	Validity time.Duration `yaml:"validity"`

	ACME ACMEConfig `yaml:"acme"`
}

// ACMEConfig configures the ACME issuer
type ACMEConfig struct {
	Email        string   `yaml:"email"`
	DirectoryURL string   `yaml:"directory_url"`
	Domains      []string `yaml:"domains"`
	HTTPAddr     string   `yaml:"http_addr"`
}

// ReconcileConfig controls pass scheduling
type ReconcileConfig struct {
	PassTimeout     time.Duration `yaml:"pass_timeout"`
	MinPassInterval time.Duration `yaml:"min_pass_interval"`
	ResyncSchedule  string        `yaml:"resync_schedule"`
}

// PeerConfig selects the peer coordination backend
type PeerConfig struct {
	// Backend is "static" or "raft"
	Backend string `yaml:"backend"`

	// Leader is the leadership signal for the static backend
	Leader bool `yaml:"leader"`

	Raft RaftConfig `yaml:"raft"`
}

// RaftConfig configures the raft backed peer storage
type RaftConfig struct {
	BindAddr string       `yaml:"bind_addr"`
	DataDir  string       `yaml:"data_dir"`
	Servers  []RaftServer `yaml:"servers"`

	ApplyTimeout time.Duration `yaml:"apply_timeout"`
}

// RaftServer is one voter of the raft configuration
type RaftServer struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

// APIConfig configures the HTTP and gRPC listeners
type APIConfig struct {
	Addr     string `yaml:"addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// RelationsConfig locates relation databags
type RelationsConfig struct {
	Dir    string `yaml:"dir"`
	Outbox string `yaml:"outbox"`
	Watch  bool   `yaml:"watch"`
}

// WorkloadConfig controls how the tracing workload is restarted and probed
type WorkloadConfig struct {
	RestartCommand []string      `yaml:"restart_command"`
	RestartTimeout time.Duration `yaml:"restart_timeout"`
	ReadyURL       string        `yaml:"ready_url"`
	ReadyTimeout   time.Duration `yaml:"ready_timeout"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}
