package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vrischmann/envconfig"
	"gopkg.in/yaml.v3"
)

// envOverrides holds the environment variables that may override file
// configuration. Unset variables leave the pointer nil.
type envOverrides struct {
	UnitID      *string `envconfig:"TEMPO_OPERATOR_UNIT_ID"`
	UnitApp     *string `envconfig:"TEMPO_OPERATOR_UNIT_APP"`
	UnitModel   *string `envconfig:"TEMPO_OPERATOR_UNIT_MODEL"`
	UnitAddress *string `envconfig:"TEMPO_OPERATOR_UNIT_ADDRESS"`

	ConfigPath *string `envconfig:"TEMPO_OPERATOR_PATHS_CONFIG"`
	StateDir   *string `envconfig:"TEMPO_OPERATOR_PATHS_STATE"`
	CertDir    *string `envconfig:"TEMPO_OPERATOR_PATHS_CERT_DIR"`

	Receivers *[]string `envconfig:"TEMPO_OPERATOR_RECEIVERS_ENABLED"`

	Issuer          *string   `envconfig:"TEMPO_OPERATOR_CERTIFICATES_ISSUER"`
	RenewalFraction *float64  `envconfig:"TEMPO_OPERATOR_CERTIFICATES_RENEWAL_FRACTION"`
	ACMEEmail       *string   `envconfig:"TEMPO_OPERATOR_CERTIFICATES_ACME_EMAIL"`
	ACMEDomains     *[]string `envconfig:"TEMPO_OPERATOR_CERTIFICATES_ACME_DOMAINS"`

	PassTimeout     *time.Duration `envconfig:"TEMPO_OPERATOR_RECONCILE_PASS_TIMEOUT"`
	MinPassInterval *time.Duration `envconfig:"TEMPO_OPERATOR_RECONCILE_MIN_PASS_INTERVAL"`
	ResyncSchedule  *string        `envconfig:"TEMPO_OPERATOR_RECONCILE_RESYNC_SCHEDULE"`

	PeerBackend  *string `envconfig:"TEMPO_OPERATOR_PEER_BACKEND"`
	PeerLeader   *bool   `envconfig:"TEMPO_OPERATOR_PEER_LEADER"`
	RaftBindAddr *string `envconfig:"TEMPO_OPERATOR_PEER_RAFT_BIND_ADDR"`

	APIAddr  *string `envconfig:"TEMPO_OPERATOR_API_ADDR"`
	GRPCAddr *string `envconfig:"TEMPO_OPERATOR_API_GRPC_ADDR"`

	RelationsDir *string `envconfig:"TEMPO_OPERATOR_RELATIONS_DIR"`
	OutboxDir    *string `envconfig:"TEMPO_OPERATOR_RELATIONS_OUTBOX"`

	ReadyURL *string `envconfig:"TEMPO_OPERATOR_WORKLOAD_READY_URL"`

	LogLevel *string `envconfig:"TEMPO_OPERATOR_LOG_LEVEL"`
	LogJSON  *bool   `envconfig:"TEMPO_OPERATOR_LOG_JSON"`
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, then validates the result. An empty path starts from defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overlays TEMPO_OPERATOR_* environment variables onto cfg
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	err := envconfig.InitWithOptions(&env, envconfig.Options{
		AllOptional: true,
		LeaveNil:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	overrideString(&cfg.Unit.ID, env.UnitID)
	overrideString(&cfg.Unit.App, env.UnitApp)
	overrideString(&cfg.Unit.Model, env.UnitModel)
	overrideString(&cfg.Unit.Address, env.UnitAddress)

	overrideString(&cfg.Paths.Config, env.ConfigPath)
	overrideString(&cfg.Paths.State, env.StateDir)
	overrideString(&cfg.Paths.CertDir, env.CertDir)

	if env.Receivers != nil {
		cfg.Receivers.Enabled = *env.Receivers
	}

	overrideString(&cfg.Certificates.Issuer, env.Issuer)
	if env.RenewalFraction != nil {
		cfg.Certificates.RenewalFraction = *env.RenewalFraction
	}
	overrideString(&cfg.Certificates.ACME.Email, env.ACMEEmail)
	if env.ACMEDomains != nil {
		cfg.Certificates.ACME.Domains = *env.ACMEDomains
	}

	if env.PassTimeout != nil {
		cfg.Reconcile.PassTimeout = *env.PassTimeout
	}
	if env.MinPassInterval != nil {
		cfg.Reconcile.MinPassInterval = *env.MinPassInterval
	}
	overrideString(&cfg.Reconcile.ResyncSchedule, env.ResyncSchedule)

	overrideString(&cfg.Peer.Backend, env.PeerBackend)
	if env.PeerLeader != nil {
		cfg.Peer.Leader = *env.PeerLeader
	}
	overrideString(&cfg.Peer.Raft.BindAddr, env.RaftBindAddr)

	overrideString(&cfg.API.Addr, env.APIAddr)
	overrideString(&cfg.API.GRPCAddr, env.GRPCAddr)

	overrideString(&cfg.Relations.Dir, env.RelationsDir)
	overrideString(&cfg.Relations.Outbox, env.OutboxDir)

	overrideString(&cfg.Workload.ReadyURL, env.ReadyURL)

	overrideString(&cfg.Log.Level, env.LogLevel)
	if env.LogJSON != nil {
		cfg.Log.JSON = *env.LogJSON
	}

	return nil
}

func overrideString(field *string, v *string) {
	if v != nil && *v != "" {
		*field = *v
	}
}

// IsValidation reports whether err carries configuration field errors
func IsValidation(err error) bool {
	var verr ValidationError
	return errors.As(err, &verr)
}
