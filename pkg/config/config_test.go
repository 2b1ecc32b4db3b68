package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultConfigPath, cfg.Paths.Config)
	assert.Equal(t, DefaultWALPath, cfg.Paths.WAL)
	assert.Equal(t, []string{"tempo-http", "otlp-grpc", "otlp-http", "zipkin"}, cfg.Receivers.Enabled)
	assert.InDelta(t, 2.0/3.0, cfg.Certificates.RenewalFraction, 1e-9)
	assert.Equal(t, "http://localhost:3200/ready", cfg.Workload.ReadyURL)
	assert.Equal(t, filepath.Join(DefaultStateDir, "raft"), cfg.Peer.Raft.DataDir)
	assert.NoError(t, Validate(cfg))
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
unit:
  id: tempo/2
  app: traces
receivers:
  enabled: [otlp-grpc, jaeger-thrift-compact]
  ports:
    otlp-grpc: 14317
certificates:
  issuer: self-signed
  retry_attempts: 5
reconcile:
  pass_timeout: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tempo/2", cfg.Unit.ID)
	assert.Equal(t, "traces", cfg.Unit.App)
	assert.Equal(t, []string{"otlp-grpc", "jaeger-thrift-compact"}, cfg.Receivers.Enabled)
	assert.Equal(t, 14317, cfg.Receivers.Ports["otlp-grpc"])
	assert.Equal(t, "self-signed", cfg.Certificates.Issuer)
	assert.Equal(t, uint(5), cfg.Certificates.RetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.PassTimeout)
	assert.Equal(t, DefaultResyncSchedule, cfg.Reconcile.ResyncSchedule)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TEMPO_OPERATOR_UNIT_ID", "tempo/7")
	t.Setenv("TEMPO_OPERATOR_PEER_LEADER", "true")
	t.Setenv("TEMPO_OPERATOR_RECONCILE_PASS_TIMEOUT", "45s")
	t.Setenv("TEMPO_OPERATOR_RECEIVERS_ENABLED", "otlp-http,zipkin")

	path := writeConfig(t, "unit:\n  id: tempo/1\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tempo/7", cfg.Unit.ID)
	assert.True(t, cfg.Peer.Leader)
	assert.Equal(t, 45*time.Second, cfg.Reconcile.PassTimeout)
	assert.Equal(t, []string{"otlp-http", "zipkin"}, cfg.Receivers.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "unknown receiver",
			mutate: func(c *Config) { c.Receivers.Enabled = []string{"carrier-pigeon"} },
			field:  "receivers.enabled",
		},
		{
			name:   "renewal fraction out of range",
			mutate: func(c *Config) { c.Certificates.RenewalFraction = 1.5 },
			field:  "certificates.renewal_fraction",
		},
		{
			name:   "unknown issuer",
			mutate: func(c *Config) { c.Certificates.Issuer = "vault" },
			field:  "certificates.issuer",
		},
		{
			name: "acme without email",
			mutate: func(c *Config) {
				c.Certificates.Issuer = "acme"
				c.Certificates.ACME.Domains = []string{"t.example.com"}
			},
			field: "certificates.acme.email",
		},
		{
			name:   "bad resync schedule",
			mutate: func(c *Config) { c.Reconcile.ResyncSchedule = "every now and then" },
			field:  "reconcile.resync_schedule",
		},
		{
			name:   "unknown peer backend",
			mutate: func(c *Config) { c.Peer.Backend = "gossip" },
			field:  "peer.backend",
		},
		{
			name: "duplicate receiver port",
			mutate: func(c *Config) {
				c.Receivers.Ports = map[string]int{"zipkin": 9000, "otlp-http": 9000}
			},
			field: "receivers.ports.",
		},
		{
			name:   "retry delays inverted",
			mutate: func(c *Config) { c.Certificates.RetryMaxDelay = time.Millisecond },
			field:  "certificates.retry_max_delay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			verr := err.(ValidationError)
			found := false
			for _, fe := range verr.Errors {
				if len(fe.Field) >= len(tt.field) && fe.Field[:len(tt.field)] == tt.field {
					found = true
				}
			}
			assert.True(t, found, "expected error on %s, got %v", tt.field, verr.Errors)
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	assert.Equal(t, "configuration validation failed: a: bad", single.Error())

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	assert.Contains(t, multi.Error(), "2 errors")
	assert.Contains(t, multi.Error(), "b: worse")
}
