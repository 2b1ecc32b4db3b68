package synth

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tempo-operator/pkg/config"
	"github.com/cuemby/tempo-operator/pkg/types"
)

var presences = []types.Presence{types.Absent, types.Invalid, types.Present}

func testCert() types.CertificatePayload {
	return types.CertificatePayload{
		ChainPEM:      "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n",
		PrivateKeyRef: "file:tls.key",
		CABundlePEM:   "-----BEGIN CERTIFICATE-----\nMIIC\n-----END CERTIFICATE-----\n",
		NotBefore:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func pick[P any](p types.Presence, payload P) types.RelationState[P] {
	switch p {
	case types.Present:
		return types.PresentState(payload)
	case types.Invalid:
		return types.InvalidState[P](types.ReasonMalformed, "test")
	default:
		return types.AbsentState[P]()
	}
}

// statesFor builds relation states in types.RelationKinds order
func statesFor(ps [8]types.Presence) types.AllRelationStates {
	return types.AllRelationStates{
		ObjectStorage: pick(ps[0], types.ObjectStoragePayload{Bucket: "traces", Endpoint: "https://s3.example", CredentialsRef: "secret:s3"}),
		Ingress:       pick(ps[1], types.IngressPayload{ExternalHost: "tempo.example.com", Scheme: "https"}),
		Certificates:  pick(ps[2], testCert()),
		Logging:       pick(ps[3], types.LoggingPayload{Endpoints: []string{"http://loki:3100/loki/api/v1/push"}}),
		Metrics:       pick(ps[4], types.MetricsPayload{Consumers: []string{"prometheus"}}),
		Dashboard:     pick(ps[5], types.DashboardPayload{Consumers: []string{"grafana"}}),
		Tracing:       pick(ps[6], types.TracingPayload{Requested: []types.ProtocolKind{types.ProtocolJaegerGRPC}, Requirers: []string{"app"}}),
		Peers: pick(ps[7], types.PeerView{Units: []types.PeerUnit{
			{ID: "tempo/1", Address: "10.0.0.2"},
			{ID: "tempo/0", Address: "10.0.0.1"},
		}}),
	}
}

func assertInvariants(t *testing.T, states types.AllRelationStates, wc types.WorkloadConfig) {
	t.Helper()

	require.NoError(t, Check(wc))

	// storage
	if states.ObjectStorage.IsPresent() {
		assert.Equal(t, types.StorageS3, wc.Storage.Kind)
	} else {
		assert.Equal(t, types.StorageLocal, wc.Storage.Kind)
	}

	// tls
	assert.Equal(t, states.Certificates.IsPresent(), wc.TLS.Enabled)
	if !wc.TLS.Enabled {
		for _, r := range wc.Receivers {
			assert.False(t, r.TLSRequired, "%s requires tls with tls disabled", r.Protocol)
		}
	}

	// routes
	assert.Equal(t, states.Ingress.IsPresent() && len(wc.Receivers) > 0, wc.RoutesEligible)
}

func TestSynthesizeAllPresenceCombinations(t *testing.T) {
	cfg := config.Default()

	total := 1
	for range types.RelationKinds {
		total *= len(presences)
	}
	require.Equal(t, 6561, total)

	for n := 0; n < total; n++ {
		var ps [8]types.Presence
		rest := n
		for i := range ps {
			ps[i] = presences[rest%3]
			rest /= 3
		}

		states := statesFor(ps)
		var wc types.WorkloadConfig
		require.NotPanics(t, func() { wc = Synthesize(states, cfg) }, "combination %v", ps)
		assertInvariants(t, states, wc)
	}
}

func TestSynthesizeDeterministic(t *testing.T) {
	cfg := config.Default()
	states := statesFor([8]types.Presence{
		types.Present, types.Present, types.Present, types.Present,
		types.Present, types.Present, types.Present, types.Present,
	})

	a := Synthesize(states, cfg)
	b := Synthesize(states, cfg)

	assert.True(t, bytes.Equal(Canonical(a), Canonical(b)))
	assert.Equal(t, Hash(a), Hash(b))

	ra, err := Render(a, TLSFilesIn("/etc/tempo/tls"))
	require.NoError(t, err)
	rb, err := Render(b, TLSFilesIn("/etc/tempo/tls"))
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestSynthesizeRandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	all := types.SortedProtocols()

	for i := 0; i < 2000; i++ {
		cfg := config.Default()
		cfg.Receivers.Enabled = nil
		for _, p := range all {
			if rng.Intn(2) == 0 {
				cfg.Receivers.Enabled = append(cfg.Receivers.Enabled, string(p))
			}
			if rng.Intn(5) == 0 {
				cfg.Receivers.RequireTLS = append(cfg.Receivers.RequireTLS, string(p))
			}
		}
		cfg.Receivers.AllowPlaintextWithTLS = rng.Intn(2) == 0

		var ps [8]types.Presence
		for j := range ps {
			ps[j] = presences[rng.Intn(3)]
		}
		states := statesFor(ps)

		wc := Synthesize(states, cfg)
		assertInvariants(t, states, wc)
		assert.Equal(t, Hash(wc), Hash(Synthesize(states, cfg)))
	}
}

func TestScenarioA_NoOptionalRelations(t *testing.T) {
	cfg := config.Default()
	wc := Synthesize(types.AllRelationStates{}, cfg)

	assert.Equal(t, types.StorageLocal, wc.Storage.Kind)
	assert.Equal(t, cfg.Paths.Traces, wc.Storage.LocalPath)
	assert.Nil(t, wc.Storage.S3)
	assert.False(t, wc.TLS.Enabled)
	assert.False(t, wc.RoutesEligible)
	assert.Empty(t, wc.PeerMembers)

	var got []types.ProtocolKind
	for _, r := range wc.Receivers {
		got = append(got, r.Protocol)
		assert.False(t, r.TLSRequired)
	}
	want := append([]types.ProtocolKind(nil), types.DefaultReceivers...)
	types.SortProtocols(want)
	assert.Equal(t, want, got)
}

func TestScenarioB_ObjectStoragePresent(t *testing.T) {
	cfg := config.Default()
	states := types.AllRelationStates{
		ObjectStorage: types.PresentState(types.ObjectStoragePayload{
			Bucket:         "traces",
			Endpoint:       "https://s3.example",
			CredentialsRef: "secret:s3",
		}),
	}

	wc := Synthesize(states, cfg)
	require.Equal(t, types.StorageS3, wc.Storage.Kind)
	assert.Equal(t, "traces", wc.Storage.S3.Bucket)
	assert.Equal(t, "https://s3.example", wc.Storage.S3.Endpoint)
	assert.Empty(t, wc.Storage.LocalPath)

	rendered, err := Render(wc, TLSFilesIn("/etc/tempo/tls"))
	require.NoError(t, err)
	assert.Contains(t, string(rendered), "backend: s3")
	assert.Contains(t, string(rendered), "endpoint: s3.example")
	assert.NotContains(t, string(rendered), cfg.Paths.Traces)
}

func TestScenarioC_CertificatesPresent(t *testing.T) {
	cfg := config.Default()
	states := types.AllRelationStates{Certificates: types.PresentState(testCert())}

	wc := Synthesize(states, cfg)
	require.True(t, wc.TLS.Enabled)
	require.NotNil(t, wc.TLS.Certificate)
	require.NotEmpty(t, wc.Receivers)
	for _, r := range wc.Receivers {
		assert.True(t, r.TLSRequired, "%s", r.Protocol)
	}

	rendered, err := Render(wc, TLSFilesIn("/etc/tempo/tls"))
	require.NoError(t, err)
	assert.Contains(t, string(rendered), "cert_file: /etc/tempo/tls/tls.crt")
	assert.Contains(t, string(rendered), "http_tls_config")
}

func TestInvalidNeverTreatedAsPresent(t *testing.T) {
	cfg := config.Default()
	states := types.AllRelationStates{
		ObjectStorage: types.RelationState[types.ObjectStoragePayload]{
			Presence: types.Invalid,
			Payload:  types.ObjectStoragePayload{Bucket: "leaked"},
		},
		Certificates: types.RelationState[types.CertificatePayload]{
			Presence: types.Invalid,
			Payload:  testCert(),
		},
		Ingress: types.InvalidState[types.IngressPayload](types.ReasonTooManyProviders, "a, b"),
	}

	wc := Synthesize(states, cfg)
	absent := Synthesize(types.AllRelationStates{}, cfg)
	assert.Equal(t, Hash(absent), Hash(wc))
}

func TestReceivers(t *testing.T) {
	compact := types.PresentState(types.TracingPayload{Requested: []types.ProtocolKind{types.ProtocolJaegerThriftCompact}})

	tests := []struct {
		name    string
		tracing types.RelationState[types.TracingPayload]
		tls     bool
		mutate  func(*config.ReceiversConfig)
		want    map[types.ProtocolKind]bool
	}{
		{
			name:    "tracing request adds receiver",
			tracing: compact,
			mutate:  func(c *config.ReceiversConfig) { c.Enabled = []string{"otlp-grpc"} },
			want:    map[types.ProtocolKind]bool{types.ProtocolOTLPGRPC: false, types.ProtocolJaegerThriftCompact: false},
		},
		{
			name:    "tls drops receivers that cannot do tls",
			tracing: compact,
			tls:     true,
			mutate:  func(c *config.ReceiversConfig) { c.Enabled = []string{"otlp-grpc"} },
			want:    map[types.ProtocolKind]bool{types.ProtocolOTLPGRPC: true},
		},
		{
			name:    "plaintext allowed alongside tls",
			tracing: compact,
			tls:     true,
			mutate: func(c *config.ReceiversConfig) {
				c.Enabled = []string{"otlp-grpc"}
				c.AllowPlaintextWithTLS = true
			},
			want: map[types.ProtocolKind]bool{types.ProtocolOTLPGRPC: true, types.ProtocolJaegerThriftCompact: false},
		},
		{
			name: "tls-only receiver disabled without tls",
			mutate: func(c *config.ReceiversConfig) {
				c.Enabled = []string{"otlp-grpc", "zipkin"}
				c.RequireTLS = []string{"zipkin"}
			},
			want: map[types.ProtocolKind]bool{types.ProtocolOTLPGRPC: false},
		},
		{
			name:    "invalid tracing ignored",
			tracing: types.InvalidState[types.TracingPayload](types.ReasonMalformed, "x"),
			mutate:  func(c *config.ReceiversConfig) { c.Enabled = []string{"zipkin"} },
			want:    map[types.ProtocolKind]bool{types.ProtocolZipkin: false},
		},
		{
			name:   "unknown configured protocol dropped",
			mutate: func(c *config.ReceiversConfig) { c.Enabled = []string{"zipkin", "smoke-signal"} },
			want:   map[types.ProtocolKind]bool{types.ProtocolZipkin: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default().Receivers
			tt.mutate(&cfg)

			got := make(map[types.ProtocolKind]bool)
			for _, r := range Receivers(tt.tracing, tt.tls, &cfg) {
				got[r.Protocol] = r.TLSRequired
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReceiverPortOverride(t *testing.T) {
	cfg := config.Default().Receivers
	cfg.Ports = map[string]int{"zipkin": 19411}
	cfg.HTTPPort = 3300

	ports := make(map[types.ProtocolKind]int)
	for _, r := range Receivers(types.AbsentState[types.TracingPayload](), false, &cfg) {
		ports[r.Protocol] = r.Port
	}
	assert.Equal(t, 19411, ports[types.ProtocolZipkin])
	assert.Equal(t, 3300, ports[types.ProtocolTempoHTTP])
	assert.Equal(t, 4317, ports[types.ProtocolOTLPGRPC])
}

func TestContentHashIgnoresVersion(t *testing.T) {
	wc := Synthesize(types.AllRelationStates{}, config.Default())
	bumped := wc
	bumped.Version = 9

	assert.Equal(t, ContentHash(wc), ContentHash(bumped))
	assert.NotEqual(t, Hash(wc), Hash(bumped))
}
