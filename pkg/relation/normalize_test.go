package relation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tempo-operator/pkg/types"
)

func testCertPEM(t *testing.T, notBefore, notAfter time.Time) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "tempo"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestNormalizeObjectStorage(t *testing.T) {
	valid := types.Databag{
		KeyBucket:         "traces",
		KeyEndpoint:       "https://s3.example",
		KeyCredentialsRef: "secret:s3",
	}

	tests := []struct {
		name     string
		bags     []Bag
		presence types.Presence
		code     types.ReasonCode
	}{
		{name: "no provider", bags: nil, presence: types.Absent},
		{name: "empty bag", bags: []Bag{{Source: "s3", Data: types.Databag{}}}, presence: types.Absent},
		{name: "valid", bags: []Bag{{Source: "s3", Data: valid}}, presence: types.Present},
		{
			name:     "missing bucket",
			bags:     []Bag{{Source: "s3", Data: types.Databag{KeyEndpoint: "https://s3.example", KeyCredentialsRef: "x"}}},
			presence: types.Invalid,
			code:     types.ReasonMissingField,
		},
		{
			name:     "bad endpoint",
			bags:     []Bag{{Source: "s3", Data: types.Databag{KeyBucket: "b", KeyEndpoint: "s3.example", KeyCredentialsRef: "x"}}},
			presence: types.Invalid,
			code:     types.ReasonMalformed,
		},
		{
			name:     "two providers",
			bags:     []Bag{{Source: "minio", Data: valid}, {Source: "s3", Data: valid}},
			presence: types.Invalid,
			code:     types.ReasonTooManyProviders,
		},
		{
			name:     "unparseable file",
			bags:     []Bag{{Source: "s3", Data: types.Databag{KeyParseError: "parse s3.yaml: bad"}}},
			presence: types.Invalid,
			code:     types.ReasonMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NormalizeObjectStorage(tt.bags)
			assert.Equal(t, tt.presence, state.Presence)
			if tt.presence == types.Invalid {
				assert.Equal(t, tt.code, state.Reason.Code)
			}
		})
	}

	state := NormalizeObjectStorage([]Bag{{Source: "s3", Data: valid}})
	assert.Equal(t, "traces", state.Payload.Bucket)
	assert.Equal(t, "https://s3.example", state.Payload.Endpoint)
}

func TestNormalizeIngress(t *testing.T) {
	tests := []struct {
		name     string
		data     types.Databag
		presence types.Presence
		scheme   string
	}{
		{name: "host only", data: types.Databag{KeyExternalHost: "tempo.example.com"}, presence: types.Present, scheme: "http"},
		{name: "https", data: types.Databag{KeyExternalHost: "tempo.example.com", KeyScheme: "https"}, presence: types.Present, scheme: "https"},
		{name: "url instead of host", data: types.Databag{KeyExternalHost: "tempo.example.com/path"}, presence: types.Invalid},
		{name: "bad scheme", data: types.Databag{KeyExternalHost: "tempo.example.com", KeyScheme: "ftp"}, presence: types.Invalid},
		{name: "missing host", data: types.Databag{KeyScheme: "http"}, presence: types.Invalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NormalizeIngress([]Bag{{Source: "traefik", Data: tt.data}})
			assert.Equal(t, tt.presence, state.Presence)
			if tt.presence == types.Present {
				assert.Equal(t, tt.scheme, state.Payload.Scheme)
			}
		})
	}
}

func TestNormalizeCertificates(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	good := testCertPEM(t, now.Add(-time.Hour), now.Add(30*24*time.Hour))
	expired := testCertPEM(t, now.Add(-48*time.Hour), now.Add(-time.Hour))

	state := NormalizeCertificates([]Bag{{Source: "ca", Data: types.Databag{
		KeyChain: good, KeyPrivateKeyRef: "file:tls.key", KeyCA: good,
	}}}, now)
	require.Equal(t, types.Present, state.Presence)
	assert.Equal(t, now.Add(30*24*time.Hour).Truncate(time.Second), state.Payload.NotAfter)
	assert.Equal(t, "file:tls.key", state.Payload.PrivateKeyRef)

	state = NormalizeCertificates([]Bag{{Source: "ca", Data: types.Databag{
		KeyChain: expired, KeyPrivateKeyRef: "file:tls.key",
	}}}, now)
	assert.Equal(t, types.Invalid, state.Presence)
	assert.Equal(t, types.ReasonExpired, state.Reason.Code)

	state = NormalizeCertificates([]Bag{{Source: "ca", Data: types.Databag{
		KeyChain: "not a certificate", KeyPrivateKeyRef: "file:tls.key",
	}}}, now)
	assert.Equal(t, types.Invalid, state.Presence)
	assert.Equal(t, types.ReasonMalformed, state.Reason.Code)

	state = NormalizeCertificates([]Bag{{Source: "ca", Data: types.Databag{KeyChain: good}}}, now)
	assert.Equal(t, types.ReasonMissingField, state.Reason.Code)
	state = NormalizeCertificates([]Bag{{Source: "ca", Data: types.Databag{}}}, now)
	assert.Equal(t, types.Absent, state.Presence)
	assert.True(t, state.Related, "related provider without data")

	state = NormalizeCertificates(nil, now)
	assert.Equal(t, types.Absent, state.Presence)
	assert.False(t, state.Related)
}

func TestNormalizeLogging(t *testing.T) {
	state := NormalizeLogging([]Bag{
		{Source: "loki-b", Data: types.Databag{KeyEndpoint: "http://loki-b:3100/loki/api/v1/push"}},
		{Source: "loki-a", Data: types.Databag{KeyEndpoint: "http://loki-a:3100/loki/api/v1/push"}},
		{Source: "broken", Data: types.Databag{KeyEndpoint: "::"}},
	})
	require.Equal(t, types.Present, state.Presence)
	assert.Equal(t, []string{
		"http://loki-a:3100/loki/api/v1/push",
		"http://loki-b:3100/loki/api/v1/push",
	}, state.Payload.Endpoints)

	state = NormalizeLogging([]Bag{{Source: "broken", Data: types.Databag{KeyEndpoint: "::"}}})
	assert.Equal(t, types.Invalid, state.Presence)

	state = NormalizeLogging([]Bag{{Source: "loki", Data: types.Databag{}}})
	assert.Equal(t, types.Absent, state.Presence)
}

func TestNormalizeTracing(t *testing.T) {
	state := NormalizeTracing([]Bag{
		{Source: "app-b", Data: types.Databag{KeyReceivers: `["otlp-grpc","zipkin"]`}},
		{Source: "app-a", Data: types.Databag{KeyReceivers: `["otlp-grpc","jaeger-grpc"]`}},
		{Source: "app-c", Data: types.Databag{}},
	})
	require.Equal(t, types.Present, state.Presence)
	assert.Equal(t, []types.ProtocolKind{
		types.ProtocolJaegerGRPC, types.ProtocolOTLPGRPC, types.ProtocolZipkin,
	}, state.Payload.Requested)
	assert.Equal(t, []string{"app-a", "app-b", "app-c"}, state.Payload.Requirers)

	state = NormalizeTracing([]Bag{{Source: "app", Data: types.Databag{KeyReceivers: `["smoke-signal"]`}}})
	assert.Equal(t, types.Invalid, state.Presence)

	state = NormalizeTracing([]Bag{{Source: "app", Data: types.Databag{KeyReceivers: `{not json`}}})
	assert.Equal(t, types.Invalid, state.Presence)
	assert.Equal(t, types.ReasonMalformed, state.Reason.Code)
}

func TestNormalizePeers(t *testing.T) {
	state := NormalizePeers([]Bag{
		{Source: "tempo-1", Data: types.Databag{KeyUnit: "tempo/1", KeyAddress: "10.0.0.2", KeyConfigVersion: "4"}},
		{Source: "tempo-0", Data: types.Databag{KeyUnit: "tempo/0", KeyAddress: "10.0.0.1"}},
		{Source: "tempo-2", Data: types.Databag{}},
	})
	require.Equal(t, types.Present, state.Presence)
	require.Len(t, state.Payload.Units, 2)
	assert.Equal(t, "tempo/0", state.Payload.Units[0].ID)
	assert.Equal(t, uint64(4), state.Payload.Units[1].LastSeenVersion)

	state = NormalizePeers([]Bag{{Source: "tempo-1", Data: types.Databag{KeyAddress: "10.0.0.2", KeyConfigVersion: "four"}}})
	assert.Equal(t, types.Invalid, state.Presence)
}

func TestNormalizeAllNeverPanics(t *testing.T) {
	snap := Snapshot{}
	for _, kind := range types.RelationKinds {
		snap.Add(kind, Bag{Source: "a", Data: types.Databag{"garbage": "\x00\xff"}})
		snap.Add(kind, Bag{Source: "b", Data: nil})
	}

	assert.NotPanics(t, func() {
		states := NormalizeAll(snap, time.Now())
		assert.Equal(t, types.Invalid, states.ObjectStorage.Presence)
		assert.Equal(t, types.ReasonTooManyProviders, states.ObjectStorage.Reason.Code)
	})
}

func TestSafeRecoversPanic(t *testing.T) {
	state := safe(types.RelationIngress, func() types.RelationState[types.IngressPayload] {
		panic("boom")
	})
	assert.Equal(t, types.Invalid, state.Presence)
	assert.Equal(t, types.ReasonMalformed, state.Reason.Code)
	assert.Contains(t, state.Reason.Message, "boom")
}
