package certs

import (
	"context"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tempo-operator/pkg/relation"
	"github.com/cuemby/tempo-operator/pkg/storage"
	"github.com/cuemby/tempo-operator/pkg/types"
)

func testRequest(t *testing.T, keys *KeyStore) Request {
	t.Helper()
	signer, keyPEM, err := GenerateKey()
	require.NoError(t, err)
	ref, err := keys.Put("tls-test", keyPEM)
	require.NoError(t, err)
	return Request{CommonName: "tempo", DNSNames: []string{"tempo.example.com"}, Key: signer, KeyRef: ref}
}

func TestSelfSignedIssuer(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	keys := NewKeyStore(t.TempDir())

	issuer := NewSelfSignedIssuer(store, keys, 24*time.Hour)
	assert.Nil(t, issuer.RootCertificate())

	cert, err := issuer.Issue(context.Background(), testRequest(t, keys))
	require.NoError(t, err)
	assert.Equal(t, "file:tls-test", cert.PrivateKeyRef)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), cert.NotAfter, time.Minute)

	leaf, err := relation.ParseLeaf(cert.ChainPEM)
	require.NoError(t, err)
	root, err := relation.ParseLeaf(cert.CABundlePEM)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(root)
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:     pool,
		DNSName:   "tempo.example.com",
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	assert.NoError(t, err)

	// A second issuer over the same storage reuses the root
	again := NewSelfSignedIssuer(store, keys, 24*time.Hour)
	cert2, err := again.Issue(context.Background(), testRequest(t, keys))
	require.NoError(t, err)
	assert.Equal(t, cert.CABundlePEM, cert2.CABundlePEM)
}

func TestRelationIssuerPublishesCSR(t *testing.T) {
	out := relation.NewOutbox(t.TempDir())
	keys := NewKeyStore(t.TempDir())
	issuer := NewRelationIssuer(out, "tempo")

	cert, err := issuer.Issue(context.Background(), testRequest(t, keys))
	assert.ErrorIs(t, err, ErrIssuancePending)
	assert.Nil(t, cert)

	bag, err := out.Read(types.RelationCertificates, "tempo")
	require.NoError(t, err)
	assert.Contains(t, bag["csr"], "BEGIN CERTIFICATE REQUEST")
	assert.Equal(t, "tempo", bag["common-name"])
	assert.Equal(t, `["tempo.example.com"]`, bag["sans"])
	assert.Equal(t, "file:tls-test", bag["private-key-ref"])
}

func TestHTTP01ProviderServesChallenges(t *testing.T) {
	p := NewHTTP01Provider()
	require.NoError(t, p.Present("tempo.example.com", "tok", "tok.auth"))

	req := httptest.NewRequest(http.MethodGet, "http://tempo.example.com/.well-known/acme-challenge/tok", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok.auth", rec.Body.String())

	require.NoError(t, p.CleanUp("tempo.example.com", "tok", "tok.auth"))
	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestACMEIssuerRespectsContext(t *testing.T) {
	issuer := NewACMEIssuer("ops@example.com", "http://127.0.0.1:1/directory", []string{"tempo.example.com"}, NewHTTP01Provider())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := issuer.Issue(ctx, Request{})
	assert.Error(t, err)
}
