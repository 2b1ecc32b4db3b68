package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tempo-operator/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppliedState(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetAppliedState()
	assert.True(t, errors.Is(err, ErrNotFound))

	applied := &types.AppliedState{Hash: "abc", Version: 3, AppliedAt: time.Unix(100, 0).UTC()}
	require.NoError(t, store.SaveAppliedState(applied))

	got, err := store.GetAppliedState()
	require.NoError(t, err)
	assert.Equal(t, applied, got)
}

func TestPendingRestart(t *testing.T) {
	store := newTestStore(t)

	pending, err := store.GetPendingRestart()
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, store.SetPendingRestart("abc"))
	pending, err = store.GetPendingRestart()
	require.NoError(t, err)
	assert.Equal(t, "abc", pending)

	require.NoError(t, store.SetPendingRestart(""))
	pending, err = store.GetPendingRestart()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRoutes(t *testing.T) {
	store := newTestStore(t)

	routes := []*types.Route{
		{Name: "tempo-otlp-grpc", Protocol: types.ProtocolOTLPGRPC, Transport: types.TransportGRPC, Port: 4317, Path: "/"},
		{Name: "tempo-zipkin", Protocol: types.ProtocolZipkin, Transport: types.TransportHTTP, Port: 9411, Path: "/api/v2/spans"},
	}
	for _, r := range routes {
		require.NoError(t, store.SaveRoute(r))
	}

	list, err := store.ListRoutes()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	got, err := store.GetRoute("tempo-zipkin")
	require.NoError(t, err)
	assert.Equal(t, 9411, got.Port)

	require.NoError(t, store.DeleteRoute("tempo-zipkin"))
	_, err = store.GetRoute("tempo-zipkin")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err = store.ListRoutes()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCertificates(t *testing.T) {
	store := newTestStore(t)

	cert := &types.CertificatePayload{
		ChainPEM:      "-----BEGIN CERTIFICATE-----",
		PrivateKeyRef: "file:tls.key",
		NotBefore:     time.Unix(0, 0).UTC(),
		NotAfter:      time.Unix(1000, 0).UTC(),
	}
	require.NoError(t, store.SaveCertificate("retained", cert))

	got, err := store.GetCertificate("retained")
	require.NoError(t, err)
	assert.Equal(t, cert, got)

	require.NoError(t, store.DeleteCertificate("retained"))
	_, err = store.GetCertificate("retained")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPeerSnapshotSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)

	snap := &types.PeerSnapshot{Leader: "tempo/0", ConfigVersion: 7, ConfigHash: "h"}
	require.NoError(t, store.SavePeerSnapshot(snap))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetPeerSnapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.ConfigVersion)
	assert.Equal(t, "tempo/0", got.Leader)
}
