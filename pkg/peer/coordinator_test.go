package peer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tempo-operator/pkg/config"
	"github.com/cuemby/tempo-operator/pkg/synth"
	"github.com/cuemby/tempo-operator/pkg/types"
)

func absentStates() types.AllRelationStates {
	return types.AllRelationStates{
		ObjectStorage: types.AbsentState[types.ObjectStoragePayload](),
		Ingress:       types.AbsentState[types.IngressPayload](),
		Certificates:  types.AbsentState[types.CertificatePayload](),
		Logging:       types.AbsentState[types.LoggingPayload](),
		Metrics:       types.AbsentState[types.MetricsPayload](),
		Dashboard:     types.AbsentState[types.DashboardPayload](),
		Tracing:       types.AbsentState[types.TracingPayload](),
		Peers:         types.AbsentState[types.PeerView](),
	}
}

type unit struct {
	id      string
	elector *StaticElector
	coord   *Coordinator
}

func newCluster(store Store, n int) []*unit {
	units := make([]*unit, n)
	for i := range units {
		id := "tempo/" + string(rune('0'+i))
		e := NewStaticElector(i == 0)
		units[i] = &unit{id: id, elector: e, coord: NewCoordinator(id, e, store)}
	}
	return units
}

func TestScenarioE_VersionConvergesAcrossUnits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	units := newCluster(store, 3)
	cfg := config.Default()

	wc := synth.Synthesize(absentStates(), cfg)

	// Leader first: publishes version 1
	leaderCfg, err := units[0].coord.Assign(ctx, wc)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), leaderCfg.Version)

	for _, u := range units[1:] {
		got, err := u.coord.Assign(ctx, wc)
		require.NoError(t, err)
		assert.Equal(t, leaderCfg.Version, got.Version, u.id)
		assert.Equal(t, synth.Hash(leaderCfg), synth.Hash(got), u.id)
	}

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tempo/0", snap.Leader)
	assert.Equal(t, synth.ContentHash(wc), snap.ConfigHash)

	// Unchanged content does not bump the version
	again, err := units[0].coord.Assign(ctx, wc)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), again.Version)

	// Changed content bumps exactly once
	states := absentStates()
	states.ObjectStorage = types.PresentState(types.ObjectStoragePayload{
		Bucket: "traces", Endpoint: "http://minio:9000", CredentialsRef: "secret:s3",
	})
	changed := synth.Synthesize(states, cfg)

	next, err := units[0].coord.Assign(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next.Version)

	for _, u := range units[1:] {
		got, err := u.coord.Assign(ctx, changed)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), got.Version, u.id)
	}
}

func TestFollowersNeverWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	units := newCluster(store, 3)
	wc := synth.Synthesize(absentStates(), config.Default())

	for _, u := range units[1:] {
		_, err := u.coord.Assign(ctx, wc)
		require.NoError(t, err)
		require.NoError(t, u.coord.RecordApplied(ctx, types.AppliedState{Hash: "x", Version: 9}))
		require.NoError(t, u.coord.PublishUnits(ctx, []types.PeerUnit{{ID: u.id}}))
		assert.ErrorIs(t, u.coord.PublishCertificate(ctx, &types.CertificatePayload{ChainPEM: "c"}, nil), types.ErrNotLeader)
	}
	assert.Equal(t, 0, store.Writes())
}

func TestLeaderFailoverRepublishesIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	units := newCluster(store, 3)
	wc := synth.Synthesize(absentStates(), config.Default())

	_, err := units[0].coord.Assign(ctx, wc)
	require.NoError(t, err)

	units[0].elector.Set(false)
	units[1].elector.Set(true)

	got, err := units[1].coord.Assign(ctx, wc)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version, "same content keeps the version")

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tempo/1", snap.Leader)
	assert.Equal(t, uint64(1), snap.ConfigVersion)
}

// flippingElector reports leadership for a fixed number of checks
type flippingElector struct {
	remaining atomic.Int32
}

func (f *flippingElector) IsLeader() bool        { return f.remaining.Add(-1) >= 0 }
func (f *flippingElector) LeaderCh() <-chan bool { return nil }

func TestRevokedLeadershipStopsWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := &flippingElector{}
	// Assign checks once for the role and once before SetLeader
	e.remaining.Store(2)
	c := NewCoordinator("tempo/0", e, store)

	got, err := c.Assign(ctx, synth.Synthesize(absentStates(), config.Default()))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Version)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tempo/0", snap.Leader)
	assert.Equal(t, uint64(0), snap.ConfigVersion, "publication after revocation must not happen")
	assert.Equal(t, 1, store.Writes())
}

func TestPublishCertificateAndKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := NewCoordinator("tempo/0", NewStaticElector(true), store)

	cert := &types.CertificatePayload{ChainPEM: "chain", PrivateKeyRef: "file:tls-1"}
	require.NoError(t, c.PublishCertificate(ctx, cert, map[string]string{"tls-1": "KEY"}))

	snap, err := c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, cert, snap.Certificate)
	assert.Equal(t, "KEY", snap.Keys["tls-1"])

	writes := store.Writes()
	require.NoError(t, c.PublishKeys(ctx, map[string]string{"tls-1": "KEY"}))
	assert.Equal(t, writes, store.Writes(), "known keys are not republished")
}

func TestRecordAppliedOnLeader(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := NewCoordinator("tempo/0", NewStaticElector(true), store)

	applied := types.AppliedState{Hash: "abc", Version: 3, AppliedAt: time.Now().UTC()}
	require.NoError(t, c.RecordApplied(ctx, applied))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", snap.Applied.Hash)
	assert.Equal(t, uint64(3), snap.Applied.Version)
}

func TestWatchTriggersOnTransitions(t *testing.T) {
	e := NewStaticElector(false)
	c := NewCoordinator("tempo/0", e, NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reasons := make(chan string, 4)
	go c.Watch(ctx, func(reason string) { reasons <- reason })

	e.Set(true)
	select {
	case r := <-reasons:
		assert.Equal(t, "leader-elected", r)
	case <-time.After(2 * time.Second):
		t.Fatal("no trigger on leadership gain")
	}

	e.Set(false)
	select {
	case r := <-reasons:
		assert.Equal(t, "leader-lost", r)
	case <-time.After(2 * time.Second):
		t.Fatal("no trigger on leadership loss")
	}
}

type failingStore struct{ *MemoryStore }

func (failingStore) Snapshot(ctx context.Context) (*types.PeerSnapshot, error) {
	return nil, assert.AnError
}

func TestAssignWithUnreachableStorage(t *testing.T) {
	c := NewCoordinator("tempo/0", NewStaticElector(true), failingStore{NewMemoryStore()})

	_, err := c.Assign(context.Background(), synth.Synthesize(absentStates(), config.Default()))
	require.Error(t, err)
	assert.Equal(t, types.StatusWaiting, types.StatusFor(err).Level)
}
