package peer

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tempo-operator/pkg/storage"
	"github.com/cuemby/tempo-operator/pkg/types"
)

func newTestFSM(t *testing.T) *FSM {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewFSM(store)
}

func logEntry(t *testing.T, op string, v any) *raft.Log {
	t.Helper()
	cmd, err := newCommand(op, v)
	require.NoError(t, err)
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	return &raft.Log{Data: data}
}

func TestFSMApply(t *testing.T) {
	fsm := newTestFSM(t)

	assert.Nil(t, fsm.Apply(logEntry(t, opSetLeader, "tempo/0")))
	assert.Nil(t, fsm.Apply(logEntry(t, opPublishConfig, configRecord{Version: 2, Hash: "h2"})))
	assert.Nil(t, fsm.Apply(logEntry(t, opPublishKeys, map[string]string{"tls-1": "K"})))

	state, err := fsm.State()
	require.NoError(t, err)
	assert.Equal(t, "tempo/0", state.Leader)
	assert.Equal(t, uint64(2), state.ConfigVersion)
	assert.Equal(t, "h2", state.ConfigHash)
	assert.Equal(t, "K", state.Keys["tls-1"])
	assert.False(t, state.UpdatedAt.IsZero())
}

func TestFSMRejectsVersionRegression(t *testing.T) {
	fsm := newTestFSM(t)

	assert.Nil(t, fsm.Apply(logEntry(t, opPublishConfig, configRecord{Version: 5, Hash: "h5"})))
	resp := fsm.Apply(logEntry(t, opPublishConfig, configRecord{Version: 4, Hash: "h4"}))
	assert.Error(t, resp.(error))

	resp = fsm.Apply(&raft.Log{Data: []byte(`{"op":"drop_everything"}`)})
	assert.Error(t, resp.(error))

	state, err := fsm.State()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), state.ConfigVersion)
}

type bufferSink struct {
	bytes.Buffer
	cancelled bool
}

func (s *bufferSink) ID() string    { return "test" }
func (s *bufferSink) Close() error  { return nil }
func (s *bufferSink) Cancel() error { s.cancelled = true; return nil }

func TestFSMSnapshotRestore(t *testing.T) {
	source := newTestFSM(t)
	require.Nil(t, source.Apply(logEntry(t, opSetLeader, "tempo/1")))
	require.Nil(t, source.Apply(logEntry(t, opPublishCertificate, &types.CertificatePayload{ChainPEM: "chain"})))

	snapshot, err := source.Snapshot()
	require.NoError(t, err)

	sink := &bufferSink{}
	require.NoError(t, snapshot.Persist(sink))
	assert.False(t, sink.cancelled)

	target := newTestFSM(t)
	require.NoError(t, target.Restore(io.NopCloser(&sink.Buffer)))

	state, err := target.State()
	require.NoError(t, err)
	assert.Equal(t, "tempo/1", state.Leader)
	require.NotNil(t, state.Certificate)
	assert.Equal(t, "chain", state.Certificate.ChainPEM)
}
