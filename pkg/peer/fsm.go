package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/cuemby/tempo-operator/pkg/storage"
	"github.com/cuemby/tempo-operator/pkg/types"
)

// FSM implements the raft finite state machine for shared peer state.
// Committed commands are applied to the snapshot persisted in bbolt.
type FSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewFSM creates a new FSM backed by store
func NewFSM(store storage.Store) *FSM {
	return &FSM{store: store}
}

// Apply applies a raft log entry to the FSM.
// This is called by raft when a log entry is committed.
func (f *FSM) Apply(entry *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(entry.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	snap, err := f.load()
	if err != nil {
		return err
	}
	if err := applyCommand(snap, cmd); err != nil {
		return err
	}
	return f.store.SavePeerSnapshot(snap)
}

// State returns a copy of the current shared state
func (f *FSM) State() (*types.PeerSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.load()
}

func (f *FSM) load() (*types.PeerSnapshot, error) {
	snap, err := f.store.GetPeerSnapshot()
	if errors.Is(err, storage.ErrNotFound) {
		return &types.PeerSnapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load peer snapshot: %w", err)
	}
	return snap, nil
}

// Snapshot creates a point-in-time snapshot of the FSM.
// This is called periodically by raft to compact the log.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	snap, err := f.State()
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{state: snap}, nil
}

// Restore restores the FSM from a snapshot.
// This is called when a unit restarts or falls too far behind the leader.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap types.PeerSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store.SavePeerSnapshot(&snap)
}

type fsmSnapshot struct {
	state *types.PeerSnapshot
}

// Persist writes the snapshot to the given SnapshotSink
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.state); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}

	return err
}

func (s *fsmSnapshot) Release() {}
