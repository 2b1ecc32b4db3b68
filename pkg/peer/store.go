package peer

import (
	"context"
	"sync"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// Store is the shared peer storage. Writes are only issued by the
// Coordinator after it has confirmed leadership.
type Store interface {
	// Snapshot returns a copy of the current shared state
	Snapshot(ctx context.Context) (*types.PeerSnapshot, error)
	SetLeader(ctx context.Context, unitID string) error
	PublishConfig(ctx context.Context, version uint64, hash string) error
	RecordApplied(ctx context.Context, applied types.AppliedState) error
	PublishCertificate(ctx context.Context, cert *types.CertificatePayload) error
	PublishKeys(ctx context.Context, keys map[string]string) error
	PublishUnits(ctx context.Context, units []types.PeerUnit) error
}

// MemoryStore keeps shared peer state in process memory. It backs single
// unit deployments and tests where several units share one instance.
type MemoryStore struct {
	mu     sync.RWMutex
	snap   types.PeerSnapshot
	writes int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Snapshot returns a copy of the shared state
func (m *MemoryStore) Snapshot(ctx context.Context) (*types.PeerSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone(), nil
}

// Writes returns the number of writes applied
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MemoryStore) apply(op string, v any) error {
	cmd, err := newCommand(op, v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.snap.Clone()
	if err := applyCommand(next, cmd); err != nil {
		return err
	}
	m.snap = *next
	m.writes++
	return nil
}

func (m *MemoryStore) SetLeader(ctx context.Context, unitID string) error {
	return m.apply(opSetLeader, unitID)
}

func (m *MemoryStore) PublishConfig(ctx context.Context, version uint64, hash string) error {
	return m.apply(opPublishConfig, configRecord{Version: version, Hash: hash})
}

func (m *MemoryStore) RecordApplied(ctx context.Context, applied types.AppliedState) error {
	return m.apply(opRecordApplied, applied)
}

func (m *MemoryStore) PublishCertificate(ctx context.Context, cert *types.CertificatePayload) error {
	return m.apply(opPublishCertificate, cert)
}

func (m *MemoryStore) PublishKeys(ctx context.Context, keys map[string]string) error {
	return m.apply(opPublishKeys, keys)
}

func (m *MemoryStore) PublishUnits(ctx context.Context, units []types.PeerUnit) error {
	return m.apply(opPublishUnits, units)
}
