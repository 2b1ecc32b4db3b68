package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	"github.com/cuemby/tempo-operator/pkg/config"
	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/storage"
	"github.com/cuemby/tempo-operator/pkg/types"
)

// RaftStore replicates shared peer state through a raft cluster of the
// units. Writes go through the raft log; reads come from the local FSM.
type RaftStore struct {
	unitID       string
	applyTimeout time.Duration

	raft   *raft.Raft
	fsm    *FSM
	logger zerolog.Logger
}

// NewRaftStore starts the local raft node. The cluster is bootstrapped
// from the configured server list on first start; an existing raft state
// in the data directory is reused.
func NewRaftStore(unitID string, cfg config.RaftConfig, fsmStore storage.Store) (*RaftStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create raft data directory: %w", err)
	}

	rc := raft.DefaultConfig()
	rc.LocalID = raft.ServerID(unitID)

	// Units share a LAN, so fail over faster than the WAN oriented defaults
	rc.HeartbeatTimeout = 500 * time.Millisecond
	rc.ElectionTimeout = 500 * time.Millisecond
	rc.CommitTimeout = 50 * time.Millisecond
	rc.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bind address: %w", err)
	}
	var advertise net.Addr
	if addr.Port != 0 {
		advertise = addr
	}

	transport, err := raft.NewTCPTransport(cfg.BindAddr, advertise, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create stable store: %w", err)
	}

	hasState, err := raft.HasExistingState(logStore, stableStore, snapshotStore)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect raft state: %w", err)
	}

	fsm := NewFSM(fsmStore)
	r, err := raft.NewRaft(rc, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft: %w", err)
	}

	s := &RaftStore{
		unitID:       unitID,
		applyTimeout: cfg.ApplyTimeout,
		raft:         r,
		fsm:          fsm,
		logger:       log.WithComponent("peer-raft"),
	}
	if s.applyTimeout <= 0 {
		s.applyTimeout = config.DefaultRaftApplyTimeout
	}

	if !hasState {
		servers := bootstrapServers(rc.LocalID, transport.LocalAddr(), cfg.Servers)
		if err := r.BootstrapCluster(raft.Configuration{Servers: servers}).Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			return nil, fmt.Errorf("failed to bootstrap cluster: %w", err)
		}
		s.logger.Info().Int("servers", len(servers)).Msg("bootstrapped raft cluster")
	}

	return s, nil
}

func bootstrapServers(localID raft.ServerID, localAddr raft.ServerAddress, configured []config.RaftServer) []raft.Server {
	servers := make([]raft.Server, 0, len(configured)+1)
	self := false
	for _, srv := range configured {
		id := raft.ServerID(srv.ID)
		address := raft.ServerAddress(srv.Address)
		if id == localID {
			self = true
			address = localAddr
		}
		servers = append(servers, raft.Server{ID: id, Address: address})
	}
	if !self {
		servers = append(servers, raft.Server{ID: localID, Address: localAddr})
	}
	return servers
}

// Elector returns the leadership signal of the local raft node
func (s *RaftStore) Elector() *RaftElector {
	return NewRaftElector(s.raft)
}

// LeaderAddr returns the address of the current raft leader
func (s *RaftStore) LeaderAddr() string {
	addr, _ := s.raft.LeaderWithID()
	return string(addr)
}

// Stats returns raft statistics
func (s *RaftStore) Stats() map[string]interface{} {
	return map[string]interface{}{
		"state":          s.raft.State().String(),
		"last_log_index": s.raft.LastIndex(),
		"applied_index":  s.raft.AppliedIndex(),
		"leader":         s.LeaderAddr(),
	}
}

// Snapshot returns the locally replicated state. On followers it may lag
// the leader by the replication delay.
func (s *RaftStore) Snapshot(ctx context.Context) (*types.PeerSnapshot, error) {
	return s.fsm.State()
}

func (s *RaftStore) apply(ctx context.Context, op string, v any) error {
	cmd, err := newCommand(op, v)
	if err != nil {
		return err
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	timeout := s.applyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return types.NewTransient("peer "+op, context.DeadlineExceeded)
	}

	future := s.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return types.ErrNotLeader
		}
		return types.NewTransient("peer "+op, err)
	}

	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

func (s *RaftStore) SetLeader(ctx context.Context, unitID string) error {
	return s.apply(ctx, opSetLeader, unitID)
}

func (s *RaftStore) PublishConfig(ctx context.Context, version uint64, hash string) error {
	return s.apply(ctx, opPublishConfig, configRecord{Version: version, Hash: hash})
}

func (s *RaftStore) RecordApplied(ctx context.Context, applied types.AppliedState) error {
	return s.apply(ctx, opRecordApplied, applied)
}

func (s *RaftStore) PublishCertificate(ctx context.Context, cert *types.CertificatePayload) error {
	return s.apply(ctx, opPublishCertificate, cert)
}

func (s *RaftStore) PublishKeys(ctx context.Context, keys map[string]string) error {
	return s.apply(ctx, opPublishKeys, keys)
}

func (s *RaftStore) PublishUnits(ctx context.Context, units []types.PeerUnit) error {
	return s.apply(ctx, opPublishUnits, units)
}

// Shutdown stops the local raft node
func (s *RaftStore) Shutdown() error {
	if err := s.raft.Shutdown().Error(); err != nil {
		return fmt.Errorf("failed to shutdown raft: %w", err)
	}
	return nil
}
