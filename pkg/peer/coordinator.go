package peer

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/synth"
	"github.com/cuemby/tempo-operator/pkg/types"
)

// Coordinator mediates all access to shared peer storage for one unit.
// Only the leader writes, and leadership is re-checked immediately before
// every write so a revoked signal stops writes at once.
type Coordinator struct {
	unitID  string
	elector Elector
	store   Store
	logger  zerolog.Logger

	mu        sync.Mutex
	cached    *types.PeerSnapshot
	wasLeader bool
}

// NewCoordinator creates a coordinator for unitID
func NewCoordinator(unitID string, elector Elector, store Store) *Coordinator {
	return &Coordinator{
		unitID:  unitID,
		elector: elector,
		store:   store,
		logger:  log.WithComponent("peer").With().Str("unit", unitID).Logger(),
	}
}

// IsLeader reports the current leadership signal
func (c *Coordinator) IsLeader() bool {
	return c.elector.IsLeader()
}

// Refresh reads the shared snapshot. When storage is unreachable the last
// cached snapshot is returned together with a TransientError.
func (c *Coordinator) Refresh(ctx context.Context) (*types.PeerSnapshot, error) {
	snap, err := c.store.Snapshot(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if c.cached == nil {
			c.cached = &types.PeerSnapshot{}
		}
		return c.cached.Clone(), types.NewTransient("read peer storage", err)
	}
	c.cached = snap.Clone()
	return snap, nil
}

// Cached returns the last snapshot read without touching storage
func (c *Coordinator) Cached() *types.PeerSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached == nil {
		return &types.PeerSnapshot{}
	}
	return c.cached.Clone()
}

// write runs fn only while this unit holds leadership
func (c *Coordinator) write(fn func() error) error {
	if !c.elector.IsLeader() {
		return types.ErrNotLeader
	}
	return fn()
}

// Assign sets the version of cfg. The leader increments the published
// version when the content hash differs from the last publication and
// republishes its identity after gaining leadership. Followers adopt the
// published version.
func (c *Coordinator) Assign(ctx context.Context, cfg types.WorkloadConfig) (types.WorkloadConfig, error) {
	snap, err := c.Refresh(ctx)
	if err != nil {
		cfg.Version = snap.ConfigVersion
		return cfg, err
	}

	hash := synth.ContentHash(cfg)
	leader := c.elector.IsLeader()
	c.noteLeadership(leader)

	if !leader {
		cfg.Version = snap.ConfigVersion
		if snap.ConfigHash != "" && snap.ConfigHash != hash {
			c.logger.Debug().
				Uint64("version", snap.ConfigVersion).
				Msg("local configuration differs from leader publication")
		}
		return cfg, nil
	}

	if snap.Leader != c.unitID {
		if err := c.write(func() error { return c.store.SetLeader(ctx, c.unitID) }); err != nil {
			return c.demoted(cfg, snap, err)
		}
		c.logger.Info().Uint64("version", snap.ConfigVersion).Msg("published leadership")
	}

	version := snap.ConfigVersion
	if snap.ConfigHash != hash {
		version++
		if err := c.write(func() error { return c.store.PublishConfig(ctx, version, hash) }); err != nil {
			return c.demoted(cfg, snap, err)
		}
		c.logger.Info().Uint64("version", version).Str("hash", hash).Msg("published configuration version")
	}

	cfg.Version = version
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to refresh peer snapshot after publication")
	}
	return cfg, nil
}

// demoted handles a write that failed. Losing leadership mid pass makes
// this unit behave as a follower for the rest of the pass.
func (c *Coordinator) demoted(cfg types.WorkloadConfig, snap *types.PeerSnapshot, err error) (types.WorkloadConfig, error) {
	cfg.Version = snap.ConfigVersion
	if errors.Is(err, types.ErrNotLeader) {
		c.logger.Warn().Msg("leadership revoked, skipping peer writes")
		return cfg, nil
	}
	return cfg, err
}

func (c *Coordinator) noteLeadership(leader bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if leader != c.wasLeader {
		c.logger.Info().Bool("leader", leader).Msg("leadership changed")
		c.wasLeader = leader
	}
}

// RecordApplied publishes the leader's applied state. Followers skip.
func (c *Coordinator) RecordApplied(ctx context.Context, applied types.AppliedState) error {
	err := c.write(func() error { return c.store.RecordApplied(ctx, applied) })
	if errors.Is(err, types.ErrNotLeader) {
		return nil
	}
	return err
}

// PublishCertificate publishes an issued certificate and its private keys
func (c *Coordinator) PublishCertificate(ctx context.Context, cert *types.CertificatePayload, keys map[string]string) error {
	if len(keys) > 0 {
		if err := c.PublishKeys(ctx, keys); err != nil {
			return err
		}
	}
	return c.write(func() error { return c.store.PublishCertificate(ctx, cert) })
}

// PublishKeys publishes private keys that are not yet in the snapshot
func (c *Coordinator) PublishKeys(ctx context.Context, keys map[string]string) error {
	cached := c.Cached()
	missing := make(map[string]string)
	for name, key := range keys {
		if cached.Keys[name] != key {
			missing[name] = key
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return c.write(func() error { return c.store.PublishKeys(ctx, missing) })
}

// PublishUnits publishes the peer view when it changed. Followers skip.
func (c *Coordinator) PublishUnits(ctx context.Context, units []types.PeerUnit) error {
	current := c.Cached().Units
	if len(current) == len(units) && (len(units) == 0 || reflect.DeepEqual(current, units)) {
		return nil
	}
	err := c.write(func() error { return c.store.PublishUnits(ctx, units) })
	if errors.Is(err, types.ErrNotLeader) {
		return nil
	}
	return err
}

// Watch forwards leadership transitions to trigger until ctx is done
func (c *Coordinator) Watch(ctx context.Context, trigger func(reason string)) {
	ch := c.elector.LeaderCh()
	for {
		select {
		case <-ctx.Done():
			return
		case leader, ok := <-ch:
			if !ok {
				return
			}
			if leader {
				trigger("leader-elected")
			} else {
				trigger("leader-lost")
			}
		}
	}
}
