package peer

import (
	"sync"

	"github.com/hashicorp/raft"
)

// Elector is the externally provided leadership signal
type Elector interface {
	// IsLeader reports whether this unit currently holds leadership
	IsLeader() bool
	// LeaderCh delivers leadership transitions
	LeaderCh() <-chan bool
}

// StaticElector is an Elector whose leadership is set by the host.
// It is used when leadership is decided outside the operator.
type StaticElector struct {
	mu     sync.RWMutex
	leader bool
	ch     chan bool
}

// NewStaticElector creates an elector with a fixed initial signal
func NewStaticElector(leader bool) *StaticElector {
	return &StaticElector{
		leader: leader,
		ch:     make(chan bool, 1),
	}
}

// IsLeader reports the current signal
func (e *StaticElector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leader
}

// LeaderCh returns the transition channel. Only the latest transition is
// kept when the reader falls behind.
func (e *StaticElector) LeaderCh() <-chan bool {
	return e.ch
}

// Set updates the leadership signal and notifies on change
func (e *StaticElector) Set(leader bool) {
	e.mu.Lock()
	changed := e.leader != leader
	e.leader = leader
	e.mu.Unlock()

	if !changed {
		return
	}
	for {
		select {
		case e.ch <- leader:
			return
		default:
		}
		select {
		case <-e.ch:
		default:
		}
	}
}

// RaftElector reports raft leadership as the leadership signal
type RaftElector struct {
	raft *raft.Raft
}

// NewRaftElector wraps a raft instance
func NewRaftElector(r *raft.Raft) *RaftElector {
	return &RaftElector{raft: r}
}

// IsLeader returns true if this unit is the raft leader
func (e *RaftElector) IsLeader() bool {
	if e.raft == nil {
		return false
	}
	return e.raft.State() == raft.Leader
}

// LeaderCh returns raft's leadership transition channel
func (e *RaftElector) LeaderCh() <-chan bool {
	return e.raft.LeaderCh()
}
