package storage

import (
	"errors"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for the unit's durable local state.
// It holds what a unit must remember across restarts: the last applied
// configuration, the routes it published, retained TLS material and the
// replicated peer snapshot.
type Store interface {
	// Applied state
	GetAppliedState() (*types.AppliedState, error)
	SaveAppliedState(state *types.AppliedState) error
	// GetPendingRestart returns the hash of a config written to disk but not
	// yet loaded by the workload, or "" when there is none
	GetPendingRestart() (string, error)
	// SetPendingRestart records hash as pending; "" clears the marker
	SetPendingRestart(hash string) error

	// Published routes
	SaveRoute(route *types.Route) error
	GetRoute(name string) (*types.Route, error)
	ListRoutes() ([]*types.Route, error)
	DeleteRoute(name string) error

	// Certificates
	SaveCertificate(key string, cert *types.CertificatePayload) error
	GetCertificate(key string) (*types.CertificatePayload, error)
	DeleteCertificate(key string) error

	// Peer snapshot
	GetPeerSnapshot() (*types.PeerSnapshot, error)
	SavePeerSnapshot(snapshot *types.PeerSnapshot) error

	// Utility
	Close() error
}
