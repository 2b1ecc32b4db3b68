package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/tempo-operator/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketApplied      = []byte("applied")
	bucketRoutes       = []byte("routes")
	bucketCertificates = []byte("certificates")
	bucketPeer         = []byte("peer")

	keyApplied  = []byte("current")
	keyPending  = []byte("pending-restart")
	keySnapshot = []byte("snapshot")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store under dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return OpenBoltStore(filepath.Join(dataDir, "tempo-operator.db"))
}

// OpenBoltStore opens the database file at dbPath
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketApplied,
			bucketRoutes,
			bucketCertificates,
			bucketPeer,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) put(bucket, key []byte, v any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put(key, data)
	})
}

func (s *BoltStore) get(bucket, key []byte, v any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return fmt.Errorf("%s %q: %w", bucket, key, ErrNotFound)
		}
		return json.Unmarshal(data, v)
	})
}

func (s *BoltStore) delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

// Applied state operations
func (s *BoltStore) GetAppliedState() (*types.AppliedState, error) {
	var state types.AppliedState
	if err := s.get(bucketApplied, keyApplied, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *BoltStore) SaveAppliedState(state *types.AppliedState) error {
	return s.put(bucketApplied, keyApplied, state)
}

func (s *BoltStore) GetPendingRestart() (string, error) {
	var hash string
	err := s.get(bucketApplied, keyPending, &hash)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return hash, err
}

func (s *BoltStore) SetPendingRestart(hash string) error {
	if hash == "" {
		return s.delete(bucketApplied, keyPending)
	}
	return s.put(bucketApplied, keyPending, hash)
}

// Route operations
func (s *BoltStore) SaveRoute(route *types.Route) error {
	return s.put(bucketRoutes, []byte(route.Name), route)
}

func (s *BoltStore) GetRoute(name string) (*types.Route, error) {
	var route types.Route
	if err := s.get(bucketRoutes, []byte(name), &route); err != nil {
		return nil, err
	}
	return &route, nil
}

func (s *BoltStore) ListRoutes() ([]*types.Route, error) {
	var routes []*types.Route
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRoutes)
		return b.ForEach(func(k, v []byte) error {
			var route types.Route
			if err := json.Unmarshal(v, &route); err != nil {
				return err
			}
			routes = append(routes, &route)
			return nil
		})
	})
	return routes, err
}

func (s *BoltStore) DeleteRoute(name string) error {
	return s.delete(bucketRoutes, []byte(name))
}

// Certificate operations
func (s *BoltStore) SaveCertificate(key string, cert *types.CertificatePayload) error {
	return s.put(bucketCertificates, []byte(key), cert)
}

func (s *BoltStore) GetCertificate(key string) (*types.CertificatePayload, error) {
	var cert types.CertificatePayload
	if err := s.get(bucketCertificates, []byte(key), &cert); err != nil {
		return nil, err
	}
	return &cert, nil
}

func (s *BoltStore) DeleteCertificate(key string) error {
	return s.delete(bucketCertificates, []byte(key))
}

// Peer snapshot operations
func (s *BoltStore) GetPeerSnapshot() (*types.PeerSnapshot, error) {
	var snap types.PeerSnapshot
	if err := s.get(bucketPeer, keySnapshot, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *BoltStore) SavePeerSnapshot(snapshot *types.PeerSnapshot) error {
	return s.put(bucketPeer, keySnapshot, snapshot)
}
