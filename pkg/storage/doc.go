/*
Package storage provides BoltDB-backed persistence for the operator's local state.

Each unit keeps one database file, <state>/tempo-operator.db, with a bucket per
concern. Values are JSON encoded.

	┌──────────────────── BOLTDB STORAGE ─────────────────────┐
	│                                                          │
	│  applied       "current"   AppliedState                  │
	│  routes        route name  Route (published to ingress)  │
	│  certificates  key         CertificatePayload            │
	│  peer          "snapshot"  PeerSnapshot (raft FSM state) │
	│                                                          │
	└──────────────────────────────────────────────────────────┘

The applied bucket is what lets a restarted unit recognise that the workload
already runs the desired configuration. The routes bucket is the baseline
for delta-only route publication. The peer bucket is written by the raft FSM
on every unit, so followers read the leader's snapshot locally.

Lookups of missing records return an error wrapping ErrNotFound:

	state, err := store.GetAppliedState()
	if errors.Is(err, storage.ErrNotFound) {
		// never applied
	}
*/
package storage
