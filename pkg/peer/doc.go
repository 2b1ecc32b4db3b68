/*
Package peer coordinates shared state between the units of the application.

A single leader owns the shared PeerSnapshot: the published configuration
version and content hash, the leader identity, the last applied state, the
peer view and the certificate material issued for all units. Followers
only read it.

	         ┌───────────── Coordinator ─────────────┐
	Elector ─┤ IsLeader() re-checked before each write ├─▶ Store
	         └─────────────────────────────────────────┘
	                                                   MemoryStore (single unit, tests)
	                                                   RaftStore   (raft log, FSM over bbolt)

Version assignment (Coordinator.Assign):

  - leader: publishes its identity when the snapshot names another unit,
    then increments the version iff the content hash changed
  - follower: adopts the published version

Leadership transitions from Elector.LeaderCh trigger a reconciliation pass
through Coordinator.Watch.
*/
package peer
