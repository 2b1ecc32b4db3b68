/*
Package events provides an in-memory event broker for operator events.

Reconciliation passes, leadership changes, certificate issuance and route
updates are published as events. Subscribers receive them asynchronously
over buffered channels, and the broker keeps a short history that the API
serves at GET /v1/events.

	┌──────────── EVENT BROKER ────────────┐
	│  Publish ─▶ event channel (100)      │
	│               │                      │
	│          broadcast loop ─▶ history   │
	│               │                      │
	│      subscriber channels (50 each)   │
	└──────────────────────────────────────┘

Publishing never blocks the reconciler. An event is dropped when the queue
is full, and a slow subscriber misses events instead of stalling delivery.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	broker.Publish(events.New(events.EventConfigApplied, "configuration applied",
		map[string]string{"version": "3"}))
*/
package events
