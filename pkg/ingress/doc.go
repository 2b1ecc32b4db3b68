// Package ingress publishes the route rules that expose the enabled trace
// receivers through the ingress provider.
//
// The desired set holds one route per receiver, targeting this unit's
// address and the receiver port, and is empty unless the configuration is
// eligible for routes (ingress present and at least one receiver). The
// Publisher diffs the desired set against the routes it last published,
// which are persisted in local storage, and only adds or removes the
// difference.
package ingress
