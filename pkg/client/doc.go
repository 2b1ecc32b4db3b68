// Package client is the CLI's client for a running tempo operator. It wraps
// the JSON API served by pkg/api and the gRPC health service.
package client
