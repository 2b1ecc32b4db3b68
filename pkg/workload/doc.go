// Package workload restarts the Tempo process on a new configuration and
// waits until it reports ready.
package workload
