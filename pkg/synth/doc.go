/*
Package synth computes the desired tempo workload configuration.

Synthesize is a pure function of the normalized relation states and the
static configuration. Decisions are taken in a fixed order:

	storage    s3 when object-storage is Present, local otherwise
	tls        enabled when the effective certificate is Present
	receivers  (configured ∪ tracing-requested) ∩ protocol table, then
	           filtered for tls compatibility
	routes     eligible when ingress is Present and a receiver is enabled
	peers      member addresses copied from the peer view

Hash and ContentHash identify a configuration through xxhash over its
canonical JSON encoding; ContentHash ignores the version. Render and
RenderLogForwarding produce the files written by the applier, and Check
guards against internally contradictory configurations.
*/
package synth
