/*
Package relation turns raw relation databags into normalized relation states.

Databags arrive through a Source as a Snapshot, keyed by relation kind, with
one Bag per remote application (or per unit for peers). NormalizeAll maps the
snapshot to types.AllRelationStates:

	object-storage    bucket, endpoint, credentials-ref, region?   limit 1
	ingress           external-host, scheme?                       limit 1
	certificates      chain, private-key-ref, ca                   limit 1
	logging           endpoint
	metrics-endpoint  presence only
	grafana-dashboard presence only
	tracing           receivers (JSON list of protocol names)
	peers             unit, address, config-version

A limit-1 relation with more than one provider is Invalid(too-many-providers).
Multi-provider relations skip unusable bags and are Invalid only when none of
them is usable. Normalizers never panic; a panic is reported as
Invalid(malformed).

FileSource reads bags from <dir>/<relation>/<source>.yaml and Watcher turns
changes under that directory into reconcile triggers. Outbox writes the bags
this unit publishes with atomic replace semantics.
*/
package relation
