package synth

import (
	"sort"

	"github.com/cuemby/tempo-operator/pkg/config"
	"github.com/cuemby/tempo-operator/pkg/types"
)

// Synthesize maps normalized relation states and static configuration to
// the desired workload configuration. It is pure and total: every
// combination of presences yields a configuration, and equal inputs yield
// byte-identical output. Version is left at zero; the peer coordinator
// assigns it.
//
// Only Present states are ever used. Invalid behaves exactly like Absent.
func Synthesize(states types.AllRelationStates, cfg *config.Config) types.WorkloadConfig {
	wc := types.WorkloadConfig{
		HTTPPort:     cfg.Receivers.HTTPPort,
		WALPath:      cfg.Paths.WAL,
		PeerMembers:  []string{},
		LogEndpoints: []string{},
	}

	// Storage backend
	if states.ObjectStorage.IsPresent() {
		s3 := states.ObjectStorage.Payload
		wc.Storage = types.StorageBackend{Kind: types.StorageS3, S3: &s3}
	} else {
		wc.Storage = types.StorageBackend{Kind: types.StorageLocal, LocalPath: cfg.Paths.Traces}
	}

	// TLS mode
	if states.Certificates.IsPresent() {
		cert := states.Certificates.Payload
		wc.TLS = types.TLSMode{Enabled: true, Certificate: &cert}
	}

	// Receivers
	wc.Receivers = Receivers(states.Tracing, wc.TLS.Enabled, &cfg.Receivers)

	// Route eligibility
	if states.Ingress.IsPresent() && len(wc.Receivers) > 0 {
		wc.RoutesEligible = true
		wc.ExternalHost = states.Ingress.Payload.ExternalHost
	}

	// Peer members
	if states.Peers.IsPresent() {
		seen := make(map[string]bool)
		for _, u := range states.Peers.Payload.Units {
			if u.Address != "" && !seen[u.Address] {
				seen[u.Address] = true
				wc.PeerMembers = append(wc.PeerMembers, u.Address)
			}
		}
		sort.Strings(wc.PeerMembers)
	}

	if states.Logging.IsPresent() {
		wc.LogEndpoints = append(wc.LogEndpoints, states.Logging.Payload.Endpoints...)
		sort.Strings(wc.LogEndpoints)
	}

	return wc
}

// Receivers computes the enabled receiver set: configured protocols plus
// those requested over tracing, restricted to the protocol table, then
// filtered for TLS compatibility. The result is ordered by protocol.
func Receivers(tracing types.RelationState[types.TracingPayload], tlsEnabled bool, cfg *config.ReceiversConfig) []types.ReceiverSpec {
	wanted := make(map[types.ProtocolKind]bool)
	for _, name := range cfg.Enabled {
		wanted[types.ProtocolKind(name)] = true
	}
	if tracing.IsPresent() {
		for _, p := range tracing.Payload.Requested {
			wanted[p] = true
		}
	}

	requireTLS := make(map[types.ProtocolKind]bool)
	for _, name := range cfg.RequireTLS {
		requireTLS[types.ProtocolKind(name)] = true
	}

	specs := make([]types.ReceiverSpec, 0, len(wanted))
	for _, p := range types.SortedProtocols() {
		if !wanted[p] {
			continue
		}
		info := types.Protocols[p]

		switch {
		case tlsEnabled && !info.TLSCapable && !cfg.AllowPlaintextWithTLS:
			continue
		case !tlsEnabled && requireTLS[p]:
			continue
		}

		specs = append(specs, types.ReceiverSpec{
			Protocol:    p,
			Port:        port(p, info, cfg),
			Path:        info.Path,
			TLSRequired: tlsEnabled && info.TLSCapable,
		})
	}
	return specs
}

func port(p types.ProtocolKind, info types.ProtocolInfo, cfg *config.ReceiversConfig) int {
	if override, ok := cfg.Ports[string(p)]; ok && override > 0 {
		return override
	}
	if p == types.ProtocolTempoHTTP && cfg.HTTPPort > 0 {
		return cfg.HTTPPort
	}
	return info.DefaultPort
}
