package synth

import (
	"fmt"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// Check reports the first internal contradiction in wc as an
// InvariantViolation. A configuration produced by Synthesize always passes.
func Check(wc types.WorkloadConfig) error {
	switch wc.Storage.Kind {
	case types.StorageS3:
		if wc.Storage.S3 == nil || wc.Storage.LocalPath != "" {
			return &types.InvariantViolation{Invariant: "single-storage-backend", Detail: "s3 backend must carry only s3 settings"}
		}
	case types.StorageLocal:
		if wc.Storage.S3 != nil || wc.Storage.LocalPath == "" {
			return &types.InvariantViolation{Invariant: "single-storage-backend", Detail: "local backend must carry only a local path"}
		}
	default:
		return &types.InvariantViolation{Invariant: "single-storage-backend", Detail: fmt.Sprintf("unknown backend %q", wc.Storage.Kind)}
	}

	if wc.TLS.Enabled != (wc.TLS.Certificate != nil) {
		return &types.InvariantViolation{Invariant: "tls-mode", Detail: "tls enabled state and certificate disagree"}
	}

	protocols := make(map[types.ProtocolKind]bool)
	ports := make(map[string]types.ProtocolKind)
	for _, r := range wc.Receivers {
		info, ok := r.Protocol.Lookup()
		if !ok {
			return &types.InvariantViolation{Invariant: "receiver-table", Detail: fmt.Sprintf("unknown protocol %q", r.Protocol)}
		}
		if protocols[r.Protocol] {
			return &types.InvariantViolation{Invariant: "receiver-table", Detail: fmt.Sprintf("protocol %s enabled twice", r.Protocol)}
		}
		protocols[r.Protocol] = true

		if r.TLSRequired && !wc.TLS.Enabled {
			return &types.InvariantViolation{Invariant: "tls-mode", Detail: fmt.Sprintf("%s requires tls while tls is disabled", r.Protocol)}
		}
		if r.TLSRequired && !info.TLSCapable {
			return &types.InvariantViolation{Invariant: "tls-mode", Detail: fmt.Sprintf("%s cannot serve tls", r.Protocol)}
		}

		key := fmt.Sprintf("%s/%d", transportFamily(info.Transport), r.Port)
		if other, ok := ports[key]; ok {
			return &types.InvariantViolation{Invariant: "receiver-ports", Detail: fmt.Sprintf("%s and %s share port %d", other, r.Protocol, r.Port)}
		}
		ports[key] = r.Protocol
	}

	if wc.RoutesEligible && len(wc.Receivers) == 0 {
		return &types.InvariantViolation{Invariant: "route-eligibility", Detail: "routes eligible without receivers"}
	}
	if !wc.RoutesEligible && wc.ExternalHost != "" {
		return &types.InvariantViolation{Invariant: "route-eligibility", Detail: "external host set while routes are not eligible"}
	}

	return nil
}

func transportFamily(t types.Transport) string {
	if t == types.TransportUDP {
		return "udp"
	}
	return "tcp"
}
