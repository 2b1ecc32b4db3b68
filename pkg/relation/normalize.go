package relation

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/types"
)

// Databag keys
const (
	KeyBucket         = "bucket"
	KeyEndpoint       = "endpoint"
	KeyCredentialsRef = "credentials-ref"
	KeyRegion         = "region"

	KeyExternalHost = "external-host"
	KeyScheme       = "scheme"

	KeyChain         = "chain"
	KeyPrivateKeyRef = "private-key-ref"
	KeyCA            = "ca"

	KeyReceivers = "receivers"

	KeyUnit          = "unit"
	KeyAddress       = "address"
	KeyConfigVersion = "config-version"

	// KeyParseError marks a bag whose transport could not decode it
	KeyParseError = "_error"
)

// NormalizeAll normalizes every relation in the snapshot. It never panics;
// Invalid states are logged with their reason.
func NormalizeAll(snap Snapshot, now time.Time) types.AllRelationStates {
	states := types.AllRelationStates{
		ObjectStorage: safe(types.RelationObjectStorage, func() types.RelationState[types.ObjectStoragePayload] {
			return NormalizeObjectStorage(snap[types.RelationObjectStorage])
		}),
		Ingress: safe(types.RelationIngress, func() types.RelationState[types.IngressPayload] {
			return NormalizeIngress(snap[types.RelationIngress])
		}),
		Certificates: safe(types.RelationCertificates, func() types.RelationState[types.CertificatePayload] {
			return NormalizeCertificates(snap[types.RelationCertificates], now)
		}),
		Logging: safe(types.RelationLogging, func() types.RelationState[types.LoggingPayload] {
			return NormalizeLogging(snap[types.RelationLogging])
		}),
		Metrics: safe(types.RelationMetrics, func() types.RelationState[types.MetricsPayload] {
			return NormalizeMetrics(snap[types.RelationMetrics])
		}),
		Dashboard: safe(types.RelationDashboard, func() types.RelationState[types.DashboardPayload] {
			return NormalizeDashboard(snap[types.RelationDashboard])
		}),
		Tracing: safe(types.RelationTracing, func() types.RelationState[types.TracingPayload] {
			return NormalizeTracing(snap[types.RelationTracing])
		}),
		Peers: safe(types.RelationPeers, func() types.RelationState[types.PeerView] {
			return NormalizePeers(snap[types.RelationPeers])
		}),
	}

	for kind, reason := range states.Reasons() {
		logger := log.WithRelation(string(kind))
		logger.Warn().
			Str("reason", string(reason.Code)).
			Str("detail", reason.Message).
			Msg("relation invalid, treating as absent")
	}

	return states
}

// safe runs fn and converts a panic into Invalid(malformed)
func safe[P any](kind types.RelationKind, fn func() types.RelationState[P]) (state types.RelationState[P]) {
	defer func() {
		if r := recover(); r != nil {
			state = types.InvalidState[P](types.ReasonMalformed, fmt.Sprintf("normalizer for %s panicked: %v", kind, r))
		}
	}()
	return fn()
}

// single applies the limit-1 rule. It returns the only non-empty bag, or a
// terminal state when there is none or too many. A related provider with an
// empty bag yields an awaiting Absent state.
func single[P any](bags []Bag) (Bag, *types.RelationState[P]) {
	var filled []Bag
	for _, b := range bags {
		if len(b.Data) > 0 {
			filled = append(filled, b)
		}
	}
	switch {
	case len(bags) > 1:
		names := make([]string, 0, len(bags))
		for _, b := range bags {
			names = append(names, b.Source)
		}
		st := types.InvalidState[P](types.ReasonTooManyProviders, "provided by "+strings.Join(names, ", "))
		return Bag{}, &st
	case len(bags) == 0:
		st := types.AbsentState[P]()
		return Bag{}, &st
	case len(filled) == 0:
		st := types.AwaitingState[P]()
		return Bag{}, &st
	}
	if msg := filled[0].Data[KeyParseError]; msg != "" {
		st := types.InvalidState[P](types.ReasonMalformed, msg)
		return Bag{}, &st
	}
	return filled[0], nil
}

func missing(data types.Databag, keys ...string) []string {
	var out []string
	for _, k := range keys {
		if strings.TrimSpace(data[k]) == "" {
			out = append(out, k)
		}
	}
	return out
}

func validHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("no host in %q", raw)
	}
	return nil
}

// NormalizeObjectStorage validates the object storage provider's bag
func NormalizeObjectStorage(bags []Bag) types.RelationState[types.ObjectStoragePayload] {
	bag, terminal := single[types.ObjectStoragePayload](bags)
	if terminal != nil {
		return *terminal
	}

	if m := missing(bag.Data, KeyBucket, KeyEndpoint, KeyCredentialsRef); len(m) > 0 {
		return types.InvalidState[types.ObjectStoragePayload](types.ReasonMissingField, strings.Join(m, ", "))
	}
	if err := validHTTPURL(bag.Data[KeyEndpoint]); err != nil {
		return types.InvalidState[types.ObjectStoragePayload](types.ReasonMalformed, "endpoint: "+err.Error())
	}

	return types.PresentState(types.ObjectStoragePayload{
		Bucket:         bag.Data[KeyBucket],
		Endpoint:       bag.Data[KeyEndpoint],
		CredentialsRef: bag.Data[KeyCredentialsRef],
		Region:         bag.Data[KeyRegion],
	})
}

// NormalizeIngress validates the ingress provider's response
func NormalizeIngress(bags []Bag) types.RelationState[types.IngressPayload] {
	bag, terminal := single[types.IngressPayload](bags)
	if terminal != nil {
		return *terminal
	}

	host := strings.TrimSpace(bag.Data[KeyExternalHost])
	if host == "" {
		return types.InvalidState[types.IngressPayload](types.ReasonMissingField, KeyExternalHost)
	}
	u, err := url.Parse("//" + host)
	if err != nil || u.Host != host || u.Path != "" {
		return types.InvalidState[types.IngressPayload](types.ReasonMalformed, fmt.Sprintf("external-host %q is not a host", host))
	}

	scheme := bag.Data[KeyScheme]
	switch scheme {
	case "":
		scheme = "http"
	case "http", "https":
	default:
		return types.InvalidState[types.IngressPayload](types.ReasonMalformed, fmt.Sprintf("scheme %q", scheme))
	}

	return types.PresentState(types.IngressPayload{ExternalHost: host, Scheme: scheme})
}

// NormalizeCertificates validates the certificate provider's bag. The
// chain must parse and its leaf must not be expired at now.
func NormalizeCertificates(bags []Bag, now time.Time) types.RelationState[types.CertificatePayload] {
	bag, terminal := single[types.CertificatePayload](bags)
	if terminal != nil {
		return *terminal
	}

	if m := missing(bag.Data, KeyChain, KeyPrivateKeyRef); len(m) > 0 {
		return types.InvalidState[types.CertificatePayload](types.ReasonMissingField, strings.Join(m, ", "))
	}

	leaf, err := ParseLeaf(bag.Data[KeyChain])
	if err != nil {
		return types.InvalidState[types.CertificatePayload](types.ReasonMalformed, "chain: "+err.Error())
	}
	if ca := bag.Data[KeyCA]; ca != "" {
		if _, err := ParseLeaf(ca); err != nil {
			return types.InvalidState[types.CertificatePayload](types.ReasonMalformed, "ca: "+err.Error())
		}
	}
	if !now.Before(leaf.NotAfter) {
		return types.InvalidState[types.CertificatePayload](types.ReasonExpired, "expired at "+leaf.NotAfter.UTC().Format(time.RFC3339))
	}

	return types.PresentState(types.CertificatePayload{
		ChainPEM:      bag.Data[KeyChain],
		PrivateKeyRef: bag.Data[KeyPrivateKeyRef],
		CABundlePEM:   bag.Data[KeyCA],
		NotBefore:     leaf.NotBefore.UTC(),
		NotAfter:      leaf.NotAfter.UTC(),
	})
}

// ParseLeaf decodes the first certificate of a PEM chain
func ParseLeaf(chain string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(chain))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no PEM certificate block")
	}
	return x509.ParseCertificate(block.Bytes)
}

// NormalizeLogging collects the log push endpoints. Bags with a bad
// endpoint are skipped; the relation is Invalid only if none is usable.
func NormalizeLogging(bags []Bag) types.RelationState[types.LoggingPayload] {
	if len(bags) == 0 {
		return types.AbsentState[types.LoggingPayload]()
	}

	seen := make(map[string]bool)
	var endpoints []string
	var firstErr *types.Reason
	for _, b := range bags {
		if len(b.Data) == 0 {
			continue
		}
		if msg := b.Data[KeyParseError]; msg != "" {
			firstErr = firstReason(firstErr, types.ReasonMalformed, msg)
			continue
		}
		ep := strings.TrimSpace(b.Data[KeyEndpoint])
		if ep == "" {
			firstErr = firstReason(firstErr, types.ReasonMissingField, b.Source+": "+KeyEndpoint)
			continue
		}
		if err := validHTTPURL(ep); err != nil {
			firstErr = firstReason(firstErr, types.ReasonMalformed, b.Source+": "+err.Error())
			continue
		}
		if !seen[ep] {
			seen[ep] = true
			endpoints = append(endpoints, ep)
		}
	}

	if len(endpoints) == 0 {
		if firstErr != nil {
			return types.InvalidState[types.LoggingPayload](firstErr.Code, firstErr.Message)
		}
		return types.AbsentState[types.LoggingPayload]()
	}
	sort.Strings(endpoints)
	return types.PresentState(types.LoggingPayload{Endpoints: endpoints})
}

func firstReason(cur *types.Reason, code types.ReasonCode, msg string) *types.Reason {
	if cur != nil {
		return cur
	}
	return &types.Reason{Code: code, Message: msg}
}

func consumers(bags []Bag) []string {
	out := make([]string, 0, len(bags))
	for _, b := range bags {
		out = append(out, b.Source)
	}
	sort.Strings(out)
	return out
}

// NormalizeMetrics is Present whenever a scraper is related
func NormalizeMetrics(bags []Bag) types.RelationState[types.MetricsPayload] {
	if len(bags) == 0 {
		return types.AbsentState[types.MetricsPayload]()
	}
	return types.PresentState(types.MetricsPayload{Consumers: consumers(bags)})
}

// NormalizeDashboard is Present whenever a grafana application is related
func NormalizeDashboard(bags []Bag) types.RelationState[types.DashboardPayload] {
	if len(bags) == 0 {
		return types.AbsentState[types.DashboardPayload]()
	}
	return types.PresentState(types.DashboardPayload{Consumers: consumers(bags)})
}

// NormalizeTracing merges the receivers requested by every tracing
// requirer. A requirer that requests nothing is still counted.
func NormalizeTracing(bags []Bag) types.RelationState[types.TracingPayload] {
	if len(bags) == 0 {
		return types.AbsentState[types.TracingPayload]()
	}

	requested := make(map[types.ProtocolKind]bool)
	var requirers []string
	var firstErr *types.Reason
	for _, b := range bags {
		if msg := b.Data[KeyParseError]; msg != "" {
			firstErr = firstReason(firstErr, types.ReasonMalformed, msg)
			continue
		}
		raw := strings.TrimSpace(b.Data[KeyReceivers])
		if raw == "" {
			requirers = append(requirers, b.Source)
			continue
		}

		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			firstErr = firstReason(firstErr, types.ReasonMalformed, b.Source+": receivers: "+err.Error())
			continue
		}
		var unknown []string
		for _, n := range names {
			if !types.ProtocolKind(n).Valid() {
				unknown = append(unknown, n)
			}
		}
		if len(unknown) > 0 {
			firstErr = firstReason(firstErr, types.ReasonMalformed, b.Source+": unknown receivers "+strings.Join(unknown, ", "))
			continue
		}
		for _, n := range names {
			requested[types.ProtocolKind(n)] = true
		}
		requirers = append(requirers, b.Source)
	}

	if len(requirers) == 0 {
		return types.InvalidState[types.TracingPayload](firstErr.Code, firstErr.Message)
	}

	protocols := make([]types.ProtocolKind, 0, len(requested))
	for p := range requested {
		protocols = append(protocols, p)
	}
	types.SortProtocols(protocols)
	sort.Strings(requirers)

	return types.PresentState(types.TracingPayload{Requested: protocols, Requirers: requirers})
}

// NormalizePeers builds the peer view from unit bags. Units that have not
// published an address yet are left out. Leader is filled in by the caller.
func NormalizePeers(bags []Bag) types.RelationState[types.PeerView] {
	if len(bags) == 0 {
		return types.AbsentState[types.PeerView]()
	}

	var units []types.PeerUnit
	var firstErr *types.Reason
	for _, b := range bags {
		if msg := b.Data[KeyParseError]; msg != "" {
			firstErr = firstReason(firstErr, types.ReasonMalformed, msg)
			continue
		}
		addr := strings.TrimSpace(b.Data[KeyAddress])
		if addr == "" {
			continue
		}
		id := b.Data[KeyUnit]
		if id == "" {
			id = b.Source
		}

		var version uint64
		if raw := b.Data[KeyConfigVersion]; raw != "" {
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				firstErr = firstReason(firstErr, types.ReasonMalformed, id+": config-version "+strconv.Quote(raw))
				continue
			}
			version = v
		}
		units = append(units, types.PeerUnit{ID: id, Address: addr, LastSeenVersion: version})
	}

	if len(units) == 0 {
		if firstErr != nil {
			return types.InvalidState[types.PeerView](firstErr.Code, firstErr.Message)
		}
		return types.AbsentState[types.PeerView]()
	}

	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return types.PresentState(types.PeerView{Units: units})
}
