package types

import (
	"time"
)

// RelationKind identifies one of the relations the operator consumes
type RelationKind string

const (
	RelationObjectStorage RelationKind = "object-storage"
	RelationIngress       RelationKind = "ingress"
	RelationCertificates  RelationKind = "certificates"
	RelationLogging       RelationKind = "logging"
	RelationMetrics       RelationKind = "metrics-endpoint"
	RelationDashboard     RelationKind = "grafana-dashboard"
	RelationTracing       RelationKind = "tracing"
	RelationPeers         RelationKind = "peers"
)

// RelationKinds lists every relation kind in reconciliation order
var RelationKinds = []RelationKind{
	RelationObjectStorage,
	RelationIngress,
	RelationCertificates,
	RelationLogging,
	RelationMetrics,
	RelationDashboard,
	RelationTracing,
	RelationPeers,
}

// SingleProvider reports whether at most one remote application may
// provide this relation
func (k RelationKind) SingleProvider() bool {
	switch k {
	case RelationObjectStorage, RelationIngress, RelationCertificates:
		return true
	default:
		return false
	}
}

// Databag is the key/value payload exchanged over a relation
type Databag map[string]string

// Presence is the normalized availability of a relation
type Presence string

const (
	Absent  Presence = "absent"
	Invalid Presence = "invalid"
	Present Presence = "present"
)

// ReasonCode classifies why a relation was normalized to Invalid
type ReasonCode string

const (
	ReasonMissingField       ReasonCode = "missing-field"
	ReasonMalformed          ReasonCode = "malformed"
	ReasonExpired            ReasonCode = "expired"
	ReasonTooManyProviders   ReasonCode = "too-many-providers"
	ReasonUnsupportedVersion ReasonCode = "unsupported-version"
)

// Reason explains an Invalid relation state
type Reason struct {
	Code    ReasonCode
	Message string
}

func (r Reason) String() string {
	if r.Message == "" {
		return string(r.Code)
	}
	return string(r.Code) + ": " + r.Message
}

// RelationState is the normalized state of one relation for one pass.
// Payload is only meaningful when Presence is Present.
type RelationState[P any] struct {
	Presence Presence
	Reason   Reason
	Payload  P
	// Related is set on an Absent state when a provider is related but has
	// not written its databag yet.
	Related bool
}

// IsPresent reports whether the state carries a usable payload
func (s RelationState[P]) IsPresent() bool {
	return s.Presence == Present
}

// AbsentState returns an Absent state for payload type P
func AbsentState[P any]() RelationState[P] {
	return RelationState[P]{Presence: Absent}
}

// AwaitingState returns an Absent state for a related provider that has
// not published any data
func AwaitingState[P any]() RelationState[P] {
	return RelationState[P]{Presence: Absent, Related: true}
}

// InvalidState returns an Invalid state carrying the given reason
func InvalidState[P any](code ReasonCode, message string) RelationState[P] {
	return RelationState[P]{Presence: Invalid, Reason: Reason{Code: code, Message: message}}
}

// PresentState wraps a validated payload
func PresentState[P any](payload P) RelationState[P] {
	return RelationState[P]{Presence: Present, Payload: payload}
}

// ObjectStoragePayload describes an S3-compatible bucket
type ObjectStoragePayload struct {
	Bucket         string `json:"bucket" yaml:"bucket"`
	Endpoint       string `json:"endpoint" yaml:"endpoint"`
	CredentialsRef string `json:"credentials_ref" yaml:"credentials_ref"`
	Region         string `json:"region,omitempty" yaml:"region,omitempty"`
}

// CertificatePayload is the TLS material served by the workload
type CertificatePayload struct {
	ChainPEM      string    `json:"chain"`
	PrivateKeyRef string    `json:"private_key_ref"`
	CABundlePEM   string    `json:"ca"`
	NotBefore     time.Time `json:"not_before"`
	NotAfter      time.Time `json:"not_after"`
}

// Expired reports whether the certificate is past its NotAfter at now
func (c CertificatePayload) Expired(now time.Time) bool {
	return !now.Before(c.NotAfter)
}

// IngressPayload is the ingress provider's response
type IngressPayload struct {
	ExternalHost string
	Scheme       string
}

// LoggingPayload lists the log push endpoints offered by log stores
type LoggingPayload struct {
	Endpoints []string
}

// MetricsPayload lists the applications scraping this workload
type MetricsPayload struct {
	Consumers []string
}

// DashboardPayload lists the grafana applications requesting dashboards
type DashboardPayload struct {
	Consumers []string
}

// TracingPayload is the union of receivers requested by tracing requirers
type TracingPayload struct {
	Requested []ProtocolKind
	Requirers []string
}

// PeerUnit is one unit as seen over the peers relation
type PeerUnit struct {
	ID              string `json:"id"`
	Address         string `json:"address"`
	LastSeenVersion uint64 `json:"last_seen_version"`
}

// PeerView is the set of units in the peer cluster
type PeerView struct {
	Units  []PeerUnit
	Leader string
}

// AllRelationStates is the full normalized input of one reconciliation pass
type AllRelationStates struct {
	ObjectStorage RelationState[ObjectStoragePayload]
	Ingress       RelationState[IngressPayload]
	Certificates  RelationState[CertificatePayload]
	Logging       RelationState[LoggingPayload]
	Metrics       RelationState[MetricsPayload]
	Dashboard     RelationState[DashboardPayload]
	Tracing       RelationState[TracingPayload]
	Peers         RelationState[PeerView]
}

// Presences returns the presence of every relation keyed by kind
func (s AllRelationStates) Presences() map[RelationKind]Presence {
	return map[RelationKind]Presence{
		RelationObjectStorage: s.ObjectStorage.Presence,
		RelationIngress:       s.Ingress.Presence,
		RelationCertificates:  s.Certificates.Presence,
		RelationLogging:       s.Logging.Presence,
		RelationMetrics:       s.Metrics.Presence,
		RelationDashboard:     s.Dashboard.Presence,
		RelationTracing:       s.Tracing.Presence,
		RelationPeers:         s.Peers.Presence,
	}
}

// Reasons returns the reason of every Invalid relation keyed by kind
func (s AllRelationStates) Reasons() map[RelationKind]Reason {
	reasons := make(map[RelationKind]Reason)
	add := func(kind RelationKind, p Presence, r Reason) {
		if p == Invalid {
			reasons[kind] = r
		}
	}
	add(RelationObjectStorage, s.ObjectStorage.Presence, s.ObjectStorage.Reason)
	add(RelationIngress, s.Ingress.Presence, s.Ingress.Reason)
	add(RelationCertificates, s.Certificates.Presence, s.Certificates.Reason)
	add(RelationLogging, s.Logging.Presence, s.Logging.Reason)
	add(RelationMetrics, s.Metrics.Presence, s.Metrics.Reason)
	add(RelationDashboard, s.Dashboard.Presence, s.Dashboard.Reason)
	add(RelationTracing, s.Tracing.Presence, s.Tracing.Reason)
	add(RelationPeers, s.Peers.Presence, s.Peers.Reason)
	return reasons
}

// StorageKind selects the trace storage backend
type StorageKind string

const (
	StorageLocal StorageKind = "local"
	StorageS3    StorageKind = "s3"
)

// StorageBackend is the active trace storage backend. Exactly one of
// LocalPath or S3 is set, matching Kind.
type StorageBackend struct {
	Kind      StorageKind           `json:"kind"`
	LocalPath string                `json:"local_path,omitempty"`
	S3        *ObjectStoragePayload `json:"s3,omitempty"`
}

// TLSMode is the TLS configuration of the receivers
type TLSMode struct {
	Enabled     bool                `json:"enabled"`
	Certificate *CertificatePayload `json:"certificate,omitempty"`
}

// ReceiverSpec is one enabled trace ingest endpoint
type ReceiverSpec struct {
	Protocol    ProtocolKind `json:"protocol" yaml:"protocol"`
	Port        int          `json:"port" yaml:"port"`
	Path        string       `json:"path" yaml:"path"`
	TLSRequired bool         `json:"tls-required" yaml:"tls-required"`
}

// WorkloadConfig is the complete desired state of the tracing workload
type WorkloadConfig struct {
	Storage        StorageBackend `json:"storage"`
	TLS            TLSMode        `json:"tls"`
	Receivers      []ReceiverSpec `json:"receivers"`
	RoutesEligible bool           `json:"routes_eligible"`
	ExternalHost   string         `json:"external_host,omitempty"`
	PeerMembers    []string       `json:"peer_members"`
	LogEndpoints   []string       `json:"log_endpoints"`
	HTTPPort       int            `json:"http_port"`
	WALPath        string         `json:"wal_path"`
	Version        uint64         `json:"version"`
}

// AppliedState records the last configuration successfully applied
type AppliedState struct {
	Hash      string    `json:"hash"`
	Version   uint64    `json:"version"`
	AppliedAt time.Time `json:"applied_at"`
}

// PeerSnapshot is the leader-owned shared state of the peer cluster.
// Followers only ever read it.
type PeerSnapshot struct {
	Leader        string              `json:"leader"`
	ConfigVersion uint64              `json:"config_version"`
	ConfigHash    string              `json:"config_hash"`
	Applied       AppliedState        `json:"applied"`
	Certificate   *CertificatePayload `json:"certificate,omitempty"`
	Keys          map[string]string   `json:"keys,omitempty"`
	Units         []PeerUnit          `json:"units"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Clone returns a deep copy of the snapshot
func (s *PeerSnapshot) Clone() *PeerSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	if s.Certificate != nil {
		cert := *s.Certificate
		out.Certificate = &cert
	}
	if s.Keys != nil {
		out.Keys = make(map[string]string, len(s.Keys))
		for k, v := range s.Keys {
			out.Keys[k] = v
		}
	}
	out.Units = append([]PeerUnit(nil), s.Units...)
	return &out
}

// Route is one ingress routing rule for a receiver
type Route struct {
	Name      string       `json:"name" yaml:"name"`
	Protocol  ProtocolKind `json:"protocol" yaml:"protocol"`
	Transport Transport    `json:"transport" yaml:"transport"`
	Port      int          `json:"port" yaml:"port"`
	Path      string       `json:"path" yaml:"path"`
	Backend   string       `json:"backend" yaml:"backend"`
	TLS       bool         `json:"tls" yaml:"tls"`
}

// StatusLevel is the coarse unit status
type StatusLevel string

const (
	StatusActive   StatusLevel = "active"
	StatusWaiting  StatusLevel = "waiting"
	StatusDegraded StatusLevel = "degraded"
	StatusBlocked  StatusLevel = "blocked"
)

// UnitStatus is the status surfaced after a pass
type UnitStatus struct {
	Level   StatusLevel `json:"level"`
	Message string      `json:"message,omitempty"`
}

// Worse reports whether s is more severe than other
func (s UnitStatus) Worse(other UnitStatus) bool {
	return severity(s.Level) > severity(other.Level)
}

func severity(l StatusLevel) int {
	switch l {
	case StatusWaiting:
		return 1
	case StatusDegraded:
		return 2
	case StatusBlocked:
		return 3
	default:
		return 0
	}
}

// StatusReport summarizes the unit after its most recent pass
type StatusReport struct {
	Unit         string                    `json:"unit"`
	Leader       bool                      `json:"leader"`
	Status       UnitStatus                `json:"status"`
	Version      uint64                    `json:"version"`
	Hash         string                    `json:"hash,omitempty"`
	AppliedAt    time.Time                 `json:"applied_at,omitempty"`
	LastPass     time.Time                 `json:"last_pass,omitempty"`
	Passes       uint64                    `json:"passes"`
	Relations    map[RelationKind]Presence `json:"relations,omitempty"`
	Reasons      map[RelationKind]string   `json:"reasons,omitempty"`
	Receivers    []ReceiverSpec            `json:"receivers,omitempty"`
	Routes       []string                  `json:"routes,omitempty"`
	TLS          bool                      `json:"tls"`
	CertNotAfter *time.Time                `json:"certificate_not_after,omitempty"`
	RenewPending bool                      `json:"renewal_pending,omitempty"`
}
