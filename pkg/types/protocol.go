package types

import (
	"sort"
)

// ProtocolKind is the closed set of trace receiver protocols
type ProtocolKind string

const (
	ProtocolTempoHTTP           ProtocolKind = "tempo-http"
	ProtocolOTLPGRPC            ProtocolKind = "otlp-grpc"
	ProtocolOTLPHTTP            ProtocolKind = "otlp-http"
	ProtocolZipkin              ProtocolKind = "zipkin"
	ProtocolJaegerThriftHTTP    ProtocolKind = "jaeger-thrift-http"
	ProtocolJaegerGRPC          ProtocolKind = "jaeger-grpc"
	ProtocolJaegerThriftCompact ProtocolKind = "jaeger-thrift-compact"
)

// Transport is the wire transport of a receiver
type Transport string

const (
	TransportHTTP Transport = "http"
	TransportGRPC Transport = "grpc"
	TransportUDP  Transport = "udp"
)

// ProtocolInfo describes a receiver protocol
type ProtocolInfo struct {
	DefaultPort int
	Path        string
	Transport   Transport
	TLSCapable  bool
}

// Protocols maps every supported protocol to its properties.
// Adding a protocol is an edit to this table.
var Protocols = map[ProtocolKind]ProtocolInfo{
	ProtocolTempoHTTP:           {DefaultPort: 3200, Path: "/", Transport: TransportHTTP, TLSCapable: true},
	ProtocolOTLPGRPC:            {DefaultPort: 4317, Path: "/", Transport: TransportGRPC, TLSCapable: true},
	ProtocolOTLPHTTP:            {DefaultPort: 4318, Path: "/v1/traces", Transport: TransportHTTP, TLSCapable: true},
	ProtocolZipkin:              {DefaultPort: 9411, Path: "/api/v2/spans", Transport: TransportHTTP, TLSCapable: true},
	ProtocolJaegerThriftHTTP:    {DefaultPort: 14268, Path: "/api/traces", Transport: TransportHTTP, TLSCapable: true},
	ProtocolJaegerGRPC:          {DefaultPort: 14250, Path: "/", Transport: TransportGRPC, TLSCapable: true},
	ProtocolJaegerThriftCompact: {DefaultPort: 6831, Path: "", Transport: TransportUDP, TLSCapable: false},
}

// DefaultReceivers is the receiver set enabled without any configuration
var DefaultReceivers = []ProtocolKind{
	ProtocolTempoHTTP,
	ProtocolOTLPGRPC,
	ProtocolOTLPHTTP,
	ProtocolZipkin,
}

// Lookup returns the protocol info and whether the protocol is known
func (p ProtocolKind) Lookup() (ProtocolInfo, bool) {
	info, ok := Protocols[p]
	return info, ok
}

// Valid reports whether p is in the protocol table
func (p ProtocolKind) Valid() bool {
	_, ok := Protocols[p]
	return ok
}

// SortProtocols sorts protocol kinds in place by name
func SortProtocols(ps []ProtocolKind) {
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
}

// SortedProtocols returns the protocol table keys in name order
func SortedProtocols() []ProtocolKind {
	out := make([]ProtocolKind, 0, len(Protocols))
	for p := range Protocols {
		out = append(out, p)
	}
	SortProtocols(out)
	return out
}
