package synth

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// MemberlistPort is the gossip port tempo peers join each other on
const MemberlistPort = 7946

// TLSFiles locates the TLS material referenced by the rendered config
type TLSFiles struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// TLSFilesIn returns the standard TLS file layout under dir
func TLSFilesIn(dir string) TLSFiles {
	return TLSFiles{
		CertFile: filepath.Join(dir, "tls.crt"),
		KeyFile:  filepath.Join(dir, "tls.key"),
		CAFile:   filepath.Join(dir, "ca.crt"),
	}
}

type tempoConfig struct {
	AuthEnabled   bool              `yaml:"auth_enabled"`
	SearchEnabled bool              `yaml:"search_enabled"`
	Server        serverConfig      `yaml:"server"`
	Distributor   distributorConfig `yaml:"distributor"`
	Ingester      ingesterConfig    `yaml:"ingester"`
	Compactor     compactorConfig   `yaml:"compactor"`
	Memberlist    *memberlistConfig `yaml:"memberlist,omitempty"`
	Storage       storageConfig     `yaml:"storage"`
}

type serverConfig struct {
	HTTPListenPort int        `yaml:"http_listen_port"`
	HTTPTLSConfig  *tlsConfig `yaml:"http_tls_config,omitempty"`
}

type tlsConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file,omitempty"`
}

type distributorConfig struct {
	Receivers receiversConfig `yaml:"receivers"`
}

type receiversConfig struct {
	Jaeger *protocolsConfig `yaml:"jaeger,omitempty"`
	OTLP   *protocolsConfig `yaml:"otlp,omitempty"`
	Zipkin *endpointConfig  `yaml:"zipkin,omitempty"`
}

type protocolsConfig struct {
	Protocols map[string]endpointConfig `yaml:"protocols"`
}

type endpointConfig struct {
	Endpoint string     `yaml:"endpoint"`
	TLS      *tlsConfig `yaml:"tls,omitempty"`
}

type ingesterConfig struct {
	TraceIdlePeriod  string `yaml:"trace_idle_period"`
	MaxBlockBytes    int    `yaml:"max_block_bytes"`
	MaxBlockDuration string `yaml:"max_block_duration"`
}

type compactorConfig struct {
	Compaction compactionConfig `yaml:"compaction"`
}

type compactionConfig struct {
	CompactionWindow        string `yaml:"compaction_window"`
	MaxCompactionObjects    int    `yaml:"max_compaction_objects"`
	BlockRetention          string `yaml:"block_retention"`
	CompactedBlockRetention string `yaml:"compacted_block_retention"`
	FlushSizeBytes          int    `yaml:"flush_size_bytes"`
}

type memberlistConfig struct {
	JoinMembers []string `yaml:"join_members"`
}

type storageConfig struct {
	Trace traceStorageConfig `yaml:"trace"`
}

type traceStorageConfig struct {
	Backend string       `yaml:"backend"`
	Local   *localConfig `yaml:"local,omitempty"`
	S3      *s3Config    `yaml:"s3,omitempty"`
	WAL     walConfig    `yaml:"wal"`
	Pool    poolConfig   `yaml:"pool"`
}

type localConfig struct {
	Path string `yaml:"path"`
}

type s3Config struct {
	Bucket   string `yaml:"bucket"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region,omitempty"`
	Insecure bool   `yaml:"insecure"`
}

type walConfig struct {
	Path string `yaml:"path"`
}

type poolConfig struct {
	MaxWorkers int `yaml:"max_workers"`
	QueueDepth int `yaml:"queue_depth"`
}

// receiver protocol names inside the otlp and jaeger receiver blocks
var protocolKeys = map[types.ProtocolKind]string{
	types.ProtocolOTLPGRPC:            "grpc",
	types.ProtocolOTLPHTTP:            "http",
	types.ProtocolJaegerGRPC:          "grpc",
	types.ProtocolJaegerThriftHTTP:    "thrift_http",
	types.ProtocolJaegerThriftCompact: "thrift_compact",
}

// Render produces the tempo configuration file for wc
func Render(wc types.WorkloadConfig, files TLSFiles) ([]byte, error) {
	var tls *tlsConfig
	if wc.TLS.Enabled {
		tls = &tlsConfig{CertFile: files.CertFile, KeyFile: files.KeyFile}
		if wc.TLS.Certificate != nil && wc.TLS.Certificate.CABundlePEM != "" {
			tls.CAFile = files.CAFile
		}
	}

	out := tempoConfig{
		AuthEnabled:   false,
		SearchEnabled: true,
		Server:        serverConfig{HTTPListenPort: wc.HTTPPort},
		Ingester: ingesterConfig{
			TraceIdlePeriod:  "10s",
			MaxBlockBytes:    100,
			MaxBlockDuration: "5m",
		},
		Compactor: compactorConfig{Compaction: compactionConfig{
			CompactionWindow:        "1h",
			MaxCompactionObjects:    1000000,
			BlockRetention:          "1h",
			CompactedBlockRetention: "10m",
			FlushSizeBytes:          5242880,
		}},
		Storage: storageConfig{Trace: traceStorageConfig{
			WAL:  walConfig{Path: wc.WALPath},
			Pool: poolConfig{MaxWorkers: 100, QueueDepth: 10000},
		}},
	}

	for _, r := range wc.Receivers {
		var rtls *tlsConfig
		if r.TLSRequired {
			rtls = tls
		}
		ep := endpointConfig{Endpoint: net.JoinHostPort("0.0.0.0", strconv.Itoa(r.Port)), TLS: rtls}

		switch r.Protocol {
		case types.ProtocolTempoHTTP:
			out.Server.HTTPListenPort = r.Port
			out.Server.HTTPTLSConfig = rtls
		case types.ProtocolOTLPGRPC, types.ProtocolOTLPHTTP:
			if out.Distributor.Receivers.OTLP == nil {
				out.Distributor.Receivers.OTLP = &protocolsConfig{Protocols: map[string]endpointConfig{}}
			}
			out.Distributor.Receivers.OTLP.Protocols[protocolKeys[r.Protocol]] = ep
		case types.ProtocolJaegerGRPC, types.ProtocolJaegerThriftHTTP, types.ProtocolJaegerThriftCompact:
			if out.Distributor.Receivers.Jaeger == nil {
				out.Distributor.Receivers.Jaeger = &protocolsConfig{Protocols: map[string]endpointConfig{}}
			}
			out.Distributor.Receivers.Jaeger.Protocols[protocolKeys[r.Protocol]] = ep
		case types.ProtocolZipkin:
			out.Distributor.Receivers.Zipkin = &ep
		default:
			return nil, fmt.Errorf("no render rule for receiver %s", r.Protocol)
		}
	}

	if len(wc.PeerMembers) > 0 {
		members := make([]string, 0, len(wc.PeerMembers))
		for _, addr := range wc.PeerMembers {
			members = append(members, net.JoinHostPort(addr, strconv.Itoa(MemberlistPort)))
		}
		out.Memberlist = &memberlistConfig{JoinMembers: members}
	}

	switch wc.Storage.Kind {
	case types.StorageS3:
		s3, err := renderS3(wc.Storage.S3)
		if err != nil {
			return nil, err
		}
		out.Storage.Trace.Backend = "s3"
		out.Storage.Trace.S3 = s3
	default:
		out.Storage.Trace.Backend = "local"
		out.Storage.Trace.Local = &localConfig{Path: wc.Storage.LocalPath}
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal tempo config: %w", err)
	}
	return data, nil
}

func renderS3(p *types.ObjectStoragePayload) (*s3Config, error) {
	if p == nil {
		return nil, fmt.Errorf("s3 backend without object storage settings")
	}
	u, err := url.Parse(p.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	return &s3Config{
		Bucket:   p.Bucket,
		Endpoint: u.Host,
		Region:   p.Region,
		Insecure: u.Scheme == "http",
	}, nil
}

type logForwardingLayer struct {
	Summary    string               `yaml:"summary"`
	LogTargets map[string]logTarget `yaml:"log-targets"`
}

type logTarget struct {
	Override string   `yaml:"override"`
	Type     string   `yaml:"type"`
	Location string   `yaml:"location"`
	Services []string `yaml:"services"`
}

// RenderLogForwarding produces the log forwarding layer that ships the
// workload's logs to every log push endpoint. With no endpoint every
// previously declared target is removed.
func RenderLogForwarding(wc types.WorkloadConfig) ([]byte, error) {
	layer := logForwardingLayer{
		Summary:    "tempo log forwarding",
		LogTargets: make(map[string]logTarget, len(wc.LogEndpoints)),
	}
	for i, ep := range wc.LogEndpoints {
		layer.LogTargets[fmt.Sprintf("loki-%d", i)] = logTarget{
			Override: "replace",
			Type:     "loki",
			Location: ep,
			Services: []string{"all"},
		}
	}

	data, err := yaml.Marshal(layer)
	if err != nil {
		return nil, fmt.Errorf("marshal log forwarding layer: %w", err)
	}
	return data, nil
}
