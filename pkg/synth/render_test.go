package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/tempo-operator/pkg/config"
	"github.com/cuemby/tempo-operator/pkg/types"
)

func TestRenderLocal(t *testing.T) {
	cfg := config.Default()
	cfg.Receivers.Enabled = []string{"tempo-http", "otlp-grpc", "otlp-http", "zipkin", "jaeger-thrift-compact"}
	states := types.AllRelationStates{
		Peers: types.PresentState(types.PeerView{Units: []types.PeerUnit{{ID: "tempo/0", Address: "10.0.0.1"}}}),
	}
	wc := Synthesize(states, cfg)

	data, err := Render(wc, TLSFilesIn("/etc/tempo/tls"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))

	assert.Equal(t, 3200, doc["server"].(map[string]any)["http_listen_port"])

	receivers := doc["distributor"].(map[string]any)["receivers"].(map[string]any)
	otlp := receivers["otlp"].(map[string]any)["protocols"].(map[string]any)
	assert.Equal(t, "0.0.0.0:4317", otlp["grpc"].(map[string]any)["endpoint"])
	assert.Equal(t, "0.0.0.0:4318", otlp["http"].(map[string]any)["endpoint"])
	assert.Contains(t, receivers, "zipkin")
	jaeger := receivers["jaeger"].(map[string]any)["protocols"].(map[string]any)
	assert.Contains(t, jaeger, "thrift_compact")

	trace := doc["storage"].(map[string]any)["trace"].(map[string]any)
	assert.Equal(t, "local", trace["backend"])
	assert.Equal(t, "/traces", trace["local"].(map[string]any)["path"])
	assert.Equal(t, "/etc/tempo_wal", trace["wal"].(map[string]any)["path"])

	members := doc["memberlist"].(map[string]any)["join_members"].([]any)
	assert.Equal(t, []any{"10.0.0.1:7946"}, members)
}

func TestRenderLogForwarding(t *testing.T) {
	wc := types.WorkloadConfig{LogEndpoints: []string{"http://loki-a/push", "http://loki-b/push"}}

	data, err := RenderLogForwarding(wc)
	require.NoError(t, err)

	var layer logForwardingLayer
	require.NoError(t, yaml.Unmarshal(data, &layer))
	require.Len(t, layer.LogTargets, 2)
	assert.Equal(t, "http://loki-a/push", layer.LogTargets["loki-0"].Location)
	assert.Equal(t, "loki", layer.LogTargets["loki-1"].Type)

	data, err = RenderLogForwarding(types.WorkloadConfig{})
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &layer))
	assert.Empty(t, layer.LogTargets)
}
