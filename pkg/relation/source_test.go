package relation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tempo-operator/pkg/types"
)

func writeBag(t *testing.T, dir string, kind types.RelationKind, name, content string) {
	t.Helper()
	path := filepath.Join(dir, string(kind), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileSourceSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeBag(t, dir, types.RelationObjectStorage, "s3.yaml", "bucket: traces\nendpoint: https://s3.example\ncredentials-ref: secret:s3\n")
	writeBag(t, dir, types.RelationTracing, "b.yaml", "receivers: '[\"zipkin\"]'\n")
	writeBag(t, dir, types.RelationTracing, "a.yml", "receivers: '[\"otlp-http\"]'\n")
	writeBag(t, dir, types.RelationTracing, ".tmp-a.yaml", "ignored: true\n")
	writeBag(t, dir, types.RelationTracing, "notes.txt", "ignored")
	writeBag(t, dir, types.RelationIngress, "traefik.yaml", "external-host: [unterminated\n")

	snap, err := NewFileSource(dir).Snapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snap[types.RelationObjectStorage], 1)
	assert.Equal(t, "traces", snap[types.RelationObjectStorage][0].Data[KeyBucket])

	require.Len(t, snap[types.RelationTracing], 2)
	assert.Equal(t, "a", snap[types.RelationTracing][0].Source)
	assert.Equal(t, "b", snap[types.RelationTracing][1].Source)

	require.Len(t, snap[types.RelationIngress], 1)
	assert.NotEmpty(t, snap[types.RelationIngress][0].Data[KeyParseError])

	assert.Empty(t, snap[types.RelationCertificates])
}

func TestFileSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileSource(t.TempDir()).Snapshot(ctx)
	assert.Error(t, err)
}

func TestStaticSourceCopies(t *testing.T) {
	src := &StaticSource{Bags: Snapshot{
		types.RelationLogging: {{Source: "loki", Data: types.Databag{KeyEndpoint: "http://loki"}}},
	}}
	snap, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	snap.Add(types.RelationLogging, Bag{Source: "other"})
	assert.Len(t, src.Bags[types.RelationLogging], 1)
}
