package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tempo-operator/pkg/types"
)

func TestOutboxPublish(t *testing.T) {
	out := NewOutbox(t.TempDir())
	bag := types.Databag{KeyUnit: "tempo/0", KeyAddress: "10.0.0.1", KeyConfigVersion: "3"}

	wrote, err := out.Publish(types.RelationPeers, "tempo/0", bag)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = out.Publish(types.RelationPeers, "tempo/0", bag)
	require.NoError(t, err)
	assert.False(t, wrote, "unchanged bag must not be rewritten")

	got, err := out.Read(types.RelationPeers, "tempo/0")
	require.NoError(t, err)
	assert.Equal(t, bag, got)

	require.NoError(t, out.Remove(types.RelationPeers, "tempo/0"))
	require.NoError(t, out.Remove(types.RelationPeers, "tempo/0"))
	_, err = out.Read(types.RelationPeers, "tempo/0")
	assert.Error(t, err)
}
