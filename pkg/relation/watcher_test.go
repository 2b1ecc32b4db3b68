package relation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/tempo-operator/pkg/types"
)

func TestWatcherTriggersOnChange(t *testing.T) {
	dir := t.TempDir()
	reasons := make(chan string, 10)

	w, err := NewWatcher(dir, func(reason string) { reasons <- reason })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	path := filepath.Join(dir, string(types.RelationIngress), "traefik.yaml")
	require.NoError(t, os.WriteFile(path, []byte("external-host: tempo.example.com\n"), 0o644))

	select {
	case reason := <-reasons:
		require.Equal(t, "relation-changed:ingress", reason)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not trigger")
	}
}
