package relation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/types"
)

// Watcher calls a trigger function whenever a databag file under the
// source directory changes
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	trigger func(reason string)
	logger  zerolog.Logger
}

// NewWatcher creates a watcher for dir. Relation subdirectories are created
// up front because fsnotify does not watch recursively.
func NewWatcher(dir string, trigger func(reason string)) (*Watcher, error) {
	for _, kind := range types.RelationKinds {
		if err := os.MkdirAll(filepath.Join(dir, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create relation dir: %w", err)
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	for _, kind := range types.RelationKinds {
		if err := fw.Add(filepath.Join(dir, string(kind))); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", kind, err)
		}
	}

	return &Watcher{
		dir:     dir,
		watcher: fw,
		trigger: trigger,
		logger:  log.WithComponent("relation-watcher"),
	}, nil
}

// Run processes file events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info().Str("dir", w.dir).Msg("watching relation databags")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") || !isYAML(name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			kind := filepath.Base(filepath.Dir(event.Name))
			w.logger.Debug().
				Str("relation", kind).
				Str("file", name).
				Str("op", event.Op.String()).
				Msg("databag changed")
			w.trigger("relation-changed:" + kind)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error().Err(err).Msg("file watcher error")
		}
	}
}
