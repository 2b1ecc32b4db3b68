package relation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// FileSource reads databags from <Dir>/<relation>/<source>.yaml.
// A missing relation directory means no provider is related.
type FileSource struct {
	Dir string
}

// NewFileSource returns a FileSource rooted at dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

// Snapshot reads every databag file. A file that cannot be parsed is
// delivered as a bag carrying only KeyParseError so the normalizer reports
// the relation Invalid instead of the pass failing.
func (s *FileSource) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := make(Snapshot)
	for _, kind := range types.RelationKinds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := filepath.Join(s.Dir, string(kind))
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, types.NewTransient("read relation "+string(kind), err)
		}

		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") || !isYAML(name) {
				continue
			}
			source := strings.TrimSuffix(name, filepath.Ext(name))
			data, err := readBag(filepath.Join(dir, name))
			if err != nil {
				data = types.Databag{KeyParseError: err.Error()}
			}
			snap.Add(kind, Bag{Source: source, Data: data})
		}
	}
	return snap, nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

func readBag(path string) (types.Databag, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	bag := types.Databag{}
	if err := yaml.Unmarshal(raw, &bag); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return bag, nil
}
