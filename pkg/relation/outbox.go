package relation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// Outbox holds the databags this unit publishes, one file per relation
// and name. Files are replaced atomically so a reader never sees a
// partially written bag.
type Outbox struct {
	Dir string
}

// NewOutbox returns an Outbox rooted at dir
func NewOutbox(dir string) *Outbox {
	return &Outbox{Dir: dir}
}

func (o *Outbox) path(kind types.RelationKind, name string) string {
	return filepath.Join(o.Dir, string(kind), FileName(name)+".yaml")
}

// Publish writes bag for kind under name. An unchanged bag is not rewritten
// and Publish reports whether a write happened.
func (o *Outbox) Publish(kind types.RelationKind, name string, bag types.Databag) (bool, error) {
	data, err := yaml.Marshal(bag)
	if err != nil {
		return false, fmt.Errorf("marshal %s databag: %w", kind, err)
	}

	path := o.path(kind, name)
	if existing, err := os.ReadFile(path); err == nil && string(existing) == string(data) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create outbox dir: %w", err)
	}
	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s databag: %w", kind, err)
	}
	return true, nil
}

// Read returns a previously published bag
func (o *Outbox) Read(kind types.RelationKind, name string) (types.Databag, error) {
	return readBag(o.path(kind, name))
}

// Remove deletes a published bag. Removing a missing bag is not an error.
func (o *Outbox) Remove(kind types.RelationKind, name string) error {
	err := os.Remove(o.path(kind, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s databag: %w", kind, err)
	}
	return nil
}
