package relation

import (
	"context"
	"sort"
	"strings"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// Bag is one databag received over a relation. Source is the remote
// application for application bags, or the unit for peer bags.
type Bag struct {
	Source string
	Data   types.Databag
}

// Snapshot is every databag currently visible, keyed by relation kind
type Snapshot map[types.RelationKind][]Bag

// Add appends a bag, keeping bags ordered by source
func (s Snapshot) Add(kind types.RelationKind, bag Bag) {
	bags := append(s[kind], bag)
	sort.SliceStable(bags, func(i, j int) bool { return bags[i].Source < bags[j].Source })
	s[kind] = bags
}

// Source delivers the current relation databags
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// StaticSource is a Source returning a fixed snapshot
type StaticSource struct {
	Bags Snapshot
}

// Snapshot returns a copy of the fixed snapshot
func (s *StaticSource) Snapshot(ctx context.Context) (Snapshot, error) {
	out := make(Snapshot, len(s.Bags))
	for kind, bags := range s.Bags {
		out[kind] = append([]Bag(nil), bags...)
	}
	return out, nil
}

// FileName maps a source name to the file stem it is stored under.
// Unit names like "tempo/0" are not valid file names.
func FileName(source string) string {
	return strings.ReplaceAll(source, "/", "-")
}
