package flow

import (
	"context"

	"github.com/nhle/mailflow/internal/model"
)

// Snapshot is the read-only set of stored entries a flow checks
// uniqueness against.
type Snapshot []model.Entry

// Snapshots loads the stored entries. Flows call Load on every submission.
type Snapshots interface {
	Load(ctx context.Context) (Snapshot, error)
}

// Load returns s unchanged.
func (s Snapshot) Load(context.Context) (Snapshot, error) {
	return s, nil
}

// SnapshotFunc adapts a loader function such as entries.Manager.Snapshot.
type SnapshotFunc func(ctx context.Context) (Snapshot, error)

// Load calls f.
func (f SnapshotFunc) Load(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

func loadSnapshot(ctx context.Context, s Snapshots) (Snapshot, error) {
	if s == nil {
		return nil, nil
	}
	return s.Load(ctx)
}

// HasIdentity reports whether an entry already uses id.
func (s Snapshot) HasIdentity(id model.Identity) bool {
	for _, e := range s {
		if e.Identity().Equal(id) {
			return true
		}
	}
	return false
}

// HasSearchPair reports whether an entry other than excludeID already
// monitors folder with search.
func (s Snapshot) HasSearchPair(excludeID, folder, search string) bool {
	for _, e := range s {
		if e.ID == excludeID {
			continue
		}
		if e.Options.Folder == folder && e.Options.Search == search {
			return true
		}
	}
	return false
}

// Find returns the entry with the given ID.
func (s Snapshot) Find(id string) (model.Entry, bool) {
	for _, e := range s {
		if e.ID == id {
			return e, true
		}
	}
	return model.Entry{}, false
}
