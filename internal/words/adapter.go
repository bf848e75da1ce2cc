package words

import (
	"context"
	"time"

	"github.com/futurelex/lexsync/internal/cache"
	"github.com/futurelex/lexsync/internal/reconcile"
	"github.com/futurelex/lexsync/internal/remote"
)

// adapter stores a plan's words as two id sets locally and as two
// collections of marker documents remotely.
type adapter struct {
	owner  string
	planID string
}

var _ reconcile.Adapter[Mark] = adapter{}

func (a adapter) savedKey() string {
	return cache.WordSetKey(a.owner, a.planID, cache.SavedWords)
}

func (a adapter) completedKey() string {
	return cache.WordSetKey(a.owner, a.planID, cache.CompletedWords)
}

// Hydrate reads both id sets. The projection counts as cached when either
// set is; freshness is that of the older set.
func (a adapter) Hydrate(ctx context.Context, c cache.Cache) (reconcile.Projection[Mark], time.Time, bool, error) {
	proj := reconcile.NewProjection[Mark]()

	saved, foundSaved, err := c.ReadIDSet(ctx, a.savedKey())
	if err != nil {
		return proj, time.Time{}, false, err
	}
	completed, foundCompleted, err := c.ReadIDSet(ctx, a.completedKey())
	if err != nil {
		return proj, time.Time{}, false, err
	}
	if !foundSaved && !foundCompleted {
		return proj, time.Time{}, false, nil
	}

	for _, id := range saved.IDs {
		proj.Set(id, Mark{Tag: Saved})
	}
	for _, id := range completed.IDs {
		proj.Set(id, Mark{Tag: Completed})
	}

	freshness := saved.Freshness
	if !foundSaved || (foundCompleted && completed.Freshness.Before(freshness)) {
		freshness = completed.Freshness
	}
	return proj, freshness, true, nil
}

func (a adapter) Persist(ctx context.Context, c cache.Cache, p reconcile.Projection[Mark]) error {
	sets := split(p)
	if err := c.WriteIDSet(ctx, a.savedKey(), sets.Saved); err != nil {
		return err
	}
	return c.WriteIDSet(ctx, a.completedKey(), sets.Completed)
}

func (a adapter) Purge(ctx context.Context, c cache.Cache) error {
	return c.DeletePrefix(ctx, cache.PlanPrefix(a.owner, a.planID))
}

// Fetch lists both remote collections. A word present in both is
// reported as completed.
func (a adapter) Fetch(ctx context.Context, rs remote.Store) (reconcile.Projection[Mark], error) {
	saved, err := rs.List(ctx, remote.WordSet(a.owner, a.planID, remote.SavedWordsCollection))
	if err != nil {
		return reconcile.Projection[Mark]{}, err
	}
	completed, err := rs.List(ctx, remote.WordSet(a.owner, a.planID, remote.CompletedWordsCollection))
	if err != nil {
		return reconcile.Projection[Mark]{}, err
	}

	proj := reconcile.NewProjection[Mark]()
	for _, d := range saved {
		proj.Set(d.ID(), Mark{Tag: Saved, At: docTime(d.Data, "savedAt")})
	}
	for _, d := range completed {
		proj.Set(d.ID(), Mark{Tag: Completed, At: docTime(d.Data, "completedAt")})
	}
	return proj, nil
}

// Writes adds the word to the desired set, then removes it from the set the
// remote has it in. A rejected upsert therefore leaves the remote at the
// acknowledged value the engine rolls back to.
func (a adapter) Writes(id string, acked Mark, hasAcked bool, desired Mark, hasDesired bool) []remote.Write {
	if hasDesired && hasAcked && acked.Tag == desired.Tag {
		return nil
	}

	var writes []remote.Write
	if hasDesired {
		field := "savedAt"
		if desired.Tag == Completed {
			field = "completedAt"
		}
		writes = append(writes, remote.Write{
			Op:   remote.OpUpsert,
			Path: a.path(id, desired.Tag),
			Doc: remote.Doc{
				"wordId": id,
				field:    desired.At.UTC().Format(time.RFC3339Nano),
			},
		})
	}
	if hasAcked {
		writes = append(writes, remote.Write{Op: remote.OpDelete, Path: a.path(id, acked.Tag)})
	}
	return writes
}

func (adapter) Equal(a, b Mark) bool { return a.Tag == b.Tag }

func (a adapter) path(id string, tag Membership) remote.Path {
	if tag == Completed {
		return remote.CompletedWord(a.owner, a.planID, id)
	}
	return remote.SavedWord(a.owner, a.planID, id)
}

func split(p reconcile.Projection[Mark]) Sets {
	sets := Sets{Saved: []string{}, Completed: []string{}}
	for _, id := range p.IDs() {
		m, _ := p.Get(id)
		switch m.Tag {
		case Saved:
			sets.Saved = append(sets.Saved, id)
		case Completed:
			sets.Completed = append(sets.Completed, id)
		}
	}
	return sets
}

func docTime(d remote.Doc, field string) time.Time {
	switch v := d[field].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}
