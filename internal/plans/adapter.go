package plans

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/futurelex/lexsync/internal/cache"
	"github.com/futurelex/lexsync/internal/reconcile"
	"github.com/futurelex/lexsync/internal/remote"
)

// adapter maps plans onto the cache snapshot cache:{owner}:plans and the
// remote collection owners/{owner}/plans.
type adapter struct {
	owner  string
	logger *log.Logger
}

var _ reconcile.Adapter[Plan] = adapter{}

func (a adapter) Hydrate(ctx context.Context, c cache.Cache) (reconcile.Projection[Plan], time.Time, bool, error) {
	var cached []Plan
	proj := reconcile.NewProjection[Plan]()
	freshness, found, err := c.ReadSnapshot(ctx, cache.PlansKey(a.owner), &cached)
	if err != nil || !found {
		return proj, freshness, found, err
	}
	for _, p := range cached {
		proj.Set(p.ID, p)
	}
	return proj, freshness, true, nil
}

func (a adapter) Persist(ctx context.Context, c cache.Cache, p reconcile.Projection[Plan]) error {
	plans := p.Values()
	if plans == nil {
		plans = []Plan{}
	}
	return c.WriteSnapshot(ctx, cache.PlansKey(a.owner), plans)
}

func (a adapter) Purge(ctx context.Context, c cache.Cache) error {
	return c.Delete(ctx, cache.PlansKey(a.owner))
}

// Fetch lists the owner's plans ordered by creation time. Documents that
// fail to parse are skipped.
func (a adapter) Fetch(ctx context.Context, rs remote.Store) (reconcile.Projection[Plan], error) {
	docs, err := rs.List(ctx, remote.Plans(a.owner))
	if err != nil {
		return reconcile.Projection[Plan]{}, err
	}

	var parsed []Plan
	for _, d := range docs {
		p, err := FromDoc(d.ID(), d.Data)
		if err != nil {
			a.logger.Printf("WARNING: skipping malformed plan %s: %v", d.Path, err)
			continue
		}
		parsed = append(parsed, p)
	}
	sort.SliceStable(parsed, func(i, j int) bool {
		if !parsed[i].CreatedAt.Equal(parsed[j].CreatedAt) {
			return parsed[i].CreatedAt.Before(parsed[j].CreatedAt)
		}
		return parsed[i].ID < parsed[j].ID
	})

	proj := reconcile.NewProjection[Plan]()
	for _, p := range parsed {
		proj.Set(p.ID, p)
	}
	return proj, nil
}

// Writes upserts changed plans with merge semantics. Deleting a plan also
// deletes its word documents: those listed by the remote and those the
// deleted plan carries in Cascade, which List may not show yet. The
// cascade is sent even for a plan the remote never acknowledged.
func (a adapter) Writes(id string, acked Plan, hasAcked bool, desired Plan, hasDesired bool) []remote.Write {
	path := remote.Plan(a.owner, id)
	if hasDesired {
		if hasAcked && Equal(acked, desired) {
			return nil
		}
		return []remote.Write{{Op: remote.OpUpsert, Path: path, Doc: desired.ToDoc(), Merge: true}}
	}
	if !hasAcked && len(desired.Cascade) == 0 {
		return nil
	}
	return []remote.Write{{
		Op:   remote.OpDelete,
		Path: path,
		Cascade: []remote.Path{
			remote.WordSet(a.owner, id, remote.SavedWordsCollection),
			remote.WordSet(a.owner, id, remote.CompletedWordsCollection),
		},
		CascadeDocs: desired.Cascade,
	}}
}

func (adapter) Equal(a, b Plan) bool { return Equal(a, b) }
