package words

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futurelex/lexsync/internal/cache"
	"github.com/futurelex/lexsync/internal/reconcile"
	"github.com/futurelex/lexsync/internal/remote"
)

const (
	owner  = "user-1"
	planID = "plan_1"
)

type fixture struct {
	store  *Store
	cache  *cache.Memory
	remote *remote.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cache:  cache.NewMemory(),
		remote: remote.NewMemory(),
	}
	cfg := reconcile.Config{
		Debounce: time.Hour,
		Backoff:  reconcile.Backoff{Base: time.Hour, Max: time.Hour, Multiplier: 2},
		Logger:   log.New(io.Discard, "", 0),
	}
	f.store = New(owner, planID, cfg, f.cache, f.remote)
	require.NoError(t, f.store.Hydrate(context.Background()))
	t.Cleanup(f.store.Close)
	return f
}

func (f *fixture) remoteIDs(t *testing.T, set string) []string {
	t.Helper()
	docs, err := f.remote.List(context.Background(), remote.WordSet(owner, planID, set))
	require.NoError(t, err)
	ids := []string{}
	for _, d := range docs {
		ids = append(ids, d.ID())
	}
	return ids
}

func TestMutualExclusivity(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.store.Save("ability-1"))
	assert.Equal(t, Saved, f.store.Membership("ability-1"))

	require.NoError(t, f.store.Complete("ability-1"))
	assert.Equal(t, Completed, f.store.Membership("ability-1"))
	snap := f.store.Snapshot()
	assert.Empty(t, snap.Saved)
	assert.Equal(t, []string{"ability-1"}, snap.Completed)

	require.NoError(t, f.store.Save("ability-1"))
	snap = f.store.Snapshot()
	assert.Equal(t, []string{"ability-1"}, snap.Saved)
	assert.Empty(t, snap.Completed)
}

func TestSavedThenCompleted_OnlyCompletedReachesRemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Save("ability-1"))
	require.NoError(t, f.store.Complete("ability-1"))
	require.NoError(t, f.store.Flush(ctx))

	assert.Empty(t, f.remoteIDs(t, remote.SavedWordsCollection))
	assert.Equal(t, []string{"ability-1"}, f.remoteIDs(t, remote.CompletedWordsCollection))
	assert.Len(t, f.remote.Writes(), 1)
}

func TestCompletingAcknowledgedSavedWordMovesIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Save("ability-1"))
	require.NoError(t, f.store.Flush(ctx))
	require.Equal(t, []string{"ability-1"}, f.remoteIDs(t, remote.SavedWordsCollection))

	require.NoError(t, f.store.Complete("ability-1"))
	require.NoError(t, f.store.Flush(ctx))

	assert.Empty(t, f.remoteIDs(t, remote.SavedWordsCollection))
	assert.Equal(t, []string{"ability-1"}, f.remoteIDs(t, remote.CompletedWordsCollection))

	writes := f.remote.Writes()
	require.Len(t, writes, 3)
	assert.Equal(t, remote.OpUpsert, writes[1].Op)
	assert.Equal(t, remote.CompletedWord(owner, planID, "ability-1"), writes[1].Path)
	assert.Equal(t, remote.OpDelete, writes[2].Op)
	assert.Equal(t, remote.SavedWord(owner, planID, "ability-1"), writes[2].Path)
}

func TestRejectedMove_KeepsAcknowledgedRemoteDoc(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Save("ability-1"))
	require.NoError(t, f.store.Flush(ctx))

	f.remote.Reject(remote.WordSet(owner, planID, remote.CompletedWordsCollection), "read only")
	require.NoError(t, f.store.Complete("ability-1"))
	assert.ErrorIs(t, f.store.Flush(ctx), remote.ErrRejected)

	assert.Equal(t, Saved, f.store.Membership("ability-1"))
	_, err := f.remote.Get(ctx, remote.SavedWord(owner, planID, "ability-1"))
	assert.NoError(t, err)
	_, err = f.remote.Get(ctx, remote.CompletedWord(owner, planID, "ability-1"))
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestSaveUnsaveSave_OneRemoteWrite(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.store.Save("w"))
	require.NoError(t, f.store.Unsave("w"))
	require.NoError(t, f.store.Save("w"))
	require.NoError(t, f.store.Flush(context.Background()))

	writes := f.remote.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, remote.OpUpsert, writes[0].Op)
	assert.Equal(t, remote.SavedWord(owner, planID, "w"), writes[0].Path)
}

func TestUnsaveIgnoresCompletedWord(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.store.Complete("w"))
	require.NoError(t, f.store.Unsave("w"))
	assert.Equal(t, Completed, f.store.Membership("w"))

	require.NoError(t, f.store.Uncomplete("w"))
	assert.Equal(t, None, f.store.Membership("w"))
}

func TestToggle(t *testing.T) {
	f := newFixture(t)

	m, err := f.store.ToggleSave("w")
	require.NoError(t, err)
	assert.Equal(t, Saved, m)

	m, err = f.store.ToggleComplete("w")
	require.NoError(t, err)
	assert.Equal(t, Completed, m)

	m, err = f.store.ToggleComplete("w")
	require.NoError(t, err)
	assert.Equal(t, None, m)
	assert.Equal(t, None, f.store.Membership("w"))
}

func TestInvalidWordID(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.store.Save(""), reconcile.ErrValidation)
	assert.ErrorIs(t, f.store.Complete("a/b"), reconcile.ErrValidation)
	_, err := f.store.ToggleSave("a b")
	assert.ErrorIs(t, err, reconcile.ErrValidation)
}

func TestRefresh_CompletedWinsOverlap(t *testing.T) {
	f := newFixture(t)
	f.remote.Seed(remote.SavedWord(owner, planID, "both"), remote.Doc{"savedAt": "2026-01-01T00:00:00Z"})
	f.remote.Seed(remote.CompletedWord(owner, planID, "both"), remote.Doc{"completedAt": "2026-01-02T00:00:00Z"})
	f.remote.Seed(remote.SavedWord(owner, planID, "only-saved"), remote.Doc{})

	require.NoError(t, f.store.Refresh(context.Background()))

	assert.Equal(t, Completed, f.store.Membership("both"))
	assert.Equal(t, Saved, f.store.Membership("only-saved"))
	m, _ := f.store.Engine().Get("both")
	assert.True(t, m.At.Equal(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)), "At = %v", m.At)
}

func TestHydrate_FromCachedSets(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	require.NoError(t, c.WriteIDSet(ctx, cache.WordSetKey(owner, planID, cache.SavedWords), []string{"a", "b"}))
	require.NoError(t, c.WriteIDSet(ctx, cache.WordSetKey(owner, planID, cache.CompletedWords), []string{"c"}))

	rs := remote.NewMemory()
	s := New(owner, planID, reconcile.Config{Logger: log.New(io.Discard, "", 0)}, c, rs)
	defer s.Close()
	require.NoError(t, s.Hydrate(ctx))

	snap := s.Snapshot()
	assert.Equal(t, []string{"a", "b"}, snap.Saved)
	assert.Equal(t, []string{"c"}, snap.Completed)
	assert.Equal(t, 0, rs.Reads())
}

func TestOnCompletedChange(t *testing.T) {
	f := newFixture(t)

	var counts []int
	f.store.OnCompletedChange(func(plan string, n int) {
		assert.Equal(t, planID, plan)
		counts = append(counts, n)
	})

	require.NoError(t, f.store.Complete("a"))
	require.NoError(t, f.store.Save("b"))
	require.NoError(t, f.store.Complete("b"))
	require.NoError(t, f.store.Uncomplete("a"))

	assert.Equal(t, []int{1, 2, 1}, counts)
}

func TestDiscard_DropsPendingWordMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Save("a"))
	require.NoError(t, f.store.Save("b"))
	require.NoError(t, f.store.Complete("c"))
	require.Len(t, f.store.Engine().Pending(), 3)

	require.NoError(t, f.store.Discard(ctx))

	records, err := f.cache.ListPending(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, records)
	_, found, err := f.cache.ReadIDSet(ctx, cache.WordSetKey(owner, planID, cache.SavedWords))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, f.remote.Writes())
}
