package plans

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futurelex/lexsync/internal/cache"
	"github.com/futurelex/lexsync/internal/reconcile"
	"github.com/futurelex/lexsync/internal/remote"
)

const owner = "user-1"

type fixture struct {
	store  *Store
	cache  *cache.Memory
	remote *remote.Memory
	cfg    reconcile.Config
	ids    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}

	f := &fixture{
		cache:  cache.NewMemory(),
		remote: remote.NewMemory(),
		cfg: reconcile.Config{
			Debounce: time.Hour,
			Backoff:  reconcile.Backoff{Base: time.Hour, Max: time.Hour, Multiplier: 2},
			Now:      clock,
			Logger:   log.New(io.Discard, "", 0),
		},
	}
	f.store = f.open(t)
	return f
}

func (f *fixture) open(t *testing.T) *Store {
	t.Helper()
	s := New(owner, f.cfg, f.cache, f.remote)
	s.newID = func() string {
		f.ids++
		return fmt.Sprintf("plan_%d", f.ids)
	}
	require.NoError(t, s.Hydrate(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func TestCreate_SecondPlanBecomesActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.store.Create("en", "tr", "")
	require.NoError(t, err)
	b, err := f.store.Create("en", "de", "")
	require.NoError(t, err)

	// Before any acknowledgment.
	gotA, _ := f.store.Get(a.ID)
	gotB, _ := f.store.Get(b.ID)
	assert.False(t, gotA.IsActive)
	assert.True(t, gotB.IsActive)
	active, ok := f.store.Active()
	require.True(t, ok)
	assert.Equal(t, b.ID, active.ID)
	assert.Equal(t, "Turkish from English", a.Name)
	assert.Equal(t, 1, a.Progress.CurrentLevel)

	require.NoError(t, f.store.Flush(ctx))

	// Plan A was created and deactivated before the flush: one write.
	writes := f.remote.Writes()
	assert.Len(t, writes, 2)

	doc, err := f.remote.Get(ctx, remote.Plan(owner, a.ID))
	require.NoError(t, err)
	assert.Equal(t, false, doc["isActive"])
	doc, err = f.remote.Get(ctx, remote.Plan(owner, b.ID))
	require.NoError(t, err)
	assert.Equal(t, true, doc["isActive"])
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Create("en", "tr", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		source string
		target string
		want   error
	}{
		{"duplicate pair", "en", "tr", ErrDuplicatePair},
		{"same language", "en", "en", reconcile.ErrValidation},
		{"unsupported source", "xx", "tr", reconcile.ErrValidation},
		{"unsupported target", "en", "", reconcile.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.store.Create(tt.source, tt.target, "")
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, reconcile.ErrValidation)

			var verr reconcile.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
	assert.Len(t, f.store.Snapshot(), 1)
}

func TestSetActive(t *testing.T) {
	f := newFixture(t)
	a, _ := f.store.Create("en", "tr", "")
	_, _ = f.store.Create("en", "de", "")

	require.NoError(t, f.store.SetActive(a.ID))
	active, _ := f.store.Active()
	assert.Equal(t, a.ID, active.ID)

	n := 0
	for _, p := range f.store.Snapshot() {
		if p.IsActive {
			n++
		}
	}
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, f.store.SetActive("plan_missing"), ErrNotFound)
}

func TestDelete_ReassignsActiveAndFiresHook(t *testing.T) {
	f := newFixture(t)
	a, _ := f.store.Create("en", "tr", "")
	b, _ := f.store.Create("en", "de", "")

	var deleted []string
	f.store.OnDelete(func(id string) { deleted = append(deleted, id) })

	require.NoError(t, f.store.Delete(b.ID))

	assert.Equal(t, []string{b.ID}, deleted)
	_, ok := f.store.Get(b.ID)
	assert.False(t, ok)
	active, ok := f.store.Active()
	require.True(t, ok)
	assert.Equal(t, a.ID, active.ID)

	assert.ErrorIs(t, f.store.Delete(b.ID), ErrNotFound)
}

func TestDelete_UnsentPlanProducesNoWrites(t *testing.T) {
	f := newFixture(t)
	p, _ := f.store.Create("en", "tr", "")
	require.NoError(t, f.store.Delete(p.ID))

	assert.False(t, f.store.Engine().HasPending())
	require.NoError(t, f.store.Flush(context.Background()))
	assert.Empty(t, f.remote.Writes())
}

func TestDelete_CascadesWordState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, _ := f.store.Create("en", "tr", "")
	require.NoError(t, f.store.Flush(ctx))
	f.remote.Seed(remote.SavedWord(owner, p.ID, "ability-1"), remote.Doc{"savedAt": "x"})
	f.remote.Seed(remote.CompletedWord(owner, p.ID, "able-2"), remote.Doc{"completedAt": "x"})

	require.NoError(t, f.store.Delete(p.ID))
	require.NoError(t, f.store.Flush(ctx))

	_, err := f.remote.Get(ctx, remote.Plan(owner, p.ID))
	assert.ErrorIs(t, err, remote.ErrNotFound)
	saved, err := f.remote.List(ctx, remote.WordSet(owner, p.ID, remote.SavedWordsCollection))
	require.NoError(t, err)
	assert.Empty(t, saved)
	completed, err := f.remote.List(ctx, remote.WordSet(owner, p.ID, remote.CompletedWordsCollection))
	require.NoError(t, err)
	assert.Empty(t, completed)
}

func TestDelete_UnsentPlanSendsKnownWordDocs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	word := remote.SavedWord(owner, "plan_1", "ability-1")
	f.store.SetCascade(func(planID string) []remote.Path {
		return []remote.Path{remote.SavedWord(owner, planID, "ability-1")}
	})
	f.remote.Seed(word, remote.Doc{"savedAt": "x"})

	p, _ := f.store.Create("en", "tr", "")
	require.NoError(t, f.store.Delete(p.ID))
	assert.True(t, f.store.Engine().HasPending())
	require.NoError(t, f.store.Flush(ctx))

	_, err := f.remote.Get(ctx, word)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	for _, w := range f.remote.Writes() {
		assert.Equal(t, remote.OpDelete, w.Op, w.Path)
	}
}

func TestUpdateProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.store.Create("en", "tr", "")
	require.NoError(t, f.store.Flush(ctx))

	learned := 3
	require.NoError(t, f.store.UpdateProgress(p.ID, ProgressUpdate{WordsLearned: &learned}))
	got, _ := f.store.Get(p.ID)
	assert.Equal(t, 3, got.Progress.WordsLearned)
	assert.True(t, f.store.Engine().HasPending())

	require.NoError(t, f.store.Flush(ctx))
	require.NoError(t, f.store.UpdateProgress(p.ID, ProgressUpdate{WordsLearned: &learned}))
	assert.False(t, f.store.Engine().HasPending(), "unchanged progress must not queue a write")

	level := 0
	err := f.store.UpdateProgress(p.ID, ProgressUpdate{CurrentLevel: &level})
	assert.ErrorIs(t, err, reconcile.ErrValidation)

	assert.ErrorIs(t, f.store.UpdateProgress("plan_missing", ProgressUpdate{}), ErrNotFound)
}

func TestRefresh_SkipsMalformedDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	good := Plan{
		ID:             "plan_remote",
		OwnerID:        owner,
		SourceLanguage: "en",
		TargetLanguage: "fr",
		Name:           "French from English",
		CreatedAt:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		IsActive:       true,
		Progress:       Progress{CurrentLevel: 2, WordsLearned: 10, TotalWords: 500},
	}
	f.remote.Seed(remote.Plan(owner, good.ID), good.ToDoc())
	f.remote.Seed(remote.Plan(owner, "plan_broken"), remote.Doc{"name": "no languages"})

	require.NoError(t, f.store.Refresh(ctx))

	snap := f.store.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, Equal(good, snap[0]))
}

func TestPendingPlanSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.store.Create("en", "it", "Italiano")
	require.NoError(t, err)
	f.store.Close()

	reopened := f.open(t)
	got, ok := reopened.Get(p.ID)
	require.True(t, ok)
	assert.True(t, Equal(p, got))
	assert.True(t, reopened.Engine().HasPending())

	require.NoError(t, reopened.Flush(ctx))
	doc, err := f.remote.Get(ctx, remote.Plan(owner, p.ID))
	require.NoError(t, err)
	parsed, err := FromDoc(p.ID, doc)
	require.NoError(t, err)
	assert.True(t, Equal(p, parsed))
}
