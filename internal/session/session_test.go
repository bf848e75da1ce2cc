package session

import (
	"context"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futurelex/lexsync/internal/cache"
	"github.com/futurelex/lexsync/internal/plans"
	"github.com/futurelex/lexsync/internal/reconcile"
	"github.com/futurelex/lexsync/internal/remote"
	"github.com/futurelex/lexsync/internal/vocab"
	"github.com/futurelex/lexsync/internal/words"
)

const actor = "device_test"

const testCorpus = `
pairs:
  - source: en
    target: tr
    words:
      - {source: One, target: Bir, level: 1}
      - {source: Two, target: Iki, level: 1}
      - {source: Three, target: Uc, level: 2}
      - {source: Four, target: Dort, level: 2}
  - source: en
    target: de
    words:
      - {source: House, target: Haus}
`

func testConfig() *Config {
	discard := log.New(io.Discard, "", 0)
	return &Config{
		Engine: reconcile.Config{
			Debounce: time.Hour,
			Backoff:  reconcile.Backoff{Base: time.Hour, Max: time.Hour, Multiplier: 2},
			Logger:   discard,
		},
		PoolSize: 4,
		Logger:   discard,
	}
}

func testLibrary(t *testing.T) *vocab.Library {
	t.Helper()
	c, err := vocab.Parse([]byte(testCorpus), "yaml")
	require.NoError(t, err)
	return vocab.NewLibrary(c)
}

func start(t *testing.T, c cache.Cache, rs remote.Store) *Session {
	t.Helper()
	s, err := New(actor, c, rs, testLibrary(t), testConfig())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func wordWrites(ws []remote.Write) []remote.Write {
	var out []remote.Write
	for _, w := range ws {
		p := string(w.Path)
		if strings.Contains(p, "/"+remote.SavedWordsCollection+"/") || strings.Contains(p, "/"+remote.CompletedWordsCollection+"/") {
			out = append(out, w)
		}
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", cache.NewMemory(), remote.NewMemory(), nil, nil)
	assert.Error(t, err)
	_, err = New(actor, nil, remote.NewMemory(), nil, nil)
	assert.Error(t, err)
}

func TestCreatePlan_SecondPlanBecomesActive(t *testing.T) {
	rs := remote.NewMemory()
	s := start(t, cache.NewMemory(), rs)

	a, err := s.CreatePlan("en", "tr", "")
	require.NoError(t, err)
	b, err := s.CreatePlan("en", "de", "")
	require.NoError(t, err)

	// Before any acknowledgment.
	assert.Empty(t, rs.Writes())
	active, ok := s.Plans().Active()
	require.True(t, ok)
	assert.Equal(t, b.ID, active.ID)
	got, _ := s.Plans().Get(a.ID)
	assert.False(t, got.IsActive)

	assert.Equal(t, 4, a.Progress.TotalWords)
	assert.Equal(t, 1, b.Progress.TotalWords)
	assert.Equal(t, reconcile.StatusSyncing, s.Status())
}

func TestDeletePlan_DropsPendingWordMutations(t *testing.T) {
	ctx := context.Background()
	rs := remote.NewMemory()
	s := start(t, cache.NewMemory(), rs)

	_, err := s.CreatePlan("en", "tr", "")
	require.NoError(t, err)
	b, err := s.CreatePlan("en", "de", "")
	require.NoError(t, err)
	require.NoError(t, s.Sync(ctx))
	rs.ResetWrites()

	ws, err := s.Words(ctx, b.ID)
	require.NoError(t, err)
	require.NoError(t, ws.Save("house-1-0"))
	require.NoError(t, ws.Save("x"))
	require.NoError(t, ws.Complete("y"))

	var pendingWords int
	for _, p := range s.Pending() {
		if p.Scope == words.ScopeName(b.ID) {
			pendingWords++
		}
	}
	require.Equal(t, 3, pendingWords)

	require.NoError(t, s.Plans().Delete(b.ID))
	for _, p := range s.Pending() {
		assert.NotEqual(t, words.ScopeName(b.ID), p.Scope)
	}
	require.NoError(t, s.Flush(ctx))

	assert.Empty(t, wordWrites(rs.Writes()))
	_, err = rs.Get(ctx, remote.Plan(actor, b.ID))
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = s.Words(ctx, b.ID)
	assert.ErrorIs(t, err, plans.ErrNotFound)
}

func settled(t *testing.T, e interface{ State() reconcile.State }) {
	t.Helper()
	require.Eventually(t, func() bool { return e.State() == reconcile.Settled }, time.Second, 5*time.Millisecond)
}

func TestDeletePlan_RemovesWordsListDoesNotShowYet(t *testing.T) {
	ctx := context.Background()
	rs := remote.NewMemory(remote.WithListDelay(time.Hour))
	s := start(t, cache.NewMemory(), rs)
	settled(t, s.Plans().Engine())

	p, err := s.CreatePlan("en", "tr", "")
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	ws, err := s.Words(ctx, p.ID)
	require.NoError(t, err)
	settled(t, ws.Engine())
	require.NoError(t, ws.Save("one-1-0"))
	require.NoError(t, s.Flush(ctx))

	require.NoError(t, s.Plans().Delete(p.ID))
	require.NoError(t, s.Flush(ctx))

	_, err = rs.Get(ctx, remote.Plan(actor, p.ID))
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = rs.Get(ctx, remote.SavedWord(actor, p.ID, "one-1-0"))
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestDeletePlan_UnsentPlanStillRemovesFlushedWords(t *testing.T) {
	ctx := context.Background()
	rs := remote.NewMemory()
	s := start(t, cache.NewMemory(), rs)
	settled(t, s.Plans().Engine())

	p, err := s.CreatePlan("en", "tr", "")
	require.NoError(t, err)
	ws, err := s.Words(ctx, p.ID)
	require.NoError(t, err)
	settled(t, ws.Engine())
	require.NoError(t, ws.Save("two-1-1"))
	require.NoError(t, ws.Flush(ctx))
	_, err = rs.Get(ctx, remote.SavedWord(actor, p.ID, "two-1-1"))
	require.NoError(t, err)

	require.NoError(t, s.Plans().Delete(p.ID))
	require.NoError(t, s.Flush(ctx))

	_, err = rs.Get(ctx, remote.SavedWord(actor, p.ID, "two-1-1"))
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = rs.Get(ctx, remote.Plan(actor, p.ID))
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestCompletedCountUpdatesProgress(t *testing.T) {
	ctx := context.Background()
	s := start(t, cache.NewMemory(), remote.NewMemory())

	p, err := s.CreatePlan("en", "tr", "")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, p.ID, "one-1-0"))
	require.NoError(t, s.Complete(ctx, p.ID, "two-1-1"))

	got, _ := s.Plans().Get(p.ID)
	assert.Equal(t, 2, got.Progress.WordsLearned)

	require.NoError(t, s.Uncomplete(ctx, p.ID, "one-1-0"))
	got, _ = s.Plans().Get(p.ID)
	assert.Equal(t, 1, got.Progress.WordsLearned)
}

func TestPool_TracksCompletion(t *testing.T) {
	ctx := context.Background()
	s := start(t, cache.NewMemory(), remote.NewMemory())

	p, err := s.CreatePlan("en", "tr", "")
	require.NoError(t, err)
	pool, err := s.Pool(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 4, pool.Len())

	again, err := s.Pool(ctx, p.ID)
	require.NoError(t, err)
	assert.Same(t, pool, again)

	require.NoError(t, s.Complete(ctx, p.ID, "three-2-2"))
	assert.False(t, pool.Contains("three-2-2"))

	require.NoError(t, s.Uncomplete(ctx, p.ID, "three-2-2"))
	assert.True(t, pool.Contains("three-2-2"))
}

func TestRefillPools_AfterCorpusReload(t *testing.T) {
	ctx := context.Background()
	s := start(t, cache.NewMemory(), remote.NewMemory())

	p, err := s.CreatePlan("en", "tr", "")
	require.NoError(t, err)
	pool, err := s.Pool(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, p.ID, "one-1-0"))
	require.Equal(t, 3, pool.Len())

	c, err := vocab.Parse([]byte(strings.Replace(testCorpus,
		"      - {source: Four, target: Dort, level: 2}\n",
		"      - {source: Four, target: Dort, level: 2}\n      - {source: Five, target: Bes, level: 3}\n", 1)), "yaml")
	require.NoError(t, err)
	s.Library().Replace(c)
	s.RefillPools()

	assert.Equal(t, 4, pool.Len())
	assert.False(t, pool.Contains("one-1-0"))
}

func TestActiveWords(t *testing.T) {
	ctx := context.Background()
	s := start(t, cache.NewMemory(), remote.NewMemory())

	_, _, err := s.ActiveWords(ctx)
	assert.ErrorIs(t, err, ErrNoActivePlan)

	p, err := s.CreatePlan("en", "tr", "")
	require.NoError(t, err)
	active, ws, err := s.ActiveWords(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.ID, active.ID)
	assert.Equal(t, p.ID, ws.PlanID())
}

func TestStart_ResumesPendingWordScopes(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	rs := remote.NewMemory()

	first, err := New(actor, c, rs, testLibrary(t), testConfig())
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	p, err := first.CreatePlan("en", "tr", "")
	require.NoError(t, err)
	ws, err := first.Words(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, ws.Save("one-1-0"))
	first.Close()
	require.Empty(t, rs.Writes())

	second := start(t, c, rs)
	assert.Len(t, second.Pending(), 2)
	require.NoError(t, second.Flush(ctx))

	docs, err := rs.List(ctx, remote.WordSet(actor, p.ID, remote.SavedWordsCollection))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "one-1-0", docs[0].ID())
}

func TestSetOnline(t *testing.T) {
	ctx := context.Background()
	rs := remote.NewMemory()
	s := start(t, cache.NewMemory(), rs)

	p, err := s.CreatePlan("en", "tr", "")
	require.NoError(t, err)
	_, err = s.Words(ctx, p.ID)
	require.NoError(t, err)

	s.SetOnline(false)
	assert.False(t, s.Online())
	assert.Equal(t, reconcile.StatusOffline, s.Status())

	s.SetOnline(true)
	require.Eventually(t, func() bool {
		return s.Status() == reconcile.StatusSynced && len(s.Pending()) == 0
	}, 5*time.Second, 10*time.Millisecond)
	_, err = rs.Get(ctx, remote.Plan(actor, p.ID))
	assert.NoError(t, err)
}

func TestSync_ReportsRejection(t *testing.T) {
	ctx := context.Background()
	rs := remote.NewMemory()
	s := start(t, cache.NewMemory(), rs)

	p, err := s.CreatePlan("en", "tr", "")
	require.NoError(t, err)
	rs.Reject(remote.Plan(actor, p.ID), "permission denied")

	_ = s.Sync(ctx)
	assert.Equal(t, reconcile.StatusError, s.Status())
	assert.ErrorIs(t, s.LastError(), remote.ErrRejected)
	_, ok := s.Plans().Get(p.ID)
	assert.False(t, ok, "rejected plan creation rolls back")
}

func TestSubscribe(t *testing.T) {
	// Hydrate only, so no background fetch races the counts.
	s, err := New(actor, cache.NewMemory(), remote.NewMemory(), testLibrary(t), testConfig())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Plans().Hydrate(context.Background()))

	var calls atomic.Int32
	unsubscribe := s.Subscribe(func() { calls.Add(1) })

	_, err = s.CreatePlan("en", "tr", "")
	require.NoError(t, err)
	assert.Positive(t, calls.Load())

	unsubscribe()
	before := calls.Load()
	_, err = s.CreatePlan("en", "de", "")
	require.NoError(t, err)
	assert.Equal(t, before, calls.Load())
}

func TestRefreshScheduler(t *testing.T) {
	rs := remote.NewMemory()
	cfg := testConfig()
	cfg.Engine.TTL = time.Millisecond
	cfg.RefreshInterval = 20 * time.Millisecond

	s, err := New(actor, cache.NewMemory(), rs, testLibrary(t), cfg)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	before := rs.Reads()
	require.Eventually(t, func() bool { return rs.Reads() > before+1 }, 5*time.Second, 10*time.Millisecond)
}
