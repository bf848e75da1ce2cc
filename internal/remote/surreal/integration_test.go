package surreal

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futurelex/lexsync/internal/remote"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// openTestStore connects to the server named by LEXSYNC_SURREAL_URL, e.g.
// ws://localhost:8000/rpc, in a fresh database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	url := os.Getenv("LEXSYNC_SURREAL_URL")
	if url == "" {
		t.Skip("LEXSYNC_SURREAL_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, Config{
		URL:       url,
		Namespace: getEnvOrDefault("LEXSYNC_SURREAL_NS", "lexsync_test"),
		Database:  fmt.Sprintf("store_%d", time.Now().UnixNano()),
		Username:  getEnvOrDefault("LEXSYNC_SURREAL_USER", "root"),
		Password:  getEnvOrDefault("LEXSYNC_SURREAL_PASS", "root"),
	})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestIntegration_Store(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	plan := remote.Plan("user-1", "plan_1")
	saved := remote.SavedWord("user-1", "plan_1", "ability-1")
	other := remote.SavedWord("user-1", "plan_1", "able-2")

	_, err := s.Get(ctx, plan)
	assert.ErrorIs(t, err, remote.ErrNotFound)

	require.NoError(t, s.Upsert(ctx, plan, remote.Doc{"name": "Turkish from English", "isActive": "true"}, false))
	require.NoError(t, s.Upsert(ctx, plan, remote.Doc{"isActive": "false"}, true))
	doc, err := s.Get(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, "Turkish from English", doc["name"], "merge keeps unset fields")
	assert.Equal(t, "false", doc["isActive"])

	require.NoError(t, s.Upsert(ctx, plan, remote.Doc{"name": "Renamed"}, false))
	doc, err = s.Get(ctx, plan)
	require.NoError(t, err)
	assert.NotContains(t, doc, "isActive", "replace drops unset fields")

	require.NoError(t, s.Upsert(ctx, saved, remote.Doc{"wordId": "ability-1"}, false))
	require.NoError(t, s.Upsert(ctx, other, remote.Doc{"wordId": "able-2"}, false))

	coll := remote.WordSet("user-1", "plan_1", remote.SavedWordsCollection)
	require.Eventually(t, func() bool {
		docs, err := s.List(ctx, coll)
		return err == nil && len(docs) == 2
	}, 5*time.Second, 50*time.Millisecond)

	docs, err := s.List(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, "able-2", docs[0].ID())
	assert.Equal(t, "ability-1", docs[1].ID())

	require.NoError(t, s.Delete(ctx, saved))
	require.NoError(t, s.Delete(ctx, saved), "deleting a missing document is not an error")
	_, err = s.Get(ctx, saved)
	assert.ErrorIs(t, err, remote.ErrNotFound)

	require.NoError(t, remote.Apply(ctx, s, remote.Write{
		Op:          remote.OpDelete,
		Path:        plan,
		Cascade:     []remote.Path{coll},
		CascadeDocs: []remote.Path{other},
	}))
	for _, p := range []remote.Path{plan, other} {
		_, err := s.Get(ctx, p)
		assert.ErrorIs(t, err, remote.ErrNotFound, p)
	}
}
