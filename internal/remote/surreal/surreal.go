// Package surreal implements remote.Store on SurrealDB.
//
// Every document lives in one table, docs, keyed by its full path. Each
// record carries its parent collection path so List is a single indexed
// query:
//
//	docs:⟨owners/a/plans/p1⟩ = { path, parent: "owners/a/plans", data: {...} }
//
// All statements are parameterized.
package surreal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/futurelex/lexsync/internal/remote"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

const table = "docs"

// Config holds connection settings.
type Config struct {
	URL       string // ws://localhost:8000/rpc
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Store is a remote.Store backed by SurrealDB.
type Store struct {
	db *surrealdb.DB
}

var _ remote.Store = (*Store)(nil)

type record struct {
	Path   string         `json:"path"`
	Parent string         `json:"parent"`
	Data   map[string]any `json:"data"`
}

// Open connects, signs in when credentials are set, and selects the
// namespace and database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	db, err := surrealdb.FromConnection(ctx, gorillaws.New(conf))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w: %w", remote.ErrUnavailable, err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return &Store{db: db}, nil
}

// Migrate defines the parent index. Safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	q := "DEFINE INDEX IF NOT EXISTS docs_parent ON TABLE docs COLUMNS parent"
	if _, err := surrealdb.Query[any](ctx, s.db, q, nil); err != nil {
		return fmt.Errorf("failed to define index: %w", err)
	}
	return nil
}

// Close closes the connection.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

// List implements remote.Store.
func (s *Store) List(ctx context.Context, collection remote.Path) ([]remote.Document, error) {
	q := "SELECT path, parent, data FROM docs WHERE parent = $parent ORDER BY path"
	res, err := surrealdb.Query[[]record](ctx, s.db, q, map[string]any{
		"parent": string(collection),
	})
	if err != nil {
		return nil, classify("list", collection, err)
	}

	var docs []remote.Document
	if res != nil && len(*res) > 0 {
		for _, r := range (*res)[0].Result {
			docs = append(docs, remote.Document{Path: remote.Path(r.Path), Data: remote.Doc(r.Data)})
		}
	}
	return docs, nil
}

// Get implements remote.Store.
func (s *Store) Get(ctx context.Context, path remote.Path) (remote.Doc, error) {
	q := "SELECT path, parent, data FROM type::thing($tb, $key)"
	res, err := surrealdb.Query[[]record](ctx, s.db, q, map[string]any{
		"tb":  table,
		"key": string(path),
	})
	if err != nil {
		return nil, classify("get", path, err)
	}

	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		return nil, fmt.Errorf("get %s: %w", path, remote.ErrNotFound)
	}
	return remote.Doc((*res)[0].Result[0].Data), nil
}

// Upsert implements remote.Store. Merge reads the current document and
// extends it client-side before writing the full record.
func (s *Store) Upsert(ctx context.Context, path remote.Path, doc remote.Doc, merge bool) error {
	data := map[string]any{}
	if merge {
		current, err := s.Get(ctx, path)
		switch {
		case err == nil:
			for k, v := range current {
				data[k] = v
			}
		case errors.Is(err, remote.ErrNotFound):
		default:
			return err
		}
	}
	for k, v := range doc {
		data[k] = v
	}

	q := "UPSERT type::thing($tb, $key) CONTENT $content"
	_, err := surrealdb.Query[any](ctx, s.db, q, map[string]any{
		"tb":  table,
		"key": string(path),
		"content": record{
			Path:   string(path),
			Parent: string(path.Parent()),
			Data:   data,
		},
	})
	if err != nil {
		return classify("upsert", path, err)
	}
	return nil
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, path remote.Path) error {
	q := "DELETE type::thing($tb, $key)"
	if _, err := surrealdb.Query[any](ctx, s.db, q, map[string]any{
		"tb":  table,
		"key": string(path),
	}); err != nil {
		return classify("delete", path, err)
	}
	return nil
}

// classify maps SurrealDB failures onto the remote error classes.
// Permission failures become rejections; everything else is retried.
func classify(op string, path remote.Path, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range rejectionMarkers {
		if strings.Contains(msg, marker) {
			return &remote.RejectionError{Path: path, Reason: err.Error()}
		}
	}

	return fmt.Errorf("%s %s: %w: %w", op, path, remote.ErrUnavailable, err)
}

var rejectionMarkers = []string{"permission", "not allowed", "iam error", "field validation"}
