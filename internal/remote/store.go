// Package remote defines the authoritative document store lexsync syncs
// against, and the write operations the reconcile engine sends to it.
//
// The store is hierarchical: owners/{actor}/plans/{planId} holds a plan
// document, and savedWords/{wordId} and completedWords/{wordId} beneath it
// mark word state. Implementations are eventually consistent; a List issued
// right after a write may not reflect it.
package remote

import (
	"context"
	"fmt"
	"slices"
)

// Doc is a schemaless document body.
type Doc map[string]any

// Document is one entry returned by List.
type Document struct {
	Path Path
	Data Doc
}

// ID returns the document id (last path segment).
func (d Document) ID() string { return d.Path.ID() }

// Store is the remote document store.
type Store interface {
	// List returns the documents directly inside collection.
	List(ctx context.Context, collection Path) ([]Document, error)

	// Get returns the document at path or ErrNotFound.
	Get(ctx context.Context, path Path) (Doc, error)

	// Upsert writes doc at path. With merge, fields not present in doc
	// are preserved.
	Upsert(ctx context.Context, path Path, doc Doc, merge bool) error

	// Delete removes the document at path. Deleting a missing document
	// is not an error.
	Delete(ctx context.Context, path Path) error
}

// Op is a write operation kind.
type Op int

const (
	OpUpsert Op = iota
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpUpsert:
		return "UPSERT"
	case OpDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Write is one remote operation.
type Write struct {
	Op    Op
	Path  Path
	Doc   Doc
	Merge bool

	// Cascade lists collections whose documents are deleted before Path.
	Cascade []Path

	// CascadeDocs are documents deleted before Path whether or not List
	// already shows them.
	CascadeDocs []Path
}

func (w Write) String() string {
	return w.Op.String() + " " + string(w.Path)
}

// Apply performs w against s.
func Apply(ctx context.Context, s Store, w Write) error {
	if err := w.Path.Validate(); err != nil {
		return err
	}

	switch w.Op {
	case OpUpsert:
		return s.Upsert(ctx, w.Path, w.Doc, w.Merge)
	case OpDelete:
		targets := slices.Clone(w.CascadeDocs)
		for _, coll := range w.Cascade {
			docs, err := s.List(ctx, coll)
			if err != nil {
				return fmt.Errorf("failed to list %s for cascade: %w", coll, err)
			}
			for _, d := range docs {
				targets = append(targets, d.Path)
			}
		}
		slices.Sort(targets)
		for _, p := range slices.Compact(targets) {
			if err := s.Delete(ctx, p); err != nil {
				return fmt.Errorf("failed to cascade delete %s: %w", p, err)
			}
		}
		return s.Delete(ctx, w.Path)
	default:
		return fmt.Errorf("unknown write op %v", w.Op)
	}
}
