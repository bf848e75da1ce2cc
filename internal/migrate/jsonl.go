// Package migrate imports word state from the pre-plan layout, where an
// account had a single list of saved and completed English→Turkish words.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/futurelex/lexsync/internal/plans"
	"github.com/futurelex/lexsync/internal/words"
)

// Legacy word kinds.
const (
	KindSaved     = "saved"
	KindCompleted = "completed"
)

// Default plan created for legacy data.
const (
	DefaultSource = "en"
	DefaultTarget = "tr"
)

// LegacyWord is one line of a legacy export.
type LegacyWord struct {
	Kind        string     `json:"kind"`
	ID          string     `json:"id,omitempty"`
	WordID      string     `json:"wordId,omitempty"`
	English     string     `json:"english,omitempty"`
	Turkish     string     `json:"turkish,omitempty"`
	SavedAt     *time.Time `json:"savedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Key returns the word id, preferring wordId over the document id.
func (w LegacyWord) Key() string {
	if w.WordID != "" {
		return w.WordID
	}
	return w.ID
}

// Options contains configuration for the migration
type Options struct {
	FromJSONL string // Input JSONL file path
	DryRun    bool   // Preview without writing
}

// Result contains statistics about the migration
type Result struct {
	PlanCreated       bool
	PlanID            string
	SavedMigrated     int
	CompletedMigrated int
	Skipped           string
	Errors            []string
}

// Target is where legacy words are imported.
type Target interface {
	Plans() *plans.Store
	CreatePlan(source, target, name string) (plans.Plan, error)
	Words(ctx context.Context, planID string) (*words.Store, error)
}

// FromJSONL reads a legacy export.
func FromJSONL(path string) ([]LegacyWord, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	var out []LegacyWord
	decoder := json.NewDecoder(file)
	lineNum := 0

	for {
		var w LegacyWord
		if err := decoder.Decode(&w); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++
		out = append(out, w)
	}
	return out, nil
}

// Migrate imports a legacy export into a new English→Turkish plan. Accounts
// that already have plans are skipped. Saved words are applied before
// completed ones, so a word in both lists ends up completed.
func Migrate(ctx context.Context, t Target, opts Options) (*Result, error) {
	result := &Result{}

	legacy, err := FromJSONL(opts.FromJSONL)
	if err != nil {
		return nil, err
	}

	if err := t.Plans().Refresh(ctx); err != nil {
		return nil, fmt.Errorf("cannot check existing plans: %w", err)
	}
	if len(t.Plans().Snapshot()) > 0 {
		result.Skipped = "account already has plans"
		return result, nil
	}

	var saved, completed []LegacyWord
	for _, w := range legacy {
		switch w.Kind {
		case KindSaved:
			saved = append(saved, w)
		case KindCompleted:
			completed = append(completed, w)
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("word %q: unknown kind %q", w.Key(), w.Kind))
		}
	}
	if len(saved) == 0 && len(completed) == 0 {
		result.Skipped = "no legacy data found"
		return result, nil
	}

	if opts.DryRun {
		result.SavedMigrated = countValid(saved, result)
		result.CompletedMigrated = countValid(completed, result)
		return result, nil
	}

	plan, err := t.CreatePlan(DefaultSource, DefaultTarget, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create default plan: %w", err)
	}
	result.PlanCreated = true
	result.PlanID = plan.ID

	ws, err := t.Words(ctx, plan.ID)
	if err != nil {
		return result, fmt.Errorf("failed to open words of %s: %w", plan.ID, err)
	}

	for _, w := range saved {
		if err := ws.Save(w.Key()); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("saved word %q: %v", w.Key(), err))
			continue
		}
		result.SavedMigrated++
	}
	for _, w := range completed {
		if err := ws.Complete(w.Key()); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("completed word %q: %v", w.Key(), err))
			continue
		}
		result.CompletedMigrated++
	}
	return result, nil
}

func countValid(list []LegacyWord, result *Result) int {
	n := 0
	for _, w := range list {
		if err := words.ValidateID(w.Key()); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("word %q: %v", w.Key(), err))
			continue
		}
		n++
	}
	return n
}
