// Package plans manages an owner's learning plans: one plan per language
// pair, at most one active, synchronized through the reconcile engine.
package plans

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/futurelex/lexsync/internal/lang"
	"github.com/futurelex/lexsync/internal/reconcile"
	"github.com/futurelex/lexsync/internal/remote"
)

// Progress tracks how far a plan has come.
type Progress struct {
	WordsLearned int `json:"wordsLearned"`
	CurrentLevel int `json:"currentLevel"`
	TotalWords   int `json:"totalWords"`
}

// Plan is one learning plan. Plans are created locally with a client id
// and reach the remote at owners/{OwnerID}/plans/{ID}.
type Plan struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	SourceLanguage string    `json:"sourceLanguage"`
	TargetLanguage string    `json:"targetLanguage"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"createdAt"`
	IsActive       bool      `json:"isActive"`
	Progress       Progress  `json:"progress"`

	// Cascade is set only on a deleted plan's pending mutation: word
	// documents the remote is known to hold under the plan.
	Cascade []remote.Path `json:"-" cbor:"cascade,omitempty"`
}

// NewID returns a fresh client-assigned plan id.
func NewID() string {
	return "plan_" + uuid.NewString()
}

// Validate checks if the Plan has valid field values.
func (p Plan) Validate() error {
	if p.ID == "" {
		return reconcile.Invalid("id", "is required")
	}
	if p.OwnerID == "" {
		return reconcile.Invalid("ownerId", "is required")
	}
	if err := lang.ValidatePair(p.SourceLanguage, p.TargetLanguage); err != nil {
		return reconcile.Invalid("languages", "%v", err)
	}
	if p.Name == "" {
		return reconcile.Invalid("name", "is required")
	}
	if len(p.Name) > 200 {
		return reconcile.Invalid("name", "must be 200 characters or less (got %d)", len(p.Name))
	}
	if p.CreatedAt.IsZero() {
		return reconcile.Invalid("createdAt", "is required")
	}
	return p.Progress.Validate()
}

// Validate checks progress counters.
func (p Progress) Validate() error {
	if p.WordsLearned < 0 {
		return reconcile.Invalid("progress.wordsLearned", "must be >= 0 (got %d)", p.WordsLearned)
	}
	if p.CurrentLevel < 1 {
		return reconcile.Invalid("progress.currentLevel", "must be >= 1 (got %d)", p.CurrentLevel)
	}
	if p.TotalWords < 0 {
		return reconcile.Invalid("progress.totalWords", "must be >= 0 (got %d)", p.TotalWords)
	}
	return nil
}

// Pair returns "source→target".
func (p Plan) Pair() string {
	return p.SourceLanguage + "→" + p.TargetLanguage
}

// Equal reports whether two plans carry the same data.
func Equal(a, b Plan) bool {
	return a.ID == b.ID &&
		a.OwnerID == b.OwnerID &&
		a.SourceLanguage == b.SourceLanguage &&
		a.TargetLanguage == b.TargetLanguage &&
		a.Name == b.Name &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.IsActive == b.IsActive &&
		a.Progress == b.Progress
}

// ToDoc converts the plan to its remote document.
func (p Plan) ToDoc() remote.Doc {
	return remote.Doc{
		"ownerId":        p.OwnerID,
		"sourceLanguage": p.SourceLanguage,
		"targetLanguage": p.TargetLanguage,
		"name":           p.Name,
		"createdAt":      p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"isActive":       p.IsActive,
		"progress": map[string]any{
			"wordsLearned": p.Progress.WordsLearned,
			"currentLevel": p.Progress.CurrentLevel,
			"totalWords":   p.Progress.TotalWords,
		},
	}
}

// FromDoc parses a remote plan document. Documents that do not describe a
// valid plan return a ValidationError.
func FromDoc(id string, d remote.Doc) (Plan, error) {
	p := Plan{ID: id, Progress: Progress{CurrentLevel: 1}}

	var ok bool
	if p.OwnerID, ok = d["ownerId"].(string); !ok {
		return Plan{}, reconcile.Invalid("ownerId", "missing or not a string")
	}
	if p.SourceLanguage, ok = d["sourceLanguage"].(string); !ok {
		return Plan{}, reconcile.Invalid("sourceLanguage", "missing or not a string")
	}
	if p.TargetLanguage, ok = d["targetLanguage"].(string); !ok {
		return Plan{}, reconcile.Invalid("targetLanguage", "missing or not a string")
	}
	p.Name, _ = d["name"].(string)
	if p.Name == "" {
		p.Name = lang.PlanName(p.SourceLanguage, p.TargetLanguage)
	}
	p.IsActive, _ = d["isActive"].(bool)

	switch v := d["createdAt"].(type) {
	case time.Time:
		p.CreatedAt = v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return Plan{}, reconcile.Invalid("createdAt", "%v", err)
		}
		p.CreatedAt = t
	default:
		return Plan{}, reconcile.Invalid("createdAt", "missing or not a timestamp")
	}
	p.CreatedAt = p.CreatedAt.UTC()

	if raw, ok := d["progress"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			if doc, isDoc := raw.(remote.Doc); isDoc {
				m, ok = doc, true
			}
		}
		if !ok {
			return Plan{}, reconcile.Invalid("progress", "not an object")
		}
		for field, dst := range map[string]*int{
			"wordsLearned": &p.Progress.WordsLearned,
			"currentLevel": &p.Progress.CurrentLevel,
			"totalWords":   &p.Progress.TotalWords,
		} {
			v, present := m[field]
			if !present {
				continue
			}
			n, err := toInt(v)
			if err != nil {
				return Plan{}, reconcile.Invalid("progress."+field, "%v", err)
			}
			*dst = n
		}
	}

	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// toInt accepts the numeric shapes JSON and CBOR decoders produce.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		if n > math.MaxInt32 {
			return 0, fmt.Errorf("value %d out of range", n)
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("value %v is not an integer", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
