package remote

import (
	"fmt"
	"strings"
)

// Path is a slash-separated document or collection path,
// e.g. owners/{actor}/plans/{planId}/savedWords/{wordId}.
type Path string

// Collection names under an owner.
const (
	PlansCollection          = "plans"
	SavedWordsCollection     = "savedWords"
	CompletedWordsCollection = "completedWords"
)

// Plans returns the collection holding an owner's plans.
func Plans(owner string) Path {
	return Path("owners/" + owner + "/" + PlansCollection)
}

// Plan returns the document path of one plan.
func Plan(owner, planID string) Path {
	return Plans(owner).Child(planID)
}

// WordSet returns one of a plan's word collections.
func WordSet(owner, planID, set string) Path {
	return Plan(owner, planID).Child(set)
}

// SavedWord returns the document path marking a word saved.
func SavedWord(owner, planID, wordID string) Path {
	return WordSet(owner, planID, SavedWordsCollection).Child(wordID)
}

// CompletedWord returns the document path marking a word completed.
func CompletedWord(owner, planID, wordID string) Path {
	return WordSet(owner, planID, CompletedWordsCollection).Child(wordID)
}

// Child appends one segment.
func (p Path) Child(segment string) Path {
	return Path(string(p) + "/" + segment)
}

// Parent returns the path with its last segment removed.
func (p Path) Parent() Path {
	i := strings.LastIndex(string(p), "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// ID returns the last segment.
func (p Path) ID() string {
	i := strings.LastIndex(string(p), "/")
	return string(p[i+1:])
}

// IsDocument reports whether the path addresses a document rather than a
// collection. Documents have an even number of segments.
func (p Path) IsDocument() bool {
	return len(p.Segments())%2 == 0
}

// Segments splits the path.
func (p Path) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), "/")
}

// Validate checks that the path is well formed and rooted at owners/.
func (p Path) Validate() error {
	segs := p.Segments()
	if len(segs) < 2 || segs[0] != "owners" {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	for _, s := range segs {
		if s == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, p)
		}
	}
	return nil
}

func (p Path) String() string { return string(p) }
