// Package vocab holds the static word lists studied by a plan, keyed by
// language pair.
//
// Corpus files list pairs of words:
//
//	pairs:
//	  - source: en
//	    target: tr
//	    words:
//	      - {source: Ability, target: Yetenek, example: "...", type: noun, level: 1}
//
// JSON, YAML and TOML files share this layout. XLSX workbooks hold one sheet
// per pair named "en-tr" with the columns source, target, example, type,
// level and pronunciation after a header row.
package vocab

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Word is one flashcard.
type Word struct {
	ID             string `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	SourceText     string `json:"source" yaml:"source" toml:"source"`
	TargetText     string `json:"target" yaml:"target" toml:"target"`
	Example        string `json:"example,omitempty" yaml:"example,omitempty" toml:"example,omitempty"`
	Type           string `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Level          int    `json:"level" yaml:"level" toml:"level"`
	Pronunciation  string `json:"pronunciation,omitempty" yaml:"pronunciation,omitempty" toml:"pronunciation,omitempty"`
	SourceLanguage string `json:"-" yaml:"-" toml:"-"`
	TargetLanguage string `json:"-" yaml:"-" toml:"-"`
}

// ReversedSuffix marks ids of words served from the reverse pair.
const ReversedSuffix = "-reversed"

var idSafe = strings.NewReplacer(" ", "_", "/", "_")

// Corpus is an immutable set of word lists.
type Corpus struct {
	pairs map[string][]Word
}

func pairKey(source, target string) string {
	return source + "-" + target
}

// NewCorpus creates an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{pairs: make(map[string][]Word)}
}

// add appends words of a pair, assigning ids of the form
// "{lower(source)}-{level}-{index}" where missing.
func (c *Corpus) add(source, target string, words []Word) error {
	if source == "" || target == "" {
		return fmt.Errorf("pair needs source and target languages")
	}
	key := pairKey(source, target)
	existing := c.pairs[key]
	seen := make(map[string]bool, len(existing))
	for _, w := range existing {
		seen[w.ID] = true
	}

	for _, w := range words {
		if w.SourceText == "" || w.TargetText == "" {
			return fmt.Errorf("%s: word %d needs source and target text", key, len(existing))
		}
		if w.Level < 1 {
			w.Level = 1
		}
		if w.ID == "" {
			w.ID = fmt.Sprintf("%s-%d-%d", idSafe.Replace(strings.ToLower(w.SourceText)), w.Level, len(existing))
		}
		if seen[w.ID] {
			return fmt.Errorf("%s: duplicate word id %q", key, w.ID)
		}
		seen[w.ID] = true
		w.SourceLanguage, w.TargetLanguage = source, target
		existing = append(existing, w)
	}
	c.pairs[key] = existing
	return nil
}

// Pairs returns the pairs with words, sorted.
func (c *Corpus) Pairs() []string {
	out := make([]string, 0, len(c.pairs))
	for k, words := range c.pairs {
		if len(words) > 0 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Words returns the words for source→target, harder levels first. When
// only the reverse pair exists its words are swapped and their ids get
// ReversedSuffix.
func (c *Corpus) Words(source, target string) []Word {
	var out []Word
	if direct := c.pairs[pairKey(source, target)]; len(direct) > 0 {
		out = append(out, direct...)
	} else if reverse := c.pairs[pairKey(target, source)]; len(reverse) > 0 {
		out = make([]Word, 0, len(reverse))
		for _, w := range reverse {
			w.ID += ReversedSuffix
			w.SourceText, w.TargetText = w.TargetText, w.SourceText
			w.SourceLanguage, w.TargetLanguage = source, target
			out = append(out, w)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Level > out[j].Level })
	return out
}

// IDs returns the word ids for a pair in Words order.
func (c *Corpus) IDs(source, target string) []string {
	words := c.Words(source, target)
	ids := make([]string, len(words))
	for i, w := range words {
		ids[i] = w.ID
	}
	return ids
}

// Count returns the number of words available for a pair.
func (c *Corpus) Count(source, target string) int {
	if n := len(c.pairs[pairKey(source, target)]); n > 0 {
		return n
	}
	return len(c.pairs[pairKey(target, source)])
}

// Lookup returns the word with id for a pair.
func (c *Corpus) Lookup(source, target, id string) (Word, bool) {
	for _, w := range c.Words(source, target) {
		if w.ID == id {
			return w, true
		}
	}
	return Word{}, false
}

// Library is a swappable reference to the current corpus, so a reload is
// visible to every reader at once.
type Library struct {
	current atomic.Pointer[Corpus]
}

// NewLibrary creates a library serving c.
func NewLibrary(c *Corpus) *Library {
	l := &Library{}
	l.current.Store(c)
	return l
}

// Corpus returns the current corpus.
func (l *Library) Corpus() *Corpus { return l.current.Load() }

// Replace swaps in a new corpus.
func (l *Library) Replace(c *Corpus) { l.current.Store(c) }
