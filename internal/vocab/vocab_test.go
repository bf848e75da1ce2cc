package vocab

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

const yamlCorpus = `
pairs:
  - source: en
    target: de
    words:
      - {source: House, target: Haus, level: 1}
      - {source: Tree, target: Baum, level: 3}
      - {id: custom, source: Sky, target: Himmel, level: 2}
`

func TestDefault(t *testing.T) {
	c := Default()
	if n := c.Count("en", "tr"); n == 0 {
		t.Fatal("built-in corpus has no en→tr words")
	}
	w, ok := c.Lookup("en", "tr", "ability-1-0")
	if !ok {
		t.Fatal("ability-1-0 missing from built-in corpus")
	}
	if w.TargetText != "Yetenek" {
		t.Errorf("TargetText = %q, want Yetenek", w.TargetText)
	}
}

func TestWords_LevelDescending(t *testing.T) {
	c, err := Parse([]byte(yamlCorpus), "yaml")
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	ids := c.IDs("en", "de")
	want := []string{"tree-3-1", "custom", "house-1-0"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("IDs() = %v, want %v", ids, want)
	}
}

func TestWords_ReversePairFallback(t *testing.T) {
	c, err := Parse([]byte(yamlCorpus), "yaml")
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	words := c.Words("de", "en")
	if len(words) != 3 {
		t.Fatalf("Words(de, en) = %d words, want 3", len(words))
	}
	w := words[len(words)-1]
	if w.ID != "house-1-0"+ReversedSuffix {
		t.Errorf("ID = %q, want reversed suffix", w.ID)
	}
	if w.SourceText != "Haus" || w.TargetText != "House" {
		t.Errorf("texts not swapped: %+v", w)
	}
	if w.SourceLanguage != "de" || w.TargetLanguage != "en" {
		t.Errorf("languages = %s→%s, want de→en", w.SourceLanguage, w.TargetLanguage)
	}
	if c.Count("de", "en") != 3 {
		t.Errorf("Count(de, en) = %d, want 3", c.Count("de", "en"))
	}
	if len(c.Words("fr", "it")) != 0 {
		t.Error("unknown pair returned words")
	}
}

func TestParse_Formats(t *testing.T) {
	tests := []struct {
		format string
		data   string
	}{
		{"json", `{"pairs":[{"source":"en","target":"fr","words":[{"source":"Cat","target":"Chat","level":2}]}]}`},
		{"toml", "[[pairs]]\nsource = \"en\"\ntarget = \"fr\"\n\n[[pairs.words]]\nsource = \"Cat\"\ntarget = \"Chat\"\nlevel = 2\n"},
		{"yml", "pairs:\n  - source: en\n    target: fr\n    words:\n      - {source: Cat, target: Chat, level: 2}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			c, err := Parse([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("Parse() failed: %v", err)
			}
			w, ok := c.Lookup("en", "fr", "cat-2-0")
			if !ok || w.TargetText != "Chat" {
				t.Errorf("Lookup() = %+v, %v", w, ok)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format string
		data   string
	}{
		{"unknown format", "ini", ""},
		{"missing text", "yaml", "pairs:\n  - {source: en, target: tr, words: [{source: A}]}\n"},
		{"duplicate id", "yaml", "pairs:\n  - {source: en, target: tr, words: [{id: x, source: A, target: B}, {id: x, source: C, target: D}]}\n"},
		{"missing pair", "yaml", "pairs:\n  - {source: en, words: []}\n"},
		{"malformed", "json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data), tt.format); err == nil {
				t.Error("Parse() succeeded, want error")
			}
		})
	}
}

func TestLoad_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.xlsx")

	f := excelize.NewFile()
	if _, err := f.NewSheet("en-it"); err != nil {
		t.Fatalf("NewSheet() failed: %v", err)
	}
	rows := [][]any{
		{"source", "target", "example", "type", "level", "pronunciation"},
		{"Water", "Acqua", "Drink water.", "noun", 2, ""},
		{"", "", "", "", "", ""},
		{"Bread", "Pane", "", "noun", "", "pah-neh"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("en-it", cell, &row); err != nil {
			t.Fatalf("SetSheetRow() failed: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() failed: %v", err)
	}
	_ = f.Close()

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if c.Count("en", "it") != 2 {
		t.Fatalf("Count(en, it) = %d, want 2", c.Count("en", "it"))
	}
	w, ok := c.Lookup("en", "it", "bread-1-1")
	if !ok || w.Pronunciation != "pah-neh" {
		t.Errorf("Lookup(bread) = %+v, %v", w, ok)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.yaml")
	if err := os.WriteFile(path, []byte(yamlCorpus), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	lib := NewLibrary(initial)

	w, err := NewWatcher(path, lib, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	w.delay = 20 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	// Unrelated files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	updated := yamlCorpus + "  - source: en\n    target: es\n    words:\n      - {source: Sun, target: Sol}\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	select {
	case r := <-w.Reloads():
		if r.Err != nil {
			t.Fatalf("reload failed: %v", r.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	if lib.Corpus().Count("en", "es") != 1 {
		t.Error("library not updated after reload")
	}

	// An invalid file keeps the previous corpus.
	if err := os.WriteFile(path, []byte("pairs: ["), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	select {
	case r := <-w.Reloads():
		if r.Err == nil {
			t.Fatal("expected reload error for invalid file")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for failed reload")
	}
	if lib.Corpus().Count("en", "es") != 1 {
		t.Error("invalid file replaced the corpus")
	}
}

func TestWatcher_StartTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	w, err := NewWatcher(path, NewLibrary(NewCorpus()), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !w.IsRunning() {
		t.Error("watcher should be running after Start()")
	}
	if err := w.Start(); err == nil {
		t.Error("second Start() succeeded, want error")
	}
}
