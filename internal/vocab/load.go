package vocab

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCorpus []byte

type corpusFile struct {
	Pairs []pairFile `json:"pairs" yaml:"pairs" toml:"pairs"`
}

type pairFile struct {
	Source string `json:"source" yaml:"source" toml:"source"`
	Target string `json:"target" yaml:"target" toml:"target"`
	Words  []Word `json:"words" yaml:"words" toml:"words"`
}

// Default returns the built-in English→Turkish corpus.
func Default() *Corpus {
	c, err := Parse(defaultCorpus, "yaml")
	if err != nil {
		panic(fmt.Sprintf("built-in corpus is invalid: %v", err))
	}
	return c
}

// Load reads a corpus file. The format follows the extension: .json,
// .yaml/.yml, .toml or .xlsx.
func Load(path string) (*Corpus, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		return loadXLSX(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", path, err)
	}
	c, err := Parse(data, strings.TrimPrefix(ext, "."))
	if err != nil {
		return nil, fmt.Errorf("invalid corpus %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a corpus in format json, yaml, yml or toml.
func Parse(data []byte, format string) (*Corpus, error) {
	var f corpusFile
	var err error
	switch format {
	case "json":
		err = json.Unmarshal(data, &f)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &f)
	case "toml":
		err = toml.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("unsupported corpus format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s corpus: %w", format, err)
	}

	c := NewCorpus()
	for _, p := range f.Pairs {
		if err := c.add(p.Source, p.Target, p.Words); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// loadXLSX reads one pair per sheet. Sheets whose name is not a pair
// like "en-tr" are ignored.
func loadXLSX(path string) (*Corpus, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	c := NewCorpus()
	for _, sheet := range f.GetSheetList() {
		source, target, ok := strings.Cut(sheet, "-")
		if !ok || len(source) != 2 || len(target) != 2 {
			continue
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}

		var words []Word
		for i, row := range rows {
			if i == 0 {
				continue // header
			}
			w, ok, err := wordFromRow(row)
			if err != nil {
				return nil, fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
			}
			if ok {
				words = append(words, w)
			}
		}
		if err := c.add(strings.ToLower(source), strings.ToLower(target), words); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func wordFromRow(row []string) (Word, bool, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	w := Word{
		SourceText:    cell(0),
		TargetText:    cell(1),
		Example:       cell(2),
		Type:          cell(3),
		Pronunciation: cell(5),
	}
	if w.SourceText == "" && w.TargetText == "" {
		return Word{}, false, nil
	}
	if lvl := cell(4); lvl != "" {
		n, err := strconv.Atoi(lvl)
		if err != nil {
			return Word{}, false, fmt.Errorf("invalid level %q", lvl)
		}
		w.Level = n
	}
	return w, true, nil
}
