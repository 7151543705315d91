package deck

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// DefaultReader reads JSON or YAML manifests
type DefaultReader struct {
	path string
}

func NewReader(path string) Reader {
	return &DefaultReader{path: path}
}

// Read parses the manifest and normalizes slide indexes to 1..n in order
func (r *DefaultReader) Read() (*Deck, error) {
	format, err := FormatOf(r.path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("deck file does not exist: %s", r.path)
		}
		return nil, fmt.Errorf("failed to open deck file: %w", err)
	}

	var d Deck
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &d)
	case FormatYAML:
		err = yaml.Unmarshal(data, &d)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse deck %s: %w", r.path, err)
	}
	if len(d.Slides) == 0 {
		return nil, fmt.Errorf("deck has no slides: %s", r.path)
	}

	if err := normalize(&d); err != nil {
		return nil, fmt.Errorf("invalid deck %s: %w", r.path, err)
	}
	d.Format = format
	d.NotesLanguage = detectLanguage(d.Slides)
	return &d, nil
}

// FormatOf maps a manifest extension to its format
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("only JSON and YAML deck manifests are supported: %s", path)
	}
}

// normalize orders slides; missing indexes are taken from position, duplicates are rejected
func normalize(d *Deck) error {
	explicit := false
	for _, s := range d.Slides {
		if s.Index != 0 {
			explicit = true
			break
		}
	}
	if !explicit {
		for i := range d.Slides {
			d.Slides[i].Index = i + 1
		}
		return nil
	}

	sort.SliceStable(d.Slides, func(i, j int) bool { return d.Slides[i].Index < d.Slides[j].Index })
	for i, s := range d.Slides {
		if s.Index != i+1 {
			return fmt.Errorf("slide indexes must be 1..%d without gaps, found %d at position %d", len(d.Slides), s.Index, i+1)
		}
	}
	return nil
}

// detectLanguage returns the most common language of the non-empty notes
func detectLanguage(slides []Slide) language.Tag {
	counts := make(map[string]int)
	for _, s := range slides {
		if strings.TrimSpace(s.Notes) == "" {
			continue
		}
		counts[whatlanggo.DetectLang(s.Notes).Iso6391()]++
	}

	var top string
	var topCount int
	for lang, count := range counts {
		if count > topCount || (count == topCount && lang < top) {
			top, topCount = lang, count
		}
	}
	if top == "" {
		return language.Und
	}
	return language.Make(top)
}
