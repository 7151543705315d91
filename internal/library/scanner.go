package library

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/slidesage/internal/deck"
	"github.com/MimeLyc/slidesage/pkg/file"
)

var manifestExts = []string{".json", ".yaml", ".yml"}

type scannerOptions struct {
	outputDir string
	cacheTTL  time.Duration
}

type Option func(*scannerOptions)

// WithOutputDir looks for finished outputs in dir instead of next to each deck
func WithOutputDir(dir string) Option {
	return func(o *scannerOptions) {
		o.outputDir = dir
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *scannerOptions) {
		o.cacheTTL = ttl
	}
}

type scanCache struct {
	version uint64
	scanned time.Time
	library *Library
}

// Scanner finds decks, a PDF with a manifest of the same name, under its sources
type Scanner struct {
	sources   []SourceConfig
	languages []string
	outputDir string

	mu            sync.RWMutex
	cacheTTL      time.Duration
	cache         *scanCache
	configVersion uint64
}

func NewScanner(
	sources []SourceConfig,
	languages []string,
	opts ...Option,
) *Scanner {
	options := scannerOptions{
		cacheTTL: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Scanner{
		sources:   sources,
		languages: append([]string(nil), languages...),
		outputDir: options.outputDir,
		cacheTTL:  options.cacheTTL,
	}
}

func (s *Scanner) Languages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.languages...)
}

func (s *Scanner) UpdateLanguages(langs []string) error {
	for _, lang := range langs {
		if _, err := language.Parse(lang); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.languages = append([]string(nil), langs...)
	s.cache = nil
	s.configVersion++
	s.mu.Unlock()
	return nil
}

func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.configVersion++
	s.mu.Unlock()
}

func (s *Scanner) Scan(ctx context.Context) (*Library, error) {
	s.mu.RLock()
	version := s.configVersion
	cacheTTL := s.cacheTTL
	if s.cache != nil && s.cache.version == version && (cacheTTL <= 0 || time.Since(s.cache.scanned) < cacheTTL) {
		cached := cloneLibrary(s.cache.library)
		s.mu.RUnlock()
		return cached, nil
	}
	sources := append([]SourceConfig(nil), s.sources...)
	languages := append([]string(nil), s.languages...)
	s.mu.RUnlock()

	ret := &Library{
		Sources: make([]Source, 0, len(sources)),
		Decks:   make([]Deck, 0),
	}

	for _, sourceCfg := range sources {
		if sourceCfg.Path == "" {
			continue
		}
		if _, err := os.Stat(sourceCfg.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		source := Source{
			ID:   sourceCfg.ID,
			Name: sourceCfg.Name,
			Path: sourceCfg.Path,
		}

		pdfs, err := findPDFs(sourceCfg.Path)
		if err != nil {
			return nil, err
		}
		for _, pdfPath := range pdfs {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			d, ok := s.describe(sourceCfg.ID, pdfPath, languages)
			if !ok {
				continue
			}
			ret.Decks = append(ret.Decks, d)
			source.DeckCount++
		}

		ret.Sources = append(ret.Sources, source)
	}

	s.mu.Lock()
	if s.configVersion == version {
		s.cache = &scanCache{
			version: version,
			scanned: time.Now(),
			library: cloneLibrary(ret),
		}
	}
	s.mu.Unlock()

	return ret, nil
}

// ChangedSince returns decks whose manifest or PDF was modified after since
func (s *Scanner) ChangedSince(ctx context.Context, since time.Time) ([]Deck, error) {
	changed := make(map[string]bool)
	for _, src := range s.sources {
		if src.Path == "" {
			continue
		}
		files, err := file.FindRecentAfter(src.Path, since, append([]string{".pdf"}, manifestExts...)...)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, f := range files {
			changed[file.ReplaceExt(f, "")] = true
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	lib, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	var ret []Deck
	for _, d := range lib.Decks {
		if changed[file.ReplaceExt(d.PDFPath, "")] {
			ret = append(ret, d)
		}
	}
	return ret, nil
}

func (s *Scanner) describe(sourceID, pdfPath string, languages []string) (Deck, bool) {
	manifest := findManifest(pdfPath)
	if manifest == "" {
		return Deck{}, false
	}

	modTime := latestModTime(pdfPath, manifest)
	stem := file.Stem(pdfPath)
	outputDir := s.outputDir
	if outputDir == "" {
		outputDir = filepath.Dir(pdfPath)
	}

	d := Deck{
		ID:           sourceID + "|" + pdfPath,
		SourceID:     sourceID,
		Name:         stem,
		ManifestPath: manifest,
		PDFPath:      pdfPath,
		ModTime:      modTime,
		Done:         make([]string, 0),
		Pending:      make([]string, 0),
	}
	for _, lang := range languages {
		out := deck.NotesOutputPath(outputDir, stem, lang, filepath.Ext(manifest))
		if file.Exists(out) {
			d.Done = append(d.Done, lang)
		} else {
			d.Pending = append(d.Pending, lang)
		}
	}
	return d, true
}

// findManifest returns the manifest with the PDF's name, skipping our own outputs
func findManifest(pdfPath string) string {
	for _, ext := range manifestExts {
		candidate := file.ReplaceExt(pdfPath, ext)
		if file.Exists(candidate) {
			return candidate
		}
	}
	return ""
}

func findPDFs(root string) ([]string, error) {
	ret := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if file.HasExt(path, ".pdf") && !isOutput(path) {
			ret = append(ret, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ret)
	return ret, nil
}

func isOutput(path string) bool {
	stem := file.Stem(path)
	return strings.HasSuffix(stem, "_with_notes") || strings.HasSuffix(stem, "_with_visuals")
}

func latestModTime(paths ...string) time.Time {
	var latest time.Time
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest
}

func cloneLibrary(in *Library) *Library {
	if in == nil {
		return nil
	}
	out := &Library{
		Sources: append([]Source(nil), in.Sources...),
		Decks:   make([]Deck, len(in.Decks)),
	}
	for i, d := range in.Decks {
		d.Done = append([]string(nil), d.Done...)
		d.Pending = append([]string(nil), d.Pending...)
		out.Decks[i] = d
	}
	return out
}
