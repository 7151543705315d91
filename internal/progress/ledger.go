package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/MimeLyc/slidesage/pkg/file"
)

type ledgerFile struct {
	Slides        map[string]Entry `json:"slides"`
	GlobalContext *GlobalContext   `json:"global_context,omitempty"`
}

// Ledger records per-slide outcomes of one deck in one language.
// It is safe for concurrent use, but only one orchestrator should own it.
type Ledger struct {
	mu        sync.RWMutex
	slides    map[string]Entry
	global    *GlobalContext
	retryMode bool
}

func New(retryMode bool) *Ledger {
	return &Ledger{
		slides:    make(map[string]Entry),
		retryMode: retryMode,
	}
}

// Load reads a ledger file. A missing file yields an empty ledger.
//
// In retry mode, stored error entries are hidden from Get so the slides are reprocessed.
func Load(path string, retryMode bool) (*Ledger, error) {
	l := New(retryMode)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read progress file: %w", err)
	}
	if len(data) == 0 {
		return l, nil
	}

	var f ledgerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid progress file %s: %w", path, err)
	}
	for key, entry := range f.Slides {
		l.slides[key] = entry
	}
	l.global = f.GlobalContext
	return l, nil
}

func (l *Ledger) RetryMode() bool {
	return l.retryMode
}

// Get returns the entry under key. Error entries are absent in retry mode.
func (l *Ledger) Get(key string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.slides[key]
	if !ok {
		return Entry{}, false
	}
	if l.retryMode && entry.Status == StatusError {
		return Entry{}, false
	}
	return entry, true
}

func (l *Ledger) Put(key string, entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slides[key] = entry
}

// FindSuccessByIndex returns a successful entry for the slide index, preferring keys in sorted order
func (l *Ledger) FindSuccessByIndex(index int) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]string, 0, len(l.slides))
	for key, entry := range l.slides {
		if entry.SlideIndex == index && entry.Status == StatusSuccess {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return Entry{}, false
	}
	sort.Strings(keys)
	return l.slides[keys[0]], true
}

func (l *Ledger) GlobalContext() (GlobalContext, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.global == nil {
		return GlobalContext{}, false
	}
	return *l.global, true
}

func (l *Ledger) SetGlobalContext(gc GlobalContext) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.global = &gc
}

// Counts tallies every stored entry, including errors hidden by retry mode
func (l *Ledger) Counts() Counts {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var c Counts
	for _, entry := range l.slides {
		switch entry.Status {
		case StatusSuccess:
			c.Success++
		case StatusError:
			c.Error++
		case StatusSkipped:
			c.Skipped++
		}
	}
	return c
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.slides)
}

// Flush writes the ledger atomically: a temp file in the same directory is synced, then renamed over path.
func (l *Ledger) Flush(path string) error {
	l.mu.RLock()
	content, err := json.MarshalIndent(ledgerFile{Slides: l.slides, GlobalContext: l.global}, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	content = append(content, '\n')

	if err := file.WriteAtomic(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write progress file: %w", err)
	}
	return nil
}

// Clear removes the ledger file
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear progress: %w", err)
	}
	return nil
}
