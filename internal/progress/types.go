package progress

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// SlideResult is the outcome of processing one slide.
// ErrorDetail is set iff Status is StatusError.
type SlideResult struct {
	Note        string
	Status      Status
	ErrorDetail string
}

// Entry is the persisted record of one slide
type Entry struct {
	SlideIndex    int    `json:"slide_index"`
	Fingerprint   string `json:"existing_notes_hash"`
	OriginalNotes string `json:"original_notes"`
	Note          string `json:"note"`
	Status        Status `json:"status"`
	Error         string `json:"error,omitempty"`
}

func (e Entry) Result() SlideResult {
	return SlideResult{Note: e.Note, Status: e.Status, ErrorDetail: e.Error}
}

// GlobalContext is the cached deck summary for the ledger's language.
// Fingerprint identifies the deck content it was generated from.
type GlobalContext struct {
	Text        string `json:"text"`
	Fingerprint string `json:"fingerprint"`
}

// Counts tallies entries per status
type Counts struct {
	Success int
	Error   int
	Skipped int
}

// Fingerprint returns the first 8 hex chars of the SHA-256 of the notes
func Fingerprint(notes string) string {
	sum := sha256.Sum256([]byte(notes))
	return hex.EncodeToString(sum[:])[:8]
}

// Key returns the ledger key of a slide
func Key(index int, fingerprint string) string {
	return fmt.Sprintf("slide_%d_%s", index, fingerprint)
}

// Path returns the ledger file of a deck in one language
func Path(outputDir, deckBase, language string) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s_progress.json", deckBase, language))
}
