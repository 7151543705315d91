package notes

import (
	"github.com/MimeLyc/slidesage/internal/progress"
)

// Selector decides the mode of each slide from the baseline ledger.
// It never mutates the ledger.
type Selector struct {
	baseline       string
	baselineLedger *progress.Ledger
}

func NewSelector(baseline string, baselineLedger *progress.Ledger) Selector {
	return Selector{baseline: baseline, baselineLedger: baselineLedger}
}

// Select returns Generate for the baseline language or when no successful baseline note exists,
// and Translate with the baseline note otherwise.
func (s Selector) Select(language string, slideIndex int, fingerprint string) Mode {
	if language == s.baseline || s.baselineLedger == nil {
		return Generate{}
	}

	if entry, ok := s.baselineLedger.Get(progress.Key(slideIndex, fingerprint)); ok && usable(entry) {
		return Translate{SourceNote: entry.Note, SourceLanguage: s.baseline}
	}
	if entry, ok := s.baselineLedger.FindSuccessByIndex(slideIndex); ok && usable(entry) {
		return Translate{SourceNote: entry.Note, SourceLanguage: s.baseline}
	}
	return Generate{}
}

func usable(entry progress.Entry) bool {
	return entry.Status == progress.StatusSuccess && entry.Note != ""
}
