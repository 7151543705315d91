package notes

import (
	"fmt"
	"strings"

	"github.com/MimeLyc/slidesage/internal/agent"
	"github.com/MimeLyc/slidesage/internal/llm"
	"github.com/MimeLyc/slidesage/internal/progress"
)

const (
	// StartOfPresentation is the previous summary of the first slide
	StartOfPresentation = "Start of presentation."

	summaryLength = 200
)

// SlideUnit is one slide of one deck in one language
type SlideUnit struct {
	Index         int
	Language      string
	Fingerprint   string
	OriginalNotes string
	Image         llm.File
	Position      agent.Position
}

func NewSlideUnit(index, total int, language, notes string, image llm.File) SlideUnit {
	return SlideUnit{
		Index:         index,
		Language:      language,
		Fingerprint:   progress.Fingerprint(notes),
		OriginalNotes: notes,
		Image:         image,
		Position:      agent.PositionOf(index, total),
	}
}

func (u SlideUnit) Key() string {
	return progress.Key(u.Index, u.Fingerprint)
}

func (u SlideUnit) String() string {
	return fmt.Sprintf("slide %d [%s]", u.Index, u.Language)
}

// Summarize returns the continuity summary of a committed note
func Summarize(note string) string {
	note = strings.TrimSpace(note)
	r := []rune(note)
	if len(r) <= summaryLength {
		return note
	}
	return string(r[:summaryLength])
}
