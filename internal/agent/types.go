package agent

import (
	"github.com/MimeLyc/slidesage/internal/llm"
)

// Verdict is the auditor's classification of existing speaker notes
type Verdict int

const (
	VerdictUseless Verdict = iota
	VerdictUseful
)

func (v Verdict) String() string {
	if v == VerdictUseful {
		return "USEFUL"
	}
	return "USELESS"
}

// Position is the coarse place of a slide in its deck.
// It decides whether greetings or closings are appropriate.
type Position int

const (
	PositionMiddle Position = iota
	PositionFirst
	PositionLast
)

func (p Position) String() string {
	switch p {
	case PositionFirst:
		return "first"
	case PositionLast:
		return "last"
	default:
		return "middle"
	}
}

// PositionOf returns the position of the 1-based slide index in a deck of total slides
func PositionOf(index, total int) Position {
	switch {
	case index <= 1:
		return PositionFirst
	case index >= total:
		return PositionLast
	default:
		return PositionMiddle
	}
}

// Models names the model used by each role.
// Empty role models fall back to Default.
type Models struct {
	Default          string
	Auditor          string
	Analyst          string
	Writer           string
	Overviewer       string
	Translator       string
	ImageTranslator  string
	Designer         string
	FallbackDesigner string
	Video            string
}

func (m Models) pick(model string) string {
	if model != "" {
		return model
	}
	return m.Default
}

// AuditRequest asks whether existing notes can be kept as they are
type AuditRequest struct {
	SlideIndex int
	Notes      string
	Position   Position
	Language   string
}

// AnalyzeRequest asks for a structured reading of one rendered slide
type AnalyzeRequest struct {
	SlideIndex int
	Image      llm.File
}

// WriteRequest carries everything the writer needs for one slide
type WriteRequest struct {
	SlideIndex      int
	Analysis        string
	GlobalContext   string
	PreviousSummary string
	Theme           string
	Language        string
	Position        Position
}

// TranslateRequest translates a note or a deck context
type TranslateRequest struct {
	Text           string
	SourceLanguage string
	TargetLanguage string
}

// OverviewRequest asks for the deck-level narrative from all slide images
type OverviewRequest struct {
	Images   []llm.File
	Language string
}

// ImageTranslateRequest asks for a localization spec of a finished visual
type ImageTranslateRequest struct {
	SlideIndex     int
	Image          llm.File
	SourceLanguage string
	TargetLanguage string
}

// DesignRequest asks for a redesigned slide image.
//
// Source: the slide to redesign
// Reference: optional style reference, usually the previous generated visual
// Notes: speaker notes for the slide
// Spec: optional localization spec from the image translator
type DesignRequest struct {
	SlideIndex int
	Source     llm.File
	Reference  *llm.File
	Notes      string
	Spec       string
	Language   string
}

// VideoRequest asks for a short video prompt for one slide
type VideoRequest struct {
	SlideIndex int
	Image      llm.File
	Notes      string
	Theme      string
	Language   string
}
