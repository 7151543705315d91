package service

import (
	"context"
	"path/filepath"

	"github.com/MimeLyc/slidesage/internal/library"
	"github.com/MimeLyc/slidesage/internal/notes"
	"github.com/MimeLyc/slidesage/internal/persistence"
	"github.com/MimeLyc/slidesage/internal/progress"
	"github.com/MimeLyc/slidesage/internal/video"
	"github.com/MimeLyc/slidesage/internal/visual"
	"github.com/MimeLyc/slidesage/pkg/file"
)

// Agents are every role the orchestrator drives
type Agents interface {
	notes.NoteAgents
	notes.ContextAgents
	visual.DesignAgents
	video.PromptAgent
	HasVideoModel() bool
}

// Journal records phase runs. A nil journal records nothing.
type Journal interface {
	StartPhase(ctx context.Context, run persistence.PhaseRun) (string, error)
	FinishPhase(ctx context.Context, run persistence.PhaseRun) error
	RecordSlide(ctx context.Context, ev persistence.SlideEvent) error
}

// Presentation is one deck: a manifest with its rendered PDF
type Presentation struct {
	Name         string
	ManifestPath string
	PDFPath      string
	OutputDir    string
}

// NewPresentation names the deck after its manifest and defaults the output next to it
func NewPresentation(manifestPath, pdfPath, outputDir string) Presentation {
	if pdfPath == "" {
		pdfPath = file.ReplaceExt(manifestPath, ".pdf")
	}
	if outputDir == "" {
		outputDir = filepath.Dir(manifestPath)
	}
	return Presentation{
		Name:         file.Stem(manifestPath),
		ManifestPath: manifestPath,
		PDFPath:      pdfPath,
		OutputDir:    outputDir,
	}
}

// PresentationOf converts a scanned deck
func PresentationOf(d library.Deck, outputDir string) Presentation {
	return NewPresentation(d.ManifestPath, d.PDFPath, outputDir)
}

func (p Presentation) ext() string {
	return filepath.Ext(p.ManifestPath)
}

type Phase string

const (
	PhaseNotes   Phase = "notes"
	PhaseVisuals Phase = "visuals"
	PhaseVideos  Phase = "videos"
)

// SlideReport is the outcome of one slide in one phase
type SlideReport struct {
	Index  int
	Status progress.Status
	Mode   string
	Detail string
}

// PhaseReport counts the outcomes of one phase in one language
type PhaseReport struct {
	Phase    Phase
	Language string
	Success  int
	Error    int
	Skipped  int
	Slides   []SlideReport
	// Ledger totals the progress file after the phase, cached slides included
	Ledger progress.Counts
}

func (r *PhaseReport) add(s SlideReport) {
	switch s.Status {
	case progress.StatusSuccess:
		r.Success++
	case progress.StatusError:
		r.Error++
	default:
		r.Skipped++
	}
	r.Slides = append(r.Slides, s)
}

// RunOptions select the languages and phases of a run
type RunOptions struct {
	// Languages to process; the baseline runs first when present
	Languages   []string
	RetryMode   bool
	SkipVisuals bool
	Videos      bool
	// Reset clears the progress of every language before the run
	Reset bool
}

type RunReport struct {
	Presentation string
	Phases       []PhaseReport
}

// Failed reports whether any slide of any phase ended in error
func (r RunReport) Failed() bool {
	for _, p := range r.Phases {
		if p.Error > 0 {
			return true
		}
	}
	return false
}
