package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/slidesage/internal/agent"
	"github.com/MimeLyc/slidesage/internal/llm"
	"github.com/MimeLyc/slidesage/pkg/file"
	"github.com/MimeLyc/slidesage/pkg/log"
)

const (
	maxConceptLength = 150
	emptyNotesPrompt = "Create an engaging visual representation of key concepts."
)

// PromptAgent writes video prompts with a model
type PromptAgent interface {
	VideoPrompt(ctx context.Context, req agent.VideoRequest) (string, error)
}

type Source int

const (
	SourceFailed Source = iota
	SourceSkipped
	SourceAgent
	SourceLocal
)

func (s Source) String() string {
	switch s {
	case SourceSkipped:
		return "skipped"
	case SourceAgent:
		return "agent"
	case SourceLocal:
		return "local"
	default:
		return "failed"
	}
}

// ArtifactName is the file name of a slide's video prompt
func ArtifactName(index int) string {
	return fmt.Sprintf("slide_%d_video_prompt.txt", index)
}

type Slide struct {
	Index int
	Image llm.File
	Notes string
}

type Request struct {
	Language  string
	Dir       string
	Slides    []Slide
	RetryMode bool
}

type Result struct {
	Index  int
	Path   string
	Source Source
	Err    error
}

// Writer saves one video prompt per slide
type Writer struct {
	agent PromptAgent
}

// NewWriter returns a writer. A nil agent derives prompts from the notes locally.
func NewWriter(agent PromptAgent) *Writer {
	return &Writer{agent: agent}
}

func (w *Writer) Run(ctx context.Context, req Request) ([]Result, error) {
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create videos directory: %w", err)
	}

	results := make([]Result, 0, len(req.Slides))
	for _, slide := range req.Slides {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		path := filepath.Join(req.Dir, ArtifactName(slide.Index))
		res := Result{Index: slide.Index, Path: path}
		if !req.RetryMode && file.Exists(path) {
			res.Source = SourceSkipped
			results = append(results, res)
			continue
		}

		prompt, source := w.prompt(ctx, req.Language, slide)
		if err := file.WriteAtomic(path, []byte(Render(slide.Index, prompt, slide.Notes)), 0o644); err != nil {
			log.Error("Failed to save video prompt %s: %v", path, err)
			res.Err = err
			results = append(results, res)
			continue
		}
		log.Info("Saved video prompt for slide %d [%s] (%s)", slide.Index, req.Language, source)
		res.Source = source
		results = append(results, res)
	}
	return results, nil
}

func (w *Writer) prompt(ctx context.Context, language string, slide Slide) (string, Source) {
	if w.agent == nil {
		return LocalPrompt(slide.Notes), SourceLocal
	}
	ret, err := w.agent.VideoPrompt(ctx, agent.VideoRequest{
		SlideIndex: slide.Index,
		Image:      slide.Image,
		Notes:      slide.Notes,
		Language:   language,
	})
	if err != nil {
		log.Warn("Video agent failed for slide %d, deriving the prompt from notes: %v", slide.Index, err)
		return LocalPrompt(slide.Notes), SourceLocal
	}
	return strings.TrimSpace(ret), SourceAgent
}

// LocalPrompt builds a video prompt from the first line of the notes
func LocalPrompt(notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return emptyNotesPrompt
	}

	concept, _, _ := strings.Cut(notes, "\n")
	concept = strings.TrimSpace(concept)
	if r := []rune(concept); len(r) > maxConceptLength {
		concept = string(r[:maxConceptLength])
		if i := strings.LastIndex(concept, " "); i > 0 {
			concept = concept[:i]
		}
		concept += "."
	}

	return "Create a professional 8-10 second video that visually illustrates this concept: " + concept +
		" Use modern design, clear visuals, and professional animation. Focus on clarity and visual appeal."
}

// Render formats the saved prompt file
func Render(index int, prompt, notes string) string {
	var b strings.Builder
	title := fmt.Sprintf("Slide %d Video Prompt", index)
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n\n")
	b.WriteString("Prompt:\n" + prompt + "\n\n")
	b.WriteString("Speaker Notes:\n" + notes + "\n")
	return b.String()
}
