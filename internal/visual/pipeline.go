package visual

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MimeLyc/slidesage/internal/agent"
	"github.com/MimeLyc/slidesage/internal/llm"
	"github.com/MimeLyc/slidesage/pkg/file"
	"github.com/MimeLyc/slidesage/pkg/log"
)

// DesignAgents are the roles the visual pipeline calls
type DesignAgents interface {
	TranslateImage(ctx context.Context, req agent.ImageTranslateRequest) (string, error)
	Design(ctx context.Context, req agent.DesignRequest) ([]byte, error)
	DesignFallback(ctx context.Context, req agent.DesignRequest) ([]byte, error)
}

type Branch int

const (
	BranchAbsent Branch = iota
	BranchSkipped
	BranchTranslated
	BranchGenerated
	BranchFallback
)

func (b Branch) String() string {
	switch b {
	case BranchSkipped:
		return "skipped"
	case BranchTranslated:
		return "translated"
	case BranchGenerated:
		return "generated"
	case BranchFallback:
		return "fallback"
	default:
		return "absent"
	}
}

// ArtifactName is the file name of a slide's generated visual
func ArtifactName(index int) string {
	return fmt.Sprintf("slide_%d_reimagined.png", index)
}

type Slide struct {
	Index int
	Image llm.File
	Notes string
}

// Request is one visuals phase of one deck in one language.
// BaselineDir holds the baseline language's visuals and is only read.
type Request struct {
	Language    string
	Baseline    string
	Dir         string
	BaselineDir string
	Slides      []Slide
	RetryMode   bool
}

type Result struct {
	Index  int
	Path   string
	Branch Branch
	Err    error
}

// Present reports whether the slide has a visual on disk after the run
func (r Result) Present() bool {
	return r.Branch != BranchAbsent
}

type Option func(*Pipeline)

// WithForcedFallback sends every generation to the fallback designer first
func WithForcedFallback(force bool) Option {
	return func(p *Pipeline) {
		p.forceFallback = force
	}
}

type Pipeline struct {
	agents        DesignAgents
	forceFallback bool
}

func NewPipeline(agents DesignAgents, opts ...Option) *Pipeline {
	p := &Pipeline{agents: agents}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run produces one visual per slide, in order.
// A slide whose visual cannot be produced is reported absent and the run continues.
func (p *Pipeline) Run(ctx context.Context, req Request) ([]Result, error) {
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create visuals directory: %w", err)
	}

	var previous *llm.File
	results := make([]Result, 0, len(req.Slides))
	for _, slide := range req.Slides {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, data := p.slide(ctx, req, slide, previous)
		results = append(results, res)
		if data != nil {
			ref := llm.NewImage(filepath.Base(res.Path), "image/png", data)
			previous = &ref
		}
	}
	return results, nil
}

func (p *Pipeline) slide(ctx context.Context, req Request, slide Slide, previous *llm.File) (Result, []byte) {
	path := filepath.Join(req.Dir, ArtifactName(slide.Index))
	res := Result{Index: slide.Index, Path: path}

	if !req.RetryMode && file.Exists(path) {
		data, err := os.ReadFile(path)
		if err == nil {
			log.Info("Visual for slide %d [%s] exists, skipping", slide.Index, req.Language)
			res.Branch = BranchSkipped
			return res, data
		}
		log.Warn("Existing visual %s is unreadable, regenerating: %v", path, err)
	}

	if req.Language != req.Baseline && req.BaselineDir != "" {
		data, branch, err := p.translate(ctx, req, slide)
		if err == nil {
			return p.commit(res, branch, data)
		}
		if !errors.Is(err, errNoBaselineVisual) {
			log.Warn("Visual translation failed for slide %d [%s], generating: %v", slide.Index, req.Language, err)
		}
	}

	data, branch, err := p.design(ctx, agent.DesignRequest{
		SlideIndex: slide.Index,
		Source:     slide.Image,
		Reference:  previous,
		Notes:      slide.Notes,
		Language:   req.Language,
	})
	if err != nil {
		log.Error("No visual for slide %d [%s]: %v", slide.Index, req.Language, err)
		res.Branch = BranchAbsent
		res.Err = err
		return res, nil
	}
	return p.commit(res, branch, data)
}

var errNoBaselineVisual = errors.New("no baseline visual")

func (p *Pipeline) translate(ctx context.Context, req Request, slide Slide) ([]byte, Branch, error) {
	basePath := filepath.Join(req.BaselineDir, ArtifactName(slide.Index))
	if !file.Exists(basePath) {
		return nil, BranchAbsent, errNoBaselineVisual
	}
	base, err := os.ReadFile(basePath)
	if err != nil {
		return nil, BranchAbsent, fmt.Errorf("read baseline visual: %w", err)
	}
	baseImage := llm.NewImage(filepath.Base(basePath), "image/png", base)

	spec, err := p.agents.TranslateImage(ctx, agent.ImageTranslateRequest{
		SlideIndex:     slide.Index,
		Image:          baseImage,
		SourceLanguage: req.Baseline,
		TargetLanguage: req.Language,
	})
	if err != nil {
		return nil, BranchAbsent, fmt.Errorf("image translation: %w", err)
	}

	data, _, err := p.design(ctx, agent.DesignRequest{
		SlideIndex: slide.Index,
		Source:     baseImage,
		Spec:       spec,
		Language:   req.Language,
	})
	if err != nil {
		return nil, BranchAbsent, err
	}
	return data, BranchTranslated, nil
}

// design tries the primary designer, then the fallback designer
func (p *Pipeline) design(ctx context.Context, req agent.DesignRequest) ([]byte, Branch, error) {
	if p.forceFallback {
		data, err := p.agents.DesignFallback(ctx, req)
		if err == nil {
			return data, BranchFallback, nil
		}
		if !errors.Is(err, agent.ErrNoFallbackModel) {
			return nil, BranchAbsent, fmt.Errorf("fallback designer: %w", err)
		}
		log.Warn("Fallback designer forced but not configured, using the primary designer")
	}

	data, err := p.agents.Design(ctx, req)
	if err == nil {
		return data, BranchGenerated, nil
	}
	if p.forceFallback {
		return nil, BranchAbsent, fmt.Errorf("designer: %w", err)
	}

	log.Warn("Designer failed for slide %d, trying the fallback designer: %v", req.SlideIndex, err)
	data, fallbackErr := p.agents.DesignFallback(ctx, req)
	if fallbackErr != nil {
		return nil, BranchAbsent, fmt.Errorf("designer: %w; fallback designer: %w", err, fallbackErr)
	}
	return data, BranchFallback, nil
}

func (p *Pipeline) commit(res Result, branch Branch, data []byte) (Result, []byte) {
	if err := file.WriteAtomic(res.Path, data, 0o644); err != nil {
		log.Error("Failed to save visual %s: %v", res.Path, err)
		res.Branch = BranchAbsent
		res.Err = err
		return res, nil
	}
	log.Info("Saved %s visual %s", branch, res.Path)
	res.Branch = branch
	return res, data
}
