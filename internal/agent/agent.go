package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"

	"github.com/MimeLyc/slidesage/internal/llm"
	"github.com/MimeLyc/slidesage/pkg/log"
	"github.com/MimeLyc/slidesage/pkg/retry"
)

// Generator is the generation service boundary.
// *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Result, error)
}

var (
	// ErrNoFallbackModel is returned by DesignFallback when no fallback designer is configured
	ErrNoFallbackModel = errors.New("no fallback designer model configured")

	errUntranslated = errors.New("translation returned source-language text")
)

// Agents runs every role against one Generator.
// Each call is a single stateless request retried under the configured policy.
type Agents struct {
	gen          Generator
	models       Models
	policy       retry.Policy
	speakerStyle string
	visualStyle  string
	theme        string
}

type Option func(*Agents)

// WithRetryPolicy overrides the default 3 attempts / 2s / x2 policy
func WithRetryPolicy(p retry.Policy) Option {
	return func(a *Agents) {
		a.policy = p
	}
}

// WithSpeakerStyle sets the speaking style used by the writer and translator
func WithSpeakerStyle(style string) Option {
	return func(a *Agents) {
		a.speakerStyle = style
	}
}

// WithVisualStyle sets the visual style used by the designers
func WithVisualStyle(style string) Option {
	return func(a *Agents) {
		a.visualStyle = style
	}
}

// WithTheme sets the presentation theme passed to the writer and video agent
func WithTheme(theme string) Option {
	return func(a *Agents) {
		a.theme = theme
	}
}

func New(gen Generator, models Models, opts ...Option) *Agents {
	a := &Agents{
		gen:    gen,
		models: models,
		policy: retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HasVideoModel reports whether a video prompt model is configured
func (a *Agents) HasVideoModel() bool {
	return a.models.Video != ""
}

// Audit classifies existing notes as useful or useless for the slide position
func (a *Agents) Audit(ctx context.Context, req AuditRequest) (Verdict, error) {
	return retry.Do(ctx, a.policy.WithName(fmt.Sprintf("audit slide %d", req.SlideIndex)), func(ctx context.Context) (Verdict, error) {
		ret, err := a.gen.Generate(ctx, llm.Request{
			Role:         "auditor",
			Model:        a.models.pick(a.models.Auditor),
			SystemPrompt: auditorPrompt,
			Prompt:       buildAuditPrompt(req),
		})
		if err != nil {
			return VerdictUseless, err
		}
		return parseVerdict(ret.Text)
	})
}

// Analyze reads the rendered slide and returns its topic, details, visuals and intent
func (a *Agents) Analyze(ctx context.Context, req AnalyzeRequest) (string, error) {
	return a.text(ctx, fmt.Sprintf("analyze slide %d", req.SlideIndex), llm.Request{
		Role:         "analyst",
		Model:        a.models.pick(a.models.Analyst),
		SystemPrompt: analystPrompt,
		Prompt:       fmt.Sprintf("Analyze slide %d.", req.SlideIndex),
		Images:       []llm.File{req.Image},
	})
}

// Write produces the speaker note for one slide
func (a *Agents) Write(ctx context.Context, req WriteRequest) (string, error) {
	if req.Theme == "" {
		req.Theme = a.theme
	}
	return a.text(ctx, fmt.Sprintf("write slide %d", req.SlideIndex), llm.Request{
		Role:         "writer",
		Model:        a.models.pick(a.models.Writer),
		SystemPrompt: writerPrompt,
		Prompt:       buildWritePrompt(req, a.speakerStyle),
	})
}

// Translate translates text between locales, rejecting output left in the source language
func (a *Agents) Translate(ctx context.Context, req TranslateRequest) (string, error) {
	name := fmt.Sprintf("translate to %s", req.TargetLanguage)
	return retry.Do(ctx, a.policy.WithName(name), func(ctx context.Context) (string, error) {
		ret, err := a.gen.Generate(ctx, llm.Request{
			Role:         "translator",
			Model:        a.models.pick(a.models.Translator),
			SystemPrompt: translatorPrompt,
			Prompt:       buildTranslatePrompt(req, a.speakerStyle),
		})
		if err != nil {
			return "", err
		}
		out := strings.TrimSpace(ret.Text)
		if err := checkTranslated(req, out); err != nil {
			return "", err
		}
		return out, nil
	})
}

// Overview summarizes the narrative, vocabulary and persona of the whole deck
func (a *Agents) Overview(ctx context.Context, req OverviewRequest) (string, error) {
	return a.text(ctx, "deck overview", llm.Request{
		Role:         "overviewer",
		Model:        a.models.pick(a.models.Overviewer),
		SystemPrompt: overviewerPrompt,
		Prompt:       buildOverviewPrompt(req),
		Images:       req.Images,
	})
}

// TranslateImage describes how to regenerate a finished visual in the target language
func (a *Agents) TranslateImage(ctx context.Context, req ImageTranslateRequest) (string, error) {
	return a.text(ctx, fmt.Sprintf("image translate slide %d", req.SlideIndex), llm.Request{
		Role:         "image_translator",
		Model:        a.models.pick(a.models.ImageTranslator),
		SystemPrompt: imageTranslatorPrompt,
		Prompt: fmt.Sprintf("Source language: %s\nTarget language: %s\nProduce the localization spec for this slide.",
			LanguageName(req.SourceLanguage), LanguageName(req.TargetLanguage)),
		Images: []llm.File{req.Image},
	})
}

// Design generates a redesigned slide image with the primary designer
func (a *Agents) Design(ctx context.Context, req DesignRequest) ([]byte, error) {
	return a.image(ctx, "designer", a.models.pick(a.models.Designer), req)
}

// DesignFallback generates the slide image with the fallback designer
func (a *Agents) DesignFallback(ctx context.Context, req DesignRequest) ([]byte, error) {
	if a.models.FallbackDesigner == "" {
		return nil, ErrNoFallbackModel
	}
	return a.image(ctx, "fallback_designer", a.models.FallbackDesigner, req)
}

// VideoPrompt writes a short video prompt for one slide
func (a *Agents) VideoPrompt(ctx context.Context, req VideoRequest) (string, error) {
	if req.Theme == "" {
		req.Theme = a.theme
	}
	return a.text(ctx, fmt.Sprintf("video prompt slide %d", req.SlideIndex), llm.Request{
		Role:         "video",
		Model:        a.models.pick(a.models.Video),
		SystemPrompt: videoPrompt,
		Prompt:       buildVideoPrompt(req),
		Images:       []llm.File{req.Image},
	})
}

func (a *Agents) image(ctx context.Context, role, model string, req DesignRequest) ([]byte, error) {
	images := []llm.File{req.Source}
	if req.Reference != nil {
		images = append(images, *req.Reference)
	}
	name := fmt.Sprintf("%s slide %d", role, req.SlideIndex)
	return retry.Do(ctx, a.policy.WithName(name), func(ctx context.Context) ([]byte, error) {
		ret, err := a.gen.Generate(ctx, llm.Request{
			Role:         role,
			Model:        model,
			SystemPrompt: designerPrompt,
			Prompt:       buildDesignPrompt(req, a.visualStyle),
			Images:       images,
			Output:       llm.OutputImage,
		})
		if err != nil {
			return nil, err
		}
		if len(ret.Media) == 0 {
			return nil, llm.ErrEmptyResponse
		}
		return ret.Media, nil
	})
}

func (a *Agents) text(ctx context.Context, name string, req llm.Request) (string, error) {
	return retry.Do(ctx, a.policy.WithName(name), func(ctx context.Context) (string, error) {
		ret, err := a.gen.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		out := strings.TrimSpace(ret.Text)
		if out == "" {
			return "", llm.ErrEmptyResponse
		}
		return out, nil
	})
}

type auditReply struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// parseVerdict accepts the JSON reply, optionally fenced, or a bare status word.
// A JSON status must match exactly; a bare reply is read by its first status word.
func parseVerdict(text string) (Verdict, error) {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var reply auditReply
	if err := json.Unmarshal([]byte(body), &reply); err == nil && reply.Status != "" {
		if reply.Reason != "" {
			log.Debug("Audit reason: %s", reply.Reason)
		}
		switch strings.ToUpper(strings.TrimSpace(reply.Status)) {
		case "USEFUL":
			return VerdictUseful, nil
		case "USELESS":
			return VerdictUseless, nil
		}
		return VerdictUseless, fmt.Errorf("unrecognized audit status: %q", reply.Status)
	}

	words := strings.FieldsFunc(strings.ToUpper(body), func(r rune) bool { return !unicode.IsLetter(r) })
	for i, word := range words {
		if word != "USEFUL" && word != "USELESS" {
			continue
		}
		useful := word == "USEFUL"
		if i > 0 && words[i-1] == "NOT" {
			useful = !useful
		}
		if useful {
			return VerdictUseful, nil
		}
		return VerdictUseless, nil
	}
	return VerdictUseless, fmt.Errorf("unrecognized audit reply: %q", truncate(text, 80))
}

// checkTranslated fails when the output is the untouched source or is detected as the source language
func checkTranslated(req TranslateRequest, out string) error {
	if out == "" {
		return llm.ErrEmptyResponse
	}
	source, target := baseOf(req.SourceLanguage), baseOf(req.TargetLanguage)
	if source == "" || source == target {
		return nil
	}
	if out == strings.TrimSpace(req.Text) {
		return errUntranslated
	}
	info := whatlanggo.Detect(out)
	if info.IsReliable() && info.Lang.Iso6391() == source {
		return fmt.Errorf("%w (detected %s)", errUntranslated, info.Lang.Iso6391())
	}
	return nil
}

func baseOf(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
