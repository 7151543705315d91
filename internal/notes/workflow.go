package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MimeLyc/slidesage/internal/agent"
	"github.com/MimeLyc/slidesage/internal/progress"
	"github.com/MimeLyc/slidesage/pkg/log"
)

// NoteAgents are the roles a slide workflow calls
type NoteAgents interface {
	Audit(ctx context.Context, req agent.AuditRequest) (agent.Verdict, error)
	Analyze(ctx context.Context, req agent.AnalyzeRequest) (string, error)
	Write(ctx context.Context, req agent.WriteRequest) (string, error)
	Translate(ctx context.Context, req agent.TranslateRequest) (string, error)
}

type State int

const (
	StateInit State = iota
	StateAudited
	StateAnalyzed
	StateWritten
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAudited:
		return "audited"
	case StateAnalyzed:
		return "analyzed"
	case StateWritten:
		return "written"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var errEmptyNote = errors.New("written note is empty after cleanup")

// Input is everything one workflow run needs
type Input struct {
	Unit            SlideUnit
	Mode            Mode
	GlobalContext   string
	PreviousSummary string
}

// Outcome is the result of one workflow run.
// Mode is the mode that produced the result, Path the visited states.
type Outcome struct {
	Result progress.SlideResult
	Mode   Mode
	Path   []State
}

// Workflow produces the note of one slide
type Workflow struct {
	agents NoteAgents
}

func NewWorkflow(agents NoteAgents) *Workflow {
	return &Workflow{agents: agents}
}

// Run dispatches on the mode and always returns an outcome.
// External failures become an error status, never a returned error.
func (w *Workflow) Run(ctx context.Context, in Input, memo *WriterMemo) Outcome {
	switch m := in.Mode.(type) {
	case Translate:
		note, err := w.agents.Translate(ctx, agent.TranslateRequest{
			Text:           m.SourceNote,
			SourceLanguage: m.SourceLanguage,
			TargetLanguage: in.Unit.Language,
		})
		if err == nil {
			return Outcome{
				Result: progress.SlideResult{Note: note, Status: progress.StatusSuccess},
				Mode:   m,
				Path:   []State{StateInit, StateDone},
			}
		}
		log.Warn("Translation failed for %s, falling back to generation: %v", in.Unit, err)
		in.Mode = Fallback{Cause: err}
		return w.Run(ctx, in, memo)
	case Fallback:
		return w.generate(ctx, in, m, memo)
	case Generate:
		return w.generate(ctx, in, m, memo)
	case nil:
		return w.generate(ctx, in, Generate{}, memo)
	default:
		return Outcome{
			Result: progress.SlideResult{Status: progress.StatusError, ErrorDetail: fmt.Sprintf("unknown mode %s", m)},
			Mode:   m,
			Path:   []State{StateInit, StateFailed},
		}
	}
}

// generate walks Init -> Audited -> Analyzed -> Written -> Done, or to Failed
func (w *Workflow) generate(ctx context.Context, in Input, mode Mode, memo *WriterMemo) Outcome {
	unit := in.Unit
	path := []State{StateInit}
	state := StateInit

	var (
		analysis string
		note     string
		cause    error
	)

	for {
		next := state
		switch state {
		case StateInit:
			verdict, err := w.audit(ctx, unit)
			switch {
			case err != nil:
				cause, next = fmt.Errorf("audit: %w", err), StateFailed
			case verdict == agent.VerdictUseful:
				log.Info("Existing notes of %s are useful, keeping them", unit)
				note, next = unit.OriginalNotes, StateDone
			default:
				next = StateAudited
			}
		case StateAudited:
			ret, err := w.agents.Analyze(ctx, agent.AnalyzeRequest{SlideIndex: unit.Index, Image: unit.Image})
			if err != nil {
				cause, next = fmt.Errorf("analyze: %w", err), StateFailed
				break
			}
			analysis, next = ret, StateAnalyzed
		case StateAnalyzed:
			ret, err := w.agents.Write(ctx, agent.WriteRequest{
				SlideIndex:      unit.Index,
				Analysis:        analysis,
				GlobalContext:   in.GlobalContext,
				PreviousSummary: in.PreviousSummary,
				Language:        unit.Language,
				Position:        unit.Position,
			})
			if err != nil {
				cause, next = fmt.Errorf("write: %w", err), StateFailed
				break
			}
			note, next = ret, StateWritten
		case StateWritten:
			if err := ctx.Err(); err != nil {
				cause, next = err, StateFailed
				break
			}
			note = cleanNote(note)
			if note == "" {
				cause, next = errEmptyNote, StateFailed
				break
			}
			memo.Record(note)
			next = StateDone
		case StateDone:
			return Outcome{
				Result: progress.SlideResult{Note: note, Status: progress.StatusSuccess},
				Mode:   mode,
				Path:   path,
			}
		case StateFailed:
			return Outcome{Result: failed(unit, cause, memo), Mode: mode, Path: path}
		}
		state = next
		path = append(path, state)
	}
}

func (w *Workflow) audit(ctx context.Context, unit SlideUnit) (agent.Verdict, error) {
	if strings.TrimSpace(unit.OriginalNotes) == "" {
		return agent.VerdictUseless, nil
	}
	return w.agents.Audit(ctx, agent.AuditRequest{
		SlideIndex: unit.Index,
		Notes:      unit.OriginalNotes,
		Position:   unit.Position,
		Language:   unit.Language,
	})
}

func failed(unit SlideUnit, cause error, memo *WriterMemo) progress.SlideResult {
	if last, ok := memo.Last(); ok {
		log.Warn("%s failed (%v), using the last written note (%d chars)", unit, cause, len(last))
		return progress.SlideResult{Note: last, Status: progress.StatusSuccess}
	}
	log.Error("%s failed: %v", unit, cause)
	return progress.SlideResult{Status: progress.StatusError, ErrorDetail: cause.Error()}
}

var notePrefixes = []string{
	"speaker notes:",
	"here are the speaker notes:",
	"notes:",
}

// cleanNote strips labels and wrapping quotes a writer sometimes adds
func cleanNote(note string) string {
	note = strings.TrimSpace(note)
	lower := strings.ToLower(note)
	for _, prefix := range notePrefixes {
		if strings.HasPrefix(lower, prefix) {
			note = strings.TrimSpace(note[len(prefix):])
			break
		}
	}
	if len(note) >= 2 && strings.HasPrefix(note, `"`) && strings.HasSuffix(note, `"`) {
		note = strings.TrimSpace(note[1 : len(note)-1])
	}
	return note
}
