package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/slidesage/internal/agent"
	"github.com/MimeLyc/slidesage/internal/deck"
	"github.com/MimeLyc/slidesage/internal/media"
	"github.com/MimeLyc/slidesage/internal/notes"
	"github.com/MimeLyc/slidesage/internal/persistence"
	"github.com/MimeLyc/slidesage/internal/progress"
	"github.com/MimeLyc/slidesage/internal/video"
	"github.com/MimeLyc/slidesage/internal/visual"
	"github.com/MimeLyc/slidesage/pkg/log"
)

type Option func(*Orchestrator)

func WithRasterizer(r media.Rasterizer) Option {
	return func(o *Orchestrator) {
		o.renders = newRenderCache(r)
	}
}

// WithDeckOpener replaces how manifests are opened
func WithDeckOpener(open func(path string) deck.Reader) Option {
	return func(o *Orchestrator) {
		o.openDeck = open
	}
}

func WithDeckWriter(w deck.Writer) Option {
	return func(o *Orchestrator) {
		o.deckWriter = w
	}
}

func WithJournal(j Journal) Option {
	return func(o *Orchestrator) {
		o.journal = j
	}
}

// WithBaseline sets the language other languages translate from
func WithBaseline(lang string) Option {
	return func(o *Orchestrator) {
		if lang != "" {
			o.baseline = lang
		}
	}
}

func WithLanguageConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithProgressFile pins the ledger path of a single language run
func WithProgressFile(path string) Option {
	return func(o *Orchestrator) {
		o.progressFile = path
	}
}

func WithVisualOptions(opts ...visual.Option) Option {
	return func(o *Orchestrator) {
		o.visualOpts = append(o.visualOpts, opts...)
	}
}

// Orchestrator runs the notes, visuals and videos phases of presentations
type Orchestrator struct {
	agents     Agents
	workflow   *notes.Workflow
	contexts   *notes.ContextCache
	visuals    *visual.Pipeline
	videos     *video.Writer
	visualOpts []visual.Option

	renders    *renderCache
	openDeck   func(path string) deck.Reader
	deckWriter deck.Writer
	journal    Journal

	baseline     string
	concurrency  int
	progressFile string
}

func NewOrchestrator(agents Agents, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		agents:      agents,
		workflow:    notes.NewWorkflow(agents),
		contexts:    notes.NewContextCache(agents),
		renders:     newRenderCache(media.NewRasterizer()),
		openDeck:    deck.NewReader,
		deckWriter:  deck.NewWriter(),
		baseline:    agent.DefaultLanguage,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.visuals = visual.NewPipeline(agents, o.visualOpts...)
	if agents.HasVideoModel() {
		o.videos = video.NewWriter(agents)
	} else {
		o.videos = video.NewWriter(nil)
	}
	return o
}

func (o *Orchestrator) Baseline() string {
	return o.baseline
}

// Run processes every language of a presentation: the baseline first, then the
// other languages concurrently. Each language runs notes, then visuals and videos.
func (o *Orchestrator) Run(ctx context.Context, p Presentation, opts RunOptions) (RunReport, error) {
	defer o.renders.forget(p.PDFPath)

	report := RunReport{Presentation: p.Name}
	languages := opts.Languages
	if len(languages) == 0 {
		languages = []string{o.baseline}
	}
	if opts.Reset {
		if err := o.Reset(p, languages); err != nil {
			return report, err
		}
	}

	others := make([]string, 0, len(languages))
	for _, lang := range languages {
		if lang == o.baseline {
			phases, err := o.runLanguage(ctx, p, lang, opts)
			report.Phases = append(report.Phases, phases...)
			if err != nil {
				return report, err
			}
			continue
		}
		others = append(others, lang)
	}

	results := make([][]PhaseReport, len(others))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, lang := range others {
		g.Go(func() error {
			phases, err := o.runLanguage(ctx, p, lang, opts)
			results[i] = phases
			return err
		})
	}
	err := g.Wait()
	for _, phases := range results {
		report.Phases = append(report.Phases, phases...)
	}
	return report, err
}

func (o *Orchestrator) runLanguage(ctx context.Context, p Presentation, lang string, opts RunOptions) ([]PhaseReport, error) {
	var phases []PhaseReport

	r, err := o.RunNotesPhase(ctx, p, lang, opts.RetryMode)
	phases = append(phases, r)
	if err != nil {
		return phases, err
	}

	if !opts.SkipVisuals {
		r, err := o.RunVisualsPhase(ctx, p, lang, opts.RetryMode)
		phases = append(phases, r)
		if err != nil {
			return phases, err
		}
	}

	if opts.Videos {
		r, err := o.RunVideosPhase(ctx, p, lang, opts.RetryMode)
		phases = append(phases, r)
		if err != nil {
			return phases, err
		}
	}
	return phases, nil
}

// phaseInput is what every phase loads before touching a slide
type phaseInput struct {
	deck   *deck.Deck
	images []media.Image
	ledger *progress.Ledger
	path   string
}

func (o *Orchestrator) load(ctx context.Context, p Presentation, lang string, retryMode bool) (*phaseInput, error) {
	d, err := o.openDeck(p.ManifestPath).Read()
	if err != nil {
		return nil, WrapError(err, ErrDeckRead, "failed to read deck").WithContext("deck", p.ManifestPath)
	}

	images, err := o.renders.render(ctx, p.PDFPath, media.SlideDPI)
	if err != nil {
		return nil, WrapError(err, ErrRasterize, "failed to render slides").WithContext("pdf", p.PDFPath)
	}
	if len(images) != len(d.Slides) {
		return nil, NewError(ErrDeckRead, fmt.Sprintf("deck has %d slides but the PDF has %d pages", len(d.Slides), len(images))).
			WithContext("deck", p.ManifestPath)
	}

	path := o.ledgerPath(p, lang)
	ledger, err := progress.Load(path, retryMode)
	if err != nil {
		return nil, WrapError(err, ErrLedger, "failed to load progress").WithContext("path", path)
	}

	return &phaseInput{deck: d, images: images, ledger: ledger, path: path}, nil
}

// Reset removes the progress files of a presentation so every slide is redone
func (o *Orchestrator) Reset(p Presentation, languages []string) error {
	for _, lang := range languages {
		path := o.ledgerPath(p, lang)
		if err := progress.Clear(path); err != nil {
			return WrapError(err, ErrLedger, "failed to reset progress").WithContext("path", path)
		}
		log.Info("Cleared progress of %s [%s]", p.Name, lang)
	}
	return nil
}

func (o *Orchestrator) ledgerPath(p Presentation, lang string) string {
	if o.progressFile != "" {
		return o.progressFile
	}
	return progress.Path(p.OutputDir, p.Name, lang)
}

// RunNotesPhase writes the speaker notes of every slide in one language.
// Slides already in the ledger are skipped; in retry mode failed slides are redone.
func (o *Orchestrator) RunNotesPhase(ctx context.Context, p Presentation, lang string, retryMode bool) (PhaseReport, error) {
	report := PhaseReport{Phase: PhaseNotes, Language: lang}
	logger := log.With("deck", p.Name, "lang", lang, "phase", PhaseNotes)

	in, err := o.load(ctx, p, lang, retryMode)
	if err != nil {
		return report, err
	}
	run := o.startJournal(ctx, p, lang, PhaseNotes, retryMode)

	globalContext := o.globalContext(ctx, p, lang, in.ledger, in.path)

	var baselineLedger *progress.Ledger
	if lang != o.baseline {
		baselineLedger, err = progress.Load(o.ledgerPath(p, o.baseline), false)
		if err != nil {
			logger.Warn("Baseline progress unreadable, generating every slide: %v", err)
			baselineLedger = nil
		}
	}
	selector := notes.NewSelector(o.baseline, baselineLedger)

	memo := &notes.WriterMemo{}
	previous := notes.StartOfPresentation
	committed := make(map[int]string, len(in.deck.Slides))
	total := len(in.deck.Slides)

	for i, slide := range in.deck.Slides {
		if err := ctx.Err(); err != nil {
			o.finishJournal(run, report, err)
			return report, err
		}

		unit := notes.NewSlideUnit(slide.Index, total, lang, slide.Notes, slideImages(in.images[i : i+1])[0])
		if entry, ok := in.ledger.Get(unit.Key()); ok {
			s := SlideReport{Index: unit.Index, Status: progress.StatusSkipped, Mode: "cached"}
			if entry.Status == progress.StatusSuccess {
				previous = notes.Summarize(entry.Note)
				committed[unit.Index] = entry.Note
			} else {
				s.Status, s.Detail = progress.StatusError, entry.Error
			}
			report.add(s)
			continue
		}

		mode := selector.Select(lang, unit.Index, unit.Fingerprint)
		out := o.workflow.Run(ctx, notes.Input{
			Unit:            unit,
			Mode:            mode,
			GlobalContext:   globalContext,
			PreviousSummary: previous,
		}, memo)

		if out.Result.Status == progress.StatusError && ctx.Err() != nil {
			o.finishJournal(run, report, ctx.Err())
			return report, ctx.Err()
		}

		in.ledger.Put(unit.Key(), progress.Entry{
			SlideIndex:    unit.Index,
			Fingerprint:   unit.Fingerprint,
			OriginalNotes: unit.OriginalNotes,
			Note:          out.Result.Note,
			Status:        out.Result.Status,
			Error:         out.Result.ErrorDetail,
		})
		if err := in.ledger.Flush(in.path); err != nil {
			err = WrapError(err, ErrLedger, "failed to save progress").WithContext("path", in.path)
			o.finishJournal(run, report, err)
			return report, err
		}
		memo.Reset()

		s := SlideReport{Index: unit.Index, Status: out.Result.Status, Mode: out.Mode.String(), Detail: out.Result.ErrorDetail}
		report.add(s)
		o.recordSlide(run, unit.Key(), s)

		if out.Result.Status == progress.StatusSuccess {
			previous = notes.Summarize(out.Result.Note)
			committed[unit.Index] = out.Result.Note
			logger.Info("Slide %d/%d done (%s)", unit.Index, total, out.Mode)
		} else {
			logger.Warn("Slide %d/%d failed (%s): %s", unit.Index, total, out.Mode, out.Result.ErrorDetail)
		}
	}

	result := in.deck.Clone()
	result.Language = lang
	for i := range result.Slides {
		if note, ok := committed[result.Slides[i].Index]; ok {
			result.Slides[i].Notes = note
		}
	}
	outPath := deck.NotesOutputPath(p.OutputDir, p.Name, lang, p.ext())
	if err := o.deckWriter.Write(outPath, result); err != nil {
		err = WrapError(err, ErrDeckWrite, "failed to write notes").WithContext("path", outPath)
		o.finishJournal(run, report, err)
		return report, err
	}

	report.Ledger = in.ledger.Counts()
	logger.Info("Notes phase finished: %d success, %d error, %d skipped (%d/%d slides done)",
		report.Success, report.Error, report.Skipped, report.Ledger.Success, total)
	o.finishJournal(run, report, nil)
	return report, nil
}

// globalContext returns the deck summary, or "" when it cannot be produced
func (o *Orchestrator) globalContext(ctx context.Context, p Presentation, lang string, ledger *progress.Ledger, ledgerPath string) string {
	pages, err := o.renders.render(ctx, p.PDFPath, media.OverviewDPI)
	if err != nil {
		log.Warn("Could not render the overview of %s, continuing without global context: %v", p.Name, err)
		return ""
	}
	images := slideImages(pages)
	fingerprint := notes.DeckFingerprint(images)

	var baselineLedger *progress.Ledger
	if lang != o.baseline {
		if l, err := progress.Load(o.ledgerPath(p, o.baseline), false); err == nil {
			baselineLedger = l
		}
	}

	text, err := o.contexts.Get(ctx, notes.ContextRequest{
		Presentation:    p.ManifestPath,
		Language:        lang,
		Baseline:        o.baseline,
		DeckFingerprint: fingerprint,
		Images:          images,
		Ledger:          ledger,
		BaselineLedger:  baselineLedger,
	})
	if err != nil {
		log.Warn("Global context unavailable for %s [%s], continuing without it: %v", p.Name, lang, err)
		return ""
	}

	if gc, ok := ledger.GlobalContext(); !ok || gc.Text != text || gc.Fingerprint != fingerprint {
		ledger.SetGlobalContext(progress.GlobalContext{Text: text, Fingerprint: fingerprint})
		if err := ledger.Flush(ledgerPath); err != nil {
			log.Warn("Failed to save global context: %v", err)
		}
	}
	return text
}

// committedNotes returns the note of each slide: the ledger's success, else the deck's own
func committedNotes(d *deck.Deck, ledger *progress.Ledger) ([]string, []bool) {
	ret := make([]string, len(d.Slides))
	ok := make([]bool, len(d.Slides))
	for i, slide := range d.Slides {
		ret[i] = slide.Notes
		key := progress.Key(slide.Index, progress.Fingerprint(slide.Notes))
		if entry, found := ledger.Get(key); found && entry.Status == progress.StatusSuccess {
			ret[i], ok[i] = entry.Note, true
		}
	}
	return ret, ok
}

// RunVisualsPhase redesigns every slide in one language
func (o *Orchestrator) RunVisualsPhase(ctx context.Context, p Presentation, lang string, retryMode bool) (PhaseReport, error) {
	report := PhaseReport{Phase: PhaseVisuals, Language: lang}

	in, err := o.load(ctx, p, lang, false)
	if err != nil {
		return report, err
	}
	run := o.startJournal(ctx, p, lang, PhaseVisuals, retryMode)

	noteTexts, _ := committedNotes(in.deck, in.ledger)
	images := slideImages(in.images)
	slides := make([]visual.Slide, 0, len(in.deck.Slides))
	for i, slide := range in.deck.Slides {
		slides = append(slides, visual.Slide{Index: slide.Index, Image: images[i], Notes: noteTexts[i]})
	}

	req := visual.Request{
		Language:  lang,
		Baseline:  o.baseline,
		Dir:       deck.VisualsDir(p.OutputDir, p.Name, lang),
		Slides:    slides,
		RetryMode: retryMode,
	}
	if lang != o.baseline {
		req.BaselineDir = deck.VisualsDir(p.OutputDir, p.Name, o.baseline)
	}

	results, err := o.visuals.Run(ctx, req)
	if err != nil {
		err = WrapError(err, ErrVisual, "visuals phase stopped")
		o.finishJournal(run, report, err)
		return report, err
	}

	result := in.deck.Clone()
	result.Language = lang
	complete := true
	for i, res := range results {
		s := SlideReport{Index: res.Index, Mode: res.Branch.String()}
		switch res.Branch {
		case visual.BranchSkipped:
			s.Status = progress.StatusSkipped
		case visual.BranchAbsent:
			s.Status = progress.StatusError
			if res.Err != nil {
				s.Detail = res.Err.Error()
			}
		default:
			s.Status = progress.StatusSuccess
		}
		report.add(s)
		o.recordSlide(run, visual.ArtifactName(res.Index), s)

		if !res.Present() {
			complete = false
			continue
		}
		result.Slides[i].Notes = noteTexts[i]
		result.Slides[i].Visual = filepath.Join(filepath.Base(req.Dir), filepath.Base(res.Path))
	}

	if complete {
		outPath := deck.VisualsOutputPath(p.OutputDir, p.Name, lang, p.ext())
		if err := o.deckWriter.Write(outPath, result); err != nil {
			err = WrapError(err, ErrDeckWrite, "failed to write visuals deck").WithContext("path", outPath)
			o.finishJournal(run, report, err)
			return report, err
		}
	} else {
		log.Warn("%d visuals of %s [%s] are missing, not writing the visuals deck", report.Error, p.Name, lang)
	}

	log.Info("Visuals phase of %s [%s] finished: %d success, %d error, %d skipped", p.Name, lang, report.Success, report.Error, report.Skipped)
	o.finishJournal(run, report, nil)
	return report, nil
}

// RunVideosPhase writes a video prompt for every slide with committed notes
func (o *Orchestrator) RunVideosPhase(ctx context.Context, p Presentation, lang string, retryMode bool) (PhaseReport, error) {
	report := PhaseReport{Phase: PhaseVideos, Language: lang}

	in, err := o.load(ctx, p, lang, false)
	if err != nil {
		return report, err
	}
	run := o.startJournal(ctx, p, lang, PhaseVideos, retryMode)

	noteTexts, ok := committedNotes(in.deck, in.ledger)
	images := slideImages(in.images)
	slides := make([]video.Slide, 0, len(in.deck.Slides))
	for i, slide := range in.deck.Slides {
		if !ok[i] {
			report.add(SlideReport{Index: slide.Index, Status: progress.StatusSkipped, Mode: "no notes"})
			continue
		}
		slides = append(slides, video.Slide{Index: slide.Index, Image: images[i], Notes: noteTexts[i]})
	}

	results, err := o.videos.Run(ctx, video.Request{
		Language:  lang,
		Dir:       deck.VideosDir(p.OutputDir, p.Name, lang),
		Slides:    slides,
		RetryMode: retryMode,
	})
	if err != nil {
		err = WrapError(err, ErrGeneration, "videos phase stopped")
		o.finishJournal(run, report, err)
		return report, err
	}

	for _, res := range results {
		s := SlideReport{Index: res.Index, Mode: res.Source.String()}
		switch {
		case res.Err != nil:
			s.Status, s.Detail = progress.StatusError, res.Err.Error()
		case res.Source == video.SourceSkipped:
			s.Status = progress.StatusSkipped
		default:
			s.Status = progress.StatusSuccess
		}
		report.add(s)
		o.recordSlide(run, video.ArtifactName(res.Index), s)
	}

	log.Info("Videos phase of %s [%s] finished: %d success, %d error, %d skipped", p.Name, lang, report.Success, report.Error, report.Skipped)
	o.finishJournal(run, report, nil)
	return report, nil
}

// journalRun is an open journal entry; a zero value records nothing
type journalRun struct {
	id  string
	ctx context.Context
}

func (o *Orchestrator) startJournal(ctx context.Context, p Presentation, lang string, phase Phase, retryMode bool) journalRun {
	if o.journal == nil {
		return journalRun{}
	}
	jctx := context.WithoutCancel(ctx)
	id, err := o.journal.StartPhase(jctx, persistence.PhaseRun{
		Deck:      p.Name,
		Language:  lang,
		Phase:     string(phase),
		RetryMode: retryMode,
	})
	if err != nil {
		log.Warn("Failed to journal %s phase of %s [%s]: %v", phase, p.Name, lang, err)
		return journalRun{}
	}
	return journalRun{id: id, ctx: jctx}
}

func (o *Orchestrator) recordSlide(run journalRun, key string, s SlideReport) {
	if run.id == "" {
		return
	}
	if err := o.journal.RecordSlide(run.ctx, persistence.SlideEvent{
		RunID:      run.id,
		SlideIndex: s.Index,
		Key:        key,
		Mode:       s.Mode,
		Status:     string(s.Status),
		Detail:     s.Detail,
	}); err != nil {
		log.Warn("Failed to journal slide %d: %v", s.Index, err)
	}
}

func (o *Orchestrator) finishJournal(run journalRun, report PhaseReport, cause error) {
	if run.id == "" {
		return
	}
	status := persistence.RunCompleted
	detail := ""
	if cause != nil {
		status = persistence.RunFailed
		detail = cause.Error()
		if errors.Is(cause, context.Canceled) {
			detail = "cancelled"
		}
	}
	if err := o.journal.FinishPhase(run.ctx, persistence.PhaseRun{
		ID:      run.id,
		Status:  status,
		Success: report.Success,
		Error:   report.Error,
		Skipped: report.Skipped,
		Detail:  detail,
	}); err != nil {
		log.Warn("Failed to finish journal run %s: %v", run.id, err)
	}
}
