package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/slidesage/internal/agent"
	"github.com/MimeLyc/slidesage/internal/config"
	"github.com/MimeLyc/slidesage/internal/library"
	"github.com/MimeLyc/slidesage/internal/llm"
	"github.com/MimeLyc/slidesage/internal/persistence"
	"github.com/MimeLyc/slidesage/internal/service"
	"github.com/MimeLyc/slidesage/internal/visual"
	"github.com/MimeLyc/slidesage/pkg/icron"
	"github.com/MimeLyc/slidesage/pkg/log"
)

type cliOptions struct {
	deckPath    string
	pdfPath     string
	inputDir    string
	outputDir   string
	languages   string
	configPath  string
	retryErrors bool
	skipVisuals bool
	videos      bool
	schedule    bool
	reset       bool
	history     bool
	runID       string
}

func parseFlags(args []string) (cliOptions, error) {
	var o cliOptions
	fs := flag.NewFlagSet("slidesage", flag.ContinueOnError)
	fs.StringVar(&o.deckPath, "deck", "", "deck manifest (.json or .yaml) to process")
	fs.StringVar(&o.pdfPath, "pdf", "", "rendered PDF of the deck (default: the manifest path with .pdf)")
	fs.StringVar(&o.inputDir, "input-dir", "", "directory scanned for decks when -deck is not set")
	fs.StringVar(&o.outputDir, "output-dir", "", "output directory (default: next to each deck)")
	fs.StringVar(&o.languages, "languages", "", "comma separated locales; the first is the baseline")
	fs.StringVar(&o.configPath, "config", "", "optional YAML or JSON config file")
	fs.BoolVar(&o.retryErrors, "retry-errors", false, "reprocess only the slides that failed")
	fs.BoolVar(&o.skipVisuals, "skip-visuals", false, "write notes only")
	fs.BoolVar(&o.videos, "videos", false, "also write video prompts")
	fs.BoolVar(&o.schedule, "schedule", false, "keep running and scan the input directory on the cron schedule")
	fs.BoolVar(&o.reset, "reset", false, "clear the deck's progress and redo every slide")
	fs.BoolVar(&o.history, "history", false, "print the journaled runs of the deck and exit")
	fs.StringVar(&o.runID, "run", "", "print one journaled run with its slides and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.deckPath == "" && fs.NArg() > 0 {
		o.deckPath = fs.Arg(0)
	}
	if o.deckPath != "" && o.schedule {
		return o, errors.New("-schedule scans the input directory and cannot be combined with -deck")
	}
	if o.reset && o.deckPath == "" {
		return o, errors.New("-reset needs -deck")
	}
	if o.history && o.deckPath == "" {
		return o, errors.New("-history needs -deck")
	}
	return o, nil
}

func (o cliOptions) configOptions() []config.Option {
	opts := []config.Option{
		config.WithRetryErrors(o.retryErrors),
		config.WithPhases(o.skipVisuals, o.videos),
		config.WithOutputDir(o.outputDir),
		config.WithInputDir(o.inputDir),
	}
	if o.languages != "" {
		opts = append(opts, config.WithLanguages(strings.Split(o.languages, ",")...))
	}
	return opts
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	_ = godotenv.Load()
	if opts.configPath == "" {
		opts.configPath = os.Getenv("SLIDESAGE_CONFIG")
	}

	cfg, err := config.Load(opts.configPath, opts.configOptions()...)
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatal("Failed to initialize logger: %v", err)
	}
	log.SetLogger(logger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		service.NewDefaultErrorHandler().Handle(err)
		logger.Sync()
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) (*log.Logger, error) {
	level := log.ParseLevel(cfg.Level)
	if cfg.File != "" {
		fl, err := log.NewFileLogger(cfg.File, level)
		if err != nil {
			return nil, err
		}
		return fl.Logger, nil
	}
	return log.NewModeLogger(cfg.Mode, level)
}

// ledgerOptions scopes SPEAKER_NOTE_PROGRESS_FILE to a single -deck run
func ledgerOptions(cfg *config.Config, opts cliOptions) ([]service.Option, error) {
	if cfg.Output.ProgressFile == "" {
		return nil, nil
	}
	if opts.deckPath == "" {
		return nil, service.NewError(service.ErrConfig, "SPEAKER_NOTE_PROGRESS_FILE only applies to a single -deck run").
			WithContext("input_dir", cfg.Schedule.InputDir)
	}
	return []service.Option{service.WithProgressFile(cfg.Output.ProgressFile)}, nil
}

func run(ctx context.Context, cfg *config.Config, opts cliOptions) error {
	if opts.history || opts.runID != "" {
		return showHistory(ctx, cfg, opts, os.Stdout)
	}
	ledgerOpts, err := ledgerOptions(cfg, opts)
	if err != nil {
		return err
	}

	client, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
	})
	if err != nil {
		return service.WrapError(err, service.ErrConfig, "invalid LLM configuration")
	}
	if err := client.Ping(ctx); err != nil {
		return service.WrapError(err, service.ErrNetwork, "LLM endpoint is unreachable").WithContext("url", cfg.LLM.APIURL)
	}

	agents := agent.New(client, modelsOf(cfg), agentOptions(cfg)...)

	orchOpts := []service.Option{
		service.WithBaseline(cfg.Processing.Baseline()),
		service.WithLanguageConcurrency(cfg.Processing.LanguageConcurrency),
		service.WithVisualOptions(visual.WithForcedFallback(cfg.Processing.ForceFallbackDesigner)),
	}
	orchOpts = append(orchOpts, ledgerOpts...)
	if cfg.Journal.Enabled {
		store, err := openJournal(ctx, cfg.Journal)
		if err != nil {
			return err
		}
		defer store.Close()
		orchOpts = append(orchOpts, service.WithJournal(store))
	}
	orch := service.NewOrchestrator(agents, orchOpts...)

	runOpts := service.RunOptions{
		Languages:   cfg.Processing.Languages,
		RetryMode:   cfg.Processing.RetryErrors,
		SkipVisuals: cfg.Processing.SkipVisuals,
		Videos:      cfg.Processing.Videos,
	}

	if opts.deckPath != "" {
		p := service.NewPresentation(opts.deckPath, opts.pdfPath, cfg.Output.Dir)
		runOpts.Reset = opts.reset
		report, err := orch.Run(ctx, p, runOpts)
		printReport(report)
		if err != nil {
			return err
		}
		if report.Failed() {
			return service.NewError(service.ErrGeneration, "some slides failed").WithContext("deck", p.Name)
		}
		return nil
	}

	if cfg.Schedule.InputDir == "" {
		return service.NewError(service.ErrConfig, "either -deck or an input directory is required")
	}
	scanner := library.NewScanner(
		[]library.SourceConfig{{ID: "input", Name: "Input", Path: cfg.Schedule.InputDir}},
		cfg.Processing.Languages,
		library.WithOutputDir(cfg.Output.Dir),
	)
	engine := cron.New(cron.WithParser(icron.Parser))
	scheduler := service.NewScheduler(cfg.Schedule.CronExpr, engine, scanner, orch, runOpts, cfg.Output.Dir)

	if !opts.schedule {
		n, err := scheduler.ProcessAll(ctx)
		log.Info("Processed %d decks from %s", n, cfg.Schedule.InputDir)
		return err
	}
	return runScheduled(ctx, scheduler, engine)
}

func modelsOf(cfg *config.Config) agent.Models {
	m := cfg.Models
	return agent.Models{
		Default:          cfg.LLM.Model,
		Auditor:          m.Auditor,
		Analyst:          m.Analyst,
		Writer:           m.Writer,
		Overviewer:       m.Overviewer,
		Translator:       m.Translator,
		ImageTranslator:  m.ImageTranslator,
		Designer:         m.Designer,
		FallbackDesigner: m.FallbackDesigner,
		Video:            m.Video,
	}
}

func agentOptions(cfg *config.Config) []agent.Option {
	return []agent.Option{
		agent.WithRetryPolicy(cfg.Retry.Policy()),
		agent.WithSpeakerStyle(cfg.Processing.SpeakerStyle),
		agent.WithVisualStyle(cfg.Processing.VisualStyle),
		agent.WithTheme(cfg.Processing.Theme),
	}
}

// openJournal opens the run journal and closes out runs a previous process left open
func openJournal(ctx context.Context, cfg config.JournalConfig) (*persistence.SQLiteStore, error) {
	store, err := persistence.NewSQLiteStore(cfg.Path)
	if err != nil {
		return nil, service.WrapError(err, service.ErrConfig, "failed to open journal").WithContext("path", cfg.Path)
	}
	if n, err := store.MarkInterrupted(ctx); err != nil {
		log.Warn("Failed to close interrupted journal runs: %v", err)
	} else if n > 0 {
		log.Info("Marked %d interrupted runs as failed", n)
	}
	if cfg.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)
		if _, err := store.DeleteRunsBefore(ctx, cutoff); err != nil {
			log.Warn("Failed to prune journal: %v", err)
		}
	}
	return store, nil
}

type cronScheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

// runScheduled starts the cron and blocks until ctx is cancelled and running jobs finish
func runScheduled(ctx context.Context, scheduler cronScheduler, engine cronEngine) error {
	if err := scheduler.Schedule(ctx); err != nil {
		return service.WrapError(err, service.ErrConfig, "failed to schedule deck scans")
	}
	engine.Start()
	log.Info("Scheduler started")

	<-ctx.Done()
	log.Info("Shutting down, waiting for running jobs")
	<-engine.Stop().Done()
	return nil
}

func printReport(r service.RunReport) {
	for _, p := range r.Phases {
		fmt.Printf("%s [%s] %s: %d success, %d error, %d skipped\n", r.Presentation, p.Language, p.Phase, p.Success, p.Error, p.Skipped)
		if p.Phase == service.PhaseNotes && p.Ledger.Error > 0 {
			fmt.Printf("  %d slides still failing, rerun with -retry-errors\n", p.Ledger.Error)
		}
		for _, s := range p.Slides {
			if s.Status == "error" {
				fmt.Printf("  slide %d: %s\n", s.Index, s.Detail)
			}
		}
	}
}
