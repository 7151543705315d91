package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/MimeLyc/slidesage/internal/config"
	"github.com/MimeLyc/slidesage/internal/persistence"
	"github.com/MimeLyc/slidesage/internal/service"
)

const historyLimit = 20

type journalReader interface {
	ListRuns(ctx context.Context, deck string, limit int) ([]persistence.PhaseRun, error)
	GetRun(ctx context.Context, id string) (persistence.PhaseRun, bool, error)
	SlideEvents(ctx context.Context, runID string) ([]persistence.SlideEvent, error)
}

// showHistory prints the journal of a deck, or of a single run when -run is set.
// Unlike openJournal it leaves running phases alone.
func showHistory(ctx context.Context, cfg *config.Config, opts cliOptions, w io.Writer) error {
	if !cfg.Journal.Enabled {
		return service.NewError(service.ErrConfig, "the run journal is disabled (JOURNAL_ENABLED=false)")
	}
	store, err := persistence.NewSQLiteStore(cfg.Journal.Path)
	if err != nil {
		return service.WrapError(err, service.ErrConfig, "failed to open journal").WithContext("path", cfg.Journal.Path)
	}
	defer store.Close()

	if opts.runID != "" {
		return printRun(ctx, store, opts.runID, w)
	}
	p := service.NewPresentation(opts.deckPath, opts.pdfPath, cfg.Output.Dir)
	return printHistory(ctx, store, p.Name, historyLimit, w)
}

func printHistory(ctx context.Context, store journalReader, deck string, limit int, w io.Writer) error {
	runs, err := store.ListRuns(ctx, deck, limit)
	if err != nil {
		return service.WrapError(err, service.ErrUnknown, "failed to read journal").WithContext("deck", deck)
	}
	if len(runs) == 0 {
		fmt.Fprintf(w, "no runs recorded for %s\n", deck)
		return nil
	}
	for _, run := range runs {
		printRunLine(w, run)
	}
	return nil
}

func printRun(ctx context.Context, store journalReader, id string, w io.Writer) error {
	run, ok, err := store.GetRun(ctx, id)
	if err != nil {
		return service.WrapError(err, service.ErrUnknown, "failed to read journal").WithContext("run", id)
	}
	if !ok {
		return service.NewError(service.ErrConfig, "no such run").WithContext("run", id)
	}
	events, err := store.SlideEvents(ctx, id)
	if err != nil {
		return service.WrapError(err, service.ErrUnknown, "failed to read slide events").WithContext("run", id)
	}

	printRunLine(w, run)
	if run.Detail != "" {
		fmt.Fprintf(w, "  %s\n", run.Detail)
	}
	for _, ev := range events {
		fmt.Fprintf(w, "  slide %d %s (%s)", ev.SlideIndex, ev.Status, ev.Mode)
		if ev.Detail != "" {
			fmt.Fprintf(w, ": %s", ev.Detail)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func printRunLine(w io.Writer, run persistence.PhaseRun) {
	retry := ""
	if run.RetryMode {
		retry = " retry"
	}
	fmt.Fprintf(w, "%s %s %s [%s] %s%s %s: %d success, %d error, %d skipped\n",
		run.StartedAt.Local().Format(time.DateTime), run.ID, run.Deck, run.Language, run.Phase, retry,
		run.Status, run.Success, run.Error, run.Skipped)
}
