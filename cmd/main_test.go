package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/slidesage/internal/config"
	"github.com/MimeLyc/slidesage/internal/persistence"
	"github.com/MimeLyc/slidesage/internal/service"
)

type fakeScheduler struct {
	called bool
	err    error
}

func (f *fakeScheduler) Schedule(context.Context) error {
	f.called = true
	return f.err
}

type fakeCron struct {
	started bool
	stopped bool
}

func (f *fakeCron) Start() {
	f.started = true
}

func (f *fakeCron) Stop() context.Context {
	f.stopped = true
	return context.Background()
}

func TestRunScheduled_StartsAndStopsCron(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scheduler := &fakeScheduler{}
	engine := &fakeCron{}

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- runScheduled(ctx, scheduler, engine)
	}()
	cancel()

	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runScheduled did not exit after cancellation")
	}

	assert.True(t, scheduler.called)
	assert.True(t, engine.started)
	assert.True(t, engine.stopped)
}

func TestRunScheduled_ScheduleFailure(t *testing.T) {
	engine := &fakeCron{}
	err := runScheduled(context.Background(), &fakeScheduler{err: errors.New("bad expression")}, engine)

	require.Error(t, err)
	assert.False(t, engine.started)
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-languages", "en,fr", "-retry-errors", "-videos", "talk.yaml"})
	require.NoError(t, err)

	assert.Equal(t, "talk.yaml", opts.deckPath)
	assert.Equal(t, "en,fr", opts.languages)
	assert.True(t, opts.retryErrors)
	assert.True(t, opts.videos)
	assert.False(t, opts.skipVisuals)

	_, err = parseFlags([]string{"-deck", "talk.json", "-schedule"})
	assert.Error(t, err)

	opts, err = parseFlags([]string{"-reset", "-history", "talk.json"})
	require.NoError(t, err)
	assert.True(t, opts.reset)
	assert.True(t, opts.history)

	_, err = parseFlags([]string{"-reset", "-input-dir", "talks"})
	assert.Error(t, err)
	_, err = parseFlags([]string{"-history"})
	assert.Error(t, err)

	opts, err = parseFlags([]string{"-run", "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", opts.runID)
}

func TestLedgerOptions_ProgressFileNeedsSingleDeck(t *testing.T) {
	cfg := &config.Config{}
	cfg.Output.ProgressFile = "shared_progress.json"
	cfg.Schedule.InputDir = "talks"

	_, err := ledgerOptions(cfg, cliOptions{inputDir: "talks"})
	require.Error(t, err)
	assert.True(t, service.IsErrorType(err, service.ErrConfig))

	_, err = ledgerOptions(cfg, cliOptions{schedule: true})
	assert.Error(t, err)

	opts, err := ledgerOptions(cfg, cliOptions{deckPath: "talk.json"})
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	cfg.Output.ProgressFile = ""
	opts, err = ledgerOptions(cfg, cliOptions{inputDir: "talks"})
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func journalWithRun(t *testing.T) (*persistence.SQLiteStore, string) {
	t.Helper()
	ctx := context.Background()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	id, err := store.StartPhase(ctx, persistence.PhaseRun{Deck: "talk", Language: "fr", Phase: "notes", RetryMode: true})
	require.NoError(t, err)
	require.NoError(t, store.RecordSlide(ctx, persistence.SlideEvent{RunID: id, SlideIndex: 1, Key: "slide_1_e3b0c442", Mode: "translate", Status: "success"}))
	require.NoError(t, store.RecordSlide(ctx, persistence.SlideEvent{RunID: id, SlideIndex: 2, Key: "slide_2_e3b0c442", Mode: "generate", Status: "error", Detail: "write: rate limited"}))
	require.NoError(t, store.FinishPhase(ctx, persistence.PhaseRun{ID: id, Status: persistence.RunCompleted, Success: 1, Error: 1}))
	return store, id
}

func TestPrintHistory(t *testing.T) {
	store, id := journalWithRun(t)

	var buf bytes.Buffer
	require.NoError(t, printHistory(context.Background(), store, "talk", historyLimit, &buf))
	assert.Contains(t, buf.String(), id)
	assert.Contains(t, buf.String(), "talk [fr] notes retry completed: 1 success, 1 error, 0 skipped")

	buf.Reset()
	require.NoError(t, printHistory(context.Background(), store, "other", historyLimit, &buf))
	assert.Equal(t, "no runs recorded for other\n", buf.String())
}

func TestPrintRun_ListsSlides(t *testing.T) {
	store, id := journalWithRun(t)

	var buf bytes.Buffer
	require.NoError(t, printRun(context.Background(), store, id, &buf))
	out := buf.String()
	assert.Contains(t, out, "  slide 1 success (translate)\n")
	assert.Contains(t, out, "  slide 2 error (generate): write: rate limited\n")

	err := printRun(context.Background(), store, "missing", &buf)
	require.Error(t, err)
	assert.True(t, service.IsErrorType(err, service.ErrConfig))
}

func TestConfigOptions_OverrideEnvironment(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("LANGUAGES", "de")

	opts, err := parseFlags([]string{"-languages", "en, fr", "-skip-visuals", "-output-dir", "/tmp/out"})
	require.NoError(t, err)

	cfg, err := config.Load("", opts.configOptions()...)
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "fr"}, cfg.Processing.Languages)
	assert.True(t, cfg.Processing.SkipVisuals)
	assert.Equal(t, "/tmp/out", cfg.Output.Dir)

	models := modelsOf(cfg)
	assert.Equal(t, cfg.LLM.Model, models.Default)
}

func TestOpenJournal_ClosesInterruptedRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	store, err := persistence.NewSQLiteStore(path)
	require.NoError(t, err)
	id, err := store.StartPhase(ctx, persistence.PhaseRun{Deck: "talk", Language: "en", Phase: "notes"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = openJournal(ctx, config.JournalConfig{Enabled: true, Path: path, RetentionDays: 30})
	require.NoError(t, err)
	defer store.Close()

	run, ok, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, persistence.RunFailed, run.Status)
}
