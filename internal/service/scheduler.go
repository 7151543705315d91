package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/slidesage/internal/library"
	"github.com/MimeLyc/slidesage/pkg/icron"
	"github.com/MimeLyc/slidesage/pkg/log"
)

// Runner processes one presentation
type Runner interface {
	Run(ctx context.Context, p Presentation, opts RunOptions) (RunReport, error)
}

// Scheduler processes the decks of the input directories, on demand or on a cron schedule
type Scheduler struct {
	cronExpr  string
	cron      *cron.Cron
	scanner   *library.Scanner
	runner    Runner
	opts      RunOptions
	outputDir string
	handler   ErrorHandler

	group singleflight.Group

	mu          sync.Mutex
	lastTrigger time.Time
	now         func() time.Time
}

func NewScheduler(
	cronExpr string,
	c *cron.Cron,
	scanner *library.Scanner,
	runner Runner,
	opts RunOptions,
	outputDir string,
) *Scheduler {
	return &Scheduler{
		cronExpr:  cronExpr,
		cron:      c,
		scanner:   scanner,
		runner:    runner,
		opts:      opts,
		outputDir: outputDir,
		handler:   NewDefaultErrorHandler(),
		now:       time.Now,
	}
}

// Schedule registers the scan on the cron; the caller starts and stops the cron
func (s *Scheduler) Schedule(ctx context.Context) error {
	log.Info("Scheduling deck scans with %q", s.cronExpr)

	_, err := s.cron.AddFunc(s.cronExpr, func() {
		if _, err := s.Trigger(ctx); err != nil {
			log.Error("Scheduled run failed: %v", err)
		}
	})
	return err
}

// Trigger processes decks changed since the previous trigger and decks with pending languages.
// Overlapping triggers share one run.
func (s *Scheduler) Trigger(ctx context.Context) (int, error) {
	ret, err, _ := s.group.Do("run", func() (any, error) {
		now := s.now()
		s.mu.Lock()
		last := s.lastTrigger
		s.mu.Unlock()

		since, err := icron.ScanStart(s.cronExpr, last, now)
		if err != nil {
			return 0, err
		}

		if err := s.syncLanguages(); err != nil {
			return 0, err
		}
		s.scanner.Invalidate()
		decks, err := s.selectDecks(ctx, since)
		if err != nil {
			return 0, err
		}
		n := s.process(ctx, decks)

		s.mu.Lock()
		s.lastTrigger = now
		s.mu.Unlock()
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return ret.(int), nil
}

// ProcessAll runs every deck of the input directories once
func (s *Scheduler) ProcessAll(ctx context.Context) (int, error) {
	if err := s.syncLanguages(); err != nil {
		return 0, err
	}
	s.scanner.Invalidate()
	lib, err := s.scanner.Scan(ctx)
	if err != nil {
		return 0, err
	}
	return s.process(ctx, lib.Decks), nil
}

// syncLanguages points the scanner's pending check at the languages the runs produce
func (s *Scheduler) syncLanguages() error {
	if len(s.opts.Languages) == 0 || slices.Equal(s.scanner.Languages(), s.opts.Languages) {
		return nil
	}
	if err := s.scanner.UpdateLanguages(s.opts.Languages); err != nil {
		return WrapError(err, ErrConfig, "invalid run languages")
	}
	log.Info("Scanning for pending languages %v", s.scanner.Languages())
	return nil
}

func (s *Scheduler) selectDecks(ctx context.Context, since time.Time) ([]library.Deck, error) {
	changed, err := s.scanner.ChangedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	lib, err := s.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	ret := make([]library.Deck, 0, len(changed))
	for _, d := range changed {
		seen[d.ID] = true
		ret = append(ret, d)
	}
	for _, d := range lib.Decks {
		if !seen[d.ID] && len(d.Pending) > 0 {
			ret = append(ret, d)
		}
	}
	log.Info("Found %d decks to process (%d changed since %s)", len(ret), len(changed), since.Format(time.RFC3339))
	return ret, nil
}

// process runs each deck in turn; a failing deck never stops the others
func (s *Scheduler) process(ctx context.Context, decks []library.Deck) int {
	done := 0
	for _, d := range decks {
		if ctx.Err() != nil {
			break
		}
		p := PresentationOf(d, s.outputDir)
		err := SafeExecute(func() error {
			report, err := s.runner.Run(ctx, p, s.opts)
			if err != nil {
				return err
			}
			for _, phase := range report.Phases {
				log.Info("%s [%s] %s: %d success, %d error, %d skipped",
					p.Name, phase.Language, phase.Phase, phase.Success, phase.Error, phase.Skipped)
			}
			return nil
		})
		if err != nil {
			s.handler.Handle(err)
			continue
		}
		done++
	}
	s.scanner.Invalidate()
	return done
}
