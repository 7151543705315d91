package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the run journal
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer of a migration file name ("001_init.sql" is 1)
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// StartPhase records a running phase and returns its ID
func (s *SQLiteStore) StartPhase(ctx context.Context, run PhaseRun) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO phase_runs (id, deck, language, phase, retry_mode, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Deck,
		run.Language,
		run.Phase,
		boolToInt(run.RetryMode),
		string(RunRunning),
		run.StartedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert phase run: %w", err)
	}
	return run.ID, nil
}

// FinishPhase stores the final counts of a phase run
func (s *SQLiteStore) FinishPhase(ctx context.Context, run PhaseRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE phase_runs SET
			status = ?, success_count = ?, error_count = ?, skipped_count = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status),
		run.Success,
		run.Error,
		run.Skipped,
		run.Detail,
		run.FinishedAt.UTC(),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update phase run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("phase run %s not found", run.ID)
	}
	return nil
}

func (s *SQLiteStore) RecordSlide(ctx context.Context, ev SlideEvent) error {
	createdAt := ev.CreatedAt.UTC()
	if ev.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO slide_events (run_id, slide_index, slide_key, mode, status, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, slide_index) DO UPDATE SET
			slide_key=excluded.slide_key,
			mode=excluded.mode,
			status=excluded.status,
			detail=excluded.detail,
			created_at=excluded.created_at`,
		ev.RunID,
		ev.SlideIndex,
		ev.Key,
		ev.Mode,
		ev.Status,
		ev.Detail,
		createdAt,
	)
	return err
}

// ListRuns returns the latest phase runs of a deck, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context, deck string, limit int) ([]PhaseRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, deck, language, phase, retry_mode, status, success_count, error_count, skipped_count, error, started_at, finished_at
		 FROM phase_runs
		 WHERE deck = ?
		 ORDER BY started_at DESC, id ASC
		 LIMIT ?`,
		deck,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]PhaseRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (PhaseRun, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, deck, language, phase, retry_mode, status, success_count, error_count, skipped_count, error, started_at, finished_at
		 FROM phase_runs
		 WHERE id = ?`,
		id,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PhaseRun{}, false, nil
		}
		return PhaseRun{}, false, err
	}
	return run, true, nil
}

func (s *SQLiteStore) SlideEvents(ctx context.Context, runID string) ([]SlideEvent, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, slide_index, slide_key, mode, status, detail, created_at
		 FROM slide_events
		 WHERE run_id = ?
		 ORDER BY slide_index ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]SlideEvent, 0)
	for rows.Next() {
		var ev SlideEvent
		if err := rows.Scan(&ev.RunID, &ev.SlideIndex, &ev.Key, &ev.Mode, &ev.Status, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// MarkInterrupted fails every run left running by a previous process
func (s *SQLiteStore) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE phase_runs SET status = ?, error = ?, finished_at = ? WHERE status = ?`,
		string(RunFailed),
		"interrupted",
		time.Now().UTC(),
		string(RunRunning),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteRunsBefore removes finished runs started before t, with their slide events
func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM slide_events WHERE run_id IN (SELECT id FROM phase_runs WHERE started_at < ? AND status != ?)`,
		t.UTC(), string(RunRunning)); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM phase_runs WHERE started_at < ? AND status != ?`, t.UTC(), string(RunRunning))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (PhaseRun, error) {
	var (
		run        PhaseRun
		retryMode  int
		status     string
		finishedAt sql.NullTime
	)
	if err := row.Scan(
		&run.ID,
		&run.Deck,
		&run.Language,
		&run.Phase,
		&retryMode,
		&status,
		&run.Success,
		&run.Error,
		&run.Skipped,
		&run.Detail,
		&run.StartedAt,
		&finishedAt,
	); err != nil {
		return PhaseRun{}, err
	}
	run.RetryMode = retryMode == 1
	run.Status = RunStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return run, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
