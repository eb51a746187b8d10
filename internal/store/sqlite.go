package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// ErrRunNotFound is returned by GetRun when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	algorithm       TEXT    NOT NULL,
	tickers         TEXT    NOT NULL,
	start_ms        INTEGER NOT NULL,
	end_ms          INTEGER NOT NULL,
	initial_capital REAL    NOT NULL,
	final_capital   REAL    NOT NULL,
	total_return    REAL    NOT NULL,
	annual_return   REAL    NOT NULL,
	sharpe_ratio    REAL    NOT NULL,
	max_drawdown    REAL    NOT NULL,
	trade_count     INTEGER NOT NULL,
	win_rate        REAL    NOT NULL,
	ledger_path     TEXT    NOT NULL DEFAULT '',
	created_ms      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_algorithm_created ON runs (algorithm, created_ms);
`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts a run. CreatedAt defaults to now when unset.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) (int64, error) {
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (algorithm, tickers, start_ms, end_ms, initial_capital, final_capital,
			total_return, annual_return, sharpe_ratio, max_drawdown, trade_count, win_rate,
			ledger_path, created_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Algorithm, strings.Join(run.Tickers, ","), run.Start.UnixMilli(), run.End.UnixMilli(),
		run.InitialCapital, run.FinalCapital, run.TotalReturn, run.AnnualReturn, run.SharpeRatio,
		run.MaxDrawdown, run.TradeCount, run.WinRate, run.LedgerPath, created.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}
	run.ID = id
	run.CreatedAt = time.UnixMilli(created.UnixMilli())
	return id, nil
}

const runColumns = `id, algorithm, tickers, start_ms, end_ms, initial_capital, final_capital,
	total_return, annual_return, sharpe_ratio, max_drawdown, trade_count, win_rate,
	ledger_path, created_ms`

// GetRun retrieves a single run by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, algorithm string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE ? = '' OR algorithm = ?
		ORDER BY created_ms DESC, id DESC
		LIMIT ?`, algorithm, algorithm, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (*Run, error) {
	var (
		run                       Run
		tickers                   string
		startMs, endMs, createdMs int64
	)
	err := sc.Scan(&run.ID, &run.Algorithm, &tickers, &startMs, &endMs,
		&run.InitialCapital, &run.FinalCapital, &run.TotalReturn, &run.AnnualReturn,
		&run.SharpeRatio, &run.MaxDrawdown, &run.TradeCount, &run.WinRate,
		&run.LedgerPath, &createdMs)
	if err != nil {
		return nil, err
	}
	if tickers != "" {
		run.Tickers = strings.Split(tickers, ",")
	}
	run.Start = time.UnixMilli(startMs).UTC()
	run.End = time.UnixMilli(endMs).UTC()
	run.CreatedAt = time.UnixMilli(createdMs)
	return &run, nil
}
