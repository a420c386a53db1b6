package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on runs.batch_number for history filters
const currentSchemaVersion = 1

// Index implements ports.RunIndex on a SQLite file.
// Uses WAL mode so history queries do not block the recording run.
type Index struct {
	db *sql.DB
}

// Open creates or opens the index database at path.
// Applies required pragmas and migrations automatically.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the database connection.
func (i *Index) Close() error {
	if i.db == nil {
		return nil
	}
	return i.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_batch ON runs(batch_number)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Record adds or replaces a run.
func (i *Index) Record(ctx context.Context, s domain.RunSummary) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO runs (experiment_id, correlation_id, archive_path, definition, success, outcome, batch_number, image_count, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(experiment_id) DO UPDATE SET
			correlation_id = excluded.correlation_id,
			archive_path   = excluded.archive_path,
			definition     = excluded.definition,
			success        = excluded.success,
			outcome        = excluded.outcome,
			batch_number   = excluded.batch_number,
			image_count    = excluded.image_count,
			started_at     = excluded.started_at
	`, s.ExperimentID, s.CorrelationID, s.ArchivePath, s.Definition, s.Success, string(s.Outcome),
		s.BatchNumber, s.ImageCount, s.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const selectRuns = `
	SELECT experiment_id, correlation_id, archive_path, definition, success, outcome, batch_number, image_count, started_at
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (domain.RunSummary, error) {
	var (
		s       domain.RunSummary
		outcome string
		started int64
	)
	if err := row.Scan(&s.ExperimentID, &s.CorrelationID, &s.ArchivePath, &s.Definition,
		&s.Success, &outcome, &s.BatchNumber, &s.ImageCount, &started); err != nil {
		return domain.RunSummary{}, err
	}
	s.Outcome = domain.Outcome(outcome)
	s.StartedAt = time.Unix(0, started)
	return s, nil
}

// Get returns one run. Returns domain.ErrNotFound if it is unknown.
func (i *Index) Get(ctx context.Context, experimentID string) (*domain.RunSummary, error) {
	row := i.db.QueryRowContext(ctx, selectRuns+` WHERE experiment_id = ?`, experimentID)
	s, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", experimentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("query run: %w", err)
	}
	return &s, nil
}

// List returns runs newest first.
func (i *Index) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.RunSummary, error) {
	query := selectRuns
	var args []any
	if filter.Batch != nil {
		query += ` WHERE batch_number = ?`
		args = append(args, *filter.Batch)
	}
	query += ` ORDER BY started_at DESC, experiment_id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := []domain.RunSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
