package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fitk/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS fits (
	id          TEXT PRIMARY KEY,
	subject     TEXT NOT NULL,
	k           REAL NOT NULL,
	m           REAL NOT NULL,
	ll          REAL NOT NULL,
	trials      INTEGER NOT NULL,
	restarts    INTEGER NOT NULL,
	feasible    INTEGER NOT NULL,
	seed        TEXT NOT NULL,
	diagnostics TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fit_trials (
	fit_id TEXT NOT NULL REFERENCES fits(id) ON DELETE CASCADE,
	idx    INTEGER NOT NULL,
	r1     REAL NOT NULL,
	d1     REAL NOT NULL,
	r2     REAL NOT NULL,
	d2     REAL NOT NULL,
	choice INTEGER NOT NULL,
	PRIMARY KEY (fit_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_fits_subject ON fits(subject);
CREATE INDEX IF NOT EXISTS idx_fits_created_at ON fits(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveFit(ctx context.Context, fit *model.FitResult, trials model.Trials) error {
	if err := validateFit(fit); err != nil {
		return err
	}
	diagJSON, err := json.Marshal(fit.Diagnostics)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal diagnostics")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO fits (id, subject, k, m, ll, trials, restarts, feasible, seed, diagnostics, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fit.ID, fit.Subject, fit.Params.K, fit.Params.M, fit.LogLikelihood,
		fit.Trials, fit.Restarts, fit.Feasible, formatSeed(fit.Seed), string(diagJSON), fit.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert fit %s", fit.ID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fit_trials (fit_id, idx, r1, d1, r2, d2, choice) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare trial insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, t := range trials {
		if _, err := stmt.ExecContext(ctx, fit.ID, i, t.SSAmount, t.SSDelay, t.LLAmount, t.LLDelay, int(t.Choice)); err != nil {
			return eris.Wrapf(err, "sqlite: insert trial %d of fit %s", i, fit.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit fit")
}

const sqliteFitColumns = `id, subject, k, m, ll, trials, restarts, feasible, seed, diagnostics, created_at`

func (s *SQLiteStore) GetFit(ctx context.Context, id string) (*model.FitResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteFitColumns+` FROM fits WHERE id = ?`, id)
	fit, err := scanFit(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get fit %s", id)
	}
	return fit, nil
}

func (s *SQLiteStore) GetLatestFit(ctx context.Context, subject string) (*model.FitResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteFitColumns+` FROM fits WHERE subject = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		subject)
	fit, err := scanFit(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest fit for %s", subject)
	}
	return fit, nil
}

func (s *SQLiteStore) ListFits(ctx context.Context, filter FitFilter) ([]model.FitResult, error) {
	query := `SELECT ` + sqliteFitColumns + ` FROM fits WHERE 1=1`
	var args []any

	if filter.Subject != "" {
		query += ` AND subject = ?`
		args = append(args, filter.Subject)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fits")
	}
	defer rows.Close()

	var fits []model.FitResult
	for rows.Next() {
		f, err := scanFit(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list fits")
		}
		fits = append(fits, *f)
	}
	return fits, eris.Wrap(rows.Err(), "sqlite: list fits iterate")
}

func (s *SQLiteStore) GetTrials(ctx context.Context, fitID string) (model.Trials, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r1, d1, r2, d2, choice FROM fit_trials WHERE fit_id = ? ORDER BY idx`, fitID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get trials for %s", fitID)
	}
	defer rows.Close()

	var trials model.Trials
	for rows.Next() {
		var t model.Trial
		var choice int
		if err := rows.Scan(&t.SSAmount, &t.SSDelay, &t.LLAmount, &t.LLDelay, &choice); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trial")
		}
		t.Choice = model.Choice(choice)
		trials = append(trials, t)
	}
	return trials, eris.Wrap(rows.Err(), "sqlite: get trials iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanFit(row scannable) (*model.FitResult, error) {
	var f model.FitResult
	var seed, diagJSON string

	err := row.Scan(&f.ID, &f.Subject, &f.Params.K, &f.Params.M, &f.LogLikelihood,
		&f.Trials, &f.Restarts, &f.Feasible, &seed, &diagJSON, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFitNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan fit")
	}

	if f.Seed, err = parseSeed(seed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(diagJSON), &f.Diagnostics); err != nil {
		return nil, eris.Wrap(err, "unmarshal diagnostics")
	}
	return &f, nil
}
