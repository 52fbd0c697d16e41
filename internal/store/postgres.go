package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/fitk/internal/db"
	"github.com/sells-group/fitk/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const pgFitColumns = `id, subject, k, m, ll, trials, restarts, feasible, seed, diagnostics, created_at`

// queries holds the fixed statements used by PostgresStore.
var queries = map[string]string{
	"insert_fit":     `INSERT INTO fits (` + pgFitColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"get_fit":        `SELECT ` + pgFitColumns + ` FROM fits WHERE id = $1`,
	"get_latest_fit": `SELECT ` + pgFitColumns + ` FROM fits WHERE subject = $1 ORDER BY created_at DESC LIMIT 1`,
	"get_trials":     `SELECT r1, d1, r2, d2, choice FROM fit_trials WHERE fit_id = $1 ORDER BY idx`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS fits (
	id          TEXT PRIMARY KEY,
	subject     TEXT NOT NULL,
	k           DOUBLE PRECISION NOT NULL,
	m           DOUBLE PRECISION NOT NULL,
	ll          DOUBLE PRECISION NOT NULL,
	trials      INTEGER NOT NULL,
	restarts    INTEGER NOT NULL,
	feasible    INTEGER NOT NULL,
	seed        TEXT NOT NULL,
	diagnostics JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fit_trials (
	fit_id TEXT NOT NULL REFERENCES fits(id) ON DELETE CASCADE,
	idx    INTEGER NOT NULL,
	r1     DOUBLE PRECISION NOT NULL,
	d1     DOUBLE PRECISION NOT NULL,
	r2     DOUBLE PRECISION NOT NULL,
	d2     DOUBLE PRECISION NOT NULL,
	choice SMALLINT NOT NULL,
	PRIMARY KEY (fit_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_fits_subject_created ON fits(subject, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveFit(ctx context.Context, fit *model.FitResult, trials model.Trials) error {
	if err := validateFit(fit); err != nil {
		return err
	}
	diagJSON, err := json.Marshal(fit.Diagnostics)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal diagnostics")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, queries["insert_fit"],
		fit.ID, fit.Subject, fit.Params.K, fit.Params.M, fit.LogLikelihood,
		fit.Trials, fit.Restarts, fit.Feasible, formatSeed(fit.Seed), diagJSON, fit.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert fit %s", fit.ID)
	}

	rows := make([][]any, len(trials))
	for i, t := range trials {
		rows[i] = []any{fit.ID, i, t.SSAmount, t.SSDelay, t.LLAmount, t.LLDelay, int(t.Choice)}
	}
	if _, err := db.CopyFrom(ctx, tx, "fit_trials", trialColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy trials for fit %s", fit.ID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit fit")
}

func (s *PostgresStore) GetFit(ctx context.Context, id string) (*model.FitResult, error) {
	row := s.pool.QueryRow(ctx, queries["get_fit"], id)
	fit, err := scanPgFit(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get fit %s", id)
	}
	return fit, nil
}

func (s *PostgresStore) GetLatestFit(ctx context.Context, subject string) (*model.FitResult, error) {
	row := s.pool.QueryRow(ctx, queries["get_latest_fit"], subject)
	fit, err := scanPgFit(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest fit for %s", subject)
	}
	return fit, nil
}

func (s *PostgresStore) ListFits(ctx context.Context, filter FitFilter) ([]model.FitResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + pgFitColumns + ` FROM fits`
	args := []any{limit, filter.Offset}
	if filter.Subject != "" {
		query += ` WHERE subject = $3`
		args = append(args, filter.Subject)
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fits")
	}
	defer rows.Close()

	var fits []model.FitResult
	for rows.Next() {
		f, err := scanPgFit(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list fits")
		}
		fits = append(fits, *f)
	}
	return fits, eris.Wrap(rows.Err(), "postgres: list fits iterate")
}

func (s *PostgresStore) GetTrials(ctx context.Context, fitID string) (model.Trials, error) {
	rows, err := s.pool.Query(ctx, queries["get_trials"], fitID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get trials for %s", fitID)
	}
	defer rows.Close()

	var trials model.Trials
	for rows.Next() {
		var t model.Trial
		var choice int16
		if err := rows.Scan(&t.SSAmount, &t.SSDelay, &t.LLAmount, &t.LLDelay, &choice); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trial")
		}
		t.Choice = model.Choice(choice)
		trials = append(trials, t)
	}
	return trials, eris.Wrap(rows.Err(), "postgres: get trials iterate")
}

func scanPgFit(row pgx.Row) (*model.FitResult, error) {
	var f model.FitResult
	var seed string
	var diagJSON []byte

	err := row.Scan(&f.ID, &f.Subject, &f.Params.K, &f.Params.M, &f.LogLikelihood,
		&f.Trials, &f.Restarts, &f.Feasible, &seed, &diagJSON, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFitNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan fit")
	}

	if f.Seed, err = parseSeed(seed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(diagJSON, &f.Diagnostics); err != nil {
		return nil, eris.Wrap(err, "unmarshal diagnostics")
	}
	return &f, nil
}
