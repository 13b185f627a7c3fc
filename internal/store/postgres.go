package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements RecordStore using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var recordColumns = []string{"channel", "position", "identity_key", "body"}

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
CREATE TABLE IF NOT EXISTS lead_records (
	channel      TEXT    NOT NULL,
	position     INTEGER NOT NULL,
	identity_key TEXT    NOT NULL,
	body         JSONB   NOT NULL,
	PRIMARY KEY (channel, position)
);

CREATE TABLE IF NOT EXISTS run_reports (
	position INTEGER PRIMARY KEY,
	run_id   TEXT  NOT NULL,
	body     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS run_artifacts (
	channel    TEXT        NOT NULL,
	name       TEXT        NOT NULL,
	body       JSONB       NOT NULL,
	written_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (channel, name)
);

CREATE INDEX IF NOT EXISTS idx_lead_records_key ON lead_records(channel, identity_key);
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

func (s *PostgresStore) LoadRecords(ctx context.Context, channel string) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT body FROM lead_records WHERE channel = $1 ORDER BY position`, channel)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load records %s", channel)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var rec model.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate records")
}

// SaveRecords replaces the channel's rows inside one transaction, loading
// the new rows with COPY.
func (s *PostgresStore) SaveRecords(ctx context.Context, channel string, records []model.Record) error {
	rows := make([][]any, 0, len(records))
	for i, rec := range records {
		body, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal record")
		}
		rows = append(rows, []any{channel, int32(i), model.IdentityKey(rec), body})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM lead_records WHERE channel = $1`, channel); err != nil {
		return eris.Wrapf(err, "postgres: clear records %s", channel)
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"lead_records"}, recordColumns, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrapf(err, "postgres: copy records %s", channel)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit records")
}

func (s *PostgresStore) LoadReports(ctx context.Context) ([]model.RunReport, error) {
	rows, err := s.pool.Query(ctx, `SELECT body FROM run_reports ORDER BY position`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load reports")
	}
	defer rows.Close()

	var out []model.RunReport
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		var r model.RunReport
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate reports")
}

func (s *PostgresStore) SaveReports(ctx context.Context, reports []model.RunReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM run_reports`); err != nil {
		return eris.Wrap(err, "postgres: clear reports")
	}
	for i, r := range reports {
		body, err := json.Marshal(r)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal report")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO run_reports (position, run_id, body) VALUES ($1, $2, $3)`,
			int32(i), r.RunID, body); err != nil {
			return eris.Wrapf(err, "postgres: insert report %s", r.RunID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit reports")
}

func (s *PostgresStore) WriteArtifact(ctx context.Context, channel, name string, values []any) error {
	body, err := json.Marshal(values)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal artifact")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO run_artifacts (channel, name, body) VALUES ($1, $2, $3)
		 ON CONFLICT (channel, name) DO UPDATE SET body = EXCLUDED.body, written_at = now()`,
		channel, name, body)
	return eris.Wrapf(err, "postgres: write artifact %s", name)
}
