package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadflow/internal/model"
)

// SQLiteStore implements RecordStore using modernc.org/sqlite.
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS lead_records (
	channel      TEXT    NOT NULL,
	position     INTEGER NOT NULL,
	identity_key TEXT    NOT NULL,
	body         TEXT    NOT NULL,
	PRIMARY KEY (channel, position)
);

CREATE TABLE IF NOT EXISTS run_reports (
	position INTEGER PRIMARY KEY,
	run_id   TEXT NOT NULL,
	body     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_artifacts (
	channel    TEXT NOT NULL,
	name       TEXT NOT NULL,
	body       TEXT NOT NULL,
	written_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (channel, name)
);

CREATE INDEX IF NOT EXISTS idx_lead_records_key ON lead_records(channel, identity_key);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadRecords(ctx context.Context, channel string) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM lead_records WHERE channel = ? ORDER BY position`, channel)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load records %s", channel)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

func (s *SQLiteStore) SaveRecords(ctx context.Context, channel string, records []model.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM lead_records WHERE channel = ?`, channel); err != nil {
		return eris.Wrapf(err, "sqlite: clear records %s", channel)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO lead_records (channel, position, identity_key, body) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	for i, rec := range records {
		body, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal record")
		}
		if _, err := stmt.ExecContext(ctx, channel, i, model.IdentityKey(rec), string(body)); err != nil {
			return eris.Wrapf(err, "sqlite: insert record %d", i)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit records")
}

func (s *SQLiteStore) LoadReports(ctx context.Context) ([]model.RunReport, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM run_reports ORDER BY position`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load reports")
	}
	defer rows.Close()

	var out []model.RunReport
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		var r model.RunReport
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate reports")
}

func (s *SQLiteStore) SaveReports(ctx context.Context, reports []model.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_reports`); err != nil {
		return eris.Wrap(err, "sqlite: clear reports")
	}
	for i, r := range reports {
		body, err := json.Marshal(r)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal report")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_reports (position, run_id, body) VALUES (?, ?, ?)`,
			i, r.RunID, string(body)); err != nil {
			return eris.Wrapf(err, "sqlite: insert report %s", r.RunID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit reports")
}

func (s *SQLiteStore) WriteArtifact(ctx context.Context, channel, name string, values []any) error {
	body, err := json.Marshal(values)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal artifact")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_artifacts (channel, name, body) VALUES (?, ?, ?)
		 ON CONFLICT(channel, name) DO UPDATE SET body = excluded.body, written_at = datetime('now')`,
		channel, name, string(body))
	return eris.Wrapf(err, "sqlite: write artifact %s", name)
}
