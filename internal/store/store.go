// Package store persists channel record logs, the run history and run
// artifacts.
package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/model"
)

// RecordStore is the persistence contract behind a pipeline run. Saves
// replace the whole document for a channel; callers hold the full array in
// memory and write it back wholesale.
type RecordStore interface {
	LoadRecords(ctx context.Context, channel string) ([]model.Record, error)
	SaveRecords(ctx context.Context, channel string, records []model.Record) error

	// LoadReports returns the run history. Unreadable history is logged and
	// treated as empty.
	LoadReports(ctx context.Context) ([]model.RunReport, error)
	SaveReports(ctx context.Context, reports []model.RunReport) error

	WriteArtifact(ctx context.Context, channel, name string, values []any) error

	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver      string
	DataDir     string
	LeadsDir    string
	DatabaseURL string
}

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (RecordStore, error) {
	switch opts.Driver {
	case "", "file":
		return NewFileStore(opts.DataDir, opts.LeadsDir), nil
	case "sqlite":
		dsn := opts.DatabaseURL
		if dsn == "" {
			if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
				return nil, eris.Wrap(err, "store: create data dir")
			}
			dsn = filepath.Join(opts.DataDir, "leadflow.db")
		}
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, opts.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		return s, nil
	}
	return nil, eris.Errorf("store: unknown driver %q", opts.Driver)
}
