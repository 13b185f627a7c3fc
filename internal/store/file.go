package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
)

// FileStore keeps one JSON array per channel under leadsDir and the run
// history in dataDir/executions.json. Every write goes to a temp file in
// the target directory and is renamed into place, so readers never see a
// half-written document.
type FileStore struct {
	dataDir  string
	leadsDir string
}

// NewFileStore returns a FileStore rooted at the given directories.
func NewFileStore(dataDir, leadsDir string) *FileStore {
	if leadsDir == "" {
		leadsDir = filepath.Join(dataDir, "leads")
	}
	return &FileStore{dataDir: dataDir, leadsDir: leadsDir}
}

func (s *FileStore) recordsPath(channel string) string {
	return filepath.Join(s.leadsDir, channel+".json")
}

func (s *FileStore) reportsPath() string {
	return filepath.Join(s.dataDir, "executions.json")
}

// ArtifactPath returns where WriteArtifact puts the named artifact.
func (s *FileStore) ArtifactPath(channel, name string) string {
	return filepath.Join(s.leadsDir, channel+"-"+name+".json")
}

func (s *FileStore) LoadRecords(_ context.Context, channel string) ([]model.Record, error) {
	data, err := os.ReadFile(s.recordsPath(channel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "file store: read records %s", channel)
	}
	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrapf(err, "file store: parse records %s", channel)
	}
	return records, nil
}

func (s *FileStore) SaveRecords(_ context.Context, channel string, records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	return eris.Wrapf(writeJSON(s.recordsPath(channel), records), "file store: save records %s", channel)
}

func (s *FileStore) LoadReports(_ context.Context) ([]model.RunReport, error) {
	path := s.reportsPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "file store: read reports")
	}
	var reports []model.RunReport
	if err := json.Unmarshal(data, &reports); err != nil {
		zap.L().Warn("file store: unreadable run history, starting fresh",
			zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	return reports, nil
}

func (s *FileStore) SaveReports(_ context.Context, reports []model.RunReport) error {
	if reports == nil {
		reports = []model.RunReport{}
	}
	return eris.Wrap(writeJSON(s.reportsPath(), reports), "file store: save reports")
}

func (s *FileStore) WriteArtifact(_ context.Context, channel, name string, values []any) error {
	return eris.Wrapf(writeJSON(s.ArtifactPath(channel, name), values), "file store: write artifact %s", name)
}

func (s *FileStore) Close() error { return nil }

// writeJSON atomically replaces path with the indented JSON encoding of v.
func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "encode json")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "rename into %s", path)
	}
	return nil
}
