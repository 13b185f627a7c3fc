package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/model"
)

// memStore is an in-memory RecordStore that records every write.
type memStore struct {
	records   map[string][]model.Record
	reports   []model.RunReport
	artifacts map[string][]any

	saves      int
	reportsErr error
}

func newMemStore() *memStore {
	return &memStore{records: map[string][]model.Record{}, artifacts: map[string][]any{}}
}

func (m *memStore) LoadRecords(_ context.Context, channel string) ([]model.Record, error) {
	return append([]model.Record(nil), m.records[channel]...), nil
}

func (m *memStore) SaveRecords(_ context.Context, channel string, recs []model.Record) error {
	m.saves++
	m.records[channel] = append([]model.Record(nil), recs...)
	return nil
}

func (m *memStore) LoadReports(context.Context) ([]model.RunReport, error) {
	if m.reportsErr != nil {
		return nil, m.reportsErr
	}
	return append([]model.RunReport(nil), m.reports...), nil
}

func (m *memStore) SaveReports(_ context.Context, r []model.RunReport) error {
	m.reports = r
	m.reportsErr = nil
	return nil
}

func (m *memStore) WriteArtifact(_ context.Context, channel, name string, values []any) error {
	m.artifacts[channel+"-"+name] = values
	return nil
}

func (m *memStore) Close() error { return nil }

var errBoom = errors.New("boom")

func testProfile(t *testing.T) *channel.Profile {
	t.Helper()
	profiles, err := channel.BuiltIn()
	require.NoError(t, err)
	return profiles[0]
}
