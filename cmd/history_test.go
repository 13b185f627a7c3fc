//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/model"
)

func historyFixture() []model.RunReport {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return []model.RunReport{
		{RunID: "r1", Channel: "hni", StartedAt: now.Add(-3 * time.Hour), CompletedAt: now.Add(-3*time.Hour + 2*time.Second)},
		{RunID: "r2", Channel: "uhni", StartedAt: now.Add(-time.Hour), CompletedAt: now.Add(-time.Hour + time.Second),
			TotalRecords: 12, Metrics: map[string]int64{"hot": 3, "stored": 12}},
		{RunID: "r3", Channel: "hni", StartedAt: now.Add(-2 * time.Hour), CompletedAt: now.Add(-2 * time.Hour)},
	}
}

func TestRecentReports(t *testing.T) {
	got := recentReports(historyFixture(), "", 0)
	require.Len(t, got, 3)
	assert.Equal(t, "r2", got[0].RunID)
	assert.Equal(t, "r3", got[1].RunID)
	assert.Equal(t, "r1", got[2].RunID)

	got = recentReports(historyFixture(), "hni", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "r3", got[0].RunID)

	assert.Empty(t, recentReports(historyFixture(), "partners", 10))
}

func TestFormatHistory(t *testing.T) {
	var buf bytes.Buffer
	formatHistory(&buf, recentReports(historyFixture(), "uhni", 0))

	output := buf.String()
	assert.Contains(t, output, "COMPLETED")
	assert.Contains(t, output, "uhni")
	assert.Contains(t, output, "2026-03-10 08:00")
	assert.Contains(t, output, "1s")
	assert.Contains(t, output, "12")
}
