package channel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltIn(t *testing.T) {
	profiles, err := BuiltIn()
	require.NoError(t, err)

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{
		"partners", "hni", "uhni", "mass_affluent",
		"signals-hni", "signals-uhni", "signals-mass-affluent", "signals-partners",
	}, ids)

	hni := profiles[1]
	assert.Equal(t, 82.0, hni.Scoring.Thresholds.Hot)
	assert.Equal(t, 65.0, hni.Scoring.Thresholds.Warm)
	assert.Equal(t, 30.0, hni.Scoring.Weights["net_worth_signal"])
	assert.True(t, hni.Outreach.Video)
	require.NotNil(t, hni.Outreach.InitialEmail)
	assert.Contains(t, hni.Outreach.InitialEmail.Subject, "{{firstName}}")
	assert.Len(t, hni.Simulation.FirstNames, 8, "shared simulation merged in")
	require.NotNil(t, hni.Signals)
	assert.Equal(t, "Mumbai, India", hni.Signals.Locations[0])
	assert.Equal(t, 30000000.0, hni.Signals.NetWorth.Max)

	sig := profiles[4]
	assert.Equal(t, "hni", sig.BaseID())
	assert.Equal(t, "uhni", profiles[2].BaseID())
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       Profile
		wantErr string
	}{
		{"ok", Profile{ID: "hni", Scoring: Scoring{Thresholds: Thresholds{Hot: 80, Warm: 60}}}, ""},
		{"missing id", Profile{}, "id is required"},
		{"unknown base", Profile{ID: "x"}, "unknown base channel"},
		{"hot below warm", Profile{ID: "hni", Scoring: Scoring{Thresholds: Thresholds{Hot: 50, Warm: 60}}}, "below warm"},
		{"negative weight", Profile{ID: "hni", Scoring: Scoring{Weights: map[string]float64{"a": -1}}}, "negative weight"},
		{"bad signal factor", Profile{ID: "hni", Signals: &Signals{Weights: map[string]float64{"ownership": 10}}}, "unknown signal factor"},
		{"weights over 100 allowed", Profile{ID: "hni", Scoring: Scoring{Weights: map[string]float64{"a": 90, "b": 90}}}, ""},
		{"fraction weights", Profile{ID: "hni", Scoring: Scoring{Weights: map[string]float64{"a": 0.25, "b": 0.75}}}, "percent points"},
		{"small point weights allowed", Profile{ID: "hni", Scoring: Scoring{Weights: map[string]float64{"a": 1, "b": 0.5}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRange_Contains(t *testing.T) {
	r := Range{Min: 10, Max: 20}
	assert.True(t, r.Contains(10))
	assert.True(t, r.Contains(20))
	assert.False(t, r.Contains(21))
	assert.True(t, Range{Min: 5}.Contains(1e12), "zero max is unbounded")
}

const overrideYAML = `
name: HNI (tuned)
base: hni
scoring:
  weights: {net_worth_signal: 50, engagement: 50}
  thresholds: {hot: 75, warm: 55}
`

func TestRegistry_Overrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hni.yaml"), []byte(overrideYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	reg, err := NewRegistry(dir)
	require.NoError(t, err)

	p, err := reg.Get("hni")
	require.NoError(t, err)
	assert.Equal(t, "HNI (tuned)", p.Name)
	assert.Equal(t, 75.0, p.Scoring.Thresholds.Hot)
	assert.Len(t, reg.List(), 8, "override replaces in place")
	assert.Equal(t, "hni", reg.List()[1].ID)

	_, err = reg.Get("nope")
	assert.Error(t, err)
}

func TestRegistry_MissingDir(t *testing.T) {
	reg, err := NewRegistry(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Len(t, reg.List(), 8)
}

func TestRegistry_RejectsInvalidOverride(t *testing.T) {
	dir := t.TempDir()
	bad := "base: hni\nscoring:\n  thresholds: {hot: 10, warm: 90}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hni.yaml"), []byte(bad), 0o644))

	_, err := NewRegistry(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below warm")
}

func TestRegistry_Watch(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Watch(ctx, dir) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hni.yaml"), []byte(overrideYAML), 0o644))

	assert.Eventually(t, func() bool {
		p, err := reg.Get("hni")
		return err == nil && p.Name == "HNI (tuned)"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
