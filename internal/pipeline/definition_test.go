package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		want string
	}{
		{"ok", Definition{ID: "a", Channel: "hni", Steps: []Descriptor{{ID: "s", Kind: "k"}}}, ""},
		{"no id", Definition{Channel: "hni"}, "id is required"},
		{"no channel", Definition{ID: "a"}, "channel is required"},
		{"no kind", Definition{ID: "a", Channel: "hni", Steps: []Descriptor{{ID: "s"}}}, "has no kind"},
		{"dup step", Definition{ID: "a", Channel: "hni", Steps: []Descriptor{{ID: "s", Kind: "k"}, {ID: "s", Kind: "k"}}}, "duplicate step id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCatalog_Overrides(t *testing.T) {
	dir := t.TempDir()
	yml := `
channel: hni
steps:
  - id: start
    kind: trigger
    config:
      trigger: cron
  - id: score
    kind: lead_scoring
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hni.yaml"), []byte(yml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	base := []Definition{
		{ID: "hni", Channel: "hni", Steps: []Descriptor{{ID: "x", Kind: "trigger"}}},
		{ID: "uhni", Channel: "uhni"},
	}
	c, err := NewCatalog(base, dir)
	require.NoError(t, err)

	d, err := c.ForChannel("hni")
	require.NoError(t, err)
	require.Len(t, d.Steps, 2)
	assert.Equal(t, "cron", d.Steps[0].Config["trigger"])

	_, err = c.Get("nope")
	assert.Error(t, err)
	_, err = c.ForChannel("partners")
	assert.Error(t, err)
	assert.Len(t, c.List(), 2)
}

func TestLoadDefinitionDir_Missing(t *testing.T) {
	defs, err := LoadDefinitionDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Nil(t, defs)
}
