package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/model"
)

type keySet map[string]bool

func (k keySet) Seen(key string) bool { return k[key] }

func TestFilter_OneDuplicate(t *testing.T) {
	batch := []model.Record{
		{"email": "a@x.com"},
		{"email": "A@X.com "},
		{"email": "b@x.com"},
	}
	kept, dups := Filter(batch, keySet{})
	require.Len(t, kept, 2)
	assert.Equal(t, 1, dups)
	assert.Equal(t, "a@x.com", kept[0]["email"])
	assert.Equal(t, "b@x.com", kept[1]["email"])
}

func TestFilter_PersistedKeys(t *testing.T) {
	batch := []model.Record{
		{"email": "known@x.com"},
		{"linkedin_url": "https://linkedin.com/in/New"},
	}
	kept, dups := Filter(batch, keySet{"known@x.com": true})
	require.Len(t, kept, 1)
	assert.Equal(t, 1, dups)
}

func TestFilter_TwiceYieldsEmpty(t *testing.T) {
	batch := []model.Record{{"email": "a@x.com"}, {"name": "No Keys"}}
	claimed := keySet{}

	kept, _ := Filter(batch, claimed)
	require.Len(t, kept, 2)
	for _, k := range Keys(kept) {
		claimed[k] = true
	}

	again, dups := Filter(batch, claimed)
	assert.Empty(t, again)
	assert.Equal(t, 2, dups)
}

func TestFilter_AssignsLeadID(t *testing.T) {
	r := model.Record{"name": "Anon"}
	kept, _ := Filter([]model.Record{r}, nil)
	require.Len(t, kept, 1)
	assert.True(t, r.Has("lead_id"))
}
