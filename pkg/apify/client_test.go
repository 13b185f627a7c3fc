package apify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/resilience"
)

func TestStartRun(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/acts/apify~apollo-scraper/runs", r.URL.Path)
		assert.Equal(t, "60", r.URL.Query().Get("waitForFinish"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var input map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, "wealth advisor mumbai", input["query"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"run-1","status":"RUNNING","defaultDatasetId":"ds-1"}}`))
	}))
	defer srv.Close()

	c := NewClient("test-token", WithBaseURL(srv.URL))
	run, err := c.StartRun(context.Background(), "apify/apollo-scraper", map[string]any{"query": "wealth advisor mumbai"}, 120)

	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, StatusRunning, run.Status)
	assert.False(t, run.Terminal())
}

func TestStartRun_RequiresActor(t *testing.T) {
	t.Parallel()

	_, err := NewClient("t").StartRun(context.Background(), "", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actor id is required")
}

func TestDatasetItems(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/datasets/ds-1/items", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("clean"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"firstName":"Asha"},{"firstName":"Ravi"}]`))
	}))
	defer srv.Close()

	items, err := NewClient("t", WithBaseURL(srv.URL)).DatasetItems(context.Background(), "ds-1", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Ravi", items[1]["firstName"])
}

func TestRunActor_PollsUntilSucceeded(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/acts/a~b/runs", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"run-9","status":"RUNNING"}}`))
	})
	mux.HandleFunc("/actor-runs/run-9", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 2 {
			w.Write([]byte(`{"data":{"id":"run-9","status":"RUNNING"}}`))
			return
		}
		w.Write([]byte(`{"data":{"id":"run-9","status":"SUCCEEDED","defaultDatasetId":"ds-9"}}`))
	})
	mux.HandleFunc("/datasets/ds-9/items", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"Asha Iyer"}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient("t", WithBaseURL(srv.URL))
	items, err := RunActor(context.Background(), c, "a~b", nil, 10, WithPollInterval(time.Millisecond))

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Asha Iyer", items[0]["name"])
	assert.EqualValues(t, 2, polls.Load())
}

func TestWaitForRun_Failed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"run-2","status":"FAILED"}}`))
	}))
	defer srv.Close()

	c := NewClient("t", WithBaseURL(srv.URL))
	_, err := WaitForRun(context.Background(), c, &Run{ID: "run-2", Status: StatusRunning}, WithPollInterval(time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ended FAILED")
}

func TestWaitForRun_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"run-3","status":"RUNNING"}}`))
	}))
	defer srv.Close()

	c := NewClient("t", WithBaseURL(srv.URL))
	_, err := WaitForRun(context.Background(), c, &Run{ID: "run-3", Status: StatusRunning},
		WithPollInterval(5*time.Millisecond), WithPollTimeout(30*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient("t", WithBaseURL(srv.URL)).GetRun(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
}
