// Package apify provides a client for running Apify actors and reading their
// datasets.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/resilience"
)

const providerName = "apify"

// Run statuses reported by Apify.
const (
	StatusReady     = "READY"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusAborted   = "ABORTED"
	StatusTimedOut  = "TIMED-OUT"
)

// Client defines the Apify operations the scraper step uses.
type Client interface {
	// StartRun starts an actor with input. waitSecs asks Apify to hold the
	// response until the run finishes or the wait elapses (max 60).
	StartRun(ctx context.Context, actorID string, input any, waitSecs int) (*Run, error)
	// GetRun fetches the current state of a run.
	GetRun(ctx context.Context, runID string) (*Run, error)
	// DatasetItems returns the items of a dataset.
	DatasetItems(ctx context.Context, datasetID string, limit int) ([]map[string]any, error)
}

// Run is an actor run.
type Run struct {
	ID               string    `json:"id"`
	ActID            string    `json:"actId"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	DefaultDatasetID string    `json:"defaultDatasetId"`
}

// Terminal reports whether the run has stopped.
func (r *Run) Terminal() bool {
	switch r.Status {
	case StatusSucceeded, StatusFailed, StatusAborted, StatusTimedOut:
		return true
	}
	return false
}

type runEnvelope struct {
	Data Run `json:"data"`
}

// Option configures the Apify client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Apify client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: "https://api.apify.com/v2",
		http: &http.Client{
			Timeout: 90 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Actor ids use "user~name"; a slash is accepted too.
func actorPath(actorID string) string {
	return url.PathEscape(strings.Replace(actorID, "/", "~", 1))
}

func (c *httpClient) StartRun(ctx context.Context, actorID string, input any, waitSecs int) (*Run, error) {
	if actorID == "" {
		return nil, eris.New("apify: actor id is required")
	}
	path := "/acts/" + actorPath(actorID) + "/runs"
	if waitSecs > 0 {
		if waitSecs > 60 {
			waitSecs = 60
		}
		path += "?waitForFinish=" + strconv.Itoa(waitSecs)
	}
	var env runEnvelope
	if err := c.do(ctx, http.MethodPost, path, input, &env); err != nil {
		return nil, eris.Wrapf(err, "apify: start run %s", actorID)
	}
	return &env.Data, nil
}

func (c *httpClient) GetRun(ctx context.Context, runID string) (*Run, error) {
	var env runEnvelope
	if err := c.do(ctx, http.MethodGet, "/actor-runs/"+url.PathEscape(runID), nil, &env); err != nil {
		return nil, eris.Wrapf(err, "apify: get run %s", runID)
	}
	return &env.Data, nil
}

func (c *httpClient) DatasetItems(ctx context.Context, datasetID string, limit int) ([]map[string]any, error) {
	q := url.Values{"clean": {"true"}, "format": {"json"}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var items []map[string]any
	path := "/datasets/" + url.PathEscape(datasetID) + "/items?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, eris.Wrapf(err, "apify: dataset items %s", datasetID)
	}
	return items, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "apify: marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "apify: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.Wrap(providerName, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "apify: read response body")
	}
	if perr := resilience.ClassifyStatus(providerName, resp.StatusCode, body); perr != nil {
		return perr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "apify: decode response")
	}
	return nil
}
