// Package moengage provides a client for the MoEngage Data API.
package moengage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/resilience"
)

const providerName = "moengage"

// Client defines the MoEngage Data API operations.
type Client interface {
	// UpsertCustomer creates or updates a customer profile.
	UpsertCustomer(ctx context.Context, c Customer) error
	// TrackEvent records one or more actions for a customer.
	TrackEvent(ctx context.Context, e Event) error
}

// Customer is a profile upsert.
type Customer struct {
	CustomerID string         `json:"customer_id"`
	Attributes map[string]any `json:"attributes"`
}

// Action is one tracked event action.
type Action struct {
	Action     string         `json:"action"`
	Timestamp  int64          `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Event carries actions for one customer.
type Event struct {
	CustomerID string   `json:"customer_id"`
	Actions    []Action `json:"actions"`
}

type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Option configures the MoEngage client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing or another data center).
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
	workspaceID string
	apiKey      string
	baseURL     string
	http        *http.Client
}

// NewClient creates a new MoEngage client for a workspace.
func NewClient(workspaceID, apiKey string, opts ...Option) Client {
	c := &httpClient{
		workspaceID: workspaceID,
		apiKey:      apiKey,
		baseURL:     "https://api-01.moengage.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
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

func (c *httpClient) UpsertCustomer(ctx context.Context, cust Customer) error {
	if cust.CustomerID == "" {
		return eris.New("moengage: customer id is required")
	}
	body := struct {
		Type string `json:"type"`
		Customer
	}{Type: "customer", Customer: cust}
	return c.post(ctx, "/v1/customer/", body)
}

func (c *httpClient) TrackEvent(ctx context.Context, e Event) error {
	if e.CustomerID == "" {
		return eris.New("moengage: customer id is required")
	}
	if len(e.Actions) == 0 {
		return eris.New("moengage: event has no actions")
	}
	body := struct {
		Type string `json:"type"`
		Event
	}{Type: "event", Event: e}
	return c.post(ctx, "/v1/event/", body)
}

func (c *httpClient) post(ctx context.Context, path string, in any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return eris.Wrap(err, "moengage: marshal request")
	}

	endpoint := c.baseURL + path + url.PathEscape(c.workspaceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "moengage: create request")
	}
	req.SetBasicAuth(c.workspaceID, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("MOE-APPKEY", c.workspaceID)

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.Wrap(providerName, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "moengage: read response body")
	}
	if perr := resilience.ClassifyStatus(providerName, resp.StatusCode, body); perr != nil {
		return perr
	}

	var r response
	if len(body) > 0 && json.Unmarshal(body, &r) == nil && r.Status == "fail" {
		return &resilience.ProviderError{
			Provider: providerName,
			Kind:     resilience.Generic,
			Status:   resp.StatusCode,
			Message:  r.Message,
		}
	}
	return nil
}
