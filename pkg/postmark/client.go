// Package postmark provides a client for the Postmark transactional email API.
package postmark

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/resilience"
)

const providerName = "postmark"

// Client sends transactional email.
type Client interface {
	// Send delivers one message and returns Postmark's MessageID.
	Send(ctx context.Context, e Email) (string, error)
}

// Email is a single outbound message.
type Email struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HTMLBody      string `json:"HtmlBody,omitempty"`
	TextBody      string `json:"TextBody,omitempty"`
	Tag           string `json:"Tag,omitempty"`
	MessageStream string `json:"MessageStream,omitempty"`
}

// SendResponse is Postmark's reply to /email.
type SendResponse struct {
	To          string `json:"To"`
	SubmittedAt string `json:"SubmittedAt"`
	MessageID   string `json:"MessageID"`
	ErrorCode   int    `json:"ErrorCode"`
	Message     string `json:"Message"`
}

// Option configures the Postmark client.
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

// NewClient creates a new Postmark client for a server token.
func NewClient(serverToken string, opts ...Option) Client {
	c := &httpClient{
		token:   serverToken,
		baseURL: "https://api.postmarkapp.com",
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

func (c *httpClient) Send(ctx context.Context, e Email) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", eris.Wrap(err, "postmark: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "postmark: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", resilience.Wrap(providerName, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "postmark: read response body")
	}
	if perr := resilience.ClassifyStatus(providerName, resp.StatusCode, body); perr != nil {
		var sr SendResponse
		if json.Unmarshal(body, &sr) == nil && sr.Message != "" {
			perr.Message = sr.Message
		}
		return "", perr
	}

	var sr SendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", eris.Wrap(err, "postmark: decode response")
	}
	if sr.ErrorCode != 0 {
		return "", &resilience.ProviderError{
			Provider: providerName,
			Kind:     resilience.Generic,
			Status:   resp.StatusCode,
			Message:  sr.Message,
		}
	}
	return sr.MessageID, nil
}
