// Package apollo provides a client for the Apollo.io people search and
// enrichment API.
package apollo

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

const providerName = "apollo"

// MaxBulkMatch is the largest batch bulk_match accepts.
const MaxBulkMatch = 10

// Client defines the Apollo operations the pipeline uses.
type Client interface {
	// SearchPeople runs a people search with demographic and firmographic
	// filters.
	SearchPeople(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	// SearchIntent runs a people search restricted to leads researching the
	// request's intent topics.
	SearchIntent(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	// EnrichPerson matches one person by email, LinkedIn URL or name.
	EnrichPerson(ctx context.Context, req MatchRequest) (*MatchResponse, error)
	// BulkEnrich matches up to MaxBulkMatch people in one call.
	BulkEnrich(ctx context.Context, people []MatchRequest) (*BulkMatchResponse, error)
	// EnrichOrganization looks up a company by domain.
	EnrichOrganization(ctx context.Context, domain string) (*OrganizationResponse, error)
}

// Person is an Apollo person object. Its shape varies with the plan, so it
// stays untyped.
type Person map[string]any

// SearchRequest is the mixed_people/search body.
type SearchRequest struct {
	PersonTitles          []string `json:"person_titles,omitempty"`
	PersonSeniorities     []string `json:"person_seniorities,omitempty"`
	PersonLocations       []string `json:"person_locations,omitempty"`
	OrganizationLocations []string `json:"organization_locations,omitempty"`
	EmployeeRanges        []string `json:"organization_num_employees_ranges,omitempty"`
	KeywordTags           []string `json:"q_organization_keyword_tags,omitempty"`
	Keywords              string   `json:"q_keywords,omitempty"`
	IntentTopics          []string `json:"intent_topics,omitempty"`
	IntentStrength        []string `json:"intent_strength,omitempty"`
	Page                  int      `json:"page,omitempty"`
	PerPage               int      `json:"per_page,omitempty"`
}

// Pagination describes the result window.
type Pagination struct {
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalEntries int `json:"total_entries"`
	TotalPages   int `json:"total_pages"`
}

// SearchResponse holds a page of people.
type SearchResponse struct {
	People     []Person   `json:"people"`
	Pagination Pagination `json:"pagination"`
}

// MatchRequest identifies one person to enrich.
type MatchRequest struct {
	Email                string `json:"email,omitempty"`
	LinkedInURL          string `json:"linkedin_url,omitempty"`
	FirstName            string `json:"first_name,omitempty"`
	LastName             string `json:"last_name,omitempty"`
	OrganizationName     string `json:"organization_name,omitempty"`
	RevealPersonalEmails bool   `json:"reveal_personal_emails,omitempty"`
	RevealPhoneNumber    bool   `json:"reveal_phone_number,omitempty"`
}

// MatchResponse holds one enriched person.
type MatchResponse struct {
	Person       Person         `json:"person"`
	Organization map[string]any `json:"organization,omitempty"`
}

// BulkMatchResponse holds enriched people in request order. A slot is nil
// when Apollo found no match.
type BulkMatchResponse struct {
	Matches []Person `json:"matches"`
}

// OrganizationResponse holds an enriched company.
type OrganizationResponse struct {
	Organization map[string]any `json:"organization"`
}

// Option configures the Apollo client.
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

// WithRequestsPerSecond paces calls made through this client.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *httpClient) {
		c.throttle = resilience.NewThrottle(rps)
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	throttle *resilience.Throttle
}

// NewClient creates a new Apollo client. Calls are paced at one per second
// unless WithRequestsPerSecond says otherwise.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.apollo.io/api/v1",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		throttle: resilience.NewThrottle(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchPeople(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	req.IntentTopics = nil
	req.IntentStrength = nil
	return c.search(ctx, req)
}

func (c *httpClient) SearchIntent(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if len(req.IntentTopics) == 0 {
		return nil, eris.New("apollo: intent search requires at least one topic")
	}
	return c.search(ctx, req)
}

func (c *httpClient) search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	var out SearchResponse
	if err := c.do(ctx, http.MethodPost, "/mixed_people/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) EnrichPerson(ctx context.Context, req MatchRequest) (*MatchResponse, error) {
	var out MatchResponse
	if err := c.do(ctx, http.MethodPost, "/people/match", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type bulkMatchRequest struct {
	Details              []MatchRequest `json:"details"`
	RevealPersonalEmails bool           `json:"reveal_personal_emails"`
	RevealPhoneNumber    bool           `json:"reveal_phone_number"`
}

func (c *httpClient) BulkEnrich(ctx context.Context, people []MatchRequest) (*BulkMatchResponse, error) {
	if len(people) == 0 {
		return &BulkMatchResponse{}, nil
	}
	if len(people) > MaxBulkMatch {
		return nil, eris.Errorf("apollo: bulk match limited to %d people, got %d", MaxBulkMatch, len(people))
	}
	body := bulkMatchRequest{Details: people}
	for _, p := range people {
		body.RevealPersonalEmails = body.RevealPersonalEmails || p.RevealPersonalEmails
		body.RevealPhoneNumber = body.RevealPhoneNumber || p.RevealPhoneNumber
	}
	var out BulkMatchResponse
	if err := c.do(ctx, http.MethodPost, "/people/bulk_match", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) EnrichOrganization(ctx context.Context, domain string) (*OrganizationResponse, error) {
	if domain == "" {
		return nil, eris.New("apollo: organization domain is required")
	}
	var out OrganizationResponse
	path := "/organizations/enrich?domain=" + url.QueryEscape(domain)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.throttle.Wait(ctx); err != nil {
		return eris.Wrap(err, "apollo: throttle")
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "apollo: marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "apollo: create request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Cache-Control", "no-cache")
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
		return eris.Wrap(err, "apollo: read response body")
	}
	if perr := resilience.ClassifyStatus(providerName, resp.StatusCode, body); perr != nil {
		return perr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "apollo: decode response")
	}
	return nil
}
