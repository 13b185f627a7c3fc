// Package notion mirrors leads into a Notion tracking database.
package notion

import (
	"context"
	"errors"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/resilience"
)

const providerName = "notion"

// defaultRPS is Notion's documented average request rate per integration.
const defaultRPS = 3

// Client is the slice of the Notion API the lead sync needs.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// ClientOption configures NewClient.
type ClientOption func(*apiClient)

// WithRateLimit paces calls at rps. Zero or less disables pacing.
func WithRateLimit(rps float64) ClientOption {
	return func(c *apiClient) { c.throttle = resilience.NewThrottle(rps) }
}

type apiClient struct {
	api      *notionapi.Client
	throttle *resilience.Throttle
}

// NewClient returns a Client authenticated with an integration token.
func NewClient(token string, opts ...ClientOption) Client {
	c := &apiClient{
		api:      notionapi.NewClient(notionapi.Token(token)),
		throttle: resilience.NewThrottle(defaultRPS),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// classify turns a Notion API error into a ProviderError so callers can
// tell throttling and bad credentials apart from other failures.
func classify(err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) && apiErr.Status >= 400 {
		pe := resilience.ClassifyStatus(providerName, apiErr.Status, []byte(apiErr.Message))
		pe.Err = err
		return pe
	}
	return resilience.Wrap(providerName, err)
}

func (c *apiClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrapf(classify(err), "notion: query %s", dbID)
	}
	return resp, nil
}

func (c *apiClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.Page.Create(ctx, req)
	if err != nil {
		return nil, eris.Wrap(classify(err), "notion: create page")
	}
	return page, nil
}

func (c *apiClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
	if err != nil {
		return nil, eris.Wrapf(classify(err), "notion: update page %s", pageID)
	}
	return page, nil
}
