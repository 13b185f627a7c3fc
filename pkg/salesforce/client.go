// Package salesforce syncs leads into a Salesforce org over the REST API.
package salesforce

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/resilience"
)

const providerName = "salesforce"

// Client is the slice of the REST API the CRM sync needs.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error
}

// ClientOption configures NewClient.
type ClientOption func(*orgClient)

// WithRateLimit paces API calls at rps. Unset means unpaced.
func WithRateLimit(rps float64) ClientOption {
	return func(c *orgClient) { c.throttle = resilience.NewThrottle(rps) }
}

// orgClient adapts go-salesforce to Client. The library takes no context,
// so ctx only bounds the throttle wait.
type orgClient struct {
	org      *salesforce.Salesforce
	throttle *resilience.Throttle
}

// NewClient wraps an authenticated go-salesforce session.
func NewClient(org *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &orgClient{org: org, throttle: resilience.NewThrottle(0)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// JWTConfig holds the connected-app JWT bearer flow settings.
type JWTConfig struct {
	LoginURL string
	ClientID string
	Username string
	KeyPath  string
}

// Connect runs the JWT bearer flow with the private key at cfg.KeyPath.
func Connect(cfg JWTConfig, opts ...ClientOption) (Client, error) {
	if cfg.ClientID == "" || cfg.Username == "" {
		return nil, eris.New("salesforce: client id and username are required")
	}
	pem, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "salesforce: read JWT private key")
	}
	org, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.LoginURL,
		Username:       cfg.Username,
		ConsumerKey:    cfg.ClientID,
		ConsumerRSAPem: string(pem),
	})
	if err != nil {
		return nil, eris.Wrap(resilience.Wrap(providerName, err), "salesforce: authenticate")
	}
	return NewClient(org, opts...), nil
}

func (c *orgClient) Query(ctx context.Context, soql string, out any) error {
	if err := c.throttle.Wait(ctx); err != nil {
		return err
	}
	if err := c.org.Query(soql, out); err != nil {
		return eris.Wrap(resilience.Wrap(providerName, err), "salesforce: query")
	}
	return nil
}

func (c *orgClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return "", err
	}
	res, err := c.org.InsertOne(sObjectName, record)
	if err != nil {
		return "", eris.Wrapf(resilience.Wrap(providerName, err), "salesforce: insert %s", sObjectName)
	}
	if !res.Success {
		return "", eris.Errorf("salesforce: insert %s rejected: %v", sObjectName, res.Errors)
	}
	return res.Id, nil
}

// UpdateOne patches the record with id. fields is not modified.
func (c *orgClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	if err := c.throttle.Wait(ctx); err != nil {
		return err
	}
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["Id"] = id
	if err := c.org.UpdateOne(sObjectName, body); err != nil {
		return eris.Wrapf(resilience.Wrap(providerName, err), "salesforce: update %s %s", sObjectName, id)
	}
	return nil
}
