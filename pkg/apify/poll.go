package apify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// PollOption configures WaitForRun.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval time.Duration
	timeout  time.Duration
}

// WithPollInterval overrides the delay between status checks.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.interval = d
	}
}

// WithPollTimeout bounds the wait when the parent context has no deadline.
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.timeout = d
	}
}

// WaitForRun polls GetRun until the run reaches a terminal status. A run
// that ends in anything but SUCCEEDED is an error.
func WaitForRun(ctx context.Context, client Client, run *Run, opts ...PollOption) (*Run, error) {
	cfg := pollConfig{interval: 5 * time.Second, timeout: 5 * time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	cur := run
	for !cur.Terminal() {
		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "apify: run %s timed out in %s", run.ID, cur.Status)
		case <-time.After(cfg.interval):
		}
		next, err := client.GetRun(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	if cur.Status != StatusSucceeded {
		return cur, eris.Errorf("apify: run %s ended %s", cur.ID, cur.Status)
	}
	return cur, nil
}

// RunActor starts an actor, waits for it and returns up to limit items from
// its default dataset.
func RunActor(ctx context.Context, client Client, actorID string, input any, limit int, opts ...PollOption) ([]map[string]any, error) {
	run, err := client.StartRun(ctx, actorID, input, 60)
	if err != nil {
		return nil, err
	}
	run, err = WaitForRun(ctx, client, run, opts...)
	if err != nil {
		return nil, err
	}
	return client.DatasetItems(ctx, run.DefaultDatasetID, limit)
}
