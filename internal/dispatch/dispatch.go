// Package dispatch sends outreach email through an ordered list of
// providers, falling back to the next provider for records the previous
// one failed.
package dispatch

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/resilience"
)

// Record fields written by Dispatch.
const (
	FieldState     = "provider_state"
	FieldProvider  = "provider"
	FieldMessageID = "provider_message_id"
	FieldError     = "provider_error"
)

// Provider states.
const (
	StateDelivered     = "delivered"
	StatePrimaryFailed = "primary_failed"
	StateFailed        = "failed"
	StateSimulated     = "simulated"
	StateInvalid       = "invalid"
)

// SyntheticSource marks records generated by the scrape simulation.
const SyntheticSource = "apify-simulated"

// syntheticSources are the data_source values of simulated leads.
var syntheticSources = map[string]bool{
	SyntheticSource:    true,
	"apollo-simulated": true,
	"intent-simulated": true,
}

// IsSynthetic reports whether r was generated by a simulation.
func IsSynthetic(r model.Record) bool {
	return syntheticSources[r.String(model.FieldDataSource)]
}

// recordTier reads lead_tier, falling back to the signal tier.
func recordTier(r model.Record) model.Tier {
	if t := r.String(model.FieldLeadTier); t != "" {
		return model.ParseTier(t)
	}
	return model.ParseTier(r.String(model.FieldSignalTier))
}

// Message is one rendered email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	Record   model.Record
}

// Provider delivers a single message.
type Provider interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg Message) (messageID string, err error)
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Provider  string
	MessageID string
	Err       *resilience.ProviderError
}

// Options control one dispatch.
type Options struct {
	MinTier        model.Tier
	AllowSynthetic bool
	Template       *channel.EmailTemplate
	SenderName     string
	Simulate       bool
}

// Summary counts what happened to the eligible records.
type Summary struct {
	Eligible      int
	Sent          map[string]int
	PrimaryFailed int
	Failed        int
	Simulated     int
	Invalid       int
	Results       []Result
}

// Dispatcher tries providers in order.
type Dispatcher struct {
	providers []Provider
	now       func() time.Time
}

// New returns a Dispatcher over providers; the first is the primary.
func New(providers ...Provider) *Dispatcher {
	return &Dispatcher{providers: providers, now: time.Now}
}

// WithNow overrides the clock used for last_touch.
func (d *Dispatcher) WithNow(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Eligible filters batch to records at or above opts.MinTier. Synthetic
// records pass only with AllowSynthetic.
func Eligible(batch []model.Record, opts Options) []model.Record {
	min := opts.MinTier
	if min == "" {
		min = model.TierWarm
	}
	var out []model.Record
	for _, r := range batch {
		if !recordTier(r).AtLeast(min) {
			continue
		}
		if !opts.AllowSynthetic && IsSynthetic(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func validateRecipient(r model.Record) (string, error) {
	to := strings.TrimSpace(r.String(model.FieldEmail))
	if to == "" || !strings.Contains(to, "@") {
		return "", &pipeline.ValidationError{Field: model.FieldEmail, Reason: "missing or malformed address"}
	}
	return to, nil
}

// Dispatch sends the eligible records of batch and tags each one with its
// outcome. A failure on one record never affects another. The returned
// batch is the whole input in its original order.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []model.Record, opts Options) ([]model.Record, Summary) {
	sum := Summary{Sent: map[string]int{}}
	if opts.Template == nil || opts.Template.Subject == "" || opts.Template.HTMLBody == "" {
		return batch, sum
	}
	eligible := Eligible(batch, opts)
	sum.Eligible = len(eligible)

	pending := make([]Message, 0, len(eligible))
	for _, r := range eligible {
		to, err := validateRecipient(r)
		if err != nil {
			r[FieldState] = StateInvalid
			r[FieldError] = err.Error()
			sum.Invalid++
			continue
		}
		html := Render(opts.Template.HTMLBody, r, opts.SenderName)
		pending = append(pending, Message{
			To:       to,
			Subject:  Render(opts.Template.Subject, r, opts.SenderName),
			HTMLBody: html,
			TextBody: PlainText(html),
			Record:   r,
		})
	}

	if !opts.Simulate {
		attempted := false
		for i, p := range d.providers {
			if len(pending) == 0 {
				break
			}
			if !p.Enabled() {
				continue
			}
			attempted = true
			pending = d.attempt(ctx, p, i == 0, pending, &sum)
		}
		if attempted {
			return batch, sum
		}
	}

	for _, m := range pending {
		m.Record[FieldState] = StateSimulated
		sum.Simulated++
	}
	return batch, sum
}

// attempt sends every message through p and returns the ones that failed.
func (d *Dispatcher) attempt(ctx context.Context, p Provider, primary bool, msgs []Message, sum *Summary) []Message {
	var failed []Message
	for _, m := range msgs {
		id, err := p.Send(ctx, m)
		res := Result{Provider: p.Name(), MessageID: id}
		if err != nil {
			pe, ok := resilience.As(err)
			if !ok {
				pe, _ = resilience.As(resilience.Wrap(p.Name(), err))
			}
			res.Err = pe
			m.Record[FieldError] = pe.Error()
			if primary {
				m.Record[FieldState] = StatePrimaryFailed
				sum.PrimaryFailed++
			} else {
				m.Record[FieldState] = StateFailed
				sum.Failed++
			}
			zap.L().Warn("dispatch: send failed",
				zap.String("provider", p.Name()),
				zap.String("to", m.To),
				zap.Error(err),
			)
			failed = append(failed, m)
		} else {
			m.Record[FieldState] = StateDelivered
			m.Record[FieldProvider] = p.Name()
			m.Record[FieldMessageID] = id
			m.Record["sequence_status"] = "email_1_sent"
			m.Record["last_touch"] = d.now().UTC().Format(time.RFC3339)
			delete(m.Record, FieldError)
			sum.Sent[p.Name()]++
		}
		sum.Results = append(sum.Results, res)
	}
	return failed
}
