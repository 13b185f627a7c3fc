package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/store"
)

// Well-known meta keys.
const (
	MetaRunID     = "runId"
	MetaStartedAt = "startedAt"
	MetaTrigger   = "trigger"
)

// Settings are the run-wide knobs steps read.
type Settings struct {
	AllowDuplicates bool
	BatchSize       int
	SenderName      string
}

// RunContext is the state shared by every step of one run. A run executes
// on a single goroutine, so none of it is locked.
type RunContext struct {
	Channel  *channel.Profile
	Live     bool
	Settings Settings

	store store.RecordStore
	now   func() time.Time

	initialized bool
	records     []model.Record
	keys        map[string]struct{}
	claimed     map[string]struct{}

	metrics   map[string]int64
	meta      map[string]any
	artifacts map[string][]any
}

// Option configures a RunContext.
type Option func(*RunContext)

// WithLive enables live mode. The default is simulate.
func WithLive(live bool) Option {
	return func(rc *RunContext) { rc.Live = live }
}

// WithSettings sets the run settings.
func WithSettings(s Settings) Option {
	return func(rc *RunContext) { rc.Settings = s }
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(rc *RunContext) { rc.now = now }
}

// NewRunContext creates the context for one run of profile p.
func NewRunContext(p *channel.Profile, st store.RecordStore, opts ...Option) *RunContext {
	rc := &RunContext{
		Channel:   p,
		store:     st,
		now:       time.Now,
		keys:      make(map[string]struct{}),
		claimed:   make(map[string]struct{}),
		metrics:   make(map[string]int64),
		meta:      make(map[string]any),
		artifacts: make(map[string][]any),
	}
	for _, o := range opts {
		o(rc)
	}
	return rc
}

// Now returns the run clock's current time.
func (rc *RunContext) Now() time.Time { return rc.now() }

// Store returns the record store backing the run.
func (rc *RunContext) Store() store.RecordStore { return rc.store }

// Init loads the channel's persisted records and their identity keys. Only
// the first call does any work.
func (rc *RunContext) Init(ctx context.Context) error {
	if rc.initialized {
		return nil
	}
	recs, err := rc.store.LoadRecords(ctx, rc.Channel.ID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load records")
	}
	rc.records = recs
	for _, r := range recs {
		if k := model.IdentityKey(r); k != "" {
			rc.keys[k] = struct{}{}
		}
	}
	rc.initialized = true
	return nil
}

// Records returns the in-memory persisted records.
func (rc *RunContext) Records() []model.Record {
	out := make([]model.Record, len(rc.records))
	copy(out, rc.records)
	return out
}

// StoreRecords appends every record whose identity is not yet stored and
// rewrites the channel store when anything was appended. It returns the
// number appended.
func (rc *RunContext) StoreRecords(ctx context.Context, batch []model.Record) (int, error) {
	if err := rc.Init(ctx); err != nil {
		return 0, err
	}
	added := 0
	for _, r := range batch {
		k := model.EnsureIdentity(r)
		if _, ok := rc.keys[k]; ok {
			continue
		}
		rc.keys[k] = struct{}{}
		rc.records = append(rc.records, r)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := rc.store.SaveRecords(ctx, rc.Channel.ID, rc.records); err != nil {
		return 0, eris.Wrap(err, "pipeline: save records")
	}
	return added, nil
}

// AppendRunReport appends report to the execution history. A history that
// cannot be read is left untouched; stores reset only unparseable history.
func (rc *RunContext) AppendRunReport(ctx context.Context, report model.RunReport) error {
	history, err := rc.store.LoadReports(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: load run history")
	}
	history = append(history, report)
	return eris.Wrap(rc.store.SaveReports(ctx, history), "pipeline: save run report")
}

// Seen reports whether key is persisted or claimed earlier in this run.
func (rc *RunContext) Seen(key string) bool {
	if _, ok := rc.keys[key]; ok {
		return true
	}
	_, ok := rc.claimed[key]
	return ok
}

// Claim marks key as taken for the rest of the run.
func (rc *RunContext) Claim(key string) {
	rc.claimed[key] = struct{}{}
}

// AddArtifact appends value to the named artifact list.
func (rc *RunContext) AddArtifact(name string, value any) {
	rc.artifacts[name] = append(rc.artifacts[name], value)
}

// Artifact returns the values accumulated under name.
func (rc *RunContext) Artifact(name string) []any {
	return rc.artifacts[name]
}

// FlushArtifacts writes one document per artifact name.
func (rc *RunContext) FlushArtifacts(ctx context.Context) error {
	names := make([]string, 0, len(rc.artifacts))
	for name := range rc.artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := rc.store.WriteArtifact(ctx, rc.Channel.ID, name, rc.artifacts[name]); err != nil {
			return eris.Wrapf(err, "pipeline: flush artifact %s", name)
		}
	}
	return nil
}

// Incr adds delta to a counter.
func (rc *RunContext) Incr(name string, delta int64) {
	rc.metrics[name] += delta
}

// SetMetric overwrites a gauge-style metric.
func (rc *RunContext) SetMetric(name string, v int64) {
	rc.metrics[name] = v
}

// Metric returns one metric, 0 when unset.
func (rc *RunContext) Metric(name string) int64 {
	return rc.metrics[name]
}

// Metrics returns a snapshot of all metrics.
func (rc *RunContext) Metrics() map[string]int64 {
	out := make(map[string]int64, len(rc.metrics))
	for k, v := range rc.metrics {
		out[k] = v
	}
	return out
}

// SetMeta records a run metadata value.
func (rc *RunContext) SetMeta(key string, v any) {
	rc.meta[key] = v
}

// Meta returns a run metadata value.
func (rc *RunContext) Meta(key string) (any, bool) {
	v, ok := rc.meta[key]
	return v, ok
}

// MetaString returns a metadata value rendered as text.
func (rc *RunContext) MetaString(key string) string {
	return model.ToString(rc.meta[key])
}
