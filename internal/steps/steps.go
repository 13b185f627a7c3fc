// Package steps implements the built-in pipeline step kinds and the
// built-in pipeline definitions that use them.
package steps

import (
	"hash/fnv"
	"time"

	"github.com/sells-group/leadflow/internal/export"
	"github.com/sells-group/leadflow/internal/filter"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/pkg/apify"
	"github.com/sells-group/leadflow/pkg/apollo"
	"github.com/sells-group/leadflow/pkg/heygen"
	"github.com/sells-group/leadflow/pkg/moengage"
	"github.com/sells-group/leadflow/pkg/notion"
	"github.com/sells-group/leadflow/pkg/postmark"
	"github.com/sells-group/leadflow/pkg/salesforce"
	"github.com/sells-group/leadflow/pkg/slack"
)

// Step kinds.
const (
	KindTrigger              = "trigger"
	KindApifyScrape          = "apify_scrape"
	KindApolloSearch         = "apollo_search"
	KindIntentSignals        = "intent_signals"
	KindApolloEnrich         = "apollo_enrich"
	KindDataQuality          = "data_quality"
	KindDedupe               = "dedupe"
	KindLeadScoring          = "lead_scoring"
	KindSignalScoring        = "signal_scoring"
	KindCSVExport            = "csv_export"
	KindRecordStore          = "record_store"
	KindNotionSync           = "notion_sync"
	KindCRMSync              = "crm_sync"
	KindEmailSequence        = "email_sequence"
	KindEmailSend            = "email_send"
	KindPostmarkSend         = "postmark_send"
	KindNewsletter           = "newsletter"
	KindSlackNotify          = "slack_notify"
	KindVideoPersonalization = "video_personalization"
	KindExecutiveBriefing    = "executive_briefing"
	KindSummaryReport        = "summary_report"
	KindMetricsExport        = "metrics_export"
)

// Deps are the collaborators steps reach in live mode. A nil client means
// the integration is not configured and the step simulates instead.
type Deps struct {
	Apollo    apollo.Client
	Apify     apify.Client
	ApifyPoll []apify.PollOption

	MoEngage moengage.Client
	Postmark postmark.Client
	Email    EmailSettings

	Slack        slack.Client
	SlackChannel string

	HeyGen heygen.Client
	Video  VideoSettings

	// Writer drafts video scripts and executive briefings. Nil selects
	// the built-in templates.
	Writer Writer

	Notion   notion.Client
	NotionDB string

	Salesforce salesforce.Client

	Export          ExportSettings
	MetricsTextfile string
}

// EmailSettings configure transactional sends.
type EmailSettings struct {
	From          string
	MessageStream string
}

// VideoSettings configure HeyGen rendering.
type VideoSettings struct {
	AvatarID     string
	VoiceID      string
	PollInterval time.Duration
	MaxPolls     int
}

// ExportSettings configure tabular exports.
type ExportSettings struct {
	Dir      string
	XLSX     bool
	Uploader export.Uploader
}

type constructor func(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error)

var constructors = map[string]constructor{
	KindTrigger:              newTrigger,
	KindApifyScrape:          newApifyScrape,
	KindApolloSearch:         newApolloSearch,
	KindIntentSignals:        newIntentSignals,
	KindApolloEnrich:         newApolloEnrich,
	KindDataQuality:          newDataQuality,
	KindDedupe:               newDedupe,
	KindLeadScoring:          newLeadScoring,
	KindSignalScoring:        newSignalScoring,
	KindCSVExport:            newCSVExport,
	KindRecordStore:          newRecordStore,
	KindNotionSync:           newNotionSync,
	KindCRMSync:              newCRMSync,
	KindEmailSequence:        newEmailSequence,
	KindEmailSend:            newEmailSend,
	KindPostmarkSend:         newPostmarkSend,
	KindNewsletter:           newNewsletter,
	KindSlackNotify:          newSlackNotify,
	KindVideoPersonalization: newVideoPersonalization,
	KindExecutiveBriefing:    newExecutiveBriefing,
	KindSummaryReport:        newSummaryReport,
	KindMetricsExport:        newMetricsExport,
}

// Register installs every built-in kind into reg. Steps built from reg
// share deps.
func Register(reg *pipeline.Registry, deps Deps) {
	d := &deps
	for kind, ctor := range constructors {
		reg.Register(kind, func(desc pipeline.Descriptor, rc *pipeline.RunContext) (pipeline.Step, error) {
			return ctor(desc, rc, d)
		})
	}
}

// NewRegistry returns a registry holding every built-in kind.
func NewRegistry(deps Deps) *pipeline.Registry {
	reg := pipeline.NewRegistry()
	Register(reg, deps)
	return reg
}

// warmOrBetter matches records tiered Warm or Hot by either scorer.
var warmOrBetter = filter.Expr{Any: []filter.Expr{
	filter.In(model.FieldLeadTier, string(model.TierHot), string(model.TierWarm)),
	filter.In(model.FieldSignalTier, model.SignalHot, model.SignalWarm),
}}

// hotOnly matches records tiered Hot by either scorer.
var hotOnly = filter.Expr{Any: []filter.Expr{
	filter.Eq(model.FieldLeadTier, string(model.TierHot)),
	filter.Eq(model.FieldSignalTier, model.SignalHot),
}}

// selectOr applies e, or def when e is empty.
func selectOr(batch []model.Record, e, def filter.Expr) []model.Record {
	if e.IsZero() {
		return filter.Apply(batch, def)
	}
	return filter.Apply(batch, e)
}

// seedFor derives a deterministic seed from the run id and salt, so a
// rerun of the same run id simulates the same leads.
func seedFor(rc *pipeline.RunContext, salt string) uint64 {
	h := fnv.New64a()
	runID := rc.MetaString(pipeline.MetaRunID)
	if runID == "" {
		runID = rc.Channel.ID + "/" + rc.Now().UTC().Format("2006-01-02")
	}
	h.Write([]byte(runID)) //nolint:errcheck
	h.Write([]byte{0})     //nolint:errcheck
	h.Write([]byte(salt))  //nolint:errcheck
	return h.Sum64()
}

func defaultSize(n int, rc *pipeline.RunContext, fallback int) int {
	if n > 0 {
		return n
	}
	if rc.Settings.BatchSize > 0 {
		return rc.Settings.BatchSize
	}
	return fallback
}

func configErr(desc pipeline.Descriptor, reason string) error {
	return &pipeline.ConfigurationError{Step: desc.ID, Kind: desc.Kind, Reason: reason}
}

func nowRFC3339(rc *pipeline.RunContext) string {
	return rc.Now().UTC().Format(time.RFC3339)
}
