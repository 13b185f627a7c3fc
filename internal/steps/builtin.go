package steps

import (
	"fmt"

	"github.com/sells-group/leadflow/internal/pipeline"
)

func step(id, kind, name string, cfg map[string]any) pipeline.Descriptor {
	return pipeline.Descriptor{ID: id, Kind: kind, Name: name, Config: cfg}
}

func eqFilter(field, value string) map[string]any {
	return map[string]any{"field": field, "op": "eq", "value": value}
}

// tail is shared by every built-in pipeline.
func tail() []pipeline.Descriptor {
	return []pipeline.Descriptor{
		step("store", KindRecordStore, "Persist Leads", nil),
		step("summary", KindSummaryReport, "Execution Summary", nil),
		step("metrics", KindMetricsExport, "Metrics Textfile", nil),
	}
}

func profilePipeline(id, name string, middle ...pipeline.Descriptor) pipeline.Definition {
	steps := append([]pipeline.Descriptor{}, middle...)
	steps = append(steps, tail()...)
	return pipeline.Definition{ID: id, Name: name, Channel: id, Steps: steps}
}

type signalPipeline struct {
	id, name, channel string
	maxResults        int
	minScore          int
	tiers             []any
	sequence          string
	hotAlert          string
	extra             []pipeline.Descriptor
}

func (sp signalPipeline) definition() pipeline.Definition {
	steps := []pipeline.Descriptor{
		step("trigger", KindTrigger, "Workflow Trigger", map[string]any{"trigger": "scheduled"}),
		step("intent_signals", KindIntentSignals, "Apollo Intent Signals", map[string]any{"sample_size": sp.maxResults}),
		step("enrich", KindApolloEnrich, "Data Enrichment", map[string]any{"reveal_personal_emails": true}),
		step("signal_score", KindSignalScoring, "Signal Scoring", map[string]any{"min_signal_score": sp.minScore}),
		step("filter_signals", KindDataQuality, "Signal Filter", map[string]any{
			"required_fields":  []any{"email", "signal_score"},
			"min_signal_score": sp.minScore,
			"signal_tiers":     sp.tiers,
		}),
		step("dedupe", KindDedupe, "Deduplication", nil),
		step("icp_score", KindLeadScoring, "ICP Scoring", nil),
		step("csv", KindCSVExport, "CSV Export", map[string]any{"columns": "signals"}),
		step("notion", KindNotionSync, "Notion Lead Tracker", nil),
		step("hot_alert", KindSlackNotify, "Hot Signal Alert", map[string]any{
			"filter":  eqFilter("signal_tier", "Hot Signal"),
			"message": sp.hotAlert,
		}),
		step("warm_sequence", KindEmailSequence, "Warm Signal Sequence", map[string]any{
			"filter": eqFilter("signal_tier", "Warm Signal"),
			"name":   sp.sequence,
		}),
	}
	steps = append(steps, sp.extra...)
	steps = append(steps, tail()...)
	return pipeline.Definition{ID: sp.id, Name: sp.name, Channel: sp.channel, Steps: steps}
}

const hotAlert = "{count} HOT SIGNALS detected for %s.\nTop lead: {lead.name} ({lead.company})\nIntent: {lead.intent_topics}\nScore: {lead.signal_score}"

// BuiltinDefinitions returns the compiled-in pipelines, one per built-in
// channel.
func BuiltinDefinitions() []pipeline.Definition {
	return []pipeline.Definition{
		profilePipeline("partners", "Partner Lead Workflow",
			step("trigger", KindTrigger, "Manual Trigger", map[string]any{"trigger": "manual"}),
			step("apify", KindApifyScrape, "Apify Lead Scrape", map[string]any{"sample_size": 25}),
			step("quality", KindDataQuality, "Data Quality Checks", nil),
			step("dedupe", KindDedupe, "Deduplicate Leads", nil),
			step("score", KindLeadScoring, "Lead Scoring", nil),
			step("csv", KindCSVExport, "CSV Export", nil),
			step("notion", KindNotionSync, "Notion Lead Tracker", nil),
			step("crm", KindCRMSync, "Salesforce Lead Sync", nil),
			step("email", KindEmailSequence, "Email Sequence Enqueue", nil),
			step("postmark", KindPostmarkSend, "Postmark Dispatch", nil),
			step("slack", KindSlackNotify, "Slack Summary", nil),
		),
		profilePipeline("hni", "HNI Lead Workflow",
			step("trigger", KindTrigger, "Scheduled Trigger", map[string]any{"trigger": "weekly"}),
			step("apollo", KindApolloSearch, "Apollo Search", map[string]any{"sample_size": 10}),
			step("quality", KindDataQuality, "Data Quality Checks", nil),
			step("dedupe", KindDedupe, "Deduplicate Leads", nil),
			step("score", KindLeadScoring, "Lead Scoring", nil),
			step("video", KindVideoPersonalization, "HeyGen Personalization", nil),
			step("notion", KindNotionSync, "Notion Lead Tracker", nil),
			step("email", KindEmailSequence, "Email Sequence Enqueue", nil),
			step("email-send", KindEmailSend, "Email Dispatch (MoEngage/Postmark)", nil),
			step("slack", KindSlackNotify, "Slack Summary", nil),
		),
		profilePipeline("uhni", "UHNI Lead Workflow",
			step("trigger", KindTrigger, "Manual Trigger", map[string]any{"trigger": "curated"}),
			step("apify", KindApifyScrape, "Apify Lead Scrape", map[string]any{"sample_size": 15}),
			step("quality", KindDataQuality, "Data Quality Checks", nil),
			step("dedupe", KindDedupe, "Deduplicate Leads", nil),
			step("score", KindLeadScoring, "Lead Scoring", nil),
			step("briefing", KindExecutiveBriefing, "Executive Assistant Briefing", nil),
			step("notion", KindNotionSync, "Notion Lead Tracker", nil),
			step("crm", KindCRMSync, "Salesforce Lead Sync", nil),
			step("email", KindEmailSequence, "EA Email Sequence", nil),
			step("email-send", KindEmailSend, "Email Dispatch (MoEngage/Postmark)", nil),
			step("slack", KindSlackNotify, "Slack Summary", nil),
		),
		profilePipeline("mass_affluent", "Mass Affluent Lead Workflow",
			step("trigger", KindTrigger, "Daily Trigger", map[string]any{"trigger": "daily"}),
			step("apify", KindApifyScrape, "Apify Lead Scrape", map[string]any{"sample_size": 60}),
			step("quality", KindDataQuality, "Data Quality Checks", nil),
			step("dedupe", KindDedupe, "Deduplicate Leads", nil),
			step("score", KindLeadScoring, "Lead Scoring", nil),
			step("newsletter", KindNewsletter, "Newsletter Enrollment", nil),
			step("email", KindEmailSequence, "Email Sequence Enqueue", nil),
			step("postmark", KindPostmarkSend, "Postmark Dispatch", nil),
			step("slack", KindSlackNotify, "Slack Summary", nil),
		),
		signalPipeline{
			id: "signals-hni", name: "Signal-Based HNI Prospecting", channel: "signals-hni",
			maxResults: 200, minScore: 40,
			tiers:    []any{"Hot Signal", "Warm Signal"},
			sequence: "HNI Warm Intent",
			hotAlert: fmt.Sprintf(hotAlert, "HNI"),
		}.definition(),
		signalPipeline{
			id: "signals-uhni", name: "Signal-Based UHNI Prospecting", channel: "signals-uhni",
			maxResults: 100, minScore: 50,
			tiers:    []any{"Hot Signal", "Warm Signal"},
			sequence: "UHNI Concierge Intent",
			hotAlert: fmt.Sprintf(hotAlert, "UHNI"),
			extra: []pipeline.Descriptor{
				step("video", KindVideoPersonalization, "HeyGen Personalization", map[string]any{"min_score": 80}),
				step("briefing", KindExecutiveBriefing, "Executive Assistant Briefing", nil),
			},
		}.definition(),
		signalPipeline{
			id: "signals-mass-affluent", name: "Signal-Based Mass Affluent Prospecting", channel: "signals-mass-affluent",
			maxResults: 500, minScore: 30,
			tiers:    []any{"Hot Signal", "Warm Signal", "Cold Signal"},
			sequence: "Mass Affluent Retirement Planning",
			hotAlert: fmt.Sprintf(hotAlert, "Mass Affluent"),
			extra: []pipeline.Descriptor{
				step("cold_newsletter", KindNewsletter, "Newsletter Enrollment", map[string]any{
					"filter":   eqFilter("signal_tier", "Cold Signal"),
					"campaign": "mass_affluent_education",
				}),
			},
		}.definition(),
		signalPipeline{
			id: "signals-partners", name: "Signal-Based Partner Prospecting", channel: "signals-partners",
			maxResults: 150, minScore: 40,
			tiers:    []any{"Hot Signal", "Warm Signal"},
			sequence: "Partner Warm Intent",
			hotAlert: fmt.Sprintf(hotAlert, "Partner"),
		}.definition(),
	}
}
