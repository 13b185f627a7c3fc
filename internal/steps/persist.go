package steps

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/export"
	"github.com/sells-group/leadflow/internal/filter"
	"github.com/sells-group/leadflow/internal/metrics"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/pkg/notion"
	"github.com/sells-group/leadflow/pkg/salesforce"
)

const defaultExportDir = "data/exports"

type csvExportConfig struct {
	Columns string      `yaml:"columns"`
	XLSX    *bool       `yaml:"xlsx"`
	Upload  bool        `yaml:"upload"`
	Filter  filter.Expr `yaml:"filter"`
}

func (c *csvExportConfig) Validate() error {
	if _, err := export.ColumnSet(c.Columns); err != nil {
		return err
	}
	return c.Filter.Validate()
}

type csvExportStep struct {
	pipeline.Base
	cfg  csvExportConfig
	cols []export.Column
	set  ExportSettings
}

func newCSVExport(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	cfg := csvExportConfig{Columns: "default"}
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	cols, _ := export.ColumnSet(cfg.Columns)
	set := d.Export
	if set.Dir == "" {
		set.Dir = defaultExportDir
	}
	if cfg.XLSX != nil {
		set.XLSX = *cfg.XLSX
	}
	return &csvExportStep{Base: pipeline.NewBase(desc, rc), cfg: cfg, cols: cols, set: set}, nil
}

// Execute writes the day's export file and passes the batch through
// unchanged.
func (s *csvExportStep) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	rows := batch
	if !s.cfg.Filter.IsZero() {
		rows = filter.Apply(batch, s.cfg.Filter)
	}
	if len(rows) == 0 {
		s.Logger().Info("steps: nothing to export")
		return batch, nil
	}

	day := rc.Now()
	path, err := export.WriteCSVFile(s.set.Dir, rc.Channel.ID, day, rows, s.cols)
	if err != nil {
		return nil, eris.Wrap(err, "steps: csv export")
	}
	files := []string{path}
	if s.set.XLSX {
		xp := filepath.Join(s.set.Dir, export.FileName(rc.Channel.ID, day, "xlsx"))
		sheet := rc.Channel.SheetTab
		if sheet == "" {
			sheet = rc.Channel.Name
		}
		if err := export.WriteXLSX(xp, sheet, rows, s.cols); err != nil {
			return nil, eris.Wrap(err, "steps: xlsx export")
		}
		files = append(files, xp)
	}

	uploaded := false
	if s.cfg.Upload && !s.ShouldSimulate() && s.set.Uploader != nil {
		for _, f := range files {
			if err := s.set.Uploader.Upload(ctx, f); err != nil {
				s.Logger().Warn("steps: export upload failed", zap.String("file", f), zap.Error(err))
				continue
			}
			uploaded = true
		}
	}

	rc.AddArtifact("csv_exports", map[string]any{
		"files":    files,
		"rows":     len(rows),
		"uploaded": uploaded,
		"at":       nowRFC3339(rc),
	})
	rc.Incr("exported", int64(len(rows)))
	s.Logger().Info("steps: export written", zap.Strings("files", files), zap.Int("rows", len(rows)))
	return batch, nil
}

type recordStoreStep struct {
	pipeline.Base
}

func newRecordStore(desc pipeline.Descriptor, rc *pipeline.RunContext, _ *Deps) (pipeline.Step, error) {
	if err := pipeline.DecodeConfig(desc, &struct{}{}); err != nil {
		return nil, err
	}
	return &recordStoreStep{Base: pipeline.NewBase(desc, rc)}, nil
}

// Execute appends new records to the channel store.
func (s *recordStoreStep) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	added, err := s.Context().StoreRecords(ctx, batch)
	if err != nil {
		return nil, err
	}
	s.Context().Incr("stored", int64(added))
	s.Logger().Info("steps: records stored", zap.Int("added", added), zap.Int("batch", len(batch)))
	return batch, nil
}

type summaryStep struct {
	pipeline.Base
}

func newSummaryReport(desc pipeline.Descriptor, rc *pipeline.RunContext, _ *Deps) (pipeline.Step, error) {
	if err := pipeline.DecodeConfig(desc, &struct{}{}); err != nil {
		return nil, err
	}
	return &summaryStep{Base: pipeline.NewBase(desc, rc)}, nil
}

// Execute appends a run report to the execution history.
func (s *summaryStep) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	started := rc.Now()
	if v, ok := rc.Meta(pipeline.MetaStartedAt); ok {
		if t, ok := (model.Record{"t": v}).Time("t"); ok {
			started = t
		}
	}
	report := model.RunReport{
		RunID:        rc.MetaString(pipeline.MetaRunID),
		Channel:      rc.Channel.ID,
		ChannelName:  rc.Channel.Name,
		StartedAt:    started,
		CompletedAt:  rc.Now(),
		Metrics:      rc.Metrics(),
		TotalRecords: len(batch),
	}
	if err := rc.AppendRunReport(ctx, report); err != nil {
		return nil, err
	}
	s.Logger().Info("steps: run summary",
		zap.String("run_id", report.RunID),
		zap.Int("records", report.TotalRecords),
		zap.Any("metrics", report.Metrics),
	)
	return batch, nil
}

type metricsExportConfig struct {
	Path string `yaml:"path"`
}

type metricsExportStep struct {
	pipeline.Base
	path string
}

func newMetricsExport(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	cfg := metricsExportConfig{Path: d.MetricsTextfile}
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	return &metricsExportStep{Base: pipeline.NewBase(desc, rc), path: cfg.Path}, nil
}

// Execute writes the run's counters as a Prometheus textfile. Without a
// path the step is a no-op.
func (s *metricsExportStep) Execute(_ context.Context, batch []model.Record) ([]model.Record, error) {
	if s.path == "" {
		return batch, nil
	}
	rc := s.Context()
	if err := metrics.WriteTextfile(s.path, rc.Channel.ID, rc.Metrics(), rc.Now()); err != nil {
		s.Logger().Warn("steps: metrics textfile failed", zap.String("path", s.path), zap.Error(err))
		return batch, nil
	}
	s.Logger().Debug("steps: metrics textfile written", zap.String("path", s.path))
	return batch, nil
}

type syncConfig struct {
	Filter filter.Expr `yaml:"filter"`
}

func (c *syncConfig) Validate() error { return c.Filter.Validate() }

type notionSyncStep struct {
	pipeline.Base
	cfg    syncConfig
	client notion.Client
	dbID   string
}

func newNotionSync(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	var cfg syncConfig
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	return &notionSyncStep{Base: pipeline.NewBase(desc, rc), cfg: cfg, client: d.Notion, dbID: d.NotionDB}, nil
}

// Execute mirrors Warm and Hot leads into the Notion tracking database.
// Per-lead failures are tagged and never fail the step.
func (s *notionSyncStep) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	leads := selectOr(batch, s.cfg.Filter, warmOrBetter)
	if s.ShouldSimulate() || s.client == nil || s.dbID == "" {
		for _, r := range leads {
			r["notion_status"] = "simulated"
		}
		s.Logger().Info("steps: notion sync simulated", zap.Int("count", len(leads)))
		return batch, nil
	}

	var synced int
	for _, r := range leads {
		tier := r.String(model.FieldLeadTier)
		score := r.Float(model.FieldLeadScore)
		if tier == "" {
			tier = r.String(model.FieldSignalTier)
			score = r.Float(model.FieldSignalScore)
		}
		id, created, err := notion.UpsertLead(ctx, s.client, s.dbID, notion.Lead{
			Key:      model.EnsureIdentity(r),
			Name:     r.String(model.FieldName),
			Email:    r.String(model.FieldEmail),
			Company:  r.String(model.FieldCompany),
			Title:    r.String(model.FieldTitle),
			Channel:  rc.Channel.Name,
			Tier:     tier,
			Score:    score,
			LinkedIn: r.String(model.FieldLinkedIn),
			Status:   "New",
		})
		if err != nil {
			r["notion_status"] = "failed"
			s.Logger().Warn("steps: notion upsert failed", zap.String("lead", model.IdentityKey(r)), zap.Error(err))
			continue
		}
		r["notion_page_id"] = id
		if created {
			r["notion_status"] = "created"
		} else {
			r["notion_status"] = "updated"
		}
		synced++
	}
	rc.Incr("notion_synced", int64(synced))
	s.Logger().Info("steps: notion sync complete", zap.Int("synced", synced), zap.Int("candidates", len(leads)))
	return batch, nil
}

type crmSyncStep struct {
	pipeline.Base
	cfg    syncConfig
	client salesforce.Client
}

func newCRMSync(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	var cfg syncConfig
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	return &crmSyncStep{Base: pipeline.NewBase(desc, rc), cfg: cfg, client: d.Salesforce}, nil
}

// Execute upserts Warm and Hot leads as Salesforce Lead objects.
func (s *crmSyncStep) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	leads := selectOr(batch, s.cfg.Filter, warmOrBetter)
	if s.ShouldSimulate() || s.client == nil {
		for _, r := range leads {
			r["crm_status"] = "simulated"
		}
		s.Logger().Info("steps: crm sync simulated", zap.Int("count", len(leads)))
		return batch, nil
	}

	var synced int
	for _, r := range leads {
		id, created, err := salesforce.UpsertLead(ctx, s.client, crmFields(r, rc.Channel.Name))
		if err != nil {
			r["crm_status"] = "failed"
			s.Logger().Warn("steps: crm upsert failed", zap.String("lead", model.IdentityKey(r)), zap.Error(err))
			continue
		}
		r["crm_lead_id"] = id
		if created {
			r["crm_status"] = "created"
		} else {
			r["crm_status"] = "updated"
		}
		synced++
	}
	rc.Incr("crm_synced", int64(synced))
	s.Logger().Info("steps: crm sync complete", zap.Int("synced", synced), zap.Int("candidates", len(leads)))
	return batch, nil
}

func crmFields(r model.Record, channelName string) map[string]any {
	first, last := r.String(model.FieldFirstName), r.String(model.FieldLastName)
	if last == "" {
		parts := strings.Fields(r.String(model.FieldName))
		if len(parts) > 0 {
			last = parts[len(parts)-1]
			if first == "" && len(parts) > 1 {
				first = strings.Join(parts[:len(parts)-1], " ")
			}
		}
	}
	tier := model.ParseTier(r.String(model.FieldLeadTier))
	if tier == "" {
		tier = model.ParseTier(r.String(model.FieldSignalTier))
	}
	fields := map[string]any{
		"FirstName":  first,
		"LastName":   last,
		"Company":    r.String(model.FieldCompany),
		"Email":      r.String(model.FieldEmail),
		"Title":      r.String(model.FieldTitle),
		"LeadSource": "leadflow: " + channelName,
		"Rating":     string(tier),
	}
	for k, v := range fields {
		if v == "" {
			delete(fields, k)
		}
	}
	return fields
}
