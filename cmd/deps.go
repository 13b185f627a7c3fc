package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/internal/engine"
	"github.com/sells-group/leadflow/internal/export"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/steps"
	"github.com/sells-group/leadflow/internal/store"
	"github.com/sells-group/leadflow/pkg/anthropic"
	"github.com/sells-group/leadflow/pkg/apify"
	"github.com/sells-group/leadflow/pkg/apollo"
	"github.com/sells-group/leadflow/pkg/gemini"
	"github.com/sells-group/leadflow/pkg/heygen"
	"github.com/sells-group/leadflow/pkg/moengage"
	"github.com/sells-group/leadflow/pkg/notion"
	"github.com/sells-group/leadflow/pkg/postmark"
	"github.com/sells-group/leadflow/pkg/salesforce"
	"github.com/sells-group/leadflow/pkg/slack"
)

// appEnv holds everything a command needs to run pipelines.
type appEnv struct {
	Store    store.RecordStore
	Channels *channel.Registry
	Catalog  *pipeline.Catalog
	Engine   *engine.Engine
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func storeOptions(c *config.Config) store.Options {
	return store.Options{
		Driver:      c.Store.Driver,
		DataDir:     c.Store.DataDir,
		LeadsDir:    c.Store.LeadsDir,
		DatabaseURL: c.Store.DatabaseURL,
	}
}

func initStore(ctx context.Context) (store.RecordStore, error) {
	st, err := store.Open(ctx, storeOptions(cfg))
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// initEnv wires the store, channel profiles, pipeline catalog and step
// collaborators into an engine.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	channels, err := channel.NewRegistry(cfg.Channels.Dir)
	if err != nil {
		return nil, eris.Wrap(err, "load channels")
	}
	catalog, err := pipeline.NewCatalog(steps.BuiltinDefinitions(), cfg.Pipelines.Dir)
	if err != nil {
		return nil, eris.Wrap(err, "load pipelines")
	}

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	settings := pipeline.Settings{
		AllowDuplicates: cfg.Run.AllowDuplicates,
		BatchSize:       cfg.Run.BatchSize,
		SenderName:      cfg.Run.SenderName,
	}
	eng := engine.New(channels, catalog, st, steps.NewRegistry(deps), settings)

	return &appEnv{
		Store:    st,
		Channels: channels,
		Catalog:  catalog,
		Engine:   eng,
	}, nil
}

// buildDeps creates a client for every configured integration. Anything
// left unconfigured stays nil and its steps simulate.
func buildDeps(ctx context.Context, c *config.Config) (steps.Deps, error) {
	d := steps.Deps{
		Email: steps.EmailSettings{
			From:          c.Postmark.FromEmail,
			MessageStream: c.Postmark.MessageStream,
		},
		SlackChannel: c.Slack.Channel,
		Video: steps.VideoSettings{
			AvatarID:     c.HeyGen.AvatarID,
			VoiceID:      c.HeyGen.VoiceID,
			PollInterval: time.Duration(c.HeyGen.PollIntervalSecs) * time.Second,
			MaxPolls:     c.HeyGen.MaxPolls,
		},
		NotionDB: c.Notion.LeadDB,
		Export: steps.ExportSettings{
			Dir:  c.Export.Dir,
			XLSX: c.Export.XLSX,
		},
		MetricsTextfile: c.Metrics.Textfile,
	}

	if c.Apollo.Key != "" {
		d.Apollo = apollo.NewClient(c.Apollo.Key,
			apollo.WithBaseURL(c.Apollo.BaseURL),
			apollo.WithRequestsPerSecond(c.Apollo.RequestsPerSecond),
		)
	}
	if c.Apify.Token != "" {
		d.Apify = apify.NewClient(c.Apify.Token, apify.WithBaseURL(c.Apify.BaseURL))
		d.ApifyPoll = []apify.PollOption{
			apify.WithPollInterval(time.Duration(c.Apify.PollInterval) * time.Second),
			apify.WithPollTimeout(time.Duration(c.Apify.WaitSecs) * time.Second),
		}
	}
	if c.MoEngage.Enabled() {
		d.MoEngage = moengage.NewClient(c.MoEngage.WorkspaceID, c.MoEngage.DataAPIKey,
			moengage.WithBaseURL(c.MoEngage.BaseURL))
	}
	if c.Postmark.Enabled() {
		d.Postmark = postmark.NewClient(c.Postmark.ServerToken, postmark.WithBaseURL(c.Postmark.BaseURL))
	}
	if c.Slack.WebhookURL != "" {
		d.Slack = slack.NewClient(c.Slack.WebhookURL)
	}
	if c.HeyGen.Key != "" {
		d.HeyGen = heygen.NewClient(c.HeyGen.Key, heygen.WithBaseURL(c.HeyGen.BaseURL))
	}
	if c.Notion.Token != "" {
		d.Notion = notion.NewClient(c.Notion.Token)
	}

	var writers []steps.Writer
	if c.Anthropic.Key != "" {
		writers = append(writers, anthropic.NewGenerator(
			anthropic.NewClient(c.Anthropic.Key), c.Anthropic.Model, c.Anthropic.MaxTokens))
	}
	if c.Gemini.Key != "" {
		g, err := gemini.New(ctx, gemini.Config{APIKey: c.Gemini.Key, Model: c.Gemini.Model})
		if err != nil {
			return steps.Deps{}, eris.Wrap(err, "init gemini")
		}
		writers = append(writers, g)
	}
	if len(writers) > 0 {
		d.Writer = steps.Chain(writers...)
	}

	if c.Export.FTP.Host != "" {
		up, err := export.NewFTPUploader(export.FTPOptions{
			Host:     c.Export.FTP.Host,
			User:     c.Export.FTP.User,
			Password: c.Export.FTP.Password,
			Dir:      c.Export.FTP.Dir,
		})
		if err != nil {
			return steps.Deps{}, eris.Wrap(err, "init ftp uploader")
		}
		d.Export.Uploader = up
	}

	if c.Salesforce.Enabled {
		sf, err := salesforce.Connect(salesforce.JWTConfig{
			LoginURL: c.Salesforce.LoginURL,
			ClientID: c.Salesforce.ClientID,
			Username: c.Salesforce.Username,
			KeyPath:  c.Salesforce.KeyPath,
		})
		if err != nil {
			return steps.Deps{}, eris.Wrap(err, "init salesforce")
		}
		d.Salesforce = sf
	}

	return d, nil
}
