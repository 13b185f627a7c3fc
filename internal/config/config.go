package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Run        RunConfig        `yaml:"run" mapstructure:"run"`
	Pipelines  PipelinesConfig  `yaml:"pipelines" mapstructure:"pipelines"`
	Channels   ChannelsConfig   `yaml:"channels" mapstructure:"channels"`
	Apollo     ApolloConfig     `yaml:"apollo" mapstructure:"apollo"`
	Apify      ApifyConfig      `yaml:"apify" mapstructure:"apify"`
	MoEngage   MoEngageConfig   `yaml:"moengage" mapstructure:"moengage"`
	Postmark   PostmarkConfig   `yaml:"postmark" mapstructure:"postmark"`
	Slack      SlackConfig      `yaml:"slack" mapstructure:"slack"`
	HeyGen     HeyGenConfig     `yaml:"heygen" mapstructure:"heygen"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
}

// StoreConfig configures the record store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DataDir     string `yaml:"data_dir" mapstructure:"data_dir"`
	LeadsDir    string `yaml:"leads_dir" mapstructure:"leads_dir"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RunConfig configures pipeline execution.
type RunConfig struct {
	Live            bool   `yaml:"live" mapstructure:"live"`
	BatchSize       int    `yaml:"batch_size" mapstructure:"batch_size"`
	AllowDuplicates bool   `yaml:"allow_duplicates" mapstructure:"allow_duplicates"`
	SenderName      string `yaml:"sender_name" mapstructure:"sender_name"`
}

// PipelinesConfig points at YAML pipeline definition overrides.
type PipelinesConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ChannelsConfig points at YAML channel profile overrides.
type ChannelsConfig struct {
	Dir   string `yaml:"dir" mapstructure:"dir"`
	Watch bool   `yaml:"watch" mapstructure:"watch"`
}

// ApolloConfig holds Apollo search/enrichment settings.
type ApolloConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ApifyConfig holds Apify actor settings.
type ApifyConfig struct {
	Token        string `yaml:"token" mapstructure:"token"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	WaitSecs     int    `yaml:"wait_secs" mapstructure:"wait_secs"`
	PollInterval int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
}

// MoEngageConfig holds MoEngage data API credentials.
type MoEngageConfig struct {
	WorkspaceID string `yaml:"workspace_id" mapstructure:"workspace_id"`
	DataAPIKey  string `yaml:"data_api_key" mapstructure:"data_api_key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
}

// Enabled reports whether MoEngage credentials are present.
func (c MoEngageConfig) Enabled() bool {
	return c.WorkspaceID != "" && c.DataAPIKey != ""
}

// PostmarkConfig holds Postmark transactional email settings.
type PostmarkConfig struct {
	ServerToken   string `yaml:"server_token" mapstructure:"server_token"`
	FromEmail     string `yaml:"from_email" mapstructure:"from_email"`
	MessageStream string `yaml:"message_stream" mapstructure:"message_stream"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
}

// Enabled reports whether a Postmark token is configured.
func (c PostmarkConfig) Enabled() bool { return c.ServerToken != "" }

// SlackConfig holds the notification webhook.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	Channel    string `yaml:"channel" mapstructure:"channel"`
}

// HeyGenConfig holds HeyGen video generation settings.
type HeyGenConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	AvatarID         string `yaml:"avatar_id" mapstructure:"avatar_id"`
	VoiceID          string `yaml:"voice_id" mapstructure:"voice_id"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxPolls         int    `yaml:"max_polls" mapstructure:"max_polls"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// NotionConfig holds Notion API credentials and the lead database id.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// ExportConfig configures tabular exports and the optional FTP drop.
type ExportConfig struct {
	Dir  string    `yaml:"dir" mapstructure:"dir"`
	XLSX bool      `yaml:"xlsx" mapstructure:"xlsx"`
	FTP  FTPConfig `yaml:"ftp" mapstructure:"ftp"`
}

// FTPConfig holds FTP upload credentials. An empty host disables uploads.
type FTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("store.leads_dir", "data/leads")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("run.live", false)
	v.SetDefault("run.batch_size", 25)
	v.SetDefault("run.allow_duplicates", false)
	v.SetDefault("run.sender_name", "The Advisory Team")
	v.SetDefault("pipelines.dir", "")
	v.SetDefault("channels.dir", "")
	v.SetDefault("channels.watch", false)
	v.SetDefault("apollo.base_url", "https://api.apollo.io/api/v1")
	v.SetDefault("apollo.requests_per_second", 1.0)
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.wait_secs", 120)
	v.SetDefault("apify.poll_interval_secs", 5)
	v.SetDefault("moengage.base_url", "https://api-01.moengage.com")
	v.SetDefault("postmark.base_url", "https://api.postmarkapp.com")
	v.SetDefault("postmark.message_stream", "outbound")
	v.SetDefault("postmark.from_email", "ops@example.com")
	v.SetDefault("slack.channel", "#lead-gen-notifications")
	v.SetDefault("heygen.base_url", "https://api.heygen.com")
	v.SetDefault("heygen.poll_interval_secs", 10)
	v.SetDefault("heygen.max_polls", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("export.dir", "data/exports")
	v.SetDefault("export.ftp.dir", "/")
	v.SetDefault("server.port", 8080)

	// Unset keys still need registering so env-only secrets reach Unmarshal.
	for _, key := range []string{
		"store.database_url",
		"apollo.key", "apify.token",
		"moengage.workspace_id", "moengage.data_api_key",
		"postmark.server_token", "slack.webhook_url",
		"heygen.key", "heygen.avatar_id", "heygen.voice_id",
		"anthropic.key", "gemini.key",
		"notion.token", "notion.lead_db",
		"salesforce.client_id", "salesforce.username", "salesforce.key_path",
		"export.ftp.host", "export.ftp.user", "export.ftp.password",
		"metrics.textfile",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("salesforce.enabled", false)
	v.SetDefault("export.xlsx", false)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "file", "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, "store.driver must be one of file, sqlite, postgres")
	}

	switch mode {
	case "run":
		if c.Run.BatchSize < 1 {
			errs = append(errs, "run.batch_size must be > 0")
		}
		if c.Run.Live && c.Salesforce.Enabled && (c.Salesforce.ClientID == "" || c.Salesforce.Username == "" || c.Salesforce.KeyPath == "") {
			errs = append(errs, "salesforce.client_id, salesforce.username and salesforce.key_path are required when salesforce is enabled")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "export":
		if c.Export.Dir == "" {
			errs = append(errs, "export.dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
