package config

// AppConfig holds application-level settings.
type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// RedisConfig holds redis connection settings. Redis backs both the
// ingestion job queue and the live-update broadcast channel.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig holds the article store connection settings.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SearchConfig holds OpenSearch settings.
type SearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// OpenAIConfig configures the translation backend.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// IngestConfig tunes the ingestion pipeline and scheduler.
type IngestConfig struct {
	TickInterval      string `mapstructure:"tick_interval"`       // duration string, e.g., "5m"
	MaxItemsPerFeed   int    `mapstructure:"max_items_per_feed"`  // cap on normalized items per fetch
	TargetLanguage    string `mapstructure:"target_language"`     // 2-letter code articles are translated to
	TranslateMaxChars int    `mapstructure:"translate_max_chars"` // ceiling before calling the backend
	BodyMaxChars      int    `mapstructure:"body_max_chars"`      // ceiling on stored raw body
	TranslateDelay    string `mapstructure:"translate_delay"`     // delay between per-field backend calls
	BroadcastChannel  string `mapstructure:"broadcast_channel"`   // redis pub/sub channel for new_article events
	WorkerConcurrency int    `mapstructure:"worker_concurrency"`  // asynq worker pool size
	DirectDispatch    bool   `mapstructure:"direct_dispatch"`     // bypass the job queue, run fetches in-process
}

// Config is the top-level configuration structure.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Search   SearchConfig   `mapstructure:"search"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
}

// FillDefaults applies default values if not provided.
func (c *Config) FillDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if len(c.Search.Addresses) == 0 {
		c.Search.Addresses = []string{"http://localhost:9200"}
	}
	if c.Search.Index == "" {
		c.Search.Index = "articles"
	}
	if c.Ingest.TickInterval == "" {
		c.Ingest.TickInterval = "5m"
	}
	if c.Ingest.MaxItemsPerFeed == 0 {
		c.Ingest.MaxItemsPerFeed = 50
	}
	if c.Ingest.TargetLanguage == "" {
		c.Ingest.TargetLanguage = "es"
	}
	if c.Ingest.TranslateMaxChars == 0 {
		c.Ingest.TranslateMaxChars = 5000
	}
	if c.Ingest.BodyMaxChars == 0 {
		c.Ingest.BodyMaxChars = 1_000_000
	}
	if c.Ingest.TranslateDelay == "" {
		c.Ingest.TranslateDelay = "100ms"
	}
	if c.Ingest.BroadcastChannel == "" {
		c.Ingest.BroadcastChannel = "articles:new"
	}
	if c.Ingest.WorkerConcurrency == 0 {
		c.Ingest.WorkerConcurrency = 4
	}
}
