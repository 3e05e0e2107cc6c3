package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"marketlens"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"marketlens"`

	WeaviateHost     string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme   string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	VectorCollection string `envconfig:"VECTOR_COLLECTION" default:"ReviewChunk"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	// Empty disables the duplicate-delivery lock.
	RedisURL string `envconfig:"REDIS_URL"`

	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	GeminiEmbedModel string `envconfig:"GEMINI_EMBED_MODEL" default:"gemini-embedding-001"`
	GeminiChatModel  string `envconfig:"GEMINI_CHAT_MODEL" default:"gemini-1.5-flash"`
	RerankAPIKey     string `envconfig:"RERANK_API_KEY"`

	// External scrape engine
	ScraperBaseURL         string `envconfig:"SCRAPER_BASE_URL" default:"https://api.apify.com/v2"`
	ScraperAPIToken        string `envconfig:"SCRAPER_API_TOKEN"`
	ScraperAmazonActor     string `envconfig:"SCRAPER_AMAZON_ACTOR" default:"junglee~amazon-reviews-scraper"`
	ScraperTrustpilotActor string `envconfig:"SCRAPER_TRUSTPILOT_ACTOR" default:"casper11515~trustpilot-reviews-scraper"`
	ScraperMaxReviews      int    `envconfig:"SCRAPER_MAX_REVIEWS" default:"100"`
	WebhookSecret          string `envconfig:"WEBHOOK_SECRET"`
	WebhookPublicURL       string `envconfig:"WEBHOOK_PUBLIC_URL" default:"http://localhost:8081/webhooks/scraper"`

	// Pipeline
	ChatTopK             int    `envconfig:"CHAT_TOP_K" default:"40"`
	ReviewStalenessDays  int    `envconfig:"REVIEW_STALENESS_DAYS" default:"7"`
	RefreshCron          string `envconfig:"REFRESH_CRON" default:"@every 6h"`
	IndexingConcurrency  int    `envconfig:"INDEXING_CONCURRENCY" default:"4"`
	EnableResourceWorker bool   `envconfig:"ENABLE_RESOURCE_WORKER" default:"true"`
	MigrationPath        string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win over both files.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.VectorCollection == "" {
		return fmt.Errorf("%w: VECTOR_COLLECTION", ErrMissingRequired)
	}
	if c.ChatTopK <= 0 {
		return fmt.Errorf("CHAT_TOP_K must be positive, got %d", c.ChatTopK)
	}
	if c.ReviewStalenessDays <= 0 {
		return fmt.Errorf("REVIEW_STALENESS_DAYS must be positive, got %d", c.ReviewStalenessDays)
	}
	return nil
}

// Unsigned reports whether webhook deliveries are accepted without a signature.
func (c *Config) Unsigned() bool {
	return c.WebhookSecret == ""
}
