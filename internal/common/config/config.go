// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Camunda   CamundaConfig           `mapstructure:"camunda"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Workers   map[string]WorkerConfig `mapstructure:"workers"`
	APIs      APIsConfig              `mapstructure:"apis"`
	Pipeline  PipelineConfig          `mapstructure:"pipeline"`
	RateLimit RateLimitConfig         `mapstructure:"rate_limit"`
	Search    SearchConfig            `mapstructure:"search"`
	Scoring   ScoringConfig           `mapstructure:"scoring"`
	Catalog   CatalogConfig           `mapstructure:"catalog"`
	Server    ServerConfig            `mapstructure:"server"`
	Logging   LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	// DeployResources are BPMN files deployed when the worker connects.
	DeployResources []string `mapstructure:"deploy_resources"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
	Index     string   `mapstructure:"index"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	GenAI GenAIConfig `mapstructure:"genai"`
}

// GenAIConfig selects and configures the language service backend.
// Provider is "genai" (in-house HTTP gateway) or "openai" (OpenAI-compatible API).
type GenAIConfig struct {
	Provider    string  `mapstructure:"provider"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	MaxRetries  int     `mapstructure:"max_retries"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// --- Chat Pipeline Configuration ---

// PipelineConfig holds per-turn settings for the orchestrator and context store.
type PipelineConfig struct {
	TurnTimeout        int    `mapstructure:"turn_timeout"` // milliseconds
	MaxMessageLength   int    `mapstructure:"max_message_length"`
	MaxRecommendations int    `mapstructure:"max_recommendations"`
	ContextTTL         int    `mapstructure:"context_ttl"` // seconds
	HistoryWindow      int    `mapstructure:"history_window"`
	ContextOpTimeout   int    `mapstructure:"context_op_timeout"` // milliseconds
	ContextKeyPrefix   string `mapstructure:"context_key_prefix"`
	ContextMemoryMax   int    `mapstructure:"context_memory_max"` // 0 = unbounded
}

// RateLimitConfig holds the per-user admission caps.
type RateLimitConfig struct {
	PerMinute     int `mapstructure:"per_minute"`
	PerHour       int `mapstructure:"per_hour"`
	SweepInterval int `mapstructure:"sweep_interval"` // seconds
}

// SearchConfig holds Search Gateway settings.
type SearchConfig struct {
	CacheTTL          int  `mapstructure:"cache_ttl"` // seconds
	CacheShards       int  `mapstructure:"cache_shards"`
	Concurrency       int  `mapstructure:"concurrency"`
	OverFetchFactor   int  `mapstructure:"over_fetch_factor"`
	MaxResults        int  `mapstructure:"max_results"`
	NativePriceFilter bool `mapstructure:"native_price_filter"`
	Timeout           int  `mapstructure:"timeout"` // milliseconds
}

// ScoringConfig holds the recommendation scorer threshold and weights.
type ScoringConfig struct {
	Threshold             float64        `mapstructure:"threshold"`
	AlternativePenalty    float64        `mapstructure:"alternative_penalty"`
	MaxAlternativeQueries int            `mapstructure:"max_alternative_queries"`
	Weights               ScoringWeights `mapstructure:"weights"`
}

type ScoringWeights struct {
	Similarity      float64 `mapstructure:"similarity"`
	Category        float64 `mapstructure:"category"`
	Color           float64 `mapstructure:"color"`
	Occasion        float64 `mapstructure:"occasion"`
	BudgetContained float64 `mapstructure:"budget_contained"`
	BudgetUnder     float64 `mapstructure:"budget_under"`
	Available       float64 `mapstructure:"available"`
	Unavailable     float64 `mapstructure:"unavailable"`
	Style           float64 `mapstructure:"style"`
}

// CatalogConfig points at the fallback catalog snapshot.
// Source is "postgres" (Table) or "file" (SnapshotPath).
type CatalogConfig struct {
	Source       string `mapstructure:"source"`
	SnapshotPath string `mapstructure:"snapshot_path"`
	Table        string `mapstructure:"table"`
}

// ServerConfig holds the health/metrics/chat HTTP listener settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	AuditPath string `mapstructure:"audit_path"`
}
