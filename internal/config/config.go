package config

import (
	"time"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Broker      BrokerConfig      `mapstructure:"broker"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Enrichment  EnrichmentConfig  `mapstructure:"enrichment"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	API         APIConfig         `mapstructure:"api"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI               string `mapstructure:"uri"`
	Database          string `mapstructure:"database"`
	FailureCollection string `mapstructure:"failure_collection"`
}

// QueueConfig describes the inbound Redis stream consumed through a
// consumer group.
type QueueConfig struct {
	Stream            string        `mapstructure:"stream"`
	Group             string        `mapstructure:"group"`
	Consumer          string        `mapstructure:"consumer"`
	BatchSize         int           `mapstructure:"batch_size"`
	WaitTime          time.Duration `mapstructure:"wait_time"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	MaxReceives       int           `mapstructure:"max_receives"`
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	AlertTopic      string   `mapstructure:"alert_topic"`
	DeadLetterTopic string   `mapstructure:"dead_letter_topic"`
}

type WorkerConfig struct {
	Partitions         int           `mapstructure:"partitions"`
	PartitionBuffer    int           `mapstructure:"partition_buffer"`
	ProcessingDeadline time.Duration `mapstructure:"processing_deadline"`
	QuietSweepInterval time.Duration `mapstructure:"quiet_sweep_interval"`
}

type IdempotencyConfig struct {
	HashAlgorithm string `mapstructure:"hash_algorithm"`
	TTLSeconds    int    `mapstructure:"ttl_seconds"`
	OnCacheError  string `mapstructure:"on_cache_error"` // "allow" or "fail" (default: "allow")
}

type EnrichmentConfig struct {
	Type            string               `mapstructure:"type"` // api, postgres, mongodb, none
	URL             string               `mapstructure:"url"`
	Collection      string               `mapstructure:"collection"`
	Table           string               `mapstructure:"table"`
	Timeout         time.Duration        `mapstructure:"timeout"`
	CacheTTLSeconds int                  `mapstructure:"cache_ttl_seconds"`
	RateLimit       OutboundLimitConfig  `mapstructure:"rate_limit"`
	Retry           RetryConfig          `mapstructure:"retry"`
	CircuitBreaker  CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type OutboundLimitConfig struct {
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
	SafetyFactor   float64 `mapstructure:"safety_factor"`
	JitterFraction float64 `mapstructure:"jitter_fraction"`
}

type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Base       time.Duration `mapstructure:"base"`
	Cap        time.Duration `mapstructure:"cap"`
	Jitter     float64       `mapstructure:"jitter"`
}

type CircuitBreakerConfig struct {
	Threshold    uint32        `mapstructure:"threshold"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// ClassifierConfig holds the business-tunable severity thresholds.
// Percentages are expressed in percent (50 means 50%).
type ClassifierConfig struct {
	HighCount           int     `mapstructure:"high_count"`
	HighGapPct          float64 `mapstructure:"high_gap_pct"`
	MidCount            int     `mapstructure:"mid_count"`
	MidGapPct           float64 `mapstructure:"mid_gap_pct"`
	LowCount            int     `mapstructure:"low_count"`
	LowGapPct           float64 `mapstructure:"low_gap_pct"`
	TopPosition         int     `mapstructure:"top_position"`
	ValueThreshold      float64 `mapstructure:"value_threshold"`
	LowValueThreshold   float64 `mapstructure:"low_value_threshold"`
	SustainabilityFloor float64 `mapstructure:"sustainability_floor"`
	BreakEvenMargin     float64 `mapstructure:"break_even_margin"`
	LeadingBuyBoxPct    float64 `mapstructure:"leading_buy_box_pct"`
}

type AlertingConfig struct {
	DedupWindow        time.Duration `mapstructure:"dedup_window"`
	EscalationWindow   time.Duration `mapstructure:"escalation_window"`
	QuietPeriod        time.Duration `mapstructure:"quiet_period"`
	MaxEscalationLevel int           `mapstructure:"max_escalation_level"`
	EmitBuffer         int           `mapstructure:"emit_buffer"`
	EmitTimeout        time.Duration `mapstructure:"emit_timeout"`
}

type IngestConfig struct {
	SchemaValidation bool     `mapstructure:"schema_validation"`
	Filters          []string `mapstructure:"filters"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	File   FileConfig `mapstructure:"file"`
}

// FileConfig enables rotated file output when Path is set.
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type APIConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	loader := NewLoader(configFile)
	return loader.Load()
}
