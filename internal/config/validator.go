package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func() error{
		func() error { return validateServer(cfg.Server) },
		func() error { return validateDatabase(cfg.Database) },
		func() error { return validateKafka(cfg.Broker.Kafka) },
		func() error { return validateQueue(cfg.Queue) },
		func() error { return validateWorker(cfg.Worker, cfg.Queue) },
		func() error { return validateIdempotency(cfg.Idempotency) },
		func() error { return validateEnrichment(cfg.Enrichment) },
		func() error { return validateClassifier(cfg.Classifier) },
		func() error { return validateAlerting(cfg.Alerting) },
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if cfg.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required",
		}
	}

	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

// validateKafka only checks a configured broker list; Kafka is optional.
func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return nil
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.AlertTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.alert_topic",
			Message: "alert topic is required when brokers are configured",
		}
	}

	return nil
}

func validateQueue(cfg QueueConfig) error {
	if cfg.Stream == "" {
		return &ValidationError{Field: "queue.stream", Message: "stream name is required"}
	}

	if cfg.Group == "" {
		return &ValidationError{Field: "queue.group", Message: "consumer group is required"}
	}

	if cfg.BatchSize < 1 {
		return &ValidationError{
			Field:   "queue.batch_size",
			Message: fmt.Sprintf("batch size must be at least 1, got %d", cfg.BatchSize),
		}
	}

	if cfg.WaitTime < 0 {
		return &ValidationError{Field: "queue.wait_time", Message: "wait time must be non-negative"}
	}

	if cfg.MaxReceives < 1 {
		return &ValidationError{
			Field:   "queue.max_receives",
			Message: fmt.Sprintf("max receives must be at least 1, got %d", cfg.MaxReceives),
		}
	}

	return nil
}

func validateWorker(cfg WorkerConfig, queue QueueConfig) error {
	if cfg.Partitions < 1 {
		return &ValidationError{
			Field:   "worker.partitions",
			Message: fmt.Sprintf("partitions must be at least 1, got %d", cfg.Partitions),
		}
	}

	if cfg.PartitionBuffer < 0 {
		return &ValidationError{Field: "worker.partition_buffer", Message: "partition buffer must be non-negative"}
	}

	if cfg.ProcessingDeadline <= 0 {
		return &ValidationError{Field: "worker.processing_deadline", Message: "processing deadline must be positive"}
	}

	// A buffered task can wait behind a full partition plus the one in
	// flight before its own attempt starts, and a redelivery must never
	// race an attempt that is still within its deadline.
	minVisibility := 2 * cfg.ProcessingDeadline * time.Duration(cfg.PartitionBuffer+1)
	if queue.VisibilityTimeout < minVisibility {
		return &ValidationError{
			Field: "queue.visibility_timeout",
			Message: fmt.Sprintf("visibility timeout %s must be at least %s (2 x processing deadline %s x (partition buffer %d + 1))",
				queue.VisibilityTimeout, minVisibility, cfg.ProcessingDeadline, cfg.PartitionBuffer),
		}
	}

	return nil
}

func validateIdempotency(cfg IdempotencyConfig) error {
	validAlgorithms := map[string]bool{
		"md5": true, "sha256": true, "sha1": true,
	}
	if cfg.HashAlgorithm != "" && !validAlgorithms[strings.ToLower(cfg.HashAlgorithm)] {
		return &ValidationError{
			Field:   "idempotency.hash_algorithm",
			Message: fmt.Sprintf("invalid hash algorithm: %s (valid: md5, sha256, sha1)", cfg.HashAlgorithm),
		}
	}

	if cfg.TTLSeconds <= 0 {
		return &ValidationError{
			Field:   "idempotency.ttl_seconds",
			Message: "TTL must be positive",
		}
	}

	validOnError := map[string]bool{
		"allow": true, "fail": true,
	}
	if cfg.OnCacheError != "" && !validOnError[strings.ToLower(cfg.OnCacheError)] {
		return &ValidationError{
			Field:   "idempotency.on_cache_error",
			Message: fmt.Sprintf("invalid on_cache_error value: %s (valid: allow, fail)", cfg.OnCacheError),
		}
	}

	return nil
}

func validateEnrichment(cfg EnrichmentConfig) error {
	switch cfg.Type {
	case "", "none", "postgres", "mongodb":
	case "api":
		if cfg.URL == "" {
			return &ValidationError{Field: "enrichment.url", Message: "url is required for the api provider"}
		}
	default:
		return &ValidationError{
			Field:   "enrichment.type",
			Message: fmt.Sprintf("unknown enrichment type: %s (supported: api, postgres, mongodb, none)", cfg.Type),
		}
	}

	if cfg.RateLimit.RPS <= 0 {
		return &ValidationError{Field: "enrichment.rate_limit.rps", Message: "rps must be positive"}
	}

	if cfg.RateLimit.SafetyFactor <= 0 || cfg.RateLimit.SafetyFactor > 1 {
		return &ValidationError{
			Field:   "enrichment.rate_limit.safety_factor",
			Message: fmt.Sprintf("safety factor must be in (0, 1], got %v", cfg.RateLimit.SafetyFactor),
		}
	}

	if cfg.RateLimit.JitterFraction < 0 || cfg.RateLimit.JitterFraction > 1 {
		return &ValidationError{Field: "enrichment.rate_limit.jitter_fraction", Message: "jitter fraction must be in [0, 1]"}
	}

	if cfg.Retry.MaxRetries < 0 {
		return &ValidationError{Field: "enrichment.retry.max_retries", Message: "max_retries must be non-negative"}
	}

	if cfg.Retry.Cap > 0 && cfg.Retry.Base > cfg.Retry.Cap {
		return &ValidationError{Field: "enrichment.retry.cap", Message: "cap must be greater than or equal to base"}
	}

	if cfg.CircuitBreaker.Threshold == 0 {
		return &ValidationError{Field: "enrichment.circuit_breaker.threshold", Message: "threshold must be positive"}
	}

	return nil
}

func validateClassifier(cfg ClassifierConfig) error {
	if !(cfg.HighCount >= cfg.MidCount && cfg.MidCount >= cfg.LowCount) {
		return &ValidationError{
			Field: "classifier.high_count",
			Message: fmt.Sprintf("competitor count thresholds must satisfy high >= mid >= low, got %d/%d/%d",
				cfg.HighCount, cfg.MidCount, cfg.LowCount),
		}
	}

	if !(cfg.HighGapPct >= cfg.MidGapPct && cfg.MidGapPct >= cfg.LowGapPct) {
		return &ValidationError{
			Field: "classifier.high_gap_pct",
			Message: fmt.Sprintf("gap thresholds must satisfy high >= mid >= low, got %v/%v/%v",
				cfg.HighGapPct, cfg.MidGapPct, cfg.LowGapPct),
		}
	}

	if cfg.LowValueThreshold > cfg.ValueThreshold {
		return &ValidationError{
			Field:   "classifier.low_value_threshold",
			Message: "low value threshold must not exceed value threshold",
		}
	}

	if cfg.BreakEvenMargin > cfg.SustainabilityFloor {
		return &ValidationError{
			Field:   "classifier.break_even_margin",
			Message: "break-even margin must not exceed the sustainability floor",
		}
	}

	return nil
}

func validateAlerting(cfg AlertingConfig) error {
	if cfg.DedupWindow <= 0 {
		return &ValidationError{Field: "alerting.dedup_window", Message: "dedup window must be positive"}
	}

	if cfg.EscalationWindow <= 0 {
		return &ValidationError{Field: "alerting.escalation_window", Message: "escalation window must be positive"}
	}

	if cfg.QuietPeriod <= 0 {
		return &ValidationError{Field: "alerting.quiet_period", Message: "quiet period must be positive"}
	}

	if cfg.MaxEscalationLevel < 0 {
		return &ValidationError{Field: "alerting.max_escalation_level", Message: "max escalation level must be non-negative"}
	}

	if cfg.EmitBuffer < 1 {
		return &ValidationError{Field: "alerting.emit_buffer", Message: "emit buffer must be at least 1"}
	}

	return nil
}
