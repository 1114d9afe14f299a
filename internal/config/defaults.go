package config

import (
	"time"

	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 10*time.Second)
	v.SetDefault("server.write_timeout_seconds", 10*time.Second)

	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.mongodb.database", "pricewatch")
	v.SetDefault("database.mongodb.failure_collection", "failure_records")

	v.SetDefault("queue.stream", "price_notifications")
	v.SetDefault("queue.group", "pricewatch")
	v.SetDefault("queue.consumer", "ingest-1")
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.wait_time", 20*time.Second)
	v.SetDefault("queue.visibility_timeout", 60*time.Second)
	v.SetDefault("queue.max_receives", 3)

	v.SetDefault("broker.kafka.group_id", "pricewatch-state-api")
	v.SetDefault("broker.kafka.alert_topic", "pricewatch_alerts")
	v.SetDefault("broker.kafka.dead_letter_topic", "pricewatch_dead_letter")

	v.SetDefault("worker.partitions", 4)
	v.SetDefault("worker.partition_buffer", 1)
	v.SetDefault("worker.processing_deadline", 15*time.Second)
	v.SetDefault("worker.quiet_sweep_interval", time.Minute)

	v.SetDefault("idempotency.hash_algorithm", "sha256")
	v.SetDefault("idempotency.ttl_seconds", 86400)
	v.SetDefault("idempotency.on_cache_error", "allow")

	v.SetDefault("enrichment.type", "none")
	v.SetDefault("enrichment.timeout", 5*time.Second)
	v.SetDefault("enrichment.cache_ttl_seconds", 300)
	v.SetDefault("enrichment.collection", "enrichment")
	v.SetDefault("enrichment.table", "enrichment_data")
	v.SetDefault("enrichment.rate_limit.rps", 5.0)
	v.SetDefault("enrichment.rate_limit.burst", 5)
	v.SetDefault("enrichment.rate_limit.safety_factor", 0.8)
	v.SetDefault("enrichment.rate_limit.jitter_fraction", 0.1)
	v.SetDefault("enrichment.retry.max_retries", 2)
	v.SetDefault("enrichment.retry.base", 200*time.Millisecond)
	v.SetDefault("enrichment.retry.cap", 5*time.Second)
	v.SetDefault("enrichment.retry.jitter", 0.2)
	v.SetDefault("enrichment.circuit_breaker.threshold", 5)
	v.SetDefault("enrichment.circuit_breaker.reset_timeout", 30*time.Second)

	d := DefaultClassifierConfig()
	v.SetDefault("classifier.high_count", d.HighCount)
	v.SetDefault("classifier.high_gap_pct", d.HighGapPct)
	v.SetDefault("classifier.mid_count", d.MidCount)
	v.SetDefault("classifier.mid_gap_pct", d.MidGapPct)
	v.SetDefault("classifier.low_count", d.LowCount)
	v.SetDefault("classifier.low_gap_pct", d.LowGapPct)
	v.SetDefault("classifier.top_position", d.TopPosition)
	v.SetDefault("classifier.value_threshold", d.ValueThreshold)
	v.SetDefault("classifier.low_value_threshold", d.LowValueThreshold)
	v.SetDefault("classifier.sustainability_floor", d.SustainabilityFloor)
	v.SetDefault("classifier.break_even_margin", d.BreakEvenMargin)
	v.SetDefault("classifier.leading_buy_box_pct", d.LeadingBuyBoxPct)

	a := DefaultAlertingConfig()
	v.SetDefault("alerting.dedup_window", a.DedupWindow)
	v.SetDefault("alerting.escalation_window", a.EscalationWindow)
	v.SetDefault("alerting.quiet_period", a.QuietPeriod)
	v.SetDefault("alerting.max_escalation_level", a.MaxEscalationLevel)
	v.SetDefault("alerting.emit_buffer", a.EmitBuffer)
	v.SetDefault("alerting.emit_timeout", a.EmitTimeout)

	v.SetDefault("ingest.schema_validation", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 14)

	v.SetDefault("api.rate_limit.enabled", true)
	v.SetDefault("api.rate_limit.rps", 10.0)
	v.SetDefault("api.rate_limit.burst", 20)
	v.SetDefault("api.rate_limit.cleanup_interval", 300)
	v.SetDefault("api.rate_limit.max_age", 600)

	v.SetDefault("tracing.sampler.type", "always_on")
}

func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		HighCount:           10,
		HighGapPct:          50,
		MidCount:            5,
		MidGapPct:           25,
		LowCount:            3,
		LowGapPct:           10,
		TopPosition:         3,
		ValueThreshold:      100,
		LowValueThreshold:   10,
		SustainabilityFloor: 10,
		BreakEvenMargin:     5,
		LeadingBuyBoxPct:    50,
	}
}

func DefaultAlertingConfig() AlertingConfig {
	return AlertingConfig{
		DedupWindow:        15 * time.Minute,
		EscalationWindow:   30 * time.Minute,
		QuietPeriod:        6 * time.Hour,
		MaxEscalationLevel: 3,
		EmitBuffer:         256,
		EmitTimeout:        5 * time.Second,
	}
}
