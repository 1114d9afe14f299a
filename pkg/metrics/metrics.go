package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Total number of inbound messages by outcome (count)",
		},
		[]string{"outcome"},
	)

	IngestProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_processing_duration_ms",
			Help:    "End-to-end processing duration per message in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"outcome"},
	)

	QueuePollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_poll_duration_ms",
			Help:    "Duration of long-poll calls against the inbound queue in milliseconds",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 20000},
		},
		[]string{"stream"},
	)

	QueueAckFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_ack_failures_total",
			Help: "Total number of failed acknowledgements (count)",
		},
		[]string{"stream"},
	)

	PartitionQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "partition_queue_depth",
			Help: "Number of events buffered per worker partition (count)",
		},
		[]string{"partition"},
	)

	FailureRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failure_records_total",
			Help: "Total number of failure records written by error kind (count)",
		},
		[]string{"error_kind"},
	)

	IdempotencyChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_checks_total",
			Help: "Total number of idempotency cache checks by result (count)",
		},
		[]string{"result"},
	)

	StateUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_upserts_total",
			Help: "Total number of state upserts by result (count)",
		},
		[]string{"result"},
	)

	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifications_total",
			Help: "Total number of classifications by severity and degraded flag (count)",
		},
		[]string{"severity", "degraded"},
	)

	EnrichmentDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_degraded_total",
			Help: "Total number of classifications that fell back to degraded mode (count)",
		},
		[]string{"reason"},
	)

	EnrichmentProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_provider_requests_total",
			Help: "Total number of requests to enrichment providers (count)",
		},
		[]string{"provider", "status"},
	)

	EnrichmentProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrichment_provider_duration_ms",
			Help:    "Duration of enrichment provider requests in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"provider"},
	)

	EnrichmentCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_cache_total",
			Help: "Total number of enrichment cache lookups by result (count)",
		},
		[]string{"result"},
	)

	AlertTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_transitions_total",
			Help: "Total number of alert lifecycle transitions (count)",
		},
		[]string{"severity", "status"},
	)

	AlertEmitDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_emit_dropped_total",
			Help: "Total number of alert events dropped because the emit buffer was full (count)",
		},
	)

	AlertEmitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_emit_total",
			Help: "Total number of alert events emitted by result (count)",
		},
		[]string{"result"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"operation"},
	)

	RetriesExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retries_exhausted_total",
			Help: "Total number of calls that exhausted their retry budget (count)",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions (count)",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_rejections_total",
			Help: "Total number of calls rejected by an open circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimiterWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rate_limiter_wait_duration_ms",
			Help:    "Time spent waiting for a rate limiter token in milliseconds",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"name"},
	)

	RateLimiterRPS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rate_limiter_rps",
			Help: "Current refill rate of the adaptive rate limiter (requests per second)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of API requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)

	WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Number of connected alert feed websocket clients (count)",
		},
	)
)

var (
	sharedOnce sync.Once
)

// registerShared registers collectors used by both services.
func registerShared() {
	sharedOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerTransitionsTotal)
		prometheus.MustRegister(CircuitBreakerRejectionsTotal)
		prometheus.MustRegister(KafkaMessagesWrittenTotal)
		prometheus.MustRegister(KafkaMessagesReadTotal)
		prometheus.MustRegister(KafkaWriteDuration)
		prometheus.MustRegister(DatabaseQueriesTotal)
		prometheus.MustRegister(DatabaseQueryDuration)
	})
}

func RegisterIngestMetrics() {
	registerShared()
	prometheus.MustRegister(IngestMessagesTotal)
	prometheus.MustRegister(IngestProcessingDuration)
	prometheus.MustRegister(QueuePollDuration)
	prometheus.MustRegister(QueueAckFailuresTotal)
	prometheus.MustRegister(PartitionQueueDepth)
	prometheus.MustRegister(FailureRecordsTotal)
	prometheus.MustRegister(IdempotencyChecksTotal)
	prometheus.MustRegister(StateUpsertsTotal)
	prometheus.MustRegister(ClassificationsTotal)
	prometheus.MustRegister(EnrichmentDegradedTotal)
	prometheus.MustRegister(EnrichmentProviderRequestsTotal)
	prometheus.MustRegister(EnrichmentProviderDuration)
	prometheus.MustRegister(EnrichmentCacheTotal)
	prometheus.MustRegister(AlertTransitionsTotal)
	prometheus.MustRegister(AlertEmitDroppedTotal)
	prometheus.MustRegister(AlertEmitTotal)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(RetriesExhaustedTotal)
	prometheus.MustRegister(RateLimiterWaitDuration)
	prometheus.MustRegister(RateLimiterRPS)
}

func RegisterAPIMetrics() {
	registerShared()
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(WebsocketClients)
	prometheus.MustRegister(AlertTransitionsTotal)
}

func IncIngestOutcome(outcome string) {
	IngestMessagesTotal.WithLabelValues(outcome).Inc()
}

func ObserveIngestDuration(outcome string, duration time.Duration) {
	IngestProcessingDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func ObserveQueuePollDuration(stream string, duration time.Duration) {
	QueuePollDuration.WithLabelValues(stream).Observe(float64(duration.Milliseconds()))
}

func IncFailureRecord(kind string) {
	FailureRecordsTotal.WithLabelValues(kind).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncEnrichmentProviderRequest(provider, status string) {
	EnrichmentProviderRequestsTotal.WithLabelValues(provider, status).Inc()
}

func ObserveEnrichmentProviderDuration(provider string, duration time.Duration) {
	EnrichmentProviderDuration.WithLabelValues(provider).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
