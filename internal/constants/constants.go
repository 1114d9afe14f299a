package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixIdempotency = "idem:"
	CacheKeyPrefixEnrich      = "enrich:"
)

const (
	DefaultMongoDBName          = "pricewatch"
	FailureRecordsCollection    = "failure_records"
	DefaultEnrichmentCollection = "enrichment"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	OnCacheErrorAllow = "allow"
	OnCacheErrorFail  = "fail"
)

const (
	ProviderNameMongoDB    = "mongodb"
	ProviderNamePostgreSQL = "postgres"
	ProviderNameCache      = "cache"
	ProviderNameAPI        = "api"
	ProviderNameNone       = "none"
)

const (
	ServiceNameIngest   = "ingest-service"
	ServiceNameStateAPI = "state-api"
)

// Ingest outcomes used as metric labels.
const (
	OutcomeApplied   = "applied"
	OutcomeStale     = "stale"
	OutcomeDuplicate = "duplicate"
	OutcomeFiltered  = "filtered"
	OutcomeMalformed = "malformed"
	OutcomePoison    = "poison"
	OutcomeTimeout   = "timeout"
	OutcomeFailed    = "failed"
)
