package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Loader reads the YAML config file with environment overrides and can
// watch the file for classifier threshold changes.
type Loader struct {
	v    *viper.Viper
	file string

	mu      sync.Mutex
	watched bool
}

func NewLoader(configFile string) *Loader {
	return &Loader{v: viper.New(), file: configFile}
}

func (l *Loader) Load() (*Config, error) {
	v := l.v

	v.SetConfigType("yaml")
	v.SetConfigFile(l.file)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", l.file, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// WatchClassifier calls onChange with the re-read classifier section each
// time the config file changes. Invalid sections are reported to onError
// and not applied.
func (l *Loader) WatchClassifier(onChange func(ClassifierConfig), onError func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watched {
		return
	}
	l.watched = true

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		var cc ClassifierConfig
		if err := l.v.UnmarshalKey("classifier", &cc); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload classifier config: %w", err))
			}
			return
		}
		if err := validateClassifier(cc); err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cc)
	})
	l.v.WatchConfig()
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	v.BindEnv("broker.kafka.alert_topic", "BROKER_KAFKA_ALERT_TOPIC")
	v.BindEnv("broker.kafka.dead_letter_topic", "BROKER_KAFKA_DEAD_LETTER_TOPIC")

	v.BindEnv("queue.stream", "QUEUE_STREAM")
	v.BindEnv("queue.group", "QUEUE_GROUP")
	v.BindEnv("queue.consumer", "QUEUE_CONSUMER")

	v.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	v.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	v.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	v.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	v.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	v.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	v.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	v.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	v.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	v.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	v.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	v.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	v.BindEnv("enrichment.url", "ENRICHMENT_URL")

	v.BindEnv("server.port", "SERVER_PORT")

	v.BindEnv("logging.level", "LOGGING_LEVEL")
	v.BindEnv("logging.file.path", "LOGGING_FILE_PATH")

	v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	v.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

// applyEnvOverrides handles values viper cannot decode from a plain env var.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokersEnv := v.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}
