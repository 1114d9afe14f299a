package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
server:
  port: 8081
queue:
  stream: notifications
  visibility_timeout: 80s
worker:
  partitions: 8
  processing_deadline: 20s
classifier:
  high_count: 12
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDefaultsAndFileValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "notifications", cfg.Queue.Stream)
	assert.Equal(t, 8, cfg.Worker.Partitions)
	assert.Equal(t, 20*time.Second, cfg.Worker.ProcessingDeadline)
	assert.Equal(t, 3, cfg.Queue.MaxReceives)
	assert.Equal(t, 12, cfg.Classifier.HighCount)
	assert.Equal(t, 5, cfg.Classifier.MidCount)
	assert.Equal(t, 15*time.Minute, cfg.Alerting.DedupWindow)
	assert.Equal(t, "sha256", cfg.Idempotency.HashAlgorithm)
	assert.Equal(t, 2, cfg.Enrichment.Retry.MaxRetries)
}

func TestLoad_EnvOverridesBrokers(t *testing.T) {
	t.Setenv("BROKER_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Kafka.Brokers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateStatic_VisibilityTimeoutMargin(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	cfg.Queue.VisibilityTimeout = 30 * time.Second
	err = ValidateStatic(cfg)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "queue.visibility_timeout", vErr.Field)
}

func TestLoad_DefaultsKeepBufferedWaitInsideVisibility(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 8081\n"))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Worker.PartitionBuffer)
	assert.NoError(t, validateWorker(cfg.Worker, cfg.Queue))
}

func TestValidateWorker_VisibilityCoversPartitionBacklog(t *testing.T) {
	tests := []struct {
		name       string
		buffer     int
		deadline   time.Duration
		visibility time.Duration
		wantErr    bool
	}{
		{"unbuffered", 0, 15 * time.Second, 30 * time.Second, false},
		{"one slot", 1, 15 * time.Second, 60 * time.Second, false},
		{"deep buffer", 16, 15 * time.Second, 60 * time.Second, true},
		{"deep buffer with long visibility", 16, 15 * time.Second, 510 * time.Second, false},
		{"just short", 3, 10 * time.Second, 79 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateWorker(
				WorkerConfig{Partitions: 4, PartitionBuffer: tt.buffer, ProcessingDeadline: tt.deadline},
				QueueConfig{VisibilityTimeout: tt.visibility},
			)
			if tt.wantErr {
				var vErr *ValidationError
				require.True(t, errors.As(err, &vErr))
				assert.Equal(t, "queue.visibility_timeout", vErr.Field)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateStatic_AggregatesErrors(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	cfg.Worker.Partitions = 0
	cfg.Classifier.MidCount = 50
	cfg.Idempotency.OnCacheError = "ignore"

	err = ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker.partitions")
	assert.Contains(t, err.Error(), "classifier.high_count")
	assert.Contains(t, err.Error(), "idempotency.on_cache_error")
}

func TestValidateClassifier(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClassifierConfig)
		wantErr bool
	}{
		{"defaults", func(*ClassifierConfig) {}, false},
		{"gap order", func(c *ClassifierConfig) { c.LowGapPct = 80 }, true},
		{"value order", func(c *ClassifierConfig) { c.LowValueThreshold = 1000 }, true},
		{"margin order", func(c *ClassifierConfig) { c.BreakEvenMargin = 20 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := DefaultClassifierConfig()
			tt.mutate(&cc)
			err := validateClassifier(cc)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoader_WatchClassifier(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	var highCount atomic.Int64
	loader.WatchClassifier(func(cc ClassifierConfig) {
		highCount.Store(int64(cc.HighCount))
	}, nil)

	updated := minimalYAML + "  mid_count: 6\n"
	updated = strings.Replace(updated, "high_count: 12", "high_count: 20", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	assert.Eventually(t, func() bool {
		return highCount.Load() == 20
	}, 5*time.Second, 50*time.Millisecond)
}
