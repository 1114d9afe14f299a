package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/config"
	"pricewatch/pkg/logging"
)

func TestNewFromConfig_WritesRotatedFileWithContextFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.log")
	log, err := NewFromConfig(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		File:   config.FileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 1},
	})
	require.NoError(t, err)
	log.(*SugaredLogger).SetServiceName("ingest-service")

	ctx := logging.WithSubjectKey(context.Background(), "B00TEST")
	log.InfowCtx(ctx, "state upserted", "applied", true)
	log.Debugw("dropped below level")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "state upserted", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "B00TEST", entry["subject_key"])
	assert.Equal(t, "ingest-service", entry["service_name"])
	assert.Equal(t, true, entry["applied"])
}

func TestNopLogger(t *testing.T) {
	log := NopLogger()
	log.ErrorwCtx(context.Background(), "ignored")
	assert.NotNil(t, log)
}
