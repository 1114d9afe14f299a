package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(postgresFS, "postgres")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}

	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestAlertRecordsHasPartialUniqueIndex(t *testing.T) {
	data, err := fs.ReadFile(postgresFS, "postgres/000002_create_alert_records.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "WHERE status IN ('queued', 'delivered', 'snoozed')")
}

func TestAlertRecordsCarriesVersion(t *testing.T) {
	data, err := fs.ReadFile(postgresFS, "postgres/000004_add_alert_record_version.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "version BIGINT NOT NULL DEFAULT 0")
}
