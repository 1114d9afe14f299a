//go:build integration

package failures

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"pricewatch/internal/logger"
	"pricewatch/internal/testinfra"
	"pricewatch/pkg/migrations"
	"pricewatch/pkg/models"
)

func TestMongoStore_Integration(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()
	require.NoError(t, migrations.EnsureFailureRecordIndexes(ctx, db, "failure_records"))

	r := NewRecorder(NewMongoStore(db, "failure_records"), nil, "", logger.NopLogger())
	rec, err := r.Record(ctx, testMessage(), models.ErrorKindMalformed, nil)
	require.NoError(t, err)

	var got models.FailureRecord
	err = db.Collection("failure_records").FindOne(ctx, bson.M{"_id": rec.ID}).Decode(&got)
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.OriginalMessageID)
	assert.Equal(t, models.ErrorKindMalformed, got.ErrorKind)
	assert.Equal(t, []byte(`{not json`), got.RawPayload)
}
