package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureFailureRecordIndexes creates the indexes the failure audit trail is
// queried by. The collection itself is created on first insert.
func EnsureFailureRecordIndexes(ctx context.Context, db *mongo.Database, collection string) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "original_message_id", Value: 1}},
			Options: options.Index().SetName("idx_failure_records_message_id"),
		},
		{
			Keys:    bson.D{{Key: "error_kind", Value: 1}, {Key: "occurred_at", Value: -1}},
			Options: options.Index().SetName("idx_failure_records_kind_occurred_at"),
		},
		{
			Keys:    bson.D{{Key: "occurred_at", Value: -1}},
			Options: options.Index().SetName("idx_failure_records_occurred_at"),
		},
	}
	return createIndexes(ctx, db.Collection(collection), indexes)
}

// EnsureEnrichmentIndexes makes subject_key lookups unique and indexed.
func EnsureEnrichmentIndexes(ctx context.Context, db *mongo.Database, collection string) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "subject_key", Value: 1}},
			Options: options.Index().SetName("idx_enrichment_subject_key").SetUnique(true),
		},
	}
	return createIndexes(ctx, db.Collection(collection), indexes)
}

func createIndexes(ctx context.Context, coll *mongo.Collection, indexes []mongo.IndexModel) error {
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
	}
	return nil
}
