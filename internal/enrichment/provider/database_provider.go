package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"pricewatch/internal/constants"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
)

type MongoDBProvider struct {
	collection *mongo.Collection
}

func NewMongoDBProvider(db *mongo.Database, collection string) *MongoDBProvider {
	if collection == "" {
		collection = constants.DefaultEnrichmentCollection
	}
	return &MongoDBProvider{
		collection: db.Collection(collection),
	}
}

func (p *MongoDBProvider) Name() string {
	return constants.ProviderNameMongoDB
}

func (p *MongoDBProvider) Fetch(ctx context.Context, subjectKey string) (*models.EnrichmentData, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveEnrichmentProviderDuration(p.Name(), time.Since(start))
	}()

	var data models.EnrichmentData
	err := p.collection.FindOne(ctx, bson.M{"subject_key": subjectKey}).Decode(&data)
	if errors.Is(err, mongo.ErrNoDocuments) {
		metrics.IncEnrichmentProviderRequest(p.Name(), "not_found")
		return nil, apperrors.ErrNotFound.WithDetail("subject_key", subjectKey)
	}
	if err != nil {
		metrics.IncEnrichmentProviderRequest(p.Name(), "error")
		return nil, classifyDBError(ctx, fmt.Errorf("mongodb query failed: %w", err))
	}

	metrics.IncEnrichmentProviderRequest(p.Name(), "success")
	return &data, nil
}

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type PostgreSQLProvider struct {
	db    *sql.DB
	query string
}

func NewPostgreSQLProvider(db *sql.DB, table string) (*PostgreSQLProvider, error) {
	if table == "" {
		table = "enrichment_data"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid enrichment table name: %q", table)
	}
	return &PostgreSQLProvider{
		db: db,
		query: fmt.Sprintf(`SELECT unit_cost, fees, estimated_volume, margin_pct, updated_at
			FROM %s WHERE subject_key = $1`, table),
	}, nil
}

func (p *PostgreSQLProvider) Name() string {
	return constants.ProviderNamePostgreSQL
}

func (p *PostgreSQLProvider) Fetch(ctx context.Context, subjectKey string) (*models.EnrichmentData, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveEnrichmentProviderDuration(p.Name(), time.Since(start))
	}()

	var (
		unitCost, fees, volume, margin sql.NullFloat64
		updatedAt                      sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, p.query, subjectKey).Scan(&unitCost, &fees, &volume, &margin, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.IncEnrichmentProviderRequest(p.Name(), "not_found")
		return nil, apperrors.ErrNotFound.WithDetail("subject_key", subjectKey)
	}
	if err != nil {
		metrics.IncEnrichmentProviderRequest(p.Name(), "error")
		return nil, classifyDBError(ctx, fmt.Errorf("postgresql query failed: %w", err))
	}

	metrics.IncEnrichmentProviderRequest(p.Name(), "success")
	return &models.EnrichmentData{
		SubjectKey:      subjectKey,
		UnitCost:        nullFloat(unitCost),
		Fees:            nullFloat(fees),
		EstimatedVolume: nullFloat(volume),
		MarginPct:       nullFloat(margin),
		UpdatedAt:       updatedAt.Time,
	}, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// classifyDBError marks database failures as server errors so they are
// retried and counted by the breaker. Caller cancellation passes through.
func classifyDBError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return apperrors.ErrServerError.WithCause(err)
}
