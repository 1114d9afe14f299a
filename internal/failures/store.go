// Package failures keeps the append-only audit trail of messages that left
// the normal processing path.
package failures

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
)

// Store is insert-only. Records are never updated or deleted.
type Store interface {
	Insert(ctx context.Context, rec models.FailureRecord) error
}

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	return &MongoStore{coll: db.Collection(collection)}
}

func (s *MongoStore) Insert(ctx context.Context, rec models.FailureRecord) error {
	start := time.Now()
	_, err := s.coll.InsertOne(ctx, rec)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery("ingest", "mongodb", "insert", status)
	metrics.ObserveDatabaseQueryDuration("ingest", "mongodb", "insert", time.Since(start))

	if err != nil {
		return fmt.Errorf("failed to insert failure record: %w", err)
	}
	return nil
}

type MemoryStore struct {
	mu      sync.Mutex
	records []models.FailureRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(ctx context.Context, rec models.FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of everything inserted, oldest first.
func (s *MemoryStore) Records() []models.FailureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FailureRecord(nil), s.records...)
}

// ByKind returns the records of one kind.
func (s *MemoryStore) ByKind(kind models.ErrorKind) []models.FailureRecord {
	var out []models.FailureRecord
	for _, r := range s.Records() {
		if r.ErrorKind == kind {
			out = append(out, r)
		}
	}
	return out
}
