package repositories

import (
	"context"
	"time"

	"github.com/anonto42/nano-midea/user-service/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// OrphanRepository keeps track of uploaded objects that no user points at
type OrphanRepository interface {
	RecordOrphan(ctx context.Context, orphan *models.OrphanedAsset) error
	MarkCleanedUp(ctx context.Context, url string) error
}

// MongoOrphanRepository implements OrphanRepository for MongoDB
type MongoOrphanRepository struct {
	collection *mongo.Collection
}

// NewMongoOrphanRepository creates a new MongoOrphanRepository
func NewMongoOrphanRepository(db *mongo.Database) *MongoOrphanRepository {
	return &MongoOrphanRepository{collection: db.Collection("orphaned_assets")}
}

// RecordOrphan stores a new orphan entry
func (r *MongoOrphanRepository) RecordOrphan(ctx context.Context, orphan *models.OrphanedAsset) error {
	orphan.ID = primitive.NewObjectID()
	if orphan.CreatedAt.IsZero() {
		orphan.CreatedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, orphan)
	return err
}

// MarkCleanedUp flags every entry for url as removed from the object store
func (r *MongoOrphanRepository) MarkCleanedUp(ctx context.Context, url string) error {
	_, err := r.collection.UpdateMany(ctx, bson.M{"url": url}, bson.M{"$set": bson.M{"cleaned_up": true}})
	return err
}

// NopOrphanRepository is used when no MongoDB is configured; the service
// still logs every orphan.
type NopOrphanRepository struct{}

func (NopOrphanRepository) RecordOrphan(context.Context, *models.OrphanedAsset) error { return nil }

func (NopOrphanRepository) MarkCleanedUp(context.Context, string) error { return nil }
