package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type NewsletterRepository interface {
	// Subscribe is an idempotent upsert; subscribing twice is not an error.
	Subscribe(ctx context.Context, email, source string) error
	CreateIndexes(ctx context.Context) error
}

type mongoNewsletterRepository struct {
	collection *mongo.Collection
}

func NewNewsletterRepository(db *mongo.Database) NewsletterRepository {
	return &mongoNewsletterRepository{collection: db.Collection("newsletter")}
}

func (m *mongoNewsletterRepository) Subscribe(ctx context.Context, email, source string) error {
	filter := bson.M{"email": email}
	update := bson.M{"$setOnInsert": bson.M{
		"email":      email,
		"source":     source,
		"created_at": time.Now(),
	}}
	opts := options.Update().SetUpsert(true)

	_, err := m.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		// A concurrent upsert can still race into a duplicate key; the
		// subscription exists either way.
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

func (m *mongoNewsletterRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create newsletter indexes: %w", err)
	}
	return nil
}
