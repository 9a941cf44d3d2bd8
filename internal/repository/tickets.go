package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/KachiAlex/kex/internal/domain"
)

type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	List(ctx context.Context, email string) ([]domain.Ticket, error)
	CreateIndexes(ctx context.Context) error
}

type mongoTicketRepository struct {
	collection *mongo.Collection
}

func NewTicketRepository(db *mongo.Database) TicketRepository {
	return &mongoTicketRepository{collection: db.Collection("tickets")}
}

func (m *mongoTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	now := time.Now()
	ticket.ID = primitive.NewObjectID().Hex()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	if _, err := m.collection.InsertOne(ctx, ticket); err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

func (m *mongoTicketRepository) List(ctx context.Context, email string) ([]domain.Ticket, error) {
	filter := bson.M{}
	if email != "" {
		filter["email"] = email
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer cursor.Close(ctx)

	tickets := []domain.Ticket{}
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("failed to decode tickets: %w", err)
	}
	return tickets, nil
}

func (m *mongoTicketRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create ticket indexes: %w", err)
	}
	return nil
}
