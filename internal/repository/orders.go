package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/KachiAlex/kex/internal/domain"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrDuplicateReference = errors.New("order reference already exists")
	ErrEscrowNotHeld      = errors.New("escrow is not held")
)

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByReference(ctx context.Context, reference string) (*domain.Order, error)
	SetAuthorization(ctx context.Context, reference, authorizationURL, providerReference string) error
	// MarkPaid applies the monotonic pending->paid transition and, when
	// holdEscrow is set, none->held. Returns whether the paid transition
	// happened in this call; calling it on an already-paid order is a no-op.
	MarkPaid(ctx context.Context, reference string, holdEscrow bool) (bool, error)
	// ReleaseEscrow moves held->released exactly once.
	ReleaseEscrow(ctx context.Context, reference string, at time.Time) error
	MarkExpired(ctx context.Context, reference string) (bool, error)
	IncrementVerifyAttempts(ctx context.Context, reference string) error
	FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error)
	List(ctx context.Context, email string) ([]domain.Order, error)
	Stats(ctx context.Context, email string) (*domain.OrderStats, error)
	FrequentItems(ctx context.Context, email string, limit int) ([]domain.FrequentItem, error)
	CreateIndexes(ctx context.Context) error
}

type mongoOrderRepository struct {
	collection *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) OrderRepository {
	return &mongoOrderRepository{collection: db.Collection("orders")}
}

func (m *mongoOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if order.EscrowStatus == "" {
		order.EscrowStatus = domain.EscrowStatusNone
	}

	_, err := m.collection.InsertOne(ctx, order)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (m *mongoOrderRepository) GetByReference(ctx context.Context, reference string) (*domain.Order, error) {
	var order domain.Order

	filter := bson.M{"reference": reference}
	err := m.collection.FindOne(ctx, filter).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &order, nil
}

func (m *mongoOrderRepository) SetAuthorization(ctx context.Context, reference, authorizationURL, providerReference string) error {
	filter := bson.M{"reference": reference}
	update := bson.M{"$set": bson.M{
		"authorization_url":  authorizationURL,
		"provider_reference": providerReference,
		"updated_at":         time.Now(),
	}}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to set authorization: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (m *mongoOrderRepository) MarkPaid(ctx context.Context, reference string, holdEscrow bool) (bool, error) {
	now := time.Now()

	// Conditional single-document update: a concurrent poll and webhook can
	// both run this, only one matches, and neither corrupts state.
	filter := bson.M{
		"reference": reference,
		"status":    domain.OrderStatusPending,
	}
	update := bson.M{"$set": bson.M{
		"status":     domain.OrderStatusPaid,
		"updated_at": now,
	}}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}
	transitioned := result.ModifiedCount > 0

	if holdEscrow {
		escrowFilter := bson.M{
			"reference":     reference,
			"status":        domain.OrderStatusPaid,
			"escrow_status": domain.EscrowStatusNone,
		}
		escrowUpdate := bson.M{"$set": bson.M{
			"escrow_status": domain.EscrowStatusHeld,
			"updated_at":    now,
		}}
		if _, err := m.collection.UpdateOne(ctx, escrowFilter, escrowUpdate); err != nil {
			return transitioned, fmt.Errorf("failed to hold escrow: %w", err)
		}
	}

	return transitioned, nil
}

func (m *mongoOrderRepository) ReleaseEscrow(ctx context.Context, reference string, at time.Time) error {
	filter := bson.M{
		"reference":     reference,
		"escrow_status": domain.EscrowStatusHeld,
	}
	update := bson.M{"$set": bson.M{
		"escrow_status":      domain.EscrowStatusReleased,
		"escrow_released_at": at,
		"updated_at":         at,
	}}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to release escrow: %w", err)
	}
	if result.MatchedCount == 0 {
		// Distinguish a missing order from one whose escrow is not held.
		if _, err := m.GetByReference(ctx, reference); err != nil {
			return err
		}
		return ErrEscrowNotHeld
	}
	return nil
}

func (m *mongoOrderRepository) MarkExpired(ctx context.Context, reference string) (bool, error) {
	filter := bson.M{
		"reference": reference,
		"status":    domain.OrderStatusPending,
	}
	update := bson.M{"$set": bson.M{
		"status":     domain.OrderStatusExpired,
		"updated_at": time.Now(),
	}}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to expire order: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

func (m *mongoOrderRepository) IncrementVerifyAttempts(ctx context.Context, reference string) error {
	filter := bson.M{"reference": reference}
	update := bson.M{"$inc": bson.M{"verify_attempts": 1}}

	if _, err := m.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to increment verify attempts: %w", err)
	}
	return nil
}

func (m *mongoOrderRepository) FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error) {
	filter := bson.M{
		"status":     domain.OrderStatusPending,
		"created_at": bson.M{"$lt": olderThan},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale pending orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []domain.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode stale pending orders: %w", err)
	}
	return orders, nil
}

func (m *mongoOrderRepository) List(ctx context.Context, email string) ([]domain.Order, error) {
	filter := bson.M{}
	if email != "" {
		filter["customer_email"] = email
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []domain.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

func (m *mongoOrderRepository) Stats(ctx context.Context, email string) (*domain.OrderStats, error) {
	match := bson.M{}
	if email != "" {
		match["customer_email"] = email
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":          nil,
			"total_orders": bson.M{"$sum": 1},
			"paid_orders": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$status", domain.OrderStatusPaid}}, 1, 0},
			}},
			"total_revenue": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$status", domain.OrderStatusPaid}}, "$amount.value", 0},
			}},
		}}},
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate order stats: %w", err)
	}
	defer cursor.Close(ctx)

	var results []domain.OrderStats
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode order stats: %w", err)
	}
	if len(results) == 0 {
		return &domain.OrderStats{}, nil
	}
	return &results[0], nil
}

func (m *mongoOrderRepository) FrequentItems(ctx context.Context, email string, limit int) ([]domain.FrequentItem, error) {
	match := bson.M{"status": domain.OrderStatusPaid}
	if email != "" {
		match["customer_email"] = email
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$unwind", Value: "$items"}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"product_id": "$items.product_id",
				"name":       "$items.name",
			},
			"quantity": bson.M{"$sum": "$items.quantity"},
			"amount":   bson.M{"$sum": bson.M{"$multiply": bson.A{"$items.price", "$items.quantity"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "quantity", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$project", Value: bson.M{
			"_id":        0,
			"product_id": "$_id.product_id",
			"name":       "$_id.name",
			"quantity":   1,
			"amount":     1,
		}}},
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate frequent items: %w", err)
	}
	defer cursor.Close(ctx)

	items := []domain.FrequentItem{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode frequent items: %w", err)
	}
	return items, nil
}

func (m *mongoOrderRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "customer_email", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}
