package domain

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusExpired is applied only by the reconciliation sweep after a
	// pending order has exhausted its verification attempts.
	OrderStatusExpired OrderStatus = "expired"
)

func (s OrderStatus) IsTerminal() bool {
	return s != OrderStatusPending
}

func (s OrderStatus) String() string {
	return string(s)
}

type EscrowStatus string

const (
	EscrowStatusNone     EscrowStatus = "none"
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
)

type PaymentProvider string

const (
	ProviderPaystack    PaymentProvider = "paystack"
	ProviderFlutterwave PaymentProvider = "flutterwave"
)

func ParseProvider(s string) (PaymentProvider, error) {
	switch PaymentProvider(s) {
	case ProviderPaystack, ProviderFlutterwave:
		return PaymentProvider(s), nil
	}
	return "", fmt.Errorf("unknown payment provider %q", s)
}

type OrderItem struct {
	ProductID string  `bson:"product_id,omitempty" json:"productId,omitempty"`
	Name      string  `bson:"name" json:"name"`
	Price     float64 `bson:"price" json:"price"`
	Quantity  int     `bson:"quantity" json:"quantity"`
	Image     string  `bson:"image,omitempty" json:"image,omitempty"`
}

// NewOrderItem validates at construction time; an OrderItem that fails
// validation is never built. Field errors keep the same field-level reporting
// the API exposes to clients.
func NewOrderItem(productID, name string, price float64, quantity int, image string) (OrderItem, *ValidationError) {
	var verr ValidationError
	if strings.TrimSpace(name) == "" {
		verr.Add("name", "must not be empty")
	}
	if price < 0 {
		verr.Add("price", "must not be negative")
	}
	if quantity <= 0 {
		verr.Add("quantity", "must be a positive integer")
	}
	if image != "" && !validImageRef(image) {
		verr.Add("image", "must be a valid URL")
	}
	if verr.HasErrors() {
		return OrderItem{}, &verr
	}
	return OrderItem{
		ProductID: productID,
		Name:      name,
		Price:     price,
		Quantity:  quantity,
		Image:     image,
	}, nil
}

func validImageRef(v string) bool {
	if strings.HasPrefix(v, "data:") {
		return true
	}
	u, err := url.Parse(v)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func ValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// Order is addressed by its reference everywhere; the Mongo _id is never
// exposed.
type Order struct {
	Reference         string          `bson:"reference" json:"reference"`
	Items             []OrderItem     `bson:"items" json:"items"`
	Amount            Amount          `bson:"amount" json:"amount"`
	Currency          string          `bson:"currency" json:"currency"`
	CustomerEmail     string          `bson:"customer_email" json:"customerEmail"`
	Provider          PaymentProvider `bson:"provider" json:"provider"`
	Status            OrderStatus     `bson:"status" json:"status"`
	AuthorizationURL  string          `bson:"authorization_url,omitempty" json:"authorizationUrl,omitempty"`
	ProviderReference string          `bson:"provider_reference,omitempty" json:"providerReference,omitempty"`
	EscrowStatus      EscrowStatus    `bson:"escrow_status" json:"escrowStatus"`
	EscrowReleasedAt  *time.Time      `bson:"escrow_released_at,omitempty" json:"escrowReleasedAt,omitempty"`
	VerifyAttempts    int             `bson:"verify_attempts" json:"-"`
	CreatedAt         time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `bson:"updated_at" json:"updatedAt"`
}

// OrderStats is the aggregate summary computed on read.
type OrderStats struct {
	TotalOrders  int64   `bson:"total_orders" json:"totalOrders"`
	PaidOrders   int64   `bson:"paid_orders" json:"paidOrders"`
	TotalRevenue float64 `bson:"total_revenue" json:"totalRevenue"`
}

// FrequentItem is one row of the top-purchased-items aggregate.
type FrequentItem struct {
	ProductID string  `bson:"product_id" json:"productId,omitempty"`
	Name      string  `bson:"name" json:"name"`
	Quantity  int64   `bson:"quantity" json:"quantity"`
	Amount    float64 `bson:"amount" json:"amount"`
}
