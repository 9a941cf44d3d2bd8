package domain

import (
	"strings"
	"time"
)

type Product struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description" json:"description"`
	Price       float64   `bson:"price" json:"price"`
	Quantity    int       `bson:"quantity" json:"quantity"`
	Category    string    `bson:"category" json:"category"`
	Images      []string  `bson:"images" json:"images"`
	Featured    bool      `bson:"featured" json:"featured"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updatedAt"`
}

// NewProduct validates at construction time.
func NewProduct(name, description string, price float64, quantity int, category string, images []string, featured bool) (*Product, *ValidationError) {
	var verr ValidationError
	if strings.TrimSpace(name) == "" {
		verr.Add("name", "must not be empty")
	}
	if price < 0 {
		verr.Add("price", "must not be negative")
	}
	if quantity < 0 {
		verr.Add("quantity", "must not be negative")
	}
	for _, img := range images {
		if !validImageRef(img) {
			verr.Add("images", "must contain valid URLs")
			break
		}
	}
	if verr.HasErrors() {
		return nil, &verr
	}
	if category == "" {
		category = "general"
	}
	if images == nil {
		images = []string{}
	}
	return &Product{
		Name:        name,
		Description: description,
		Price:       price,
		Quantity:    quantity,
		Category:    category,
		Images:      images,
		Featured:    featured,
	}, nil
}

// ProductFilter narrows product listings. The zero value lists everything.
type ProductFilter struct {
	Query        string
	FeaturedOnly bool
	Sort         string // "price_asc" or "price_desc"
}

func (f ProductFilter) IsZero() bool {
	return f.Query == "" && !f.FeaturedOnly && f.Sort == ""
}
