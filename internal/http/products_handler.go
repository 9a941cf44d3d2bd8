package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/repository"
	"github.com/KachiAlex/kex/internal/service"
)

type ProductsHandler struct {
	catalog *service.CatalogService
	timeout time.Duration
}

func NewProductsHandler(catalog *service.CatalogService, timeout time.Duration) *ProductsHandler {
	return &ProductsHandler{catalog: catalog, timeout: timeout}
}

type productRequestDTO struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Price       *float64  `json:"price"`
	Quantity    *int      `json:"quantity"`
	Category    *string   `json:"category"`
	Images      *[]string `json:"images"`
	Featured    *bool     `json:"featured"`
}

// GET /api/products?q=&featured=&sort=
func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	filter := domain.ProductFilter{
		Query:        r.URL.Query().Get("q"),
		FeaturedOnly: r.URL.Query().Get("featured") == "true",
		Sort:         r.URL.Query().Get("sort"),
	}

	products, err := h.catalog.List(ctx, filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list products")
		return
	}
	respondJSON(w, http.StatusOK, products)
}

// GET /api/products/featured
func (h *ProductsHandler) Featured(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.catalog.Featured(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list featured products")
		return
	}
	respondJSON(w, http.StatusOK, products)
}

// POST /api/products, admin only
func (h *ProductsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req productRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	product, verr := domain.NewProduct(
		strVal(req.Name),
		strVal(req.Description),
		floatVal(req.Price),
		intVal(req.Quantity),
		strVal(req.Category),
		sliceVal(req.Images),
		boolVal(req.Featured),
	)
	if verr != nil {
		respondErrorDetails(w, http.StatusBadRequest, "invalid_request", "invalid product payload", verr.Fields)
		return
	}

	if err := h.catalog.Create(ctx, product); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create product")
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

// PUT /api/products/{id}, admin only
func (h *ProductsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req productRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	fields, verr := req.toFields()
	if verr != nil {
		respondErrorDetails(w, http.StatusBadRequest, "invalid_request", "invalid product payload", verr.Fields)
		return
	}

	product, err := h.catalog.Update(ctx, chi.URLParam(r, "id"), fields)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "product not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update product")
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// DELETE /api/products/{id}, admin only
func (h *ProductsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.catalog.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "product not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// toFields validates the provided fields of a partial update.
func (req productRequestDTO) toFields() (map[string]any, *domain.ValidationError) {
	var verr domain.ValidationError
	fields := map[string]any{}
	if req.Name != nil {
		if *req.Name == "" {
			verr.Add("name", "must not be empty")
		}
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Price != nil {
		if *req.Price < 0 {
			verr.Add("price", "must not be negative")
		}
		fields["price"] = *req.Price
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			verr.Add("quantity", "must not be negative")
		}
		fields["quantity"] = *req.Quantity
	}
	if req.Category != nil {
		fields["category"] = *req.Category
	}
	if req.Images != nil {
		fields["images"] = *req.Images
	}
	if req.Featured != nil {
		fields["featured"] = *req.Featured
	}
	if verr.HasErrors() {
		return nil, &verr
	}
	return fields, nil
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func floatVal(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func intVal(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func boolVal(p *bool) bool {
	if p == nil {
		return false
	}
	return *p
}

func sliceVal(p *[]string) []string {
	if p == nil {
		return nil
	}
	return *p
}
