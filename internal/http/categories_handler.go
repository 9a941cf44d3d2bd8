package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/repository"
)

type CategoriesHandler struct {
	repo    repository.CategoryRepository
	timeout time.Duration
}

func NewCategoriesHandler(repo repository.CategoryRepository, timeout time.Duration) *CategoriesHandler {
	return &CategoriesHandler{repo: repo, timeout: timeout}
}

type categoryRequestDTO struct {
	Name     *string `json:"name"`
	Featured *bool   `json:"featured"`
}

// GET /api/categories
func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.repo.List(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list categories")
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

// POST /api/categories, admin only
func (h *CategoriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req categoryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	name := strings.TrimSpace(strVal(req.Name))
	if name == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "name must not be empty")
		return
	}

	category := &domain.Category{
		Name:     name,
		Slug:     domain.Slugify(name),
		Featured: boolVal(req.Featured),
	}
	if err := h.repo.Create(ctx, category); err != nil {
		if errors.Is(err, repository.ErrCategoryExists) {
			respondError(w, http.StatusConflict, "category_exists", "category already exists")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create category")
		return
	}
	respondJSON(w, http.StatusCreated, category)
}

// PATCH /api/categories/{id}, admin only
func (h *CategoriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req categoryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			respondError(w, http.StatusBadRequest, "invalid_request", "name must not be empty")
			return
		}
		fields["name"] = name
		fields["slug"] = domain.Slugify(name)
	}
	if req.Featured != nil {
		fields["featured"] = *req.Featured
	}

	category, err := h.repo.Update(ctx, chi.URLParam(r, "id"), fields)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCategoryNotFound):
			respondError(w, http.StatusNotFound, "not_found", "category not found")
		case errors.Is(err, repository.ErrCategoryExists):
			respondError(w, http.StatusConflict, "category_exists", "category already exists")
		default:
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to update category")
		}
		return
	}
	respondJSON(w, http.StatusOK, category)
}
