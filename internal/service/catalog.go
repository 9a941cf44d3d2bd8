package service

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/KachiAlex/kex/internal/cache"
	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/repository"
)

const (
	catalogKeyAll      = "all"
	catalogKeyFeatured = "featured"
	featuredLimit      = 12
)

// CatalogService serves the product catalog with a Redis read-through cache
// on the hot unfiltered listings. Filtered queries go straight to the
// repository.
type CatalogService struct {
	repo  repository.ProductRepository
	cache cache.ProductCache
	sfg   singleflight.Group // prevents cache stampede
}

func NewCatalogService(repo repository.ProductRepository, cache cache.ProductCache) *CatalogService {
	return &CatalogService{repo: repo, cache: cache}
}

func (s *CatalogService) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if !filter.IsZero() {
		return s.repo.List(ctx, filter)
	}
	return s.cached(ctx, catalogKeyAll, func() ([]domain.Product, error) {
		return s.repo.List(ctx, filter)
	})
}

func (s *CatalogService) Featured(ctx context.Context) ([]domain.Product, error) {
	return s.cached(ctx, catalogKeyFeatured, func() ([]domain.Product, error) {
		return s.repo.Featured(ctx, featuredLimit)
	})
}

func (s *CatalogService) cached(ctx context.Context, key string, load func() ([]domain.Product, error)) ([]domain.Product, error) {
	// singleflight collapses concurrent misses for the same key
	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		products, err := s.cache.Get(ctx, key)
		if err == nil {
			return products, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v", err) // log cache error but continue
		}

		products, err = load()
		if err != nil {
			return nil, err
		}

		go func() {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if errSet := s.cache.Set(setCtx, key, products); errSet != nil {
				log.Printf("cache set error: %v", errSet)
			}
		}()

		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Product), nil
}

func (s *CatalogService) Create(ctx context.Context, product *domain.Product) error {
	if err := s.repo.Create(ctx, product); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *CatalogService) Update(ctx context.Context, id string, fields map[string]any) (*domain.Product, error) {
	product, err := s.repo.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return product, nil
}

func (s *CatalogService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *CatalogService) invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, catalogKeyAll, catalogKeyFeatured); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
}
