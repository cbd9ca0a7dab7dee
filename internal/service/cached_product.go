package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tuanvumaihuynh/product-catalog/internal/storage/cache"
)

// ListCacheKeyPrefix sits under cache.ProductPrefix so stock changes drop it.
const ListCacheKeyPrefix = cache.ProductPrefix + "s:list:"

func listCacheKey(params ListProductsParams) string {
	return fmt.Sprintf("%sskip=%d:take=%d", ListCacheKeyPrefix, params.Skip, params.Take)
}

type cachedProductService struct {
	ProductService

	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedProductService serves listing pages read-through from c. Every
// other call goes straight to next. Cache failures degrade to next.
func NewCachedProductService(next ProductService, c cache.Cache, ttl time.Duration, logger *slog.Logger) ProductService {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}

	return &cachedProductService{
		ProductService: next,
		cache:          c,
		ttl:            ttl,
		logger:         logger.With(slog.String("component", "product-list-cache")),
	}
}

func (s *cachedProductService) ListProducts(ctx context.Context, params ListProductsParams) (ListProductsResult, error) {
	key := listCacheKey(params)

	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "error reading listing cache", slog.String("key", key), slog.Any("error", err))
	}
	if ok {
		var res ListProductsResult
		if err := json.Unmarshal(raw, &res); err == nil {
			return res, nil
		}
		s.logger.WarnContext(ctx, "discarding undecodable listing cache entry", slog.String("key", key))
	}

	res, err := s.ProductService.ListProducts(ctx, params)
	if err != nil {
		return ListProductsResult{}, err
	}

	raw, err = json.Marshal(res)
	if err != nil {
		return res, nil
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "error writing listing cache", slog.String("key", key), slog.Any("error", err))
	}

	return res, nil
}
