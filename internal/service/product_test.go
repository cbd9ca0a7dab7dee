package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/product-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/product-catalog/internal/event"
	"github.com/tuanvumaihuynh/product-catalog/internal/model"
	"github.com/tuanvumaihuynh/product-catalog/internal/repository"
	"github.com/tuanvumaihuynh/product-catalog/internal/repository/repotest"
	"github.com/tuanvumaihuynh/product-catalog/internal/service"
	"github.com/tuanvumaihuynh/product-catalog/internal/stock"
	"github.com/tuanvumaihuynh/product-catalog/internal/storage/cache/cachetest"
	"github.com/tuanvumaihuynh/product-catalog/internal/storage/db"
	"github.com/tuanvumaihuynh/product-catalog/pkg/ptr"
)

type fixture struct {
	svc      service.ProductService
	cached   service.ProductService
	products *repotest.ProductRepository
	outbox   *repotest.OutboxMsgRepository
	cache    *cachetest.Memory
}

func newFixture(t *testing.T, seed ...model.Product) fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	products := repotest.NewProductRepository(seed...)
	outbox := repotest.NewOutboxMsgRepository()
	mem := cachetest.NewMemory()

	engine := stock.NewEngine(logger, repotest.DB{}, products, outbox, repotest.NewProcessedEventRepository(), mem)
	svc := service.NewProductService(repotest.DB{}, products, outbox, engine)

	return fixture{
		svc:      svc,
		cached:   service.NewCachedProductService(svc, mem, time.Minute, logger),
		products: products,
		outbox:   outbox,
		cache:    mem,
	}
}

func createParams(code string) service.CreateProductParams {
	return service.CreateProductParams{
		ProductCode:      code,
		Name:             "Desk lamp",
		ShortDescription: "LED",
		ItemPrice:        decimal.RequireFromString("19.99"),
		AvailableStock:   5,
		SellerID:         uuid.New(),
	}
}

func TestCreateProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("Should create a product and announce it", func(t *testing.T) {
		f := newFixture(t)

		p, err := f.svc.CreateProduct(ctx, createParams("LAMP-1"))
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, p.ID)
		assert.Equal(t, 5, p.AvailableStock)

		got, err := f.svc.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ProductCode, got.ProductCode)

		msgs := f.outbox.Messages(event.TopicProductCreated)
		require.Len(t, msgs, 1)

		var ev event.ProductCreatedEvent
		require.NoError(t, json.Unmarshal(msgs[0], &ev))
		assert.Equal(t, p.ID.String(), ev.ProductID)
		assert.Equal(t, "19.99", ev.ItemPrice)
	})

	t.Run("Should reject a duplicate product code without writing", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.CreateProduct(ctx, createParams("LAMP-1"))
		require.NoError(t, err)

		_, err = f.svc.CreateProduct(ctx, createParams("LAMP-1"))
		assert.ErrorIs(t, err, apperr.ProductAlreadyExistsErr)
		assert.Equal(t, 1, f.products.Len())
		assert.Equal(t, 1, f.products.Writes())
		assert.Len(t, f.outbox.Messages(event.TopicProductCreated), 1)
	})

	t.Run("Should round the price to cents", func(t *testing.T) {
		f := newFixture(t)

		params := createParams("LAMP-2")
		params.ItemPrice = decimal.RequireFromString("3.999")
		p, err := f.svc.CreateProduct(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, "4.00", p.ItemPrice.StringFixed(2))
	})

	t.Run("Should report store failures as downstream unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.products.Err = errors.New("connection refused")

		_, err := f.svc.CreateProduct(ctx, createParams("LAMP-3"))
		assert.ErrorIs(t, err, apperr.DownstreamUnavailableErr)
	})

	t.Run("Should reject stock the store cannot hold as a validation failure", func(t *testing.T) {
		f := newFixture(t)

		params := createParams("LAMP-4")
		params.AvailableStock = 1 << 31
		_, err := f.svc.CreateProduct(ctx, params)
		assert.ErrorIs(t, err, apperr.StockOutOfRangeErr)
		assert.Equal(t, 0, f.products.Len())
		assert.Empty(t, f.outbox.Messages(event.TopicProductCreated))
	})
}

func TestGetProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("Should fail with not found and leave the cache untouched", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.cache.Set(ctx, "products:list:skip=0:take=10", []byte("{}"), time.Minute))

		_, err := f.svc.GetProduct(ctx, uuid.New())
		assert.ErrorIs(t, err, apperr.ProductNotFoundErr)
		assert.True(t, f.cache.Has("products:list:skip=0:take=10"))
	})
}

func TestUpdateProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("Should merge supplied fields", func(t *testing.T) {
		f := newFixture(t)
		p, err := f.svc.CreateProduct(ctx, createParams("LAMP-1"))
		require.NoError(t, err)

		got, err := f.svc.UpdateProduct(ctx, p.ID, model.ProductPatch{AvailableStock: ptr.New(42)})
		require.NoError(t, err)
		assert.Equal(t, 42, got.AvailableStock)
		assert.Equal(t, p.Name, got.Name)
	})

	t.Run("Should fail with not found for an unknown product", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.UpdateProduct(ctx, uuid.New(), model.ProductPatch{Name: ptr.New("x")})
		assert.ErrorIs(t, err, apperr.ProductNotFoundErr)
	})
}

func TestCachedListProducts(t *testing.T) {
	ctx := context.Background()

	t.Run("Should serve a cached page until a write invalidates it", func(t *testing.T) {
		f := newFixture(t)
		p, err := f.svc.CreateProduct(ctx, createParams("LAMP-1"))
		require.NoError(t, err)

		params := service.ListProductsParams{Skip: 0, Take: 10}
		first, err := f.cached.ListProducts(ctx, params)
		require.NoError(t, err)
		require.Len(t, first.Items, 1)
		assert.True(t, f.cache.Has("products:list:skip=0:take=10"))

		// bypass the service so only the cache can answer
		_, err = f.products.AddProductStock(ctx, p.ID, -1)
		require.NoError(t, err)

		cached, err := f.cached.ListProducts(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, 5, cached.Items[0].AvailableStock)

		_, err = f.cached.UpdateProduct(ctx, p.ID, model.ProductPatch{Name: ptr.New("Floor lamp")})
		require.NoError(t, err)
		assert.False(t, f.cache.Has("products:list:skip=0:take=10"))

		fresh, err := f.cached.ListProducts(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, 4, fresh.Items[0].AvailableStock)
		assert.Equal(t, "Floor lamp", fresh.Items[0].Name)
		assert.Equal(t, int64(1), fresh.Total)
	})

	t.Run("Should fall through when the cache is unreachable", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateProduct(ctx, createParams("LAMP-1"))
		require.NoError(t, err)
		f.cache.Err = errors.New("connection refused")

		res, err := f.cached.ListProducts(ctx, service.ListProductsParams{Skip: 0, Take: 10})
		require.NoError(t, err)
		assert.Len(t, res.Items, 1)
	})

	t.Run("Should key pages separately", func(t *testing.T) {
		f := newFixture(t)
		for _, code := range []string{"A", "B", "C"} {
			_, err := f.svc.CreateProduct(ctx, createParams(code))
			require.NoError(t, err)
		}

		page1, err := f.cached.ListProducts(ctx, service.ListProductsParams{Skip: 0, Take: 2})
		require.NoError(t, err)
		page2, err := f.cached.ListProducts(ctx, service.ListProductsParams{Skip: 2, Take: 2})
		require.NoError(t, err)

		assert.Len(t, page1.Items, 2)
		assert.Len(t, page2.Items, 1)
		assert.Equal(t, int64(3), page2.Total)
	})
}

// gatedProducts parks every write until release is closed, after closing
// entered, so a test can read between invalidation and the write.
type gatedProducts struct {
	*repotest.ProductRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedProducts) WithDB(db.DB) repository.ProductRepository {
	return g
}

func (g *gatedProducts) wait() {
	g.once.Do(func() { close(g.entered) })
	<-g.release
}

func (g *gatedProducts) CreateProduct(ctx context.Context, product model.Product) error {
	g.wait()
	return g.ProductRepository.CreateProduct(ctx, product)
}

func (g *gatedProducts) UpdateProductFields(ctx context.Context, id uuid.UUID, patch model.ProductPatch) (model.Product, error) {
	g.wait()
	return g.ProductRepository.UpdateProductFields(ctx, id, patch)
}

func (g *gatedProducts) AddProductStock(ctx context.Context, id uuid.UUID, delta int) (model.Product, error) {
	g.wait()
	return g.ProductRepository.AddProductStock(ctx, id, delta)
}

func TestCachedListProductsDuringWrite(t *testing.T) {
	ctx := context.Background()
	params := service.ListProductsParams{Skip: 0, Take: 10}
	seed := model.Product{
		ID:             uuid.New(),
		ProductCode:    "LAMP-1",
		Name:           "Desk lamp",
		ItemPrice:      decimal.RequireFromString("19.99"),
		AvailableStock: 10,
		SellerID:       uuid.New(),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	tests := []struct {
		name  string
		write func(engine *stock.Engine, svc service.ProductService) error
		want  func(t *testing.T, res service.ListProductsResult)
	}{
		{
			name: "Should drop a page cached before a stock delta commits",
			write: func(engine *stock.Engine, _ service.ProductService) error {
				_, err := engine.ApplyDelta(ctx, seed.ID, -3)
				return err
			},
			want: func(t *testing.T, res service.ListProductsResult) {
				require.Len(t, res.Items, 1)
				assert.Equal(t, 7, res.Items[0].AvailableStock)
			},
		},
		{
			name: "Should drop a page cached before a field update commits",
			write: func(_ *stock.Engine, svc service.ProductService) error {
				_, err := svc.UpdateProduct(ctx, seed.ID, model.ProductPatch{AvailableStock: ptr.New(7)})
				return err
			},
			want: func(t *testing.T, res service.ListProductsResult) {
				require.Len(t, res.Items, 1)
				assert.Equal(t, 7, res.Items[0].AvailableStock)
			},
		},
		{
			name: "Should drop a page cached before a create commits",
			write: func(_ *stock.Engine, svc service.ProductService) error {
				_, err := svc.CreateProduct(ctx, createParams("LAMP-2"))
				return err
			},
			want: func(t *testing.T, res service.ListProductsResult) {
				assert.Equal(t, int64(2), res.Total)
				assert.Len(t, res.Items, 2)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			products := &gatedProducts{
				ProductRepository: repotest.NewProductRepository(seed),
				entered:           make(chan struct{}),
				release:           make(chan struct{}),
			}
			outbox := repotest.NewOutboxMsgRepository()
			mem := cachetest.NewMemory()
			engine := stock.NewEngine(logger, repotest.DB{}, products, outbox, repotest.NewProcessedEventRepository(), mem)
			svc := service.NewProductService(repotest.DB{}, products, outbox, engine)
			cached := service.NewCachedProductService(svc, mem, time.Minute, logger)

			done := make(chan error, 1)
			go func() { done <- tt.write(engine, svc) }()

			select {
			case <-products.entered:
			case <-time.After(5 * time.Second):
				t.Fatal("write never reached the store")
			}

			stale, err := cached.ListProducts(ctx, params)
			require.NoError(t, err)
			require.Len(t, stale.Items, 1)
			assert.Equal(t, 10, stale.Items[0].AvailableStock)
			assert.True(t, mem.Has("products:list:skip=0:take=10"))

			close(products.release)
			require.NoError(t, <-done)

			res, err := cached.ListProducts(ctx, params)
			require.NoError(t, err)
			tt.want(t, res)
		})
	}
}
