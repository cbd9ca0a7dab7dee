package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tuanvumaihuynh/product-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/product-catalog/internal/event"
	"github.com/tuanvumaihuynh/product-catalog/internal/model"
	"github.com/tuanvumaihuynh/product-catalog/internal/repository"
	"github.com/tuanvumaihuynh/product-catalog/internal/storage/db"
	"github.com/tuanvumaihuynh/product-catalog/pkg/outbox"
	"github.com/tuanvumaihuynh/product-catalog/pkg/ptr"
)

type CreateProductParams struct {
	ProductCode      string
	Name             string
	ShortDescription string
	ItemPrice        decimal.Decimal
	AvailableStock   int
	SellerID         uuid.UUID
}

type ListProductsParams struct {
	Skip int
	Take int
}

type ListProductsResult struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
}

// StockEngine owns every write that may change a product after creation.
type StockEngine interface {
	ApplyFieldUpdate(ctx context.Context, productID uuid.UUID, patch model.ProductPatch) (model.Product, error)
	InvalidateListings(ctx context.Context)
}

type ProductService interface {
	CreateProduct(ctx context.Context, params CreateProductParams) (model.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (model.Product, error)
	ListProducts(ctx context.Context, params ListProductsParams) (ListProductsResult, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, patch model.ProductPatch) (model.Product, error)
}

type productService struct {
	db            db.DB
	productRepo   repository.ProductRepository
	outboxMsgRepo repository.OutboxMsgRepository
	stockEngine   StockEngine
}

func NewProductService(
	db db.DB,
	productRepo repository.ProductRepository,
	outboxMsgRepo repository.OutboxMsgRepository,
	stockEngine StockEngine,
) ProductService {
	return &productService{
		db:            db,
		productRepo:   productRepo,
		outboxMsgRepo: outboxMsgRepo,
		stockEngine:   stockEngine,
	}
}

func (s *productService) CreateProduct(ctx context.Context, params CreateProductParams) (model.Product, error) {
	_, err := s.productRepo.GetProductByCode(ctx, params.ProductCode)
	switch {
	case err == nil:
		return model.Product{}, apperr.ProductAlreadyExistsErr
	case !errors.Is(err, repository.ErrProductNotFound):
		return model.Product{}, apperr.DownstreamUnavailableErr.WrapParent(
			fmt.Errorf("product repository get product by code: %w", err))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return model.Product{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now()
	product := model.Product{
		ID:               id,
		ProductCode:      params.ProductCode,
		Name:             params.Name,
		ShortDescription: params.ShortDescription,
		ItemPrice:        params.ItemPrice.Round(2),
		AvailableStock:   params.AvailableStock,
		SellerID:         params.SellerID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	ev := event.ProductCreatedEvent{
		ProductID:      product.ID.String(),
		ProductCode:    product.ProductCode,
		Name:           product.Name,
		ItemPrice:      product.ItemPrice.StringFixed(2),
		AvailableStock: product.AvailableStock,
		SellerID:       product.SellerID.String(),
	}

	evBytes, err := json.Marshal(ev)
	if err != nil {
		return model.Product{}, fmt.Errorf("marshal event: %w", err)
	}

	s.stockEngine.InvalidateListings(ctx)

	if err := s.db.WithTx(ctx, func(db db.DB) error {
		if err := s.productRepo.
			WithDB(db).
			CreateProduct(ctx, product); err != nil {
			return fmt.Errorf("product repository create product: %w", err)
		}

		if err := s.outboxMsgRepo.
			WithDB(db).
			CreateOutboxMsg(ctx, repository.CreateOutboxMsgParams{
				Topic:        event.TopicProductCreated,
				Headers:      outbox.BuildHeaders(ctx),
				Payload:      evBytes,
				PartitionKey: ptr.New(product.ID.String()),
			}); err != nil {
			return fmt.Errorf("outbox msg repository create outbox msg: %w", err)
		}

		return nil
	}); err != nil {
		// a concurrent create won the unique constraint
		if errors.Is(err, repository.ErrProductCodeConflict) {
			return model.Product{}, apperr.ProductAlreadyExistsErr.WrapParent(err)
		}
		if errors.Is(err, repository.ErrStockOutOfRange) {
			return model.Product{}, apperr.StockOutOfRangeErr.WrapParent(err)
		}
		return model.Product{}, apperr.DownstreamUnavailableErr.WrapParent(fmt.Errorf("db with tx: %w", err))
	}

	s.stockEngine.InvalidateListings(ctx)

	return product, nil
}

func (s *productService) GetProduct(ctx context.Context, id uuid.UUID) (model.Product, error) {
	product, err := s.productRepo.GetProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return model.Product{}, apperr.ProductNotFoundErr.WrapParent(err)
		}
		return model.Product{}, apperr.DownstreamUnavailableErr.WrapParent(
			fmt.Errorf("product repository get product by id: %w", err))
	}

	return product, nil
}

func (s *productService) ListProducts(ctx context.Context, params ListProductsParams) (ListProductsResult, error) {
	page, err := s.productRepo.ListProductsPage(ctx, repository.ListProductsPageParams{
		Skip: params.Skip,
		Take: params.Take,
	})
	if err != nil {
		return ListProductsResult{}, apperr.DownstreamUnavailableErr.WrapParent(
			fmt.Errorf("product repository list products page: %w", err))
	}

	return ListProductsResult{Items: page.Items, Total: page.Total}, nil
}

func (s *productService) UpdateProduct(ctx context.Context, id uuid.UUID, patch model.ProductPatch) (model.Product, error) {
	if patch.ItemPrice != nil {
		patch.ItemPrice = ptr.New(patch.ItemPrice.Round(2))
	}

	product, err := s.stockEngine.ApplyFieldUpdate(ctx, id, patch)
	if err != nil {
		return model.Product{}, fmt.Errorf("stock engine apply field update: %w", err)
	}

	return product, nil
}
