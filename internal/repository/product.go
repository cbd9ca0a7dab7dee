package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/tuanvumaihuynh/product-catalog/internal/model"
	"github.com/tuanvumaihuynh/product-catalog/internal/storage/db"
)

const productCodeConstraint = "products_product_code_key"

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrProductCodeConflict = errors.New("product code already exists")
	// ErrStockOutOfRange means a stock value does not fit the INTEGER column.
	ErrStockOutOfRange = errors.New("available stock out of range")
)

type ListProductsPageParams struct {
	Skip int
	Take int
}

type ListProductsPageResult struct {
	Items []model.Product
	Total int64
}

// ProductRepository is the durable product store. Every method is a single
// statement, so writes never interleave inside one call.
type ProductRepository interface {
	WithDB(db db.DB) ProductRepository
	CreateProduct(ctx context.Context, product model.Product) error
	GetProductByID(ctx context.Context, id uuid.UUID) (model.Product, error)
	GetProductByCode(ctx context.Context, code string) (model.Product, error)
	UpdateProductFields(ctx context.Context, id uuid.UUID, patch model.ProductPatch) (model.Product, error)
	// AddProductStock adds delta to available_stock in the store itself and
	// returns the updated row.
	AddProductStock(ctx context.Context, id uuid.UUID, delta int) (model.Product, error)
	ListProductsPage(ctx context.Context, params ListProductsPageParams) (ListProductsPageResult, error)
}

type productRepository struct {
	db db.DB
}

func NewProductRepository(db db.DB) ProductRepository {
	return &productRepository{
		db: db,
	}
}

func (r productRepository) WithDB(db db.DB) ProductRepository {
	return &productRepository{
		db: db,
	}
}

const productColumns = `id, product_code, product_name, short_description, item_price,
	available_stock, seller_id, created_at, updated_at`

type productRow struct {
	ID               uuid.UUID       `db:"id"`
	ProductCode      string          `db:"product_code"`
	ProductName      string          `db:"product_name"`
	ShortDescription string          `db:"short_description"`
	ItemPrice        decimal.Decimal `db:"item_price"`
	AvailableStock   int32           `db:"available_stock"`
	SellerID         uuid.UUID       `db:"seller_id"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func (r productRepository) CreateProduct(ctx context.Context, product model.Product) error {
	stock, err := toInt32(product.AvailableStock)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (@id, @product_code, @product_name, @short_description, @item_price,
			@available_stock, @seller_id, @created_at, @updated_at)
	`, pgx.NamedArgs{
		"id":                product.ID,
		"product_code":      product.ProductCode,
		"product_name":      product.Name,
		"short_description": product.ShortDescription,
		"item_price":        product.ItemPrice,
		"available_stock":   stock,
		"seller_id":         product.SellerID,
		"created_at":        product.CreatedAt,
		"updated_at":        product.UpdatedAt,
	})
	if err != nil {
		if db.IsUniqueViolation(err, productCodeConstraint) {
			return ErrProductCodeConflict
		}
		if db.IsNumericOutOfRange(err) {
			return ErrStockOutOfRange
		}
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

func (r productRepository) GetProductByID(ctx context.Context, id uuid.UUID) (model.Product, error) {
	return r.queryOne(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (r productRepository) GetProductByCode(ctx context.Context, code string) (model.Product, error) {
	return r.queryOne(ctx, `SELECT `+productColumns+` FROM products WHERE product_code = $1`, code)
}

func (r productRepository) UpdateProductFields(ctx context.Context, id uuid.UUID, patch model.ProductPatch) (model.Product, error) {
	if patch.IsEmpty() {
		return r.GetProductByID(ctx, id)
	}

	var stock *int32
	if patch.AvailableStock != nil {
		v, err := toInt32(*patch.AvailableStock)
		if err != nil {
			return model.Product{}, err
		}
		stock = &v
	}

	// NULL parameters keep the stored value, so a partial patch is still one statement.
	return r.queryOne(ctx, `
		UPDATE products SET
			product_name      = COALESCE(@product_name, product_name),
			short_description = COALESCE(@short_description, short_description),
			item_price        = COALESCE(@item_price, item_price),
			available_stock   = COALESCE(@available_stock, available_stock),
			seller_id         = COALESCE(@seller_id, seller_id),
			updated_at        = @updated_at
		WHERE id = @id
		RETURNING `+productColumns,
		pgx.NamedArgs{
			"id":                id,
			"product_name":      patch.Name,
			"short_description": patch.ShortDescription,
			"item_price":        patch.ItemPrice,
			"available_stock":   stock,
			"seller_id":         patch.SellerID,
			"updated_at":        time.Now(),
		})
}

func (r productRepository) AddProductStock(ctx context.Context, id uuid.UUID, delta int) (model.Product, error) {
	d, err := toInt32(delta)
	if err != nil {
		return model.Product{}, err
	}

	return r.queryOne(ctx, `
		UPDATE products SET
			available_stock = available_stock + @delta,
			updated_at      = @updated_at
		WHERE id = @id
		RETURNING `+productColumns,
		pgx.NamedArgs{
			"id":         id,
			"delta":      d,
			"updated_at": time.Now(),
		})
}

func (r productRepository) ListProductsPage(ctx context.Context, params ListProductsPageParams) (ListProductsPageResult, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return ListProductsPageResult{}, fmt.Errorf("count products: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY created_at, id
		OFFSET $1 LIMIT $2
	`, params.Skip, params.Take)
	if err != nil {
		return ListProductsPageResult{}, fmt.Errorf("query products page: %w", err)
	}

	productRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[productRow])
	if err != nil {
		return ListProductsPageResult{}, fmt.Errorf("collect products page: %w", err)
	}

	items := make([]model.Product, 0, len(productRows))
	for _, row := range productRows {
		items = append(items, rowToModelProduct(row))
	}

	return ListProductsPageResult{Items: items, Total: total}, nil
}

func (r productRepository) queryOne(ctx context.Context, query string, args ...any) (model.Product, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		if db.IsNumericOutOfRange(err) {
			return model.Product{}, ErrStockOutOfRange
		}
		return model.Product{}, fmt.Errorf("query product: %w", err)
	}

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[productRow])
	if err != nil {
		if db.IsNoRows(err) {
			return model.Product{}, ErrProductNotFound
		}
		if db.IsNumericOutOfRange(err) {
			return model.Product{}, ErrStockOutOfRange
		}
		return model.Product{}, fmt.Errorf("collect product: %w", err)
	}

	return rowToModelProduct(row), nil
}

func rowToModelProduct(row productRow) model.Product {
	return model.Product{
		ID:               row.ID,
		ProductCode:      row.ProductCode,
		Name:             row.ProductName,
		ShortDescription: row.ShortDescription,
		ItemPrice:        row.ItemPrice,
		AvailableStock:   int(row.AvailableStock),
		SellerID:         row.SellerID,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func toInt32(v int) (int32, error) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("%w: %d", ErrStockOutOfRange, v)
	}
	return int32(v), nil
}
