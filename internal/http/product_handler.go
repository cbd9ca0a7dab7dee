package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"github.com/shopspring/decimal"

	"github.com/tuanvumaihuynh/product-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/product-catalog/internal/model"
	"github.com/tuanvumaihuynh/product-catalog/internal/service"
	"github.com/tuanvumaihuynh/product-catalog/pkg/ptr"
	"github.com/tuanvumaihuynh/product-catalog/pkg/validator"
)

const (
	defaultTake = 10
	maxTake     = 100

	maxBodyBytes = 1 << 20
)

type createProductRequest struct {
	ProductCode    string           `json:"productCode" validate:"required,max=64,productcode"`
	ProductName    string           `json:"productName" validate:"required"`
	ShortDesc      string           `json:"shortDesc" validate:"max=100"`
	ItemPrice      *decimal.Decimal `json:"itemPrice" validate:"required,gte=0,scale2"`
	AvailableStock *int             `json:"availableStock" validate:"required,gte=0,lte=2147483647"`
	SellerID       string           `json:"sellerId" validate:"required,uuid"`
}

type updateProductRequest struct {
	ProductName    *string          `json:"productName" validate:"omitempty,min=1"`
	ShortDesc      *string          `json:"shortDesc" validate:"omitempty,max=100"`
	ItemPrice      *decimal.Decimal `json:"itemPrice" validate:"omitempty,gte=0,scale2"`
	AvailableStock *int             `json:"availableStock" validate:"omitempty,gte=0,lte=2147483647"`
	SellerID       *string          `json:"sellerId" validate:"omitempty,uuid"`
}

type productResponse struct {
	ID             uuid.UUID `json:"id"`
	ProductCode    string    `json:"productCode"`
	ProductName    string    `json:"productName"`
	ShortDesc      string    `json:"shortDesc"`
	ItemPrice      string    `json:"itemPrice"`
	AvailableStock int       `json:"availableStock"`
	SellerID       uuid.UUID `json:"sellerId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type productEnvelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    productResponse `json:"data"`
}

type productPageEnvelope struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Data    []productResponse `json:"data"`
	Total   int64             `json:"total"`
}

func toProductResponse(p model.Product) productResponse {
	return productResponse{
		ID:             p.ID,
		ProductCode:    p.ProductCode,
		ProductName:    p.Name,
		ShortDesc:      p.ShortDescription,
		ItemPrice:      p.ItemPrice.StringFixed(2),
		AvailableStock: p.AvailableStock,
		SellerID:       p.SellerID,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type productHandler struct {
	productSvc service.ProductService
	validator  validator.Validator
}

func newProductHandler(productSvc service.ProductService, validator validator.Validator) *productHandler {
	return &productHandler{
		productSvc: productSvc,
		validator:  validator,
	}
}

func (h *productHandler) CreateProduct(w http.ResponseWriter, r *http.Request) error {
	var req createProductRequest
	if err := h.decode(w, r, &req); err != nil {
		return err
	}

	product, err := h.productSvc.CreateProduct(r.Context(), service.CreateProductParams{
		ProductCode:      req.ProductCode,
		Name:             req.ProductName,
		ShortDescription: req.ShortDesc,
		ItemPrice:        ptr.Deref(req.ItemPrice),
		AvailableStock:   ptr.Deref(req.AvailableStock),
		SellerID:         uuid.MustParse(req.SellerID),
	})
	if err != nil {
		return fmt.Errorf("product service create product: %w", err)
	}

	writeJSON(r, w, http.StatusCreated, productEnvelope{
		Status:  http.StatusCreated,
		Message: "Product created successfully",
		Data:    toProductResponse(product),
	})
	return nil
}

func (h *productHandler) ListProducts(w http.ResponseWriter, r *http.Request) error {
	skip, take := 0, defaultTake
	query := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, false, "skip", query, &skip); err != nil {
		return apperr.ValidationErr.WrapParent(fmt.Errorf("invalid format for parameter skip: %w", err))
	}
	if err := runtime.BindQueryParameter("form", true, false, "take", query, &take); err != nil {
		return apperr.ValidationErr.WrapParent(fmt.Errorf("invalid format for parameter take: %w", err))
	}
	if skip < 0 {
		return apperr.ValidationErr.WithMsg("skip must not be negative")
	}
	if take < 1 {
		return apperr.ValidationErr.WithMsg("take must be positive")
	}
	take = min(take, maxTake)

	res, err := h.productSvc.ListProducts(r.Context(), service.ListProductsParams{Skip: skip, Take: take})
	if err != nil {
		return fmt.Errorf("product service list products: %w", err)
	}

	items := make([]productResponse, 0, len(res.Items))
	for _, p := range res.Items {
		items = append(items, toProductResponse(p))
	}

	writeJSON(r, w, http.StatusOK, productPageEnvelope{
		Status:  http.StatusOK,
		Message: "Products fetched successfully",
		Data:    items,
		Total:   res.Total,
	})
	return nil
}

func (h *productHandler) GetProduct(w http.ResponseWriter, r *http.Request) error {
	id, err := productIDParam(r)
	if err != nil {
		return err
	}

	product, err := h.productSvc.GetProduct(r.Context(), id)
	if err != nil {
		return fmt.Errorf("product service get product: %w", err)
	}

	writeJSON(r, w, http.StatusOK, productEnvelope{
		Status:  http.StatusOK,
		Message: "Product fetched successfully",
		Data:    toProductResponse(product),
	})
	return nil
}

func (h *productHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) error {
	id, err := productIDParam(r)
	if err != nil {
		return err
	}

	var req updateProductRequest
	if err := h.decode(w, r, &req); err != nil {
		return err
	}

	patch := model.ProductPatch{
		Name:             req.ProductName,
		ShortDescription: req.ShortDesc,
		ItemPrice:        req.ItemPrice,
		AvailableStock:   req.AvailableStock,
		SellerID:         ptr.Map(req.SellerID, uuid.MustParse),
	}

	product, err := h.productSvc.UpdateProduct(r.Context(), id, patch)
	if err != nil {
		return fmt.Errorf("product service update product: %w", err)
	}

	writeJSON(r, w, http.StatusOK, productEnvelope{
		Status:  http.StatusOK,
		Message: "Product updated successfully",
		Data:    toProductResponse(product),
	})
	return nil
}

// decode reads a single JSON object into dst and validates it. Unknown
// fields and trailing data are rejected, which keeps productCode out of
// patches.
func (h *productHandler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.ValidationErr.WrapParent(errors.New("request body is empty"))
		}
		return apperr.ValidationErr.WrapParent(fmt.Errorf("decode request body: %w", err))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.ValidationErr.WrapParent(errors.New("request body must hold a single JSON object"))
	}

	if err := h.validator.Validate(dst); err != nil {
		return apperr.ValidationErr.WrapParent(err)
	}

	return nil
}

func productIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.ValidationErr.WrapParent(fmt.Errorf("invalid product id: %w", err))
	}
	return id, nil
}

func writeJSON(r *http.Request, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.WarnContext(r.Context(), "error encoding response", slog.Any("error", err))
	}
}
