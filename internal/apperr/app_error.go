package apperr

import "github.com/tuanvumaihuynh/product-catalog/pkg/zerror"

const (
	ValidationErrorCode            = "VALIDATION_FAILED"
	ProductNotFoundErrorCode       = "PRODUCT_NOT_FOUND"
	ProductAlreadyExistsErrorCode  = "PRODUCT_ALREADY_EXISTS"
	MalformedEventErrorCode        = "MALFORMED_EVENT"
	DownstreamUnavailableErrorCode = "DOWNSTREAM_UNAVAILABLE"
	StockOutOfRangeErrorCode       = "STOCK_OUT_OF_RANGE"
)

var (
	ValidationErr            = zerror.NewValidationFailed(ValidationErrorCode, "validation error")
	ProductNotFoundErr       = zerror.NewNotFound(ProductNotFoundErrorCode, "product not found")
	ProductAlreadyExistsErr  = zerror.NewConflict(ProductAlreadyExistsErrorCode, "product already exists in this marketplace")
	MalformedEventErr        = zerror.NewValidationFailed(MalformedEventErrorCode, "malformed event payload")
	DownstreamUnavailableErr = zerror.NewServiceUnavailable(DownstreamUnavailableErrorCode, "downstream dependency unavailable")
	StockOutOfRangeErr       = zerror.NewValidationFailed(StockOutOfRangeErrorCode, "available stock out of range")
)
