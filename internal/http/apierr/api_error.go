package apierr

import (
	"errors"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	govalidator "github.com/go-playground/validator/v10"

	"github.com/tuanvumaihuynh/product-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/product-catalog/pkg/validator"
	"github.com/tuanvumaihuynh/product-catalog/pkg/zerror"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the error response for the API.
type ErrorResponse struct {
	Status  int          `json:"status"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`

	// StatusCode is the status code for the error response.
	StatusCode int `json:"-"`
}

func New(err error) ErrorResponse {
	res := errorToErrorResponse(err)
	res.Status = res.StatusCode
	return res
}

var InternalServerErr = ErrorResponse{
	Status:     http.StatusInternalServerError,
	Code:       "INTERNAL_SERVER_ERROR",
	Message:    "an unknown error occurred",
	StatusCode: http.StatusInternalServerError,
}

func errorToErrorResponse(err error) ErrorResponse {
	// field errors carry more detail than the wrapping ZError
	var validationErrs govalidator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make([]FieldError, len(validationErrs))
		for i, fe := range validationErrs {
			details[i] = FieldError{
				Field:   fe.Field(),
				Message: validator.ValidationErrorMessage(fe),
			}
		}

		return ErrorResponse{
			Code:       apperr.ValidationErrorCode,
			Message:    "validation error",
			Details:    details,
			StatusCode: http.StatusBadRequest,
		}
	}

	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		return ErrorResponse{
			Code:       apperr.ValidationErrorCode,
			Message:    requestErrorMessage(reqErr),
			Details:    requestErrorDetails(reqErr),
			StatusCode: http.StatusBadRequest,
		}
	}

	var zErr zerror.ZError
	if errors.As(err, &zErr) {
		msg := zErr.Msg()
		if zErr.Code() == apperr.ValidationErrorCode && zErr.Parent() != nil {
			msg = zErr.Parent().Error()
		}

		return ErrorResponse{
			Code:       zErr.Code(),
			Message:    msg,
			StatusCode: ZErrorStatusToHTTPStatus(zErr.Status()),
		}
	}

	return InternalServerErr
}

func requestErrorMessage(reqErr *openapi3filter.RequestError) string {
	switch {
	case reqErr.Parameter != nil:
		return "invalid parameter " + reqErr.Parameter.Name
	case reqErr.RequestBody != nil:
		return "invalid request body"
	default:
		return reqErr.Error()
	}
}

func requestErrorDetails(reqErr *openapi3filter.RequestError) []FieldError {
	var schemaErr *openapi3.SchemaError
	if !errors.As(reqErr, &schemaErr) {
		if reqErr.Parameter != nil {
			return []FieldError{{Field: reqErr.Parameter.Name, Message: reqErr.Reason}}
		}
		return nil
	}

	field := "body"
	if reqErr.Parameter != nil {
		field = reqErr.Parameter.Name
	}
	if path := schemaErr.JSONPointer(); len(path) > 0 {
		field = path[len(path)-1]
	}

	return []FieldError{{Field: field, Message: schemaErr.Reason}}
}

func ZErrorStatusToHTTPStatus(status zerror.Status) int {
	switch status {
	case zerror.StatusUnauthorized:
		return http.StatusUnauthorized
	case zerror.StatusForbidden:
		return http.StatusForbidden
	case zerror.StatusNotFound:
		return http.StatusNotFound
	case zerror.StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case zerror.StatusConflict:
		return http.StatusConflict
	case zerror.StatusTooManyRequests:
		return http.StatusTooManyRequests
	case zerror.StatusBadRequest:
		return http.StatusBadRequest
	case zerror.StatusValidationFailed:
		return http.StatusBadRequest
	case zerror.StatusUnknown, zerror.StatusInternalServerError:
		return http.StatusInternalServerError
	case zerror.StatusTimeout:
		return http.StatusGatewayTimeout
	case zerror.StatusNotImplemented:
		return http.StatusNotImplemented
	case zerror.StatusBadGateway:
		return http.StatusBadGateway
	case zerror.StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
