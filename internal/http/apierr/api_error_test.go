package apierr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/product-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/product-catalog/internal/http/apierr"
	"github.com/tuanvumaihuynh/product-catalog/pkg/validator"
)

func TestNew(t *testing.T) {
	t.Run("Should map app errors through wrapping", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{apperr.ProductNotFoundErr, http.StatusNotFound, apperr.ProductNotFoundErrorCode},
			{fmt.Errorf("get: %w", apperr.ProductAlreadyExistsErr), http.StatusConflict, apperr.ProductAlreadyExistsErrorCode},
			{apperr.DownstreamUnavailableErr.WrapParent(errors.New("dial tcp")), http.StatusServiceUnavailable, apperr.DownstreamUnavailableErrorCode},
			{fmt.Errorf("apply: %w", apperr.StockOutOfRangeErr.WrapParent(errors.New("value out of range"))), http.StatusBadRequest, apperr.StockOutOfRangeErrorCode},
		}

		for _, tc := range cases {
			res := apierr.New(tc.err)
			assert.Equal(t, tc.status, res.StatusCode)
			assert.Equal(t, tc.status, res.Status)
			assert.Equal(t, tc.code, res.Code)
		}
	})

	t.Run("Should list field errors for struct validation", func(t *testing.T) {
		v, err := validator.NewDefaultValidator()
		require.NoError(t, err)

		type req struct {
			SellerID string `validate:"required,uuid"`
		}
		vErr := v.Validate(req{SellerID: "nope"})
		require.Error(t, vErr)

		res := apierr.New(apperr.ValidationErr.WrapParent(vErr))
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, apperr.ValidationErrorCode, res.Code)
		require.Len(t, res.Details, 1)
		assert.Equal(t, "SellerID", res.Details[0].Field)
		assert.Equal(t, "must be a valid UUID", res.Details[0].Message)
	})

	t.Run("Should surface the cause of a plain validation error", func(t *testing.T) {
		res := apierr.New(apperr.ValidationErr.WrapParent(errors.New("request body is empty")))
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "request body is empty", res.Message)
	})

	t.Run("Should hide unknown errors", func(t *testing.T) {
		res := apierr.New(errors.New("boom"))
		assert.Equal(t, apierr.InternalServerErr, res)
	})
}
