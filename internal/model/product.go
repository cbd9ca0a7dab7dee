package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID               uuid.UUID       `json:"id"`
	ProductCode      string          `json:"productCode"`
	Name             string          `json:"productName"`
	ShortDescription string          `json:"shortDesc"`
	ItemPrice        decimal.Decimal `json:"itemPrice"`
	AvailableStock   int             `json:"availableStock"`
	SellerID         uuid.UUID       `json:"sellerId"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Oversold reports whether more stock has been reserved than was available.
// Stock is never clamped at zero, so a negative value is the oversold signal.
func (p Product) Oversold() bool {
	return p.AvailableStock < 0
}

// ProductPatch holds the mutable fields of a product. Nil fields are left untouched.
// ID and ProductCode are immutable and therefore absent.
type ProductPatch struct {
	Name             *string
	ShortDescription *string
	ItemPrice        *decimal.Decimal
	AvailableStock   *int
	SellerID         *uuid.UUID
}

// IsEmpty reports whether the patch changes nothing.
func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil &&
		p.ShortDescription == nil &&
		p.ItemPrice == nil &&
		p.AvailableStock == nil &&
		p.SellerID == nil
}
