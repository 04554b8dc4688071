// Package pricing resolves live menu prices, restaurant charges and coupon
// discounts for team carts. The catalog itself is owned elsewhere; this
// package only reads it.
package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/money"
)

// RestaurantCharges are the restaurant-level inputs to a cart's grand total.
type RestaurantCharges struct {
	RestaurantID uuid.UUID
	Name         string
	Currency     string
	TaxRateBps   int
	DeliveryFee  money.Money
}

// LinePrice is the current unit price of a menu item with its selections applied.
type LinePrice struct {
	MenuItemID uuid.UUID
	Name       string
	UnitPrice  money.Money
}

// CouponQuote is an accepted coupon and the discount it yields on a subtotal.
type CouponQuote struct {
	CouponID uuid.UUID
	Code     string
	Discount money.Money
}

// Provider is the snapshot pricing collaborator consumed by carts.
// Unknown or unavailable inputs are reported as validation errors.
type Provider interface {
	Restaurant(ctx context.Context, restaurantID uuid.UUID) (*RestaurantCharges, error)
	PriceItem(ctx context.Context, restaurantID, menuItemID uuid.UUID, customizations models.Customizations) (*LinePrice, error)
	EvaluateCoupon(ctx context.Context, restaurantID uuid.UUID, code string, subtotal money.Money, now time.Time) (*CouponQuote, error)
}

// Tax applies a basis-point rate to base, rounding half away from zero.
func Tax(base money.Money, rateBps int) money.Money {
	if rateBps <= 0 || base.Amount <= 0 {
		return money.Zero(base.Currency)
	}
	taxed := base.Decimal().Mul(decimalFromBps(rateBps))
	return money.FromDecimal(taxed, base.Currency)
}
