package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/money"
)

var hundred = decimal.NewFromInt(100)

func decimalFromBps(bps int) decimal.Decimal {
	return decimal.New(int64(bps), -4)
}

// Catalog answers pricing questions from the restaurant catalog tables.
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Restaurant(ctx context.Context, restaurantID uuid.UUID) (*RestaurantCharges, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id required")
	}
	var restaurant models.Restaurant
	err := c.db.WithContext(ctx).Where("id = ?", restaurantID).First(&restaurant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load restaurant")
	}
	if !restaurant.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant is not accepting orders")
	}
	return &RestaurantCharges{
		RestaurantID: restaurant.ID,
		Name:         restaurant.Name,
		Currency:     money.NormalizeCurrency(restaurant.Currency),
		TaxRateBps:   restaurant.TaxRateBps,
		DeliveryFee:  money.FromDecimal(restaurant.DeliveryFee, restaurant.Currency),
	}, nil
}

func (c *Catalog) PriceItem(ctx context.Context, restaurantID, menuItemID uuid.UUID, customizations models.Customizations) (*LinePrice, error) {
	var item models.MenuItem
	err := c.db.WithContext(ctx).
		Preload("Options").
		Where("id = ? AND restaurant_id = ?", menuItemID, restaurantID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu item")
	}
	if !item.Available {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is unavailable", item.Name)
	}

	price := item.Price
	seenGroups := make(map[string]struct{}, len(customizations))
	for _, sel := range customizations {
		group := strings.ToLower(strings.TrimSpace(sel.Group))
		if _, dup := seenGroups[group]; dup {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "customization group %q selected twice", sel.Group)
		}
		seenGroups[group] = struct{}{}

		option, ok := findOption(item.Options, sel)
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown customization %s=%s", sel.Group, sel.Choice)
		}
		price = price.Add(option.PriceDelta)
	}
	if price.IsNegative() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s resolves to a negative price", item.Name)
	}

	return &LinePrice{
		MenuItemID: item.ID,
		Name:       item.Name,
		UnitPrice:  money.FromDecimal(price, item.Currency),
	}, nil
}

func findOption(options []models.MenuItemOption, sel models.Customization) (models.MenuItemOption, bool) {
	for _, option := range options {
		if strings.EqualFold(option.GroupName, strings.TrimSpace(sel.Group)) &&
			strings.EqualFold(option.ChoiceName, strings.TrimSpace(sel.Choice)) {
			return option, true
		}
	}
	return models.MenuItemOption{}, false
}

func (c *Catalog) EvaluateCoupon(ctx context.Context, restaurantID uuid.UUID, code string, subtotal money.Money, now time.Time) (*CouponQuote, error) {
	normalized := NormalizeCouponCode(code)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code required")
	}
	var coupon models.Coupon
	err := c.db.WithContext(ctx).Where("code = ?", normalized).First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if err := checkEligibility(coupon, restaurantID, subtotal, now); err != nil {
		return nil, err
	}

	discount, err := couponDiscount(coupon, subtotal)
	if err != nil {
		return nil, err
	}
	return &CouponQuote{
		CouponID: coupon.ID,
		Code:     coupon.Code,
		Discount: discount,
	}, nil
}

// NormalizeCouponCode upper-cases and trims a user-entered code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func checkEligibility(coupon models.Coupon, restaurantID uuid.UUID, subtotal money.Money, now time.Time) error {
	reject := func(reason string) error {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon rejected: "+reason).
			WithDetails(map[string]any{"code": coupon.Code, "reason": reason})
	}
	switch {
	case !coupon.Active:
		return reject("inactive")
	case coupon.RestaurantID != nil && *coupon.RestaurantID != restaurantID:
		return reject("not valid for this restaurant")
	case coupon.StartsAt != nil && now.Before(*coupon.StartsAt):
		return reject("not started")
	case coupon.EndsAt != nil && !now.Before(*coupon.EndsAt):
		return reject("ended")
	case coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit:
		return reject("usage limit reached")
	case subtotal.Decimal().LessThan(coupon.MinSubtotal):
		return reject(fmt.Sprintf("minimum subtotal is %s", coupon.MinSubtotal.StringFixed(money.Exponent(subtotal.Currency))))
	}
	return nil
}

// couponDiscount never exceeds the subtotal; percentages round down.
func couponDiscount(coupon models.Coupon, subtotal money.Money) (money.Money, error) {
	var discount money.Money
	switch coupon.Type {
	case enums.CouponTypeFixed:
		discount = money.FromDecimal(coupon.Value, subtotal.Currency)
	case enums.CouponTypePercent:
		if coupon.Value.GreaterThan(hundred) {
			return money.Money{}, pkgerrors.New(pkgerrors.CodeValidation, "coupon rejected: invalid percentage")
		}
		minor := decimal.NewFromInt(subtotal.Amount).Mul(coupon.Value).Div(hundred).Floor()
		discount = money.New(minor.IntPart(), subtotal.Currency)
	default:
		return money.Money{}, pkgerrors.Newf(pkgerrors.CodeValidation, "coupon rejected: unsupported type %q", coupon.Type)
	}
	if discount.IsNegative() {
		return money.Money{}, pkgerrors.New(pkgerrors.CodeValidation, "coupon rejected: negative value")
	}
	return discount.Min(subtotal), nil
}
