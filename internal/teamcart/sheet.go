package teamcart

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/internal/pricing"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/money"
)

// PricedLine is a cart item with its current (or snapshotted) price.
type PricedLine struct {
	ItemID         uuid.UUID
	MemberID       uuid.UUID
	MenuItemID     uuid.UUID
	Name           string
	Quantity       int
	Customizations models.Customizations
	UnitPrice      int64
	LineTotal      int64
	Available      bool
	Reason         string
}

// PriceSheet is the priced view of a cart's items plus restaurant charges.
type PriceSheet struct {
	Currency    string
	Lines       []PricedLine
	TaxRateBps  int
	DeliveryFee int64
}

func (s *PriceSheet) Subtotal() int64 {
	var total int64
	for _, line := range s.Lines {
		total += line.LineTotal
	}
	return total
}

// MemberSubtotals sums line totals per adding member. Members with only
// zero-priced lines still appear.
func (s *PriceSheet) MemberSubtotals() map[uuid.UUID]int64 {
	out := make(map[uuid.UUID]int64)
	for _, line := range s.Lines {
		out[line.MemberID] += line.LineTotal
	}
	return out
}

// Unavailable lists lines the catalog no longer prices.
func (s *PriceSheet) Unavailable() []PricedLine {
	var out []PricedLine
	for _, line := range s.Lines {
		if !line.Available {
			out = append(out, line)
		}
	}
	return out
}

// Line returns the priced line for itemID.
func (s *PriceSheet) Line(itemID uuid.UUID) (PricedLine, bool) {
	for _, line := range s.Lines {
		if line.ItemID == itemID {
			return line, true
		}
	}
	return PricedLine{}, false
}

// SheetBuilder prices carts through the pricing provider.
type SheetBuilder struct {
	provider pricing.Provider
}

func NewSheetBuilder(provider pricing.Provider) *SheetBuilder {
	return &SheetBuilder{provider: provider}
}

// Build prices every item live. Items carrying a conversion snapshot use it
// instead. Items the catalog rejects are kept as unavailable zero-priced
// lines so reads never fail on a single delisted item.
func (b *SheetBuilder) Build(ctx context.Context, rec *models.TeamCart) (*PriceSheet, error) {
	charges, err := b.provider.Restaurant(ctx, rec.RestaurantID)
	if err != nil {
		return nil, err
	}
	sheet := &PriceSheet{
		Currency:    rec.Currency,
		TaxRateBps:  charges.TaxRateBps,
		DeliveryFee: charges.DeliveryFee.Amount,
		Lines:       make([]PricedLine, 0, len(rec.Items)),
	}
	for _, item := range rec.Items {
		line := PricedLine{
			ItemID:         item.ID,
			MemberID:       item.AddedByMemberID,
			MenuItemID:     item.MenuItemID,
			Quantity:       item.Quantity,
			Customizations: item.Customizations,
			Available:      true,
		}
		if item.UnitPriceCents != nil {
			line.UnitPrice = *item.UnitPriceCents
			if item.SnapshotName != nil {
				line.Name = *item.SnapshotName
			}
		} else {
			price, err := b.PriceItem(ctx, rec, item.MenuItemID, item.Customizations)
			switch {
			case err == nil:
				line.Name = price.Name
				line.UnitPrice = price.UnitPrice.Amount
			case pkgerrors.HasCode(err, pkgerrors.CodeValidation):
				line.Available = false
				line.Reason = pkgerrors.As(err).Message()
			default:
				return nil, err
			}
		}
		line.LineTotal = line.UnitPrice * int64(line.Quantity)
		sheet.Lines = append(sheet.Lines, line)
	}
	return sheet, nil
}

// PriceItem prices a single menu item and rejects currency drift.
func (b *SheetBuilder) PriceItem(ctx context.Context, rec *models.TeamCart, menuItemID uuid.UUID, customizations models.Customizations) (*pricing.LinePrice, error) {
	price, err := b.provider.PriceItem(ctx, rec.RestaurantID, menuItemID, customizations)
	if err != nil {
		return nil, err
	}
	if price.UnitPrice.Currency != money.NormalizeCurrency(rec.Currency) {
		return nil, validation("menu item is priced in %s, cart uses %s", price.UnitPrice.Currency, rec.Currency)
	}
	return price, nil
}

// Coupon re-evaluates the cart's coupon against subtotal.
func (b *SheetBuilder) Coupon(ctx context.Context, rec *models.TeamCart, code string, subtotal int64, now time.Time) (*pricing.CouponQuote, error) {
	return b.provider.EvaluateCoupon(ctx, rec.RestaurantID, code, money.New(subtotal, rec.Currency), now)
}
