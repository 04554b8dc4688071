package teamcart

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/internal/pricing"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/angelmondragon/teamcart-backend/pkg/money"
)

// CartView is the read model served to members and cached by the projector.
type CartView struct {
	ID                  uuid.UUID            `json:"id"`
	RestaurantID        uuid.UUID            `json:"restaurant_id"`
	HostUserID          uuid.UUID            `json:"host_user_id"`
	Status              enums.TeamCartStatus `json:"status"`
	Version             int64                `json:"version"`
	Currency            string               `json:"currency"`
	ShareTokenExpiresAt time.Time            `json:"share_token_expires_at"`
	Deadline            *time.Time           `json:"deadline,omitempty"`
	CouponCode          *string              `json:"coupon_code,omitempty"`
	ConvertedOrderID    *uuid.UUID           `json:"converted_order_id,omitempty"`
	Members             []MemberView         `json:"members"`
	Items               []ItemView           `json:"items"`
	Totals              TotalsView           `json:"totals"`
	AllocationVersion   int                  `json:"allocation_version"`
	Payments            []PaymentView        `json:"payments"`
	FullySettled        bool                 `json:"fully_settled"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

type MemberView struct {
	ID          uuid.UUID        `json:"id"`
	UserID      *uuid.UUID       `json:"user_id,omitempty"`
	DisplayName string           `json:"display_name"`
	Role        enums.MemberRole `json:"role"`
	JoinedAt    time.Time        `json:"joined_at"`
	Subtotal    money.Money      `json:"subtotal"`
}

type ItemView struct {
	ID              uuid.UUID             `json:"id"`
	AddedByMemberID uuid.UUID             `json:"added_by_member_id"`
	MenuItemID      uuid.UUID             `json:"menu_item_id"`
	Name            string                `json:"name"`
	Quantity        int                   `json:"quantity"`
	Customizations  models.Customizations `json:"customizations"`
	UnitPrice       money.Money           `json:"unit_price"`
	LineTotal       money.Money           `json:"line_total"`
	Available       bool                  `json:"available"`
	UnavailableNote string                `json:"unavailable_reason,omitempty"`
}

type TotalsView struct {
	Subtotal    money.Money `json:"subtotal"`
	Discount    money.Money `json:"discount"`
	Tax         money.Money `json:"tax"`
	DeliveryFee money.Money `json:"delivery_fee"`
	Tip         money.Money `json:"tip"`
	Total       money.Money `json:"total"`
}

type PaymentView struct {
	ID                uuid.UUID            `json:"id"`
	MemberID          uuid.UUID            `json:"member_id"`
	Amount            money.Money          `json:"amount"`
	Method            *enums.PaymentMethod `json:"method,omitempty"`
	Status            enums.PaymentStatus  `json:"status"`
	ExternalReference *string              `json:"external_reference,omitempty"`
}

// ViewBuilder renders carts from durable state.
type ViewBuilder struct {
	store  Store
	sheets *SheetBuilder
}

func NewViewBuilder(store Store, sheets *SheetBuilder) *ViewBuilder {
	return &ViewBuilder{store: store, sheets: sheets}
}

// Load reads the cart and renders its view.
func (b *ViewBuilder) Load(ctx context.Context, cartID uuid.UUID) (*CartView, error) {
	cart, err := b.store.Load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return b.Render(ctx, cart)
}

// Render prices the cart and builds the view.
func (b *ViewBuilder) Render(ctx context.Context, cart *Cart) (*CartView, error) {
	sheet, err := b.sheets.Build(ctx, cart.rec)
	if err != nil {
		return nil, err
	}
	return BuildView(cart, sheet), nil
}

// BuildView combines the cart with its price sheet. Once an allocation
// exists the captured totals are reported; before that they are live.
func BuildView(cart *Cart, sheet *PriceSheet) *CartView {
	rec := cart.rec
	cur := rec.Currency
	view := &CartView{
		ID:                  rec.ID,
		RestaurantID:        rec.RestaurantID,
		HostUserID:          rec.HostUserID,
		Status:              rec.Status,
		Version:             rec.Version,
		Currency:            cur,
		ShareTokenExpiresAt: rec.ShareTokenExpiresAt,
		Deadline:            rec.Deadline,
		CouponCode:          rec.CouponCode,
		ConvertedOrderID:    rec.ConvertedOrderID,
		AllocationVersion:   rec.AllocationVersion,
		FullySettled:        cart.IsFullySettled(),
		UpdatedAt:           rec.UpdatedAt,
		Members:             make([]MemberView, 0, len(rec.Members)),
		Items:               make([]ItemView, 0, len(sheet.Lines)),
		Payments:            []PaymentView{},
	}

	subtotals := sheet.MemberSubtotals()
	for _, m := range rec.Members {
		view.Members = append(view.Members, MemberView{
			ID:          m.ID,
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			JoinedAt:    m.JoinedAt,
			Subtotal:    money.New(subtotals[m.ID], cur),
		})
	}
	for _, line := range sheet.Lines {
		view.Items = append(view.Items, ItemView{
			ID:              line.ItemID,
			AddedByMemberID: line.MemberID,
			MenuItemID:      line.MenuItemID,
			Name:            line.Name,
			Quantity:        line.Quantity,
			Customizations:  line.Customizations,
			UnitPrice:       money.New(line.UnitPrice, cur),
			LineTotal:       money.New(line.LineTotal, cur),
			Available:       line.Available,
			UnavailableNote: line.Reason,
		})
	}
	for _, p := range cart.CurrentPayments() {
		view.Payments = append(view.Payments, NewPaymentView(p))
	}
	view.Totals = totalsFor(cart, sheet)
	return view
}

// NewPaymentView renders one settlement row.
func NewPaymentView(p models.TeamCartMemberPayment) PaymentView {
	return PaymentView{
		ID:                p.ID,
		MemberID:          p.MemberID,
		Amount:            money.New(p.AmountCents, p.Currency),
		Method:            p.Method,
		Status:            p.Status,
		ExternalReference: p.ExternalReference,
	}
}

func totalsFor(cart *Cart, sheet *PriceSheet) TotalsView {
	rec := cart.rec
	cur := rec.Currency
	if rec.AllocationVersion > 0 && rec.Status != enums.TeamCartStatusOpen {
		return TotalsView{
			Subtotal:    money.New(rec.SubtotalCents, cur),
			Discount:    money.New(rec.DiscountCents, cur),
			Tax:         money.New(rec.TaxCents, cur),
			DeliveryFee: money.New(rec.DeliveryFeeCents, cur),
			Tip:         money.New(rec.TipCents, cur),
			Total:       money.New(cart.GrandTotal(), cur),
		}
	}
	subtotal := sheet.Subtotal()
	discount := min(rec.DiscountCents, subtotal)
	tax := pricing.Tax(money.New(subtotal-discount, cur), sheet.TaxRateBps).Amount
	total := subtotal - discount + tax + sheet.DeliveryFee + rec.TipCents
	return TotalsView{
		Subtotal:    money.New(subtotal, cur),
		Discount:    money.New(discount, cur),
		Tax:         money.New(tax, cur),
		DeliveryFee: money.New(sheet.DeliveryFee, cur),
		Tip:         money.New(rec.TipCents, cur),
		Total:       money.New(total, cur),
	}
}
