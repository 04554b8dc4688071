// Package conversion turns a fully settled team cart into a placed order.
package conversion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/money"
)

const maxNotesLength = 500

type ConvertInput struct {
	CartID          uuid.UUID
	Actor           teamcart.Actor
	DeliveryAddress string
	Notes           *string
}

type OrderItemView struct {
	ID             uuid.UUID             `json:"id"`
	MenuItemID     uuid.UUID             `json:"menu_item_id"`
	MemberID       uuid.UUID             `json:"member_id"`
	Name           string                `json:"name"`
	Quantity       int                   `json:"quantity"`
	Customizations models.Customizations `json:"customizations"`
	UnitPrice      money.Money           `json:"unit_price"`
	LineTotal      money.Money           `json:"line_total"`
}

type TransactionView struct {
	MemberID          uuid.UUID           `json:"member_id"`
	Amount            money.Money         `json:"amount"`
	Method            enums.PaymentMethod `json:"method"`
	ExternalReference *string             `json:"external_reference,omitempty"`
}

type OrderView struct {
	ID              uuid.UUID         `json:"id"`
	TeamCartID      uuid.UUID         `json:"team_cart_id"`
	RestaurantID    uuid.UUID         `json:"restaurant_id"`
	DeliveryAddress string            `json:"delivery_address"`
	Notes           *string           `json:"notes,omitempty"`
	Subtotal        money.Money       `json:"subtotal"`
	Discount        money.Money       `json:"discount"`
	Tax             money.Money       `json:"tax"`
	DeliveryFee     money.Money       `json:"delivery_fee"`
	Tip             money.Money       `json:"tip"`
	Total           money.Money       `json:"total"`
	Items           []OrderItemView   `json:"items"`
	Transactions    []TransactionView `json:"transactions"`
}

type Service interface {
	Convert(ctx context.Context, input ConvertInput) (*OrderView, error)
}

type orderWriter interface {
	Create(ctx context.Context, tx *gorm.DB, order *models.Order) error
}

type ServiceConfig struct {
	Executor *teamcart.Executor
	Sheets   *teamcart.SheetBuilder
	Orders   orderWriter
	Logger   *logger.Logger
}

type service struct {
	exec   *teamcart.Executor
	sheets *teamcart.SheetBuilder
	orders orderWriter
	logg   *logger.Logger
}

func NewService(cfg ServiceConfig) (Service, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor required")
	}
	if cfg.Sheets == nil {
		return nil, fmt.Errorf("sheet builder required")
	}
	if cfg.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{exec: cfg.Executor, sheets: cfg.Sheets, orders: cfg.Orders, logg: cfg.Logger}, nil
}

// Convert places the order for a locked, fully settled cart. The order rows
// and the Converted transition commit together under the cart's version
// check, so concurrent calls yield one order and Conflict for the rest.
func (s *service) Convert(ctx context.Context, input ConvertInput) (*OrderView, error) {
	address := strings.TrimSpace(input.DeliveryAddress)
	if address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address required")
	}
	notes := normalizeNotes(input.Notes)
	if notes != nil && len(*notes) > maxNotesLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "notes must be at most %d characters", maxNotesLength)
	}

	var order *models.Order
	_, err := s.exec.Execute(ctx, teamcart.Mutation{
		Kind:   teamcart.CommandConvert,
		CartID: input.CartID,
		Apply: func(ctx context.Context, cart *teamcart.Cart, now time.Time) error {
			if err := cart.CheckConvertible(input.Actor); err != nil {
				return err
			}
			sheet, err := s.sheets.Build(ctx, cart.Record())
			if err != nil {
				return err
			}
			if missing := sheet.Unavailable(); len(missing) > 0 {
				names := make([]string, 0, len(missing))
				for _, line := range missing {
					names = append(names, line.Reason)
				}
				return pkgerrors.New(pkgerrors.CodeValidation, "items can no longer be ordered").
					WithDetails(map[string]any{"unavailable": names})
			}
			order = buildOrder(cart, sheet, address, notes, now)
			return cart.Convert(now, input.Actor, order.ID, sheet.Lines, order.TotalCents)
		},
		Persist: func(ctx context.Context, tx *gorm.DB, _ *teamcart.Cart) error {
			return s.orders.Create(ctx, tx, order)
		},
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"cart_id":  input.CartID.String(),
		"order_id": order.ID.String(),
	}), "team cart converted")
	return orderView(order), nil
}

// buildOrder prices lines at conversion time and carries the settled
// totals, which are what the members paid.
func buildOrder(cart *teamcart.Cart, sheet *teamcart.PriceSheet, address string, notes *string, now time.Time) *models.Order {
	rec := cart.Record()
	orderID := uuid.New()
	order := &models.Order{
		ID:               orderID,
		TeamCartID:       rec.ID,
		RestaurantID:     rec.RestaurantID,
		HostUserID:       rec.HostUserID,
		DeliveryAddress:  address,
		Notes:            notes,
		Currency:         rec.Currency,
		SubtotalCents:    rec.SubtotalCents,
		DiscountCents:    rec.DiscountCents,
		TaxCents:         rec.TaxCents,
		DeliveryFeeCents: rec.DeliveryFeeCents,
		TipCents:         rec.TipCents,
		TotalCents:       cart.GrandTotal(),
		CouponID:         rec.CouponID,
		CreatedAt:        now,
	}
	for _, line := range sheet.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ID:             uuid.New(),
			OrderID:        orderID,
			MenuItemID:     line.MenuItemID,
			MemberID:       line.MemberID,
			Name:           line.Name,
			UnitPriceCents: line.UnitPrice,
			Quantity:       line.Quantity,
			Customizations: line.Customizations,
			LineTotalCents: line.LineTotal,
		})
	}
	for _, p := range cart.CurrentPayments() {
		method := enums.PaymentMethodCashOnDelivery
		if p.Method != nil {
			method = *p.Method
		}
		order.Transactions = append(order.Transactions, models.OrderPaymentTransaction{
			ID:                uuid.New(),
			OrderID:           orderID,
			MemberID:          p.MemberID,
			AmountCents:       p.AmountCents,
			Currency:          p.Currency,
			Method:            method,
			ExternalReference: p.ExternalReference,
			CreatedAt:         now,
		})
	}
	return order
}

func normalizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func orderView(o *models.Order) *OrderView {
	cur := o.Currency
	view := &OrderView{
		ID:              o.ID,
		TeamCartID:      o.TeamCartID,
		RestaurantID:    o.RestaurantID,
		DeliveryAddress: o.DeliveryAddress,
		Notes:           o.Notes,
		Subtotal:        money.New(o.SubtotalCents, cur),
		Discount:        money.New(o.DiscountCents, cur),
		Tax:             money.New(o.TaxCents, cur),
		DeliveryFee:     money.New(o.DeliveryFeeCents, cur),
		Tip:             money.New(o.TipCents, cur),
		Total:           money.New(o.TotalCents, cur),
		Items:           make([]OrderItemView, 0, len(o.Items)),
		Transactions:    make([]TransactionView, 0, len(o.Transactions)),
	}
	for _, item := range o.Items {
		view.Items = append(view.Items, OrderItemView{
			ID:             item.ID,
			MenuItemID:     item.MenuItemID,
			MemberID:       item.MemberID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			Customizations: item.Customizations,
			UnitPrice:      money.New(item.UnitPriceCents, cur),
			LineTotal:      money.New(item.LineTotalCents, cur),
		})
	}
	for _, tx := range o.Transactions {
		view.Transactions = append(view.Transactions, TransactionView{
			MemberID:          tx.MemberID,
			Amount:            money.New(tx.AmountCents, tx.Currency),
			Method:            tx.Method,
			ExternalReference: tx.ExternalReference,
		})
	}
	return view
}
