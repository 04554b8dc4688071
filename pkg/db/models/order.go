package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
)

// Order is the placed order produced by converting a team cart.
type Order struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TeamCartID       uuid.UUID  `gorm:"column:team_cart_id;type:uuid;not null;uniqueIndex:ux_orders_team_cart"`
	RestaurantID     uuid.UUID  `gorm:"column:restaurant_id;type:uuid;not null"`
	HostUserID       uuid.UUID  `gorm:"column:host_user_id;type:uuid;not null"`
	DeliveryAddress  string     `gorm:"column:delivery_address;not null"`
	Notes            *string    `gorm:"column:notes"`
	Currency         string     `gorm:"column:currency;not null"`
	SubtotalCents    int64      `gorm:"column:subtotal_cents;not null"`
	DiscountCents    int64      `gorm:"column:discount_cents;not null"`
	TaxCents         int64      `gorm:"column:tax_cents;not null"`
	DeliveryFeeCents int64      `gorm:"column:delivery_fee_cents;not null"`
	TipCents         int64      `gorm:"column:tip_cents;not null"`
	TotalCents       int64      `gorm:"column:total_cents;not null"`
	CouponID         *uuid.UUID `gorm:"column:coupon_id;type:uuid"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`

	Items        []OrderItem               `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Transactions []OrderPaymentTransaction `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID      `gorm:"column:order_id;type:uuid;not null;index"`
	MenuItemID     uuid.UUID      `gorm:"column:menu_item_id;type:uuid;not null"`
	MemberID       uuid.UUID      `gorm:"column:member_id;type:uuid;not null"`
	Name           string         `gorm:"column:name;not null"`
	UnitPriceCents int64          `gorm:"column:unit_price_cents;not null"`
	Quantity       int            `gorm:"column:quantity;not null"`
	Customizations Customizations `gorm:"column:customizations;type:jsonb;serializer:json"`
	LineTotalCents int64          `gorm:"column:line_total_cents;not null"`
}

func (OrderItem) TableName() string { return "order_items" }

type OrderPaymentTransaction struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	MemberID          uuid.UUID           `gorm:"column:member_id;type:uuid;not null"`
	AmountCents       int64               `gorm:"column:amount_cents;not null"`
	Currency          string              `gorm:"column:currency;not null"`
	Method            enums.PaymentMethod `gorm:"column:method;type:team_cart_payment_method;not null"`
	ExternalReference *string             `gorm:"column:external_reference"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (OrderPaymentTransaction) TableName() string { return "order_payment_transactions" }
