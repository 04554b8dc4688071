package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
)

// TeamCart is the durable record of a shared group cart.
// CreatedAt/UpdatedAt are assigned by the aggregate, not by gorm.
type TeamCart struct {
	ID                  uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	RestaurantID        uuid.UUID            `gorm:"column:restaurant_id;type:uuid;not null"`
	HostUserID          uuid.UUID            `gorm:"column:host_user_id;type:uuid;not null"`
	Status              enums.TeamCartStatus `gorm:"column:status;type:team_cart_status;not null"`
	ShareToken          string               `gorm:"column:share_token;not null;uniqueIndex:ux_team_carts_share_token"`
	ShareTokenExpiresAt time.Time            `gorm:"column:share_token_expires_at;not null"`
	Deadline            *time.Time           `gorm:"column:deadline"`
	Currency            string               `gorm:"column:currency;not null"`
	TipCents            int64                `gorm:"column:tip_cents;not null;default:0"`
	CouponID            *uuid.UUID           `gorm:"column:coupon_id;type:uuid"`
	CouponCode          *string              `gorm:"column:coupon_code"`
	DiscountCents       int64                `gorm:"column:discount_cents;not null;default:0"`
	SubtotalCents       int64                `gorm:"column:subtotal_cents;not null;default:0"`
	TaxCents            int64                `gorm:"column:tax_cents;not null;default:0"`
	DeliveryFeeCents    int64                `gorm:"column:delivery_fee_cents;not null;default:0"`
	AllocationVersion   int                  `gorm:"column:allocation_version;not null;default:0"`
	ConvertedOrderID    *uuid.UUID           `gorm:"column:converted_order_id;type:uuid"`
	LockedAt            *time.Time           `gorm:"column:locked_at"`
	ExpiredAt           *time.Time           `gorm:"column:expired_at"`
	Version             int64                `gorm:"column:version;not null;default:0"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime:false"`

	Members  []TeamCartMember        `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	Items    []TeamCartItem          `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	Payments []TeamCartMemberPayment `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
}

func (TeamCart) TableName() string { return "team_carts" }

// TeamCartMember is a participant; UserID is nil for guests.
type TeamCartMember struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	CartID      uuid.UUID        `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_team_cart_members_cart_user"`
	UserID      *uuid.UUID       `gorm:"column:user_id;type:uuid;uniqueIndex:ux_team_cart_members_cart_user"`
	DisplayName string           `gorm:"column:display_name;not null"`
	Role        enums.MemberRole `gorm:"column:role;type:team_cart_member_role;not null"`
	JoinedAt    time.Time        `gorm:"column:joined_at;not null"`
}

func (TeamCartMember) TableName() string { return "team_cart_members" }

// TeamCartItem is a line added by one member. Snapshot columns stay
// empty until the cart is converted.
type TeamCartItem struct {
	ID               uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	CartID           uuid.UUID      `gorm:"column:cart_id;type:uuid;not null;index"`
	AddedByMemberID  uuid.UUID      `gorm:"column:added_by_member_id;type:uuid;not null"`
	MenuItemID       uuid.UUID      `gorm:"column:menu_item_id;type:uuid;not null"`
	Quantity         int            `gorm:"column:quantity;not null"`
	Customizations   Customizations `gorm:"column:customizations;type:jsonb;serializer:json"`
	SnapshotName     *string        `gorm:"column:snapshot_name"`
	UnitPriceCents   *int64         `gorm:"column:unit_price_cents"`
	SnapshotCurrency *string        `gorm:"column:snapshot_currency"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (TeamCartItem) TableName() string { return "team_cart_items" }

// TeamCartMemberPayment is one member's share of a given allocation.
type TeamCartMemberPayment struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	CartID            uuid.UUID            `gorm:"column:cart_id;type:uuid;not null;index"`
	MemberID          uuid.UUID            `gorm:"column:member_id;type:uuid;not null"`
	MemberUserID      *uuid.UUID           `gorm:"column:member_user_id;type:uuid"`
	AmountCents       int64                `gorm:"column:amount_cents;not null"`
	Currency          string               `gorm:"column:currency;not null"`
	Method            *enums.PaymentMethod `gorm:"column:method;type:team_cart_payment_method"`
	Status            enums.PaymentStatus  `gorm:"column:status;type:team_cart_payment_status;not null"`
	ExternalReference *string              `gorm:"column:external_reference;index"`
	AllocationVersion int                  `gorm:"column:allocation_version;not null"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (TeamCartMemberPayment) TableName() string { return "team_cart_member_payments" }
