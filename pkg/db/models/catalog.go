package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
)

// Catalog tables are owned by the menu service; this module only reads them.

type Restaurant struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name        string          `gorm:"column:name;not null"`
	Currency    string          `gorm:"column:currency;not null"`
	TaxRateBps  int             `gorm:"column:tax_rate_bps;not null;default:0"`
	DeliveryFee decimal.Decimal `gorm:"column:delivery_fee;type:numeric(12,2);not null"`
	Active      bool            `gorm:"column:active;not null;default:true"`
}

func (Restaurant) TableName() string { return "restaurants" }

type MenuItem struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	RestaurantID uuid.UUID       `gorm:"column:restaurant_id;type:uuid;not null;index"`
	Name         string          `gorm:"column:name;not null"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Currency     string          `gorm:"column:currency;not null"`
	Available    bool            `gorm:"column:available;not null;default:true"`

	Options []MenuItemOption `gorm:"foreignKey:MenuItemID"`
}

func (MenuItem) TableName() string { return "menu_items" }

type MenuItemOption struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	MenuItemID uuid.UUID       `gorm:"column:menu_item_id;type:uuid;not null;index"`
	GroupName  string          `gorm:"column:group_name;not null"`
	ChoiceName string          `gorm:"column:choice_name;not null"`
	PriceDelta decimal.Decimal `gorm:"column:price_delta;type:numeric(12,2);not null"`
}

func (MenuItemOption) TableName() string { return "menu_item_options" }

type Coupon struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	RestaurantID *uuid.UUID       `gorm:"column:restaurant_id;type:uuid"`
	Code         string           `gorm:"column:code;not null;uniqueIndex"`
	Type         enums.CouponType `gorm:"column:type;type:coupon_type;not null"`
	Value        decimal.Decimal  `gorm:"column:value;type:numeric(12,2);not null"`
	MinSubtotal  decimal.Decimal  `gorm:"column:min_subtotal;type:numeric(12,2);not null"`
	StartsAt     *time.Time       `gorm:"column:starts_at"`
	EndsAt       *time.Time       `gorm:"column:ends_at"`
	UsageLimit   *int             `gorm:"column:usage_limit"`
	UsageCount   int              `gorm:"column:usage_count;not null;default:0"`
	Active       bool             `gorm:"column:active;not null;default:true"`
}

func (Coupon) TableName() string { return "coupons" }
