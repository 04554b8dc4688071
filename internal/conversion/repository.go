package conversion

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/teamcart-backend/pkg/db"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
)

const uxOrdersTeamCart = "ux_orders_team_cart"

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(conn *gorm.DB) *OrderRepository {
	return &OrderRepository{db: conn}
}

// Create inserts the order with its items and payment transactions inside tx.
func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if err := tx.WithContext(ctx).Create(order).Error; err != nil {
		if db.IsUniqueViolation(err, uxOrdersTeamCart) {
			return pkgerrors.New(pkgerrors.CodeConflict, "already converted")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
	}
	return nil
}

func (r *OrderRepository) FindByTeamCart(ctx context.Context, cartID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Transactions").
		Where("team_cart_id = ?", cartID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &order, nil
}
