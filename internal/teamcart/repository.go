package teamcart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/teamcart-backend/pkg/db"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
)

const (
	uxMemberUser        = "ux_team_cart_members_cart_user"
	uxPaymentReference  = "ux_team_cart_member_payments_reference"
	uxPaymentAllocation = "ux_team_cart_member_payments_allocation"
)

// Store is the durable cart store used by commands, sweeps and projections.
type Store interface {
	Load(ctx context.Context, cartID uuid.UUID) (*Cart, error)
	Insert(ctx context.Context, tx *gorm.DB, cart *Cart) error
	Save(ctx context.Context, tx *gorm.DB, cart *Cart) error
	FindCartIDByPaymentReference(ctx context.Context, reference string) (uuid.UUID, error)
	ListExpirable(ctx context.Context, now time.Time, maxLifetime time.Duration, limit int) ([]uuid.UUID, error)
	ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error)
}

// Repository persists carts with gorm.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// Load reads a cart with its members, items and payment rows.
func (r *Repository) Load(ctx context.Context, cartID uuid.UUID) (*Cart, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}
	var rec models.TeamCart
	err := r.db.WithContext(ctx).
		Preload("Members", func(tx *gorm.DB) *gorm.DB { return tx.Order("joined_at ASC, id ASC") }).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") }).
		Preload("Payments", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") }).
		Where("id = ?", cartID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "team cart not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load team cart")
	}
	normalizeTimes(&rec)
	return Rehydrate(&rec), nil
}

// normalizeTimes pins loaded timestamps to UTC so comparisons do not depend
// on the driver's location handling.
func normalizeTimes(rec *models.TeamCart) {
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	rec.ShareTokenExpiresAt = rec.ShareTokenExpiresAt.UTC()
	for _, t := range []**time.Time{&rec.Deadline, &rec.LockedAt, &rec.ExpiredAt} {
		if *t != nil {
			v := (**t).UTC()
			*t = &v
		}
	}
	for i := range rec.Members {
		rec.Members[i].JoinedAt = rec.Members[i].JoinedAt.UTC()
	}
}

// Insert writes a newly created cart and its host member.
func (r *Repository) Insert(ctx context.Context, tx *gorm.DB, cart *Cart) error {
	rec := cart.rec
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(rec).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert team cart")
	}
	for i := range rec.Members {
		if err := tx.WithContext(ctx).Create(&rec.Members[i]).Error; err != nil {
			return mapWriteError(err, "insert team cart member")
		}
	}
	cart.markSaved()
	return nil
}

// Save applies the cart's pending changes guarded by its version. Zero rows
// updated means another command won the race.
func (r *Repository) Save(ctx context.Context, tx *gorm.DB, cart *Cart) error {
	if !cart.HasChanges() {
		return nil
	}
	rec := cart.rec
	conn := tx.WithContext(ctx)

	res := conn.Model(&models.TeamCart{}).
		Where("id = ? AND version = ?", rec.ID, rec.Version).
		Updates(map[string]any{
			"status":             rec.Status,
			"tip_cents":          rec.TipCents,
			"coupon_id":          rec.CouponID,
			"coupon_code":        rec.CouponCode,
			"discount_cents":     rec.DiscountCents,
			"subtotal_cents":     rec.SubtotalCents,
			"tax_cents":          rec.TaxCents,
			"delivery_fee_cents": rec.DeliveryFeeCents,
			"allocation_version": rec.AllocationVersion,
			"converted_order_id": rec.ConvertedOrderID,
			"locked_at":          rec.LockedAt,
			"expired_at":         rec.ExpiredAt,
			"updated_at":         rec.UpdatedAt,
			"version":            gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update team cart")
	}
	if res.RowsAffected == 0 {
		return staleVersion()
	}

	changes := cart.changes
	for _, id := range changes.insertedMembers {
		member, _ := cart.Member(id)
		if err := conn.Create(&member).Error; err != nil {
			return mapWriteError(err, "insert team cart member")
		}
	}
	if len(changes.deletedItems) > 0 {
		if err := conn.Where("cart_id = ? AND id IN ?", rec.ID, changes.deletedItems).
			Delete(&models.TeamCartItem{}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete team cart items")
		}
	}
	for _, id := range changes.insertedItems {
		item, ok := findItem(rec, id)
		if !ok {
			continue
		}
		if err := conn.Create(&item).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert team cart item")
		}
	}
	for _, id := range changes.updatedItems {
		item, ok := findItem(rec, id)
		if !ok {
			continue
		}
		if err := conn.Model(&models.TeamCartItem{}).Where("id = ?", id).Updates(map[string]any{
			"quantity":          item.Quantity,
			"snapshot_name":     item.SnapshotName,
			"unit_price_cents":  item.UnitPriceCents,
			"snapshot_currency": item.SnapshotCurrency,
			"updated_at":        item.UpdatedAt,
		}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update team cart item")
		}
	}
	if changes.purgePayments {
		if err := conn.Where("cart_id = ? AND status <> ?", rec.ID, enums.PaymentStatusCommitted).
			Delete(&models.TeamCartMemberPayment{}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge pending payments")
		}
	}
	for _, id := range changes.insertedPayments {
		row, ok := findPayment(rec, id)
		if !ok {
			continue
		}
		if err := conn.Create(&row).Error; err != nil {
			return mapWriteError(err, "insert payment row")
		}
	}
	for _, id := range changes.updatedPayments {
		row, ok := findPayment(rec, id)
		if !ok {
			continue
		}
		if err := conn.Model(&models.TeamCartMemberPayment{}).Where("id = ?", id).Updates(map[string]any{
			"status":             row.Status,
			"method":             row.Method,
			"external_reference": row.ExternalReference,
			"updated_at":         row.UpdatedAt,
		}).Error; err != nil {
			return mapWriteError(err, "update payment row")
		}
	}

	rec.Version++
	cart.changes = changeSet{}
	return nil
}

func findItem(rec *models.TeamCart, id uuid.UUID) (models.TeamCartItem, bool) {
	for _, item := range rec.Items {
		if item.ID == id {
			return item, true
		}
	}
	return models.TeamCartItem{}, false
}

func findPayment(rec *models.TeamCart, id uuid.UUID) (models.TeamCartMemberPayment, bool) {
	for _, p := range rec.Payments {
		if p.ID == id {
			return p, true
		}
	}
	return models.TeamCartMemberPayment{}, false
}

func mapWriteError(err error, op string) error {
	switch {
	case db.IsUniqueViolation(err, uxMemberUser):
		return pkgerrors.New(pkgerrors.CodeConflict, "user is already a member")
	case db.IsUniqueViolation(err, uxPaymentReference):
		return pkgerrors.New(pkgerrors.CodeConflict, "payment reference already recorded")
	case db.IsUniqueViolation(err, uxPaymentAllocation):
		return staleVersion()
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
}

// FindCartIDByPaymentReference resolves a gateway reference to its cart.
func (r *Repository) FindCartIDByPaymentReference(ctx context.Context, reference string) (uuid.UUID, error) {
	var row models.TeamCartMemberPayment
	err := r.db.WithContext(ctx).
		Select("cart_id").
		Where("external_reference = ?", reference).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment reference not found")
	}
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find payment by reference")
	}
	return row.CartID, nil
}

// ListExpirable returns Open/Locked carts whose deadline passed, or that have
// no deadline and outlived maxLifetime.
func (r *Repository) ListExpirable(ctx context.Context, now time.Time, maxLifetime time.Duration, limit int) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).
		Model(&models.TeamCart{}).
		Where("status IN ?", []enums.TeamCartStatus{enums.TeamCartStatusOpen, enums.TeamCartStatusLocked})
	if maxLifetime > 0 {
		query = query.Where("((deadline IS NOT NULL AND deadline <= ?) OR (deadline IS NULL AND created_at <= ?))", now, now.Add(-maxLifetime))
	} else {
		query = query.Where("deadline IS NOT NULL AND deadline <= ?", now)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var ids []uuid.UUID
	if err := query.Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expirable carts")
	}
	return ids, nil
}

// ListUpdatedSince returns carts touched at or after since, newest first.
func (r *Repository) ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).
		Model(&models.TeamCart{}).
		Where("updated_at >= ?", since).
		Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var ids []uuid.UUID
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list updated carts")
	}
	return ids, nil
}
