package teamcart

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/internal/pricing"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/money"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox/payloads"
)

const (
	defaultHostName      = "Host"
	maxDisplayNameLength = 64
	maxLineQuantity      = 99
)

// Actor is the authenticated member issuing a command.
type Actor struct {
	MemberID uuid.UUID
	UserID   *uuid.UUID
}

// Cart is the aggregate root. It mutates the loaded record in memory and
// remembers which rows changed; the repository persists them under the
// version check.
type Cart struct {
	rec     *models.TeamCart
	changes changeSet
	events  []outbox.DomainEvent
}

type changeSet struct {
	dirty            bool
	insertedMembers  []uuid.UUID
	insertedItems    []uuid.UUID
	updatedItems     []uuid.UUID
	deletedItems     []uuid.UUID
	purgePayments    bool
	insertedPayments []uuid.UUID
	updatedPayments  []uuid.UUID
}

// Rehydrate wraps a record loaded with its members, items and payments.
func Rehydrate(rec *models.TeamCart) *Cart {
	return &Cart{rec: rec}
}

// CreateParams carries the validated inputs of a new cart.
type CreateParams struct {
	CartID              uuid.UUID
	RestaurantID        uuid.UUID
	HostUserID          uuid.UUID
	HostName            string
	Currency            string
	Deadline            *time.Time
	ShareToken          string
	ShareTokenExpiresAt time.Time
}

// NewCart opens a cart with its host as the first member.
func NewCart(now time.Time, p CreateParams) (*Cart, error) {
	name := strings.TrimSpace(p.HostName)
	if name == "" {
		name = defaultHostName
	}
	switch {
	case p.RestaurantID == uuid.Nil:
		return nil, validation("restaurant id required")
	case p.HostUserID == uuid.Nil:
		return nil, validation("host user id required")
	case len(name) > maxDisplayNameLength:
		return nil, validation("display name must be at most %d characters", maxDisplayNameLength)
	case p.Deadline != nil && !p.Deadline.After(now):
		return nil, validation("deadline must be in the future")
	case strings.TrimSpace(p.ShareToken) == "":
		return nil, validation("share token required")
	case !p.ShareTokenExpiresAt.After(now):
		return nil, validation("share token expiry must be in the future")
	}
	if err := money.ValidateCurrency(p.Currency); err != nil {
		return nil, validation("%v", err)
	}

	id := p.CartID
	if id == uuid.Nil {
		id = uuid.New()
	}
	hostUserID := p.HostUserID
	host := models.TeamCartMember{
		ID:          uuid.New(),
		CartID:      id,
		UserID:      &hostUserID,
		DisplayName: name,
		Role:        enums.MemberRoleHost,
		JoinedAt:    now,
	}
	var deadline *time.Time
	if p.Deadline != nil {
		d := p.Deadline.UTC()
		deadline = &d
	}
	rec := &models.TeamCart{
		ID:                  id,
		RestaurantID:        p.RestaurantID,
		HostUserID:          p.HostUserID,
		Status:              enums.TeamCartStatusOpen,
		ShareToken:          p.ShareToken,
		ShareTokenExpiresAt: p.ShareTokenExpiresAt.UTC(),
		Deadline:            deadline,
		Currency:            money.NormalizeCurrency(p.Currency),
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
		Members:             []models.TeamCartMember{host},
	}
	cart := &Cart{rec: rec}
	cart.record(now, enums.EventTeamCartCreated, cart.memberRef(host.ID), payloads.TeamCartCreatedEvent{
		CartID:              id,
		RestaurantID:        rec.RestaurantID,
		HostUserID:          rec.HostUserID,
		Deadline:            rec.Deadline,
		ShareTokenExpiresAt: rec.ShareTokenExpiresAt,
	})
	return cart, nil
}

func (c *Cart) ID() uuid.UUID                { return c.rec.ID }
func (c *Cart) Status() enums.TeamCartStatus { return c.rec.Status }
func (c *Cart) Version() int64               { return c.rec.Version }

// Record exposes the underlying row for read paths. Callers must not mutate it.
func (c *Cart) Record() *models.TeamCart { return c.rec }

// HasChanges reports whether anything needs persisting.
func (c *Cart) HasChanges() bool { return c.changes.dirty }

// PendingEvents returns the domain events raised since load.
func (c *Cart) PendingEvents() []outbox.DomainEvent { return c.events }

func (c *Cart) markSaved() {
	c.changes = changeSet{}
	c.events = nil
}

// Host returns the host member.
func (c *Cart) Host() models.TeamCartMember {
	for _, m := range c.rec.Members {
		if m.Role == enums.MemberRoleHost {
			return m
		}
	}
	return models.TeamCartMember{}
}

// Member returns the member with id.
func (c *Cart) Member(id uuid.UUID) (models.TeamCartMember, bool) {
	for _, m := range c.rec.Members {
		if m.ID == id {
			return m, true
		}
	}
	return models.TeamCartMember{}, false
}

// ShouldExpire reports whether the deadline (or the maximum lifetime for
// carts without one) elapsed while the cart is still Open or Locked.
func (c *Cart) ShouldExpire(now time.Time, maxLifetime time.Duration) bool {
	if !c.rec.Status.CanExpire() {
		return false
	}
	if c.rec.Deadline != nil {
		return !now.Before(*c.rec.Deadline)
	}
	return maxLifetime > 0 && !now.Before(c.rec.CreatedAt.Add(maxLifetime))
}

// Expire moves an Open or Locked cart to Expired. It is a no-op on
// terminal carts and reports whether a transition happened.
func (c *Cart) Expire(now time.Time) bool {
	if !c.rec.Status.CanExpire() {
		return false
	}
	previous := c.rec.Status
	c.rec.Status = enums.TeamCartStatusExpired
	c.rec.ExpiredAt = &now
	c.touch(now)
	c.record(now, enums.EventTeamCartExpired, nil, payloads.TeamCartExpiredEvent{
		CartID:         c.rec.ID,
		PreviousStatus: previous,
		ExpiredAt:      now,
	})
	return true
}

// JoinParams are the inputs of a share-token join.
type JoinParams struct {
	ShareToken  string
	DisplayName string
	UserID      *uuid.UUID
}

// Join adds a member. An elapsed token or a cart that is not Open is
// reported as Expired.
func (c *Cart) Join(now time.Time, p JoinParams) (models.TeamCartMember, error) {
	if p.ShareToken != c.rec.ShareToken {
		return models.TeamCartMember{}, validation("share token is not valid for this cart")
	}
	if !now.Before(c.rec.ShareTokenExpiresAt) {
		return models.TeamCartMember{}, expired(MsgShareTokenExpired)
	}
	if c.rec.Status != enums.TeamCartStatusOpen {
		return models.TeamCartMember{}, expired(MsgNotAcceptingJoins)
	}
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		return models.TeamCartMember{}, validation("display name required")
	}
	if len(name) > maxDisplayNameLength {
		return models.TeamCartMember{}, validation("display name must be at most %d characters", maxDisplayNameLength)
	}
	if p.UserID != nil {
		for _, m := range c.rec.Members {
			if m.UserID != nil && *m.UserID == *p.UserID {
				return models.TeamCartMember{}, pkgerrors.New(pkgerrors.CodeConflict, "user is already a member")
			}
		}
	}

	member := models.TeamCartMember{
		ID:          uuid.New(),
		CartID:      c.rec.ID,
		UserID:      p.UserID,
		DisplayName: name,
		Role:        enums.MemberRoleMember,
		JoinedAt:    now,
	}
	c.rec.Members = append(c.rec.Members, member)
	c.changes.insertedMembers = append(c.changes.insertedMembers, member.ID)
	c.touch(now)
	c.record(now, enums.EventTeamCartMemberJoined, c.memberRef(member.ID), payloads.TeamCartMemberJoinedEvent{
		CartID:      c.rec.ID,
		MemberID:    member.ID,
		UserID:      member.UserID,
		DisplayName: member.DisplayName,
	})
	return member, nil
}

// AddItemParams describe a line to add. The menu item must already have been
// priced successfully by the caller.
type AddItemParams struct {
	MenuItemID     uuid.UUID
	Quantity       int
	Customizations models.Customizations
}

// AddItem appends a line, merging into the member's existing line for the
// same menu item and customizations.
func (c *Cart) AddItem(now time.Time, actor Actor, p AddItemParams) (models.TeamCartItem, error) {
	if err := c.requireOpen(); err != nil {
		return models.TeamCartItem{}, err
	}
	if _, err := c.requireMember(actor); err != nil {
		return models.TeamCartItem{}, err
	}
	if p.MenuItemID == uuid.Nil {
		return models.TeamCartItem{}, validation("menu item id required")
	}
	if p.Quantity <= 0 {
		return models.TeamCartItem{}, validation("quantity must be positive")
	}
	customizations := normalizeCustomizations(p.Customizations)
	key := customizations.Key()

	for i := range c.rec.Items {
		item := &c.rec.Items[i]
		if item.AddedByMemberID != actor.MemberID || item.MenuItemID != p.MenuItemID || item.Customizations.Key() != key {
			continue
		}
		merged := item.Quantity + p.Quantity
		if merged > maxLineQuantity {
			return models.TeamCartItem{}, validation("quantity must be at most %d", maxLineQuantity)
		}
		item.Quantity = merged
		item.UpdatedAt = now
		c.markItemUpdated(item.ID)
		c.touch(now)
		return *item, nil
	}
	if p.Quantity > maxLineQuantity {
		return models.TeamCartItem{}, validation("quantity must be at most %d", maxLineQuantity)
	}

	item := models.TeamCartItem{
		ID:              uuid.New(),
		CartID:          c.rec.ID,
		AddedByMemberID: actor.MemberID,
		MenuItemID:      p.MenuItemID,
		Quantity:        p.Quantity,
		Customizations:  customizations,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	c.rec.Items = append(c.rec.Items, item)
	c.changes.insertedItems = append(c.changes.insertedItems, item.ID)
	c.touch(now)
	return item, nil
}

// UpdateItemQuantity changes a line's quantity; owners and the host only.
func (c *Cart) UpdateItemQuantity(now time.Time, actor Actor, itemID uuid.UUID, quantity int) error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	if quantity <= 0 {
		return validation("quantity must be positive")
	}
	if quantity > maxLineQuantity {
		return validation("quantity must be at most %d", maxLineQuantity)
	}
	idx, err := c.ownedItem(actor, itemID)
	if err != nil {
		return err
	}
	item := &c.rec.Items[idx]
	if item.Quantity == quantity {
		return nil
	}
	item.Quantity = quantity
	item.UpdatedAt = now
	c.markItemUpdated(item.ID)
	c.touch(now)
	return nil
}

// RemoveItem deletes a line; owners and the host only.
func (c *Cart) RemoveItem(now time.Time, actor Actor, itemID uuid.UUID) error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	idx, err := c.ownedItem(actor, itemID)
	if err != nil {
		return err
	}
	c.rec.Items = append(c.rec.Items[:idx], c.rec.Items[idx+1:]...)
	c.changes.deletedItems = append(c.changes.deletedItems, itemID)
	c.touch(now)
	return nil
}

func (c *Cart) ownedItem(actor Actor, itemID uuid.UUID) (int, error) {
	member, err := c.requireMember(actor)
	if err != nil {
		return -1, err
	}
	for i, item := range c.rec.Items {
		if item.ID != itemID {
			continue
		}
		if item.AddedByMemberID != member.ID && member.Role != enums.MemberRoleHost {
			return -1, forbidden("only the item owner or host may change this item")
		}
		return i, nil
	}
	return -1, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
}

// ApplyTip sets the tip. A Locked cart that has not started settling gets a
// fresh allocation from sheet.
func (c *Cart) ApplyTip(now time.Time, actor Actor, tipCents int64, sheet *PriceSheet, strategy AllocationStrategy) error {
	if err := c.requireAdjustable(actor); err != nil {
		return err
	}
	if tipCents < 0 {
		return validation("tip must not be negative")
	}
	c.rec.TipCents = tipCents
	c.touch(now)
	return c.reallocateIfLocked(now, sheet, strategy)
}

// ApplyCoupon stores an evaluated coupon and its discount.
func (c *Cart) ApplyCoupon(now time.Time, actor Actor, quote pricing.CouponQuote, sheet *PriceSheet, strategy AllocationStrategy) error {
	if err := c.requireAdjustable(actor); err != nil {
		return err
	}
	if quote.CouponID == uuid.Nil {
		return validation("coupon rejected")
	}
	c.setCoupon(&quote)
	c.touch(now)
	return c.reallocateIfLocked(now, sheet, strategy)
}

// RemoveCoupon clears any applied coupon.
func (c *Cart) RemoveCoupon(now time.Time, actor Actor, sheet *PriceSheet, strategy AllocationStrategy) error {
	if err := c.requireAdjustable(actor); err != nil {
		return err
	}
	if c.rec.CouponID == nil && c.rec.DiscountCents == 0 {
		return nil
	}
	c.setCoupon(nil)
	c.touch(now)
	return c.reallocateIfLocked(now, sheet, strategy)
}

func (c *Cart) setCoupon(quote *pricing.CouponQuote) {
	if quote == nil {
		c.rec.CouponID = nil
		c.rec.CouponCode = nil
		c.rec.DiscountCents = 0
		return
	}
	id := quote.CouponID
	code := quote.Code
	c.rec.CouponID = &id
	c.rec.CouponCode = &code
	c.rec.DiscountCents = quote.Discount.Amount
}

// Lock freezes membership and items and computes the allocation. coupon is
// the applied coupon re-evaluated against the current subtotal, nil when
// none is applied.
func (c *Cart) Lock(now time.Time, actor Actor, sheet *PriceSheet, coupon *pricing.CouponQuote, strategy AllocationStrategy) error {
	if err := c.CheckLockable(actor); err != nil {
		return err
	}
	if sheet == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "price sheet required to lock")
	}
	if unavailable := sheet.Unavailable(); len(unavailable) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart contains unavailable items").
			WithDetails(unavailableDetails(unavailable))
	}
	if c.rec.CouponID != nil {
		if coupon == nil {
			return validation("applied coupon must be re-evaluated before locking")
		}
		c.setCoupon(coupon)
	}

	c.rec.Status = enums.TeamCartStatusLocked
	c.rec.LockedAt = &now
	c.touch(now)
	shares, err := c.allocate(now, sheet, strategy)
	if err != nil {
		return err
	}
	c.record(now, enums.EventTeamCartLocked, c.memberRef(actor.MemberID), c.lockedEvent(shares))
	return nil
}

// CheckLockable runs the Lock preconditions that do not need pricing.
func (c *Cart) CheckLockable(actor Actor) error {
	if err := c.requireMutable(); err != nil {
		return err
	}
	if err := c.requireHost(actor); err != nil {
		return err
	}
	if c.rec.Status != enums.TeamCartStatusOpen {
		return invalidState(MsgNotOpen)
	}
	if len(c.rec.Items) == 0 {
		return validation(MsgNoItems)
	}
	if len(c.rec.Members) < 2 {
		return validation(MsgNoGuests)
	}
	return nil
}

// CheckAdjustable reports whether actor may change the tip or coupon now.
func (c *Cart) CheckAdjustable(actor Actor) error {
	return c.requireAdjustable(actor)
}

// CheckMember reports whether actor belongs to the cart.
func (c *Cart) CheckMember(actor Actor) error {
	_, err := c.requireMember(actor)
	return err
}

func unavailableDetails(lines []PricedLine) []map[string]any {
	out := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		out = append(out, map[string]any{"item_id": line.ItemID, "reason": line.Reason})
	}
	return out
}

func (c *Cart) reallocateIfLocked(now time.Time, sheet *PriceSheet, strategy AllocationStrategy) error {
	if c.rec.Status != enums.TeamCartStatusLocked {
		return nil
	}
	if sheet == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "price sheet required to reallocate")
	}
	if unavailable := sheet.Unavailable(); len(unavailable) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart contains unavailable items").
			WithDetails(unavailableDetails(unavailable))
	}
	shares, err := c.allocate(now, sheet, strategy)
	if err != nil {
		return err
	}
	c.record(now, enums.EventTeamCartLocked, nil, c.lockedEvent(shares))
	return nil
}

// allocate captures the totals on the cart and replaces every non-committed
// payment row with a fresh allocation version.
func (c *Cart) allocate(now time.Time, sheet *PriceSheet, strategy AllocationStrategy) ([]Share, error) {
	if strategy == nil {
		strategy = ProportionalStrategy{}
	}
	subtotals := sheet.MemberSubtotals()
	contributors := make([]Contributor, 0, len(subtotals))
	for _, m := range c.rec.Members {
		sub, ok := subtotals[m.ID]
		if !ok {
			continue
		}
		contributors = append(contributors, Contributor{
			MemberID: m.ID,
			Subtotal: sub,
			JoinedAt: m.JoinedAt,
			IsHost:   m.Role == enums.MemberRoleHost,
		})
	}

	subtotal := sheet.Subtotal()
	discount := min(c.rec.DiscountCents, subtotal)
	tax := pricing.Tax(money.New(subtotal-discount, c.rec.Currency), sheet.TaxRateBps).Amount
	in := AllocationInput{
		Contributors: contributors,
		Subtotal:     subtotal,
		Discount:     discount,
		Tax:          tax,
		DeliveryFee:  sheet.DeliveryFee,
		Tip:          c.rec.TipCents,
	}
	shares, err := strategy.Allocate(in)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate settlement")
	}

	c.rec.SubtotalCents = subtotal
	c.rec.DiscountCents = discount
	c.rec.TaxCents = tax
	c.rec.DeliveryFeeCents = sheet.DeliveryFee
	c.rec.AllocationVersion++

	kept := c.rec.Payments[:0]
	for _, p := range c.rec.Payments {
		if p.Status == enums.PaymentStatusCommitted {
			kept = append(kept, p)
		}
	}
	c.rec.Payments = kept
	c.changes.purgePayments = true
	c.changes.insertedPayments = nil
	c.changes.updatedPayments = nil

	for _, share := range shares {
		member, _ := c.Member(share.MemberID)
		row := models.TeamCartMemberPayment{
			ID:                uuid.New(),
			CartID:            c.rec.ID,
			MemberID:          share.MemberID,
			MemberUserID:      member.UserID,
			AmountCents:       share.Amount,
			Currency:          c.rec.Currency,
			Status:            enums.PaymentStatusPending,
			AllocationVersion: c.rec.AllocationVersion,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		c.rec.Payments = append(c.rec.Payments, row)
		c.changes.insertedPayments = append(c.changes.insertedPayments, row.ID)
	}
	c.touch(now)
	return shares, nil
}

func (c *Cart) lockedEvent(shares []Share) payloads.TeamCartLockedEvent {
	out := payloads.TeamCartLockedEvent{
		CartID:            c.rec.ID,
		AllocationVersion: c.rec.AllocationVersion,
		GrandTotalCents:   c.GrandTotal(),
		Currency:          c.rec.Currency,
		Shares:            make([]payloads.MemberShare, 0, len(shares)),
	}
	for _, s := range shares {
		out.Shares = append(out.Shares, payloads.MemberShare{MemberID: s.MemberID, AmountCents: s.Amount})
	}
	return out
}

// GrandTotal is the captured total of the current allocation.
func (c *Cart) GrandTotal() int64 {
	r := c.rec
	return r.SubtotalCents - r.DiscountCents + r.TaxCents + r.DeliveryFeeCents + r.TipCents
}

// CurrentPayments returns the rows of the latest allocation.
func (c *Cart) CurrentPayments() []models.TeamCartMemberPayment {
	out := make([]models.TeamCartMemberPayment, 0, len(c.rec.Payments))
	for _, p := range c.rec.Payments {
		if p.AllocationVersion == c.rec.AllocationVersion {
			out = append(out, p)
		}
	}
	return out
}

// IsSettling reports whether any current row is committed or carries an
// external reference.
func (c *Cart) IsSettling() bool {
	for _, p := range c.CurrentPayments() {
		if p.Status == enums.PaymentStatusCommitted || p.ExternalReference != nil {
			return true
		}
	}
	return false
}

// IsFullySettled reports whether every current row is committed.
func (c *Cart) IsFullySettled() bool {
	rows := c.CurrentPayments()
	if len(rows) == 0 {
		return false
	}
	for _, p := range rows {
		if p.Status != enums.PaymentStatusCommitted {
			return false
		}
	}
	return true
}

func (c *Cart) paymentIndex(match func(models.TeamCartMemberPayment) bool) int {
	for i, p := range c.rec.Payments {
		if p.AllocationVersion == c.rec.AllocationVersion && match(p) {
			return i
		}
	}
	return -1
}

// PaymentFor returns the current row owed by memberID.
func (c *Cart) PaymentFor(memberID uuid.UUID) (models.TeamCartMemberPayment, bool) {
	idx := c.paymentIndex(func(p models.TeamCartMemberPayment) bool { return p.MemberID == memberID })
	if idx < 0 {
		return models.TeamCartMemberPayment{}, false
	}
	return c.rec.Payments[idx], true
}

func (c *Cart) requireSettleable(actor Actor) (int, error) {
	if err := c.requireMutable(); err != nil {
		return -1, err
	}
	if c.rec.Status != enums.TeamCartStatusLocked {
		return -1, invalidState(MsgNotLocked)
	}
	if _, err := c.requireMember(actor); err != nil {
		return -1, err
	}
	idx := c.paymentIndex(func(p models.TeamCartMemberPayment) bool { return p.MemberID == actor.MemberID })
	if idx < 0 {
		return -1, invalidState("no payment due for member")
	}
	return idx, nil
}

// CommitCashOnDelivery commits the actor's pending row as cash on delivery.
func (c *Cart) CommitCashOnDelivery(now time.Time, actor Actor) (models.TeamCartMemberPayment, error) {
	idx, err := c.requireSettleable(actor)
	if err != nil {
		return models.TeamCartMemberPayment{}, err
	}
	row := &c.rec.Payments[idx]
	if row.Status != enums.PaymentStatusPending {
		return models.TeamCartMemberPayment{}, invalidState("payment is " + row.Status.String())
	}
	method := enums.PaymentMethodCashOnDelivery
	row.Method = &method
	row.Status = enums.PaymentStatusCommitted
	row.UpdatedAt = now
	c.markPaymentUpdated(row.ID)
	c.touch(now)
	c.record(now, enums.EventTeamCartPaymentCommitted, c.memberRef(actor.MemberID), c.paymentEvent(*row, ""))
	return *row, nil
}

// PrepareOnlinePayment returns the row an online payment would settle. A
// pending row with a reference already has a live intent. It does not mutate
// the cart; the gateway call happens outside any write.
func (c *Cart) PrepareOnlinePayment(actor Actor) (models.TeamCartMemberPayment, error) {
	idx, err := c.requireSettleable(actor)
	if err != nil {
		return models.TeamCartMemberPayment{}, err
	}
	row := c.rec.Payments[idx]
	if row.Status != enums.PaymentStatusPending && row.Status != enums.PaymentStatusFailed {
		return models.TeamCartMemberPayment{}, invalidState("payment is " + row.Status.String())
	}
	if row.AmountCents <= 0 {
		return models.TeamCartMemberPayment{}, validation("nothing to pay online")
	}
	return row, nil
}

// AttachPaymentReference records a created gateway intent on the row that was
// prepared. A row that changed meanwhile means the allocation was recomputed
// and the intent is abandoned.
func (c *Cart) AttachPaymentReference(now time.Time, prepared models.TeamCartMemberPayment, reference string) (models.TeamCartMemberPayment, error) {
	if err := c.requireMutable(); err != nil {
		return models.TeamCartMemberPayment{}, err
	}
	if c.rec.Status != enums.TeamCartStatusLocked {
		return models.TeamCartMemberPayment{}, invalidState(MsgNotLocked)
	}
	idx := c.paymentIndex(func(p models.TeamCartMemberPayment) bool { return p.ID == prepared.ID })
	if idx < 0 || c.rec.Payments[idx].AmountCents != prepared.AmountCents {
		return models.TeamCartMemberPayment{}, pkgerrors.New(pkgerrors.CodeConflict, "allocation changed while the payment was being initiated")
	}
	row := &c.rec.Payments[idx]
	if row.Status == enums.PaymentStatusCommitted {
		return models.TeamCartMemberPayment{}, invalidState("payment is committed")
	}
	if row.Status == enums.PaymentStatusPending && row.ExternalReference != nil && *row.ExternalReference != reference {
		return models.TeamCartMemberPayment{}, pkgerrors.New(pkgerrors.CodeConflict, "online payment already initiated")
	}
	method := enums.PaymentMethodOnline
	ref := reference
	row.Method = &method
	row.Status = enums.PaymentStatusPending
	row.ExternalReference = &ref
	row.UpdatedAt = now
	c.markPaymentUpdated(row.ID)
	c.touch(now)
	return *row, nil
}

// FailPaymentAttempt marks the prepared row failed after a gateway error.
// It reports whether anything changed.
func (c *Cart) FailPaymentAttempt(now time.Time, prepared models.TeamCartMemberPayment, reason string) bool {
	if c.rec.Status != enums.TeamCartStatusLocked {
		return false
	}
	idx := c.paymentIndex(func(p models.TeamCartMemberPayment) bool { return p.ID == prepared.ID })
	if idx < 0 {
		return false
	}
	return c.failRow(now, idx, reason)
}

func (c *Cart) failRow(now time.Time, idx int, reason string) bool {
	row := &c.rec.Payments[idx]
	if row.Status != enums.PaymentStatusPending {
		return false
	}
	method := enums.PaymentMethodOnline
	row.Method = &method
	row.Status = enums.PaymentStatusFailed
	row.UpdatedAt = now
	c.markPaymentUpdated(row.ID)
	c.touch(now)
	c.record(now, enums.EventTeamCartPaymentFailed, nil, c.paymentEvent(*row, reason))
	return true
}

// ApplyGatewayOutcome applies a provider callback for reference. Unknown or
// superseded references, terminal carts and repeated outcomes are no-ops.
func (c *Cart) ApplyGatewayOutcome(now time.Time, reference string, succeeded bool, reason string) bool {
	if c.rec.Status != enums.TeamCartStatusLocked {
		return false
	}
	idx := c.paymentIndex(func(p models.TeamCartMemberPayment) bool {
		return p.ExternalReference != nil && *p.ExternalReference == reference
	})
	if idx < 0 {
		return false
	}
	if !succeeded {
		return c.failRow(now, idx, reason)
	}
	row := &c.rec.Payments[idx]
	if row.Status == enums.PaymentStatusCommitted {
		return false
	}
	method := enums.PaymentMethodOnline
	row.Method = &method
	row.Status = enums.PaymentStatusCommitted
	row.UpdatedAt = now
	c.markPaymentUpdated(row.ID)
	c.touch(now)
	c.record(now, enums.EventTeamCartPaymentCommitted, nil, c.paymentEvent(*row, ""))
	return true
}

func (c *Cart) paymentEvent(row models.TeamCartMemberPayment, reason string) payloads.TeamCartPaymentEvent {
	event := payloads.TeamCartPaymentEvent{
		CartID:            c.rec.ID,
		MemberID:          row.MemberID,
		PaymentID:         row.ID,
		AmountCents:       row.AmountCents,
		Currency:          row.Currency,
		ExternalReference: row.ExternalReference,
		Reason:            reason,
	}
	if row.Method != nil {
		event.Method = *row.Method
	}
	return event
}

// CheckConvertible validates every conversion precondition without mutating.
func (c *Cart) CheckConvertible(actor Actor) error {
	if c.rec.ConvertedOrderID != nil {
		return pkgerrors.New(pkgerrors.CodeConflict, MsgAlreadyConverted)
	}
	if err := c.requireMutable(); err != nil {
		return err
	}
	if err := c.requireHost(actor); err != nil {
		return err
	}
	if c.rec.Status != enums.TeamCartStatusLocked {
		return invalidState(MsgNotLocked)
	}
	if !c.IsFullySettled() {
		return invalidState(MsgNotFullySettled)
	}
	return nil
}

// Convert snapshots the priced lines onto the items and links the order.
func (c *Cart) Convert(now time.Time, actor Actor, orderID uuid.UUID, lines []PricedLine, orderTotal int64) error {
	if err := c.CheckConvertible(actor); err != nil {
		return err
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "order id required")
	}
	for _, line := range lines {
		for i := range c.rec.Items {
			item := &c.rec.Items[i]
			if item.ID != line.ItemID {
				continue
			}
			name := line.Name
			price := line.UnitPrice
			currency := c.rec.Currency
			item.SnapshotName = &name
			item.UnitPriceCents = &price
			item.SnapshotCurrency = &currency
			item.UpdatedAt = now
			c.markItemUpdated(item.ID)
		}
	}
	id := orderID
	c.rec.ConvertedOrderID = &id
	c.rec.Status = enums.TeamCartStatusConverted
	c.touch(now)

	host := c.Host()
	ref := c.memberRef(actor.MemberID)
	c.events = append(c.events, outbox.DomainEvent{
		EventType:     enums.EventTeamCartConverted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         ref,
		OccurredAt:    now,
		Data: payloads.TeamCartConvertedEvent{
			CartID:       c.rec.ID,
			OrderID:      orderID,
			RestaurantID: c.rec.RestaurantID,
			HostUserID:   derefUser(host.UserID, c.rec.HostUserID),
			TotalCents:   orderTotal,
			Currency:     c.rec.Currency,
		},
	})
	return nil
}

func derefUser(id *uuid.UUID, fallback uuid.UUID) uuid.UUID {
	if id == nil {
		return fallback
	}
	return *id
}

func (c *Cart) requireMutable() error {
	if c.rec.Status.IsTerminal() {
		return terminalError(c.rec.Status)
	}
	return nil
}

func (c *Cart) requireOpen() error {
	if err := c.requireMutable(); err != nil {
		return err
	}
	if c.rec.Status != enums.TeamCartStatusOpen {
		return invalidState(MsgNotOpen)
	}
	return nil
}

// requireAdjustable gates tip and coupon changes: host only, Open or Locked
// before settlement starts.
func (c *Cart) requireAdjustable(actor Actor) error {
	if err := c.requireMutable(); err != nil {
		return err
	}
	if err := c.requireHost(actor); err != nil {
		return err
	}
	if c.rec.Status == enums.TeamCartStatusLocked && c.IsSettling() {
		return invalidState(MsgSettlementStarted)
	}
	return nil
}

func (c *Cart) requireMember(actor Actor) (models.TeamCartMember, error) {
	member, ok := c.Member(actor.MemberID)
	if !ok {
		return models.TeamCartMember{}, forbidden(MsgNotMember)
	}
	return member, nil
}

func (c *Cart) requireHost(actor Actor) error {
	member, err := c.requireMember(actor)
	if err != nil {
		return forbidden(MsgNotHost)
	}
	if member.Role != enums.MemberRoleHost {
		return forbidden(MsgNotHost)
	}
	return nil
}

func (c *Cart) touch(now time.Time) {
	c.rec.UpdatedAt = now
	c.changes.dirty = true
}

func (c *Cart) markItemUpdated(id uuid.UUID) {
	for _, inserted := range c.changes.insertedItems {
		if inserted == id {
			return
		}
	}
	for _, updated := range c.changes.updatedItems {
		if updated == id {
			return
		}
	}
	c.changes.updatedItems = append(c.changes.updatedItems, id)
}

func (c *Cart) markPaymentUpdated(id uuid.UUID) {
	for _, inserted := range c.changes.insertedPayments {
		if inserted == id {
			return
		}
	}
	for _, updated := range c.changes.updatedPayments {
		if updated == id {
			return
		}
	}
	c.changes.updatedPayments = append(c.changes.updatedPayments, id)
}

func (c *Cart) memberRef(memberID uuid.UUID) *outbox.ActorRef {
	member, ok := c.Member(memberID)
	if !ok {
		return nil
	}
	return &outbox.ActorRef{MemberID: member.ID, UserID: member.UserID, Role: member.Role.String()}
}

func (c *Cart) record(now time.Time, eventType enums.OutboxEventType, actor *outbox.ActorRef, data any) {
	c.events = append(c.events, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTeamCart,
		AggregateID:   c.rec.ID,
		Actor:         actor,
		Data:          data,
		OccurredAt:    now,
	})
}

func normalizeCustomizations(in models.Customizations) models.Customizations {
	out := make(models.Customizations, 0, len(in))
	for _, sel := range in {
		out = append(out, models.Customization{
			Group:  strings.TrimSpace(sel.Group),
			Choice: strings.TrimSpace(sel.Choice),
		})
	}
	return out
}
