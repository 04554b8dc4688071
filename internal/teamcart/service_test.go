package teamcart_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart/teamcarttest"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/money"
)

// racingStore bumps the stored version right after a load, the way a
// concurrent writer would, while races remain.
type racingStore struct {
	teamcart.Store
	db    *gorm.DB
	races int
	loads int
}

func (s *racingStore) Load(ctx context.Context, cartID uuid.UUID) (*teamcart.Cart, error) {
	s.loads++
	cart, err := s.Store.Load(ctx, cartID)
	if err == nil && s.races > 0 {
		s.races--
		if bump := s.db.Exec("UPDATE team_carts SET version = version + 1 WHERE id = ?", cartID); bump.Error != nil {
			return nil, bump.Error
		}
	}
	return cart, err
}

func newRacingEnv(t *testing.T, maxAttempts int) (*teamcarttest.Env, *racingStore) {
	racing := &racingStore{}
	env := teamcarttest.New(t, teamcarttest.Options{
		MaxAttempts: maxAttempts,
		WrapStore: func(s teamcart.Store) teamcart.Store {
			racing.Store = s
			return racing
		},
	})
	racing.db = env.DB
	return env, racing
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, pkgerrors.CodeOf(err), "unexpected error %v", err)
}

func TestCreateAndJoin(t *testing.T) {
	env := teamcarttest.New(t, teamcarttest.Options{})
	ctx := context.Background()
	hostUser := uuid.New()

	created, err := env.Service.Dispatch(ctx, teamcart.CreateCart{
		RestaurantID: env.Restaurant.ID,
		HostUserID:   hostUser,
		HostName:     "Hana",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.AccessToken)
	require.NotEmpty(t, created.ShareToken)
	require.Equal(t, teamcarttest.Start.Add(teamcarttest.ShareTokenTTL), *created.ShareTokenExpiresAt)
	require.Equal(t, enums.TeamCartStatusOpen, created.Cart.Status)
	require.Equal(t, "USD", created.Cart.Currency)
	require.Equal(t, enums.MemberRoleHost, created.Member.Role)
	require.Equal(t, teamcarttest.Start.Add(teamcarttest.MaxLifetime), env.Scheduler.Scheduled[created.Cart.ID])

	joined, err := env.Service.Dispatch(ctx, teamcart.JoinCart{
		CartID:      created.Cart.ID,
		ShareToken:  created.ShareToken,
		DisplayName: "Ana",
	})
	require.NoError(t, err)
	require.NotEmpty(t, joined.AccessToken)
	require.Equal(t, enums.MemberRoleMember, joined.Member.Role)
	require.Len(t, joined.Cart.Members, 2)

	_, err = env.Service.Dispatch(ctx, teamcart.JoinCart{
		CartID:      created.Cart.ID,
		ShareToken:  created.ShareToken,
		DisplayName: "Hana again",
		UserID:      &hostUser,
	})
	requireCode(t, err, pkgerrors.CodeConflict)

	events := env.OutboxEvents(t)
	require.Contains(t, events, enums.EventTeamCartCreated)
	require.Contains(t, events, enums.EventTeamCartMemberJoined)
}

func TestCreateRejectsUnknownRestaurantAndPastDeadline(t *testing.T) {
	env := teamcarttest.New(t, teamcarttest.Options{})
	ctx := context.Background()

	_, err := env.Service.Dispatch(ctx, teamcart.CreateCart{RestaurantID: uuid.New(), HostUserID: uuid.New()})
	requireCode(t, err, pkgerrors.CodeValidation)

	past := teamcarttest.Start.Add(-time.Minute)
	_, err = env.Service.Dispatch(ctx, teamcart.CreateCart{RestaurantID: env.Restaurant.ID, HostUserID: uuid.New(), Deadline: &past})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestJoinAfterShareTokenExpiryReturnsExpired(t *testing.T) {
	env := teamcarttest.New(t, teamcarttest.Options{})
	p := env.CreateParty(t, nil)

	env.Clock.Advance(teamcarttest.ShareTokenTTL)
	_, err := env.Service.Dispatch(context.Background(), teamcart.JoinCart{
		CartID:      p.CartID,
		ShareToken:  p.ShareToken,
		DisplayName: "Late",
	})
	requireCode(t, err, pkgerrors.CodeExpired)
	require.Equal(t, enums.TeamCartStatusOpen, env.Load(t, p.CartID).Status())
}

func TestJoinRejectsTokenOfAnotherCart(t *testing.T) {
	env := teamcarttest.New(t, teamcarttest.Options{})
	first := env.CreateParty(t, nil)
	second := env.CreateParty(t, nil)

	_, err := env.Service.Dispatch(context.Background(), teamcart.JoinCart{
		CartID:      first.CartID,
		ShareToken:  second.ShareToken,
		DisplayName: "Ana",
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = env.Service.Dispatch(context.Background(), teamcart.JoinCart{
		CartID:      first.CartID,
		ShareToken:  "not-a-token",
		DisplayName: "Ana",
	})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestLockedScenarioAllocatesShares(t *testing.T) {
	env := teamcarttest.New(t, teamcarttest.Options{})
	p := env.LockedScenario(t, nil)
	ana, ben := p.Guests[0], p.Guests[1]

	cart := env.Load(t, p.CartID)
	require.Equal(t, enums.TeamCartStatusLocked, cart.Status())
	require.Equal(t, int64(1700), cart.GrandTotal())
	rowA, ok := cart.PaymentFor(ana.MemberID)
	require.True(t, ok)
	rowB, ok := cart.PaymentFor(ben.MemberID)
	require.True(t, ok)
	require.Equal(t, int64(945), rowA.AmountCents)
	require.Equal(t, int64(755), rowB.AmountCents)

	view, err := env.Service.GetCartDetails(context.Background(), p.CartID, p.Host)
	require.NoError(t, err)
	require.Equal(t, money.New(1700, "USD"), view.Totals.Total)
	require.Equal(t, money.New(300, "USD"), view.Totals.Discount)
	require.Len(t, view.Payments, 2)
	require.Contains(t, env.OutboxEvents(t), enums.EventTeamCartLocked)
}

func TestEqualBaseStrategyWithTaxAndDelivery(t *testing.T) {
	env := teamcarttest.New(t, teamcarttest.Options{
		Strategy:    teamcart.EqualBaseStrategy{},
		TaxRateBps:  1000,
		DeliveryFee: "3.00",
	})
	p := env.LockedScenario(t, nil)

	cart := env.Load(t, p.CartID)
	// subtotal 1800, discount 300, tax 150, delivery 300, tip 200
	require.Equal(t, int64(150), cart.Record().TaxCents)
	require.Equal(t, int64(2150), cart.GrandTotal())
	var sum int64
	for _, row := range cart.CurrentPayments() {
		sum += row.AmountCents
	}
	require.Equal(t, cart.GrandTotal(), sum)
}

func TestLockRevalidatesAppliedCoupon(t *testing.T) {
	env := teamcarttest.New(t, teamcarttest.Options{})
	ctx := context.Background()
	p := env.CreateParty(t, nil, "Ana")
	env.AddItem(t, p, p.Guests[0], env.Burger.ID, 1)

	_, err := env.Service.Dispatch(ctx, teamcart.ApplyCoupon{CartID: p.CartID, Actor: p.Host, Code: "threeoff"})
	require.NoError(t, err)
	require.NoError(t, env.DB.Model(&models.Coupon{}).Where("id = ?", env.Coupon.ID).Update("active", false).Error)

	_, err = env.Service.Dispatch(ctx, teamcart.LockCart{CartID: p.CartID, Actor: p.Host})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.Equal(t, enums.TeamCartStatusOpen, env.Load(t, p.CartID).Status())

	_, err = env.Service.Dispatch(ctx, teamcart.ApplyCoupon{CartID: p.CartID, Actor: p.Host, Code: "NOPE"})
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = env.Service.Dispatch(ctx, teamcart.ApplyCoupon{CartID: p.CartID, Actor: p.Guests[0], Code: "THREEOFF"})
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestAddItemRejectsUnpricedMenuItem(t *testing.T) {
	env := teamcarttest.New(t, teamcarttest.Options{})
	p := env.CreateParty(t, nil, "Ana")

	_, err := env.Service.Dispatch(context.Background(), teamcart.AddItem{
		CartID:     p.CartID,
		Actor:      p.Guests[0],
		MenuItemID: uuid.New(),
		Quantity:   1,
	})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.Empty(t, env.Load(t, p.CartID).Record().Items)
}

func TestDeadlinePassingWhileLockedExpiresCart(t *testing.T) {
	env := teamcarttest.New(t, teamcarttest.Options{})
	deadline := teamcarttest.Start.Add(30 * time.Minute)
	p := env.LockedScenario(t, &deadline)
	require.Equal(t, deadline, env.Scheduler.Scheduled[p.CartID])

	env.Clock.Advance(time.Hour)
	_, err := env.Service.Dispatch(context.Background(), teamcart.ApplyTip{CartID: p.CartID, Actor: p.Host, Tip: money.New(100, "USD")})
	requireCode(t, err, pkgerrors.CodeExpired)

	cart := env.Load(t, p.CartID)
	require.Equal(t, enums.TeamCartStatusExpired, cart.Status())
	require.NotNil(t, cart.Record().ExpiredAt)
	require.Contains(t, env.OutboxEvents(t), enums.EventTeamCartExpired)

	// once expired the cart is terminal for every later command
	_, err = env.Service.Dispatch(context.Background(), teamcart.ApplyTip{CartID: p.CartID, Actor: p.Host, Tip: money.New(100, "USD")})
	requireCode(t, err, pkgerrors.CodeInvalidState)
	_, err = env.Service.Dispatch(context.Background(), teamcart.AddItem{CartID: p.CartID, Actor: p.Guests[0], MenuItemID: env.Burger.ID, Quantity: 1})
	requireCode(t, err, pkgerrors.CodeInvalidState)
}

func TestDeadlineBeyondMaxLifetimeKeepsCartOpen(t *testing.T) {
	env := teamcarttest.New(t, teamcarttest.Options{})
	deadline := teamcarttest.Start.Add(2 * teamcarttest.MaxLifetime)
	p := env.CreateParty(t, &deadline, "Ana")
	ctx := context.Background()

	env.Clock.Advance(teamcarttest.MaxLifetime + time.Hour)
	_, err := env.Service.Dispatch(ctx, teamcart.AddItem{CartID: p.CartID, Actor: p.Guests[0], MenuItemID: env.Burger.ID, Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, enums.TeamCartStatusOpen, env.Load(t, p.CartID).Status())

	env.Clock.Advance(deadline.Sub(env.Clock.Now()))
	_, err = env.Service.Dispatch(ctx, teamcart.AddItem{CartID: p.CartID, Actor: p.Guests[0], MenuItemID: env.Burger.ID, Quantity: 1})
	requireCode(t, err, pkgerrors.CodeExpired)
}

func TestExpireIfDueIsIdempotent(t *testing.T) {
	env := teamcarttest.New(t, teamcarttest.Options{})
	p := env.CreateParty(t, nil, "Ana")
	ctx := context.Background()

	expired, err := env.Service.ExpireIfDue(ctx, p.CartID)
	require.NoError(t, err)
	require.False(t, expired)

	env.Clock.Advance(teamcarttest.MaxLifetime)
	expired, err = env.Service.ExpireIfDue(ctx, p.CartID)
	require.NoError(t, err)
	require.True(t, expired)

	expired, err = env.Service.ExpireIfDue(ctx, p.CartID)
	require.NoError(t, err)
	require.False(t, expired)
	require.Equal(t, enums.TeamCartStatusExpired, env.Load(t, p.CartID).Status())
}

func TestGetCartDetailsRequiresMembershipAndDoesNotMutate(t *testing.T) {
	env := teamcarttest.New(t, teamcarttest.Options{})
	p := env.CreateParty(t, nil, "Ana")
	env.AddItem(t, p, p.Guests[0], env.Burger.ID, 3)
	ctx := context.Background()

	_, err := env.Service.GetCartDetails(ctx, p.CartID, teamcart.Actor{MemberID: uuid.New()})
	requireCode(t, err, pkgerrors.CodeForbidden)

	env.Clock.Advance(teamcarttest.MaxLifetime + time.Hour)
	view, err := env.Service.GetCartDetails(ctx, p.CartID, p.Guests[0])
	require.NoError(t, err)
	require.Equal(t, enums.TeamCartStatusOpen, view.Status)
	require.Len(t, view.Items, 1)
	require.Equal(t, "Burger", view.Items[0].Name)
	require.Equal(t, money.New(1500, "USD"), view.Items[0].LineTotal)
	require.Equal(t, money.New(1500, "USD"), view.Totals.Subtotal)
}

func TestCommandsRetryVersionConflicts(t *testing.T) {
	env, racing := newRacingEnv(t, 3)
	p := env.CreateParty(t, nil, "Ana")
	before := env.Load(t, p.CartID).Version()

	racing.races = 2
	racing.loads = 0
	env.AddItem(t, p, p.Guests[0], env.Burger.ID, 1)
	require.Equal(t, 3, racing.loads)

	cart := env.Load(t, p.CartID)
	require.Len(t, cart.Record().Items, 1)
	require.Equal(t, before+3, cart.Version())
}

func TestCommandsGiveUpAfterMaxAttempts(t *testing.T) {
	env, racing := newRacingEnv(t, 3)
	p := env.CreateParty(t, nil, "Ana")

	racing.races = 10
	racing.loads = 0
	_, err := env.Service.Dispatch(context.Background(), teamcart.AddItem{
		CartID:     p.CartID,
		Actor:      p.Guests[0],
		MenuItemID: env.Burger.ID,
		Quantity:   1,
	})
	requireCode(t, err, pkgerrors.CodeConflict)
	require.True(t, teamcart.IsStaleVersion(err))
	require.Equal(t, 3, racing.loads)
}

func TestDomainErrorsAreNotRetried(t *testing.T) {
	env, racing := newRacingEnv(t, 3)
	p := env.CreateParty(t, nil, "Ana")

	racing.loads = 0
	_, err := env.Service.Dispatch(context.Background(), teamcart.LockCart{CartID: p.CartID, Actor: p.Guests[0]})
	requireCode(t, err, pkgerrors.CodeForbidden)
	require.Equal(t, 1, racing.loads)
}
