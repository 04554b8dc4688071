// Package teamcarttest wires a team cart stack over in-memory sqlite for
// tests in this and dependent packages.
package teamcarttest

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/teamcart-backend/internal/pricing"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/auth"
	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/angelmondragon/teamcart-backend/pkg/db"
	"github.com/angelmondragon/teamcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/money"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox"
)

// Start is the fixed wall clock every environment begins at.
var Start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	ShareTokenTTL = time.Hour
	MaxLifetime   = 24 * time.Hour
	CouponCode    = "THREEOFF"
)

// Clock is a settable test clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Scheduler records expiry schedules instead of enqueueing them.
type Scheduler struct {
	mu        sync.Mutex
	Scheduled map[uuid.UUID]time.Time
}

func (s *Scheduler) ScheduleTeamCartExpiry(cartID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Scheduled == nil {
		s.Scheduled = map[uuid.UUID]time.Time{}
	}
	s.Scheduled[cartID] = at
	return nil
}

// Options tweak the wired stack.
type Options struct {
	// WrapStore decorates the repository, e.g. to inject version races.
	WrapStore   func(teamcart.Store) teamcart.Store
	Projector   teamcart.Projector
	MaxAttempts int
	Strategy    teamcart.AllocationStrategy
	// TaxRateBps and DeliveryFee configure the seeded restaurant.
	TaxRateBps  int
	DeliveryFee string
}

// Env is a fully wired cart stack with a seeded catalog.
type Env struct {
	DB         *gorm.DB
	Client     *db.Client
	Clock      *Clock
	Logger     *logger.Logger
	Outbox     *outbox.Service
	Repo       *teamcart.Repository
	Store      teamcart.Store
	Catalog    *pricing.Catalog
	Sheets     *teamcart.SheetBuilder
	Views      *teamcart.ViewBuilder
	Executor   *teamcart.Executor
	Service    teamcart.Service
	Tokens     *auth.Issuer
	Scheduler  *Scheduler
	Restaurant models.Restaurant
	// Burger costs 5.00 and Salad 8.00.
	Burger models.MenuItem
	Salad  models.MenuItem
	Coupon models.Coupon
}

func New(t testing.TB, opts Options) *Env {
	t.Helper()
	conn := dbtest.Open(t)
	env := &Env{
		DB:        conn,
		Client:    db.FromGorm(conn),
		Clock:     &Clock{now: Start},
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Scheduler: &Scheduler{},
	}
	env.seedCatalog(t, opts)

	env.Outbox = outbox.NewService(outbox.NewRepository(conn), env.Logger)
	env.Repo = teamcart.NewRepository(conn)
	env.Store = env.Repo
	if opts.WrapStore != nil {
		env.Store = opts.WrapStore(env.Repo)
	}
	env.Catalog = pricing.NewCatalog(conn)
	env.Sheets = teamcart.NewSheetBuilder(env.Catalog)
	env.Views = teamcart.NewViewBuilder(env.Store, env.Sheets)

	exec, err := teamcart.NewExecutor(teamcart.ExecutorConfig{
		Tx:          env.Client,
		Store:       env.Store,
		Outbox:      env.Outbox,
		Projector:   opts.Projector,
		Clock:       env.Clock.Now,
		MaxAttempts: opts.MaxAttempts,
		MaxLifetime: MaxLifetime,
		Logger:      env.Logger,
	})
	require.NoError(t, err)
	env.Executor = exec

	env.Tokens, err = auth.NewIssuer(
		config.JWTConfig{Secret: "jwt-secret", Issuer: "teamcart", ExpirationMinutes: 60},
		config.ShareTokenConfig{Secret: "share-secret", TTL: ShareTokenTTL},
	)
	require.NoError(t, err)

	env.Service, err = teamcart.NewService(teamcart.ServiceConfig{
		Executor:      exec,
		Sheets:        env.Sheets,
		Views:         env.Views,
		Strategy:      opts.Strategy,
		Tokens:        env.Tokens,
		Scheduler:     env.Scheduler,
		ShareTokenTTL: ShareTokenTTL,
		Logger:        env.Logger,
	})
	require.NoError(t, err)
	return env
}

func (e *Env) seedCatalog(t testing.TB, opts Options) {
	t.Helper()
	fee := decimal.Zero
	if opts.DeliveryFee != "" {
		fee = decimal.RequireFromString(opts.DeliveryFee)
	}
	e.Restaurant = models.Restaurant{
		ID:          uuid.New(),
		Name:        "Corner Diner",
		Currency:    "USD",
		TaxRateBps:  opts.TaxRateBps,
		DeliveryFee: fee,
		Active:      true,
	}
	require.NoError(t, e.DB.Create(&e.Restaurant).Error)

	e.Burger = models.MenuItem{ID: uuid.New(), RestaurantID: e.Restaurant.ID, Name: "Burger", Price: decimal.RequireFromString("5.00"), Currency: "USD", Available: true}
	e.Salad = models.MenuItem{ID: uuid.New(), RestaurantID: e.Restaurant.ID, Name: "Salad", Price: decimal.RequireFromString("8.00"), Currency: "USD", Available: true}
	require.NoError(t, e.DB.Create(&e.Burger).Error)
	require.NoError(t, e.DB.Create(&e.Salad).Error)

	e.Coupon = models.Coupon{
		ID:          uuid.New(),
		Code:        CouponCode,
		Type:        enums.CouponTypeFixed,
		Value:       decimal.RequireFromString("3.00"),
		MinSubtotal: decimal.Zero,
		Active:      true,
	}
	require.NoError(t, e.DB.Create(&e.Coupon).Error)
}

// Party is a created cart with its members' actors.
type Party struct {
	CartID     uuid.UUID
	Host       teamcart.Actor
	ShareToken string
	Guests     []teamcart.Actor
}

// CreateParty creates a cart hosted by a fresh user and joins guests one
// minute apart.
func (e *Env) CreateParty(t testing.TB, deadline *time.Time, guests ...string) Party {
	t.Helper()
	ctx := context.Background()
	hostUser := uuid.New()
	res, err := e.Service.Dispatch(ctx, teamcart.CreateCart{
		RestaurantID: e.Restaurant.ID,
		HostUserID:   hostUser,
		HostName:     "Hana",
		Deadline:     deadline,
	})
	require.NoError(t, err)
	party := Party{
		CartID:     res.Cart.ID,
		Host:       teamcart.Actor{MemberID: res.Member.ID, UserID: &hostUser},
		ShareToken: res.ShareToken,
	}
	for _, name := range guests {
		e.Clock.Advance(time.Minute)
		joined, err := e.Service.Dispatch(ctx, teamcart.JoinCart{
			CartID:      party.CartID,
			ShareToken:  party.ShareToken,
			DisplayName: name,
		})
		require.NoError(t, err)
		party.Guests = append(party.Guests, teamcart.Actor{MemberID: joined.Member.ID})
	}
	return party
}

// AddItem adds qty of menuItem as actor.
func (e *Env) AddItem(t testing.TB, p Party, actor teamcart.Actor, menuItem uuid.UUID, qty int) uuid.UUID {
	t.Helper()
	res, err := e.Service.Dispatch(context.Background(), teamcart.AddItem{
		CartID:     p.CartID,
		Actor:      actor,
		MenuItemID: menuItem,
		Quantity:   qty,
	})
	require.NoError(t, err)
	return *res.ItemID
}

// LockedScenario builds the two-guest cart: Ana adds 2 burgers, Ben one
// salad, the host applies the $3 coupon and a $2 tip, then locks.
func (e *Env) LockedScenario(t testing.TB, deadline *time.Time) Party {
	t.Helper()
	ctx := context.Background()
	p := e.CreateParty(t, deadline, "Ana", "Ben")
	e.AddItem(t, p, p.Guests[0], e.Burger.ID, 2)
	e.AddItem(t, p, p.Guests[1], e.Salad.ID, 1)

	_, err := e.Service.Dispatch(ctx, teamcart.ApplyCoupon{CartID: p.CartID, Actor: p.Host, Code: CouponCode})
	require.NoError(t, err)
	_, err = e.Service.Dispatch(ctx, teamcart.ApplyTip{CartID: p.CartID, Actor: p.Host, Tip: money.New(200, "USD")})
	require.NoError(t, err)
	_, err = e.Service.Dispatch(ctx, teamcart.LockCart{CartID: p.CartID, Actor: p.Host})
	require.NoError(t, err)
	return p
}

// Load reads the cart straight from the repository.
func (e *Env) Load(t testing.TB, cartID uuid.UUID) *teamcart.Cart {
	t.Helper()
	cart, err := e.Repo.Load(context.Background(), cartID)
	require.NoError(t, err)
	return cart
}

// OutboxEvents returns the emitted event types.
func (e *Env) OutboxEvents(t testing.TB) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, e.DB.Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}
