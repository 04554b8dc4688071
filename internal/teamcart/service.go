package teamcart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/internal/pricing"
	"github.com/angelmondragon/teamcart-backend/pkg/auth"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/money"
)

// TokenIssuer mints and verifies share links and member access tokens.
type TokenIssuer interface {
	MintShareToken(cartID uuid.UUID, now, expiresAt time.Time) (string, error)
	VerifyShareToken(token string) (uuid.UUID, error)
	MintMemberToken(now time.Time, payload auth.MemberTokenPayload) (string, error)
}

// ExpiryScheduler arranges a deadline check for a cart.
type ExpiryScheduler interface {
	ScheduleTeamCartExpiry(cartID uuid.UUID, at time.Time) error
}

// Service exposes the cart lifecycle commands and member reads.
type Service interface {
	Dispatch(ctx context.Context, cmd Command) (*Result, error)
	GetCartDetails(ctx context.Context, cartID uuid.UUID, actor Actor) (*CartView, error)
	ExpireIfDue(ctx context.Context, cartID uuid.UUID) (bool, error)
}

type ServiceConfig struct {
	Executor      *Executor
	Sheets        *SheetBuilder
	Views         *ViewBuilder
	Strategy      AllocationStrategy
	Tokens        TokenIssuer
	Scheduler     ExpiryScheduler
	ShareTokenTTL time.Duration
	Logger        *logger.Logger
}

type service struct {
	exec      *Executor
	sheets    *SheetBuilder
	views     *ViewBuilder
	strategy  AllocationStrategy
	tokens    TokenIssuer
	scheduler ExpiryScheduler
	shareTTL  time.Duration
	logg      *logger.Logger
}

func NewService(cfg ServiceConfig) (Service, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor required")
	}
	if cfg.Sheets == nil {
		return nil, fmt.Errorf("sheet builder required")
	}
	if cfg.Views == nil {
		return nil, fmt.Errorf("view builder required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token issuer required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.ShareTokenTTL <= 0 {
		return nil, fmt.Errorf("share token ttl must be positive")
	}
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = ProportionalStrategy{}
	}
	return &service{
		exec:      cfg.Executor,
		sheets:    cfg.Sheets,
		views:     cfg.Views,
		strategy:  strategy,
		tokens:    cfg.Tokens,
		scheduler: cfg.Scheduler,
		shareTTL:  cfg.ShareTokenTTL,
		logg:      cfg.Logger,
	}, nil
}

// Dispatch routes cmd to its handler.
func (s *service) Dispatch(ctx context.Context, cmd Command) (*Result, error) {
	if cmd == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "command required")
	}
	h, ok := handlers[cmd.Kind()]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "no handler for command %s", cmd.Kind())
	}
	return h(ctx, s, cmd)
}

func (s *service) create(ctx context.Context, cmd CreateCart) (*Result, error) {
	if cmd.RestaurantID == uuid.Nil {
		return nil, validation("restaurant id required")
	}
	charges, err := s.sheets.provider.Restaurant(ctx, cmd.RestaurantID)
	if err != nil {
		return nil, err
	}

	now := s.exec.Now()
	cartID := uuid.New()
	shareExpiry := now.Add(s.shareTTL)
	shareToken, err := s.tokens.MintShareToken(cartID, now, shareExpiry)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint share token")
	}
	cart, err := NewCart(now, CreateParams{
		CartID:              cartID,
		RestaurantID:        cmd.RestaurantID,
		HostUserID:          cmd.HostUserID,
		HostName:            cmd.HostName,
		Currency:            charges.Currency,
		Deadline:            cmd.Deadline,
		ShareToken:          shareToken,
		ShareTokenExpiresAt: shareExpiry,
	})
	if err != nil {
		return nil, err
	}
	if err := s.exec.Create(ctx, cart); err != nil {
		return nil, err
	}
	ctx = s.logg.WithCartID(ctx, cartID.String())
	s.scheduleExpiry(ctx, cart)
	s.logg.Info(ctx, "team cart created")

	host := cart.Host()
	access, err := s.mintMember(now, cart, host)
	if err != nil {
		return nil, err
	}
	res := s.result(ctx, cart)
	hostView := memberView(host, cart.rec.Currency)
	res.Member = &hostView
	res.AccessToken = access
	res.ShareToken = shareToken
	res.ShareTokenExpiresAt = &cart.rec.ShareTokenExpiresAt
	return res, nil
}

// scheduleExpiry enqueues the deadline task. Failures only delay expiry
// until the next sweep or command.
func (s *service) scheduleExpiry(ctx context.Context, cart *Cart) {
	if s.scheduler == nil {
		return
	}
	var at time.Time
	switch {
	case cart.rec.Deadline != nil:
		at = *cart.rec.Deadline
	case s.exec.maxLifetime > 0:
		at = cart.rec.CreatedAt.Add(s.exec.maxLifetime)
	default:
		return
	}
	if err := s.scheduler.ScheduleTeamCartExpiry(cart.ID(), at); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to schedule team cart expiry")
	}
}

func (s *service) join(ctx context.Context, cmd JoinCart) (*Result, error) {
	token := strings.TrimSpace(cmd.ShareToken)
	if token == "" {
		return nil, validation("share token required")
	}
	cartID, err := s.tokens.VerifyShareToken(token)
	if err != nil {
		return nil, validation("share token is not valid")
	}
	if cmd.CartID != uuid.Nil && cmd.CartID != cartID {
		return nil, validation("share token is not valid for this cart")
	}

	var member models.TeamCartMember
	cart, err := s.exec.Execute(ctx, Mutation{
		Kind:   CommandJoin,
		CartID: cartID,
		Apply: func(_ context.Context, cart *Cart, now time.Time) error {
			joined, err := cart.Join(now, JoinParams{
				ShareToken:  token,
				DisplayName: cmd.DisplayName,
				UserID:      cmd.UserID,
			})
			if err != nil {
				return err
			}
			member = joined
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	access, err := s.mintMember(s.exec.Now(), cart, member)
	if err != nil {
		return nil, err
	}
	res := s.result(ctx, cart)
	mv := memberView(member, cart.rec.Currency)
	res.Member = &mv
	res.AccessToken = access
	return res, nil
}

func (s *service) addItem(ctx context.Context, cmd AddItem) (*Result, error) {
	var itemID uuid.UUID
	cart, err := s.exec.Execute(ctx, Mutation{
		Kind:   CommandAddItem,
		CartID: cmd.CartID,
		Apply: func(ctx context.Context, cart *Cart, now time.Time) error {
			item, err := cart.AddItem(now, cmd.Actor, AddItemParams{
				MenuItemID:     cmd.MenuItemID,
				Quantity:       cmd.Quantity,
				Customizations: cmd.Customizations,
			})
			if err != nil {
				return err
			}
			// the line is only kept when the catalog can price it
			if _, err := s.sheets.PriceItem(ctx, cart.rec, item.MenuItemID, item.Customizations); err != nil {
				return err
			}
			itemID = item.ID
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	res := s.result(ctx, cart)
	res.ItemID = &itemID
	return res, nil
}

func (s *service) updateItemQuantity(ctx context.Context, cmd UpdateItemQuantity) (*Result, error) {
	cart, err := s.exec.Execute(ctx, Mutation{
		Kind:   CommandUpdateItemQuantity,
		CartID: cmd.CartID,
		Apply: func(_ context.Context, cart *Cart, now time.Time) error {
			return cart.UpdateItemQuantity(now, cmd.Actor, cmd.ItemID, cmd.Quantity)
		},
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, cart), nil
}

func (s *service) removeItem(ctx context.Context, cmd RemoveItem) (*Result, error) {
	cart, err := s.exec.Execute(ctx, Mutation{
		Kind:   CommandRemoveItem,
		CartID: cmd.CartID,
		Apply: func(_ context.Context, cart *Cart, now time.Time) error {
			return cart.RemoveItem(now, cmd.Actor, cmd.ItemID)
		},
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, cart), nil
}

func (s *service) applyTip(ctx context.Context, cmd ApplyTip) (*Result, error) {
	cart, err := s.exec.Execute(ctx, Mutation{
		Kind:   CommandApplyTip,
		CartID: cmd.CartID,
		Apply: func(ctx context.Context, cart *Cart, now time.Time) error {
			if err := cart.CheckAdjustable(cmd.Actor); err != nil {
				return err
			}
			if cmd.Tip.Currency != "" && money.NormalizeCurrency(cmd.Tip.Currency) != cart.rec.Currency {
				return validation("tip must be in %s", cart.rec.Currency)
			}
			sheet, err := s.lockedSheet(ctx, cart)
			if err != nil {
				return err
			}
			return cart.ApplyTip(now, cmd.Actor, cmd.Tip.Amount, sheet, s.strategy)
		},
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, cart), nil
}

func (s *service) applyCoupon(ctx context.Context, cmd ApplyCoupon) (*Result, error) {
	code := pricing.NormalizeCouponCode(cmd.Code)
	if code == "" {
		return nil, validation("coupon code required")
	}
	cart, err := s.exec.Execute(ctx, Mutation{
		Kind:   CommandApplyCoupon,
		CartID: cmd.CartID,
		Apply: func(ctx context.Context, cart *Cart, now time.Time) error {
			if err := cart.CheckAdjustable(cmd.Actor); err != nil {
				return err
			}
			sheet, err := s.sheets.Build(ctx, cart.rec)
			if err != nil {
				return err
			}
			quote, err := s.sheets.Coupon(ctx, cart.rec, code, sheet.Subtotal(), now)
			if err != nil {
				return err
			}
			return cart.ApplyCoupon(now, cmd.Actor, *quote, sheet, s.strategy)
		},
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, cart), nil
}

func (s *service) removeCoupon(ctx context.Context, cmd RemoveCoupon) (*Result, error) {
	cart, err := s.exec.Execute(ctx, Mutation{
		Kind:   CommandRemoveCoupon,
		CartID: cmd.CartID,
		Apply: func(ctx context.Context, cart *Cart, now time.Time) error {
			if err := cart.CheckAdjustable(cmd.Actor); err != nil {
				return err
			}
			sheet, err := s.lockedSheet(ctx, cart)
			if err != nil {
				return err
			}
			return cart.RemoveCoupon(now, cmd.Actor, sheet, s.strategy)
		},
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, cart), nil
}

func (s *service) lock(ctx context.Context, cmd LockCart) (*Result, error) {
	cart, err := s.exec.Execute(ctx, Mutation{
		Kind:   CommandLock,
		CartID: cmd.CartID,
		Apply: func(ctx context.Context, cart *Cart, now time.Time) error {
			if err := cart.CheckLockable(cmd.Actor); err != nil {
				return err
			}
			sheet, err := s.sheets.Build(ctx, cart.rec)
			if err != nil {
				return err
			}
			var quote *pricing.CouponQuote
			if code := cart.rec.CouponCode; code != nil {
				quote, err = s.sheets.Coupon(ctx, cart.rec, *code, sheet.Subtotal(), now)
				if err != nil {
					return err
				}
			}
			return cart.Lock(now, cmd.Actor, sheet, quote, s.strategy)
		},
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, cart), nil
}

// GetCartDetails renders the cart for one of its members. Reads never
// expire a cart; the status reflects the last committed transition.
func (s *service) GetCartDetails(ctx context.Context, cartID uuid.UUID, actor Actor) (*CartView, error) {
	cart, err := s.exec.store.Load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := cart.CheckMember(actor); err != nil {
		return nil, err
	}
	return s.views.Render(ctx, cart)
}

func (s *service) ExpireIfDue(ctx context.Context, cartID uuid.UUID) (bool, error) {
	return s.exec.ExpireIfDue(ctx, cartID)
}

// lockedSheet prices the cart only when a reallocation can follow.
func (s *service) lockedSheet(ctx context.Context, cart *Cart) (*PriceSheet, error) {
	if cart.Status() != enums.TeamCartStatusLocked {
		return nil, nil
	}
	return s.sheets.Build(ctx, cart.rec)
}

func (s *service) mintMember(now time.Time, cart *Cart, member models.TeamCartMember) (string, error) {
	token, err := s.tokens.MintMemberToken(now, auth.MemberTokenPayload{
		CartID:   cart.ID(),
		MemberID: member.ID,
		UserID:   member.UserID,
		Role:     member.Role,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint member token")
	}
	return token, nil
}

// result renders the committed cart. A pricing failure here must not turn a
// committed command into an error, so the view is left empty instead.
func (s *service) result(ctx context.Context, cart *Cart) *Result {
	view, err := s.views.Render(ctx, cart)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "render team cart view after command")
		return &Result{}
	}
	return &Result{Cart: view}
}

func memberView(m models.TeamCartMember, currency string) MemberView {
	return MemberView{
		ID:          m.ID,
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		Role:        m.Role,
		JoinedAt:    m.JoinedAt,
		Subtotal:    money.Zero(currency),
	}
}
