package teamcart

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/money"
)

// CommandKind names a cart command for dispatch, logging and metrics.
type CommandKind string

const (
	CommandCreate                CommandKind = "create"
	CommandJoin                  CommandKind = "join"
	CommandAddItem               CommandKind = "add_item"
	CommandUpdateItemQuantity    CommandKind = "update_item_quantity"
	CommandRemoveItem            CommandKind = "remove_item"
	CommandApplyTip              CommandKind = "apply_tip"
	CommandApplyCoupon           CommandKind = "apply_coupon"
	CommandRemoveCoupon          CommandKind = "remove_coupon"
	CommandLock                  CommandKind = "lock"
	CommandExpire                CommandKind = "expire"
	CommandCommitCashOnDelivery  CommandKind = "commit_cod"
	CommandInitiateOnlinePayment CommandKind = "initiate_online_payment"
	CommandPaymentWebhook        CommandKind = "payment_webhook"
	CommandConvert               CommandKind = "convert"
)

// Command is any request the service dispatches through its handler table.
type Command interface {
	Kind() CommandKind
}

type CreateCart struct {
	RestaurantID uuid.UUID
	HostUserID   uuid.UUID
	HostName     string
	Deadline     *time.Time
}

type JoinCart struct {
	CartID      uuid.UUID
	ShareToken  string
	DisplayName string
	UserID      *uuid.UUID
}

type AddItem struct {
	CartID         uuid.UUID
	Actor          Actor
	MenuItemID     uuid.UUID
	Quantity       int
	Customizations models.Customizations
}

type UpdateItemQuantity struct {
	CartID   uuid.UUID
	Actor    Actor
	ItemID   uuid.UUID
	Quantity int
}

type RemoveItem struct {
	CartID uuid.UUID
	Actor  Actor
	ItemID uuid.UUID
}

type ApplyTip struct {
	CartID uuid.UUID
	Actor  Actor
	Tip    money.Money
}

type ApplyCoupon struct {
	CartID uuid.UUID
	Actor  Actor
	Code   string
}

type RemoveCoupon struct {
	CartID uuid.UUID
	Actor  Actor
}

type LockCart struct {
	CartID uuid.UUID
	Actor  Actor
}

func (CreateCart) Kind() CommandKind         { return CommandCreate }
func (JoinCart) Kind() CommandKind           { return CommandJoin }
func (AddItem) Kind() CommandKind            { return CommandAddItem }
func (UpdateItemQuantity) Kind() CommandKind { return CommandUpdateItemQuantity }
func (RemoveItem) Kind() CommandKind         { return CommandRemoveItem }
func (ApplyTip) Kind() CommandKind           { return CommandApplyTip }
func (ApplyCoupon) Kind() CommandKind        { return CommandApplyCoupon }
func (RemoveCoupon) Kind() CommandKind       { return CommandRemoveCoupon }
func (LockCart) Kind() CommandKind           { return CommandLock }

// Result is what a command hands back to the transport layer.
type Result struct {
	Cart *CartView
	// Member is set by create and join together with its access token.
	Member              *MemberView
	AccessToken         string
	ShareToken          string
	ShareTokenExpiresAt *time.Time
	ItemID              *uuid.UUID
}

type handlerFunc func(ctx context.Context, s *service, cmd Command) (*Result, error)

// handle adapts a typed handler to the table signature.
func handle[C Command](fn func(*service, context.Context, C) (*Result, error)) handlerFunc {
	return func(ctx context.Context, s *service, cmd Command) (*Result, error) {
		typed, ok := cmd.(C)
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "command %s has unexpected type %T", cmd.Kind(), cmd)
		}
		return fn(s, ctx, typed)
	}
}

var handlers = map[CommandKind]handlerFunc{
	CommandCreate:             handle((*service).create),
	CommandJoin:               handle((*service).join),
	CommandAddItem:            handle((*service).addItem),
	CommandUpdateItemQuantity: handle((*service).updateItemQuantity),
	CommandRemoveItem:         handle((*service).removeItem),
	CommandApplyTip:           handle((*service).applyTip),
	CommandApplyCoupon:        handle((*service).applyCoupon),
	CommandRemoveCoupon:       handle((*service).removeCoupon),
	CommandLock:               handle((*service).lock),
}
