package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/api/responses"
	"github.com/angelmondragon/teamcart-backend/api/validators"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/money"
)

// commandResponse is the body returned by every cart command.
type commandResponse struct {
	Cart                *teamcart.CartView   `json:"cart"`
	Member              *teamcart.MemberView `json:"member,omitempty"`
	AccessToken         string               `json:"access_token,omitempty"`
	ShareToken          string               `json:"share_token,omitempty"`
	ShareTokenExpiresAt *time.Time           `json:"share_token_expires_at,omitempty"`
	ItemID              *uuid.UUID           `json:"item_id,omitempty"`
}

func newCommandResponse(res *teamcart.Result) commandResponse {
	if res == nil {
		return commandResponse{}
	}
	return commandResponse{
		Cart:                res.Cart,
		Member:              res.Member,
		AccessToken:         res.AccessToken,
		ShareToken:          res.ShareToken,
		ShareTokenExpiresAt: res.ShareTokenExpiresAt,
		ItemID:              res.ItemID,
	}
}

func dispatch(svc teamcart.Service, logg *logger.Logger, w http.ResponseWriter, r *http.Request, status int, cmd teamcart.Command) {
	res, err := svc.Dispatch(r.Context(), cmd)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, status, newCommandResponse(res))
}

type createTeamCartRequest struct {
	RestaurantID uuid.UUID  `json:"restaurant_id" validate:"required"`
	HostUserID   uuid.UUID  `json:"host_user_id" validate:"required"`
	HostName     string     `json:"host_name" validate:"required,max=60"`
	Deadline     *time.Time `json:"deadline,omitempty"`
}

// CreateTeamCart opens a new cart with the caller as host.
func CreateTeamCart(svc teamcart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createTeamCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dispatch(svc, logg, w, r, http.StatusCreated, teamcart.CreateCart{
			RestaurantID: payload.RestaurantID,
			HostUserID:   payload.HostUserID,
			HostName:     validators.SanitizeString(payload.HostName, 60),
			Deadline:     payload.Deadline,
		})
	}
}

type joinTeamCartRequest struct {
	ShareToken  string     `json:"share_token" validate:"required"`
	DisplayName string     `json:"display_name" validate:"required,max=60"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
}

// JoinTeamCart adds a member through a share link.
func JoinTeamCart(svc teamcart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := validators.ParseUUIDParam(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload joinTeamCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dispatch(svc, logg, w, r, http.StatusCreated, teamcart.JoinCart{
			CartID:      cartID,
			ShareToken:  payload.ShareToken,
			DisplayName: validators.SanitizeString(payload.DisplayName, 60),
			UserID:      payload.UserID,
		})
	}
}

// GetTeamCart returns the authoritative cart view for a member.
func GetTeamCart(svc teamcart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, actor, err := cartActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetCartDetails(r.Context(), cartID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type addItemRequest struct {
	MenuItemID     uuid.UUID              `json:"menu_item_id" validate:"required"`
	Quantity       int                    `json:"quantity" validate:"required,min=1"`
	Customizations []models.Customization `json:"customizations,omitempty" validate:"omitempty,dive"`
}

func AddTeamCartItem(svc teamcart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, actor, err := cartActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dispatch(svc, logg, w, r, http.StatusCreated, teamcart.AddItem{
			CartID:         cartID,
			Actor:          actor,
			MenuItemID:     payload.MenuItemID,
			Quantity:       payload.Quantity,
			Customizations: models.Customizations(payload.Customizations),
		})
	}
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

func UpdateTeamCartItemQuantity(svc teamcart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, actor, err := cartActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dispatch(svc, logg, w, r, http.StatusOK, teamcart.UpdateItemQuantity{
			CartID:   cartID,
			Actor:    actor,
			ItemID:   itemID,
			Quantity: payload.Quantity,
		})
	}
}

func RemoveTeamCartItem(svc teamcart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, actor, err := cartActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dispatch(svc, logg, w, r, http.StatusOK, teamcart.RemoveItem{CartID: cartID, Actor: actor, ItemID: itemID})
	}
}

type applyTipRequest struct {
	Amount   string `json:"amount" validate:"required"`
	Currency string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// ApplyTeamCartTip sets the cart tip. An omitted currency means the cart's.
func ApplyTeamCartTip(svc teamcart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, actor, err := cartActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload applyTipRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tip, err := money.Parse(payload.Amount, payload.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tip amount"))
			return
		}
		dispatch(svc, logg, w, r, http.StatusOK, teamcart.ApplyTip{CartID: cartID, Actor: actor, Tip: tip})
	}
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

func ApplyTeamCartCoupon(svc teamcart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, actor, err := cartActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload applyCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dispatch(svc, logg, w, r, http.StatusOK, teamcart.ApplyCoupon{CartID: cartID, Actor: actor, Code: payload.Code})
	}
}

func RemoveTeamCartCoupon(svc teamcart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, actor, err := cartActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dispatch(svc, logg, w, r, http.StatusOK, teamcart.RemoveCoupon{CartID: cartID, Actor: actor})
	}
}

// LockTeamCart freezes membership and items so members can settle.
func LockTeamCart(svc teamcart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, actor, err := cartActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dispatch(svc, logg, w, r, http.StatusOK, teamcart.LockCart{CartID: cartID, Actor: actor})
	}
}
