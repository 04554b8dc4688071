package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/api/middleware"
	"github.com/angelmondragon/teamcart-backend/api/validators"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
)

// cartActor resolves the {cartId} route parameter and the calling member.
// A member token only grants access to the cart it was issued for.
func cartActor(r *http.Request) (uuid.UUID, teamcart.Actor, error) {
	cartID, err := validators.ParseUUIDParam(r, "cartId")
	if err != nil {
		return uuid.Nil, teamcart.Actor{}, err
	}
	claims := middleware.MemberClaimsFromContext(r.Context())
	if claims == nil {
		return uuid.Nil, teamcart.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	if claims.CartID != cartID {
		return uuid.Nil, teamcart.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "token not valid for this cart")
	}
	return cartID, teamcart.Actor{MemberID: claims.MemberID, UserID: claims.UserID}, nil
}
