package auth

import (
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MemberTokenPayload captures the data available when minting a member token.
type MemberTokenPayload struct {
	CartID   uuid.UUID
	MemberID uuid.UUID
	UserID   *uuid.UUID
	Role     enums.MemberRole
}

// MemberTokenClaims identifies the caller of every cart-scoped route.
type MemberTokenClaims struct {
	CartID   uuid.UUID        `json:"cart_id"`
	MemberID uuid.UUID        `json:"member_id"`
	UserID   *uuid.UUID       `json:"user_id,omitempty"`
	Role     enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// ShareTokenClaims is embedded in the invite link handed out by the host.
type ShareTokenClaims struct {
	CartID uuid.UUID `json:"cart_id"`
	jwt.RegisteredClaims
}
