package auth

import (
	"fmt"
	"time"

	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintMemberToken issues a signed JWT for the provided payload using the configured TTL.
func MintMemberToken(cfg config.JWTConfig, now time.Time, payload MemberTokenPayload) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return "", fmt.Errorf("jwt issuer is required")
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", fmt.Errorf("jwt expiration minutes must be positive")
	}
	if payload.CartID == uuid.Nil || payload.MemberID == uuid.Nil {
		return "", fmt.Errorf("cart and member ids are required")
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid member role %q", payload.Role)
	}

	claims := MemberTokenClaims{
		CartID:   payload.CartID,
		MemberID: payload.MemberID,
		UserID:   payload.UserID,
		Role:     payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.MemberID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL())),
			ID:        uuid.NewString(),
		},
	}
	return sign(cfg.Secret, claims)
}

// ParseMemberToken validates the JWT string and returns typed claims.
func ParseMemberToken(cfg config.JWTConfig, tokenString string) (*MemberTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	claims := &MemberTokenClaims{}
	if _, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		keyFunc(cfg.Secret),
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	); err != nil {
		return nil, err
	}
	if claims.CartID == uuid.Nil || claims.MemberID == uuid.Nil {
		return nil, fmt.Errorf("member token missing cart or member id")
	}
	return claims, nil
}

// MintShareToken signs an invite token for cartID that expires at expiresAt.
func MintShareToken(cfg config.ShareTokenConfig, cartID uuid.UUID, now, expiresAt time.Time) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("share token secret is required")
	}
	if cartID == uuid.Nil {
		return "", fmt.Errorf("cart id is required")
	}
	if !expiresAt.After(now) {
		return "", fmt.Errorf("share token expiry must be in the future")
	}
	claims := ShareTokenClaims{
		CartID: cartID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	return sign(cfg.Secret, claims)
}

// ParseShareToken verifies the signature and returns the claims without
// enforcing exp; the cart's stored expiry is authoritative so an expired
// invite can be reported as such rather than as malformed.
func ParseShareToken(cfg config.ShareTokenConfig, tokenString string) (*ShareTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("share token secret is required")
	}
	claims := &ShareTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithoutClaimsValidation(),
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
	)
	if _, err := parser.ParseWithClaims(tokenString, claims, keyFunc(cfg.Secret)); err != nil {
		return nil, err
	}
	if claims.CartID == uuid.Nil {
		return nil, fmt.Errorf("share token missing cart id")
	}
	return claims, nil
}

func sign(secret string, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

func keyFunc(secret string) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwtSigningMethod {
			return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
		}
		return []byte(secret), nil
	}
}
