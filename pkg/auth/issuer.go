package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/pkg/config"
)

// Issuer binds the token helpers to their configuration.
type Issuer struct {
	jwt   config.JWTConfig
	share config.ShareTokenConfig
}

func NewIssuer(jwtCfg config.JWTConfig, shareCfg config.ShareTokenConfig) (*Issuer, error) {
	if jwtCfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if shareCfg.Secret == "" {
		return nil, fmt.Errorf("share token secret is required")
	}
	return &Issuer{jwt: jwtCfg, share: shareCfg}, nil
}

func (i *Issuer) MintShareToken(cartID uuid.UUID, now, expiresAt time.Time) (string, error) {
	return MintShareToken(i.share, cartID, now, expiresAt)
}

// VerifyShareToken checks the signature and returns the cart it invites to.
func (i *Issuer) VerifyShareToken(token string) (uuid.UUID, error) {
	claims, err := ParseShareToken(i.share, token)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.CartID, nil
}

func (i *Issuer) MintMemberToken(now time.Time, payload MemberTokenPayload) (string, error) {
	return MintMemberToken(i.jwt, now, payload)
}

func (i *Issuer) ParseMemberToken(token string) (*MemberTokenClaims, error) {
	return ParseMemberToken(i.jwt, token)
}
