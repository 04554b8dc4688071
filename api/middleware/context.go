package middleware

import (
	"context"

	"github.com/angelmondragon/teamcart-backend/pkg/auth"
)

type contextKey string

const ctxMemberClaims contextKey = "member_claims"

// MemberClaimsFromContext returns the verified access token claims, or nil
// on routes that do not require a member token.
func MemberClaimsFromContext(ctx context.Context) *auth.MemberTokenClaims {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxMemberClaims).(*auth.MemberTokenClaims); ok {
		return v
	}
	return nil
}

// WithMemberClaims injects member claims into the context.
func WithMemberClaims(ctx context.Context, claims *auth.MemberTokenClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxMemberClaims, claims)
}

func memberIDFromContext(ctx context.Context) string {
	if claims := MemberClaimsFromContext(ctx); claims != nil {
		return claims.MemberID.String()
	}
	return ""
}
