package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/google/uuid"
)

func TestMintAndParseMemberToken(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "teamcart",
		ExpirationMinutes: 30,
	}
	now := time.Now().UTC()
	cartID := uuid.New()
	memberID := uuid.New()
	userID := uuid.New()

	token, err := MintMemberToken(cfg, now, MemberTokenPayload{
		CartID:   cartID,
		MemberID: memberID,
		UserID:   &userID,
		Role:     enums.MemberRoleHost,
	})
	if err != nil {
		t.Fatalf("mint member token: %v", err)
	}

	claims, err := ParseMemberToken(cfg, token)
	if err != nil {
		t.Fatalf("parse member token: %v", err)
	}
	if claims.CartID != cartID || claims.MemberID != memberID {
		t.Fatalf("ids not preserved: %+v", claims)
	}
	if claims.UserID == nil || *claims.UserID != userID {
		t.Fatalf("user id not preserved")
	}
	if claims.Role != enums.MemberRoleHost {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}
	diff := claims.ExpiresAt.Sub(now.Add(30 * time.Minute))
	if diff < -time.Second || diff > time.Second {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt)
	}
}

func TestParseMemberTokenRejectsTampering(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "teamcart", ExpirationMinutes: 10}
	token, err := MintMemberToken(cfg, time.Now(), MemberTokenPayload{
		CartID:   uuid.New(),
		MemberID: uuid.New(),
		Role:     enums.MemberRoleMember,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := ParseMemberToken(config.JWTConfig{Secret: "other", Issuer: "teamcart"}, token); err == nil {
		t.Fatal("expected signature error")
	}
	if _, err := ParseMemberToken(config.JWTConfig{Secret: "secret", Issuer: "someone-else"}, token); err == nil {
		t.Fatal("expected issuer error")
	}
	parts := strings.Split(token, ".")
	if _, err := ParseMemberToken(cfg, parts[0]+"."+parts[1]+".invalid"); err == nil {
		t.Fatal("expected malformed signature error")
	}
}

func TestParseMemberTokenExpired(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "teamcart", ExpirationMinutes: 1}
	token, err := MintMemberToken(cfg, time.Now().Add(-2*time.Hour), MemberTokenPayload{
		CartID:   uuid.New(),
		MemberID: uuid.New(),
		Role:     enums.MemberRoleMember,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseMemberToken(cfg, token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestMintMemberTokenValidatesInput(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "teamcart", ExpirationMinutes: 10}
	if _, err := MintMemberToken(cfg, time.Now(), MemberTokenPayload{Role: enums.MemberRoleHost}); err == nil {
		t.Fatal("expected missing ids to fail")
	}
	if _, err := MintMemberToken(cfg, time.Now(), MemberTokenPayload{CartID: uuid.New(), MemberID: uuid.New(), Role: "owner"}); err == nil {
		t.Fatal("expected invalid role to fail")
	}
}

func TestShareTokenParsesAfterExpiry(t *testing.T) {
	cfg := config.ShareTokenConfig{Secret: "share-secret", TTL: time.Hour}
	cartID := uuid.New()
	issued := time.Now().Add(-3 * time.Hour)

	token, err := MintShareToken(cfg, cartID, issued, issued.Add(time.Hour))
	if err != nil {
		t.Fatalf("mint share token: %v", err)
	}
	claims, err := ParseShareToken(cfg, token)
	if err != nil {
		t.Fatalf("expected expired share token to still parse, got %v", err)
	}
	if claims.CartID != cartID {
		t.Fatalf("cart id mismatch")
	}
	if _, err := ParseShareToken(config.ShareTokenConfig{Secret: "nope"}, token); err == nil {
		t.Fatal("expected signature error")
	}
	if _, err := MintShareToken(cfg, cartID, issued, issued); err == nil {
		t.Fatal("expected non-future expiry to fail")
	}
}

func TestIssuerRoundTripsShareToken(t *testing.T) {
	issuer, err := NewIssuer(
		config.JWTConfig{Secret: "secret", Issuer: "teamcart", ExpirationMinutes: 10},
		config.ShareTokenConfig{Secret: "share", TTL: time.Hour},
	)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	now := time.Now().UTC()
	cartID := uuid.New()
	token, err := issuer.MintShareToken(cartID, now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("mint share token: %v", err)
	}
	got, err := issuer.VerifyShareToken(token)
	if err != nil {
		t.Fatalf("verify share token: %v", err)
	}
	if got != cartID {
		t.Fatalf("expected cart %s, got %s", cartID, got)
	}

	other, _ := NewIssuer(
		config.JWTConfig{Secret: "secret", Issuer: "teamcart", ExpirationMinutes: 10},
		config.ShareTokenConfig{Secret: "different"},
	)
	if _, err := other.VerifyShareToken(token); err == nil {
		t.Fatal("expected signature mismatch")
	}
	if _, err := NewIssuer(config.JWTConfig{}, config.ShareTokenConfig{Secret: "x"}); err == nil {
		t.Fatal("expected missing jwt secret error")
	}
}
