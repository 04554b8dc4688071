package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/pkg/auth"
	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
)

func testIssuer(t *testing.T) *auth.Issuer {
	t.Helper()
	issuer, err := auth.NewIssuer(
		config.JWTConfig{Secret: "secret", Issuer: "teamcart", ExpirationMinutes: 60},
		config.ShareTokenConfig{Secret: "share", TTL: time.Hour},
	)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return issuer
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMemberAuthRejectsMissingToken(t *testing.T) {
	handler := MemberAuth(testIssuer(t), nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestMemberAuthRejectsInvalidToken(t *testing.T) {
	handler := MemberAuth(testIssuer(t), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestMemberAuthRejectsShareToken(t *testing.T) {
	issuer := testIssuer(t)
	now := time.Now()
	share, err := issuer.MintShareToken(uuid.New(), now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("MintShareToken: %v", err)
	}
	handler := MemberAuth(issuer, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+share)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestMemberAuthSeedsClaims(t *testing.T) {
	issuer := testIssuer(t)
	cartID, memberID := uuid.New(), uuid.New()
	token, err := issuer.MintMemberToken(time.Now(), auth.MemberTokenPayload{
		CartID:   cartID,
		MemberID: memberID,
		Role:     enums.MemberRoleMember,
	})
	if err != nil {
		t.Fatalf("MintMemberToken: %v", err)
	}

	var captured *auth.MemberTokenClaims
	handler := MemberAuth(issuer, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = MemberClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured == nil || captured.CartID != cartID || captured.MemberID != memberID {
		t.Fatalf("unexpected claims %+v", captured)
	}
	if captured.Role != enums.MemberRoleMember {
		t.Fatalf("unexpected role %s", captured.Role)
	}
}
