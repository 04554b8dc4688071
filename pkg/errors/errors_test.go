package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", retryable: true},
		{code: CodeInvalidState, status: http.StatusUnprocessableEntity, publicMsg: "operation not allowed in current state", detailsOK: true},
		{code: CodeExpired, status: http.StatusGone, publicMsg: "team cart expired"},
		{code: CodeExternalFailure, status: http.StatusBadGateway, publicMsg: "payment provider unavailable", retryable: true, detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "quantity must be positive")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Error() != "VALIDATION_ERROR: quantity must be positive" {
		t.Fatalf("unexpected error string %q", base.Error())
	}
	base.WithDetails(map[string]any{"field": "quantity"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeExternalFailure, cause, "create payment intent")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}

	formatted := Newf(CodeNotFound, "member %s not found", "abc")
	if formatted.Message() != "member abc not found" {
		t.Fatalf("unexpected message %q", formatted.Message())
	}
}

func TestCodeOfWalksChain(t *testing.T) {
	err := fmt.Errorf("load cart: %w", New(CodeExpired, "team cart expired"))
	if CodeOf(err) != CodeExpired {
		t.Fatalf("expected expired code, got %s", CodeOf(err))
	}
	if !HasCode(err, CodeExpired) {
		t.Fatalf("expected HasCode to match")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors should map to internal")
	}
	if HasCode(nil, CodeInternal) {
		t.Fatalf("nil error has no code")
	}
}

func TestNilErrorAccessors(t *testing.T) {
	var e *Error
	if e.Code() != CodeInternal || e.Message() != "" || e.Details() != nil || e.Error() != "" {
		t.Fatalf("nil receiver accessors should be safe")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should be nil")
	}
}

func TestDumpIncludesChainAndPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_team_cart_members_user", TableName: "team_cart_members"}
	err := Wrap(CodeConflict, fmt.Errorf("insert member: %w", pgErr), "member already joined")

	d := Dump(err)
	if d.Code != CodeConflict || !d.Retryable {
		t.Fatalf("unexpected code metadata %+v", d)
	}
	if d.PGCode != "23505" || d.PGConstraint != "ux_team_cart_members_user" {
		t.Fatalf("expected postgres details, got %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d", len(d.Chain))
	}
}
