package enums

import "testing"

func TestTeamCartStatusTransitionsHelpers(t *testing.T) {
	cases := []struct {
		status    TeamCartStatus
		terminal  bool
		canExpire bool
	}{
		{TeamCartStatusOpen, false, true},
		{TeamCartStatusLocked, false, true},
		{TeamCartStatusConverted, true, false},
		{TeamCartStatusExpired, true, false},
	}
	for _, tc := range cases {
		if tc.status.IsTerminal() != tc.terminal {
			t.Fatalf("%s: expected terminal=%v", tc.status, tc.terminal)
		}
		if tc.status.CanExpire() != tc.canExpire {
			t.Fatalf("%s: expected canExpire=%v", tc.status, tc.canExpire)
		}
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	if _, err := ParseTeamCartStatus("archived"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if _, err := ParsePaymentMethod("crypto"); err == nil {
		t.Fatal("expected error for unknown payment method")
	}
	if _, err := ParsePaymentStatus("refunded"); err == nil {
		t.Fatal("expected error for unknown payment status")
	}
	if role, err := ParseMemberRole("host"); err != nil || role != MemberRoleHost {
		t.Fatalf("expected host role, got %q (%v)", role, err)
	}
	if _, err := ParseOutboxEventType("order_created"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
