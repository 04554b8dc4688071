package models

import "testing"

func TestCustomizationsKeyIgnoresOrderAndCase(t *testing.T) {
	a := Customizations{{Group: "Size", Choice: "Large"}, {Group: "Sauce", Choice: "BBQ"}}
	b := Customizations{{Group: "sauce", Choice: "bbq"}, {Group: "size", Choice: "large"}}
	if a.Key() != b.Key() {
		t.Fatalf("expected equal keys, got %q vs %q", a.Key(), b.Key())
	}
	if (Customizations{}).Key() != "" {
		t.Fatal("expected empty key for no customizations")
	}
	c := Customizations{{Group: "size", Choice: "small"}}
	if c.Key() == a.Key() {
		t.Fatal("expected different selections to produce different keys")
	}
}
