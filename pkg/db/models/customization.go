package models

import (
	"sort"
	"strings"
)

// Customization is one group → choice selection on a cart line.
type Customization struct {
	Group  string `json:"group" validate:"required"`
	Choice string `json:"choice" validate:"required"`
}

// Customizations is stored as a JSON array on cart and order lines.
type Customizations []Customization

// Key returns an order-independent identity used to merge identical lines.
func (c Customizations) Key() string {
	if len(c) == 0 {
		return ""
	}
	parts := make([]string, 0, len(c))
	for _, sel := range c {
		parts = append(parts, strings.ToLower(strings.TrimSpace(sel.Group))+"="+strings.ToLower(strings.TrimSpace(sel.Choice)))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
