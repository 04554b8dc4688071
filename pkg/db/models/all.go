package models

// All lists every table the service reads or writes, in dependency order.
func All() []any {
	return []any{
		&Restaurant{},
		&MenuItem{},
		&MenuItemOption{},
		&Coupon{},
		&TeamCart{},
		&TeamCartMember{},
		&TeamCartItem{},
		&TeamCartMemberPayment{},
		&Order{},
		&OrderItem{},
		&OrderPaymentTransaction{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
