package payloads

import (
	"time"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/google/uuid"
)

// TeamCartCreatedEvent is emitted when a host opens a cart.
type TeamCartCreatedEvent struct {
	CartID              uuid.UUID  `json:"cart_id"`
	RestaurantID        uuid.UUID  `json:"restaurant_id"`
	HostUserID          uuid.UUID  `json:"host_user_id"`
	Deadline            *time.Time `json:"deadline,omitempty"`
	ShareTokenExpiresAt time.Time  `json:"share_token_expires_at"`
}

// TeamCartMemberJoinedEvent is emitted for each accepted invite.
type TeamCartMemberJoinedEvent struct {
	CartID      uuid.UUID  `json:"cart_id"`
	MemberID    uuid.UUID  `json:"member_id"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	DisplayName string     `json:"display_name"`
}

// MemberShare is one row of a frozen allocation.
type MemberShare struct {
	MemberID    uuid.UUID `json:"member_id"`
	AmountCents int64     `json:"amount_cents"`
}

// TeamCartLockedEvent carries the allocation computed at lock time.
type TeamCartLockedEvent struct {
	CartID            uuid.UUID     `json:"cart_id"`
	AllocationVersion int           `json:"allocation_version"`
	GrandTotalCents   int64         `json:"grand_total_cents"`
	Currency          string        `json:"currency"`
	Shares            []MemberShare `json:"shares"`
}

// TeamCartPaymentEvent backs both committed and failed payment events.
type TeamCartPaymentEvent struct {
	CartID            uuid.UUID           `json:"cart_id"`
	MemberID          uuid.UUID           `json:"member_id"`
	PaymentID         uuid.UUID           `json:"payment_id"`
	AmountCents       int64               `json:"amount_cents"`
	Currency          string              `json:"currency"`
	Method            enums.PaymentMethod `json:"method"`
	ExternalReference *string             `json:"external_reference,omitempty"`
	Reason            string              `json:"reason,omitempty"`
}

// TeamCartConvertedEvent hands the placed order to downstream fulfillment.
type TeamCartConvertedEvent struct {
	CartID       uuid.UUID `json:"cart_id"`
	OrderID      uuid.UUID `json:"order_id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	HostUserID   uuid.UUID `json:"host_user_id"`
	TotalCents   int64     `json:"total_cents"`
	Currency     string    `json:"currency"`
}

// TeamCartExpiredEvent is emitted once when a cart passes its deadline.
type TeamCartExpiredEvent struct {
	CartID         uuid.UUID            `json:"cart_id"`
	PreviousStatus enums.TeamCartStatus `json:"previous_status"`
	ExpiredAt      time.Time            `json:"expired_at"`
}
