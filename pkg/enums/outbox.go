package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateTeamCart OutboxAggregateType = "team_cart"
	AggregateOrder    OutboxAggregateType = "order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateTeamCart,
	AggregateOrder,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventTeamCartCreated          OutboxEventType = "teamcart_created"
	EventTeamCartMemberJoined     OutboxEventType = "teamcart_member_joined"
	EventTeamCartLocked           OutboxEventType = "teamcart_locked"
	EventTeamCartPaymentCommitted OutboxEventType = "teamcart_payment_committed"
	EventTeamCartPaymentFailed    OutboxEventType = "teamcart_payment_failed"
	EventTeamCartConverted        OutboxEventType = "teamcart_converted"
	EventTeamCartExpired          OutboxEventType = "teamcart_expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTeamCartCreated,
	EventTeamCartMemberJoined,
	EventTeamCartLocked,
	EventTeamCartPaymentCommitted,
	EventTeamCartPaymentFailed,
	EventTeamCartConverted,
	EventTeamCartExpired,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
