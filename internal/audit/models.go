package audit

import (
	"time"

	id "subport/pkg/domain"
)

// Event is one immutable audit record: who did what to which order, when,
// and why. Emitted exactly once per successful mutation; never mutated or
// deleted. Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Timestamp time.Time
	ActorID   id.UserID
	OrderID   id.OrderID
	LineID    id.LineID
	Action    Action
	Source    id.ChangeSource
	Reason    string
	RequestID string
}

// Action is a recognized mutation kind.
type Action string

const (
	EventAddressChanged      Action = "address_changed"
	EventNextDatePushed      Action = "next_date_pushed"
	EventProductAdded        Action = "product_added"
	EventQuantityIncreased   Action = "quantity_increased"
	EventProductRemoved      Action = "product_removed"
	EventProductReplaced     Action = "product_replaced"
	EventSubscriptionPaused  Action = "subscription_paused"
	EventSubscriptionResumed Action = "subscription_resumed"
	EventIntervalChanged     Action = "interval_changed"
	EventLineEnded           Action = "line_ended"
	EventLineActivated       Action = "line_activated"
)
