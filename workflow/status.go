package workflow

import "freightflow/store"

// Quote statuses.
const (
	QuoteReceived     = "received"
	QuoteInProgress   = "in_progress"
	QuoteSentToClient = "sent_to_client"
	QuoteAccepted     = "accepted"
	QuoteRefused      = "refused"
)

// Client decision values on a quote. Tracks but is not identical to the quote
// status: the decision stays pending until the client (or a forced admin
// action) settles it.
const (
	DecisionPending  = "pending"
	DecisionAccepted = "accepted"
	DecisionRefused  = "refused"
)

// Payment statuses on a quote.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Shipment statuses.
const (
	ShipmentDraft        = "draft"
	ShipmentQuotePending = "quote_pending"
	ShipmentConfirmed    = "confirmed"
	ShipmentInTransit    = "in_transit"
	ShipmentAtPort       = "at_port"
	ShipmentDelivered    = "delivered"
	ShipmentOnHold       = "on_hold"
	ShipmentCancelled    = "cancelled"
)

// Agent statuses.
const (
	AgentPending   = "pending"
	AgentValidated = "validated"
	AgentRejected  = "rejected"
	AgentSuspended = "suspended"
)

// Subscription statuses.
const (
	SubscriptionPending   = "pending"
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

var terminalStatuses = map[store.Kind]map[string]bool{
	store.KindQuote: {
		QuoteAccepted: true,
		QuoteRefused:  true,
	},
	store.KindShipment: {
		ShipmentDelivered: true,
		ShipmentCancelled: true,
	},
	// Agent statuses are all mutually reachable except pending, which only
	// moves forward; nothing is terminal.
	store.KindAgent: {},
	// A cancelled or expired subscription can always be reactivated.
	store.KindSubscription: {},
}

// Terminal reports whether no transition may leave the given status.
func Terminal(kind store.Kind, status string) bool {
	return terminalStatuses[kind][status]
}
