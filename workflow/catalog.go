package workflow

import (
	"sort"

	"freightflow/notify"
	"freightflow/store"
)

// Transition names. These, together with the status enums, are the stable
// contract surface callers build on.
const (
	// Quote
	TransitionStartProgress  = "startProgress"
	TransitionSendToClient   = "sendToClient"
	TransitionAccept         = "accept"
	TransitionRefuse         = "refuse"
	TransitionForceAccept    = "forceAccept"
	TransitionCreateShipment = "createShipment"

	// Shipment
	TransitionSubmitForQuote = "submitForQuote"
	TransitionConfirm        = "confirm"
	TransitionStartTransit   = "startTransit"
	TransitionArriveAtPort   = "arriveAtPort"
	TransitionDeliver        = "deliver"
	TransitionHold           = "hold"
	TransitionCancel         = "cancel"
	TransitionForceDeliver   = "forceDeliver"

	// Agent
	TransitionValidate = "validate"
	TransitionReject   = "reject"
	TransitionSuspend  = "suspend"

	// Subscription
	TransitionActivate   = "activate"
	TransitionDeactivate = "deactivate"
	TransitionReactivate = "reactivate"
	TransitionExpire     = "expire"
)

// Transition is one legal (from, name) edge and everything applying it does:
// the target status, extra field changes written with the same conditional
// update, and the declarative side effects fired after the write commits.
type Transition struct {
	Name string
	From string
	To   string
	// Forced marks an admin override that bypassed the normal path; it is
	// carried onto the audit event.
	Forced bool
	// NoOp entries succeed without writing or firing effects. Used for the
	// idempotent re-send of a quote already sent to the client.
	NoOp    bool
	Changes map[string]any
	Effects []SideEffect
}

type catalogKey struct {
	from string
	name string
}

// Catalog is the static per-kind table of legal transitions. It is the single
// authority on status legality: no code path writes a status value that does
// not appear here.
type Catalog struct {
	entries map[store.Kind]map[catalogKey]Transition
}

func (c *Catalog) add(kind store.Kind, t Transition) {
	byKey, ok := c.entries[kind]
	if !ok {
		byKey = map[catalogKey]Transition{}
		c.entries[kind] = byKey
	}
	byKey[catalogKey{from: t.From, name: t.Name}] = t
}

// Lookup resolves the transition for (from, name) on the given kind.
func (c *Catalog) Lookup(kind store.Kind, from, name string) (Transition, bool) {
	t, ok := c.entries[kind][catalogKey{from: from, name: name}]
	return t, ok
}

// Kinds lists the entity kinds the catalog covers, sorted for stable output.
func (c *Catalog) Kinds() []store.Kind {
	kinds := make([]store.Kind, 0, len(c.entries))
	for k := range c.entries {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Entries lists every transition registered for the kind, sorted by
// (from, name) for stable iteration in tests.
func (c *Catalog) Entries(kind store.Kind) []Transition {
	byKey := c.entries[kind]
	out := make([]Transition, 0, len(byKey))
	for _, t := range byKey {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// DefaultCatalog builds the production transition table for all four entity
// kinds.
func DefaultCatalog() *Catalog {
	c := &Catalog{entries: map[store.Kind]map[catalogKey]Transition{}}
	c.addQuoteTransitions()
	c.addShipmentTransitions()
	c.addAgentTransitions()
	c.addSubscriptionTransitions()
	return c
}

func (c *Catalog) addQuoteTransitions() {
	c.add(store.KindQuote, Transition{
		Name: TransitionStartProgress,
		From: QuoteReceived,
		To:   QuoteInProgress,
		Effects: []SideEffect{
			EmitEvent{Type: "quote.status_changed", Note: "quote taken into processing"},
		},
	})
	// Sending is legal straight from intake: admins routinely quote simple
	// requests without marking them in progress first.
	for _, from := range []string{QuoteReceived, QuoteInProgress} {
		c.add(store.KindQuote, Transition{
			Name: TransitionSendToClient,
			From: from,
			To:   QuoteSentToClient,
			Effects: []SideEffect{
				EmitEvent{Type: "quote.status_changed", Note: "quote sent to client"},
				EmitNotification{Template: notify.TemplateQuoteSent, RecipientField: store.FieldClientEmail},
			},
		})
	}
	// Re-sending an already-sent quote is a safe no-op: the UI disables the
	// button but the engine must tolerate a repeat call.
	c.add(store.KindQuote, Transition{
		Name: TransitionSendToClient,
		From: QuoteSentToClient,
		To:   QuoteSentToClient,
		NoOp: true,
	})
	c.add(store.KindQuote, Transition{
		Name:    TransitionAccept,
		From:    QuoteSentToClient,
		To:      QuoteAccepted,
		Changes: map[string]any{store.FieldClientDecision: DecisionAccepted},
		Effects: []SideEffect{
			EmitEvent{Type: "quote.status_changed", Note: "quote accepted by client"},
			EmitNotification{Template: notify.TemplateQuoteAccepted, RecipientField: store.FieldClientEmail},
		},
	})
	c.add(store.KindQuote, Transition{
		Name:    TransitionRefuse,
		From:    QuoteSentToClient,
		To:      QuoteRefused,
		Changes: map[string]any{store.FieldClientDecision: DecisionRefused},
		Effects: []SideEffect{
			EmitEvent{Type: "quote.status_changed", Note: "quote refused by client"},
			EmitNotification{Template: notify.TemplateQuoteRefused, RecipientField: store.FieldClientEmail},
		},
	})
	for _, from := range []string{QuoteReceived, QuoteInProgress, QuoteSentToClient} {
		c.add(store.KindQuote, Transition{
			Name:    TransitionForceAccept,
			From:    from,
			To:      QuoteAccepted,
			Forced:  true,
			Changes: map[string]any{store.FieldClientDecision: DecisionAccepted},
			Effects: []SideEffect{
				EmitEvent{Type: "quote.status_changed", Note: "acceptance forced by administrator"},
				EmitNotification{Template: notify.TemplateQuoteAccepted, RecipientField: store.FieldClientEmail},
			},
		})
	}
	c.add(store.KindQuote, Transition{
		Name: TransitionCreateShipment,
		From: QuoteAccepted,
		To:   QuoteAccepted,
		Effects: []SideEffect{
			EmitEvent{Type: "quote.shipment_created", Note: "shipment derived from accepted quote"},
			EmitNotification{Template: notify.TemplateShipmentCreated, RecipientField: store.FieldClientEmail},
			CreateDerivedEntity{
				Kind:     store.KindShipment,
				RefField: store.FieldShipmentRef,
				Map:      shipmentFromQuote,
			},
		},
	})
}

// shipmentFromQuote projects an accepted quote into its shipment. The
// shipment starts confirmed: the client already committed to the quoted
// route and cargo.
func shipmentFromQuote(src store.Snapshot) map[string]any {
	return map[string]any{
		store.FieldStatus:           ShipmentConfirmed,
		store.FieldOrigin:           src.String(store.FieldOrigin),
		store.FieldDestination:      src.String(store.FieldDestination),
		store.FieldCargoDescription: src.String(store.FieldCargoDescription),
		store.FieldClientEmail:      src.String(store.FieldClientEmail),
		store.FieldInternalNotes:    "",
		store.FieldClientNotes:      "",
	}
}

func (c *Catalog) addShipmentTransitions() {
	steps := []struct {
		name string
		from string
		to   string
		note string
	}{
		{TransitionSubmitForQuote, ShipmentDraft, ShipmentQuotePending, "shipment submitted for quotation"},
		{TransitionConfirm, ShipmentQuotePending, ShipmentConfirmed, "shipment confirmed"},
		{TransitionStartTransit, ShipmentConfirmed, ShipmentInTransit, "shipment departed"},
		{TransitionArriveAtPort, ShipmentInTransit, ShipmentAtPort, "shipment arrived at port"},
	}
	for _, s := range steps {
		c.add(store.KindShipment, Transition{
			Name: s.name,
			From: s.from,
			To:   s.to,
			Effects: []SideEffect{
				EmitEvent{Type: "shipment.status_changed", Note: s.note},
			},
		})
	}
	c.add(store.KindShipment, Transition{
		Name: TransitionDeliver,
		From: ShipmentAtPort,
		To:   ShipmentDelivered,
		Effects: []SideEffect{
			EmitEvent{Type: "shipment.status_changed", Note: "shipment delivered"},
			EmitNotification{Template: notify.TemplateShipmentDelivered, RecipientField: store.FieldClientEmail},
		},
	})

	nonTerminal := []string{
		ShipmentDraft, ShipmentQuotePending, ShipmentConfirmed,
		ShipmentInTransit, ShipmentAtPort, ShipmentOnHold,
	}
	for _, from := range nonTerminal {
		if from != ShipmentOnHold {
			c.add(store.KindShipment, Transition{
				Name: TransitionHold,
				From: from,
				To:   ShipmentOnHold,
				Effects: []SideEffect{
					EmitEvent{Type: "shipment.status_changed", Note: "shipment placed on hold"},
					EmitNotification{Template: notify.TemplateShipmentOnHold, RecipientField: store.FieldClientEmail},
				},
			})
		}
		c.add(store.KindShipment, Transition{
			Name: TransitionCancel,
			From: from,
			To:   ShipmentCancelled,
			Effects: []SideEffect{
				EmitEvent{Type: "shipment.status_changed", Note: "shipment cancelled"},
				EmitNotification{Template: notify.TemplateShipmentCancelled, RecipientField: store.FieldClientEmail},
			},
		})
		c.add(store.KindShipment, Transition{
			Name:   TransitionForceDeliver,
			From:   from,
			To:     ShipmentDelivered,
			Forced: true,
			Effects: []SideEffect{
				EmitEvent{Type: "shipment.status_changed", Note: "delivery forced by administrator"},
				EmitNotification{Template: notify.TemplateShipmentDelivered, RecipientField: store.FieldClientEmail},
			},
		})
	}
}

func (c *Catalog) addAgentTransitions() {
	validateFrom := []struct {
		from string
		note string
	}{
		{AgentPending, "agent application validated"},
		{AgentSuspended, "agent reinstated"},
		{AgentRejected, "agent reactivated"},
	}
	for _, v := range validateFrom {
		c.add(store.KindAgent, Transition{
			Name: TransitionValidate,
			From: v.from,
			To:   AgentValidated,
			Effects: []SideEffect{
				EmitEvent{Type: "agent.status_changed", Note: v.note},
				EmitNotification{Template: notify.TemplateAgentValidated, RecipientField: store.FieldContactEmail},
			},
		})
	}
	c.add(store.KindAgent, Transition{
		Name: TransitionReject,
		From: AgentPending,
		To:   AgentRejected,
		Effects: []SideEffect{
			EmitEvent{Type: "agent.status_changed", Note: "agent application rejected"},
			EmitNotification{Template: notify.TemplateAgentRejected, RecipientField: store.FieldContactEmail},
		},
	})
	c.add(store.KindAgent, Transition{
		Name: TransitionSuspend,
		From: AgentValidated,
		To:   AgentSuspended,
		Effects: []SideEffect{
			EmitEvent{Type: "agent.status_changed", Note: "agent listing suspended"},
			EmitNotification{Template: notify.TemplateAgentSuspended, RecipientField: store.FieldContactEmail},
		},
	})
}

func (c *Catalog) addSubscriptionTransitions() {
	c.add(store.KindSubscription, Transition{
		Name:    TransitionActivate,
		From:    SubscriptionPending,
		To:      SubscriptionActive,
		Changes: map[string]any{store.FieldIsActive: true},
		Effects: []SideEffect{
			EmitEvent{Type: "subscription.status_changed", Note: "subscription activated"},
			EmitNotification{Template: notify.TemplateSubscriptionActivated, RecipientField: store.FieldClientEmail},
		},
	})
	c.add(store.KindSubscription, Transition{
		Name:    TransitionDeactivate,
		From:    SubscriptionActive,
		To:      SubscriptionCancelled,
		Changes: map[string]any{store.FieldIsActive: false},
		Effects: []SideEffect{
			EmitEvent{Type: "subscription.status_changed", Note: "subscription cancelled"},
			EmitNotification{Template: notify.TemplateSubscriptionCancelled, RecipientField: store.FieldClientEmail},
		},
	})
	for _, from := range []string{SubscriptionCancelled, SubscriptionExpired} {
		c.add(store.KindSubscription, Transition{
			Name:    TransitionReactivate,
			From:    from,
			To:      SubscriptionActive,
			Changes: map[string]any{store.FieldIsActive: true},
			Effects: []SideEffect{
				EmitEvent{Type: "subscription.status_changed", Note: "subscription reactivated"},
				EmitNotification{Template: notify.TemplateSubscriptionReactivated, RecipientField: store.FieldClientEmail},
			},
		})
	}
	// Applied by the system when a lapsed end date is observed, never by an
	// admin action.
	c.add(store.KindSubscription, Transition{
		Name:    TransitionExpire,
		From:    SubscriptionActive,
		To:      SubscriptionExpired,
		Changes: map[string]any{store.FieldIsActive: false},
		Effects: []SideEffect{
			EmitEvent{Type: "subscription.status_changed", Note: "subscription expired"},
		},
	})
}
