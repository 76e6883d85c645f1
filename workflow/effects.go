package workflow

import "freightflow/store"

// SideEffect is a declarative command attached to a catalog entry. The engine
// executes effects after the primary conditional write commits; they are
// enumerable and replayable without touching any I/O, which is what makes
// transition behavior unit-testable.
type SideEffect interface {
	sideEffect()
}

// EmitEvent names the audit event a transition records. Every transition gets
// exactly one audit event; entries without an explicit EmitEvent fall back to
// the engine's default "<kind>.status_changed" type.
type EmitEvent struct {
	// Type is the audit event type, e.g. "quote.status_changed".
	Type string
	// Note is a short operator-facing annotation included in the event details.
	Note string
}

func (EmitEvent) sideEffect() {}

// EmitNotification enqueues an outbound message rendered from the named
// template. RecipientField selects the snapshot field holding the address.
type EmitNotification struct {
	Template       string
	RecipientField string
}

func (EmitNotification) sideEffect() {}

// CreateDerivedEntity creates one dependent entity from the transitioned one.
// RefField is the back-reference on the source entity; the engine claims it
// inside the source's conditional write, which is what bounds creation to
// at most once.
type CreateDerivedEntity struct {
	Kind     store.Kind
	RefField string
	// Map builds the derived entity's fields from the source snapshot.
	Map func(src store.Snapshot) map[string]any
}

func (CreateDerivedEntity) sideEffect() {}
