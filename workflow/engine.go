// Package workflow validates and applies entity status transitions. The
// transition catalog is the single authority on legality; the engine applies
// the state change through a version-guarded write and fires the catalog's
// declarative side effects. Correctness under concurrent callers comes
// entirely from the store's conditional write, never from in-process locks.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"freightflow/audit"
	"freightflow/notify"
	"freightflow/store"
)

var (
	// ErrInvalidTransition signals a (status, transition) pair absent from
	// the catalog. State is guaranteed unchanged and no side effect fired.
	ErrInvalidTransition = errors.New("workflow: invalid transition")
	// ErrAlreadyExists signals that the idempotency guard tripped: the
	// derived entity was already created by an earlier or concurrent call.
	ErrAlreadyExists = errors.New("workflow: derived entity already exists")
)

// Auditor records one audit entry per applied transition.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Notifier enqueues a rendered outbound message.
type Notifier interface {
	Dispatch(ctx context.Context, templateType, recipient string, data notify.Data) error
}

// Result is the outcome of a committed transition. A non-empty Warnings slice
// means the transition itself succeeded but one or more side effects failed;
// the caller should inform the operator without treating the transition as
// failed.
type Result struct {
	Snapshot store.Snapshot
	// DerivedID is set when the transition created a dependent entity.
	DerivedID string
	Warnings  []string
}

// Engine applies transitions. Safe for concurrent use.
type Engine struct {
	store   store.EntityStore
	catalog *Catalog
	audit   Auditor
	notify  Notifier
	log     *logrus.Logger
	now     func() time.Time
	newID   func() string
}

func NewEngine(st store.EntityStore, catalog *Catalog, auditor Auditor, notifier Notifier, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		store:   st,
		catalog: catalog,
		audit:   auditor,
		notify:  notifier,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Payload keys owned by the engine and the catalog. Caller payloads may carry
// admin-edited fields (amounts, notes, dates); they may never steer status or
// concurrency bookkeeping.
var reservedPayloadKeys = map[string]bool{
	store.FieldID:             true,
	store.FieldStatus:         true,
	store.FieldShipmentRef:    true,
	store.FieldLastUpdate:     true,
	store.FieldClientDecision: true,
	store.FieldIsActive:       true,
	"version":                 true,
}

// Apply validates the requested transition against the catalog, applies it
// via one conditional update and fires the entry's side effects in order:
// audit event first (always), then notifications, then derived-entity
// creation. A side-effect failure after the committed write is logged and
// surfaced through Result.Warnings, never rolled back.
//
// The supplied ctx bounds the whole call. A timeout mid-flight leaves the
// outcome unknown; callers must re-read entity state before retrying rather
// than resubmitting blindly.
func (e *Engine) Apply(ctx context.Context, kind store.Kind, id, transition, actor string, payload map[string]any) (Result, error) {
	snap, err := e.store.Get(ctx, kind, id)
	if err != nil {
		return Result{}, fmt.Errorf("workflow: load %s %s: %w", kind, id, err)
	}

	tr, ok := e.catalog.Lookup(kind, snap.Status, transition)
	if !ok {
		return Result{}, fmt.Errorf("workflow: %q from %s status %q: %w", transition, kind, snap.Status, ErrInvalidTransition)
	}
	if tr.NoOp {
		return Result{Snapshot: snap}, nil
	}

	changes := map[string]any{}
	for k, v := range payload {
		if reservedPayloadKeys[k] {
			continue
		}
		changes[k] = v
	}
	for k, v := range tr.Changes {
		changes[k] = v
	}
	changes[store.FieldStatus] = tr.To
	// last_update is the business "status changed" time on shipments,
	// distinct from the record-write timestamp.
	if kind == store.KindShipment && tr.To != snap.Status {
		changes[store.FieldLastUpdate] = e.now()
	}

	derived, derivedID, err := e.claimDerived(snap, tr, changes)
	if err != nil {
		return Result{}, err
	}

	newSnap, err := e.store.ConditionalUpdate(ctx, kind, id, snap.Version, changes)
	if err != nil {
		if derived != nil && errors.Is(err, store.ErrConflict) {
			// The race may have been lost to the other creation call. Only
			// then is the conflict reported as the benign AlreadyExists.
			if cur, gerr := e.store.Get(ctx, kind, id); gerr == nil && cur.String(derived.RefField) != "" {
				return Result{}, fmt.Errorf("workflow: %s %s: %w", kind, id, ErrAlreadyExists)
			}
		}
		return Result{}, fmt.Errorf("workflow: apply %q on %s %s: %w", transition, kind, id, err)
	}

	res := Result{Snapshot: newSnap, DerivedID: derivedID}
	e.runSideEffects(ctx, &res, tr, snap, actor, payload, derivedID)
	return res, nil
}

// claimDerived reserves the derived entity's identity inside the primary
// conditional write. The back-reference doubles as the idempotency guard:
// whoever wins the version check owns the one allowed creation.
func (e *Engine) claimDerived(snap store.Snapshot, tr Transition, changes map[string]any) (*CreateDerivedEntity, string, error) {
	for _, eff := range tr.Effects {
		d, ok := eff.(CreateDerivedEntity)
		if !ok {
			continue
		}
		if snap.String(d.RefField) != "" {
			return nil, "", fmt.Errorf("workflow: %s %s: %w", snap.Kind, snap.ID, ErrAlreadyExists)
		}
		id := e.newID()
		changes[d.RefField] = id
		return &d, id, nil
	}
	return nil, "", nil
}

func (e *Engine) runSideEffects(ctx context.Context, res *Result, tr Transition, prev store.Snapshot, actor string, payload map[string]any, derivedID string) {
	eventType := string(prev.Kind) + ".status_changed"
	note := ""
	for _, eff := range tr.Effects {
		if ev, ok := eff.(EmitEvent); ok {
			eventType = ev.Type
			note = ev.Note
		}
	}

	details := map[string]any{
		"previous_status": prev.Status,
		"next_status":     tr.To,
		"transition":      tr.Name,
	}
	if note != "" {
		details["note"] = note
	}
	if derivedID != "" {
		details["derived_id"] = derivedID
	}
	for k, v := range payload {
		if !reservedPayloadKeys[k] {
			details[k] = v
		}
	}

	if err := e.audit.Record(ctx, audit.Entry{
		Type:        eventType,
		ActorID:     actor,
		SubjectKind: prev.Kind,
		SubjectID:   prev.ID,
		Forced:      tr.Forced,
		Details:     details,
	}); err != nil {
		e.warn(res, err, "audit event not recorded")
	}

	for _, eff := range tr.Effects {
		switch eff := eff.(type) {
		case EmitNotification:
			data := notify.Data{
				EntityID:   prev.ID,
				Kind:       prev.Kind,
				From:       prev.Status,
				To:         tr.To,
				Transition: tr.Name,
				Fields:     res.Snapshot.Fields,
				Payload:    payload,
			}
			recipient := res.Snapshot.String(eff.RecipientField)
			if err := e.notify.Dispatch(ctx, eff.Template, recipient, data); err != nil {
				e.warn(res, err, "notification not enqueued")
			}
		case CreateDerivedEntity:
			fields := eff.Map(res.Snapshot)
			fields[store.FieldID] = derivedID
			if eff.Kind == store.KindShipment {
				fields[store.FieldLastUpdate] = e.now()
			}
			if _, err := e.store.Insert(ctx, eff.Kind, fields); err != nil {
				// The back-reference is already claimed; an operator must
				// reconcile from the audit trail.
				e.warn(res, err, "derived entity not created")
			}
		}
	}
}

func (e *Engine) warn(res *Result, err error, msg string) {
	e.log.WithError(err).WithFields(logrus.Fields{
		"kind":   res.Snapshot.Kind,
		"entity": res.Snapshot.ID,
	}).Warn("workflow: " + msg)
	res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", msg, err))
}
