// Package subscription holds the operations on subscription records that are
// not plain catalog transitions: extension date arithmetic, lazy expiry and
// access checks.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"freightflow/audit"
	"freightflow/entitlement"
	"freightflow/notify"
	"freightflow/store"
	"freightflow/workflow"
)

// SystemActor identifies automatic transitions in the audit trail.
const SystemActor = "system"

// Service wraps the store and the workflow engine for subscription-specific
// operations.
type Service struct {
	store  store.EntityStore
	engine *workflow.Engine
	audit  workflow.Auditor
	notify workflow.Notifier
	log    *logrus.Logger
	now    func() time.Time
}

func NewService(st store.EntityStore, engine *workflow.Engine, auditor workflow.Auditor, notifier workflow.Notifier, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:  st,
		engine: engine,
		audit:  auditor,
		notify: notifier,
		log:    log,
		now:    time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Extend pushes the subscription's end date forward by the given number of
// calendar months, counting from the later of now and the current end date.
// Extending an already-expired subscription therefore never loses time: the
// new window starts from now, not from the stale end date. The write is
// conditional; a conflict is returned to the caller unretried.
func (s *Service) Extend(ctx context.Context, id string, months int, actor string) (store.Snapshot, error) {
	if months <= 0 {
		return store.Snapshot{}, fmt.Errorf("subscription: extension months must be positive, got %d", months)
	}

	snap, err := s.store.Get(ctx, store.KindSubscription, id)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("subscription: load %s: %w", id, err)
	}

	now := s.now()
	base := now
	var previousEnd *time.Time
	if end, ok := snap.Time(store.FieldEndDate); ok {
		previousEnd = &end
		if end.After(base) {
			base = end
		}
	}
	newEnd := base.AddDate(0, months, 0)

	changes := map[string]any{
		store.FieldEndDate:  newEnd,
		store.FieldIsActive: snap.Status == workflow.SubscriptionActive,
	}
	newSnap, err := s.store.ConditionalUpdate(ctx, store.KindSubscription, id, snap.Version, changes)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("subscription: extend %s: %w", id, err)
	}

	details := map[string]any{
		"months":       months,
		"new_end_date": newEnd.Format(time.RFC3339),
	}
	if previousEnd != nil {
		details["previous_end_date"] = previousEnd.Format(time.RFC3339)
	}
	if err := s.audit.Record(ctx, audit.Entry{
		Type:        "subscription.extended",
		ActorID:     actor,
		SubjectKind: store.KindSubscription,
		SubjectID:   id,
		Details:     details,
	}); err != nil {
		s.log.WithError(err).WithField("subscription", id).Warn("subscription: extension audit not recorded")
	}

	data := notify.Data{
		EntityID: id,
		Kind:     store.KindSubscription,
		Fields:   newSnap.Fields,
		Payload:  map[string]any{"months": months},
	}
	recipient := newSnap.String(store.FieldClientEmail)
	if err := s.notify.Dispatch(ctx, notify.TemplateSubscriptionExtended, recipient, data); err != nil {
		s.log.WithError(err).WithField("subscription", id).Warn("subscription: extension notification not enqueued")
	}

	return newSnap, nil
}

// ExpireIfDue lazily writes back the expired status for an active
// subscription whose end date has elapsed. Readers never depend on this: the
// resolver treats stale records as inactive regardless. Returns true when the
// expiry transition was applied.
func (s *Service) ExpireIfDue(ctx context.Context, id string) (bool, error) {
	snap, err := s.store.Get(ctx, store.KindSubscription, id)
	if err != nil {
		return false, fmt.Errorf("subscription: load %s: %w", id, err)
	}
	if snap.Status != workflow.SubscriptionActive {
		return false, nil
	}
	end, ok := snap.Time(store.FieldEndDate)
	if !ok || !end.Before(s.now()) {
		return false, nil
	}

	if _, err := s.engine.Apply(ctx, store.KindSubscription, id, workflow.TransitionExpire, SystemActor, nil); err != nil {
		// Losing the race means someone else just acted on the record; the
		// next reader will expire it if it is still due.
		if errors.Is(err, store.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Access resolves the feature flags for the subscription as of now. A missing
// record is the basic tier, not an error. The result must not be cached
// beyond the current operation.
func (s *Service) Access(ctx context.Context, id string, now time.Time) (entitlement.Flags, error) {
	snap, err := s.store.Get(ctx, store.KindSubscription, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return entitlement.Flags{}, nil
		}
		return entitlement.Flags{}, fmt.Errorf("subscription: load %s: %w", id, err)
	}
	sub := entitlement.FromSnapshot(snap)
	return entitlement.Resolve(&sub, now), nil
}
