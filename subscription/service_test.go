package subscription

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"freightflow/audit"
	"freightflow/entitlement"
	"freightflow/notify"
	"freightflow/store"
	"freightflow/workflow"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	log := quietLogger()
	auditor := audit.NewLogger(mem)
	dispatcher := notify.NewDispatcher(mem, log)
	engine := workflow.NewEngine(mem, workflow.DefaultCatalog(), auditor, dispatcher, log)
	return NewService(mem, engine, auditor, dispatcher, log), mem
}

func seedSubscription(t *testing.T, mem *store.MemoryStore, status string, end *time.Time) string {
	t.Helper()
	fields := map[string]any{
		store.FieldStatus:      status,
		store.FieldClientEmail: "client@example.com",
		store.FieldPlanType:    entitlement.PlanPremiumTracking,
		store.FieldIsActive:    status == workflow.SubscriptionActive,
		store.FieldStartDate:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if end != nil {
		fields[store.FieldEndDate] = *end
	}
	id, err := mem.Insert(context.Background(), store.KindSubscription, fields)
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return id
}

func TestExtend_FromFutureEndDate(t *testing.T) {
	svc, mem := newTestService(t)
	now := time.Date(2023, 11, 20, 10, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	id := seedSubscription(t, mem, workflow.SubscriptionActive, &end)

	snap, err := svc.Extend(context.Background(), id, 3, "admin-1")
	if err != nil {
		t.Fatalf("extend: %v", err)
	}

	got, ok := snap.Time(store.FieldEndDate)
	want := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if !ok || !got.Equal(want) {
		t.Fatalf("end date %v, want %v", got, want)
	}
	if !snap.Bool(store.FieldIsActive) {
		t.Fatal("active subscription must stay active after extension")
	}

	events := mem.Events()
	if len(events) != 1 || events[0].Type != "subscription.extended" {
		t.Fatalf("expected one subscription.extended event, got %+v", events)
	}
	notifications := mem.Notifications()
	if len(notifications) != 1 || notifications[0].TemplateType != notify.TemplateSubscriptionExtended {
		t.Fatalf("expected one subscription_extended notification, got %+v", notifications)
	}
}

// Extending from no end date counts forward from now.
func TestExtend_WithoutEndDate(t *testing.T) {
	svc, mem := newTestService(t)
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	id := seedSubscription(t, mem, workflow.SubscriptionActive, nil)

	snap, err := svc.Extend(context.Background(), id, 1, "admin-1")
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	got, ok := snap.Time(store.FieldEndDate)
	want := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	if !ok || !got.Equal(want) {
		t.Fatalf("end date %v, want %v", got, want)
	}
}

// Extending an expired subscription never loses time to the stale end date:
// the new window counts from now.
func TestExtend_ExpiredSubscriptionCountsFromNow(t *testing.T) {
	svc, mem := newTestService(t)
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	staleEnd := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	id := seedSubscription(t, mem, workflow.SubscriptionActive, &staleEnd)

	snap, err := svc.Extend(context.Background(), id, 2, "admin-1")
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	got, _ := snap.Time(store.FieldEndDate)
	want := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("end date %v, want %v", got, want)
	}
}

func TestExtend_Validation(t *testing.T) {
	svc, mem := newTestService(t)
	id := seedSubscription(t, mem, workflow.SubscriptionActive, nil)

	if _, err := svc.Extend(context.Background(), id, 0, "admin-1"); err == nil {
		t.Fatal("expected error for zero months")
	}
	if _, err := svc.Extend(context.Background(), "missing", 1, "admin-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpireIfDue(t *testing.T) {
	svc, mem := newTestService(t)
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })
	ctx := context.Background()

	lapsed := now.Add(-24 * time.Hour)
	id := seedSubscription(t, mem, workflow.SubscriptionActive, &lapsed)

	applied, err := svc.ExpireIfDue(ctx, id)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if !applied {
		t.Fatal("expected expiry to apply")
	}

	snap, _ := mem.Get(ctx, store.KindSubscription, id)
	if snap.Status != workflow.SubscriptionExpired {
		t.Fatalf("status %q", snap.Status)
	}
	if snap.Bool(store.FieldIsActive) {
		t.Fatal("expired subscription left active")
	}
	events := mem.Events()
	if len(events) != 1 || events[0].ActorID != SystemActor {
		t.Fatalf("expiry must be audited as the system actor: %+v", events)
	}

	// Second invocation is a no-op.
	applied, err = svc.ExpireIfDue(ctx, id)
	if err != nil || applied {
		t.Fatalf("repeat expiry: applied=%v err=%v", applied, err)
	}

	// Not due yet.
	future := now.Add(24 * time.Hour)
	other := seedSubscription(t, mem, workflow.SubscriptionActive, &future)
	applied, err = svc.ExpireIfDue(ctx, other)
	if err != nil || applied {
		t.Fatalf("premature expiry: applied=%v err=%v", applied, err)
	}
}

func TestAccess(t *testing.T) {
	svc, mem := newTestService(t)
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// Never subscribed: the basic tier, not an error.
	flags, err := svc.Access(ctx, "missing", now)
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if flags != (entitlement.Flags{}) {
		t.Fatalf("expected basic tier, got %+v", flags)
	}

	id := seedSubscription(t, mem, workflow.SubscriptionActive, nil)
	flags, err = svc.Access(ctx, id, now)
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if !flags.DigitalPortalAccess || !flags.FullTrackingAccess {
		t.Fatalf("premium tracking expected both flags, got %+v", flags)
	}

	// A stale active record past its end date resolves inactive without any
	// write-back.
	lapsed := now.Add(-time.Hour)
	stale := seedSubscription(t, mem, workflow.SubscriptionActive, &lapsed)
	flags, err = svc.Access(ctx, stale, now)
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if flags != (entitlement.Flags{}) {
		t.Fatalf("stale subscription must resolve inactive, got %+v", flags)
	}
}

func TestSubscriptionTransitions_ReactivateAfterExpiry(t *testing.T) {
	svc, mem := newTestService(t)
	log := quietLogger()
	engine := workflow.NewEngine(mem, workflow.DefaultCatalog(), audit.NewLogger(mem), notify.NewDispatcher(mem, log), log)
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })
	ctx := context.Background()

	lapsed := now.Add(-time.Hour)
	id := seedSubscription(t, mem, workflow.SubscriptionActive, &lapsed)

	if _, err := svc.ExpireIfDue(ctx, id); err != nil {
		t.Fatalf("expire: %v", err)
	}
	res, err := engine.Apply(ctx, store.KindSubscription, id, workflow.TransitionReactivate, "admin-1", nil)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if res.Snapshot.Status != workflow.SubscriptionActive || !res.Snapshot.Bool(store.FieldIsActive) {
		t.Fatalf("after reactivate: %q active=%v", res.Snapshot.Status, res.Snapshot.Bool(store.FieldIsActive))
	}
}
