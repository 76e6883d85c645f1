package notify

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"freightflow/store"
)

func newTestDispatcher() (*Dispatcher, *store.MemoryStore) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	mem := store.NewMemoryStore()
	return NewDispatcher(mem, log), mem
}

func TestDispatch_RendersAndEnqueues(t *testing.T) {
	d, mem := newTestDispatcher()

	data := Data{
		EntityID: "q-1",
		Kind:     store.KindQuote,
		Fields: map[string]any{
			store.FieldCargoDescription: "machine parts",
			store.FieldOrigin:           "Rotterdam",
			store.FieldDestination:      "Singapore",
			store.FieldQuoteAmount:      1200.50,
			store.FieldCurrency:         "EUR",
		},
	}
	if err := d.Dispatch(context.Background(), TemplateQuoteSent, "client@example.com", data); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	notifications := mem.Notifications()
	if len(notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifications))
	}
	n := notifications[0]
	if n.Recipient != "client@example.com" {
		t.Fatalf("recipient %q", n.Recipient)
	}
	if n.TemplateType != TemplateQuoteSent {
		t.Fatalf("template %q", n.TemplateType)
	}
	if n.Status != store.NotificationPending {
		t.Fatalf("status %q, want pending", n.Status)
	}
	if n.Subject == "" {
		t.Fatal("subject not rendered")
	}
	for _, want := range []string{"machine parts", "Rotterdam", "Singapore", "EUR"} {
		if !strings.Contains(n.Body, want) {
			t.Fatalf("body %q missing %q", n.Body, want)
		}
	}
}

func TestDispatch_EmptyRecipient(t *testing.T) {
	d, mem := newTestDispatcher()

	err := d.Dispatch(context.Background(), TemplateQuoteSent, "", Data{})
	if err == nil {
		t.Fatal("expected error for empty recipient")
	}
	if got := mem.Notifications(); len(got) != 0 {
		t.Fatalf("expected nothing enqueued, got %d", len(got))
	}
}

func TestDispatch_UnknownTemplate(t *testing.T) {
	d, mem := newTestDispatcher()

	err := d.Dispatch(context.Background(), "no_such_template", "client@example.com", Data{})
	if err == nil {
		t.Fatal("expected error for unknown template")
	}
	if got := mem.Notifications(); len(got) != 0 {
		t.Fatalf("expected nothing enqueued, got %d", len(got))
	}
}

func TestRegister_OverridesDefault(t *testing.T) {
	d, mem := newTestDispatcher()

	if err := d.Register(TemplateQuoteAccepted, "Confirmed: {{.EntityID}}", "Quote {{.EntityID}} confirmed."); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.Dispatch(context.Background(), TemplateQuoteAccepted, "client@example.com", Data{EntityID: "q-9"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	n := mem.Notifications()[0]
	if n.Subject != "Confirmed: q-9" {
		t.Fatalf("subject %q", n.Subject)
	}
	if n.Body != "Quote q-9 confirmed." {
		t.Fatalf("body %q", n.Body)
	}
}

func TestRegister_RejectsBadTemplate(t *testing.T) {
	d, _ := newTestDispatcher()

	if err := d.Register("bad", "{{.Unclosed", "body"); err == nil {
		t.Fatal("expected parse error")
	}
}

type failingQueueStore struct {
	*store.MemoryStore
}

func (s *failingQueueStore) EnqueueNotification(ctx context.Context, n store.Notification) error {
	return errors.New("queue unavailable")
}

func TestDispatch_EnqueueFailureIsReturned(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	d := NewDispatcher(&failingQueueStore{store.NewMemoryStore()}, log)

	err := d.Dispatch(context.Background(), TemplateQuoteSent, "client@example.com", Data{})
	if err == nil {
		t.Fatal("expected enqueue error to surface")
	}
}

func TestDefaultTemplatesCoverAllTypes(t *testing.T) {
	d, _ := newTestDispatcher()
	types := []string{
		TemplateQuoteSent, TemplateQuoteAccepted, TemplateQuoteRefused,
		TemplateShipmentCreated, TemplateShipmentDelivered, TemplateShipmentOnHold, TemplateShipmentCancelled,
		TemplateAgentValidated, TemplateAgentRejected, TemplateAgentSuspended,
		TemplateSubscriptionActivated, TemplateSubscriptionCancelled,
		TemplateSubscriptionReactivated, TemplateSubscriptionExtended,
	}
	for _, templateType := range types {
		if _, ok := d.templates[templateType]; !ok {
			t.Fatalf("no default template registered for %s", templateType)
		}
	}
}
