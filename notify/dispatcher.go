// Package notify turns declarative notification commands into queued outbound
// message records. Actual delivery belongs to an external mailer; the
// dispatcher renders and enqueues, nothing more, and its failures are never
// allowed to fail the business transition that triggered them.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/sirupsen/logrus"

	"freightflow/store"
)

// Template types understood by the default dispatcher.
const (
	TemplateQuoteSent     = "quote_sent"
	TemplateQuoteAccepted = "quote_accepted"
	TemplateQuoteRefused  = "quote_refused"

	TemplateShipmentCreated   = "shipment_created"
	TemplateShipmentDelivered = "shipment_delivered"
	TemplateShipmentOnHold    = "shipment_on_hold"
	TemplateShipmentCancelled = "shipment_cancelled"

	TemplateAgentValidated = "agent_validated"
	TemplateAgentRejected  = "agent_rejected"
	TemplateAgentSuspended = "agent_suspended"

	TemplateSubscriptionActivated   = "subscription_activated"
	TemplateSubscriptionCancelled   = "subscription_cancelled"
	TemplateSubscriptionReactivated = "subscription_reactivated"
	TemplateSubscriptionExtended    = "subscription_extended"
)

// Data is the rendering context for a notification template.
type Data struct {
	EntityID   string
	Kind       store.Kind
	From       string
	To         string
	Transition string
	Fields     map[string]any
	Payload    map[string]any
}

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

// Dispatcher renders templates keyed by template type and enqueues pending
// notification records through the entity store.
type Dispatcher struct {
	store     store.EntityStore
	log       *logrus.Logger
	templates map[string]messageTemplate
}

func NewDispatcher(st store.EntityStore, log *logrus.Logger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Dispatcher{
		store:     st,
		log:       log,
		templates: map[string]messageTemplate{},
	}
	d.registerDefaults()
	return d
}

// Register installs or replaces the subject/body templates for a template
// type. Templates render against Data.
func (d *Dispatcher) Register(templateType, subject, body string) error {
	subjTpl, err := template.New(templateType + ":subject").Parse(subject)
	if err != nil {
		return fmt.Errorf("notify: parse subject for %s: %w", templateType, err)
	}
	bodyTpl, err := template.New(templateType + ":body").Parse(body)
	if err != nil {
		return fmt.Errorf("notify: parse body for %s: %w", templateType, err)
	}
	d.templates[templateType] = messageTemplate{subject: subjTpl, body: bodyTpl}
	return nil
}

// Dispatch renders the template and enqueues one pending notification for the
// recipient. The caller treats any returned error as a warning on an already
// committed transition.
func (d *Dispatcher) Dispatch(ctx context.Context, templateType, recipient string, data Data) error {
	if recipient == "" {
		return fmt.Errorf("notify: no recipient for template %s", templateType)
	}
	tpl, ok := d.templates[templateType]
	if !ok {
		return fmt.Errorf("notify: unknown template %s", templateType)
	}

	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return fmt.Errorf("notify: render subject %s: %w", templateType, err)
	}
	if err := tpl.body.Execute(&body, data); err != nil {
		return fmt.Errorf("notify: render body %s: %w", templateType, err)
	}

	n := store.Notification{
		Recipient:    recipient,
		TemplateType: templateType,
		Subject:      subject.String(),
		Body:         body.String(),
		Status:       store.NotificationPending,
	}
	if err := d.store.EnqueueNotification(ctx, n); err != nil {
		d.log.WithError(err).WithField("template", templateType).Warn("notify: enqueue failed")
		return fmt.Errorf("notify: enqueue %s: %w", templateType, err)
	}
	return nil
}

func (d *Dispatcher) registerDefaults() {
	defaults := []struct {
		templateType string
		subject      string
		body         string
	}{
		{
			TemplateQuoteSent,
			"Your freight quote is ready",
			"Your quote for {{.Fields.cargo_description}} ({{.Fields.origin}} to {{.Fields.destination}}) has been sent. Amount: {{.Fields.quote_amount}} {{.Fields.currency}}.",
		},
		{
			TemplateQuoteAccepted,
			"Quote accepted",
			"Your quote for {{.Fields.origin}} to {{.Fields.destination}} has been accepted.",
		},
		{
			TemplateQuoteRefused,
			"Quote refused",
			"The quote for {{.Fields.origin}} to {{.Fields.destination}} has been marked refused.",
		},
		{
			TemplateShipmentCreated,
			"Shipment created",
			"A shipment has been opened for your accepted quote ({{.Fields.origin}} to {{.Fields.destination}}).",
		},
		{
			TemplateShipmentDelivered,
			"Shipment delivered",
			"Your shipment from {{.Fields.origin}} to {{.Fields.destination}} has been delivered.",
		},
		{
			TemplateShipmentOnHold,
			"Shipment on hold",
			"Your shipment from {{.Fields.origin}} to {{.Fields.destination}} has been placed on hold.",
		},
		{
			TemplateShipmentCancelled,
			"Shipment cancelled",
			"Your shipment from {{.Fields.origin}} to {{.Fields.destination}} has been cancelled.",
		},
		{
			TemplateAgentValidated,
			"Your agent listing is live",
			"Your agent application for {{.Fields.company_name}} has been validated and your listing is now public.",
		},
		{
			TemplateAgentRejected,
			"Agent application update",
			"Your agent application for {{.Fields.company_name}} has been rejected.",
		},
		{
			TemplateAgentSuspended,
			"Agent listing suspended",
			"The listing for {{.Fields.company_name}} has been suspended.",
		},
		{
			TemplateSubscriptionActivated,
			"Subscription active",
			"Your {{.Fields.plan_type}} subscription is now active.",
		},
		{
			TemplateSubscriptionCancelled,
			"Subscription cancelled",
			"Your {{.Fields.plan_type}} subscription has been cancelled.",
		},
		{
			TemplateSubscriptionReactivated,
			"Subscription reactivated",
			"Your {{.Fields.plan_type}} subscription has been reactivated.",
		},
		{
			TemplateSubscriptionExtended,
			"Subscription extended",
			"Your {{.Fields.plan_type}} subscription has been extended{{with .Payload.months}} by {{.}} month(s){{end}}.",
		},
	}
	for _, def := range defaults {
		if err := d.Register(def.templateType, def.subject, def.body); err != nil {
			// Default templates are compile-time constants; a parse failure
			// is a programming error.
			panic(err)
		}
	}
}
