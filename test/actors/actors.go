// Package actors holds the concurrent workloads for the stress run. Every
// actor loops until stopped, driving transitions through the workflow engine
// against a shared database. Conflicts, invalid transitions and duplicate
// derivations are the expected texture of contention and are swallowed; any
// other error aborts the run.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"freightflow/store"
	"freightflow/subscription"
	"freightflow/workflow"
)

func expected(err error) bool {
	return errors.Is(err, store.ErrConflict) ||
		errors.Is(err, workflow.ErrInvalidTransition) ||
		errors.Is(err, workflow.ErrAlreadyExists)
}

func pause(base, jitter int) {
	time.Sleep(time.Duration(base+rand.Intn(jitter)) * time.Millisecond)
}

// QuoteDriver walks a quote toward acceptance one transition at a time. Many
// drivers race on the same quote; whichever holds the current version wins
// each step and the rest observe conflicts or edges that no longer apply.
func QuoteDriver(ctx context.Context, engine *workflow.Engine, st store.EntityStore, quoteID string, stop <-chan struct{}) error {
	next := map[string]string{
		workflow.QuoteReceived:     workflow.TransitionStartProgress,
		workflow.QuoteInProgress:   workflow.TransitionSendToClient,
		workflow.QuoteSentToClient: workflow.TransitionAccept,
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		snap, err := st.Get(ctx, store.KindQuote, quoteID)
		if err != nil {
			return fmt.Errorf("quote driver: load: %w", err)
		}
		name, ok := next[snap.Status]
		if !ok {
			pause(20, 40)
			continue
		}
		if _, err := engine.Apply(ctx, store.KindQuote, quoteID, name, "stress-operator", nil); err != nil && !expected(err) {
			return fmt.Errorf("quote driver: %s: %w", name, err)
		}
		pause(10, 20)
	}
}

// ShipmentDeriver races to create the shipment for an accepted quote. At most
// one attempt across all derivers may ever succeed; the rest must observe the
// duplicate-derivation error once the reference is claimed.
func ShipmentDeriver(ctx context.Context, engine *workflow.Engine, quoteID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if _, err := engine.Apply(ctx, store.KindQuote, quoteID, workflow.TransitionCreateShipment, "stress-operator", nil); err != nil && !expected(err) {
			return fmt.Errorf("shipment deriver: %w", err)
		}
		pause(15, 30)
	}
}

// ShipmentProgressor advances any shipment derived from the quote along its
// delivery chain.
func ShipmentProgressor(ctx context.Context, engine *workflow.Engine, st store.EntityStore, quoteID string, stop <-chan struct{}) error {
	next := map[string]string{
		workflow.ShipmentConfirmed: workflow.TransitionStartTransit,
		workflow.ShipmentInTransit: workflow.TransitionArriveAtPort,
		workflow.ShipmentAtPort:    workflow.TransitionDeliver,
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		quote, err := st.Get(ctx, store.KindQuote, quoteID)
		if err != nil {
			return fmt.Errorf("shipment progressor: load quote: %w", err)
		}
		shipmentID := quote.String(store.FieldShipmentRef)
		if shipmentID == "" {
			pause(30, 30)
			continue
		}
		snap, err := st.Get(ctx, store.KindShipment, shipmentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Reference claimed, row not yet inserted by the winner.
				pause(30, 30)
				continue
			}
			return fmt.Errorf("shipment progressor: load shipment: %w", err)
		}
		name, ok := next[snap.Status]
		if !ok {
			pause(30, 30)
			continue
		}
		if _, err := engine.Apply(ctx, store.KindShipment, shipmentID, name, "stress-operator", nil); err != nil && !expected(err) {
			return fmt.Errorf("shipment progressor: %s: %w", name, err)
		}
		pause(20, 40)
	}
}

// ForceAdmin occasionally fires the admin override on the quote, exercising
// forced transitions under contention with the normal drivers.
func ForceAdmin(ctx context.Context, engine *workflow.Engine, quoteID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if rand.Intn(10) == 0 {
			if _, err := engine.Apply(ctx, store.KindQuote, quoteID, workflow.TransitionForceAccept, "stress-admin", nil); err != nil && !expected(err) {
				return fmt.Errorf("force admin: %w", err)
			}
		}
		pause(100, 100)
	}
}

// SubscriptionChurner races extensions against lazy expiry on the same
// subscription record.
func SubscriptionChurner(ctx context.Context, svc *subscription.Service, subscriptionID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if rand.Intn(2) == 0 {
			if _, err := svc.Extend(ctx, subscriptionID, 1, "stress-admin"); err != nil && !expected(err) {
				return fmt.Errorf("subscription churner: extend: %w", err)
			}
		} else {
			if _, err := svc.ExpireIfDue(ctx, subscriptionID); err != nil && !expected(err) {
				return fmt.Errorf("subscription churner: expire: %w", err)
			}
		}
		pause(50, 100)
	}
}
