// Package entitlement derives feature-access flags from a subscription's plan
// and activity window. Resolution is a pure function of the snapshot and the
// caller's clock: it must be invoked fresh on every access check so that an
// elapsed end date takes effect without waiting for a write-back.
package entitlement

import (
	"time"

	"freightflow/store"
)

// Plan types.
const (
	PlanBasic               = "basic"
	PlanPremiumTracking     = "premium_tracking"
	PlanEnterpriseLogistics = "enterprise_logistics"
	PlanAgentListing        = "agent_listing"
	PlanDigitalPortal       = "digital_portal"
)

// Subscription is the view of a subscription record the resolver needs.
type Subscription struct {
	Status   string
	PlanType string
	EndDate  *time.Time
}

// FromSnapshot extracts the resolver's view from a stored subscription.
func FromSnapshot(snap store.Snapshot) Subscription {
	sub := Subscription{
		Status:   snap.Status,
		PlanType: snap.String(store.FieldPlanType),
	}
	if end, ok := snap.Time(store.FieldEndDate); ok {
		sub.EndDate = &end
	}
	return sub
}

// Flags is the set of feature-access booleans a client holds.
type Flags struct {
	DigitalPortalAccess bool
	FullTrackingAccess  bool
}

// Resolve computes the flags for the subscription as of now. A nil
// subscription means the client never subscribed: the basic tier, both flags
// false. The effective activity window overrides a stale stored status: a
// record still marked active past its end date resolves as inactive.
func Resolve(sub *Subscription, now time.Time) Flags {
	if sub == nil {
		return Flags{}
	}
	active := sub.Status == "active" && (sub.EndDate == nil || !sub.EndDate.Before(now))
	if !active {
		return Flags{}
	}
	return Flags{
		DigitalPortalAccess: sub.PlanType == PlanPremiumTracking ||
			sub.PlanType == PlanEnterpriseLogistics ||
			sub.PlanType == PlanDigitalPortal,
		FullTrackingAccess: sub.PlanType == PlanPremiumTracking ||
			sub.PlanType == PlanEnterpriseLogistics,
	}
}
