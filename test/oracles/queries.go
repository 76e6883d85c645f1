// Package oracles holds the invariant queries checked during the stress run.
// Each query returns rows only when its invariant is violated.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			// Concurrent derivation must never yield two shipments for one
			// quote: every claimed reference is unique across quotes.
			Name: "O1_one_shipment_per_quote",
			SQL: `SELECT fields->>'shipment_ref' AS ref, COUNT(*) FROM quotes
                  WHERE fields->>'shipment_ref' IS NOT NULL
                  GROUP BY fields->>'shipment_ref' HAVING COUNT(*) > 1`,
		},
		{
			// A quote that claimed a reference must be accepted; the claim
			// happens inside the accepting write or after it.
			Name: "O2_derived_only_from_accepted",
			SQL: `SELECT id, status FROM quotes
                  WHERE fields->>'shipment_ref' IS NOT NULL
                    AND status NOT IN ('accepted')`,
		},
		{
			// Every status value on disk must belong to the catalog's enums.
			Name: "O3_status_enum_closed",
			SQL: `SELECT 'quote' AS kind, id, status FROM quotes
                  WHERE status NOT IN ('received','in_progress','sent_to_client','accepted','refused')
                  UNION ALL
                  SELECT 'shipment', id, status FROM shipments
                  WHERE status NOT IN ('draft','quote_pending','confirmed','in_transit','at_port','delivered','on_hold','cancelled')
                  UNION ALL
                  SELECT 'subscription', id, status FROM subscriptions
                  WHERE status NOT IN ('pending','active','cancelled','expired')`,
		},
		{
			// The version token only moves forward and starts at 1.
			Name: "O4_version_positive",
			SQL: `SELECT 'quote' AS kind, id, version FROM quotes WHERE version < 1
                  UNION ALL
                  SELECT 'shipment', id, version FROM shipments WHERE version < 1
                  UNION ALL
                  SELECT 'subscription', id, version FROM subscriptions WHERE version < 1`,
		},
		{
			// A settled quote carries a settled client decision.
			Name: "O5_decision_matches_status",
			SQL: `SELECT id, status, fields->>'client_decision' FROM quotes
                  WHERE (status = 'accepted' AND fields->>'client_decision' <> 'accepted')
                     OR (status = 'refused' AND fields->>'client_decision' <> 'refused')`,
		},
		{
			// Every status-changing event points at a row that exists.
			Name: "O6_events_reference_subjects",
			SQL: `SELECT e.id, e.subject_kind, e.subject_id FROM events e
                  WHERE (e.subject_kind = 'quote' AND NOT EXISTS (SELECT 1 FROM quotes q WHERE q.id::text = e.subject_id))
                     OR (e.subject_kind = 'shipment' AND NOT EXISTS (SELECT 1 FROM shipments s WHERE s.id::text = e.subject_id))
                     OR (e.subject_kind = 'subscription' AND NOT EXISTS (SELECT 1 FROM subscriptions s WHERE s.id::text = e.subject_id))`,
		},
		{
			// Forced transitions are always attributable.
			Name: "O7_forced_events_have_actor",
			SQL:  `SELECT id FROM events WHERE forced AND actor_id = ''`,
		},
		{
			// Queued notifications always name a recipient.
			Name: "O8_notifications_have_recipient",
			SQL:  `SELECT id, template_type FROM notifications WHERE recipient = ''`,
		},
		{
			// An inactive status never leaves the is_active flag set.
			Name: "O9_subscription_flag_consistent",
			SQL: `SELECT id, status FROM subscriptions
                  WHERE status IN ('cancelled','expired') AND (fields->>'is_active')::boolean`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and a sample
// row) or an empty name when all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
