package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements EntityStore on PostgreSQL. Entity fields live in a jsonb
// column; the version column carries the optimistic-concurrency token and the
// conditional update is a single version-guarded UPDATE, so atomicity comes
// from the row write itself, not from an explicit transaction.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func tableFor(kind Kind) (string, error) {
	switch kind {
	case KindQuote:
		return "quotes", nil
	case KindShipment:
		return "shipments", nil
	case KindAgent:
		return "agents", nil
	case KindSubscription:
		return "subscriptions", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func scanSnapshot(row pgx.Row, kind Kind) (Snapshot, error) {
	var (
		snap      Snapshot
		rawFields []byte
	)
	if err := row.Scan(&snap.ID, &snap.Status, &snap.Version, &rawFields, &snap.CreatedAt, &snap.UpdatedAt); err != nil {
		return Snapshot{}, err
	}
	snap.Kind = kind
	snap.Fields = map[string]any{}
	if len(rawFields) > 0 {
		if err := json.Unmarshal(rawFields, &snap.Fields); err != nil {
			return Snapshot{}, fmt.Errorf("store: decode fields: %w", err)
		}
	}
	return snap, nil
}

func (s *PGStore) Get(ctx context.Context, kind Kind, id string) (Snapshot, error) {
	table, err := tableFor(kind)
	if err != nil {
		return Snapshot{}, err
	}

	query := fmt.Sprintf(
		`SELECT id::text, status, version, fields, created_at, updated_at FROM %s WHERE id = $1`, table)
	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, id), kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("store: get %s %s: %w", kind, id, err)
	}
	return snap, nil
}

func (s *PGStore) ConditionalUpdate(ctx context.Context, kind Kind, id string, expectedVersion int64, changes map[string]any) (Snapshot, error) {
	table, err := tableFor(kind)
	if err != nil {
		return Snapshot{}, err
	}

	var status *string
	patch := map[string]any{}
	for k, v := range changes {
		if k == FieldStatus {
			if sv, ok := v.(string); ok {
				status = &sv
			}
			continue
		}
		patch[k] = v
	}
	rawPatch, err := json.Marshal(patch)
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: encode changes: %w", err)
	}

	query := fmt.Sprintf(`
        UPDATE %s
        SET status = COALESCE($3::text, status),
            fields = fields || $4::jsonb,
            version = version + 1,
            updated_at = now()
        WHERE id = $1 AND version = $2
        RETURNING id::text, status, version, fields, created_at, updated_at
    `, table)
	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, id, expectedVersion, status, rawPatch), kind)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("store: update %s %s: %w", kind, id, err)
	}

	// No row matched: either the entity is gone or the version is stale.
	existsQuery := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	var exists bool
	if err := s.pool.QueryRow(ctx, existsQuery, id).Scan(&exists); err != nil {
		return Snapshot{}, fmt.Errorf("store: check %s %s: %w", kind, id, err)
	}
	if !exists {
		return Snapshot{}, ErrNotFound
	}
	return Snapshot{}, ErrConflict
}

func (s *PGStore) Insert(ctx context.Context, kind Kind, fields map[string]any) (string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return "", err
	}

	id := ""
	status := ""
	rest := map[string]any{}
	for k, v := range fields {
		switch k {
		case FieldID:
			id, _ = v.(string)
		case FieldStatus:
			status, _ = v.(string)
		default:
			rest[k] = v
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	rawFields, err := json.Marshal(rest)
	if err != nil {
		return "", fmt.Errorf("store: encode fields: %w", err)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, status, fields) VALUES ($1, $2, $3::jsonb)`, table)
	if _, err := s.pool.Exec(ctx, query, id, status, rawFields); err != nil {
		return "", fmt.Errorf("store: insert %s: %w", kind, err)
	}
	return id, nil
}

func (s *PGStore) AppendEvent(ctx context.Context, event Event) error {
	if _, err := s.pool.Exec(ctx, `
        INSERT INTO events (event_type, actor_id, subject_kind, subject_id, forced, details)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, event.Type, event.ActorID, string(event.SubjectKind), event.SubjectID, event.Forced, event.Details); err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

func (s *PGStore) EnqueueNotification(ctx context.Context, n Notification) error {
	status := n.Status
	if status == "" {
		status = NotificationPending
	}
	if _, err := s.pool.Exec(ctx, `
        INSERT INTO notifications (recipient, template_type, subject, body, status)
        VALUES ($1, $2, $3, $4, $5)
    `, n.Recipient, n.TemplateType, n.Subject, n.Body, status); err != nil {
		return fmt.Errorf("store: enqueue notification: %w", err)
	}
	return nil
}

// ListEvents returns the audit trail for one entity, oldest first.
func (s *PGStore) ListEvents(ctx context.Context, subjectID string) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id::text, event_type, actor_id, subject_kind, subject_id, forced, details, created_at
        FROM events
        WHERE subject_id = $1
        ORDER BY created_at, id
    `, subjectID)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e    Event
			kind string
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.ActorID, &kind, &e.SubjectID, &e.Forced, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		e.SubjectKind = Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListNotifications returns the queued messages for one recipient, oldest first.
func (s *PGStore) ListNotifications(ctx context.Context, recipient string) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id::text, recipient, template_type, subject, body, status, created_at
        FROM notifications
        WHERE recipient = $1
        ORDER BY created_at, id
    `, recipient)
	if err != nil {
		return nil, fmt.Errorf("store: list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Recipient, &n.TemplateType, &n.Subject, &n.Body, &n.Status, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
