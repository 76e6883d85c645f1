// Package store defines the generic entity store the workflow core runs on:
// versioned snapshots of the four business record kinds plus append-only
// event and notification records. Implementations must make ConditionalUpdate
// atomic; everything else in the system leans on that guarantee.
package store

import (
	"context"
	"errors"
	"time"
)

// Kind identifies one of the stored record kinds.
type Kind string

const (
	KindQuote        Kind = "quote"
	KindShipment     Kind = "shipment"
	KindAgent        Kind = "agent"
	KindSubscription Kind = "subscription"
)

var (
	// ErrNotFound signals that the referenced entity does not exist.
	ErrNotFound = errors.New("store: entity not found")
	// ErrConflict signals that a conditional update lost a concurrent race.
	ErrConflict = errors.New("store: version conflict")
	// ErrUnknownKind signals an entity kind the store has no table for.
	ErrUnknownKind = errors.New("store: unknown entity kind")
)

// Snapshot is the stored state of an entity as of one read. Version is the
// optimistic-concurrency token: every successful conditional update
// increments it, and a stale Version is rejected with ErrConflict.
type Snapshot struct {
	ID        string
	Kind      Kind
	Status    string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    map[string]any
}

// String returns the named field as a string, or "" when absent or not a string.
func (s Snapshot) String(key string) string {
	v, _ := s.Fields[key].(string)
	return v
}

// Bool returns the named field as a bool, or false when absent.
func (s Snapshot) Bool(key string) bool {
	v, _ := s.Fields[key].(bool)
	return v
}

// Time returns the named field as a time.Time. Fields round-tripped through
// JSON (the Postgres adapter stores them as jsonb) come back as RFC 3339
// strings, so both representations are accepted.
func (s Snapshot) Time(key string) (time.Time, bool) {
	switch v := s.Fields[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

// Event is one immutable audit record. Events are only ever appended.
type Event struct {
	ID          string
	Type        string
	ActorID     string
	SubjectKind Kind
	SubjectID   string
	Forced      bool
	Details     string
	CreatedAt   time.Time
}

// Notification statuses.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification is a rendered outbound message waiting for an external mailer.
type Notification struct {
	ID           string
	Recipient    string
	TemplateType string
	Subject      string
	Body         string
	Status       string
	CreatedAt    time.Time
}

// EntityStore is the persistence contract the workflow core consumes. The
// update path is conditional on the caller's last-read version; there is no
// unconditional write.
type EntityStore interface {
	Get(ctx context.Context, kind Kind, id string) (Snapshot, error)
	// ConditionalUpdate applies changes only when the stored version still
	// equals expectedVersion. The reserved key "status" updates the status
	// column; all other keys merge into the field set. Returns the new
	// snapshot, or ErrConflict / ErrNotFound.
	ConditionalUpdate(ctx context.Context, kind Kind, id string, expectedVersion int64, changes map[string]any) (Snapshot, error)
	// Insert creates a new entity. A caller-provided "id" field is honored;
	// otherwise the store allocates one. The "status" field seeds the status
	// column.
	Insert(ctx context.Context, kind Kind, fields map[string]any) (string, error)
	AppendEvent(ctx context.Context, event Event) error
	// EnqueueNotification appends a pending outbound message. A failure here
	// must be treated as non-fatal by callers.
	EnqueueNotification(ctx context.Context, n Notification) error
}
