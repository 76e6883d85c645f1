package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory EntityStore. It backs unit tests
// and doubles as the reference implementation of the conditional-update
// contract. Snapshots are deep-copied on the way in and out so callers can
// never alias stored state.
type MemoryStore struct {
	mu            sync.Mutex
	entities      map[Kind]map[string]Snapshot
	events        []Event
	notifications []Notification
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: map[Kind]map[string]Snapshot{
			KindQuote:        {},
			KindShipment:     {},
			KindAgent:        {},
			KindSubscription: {},
		},
		now: time.Now,
	}
}

// SetClock overrides the timestamp source. Tests only.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func cloneSnapshot(s Snapshot) Snapshot {
	c := s
	c.Fields = maps.Clone(s.Fields)
	return c
}

func (m *MemoryStore) Get(_ context.Context, kind Kind, id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.entities[kind]
	if !ok {
		return Snapshot{}, ErrUnknownKind
	}
	snap, ok := byID[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

func (m *MemoryStore) ConditionalUpdate(_ context.Context, kind Kind, id string, expectedVersion int64, changes map[string]any) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.entities[kind]
	if !ok {
		return Snapshot{}, ErrUnknownKind
	}
	snap, ok := byID[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if snap.Version != expectedVersion {
		return Snapshot{}, ErrConflict
	}

	next := cloneSnapshot(snap)
	if next.Fields == nil {
		next.Fields = map[string]any{}
	}
	for k, v := range changes {
		if k == FieldStatus {
			if s, ok := v.(string); ok {
				next.Status = s
			}
			continue
		}
		next.Fields[k] = v
	}
	next.Version++
	next.UpdatedAt = m.now()

	byID[id] = next
	return cloneSnapshot(next), nil
}

func (m *MemoryStore) Insert(_ context.Context, kind Kind, fields map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.entities[kind]
	if !ok {
		return "", ErrUnknownKind
	}

	snap := Snapshot{
		Kind:      kind,
		Version:   1,
		CreatedAt: m.now(),
		UpdatedAt: m.now(),
		Fields:    map[string]any{},
	}
	for k, v := range fields {
		switch k {
		case FieldID:
			if s, ok := v.(string); ok {
				snap.ID = s
			}
		case FieldStatus:
			if s, ok := v.(string); ok {
				snap.Status = s
			}
		default:
			snap.Fields[k] = v
		}
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}

	byID[snap.ID] = snap
	return snap.ID, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = m.now()
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStore) EnqueueNotification(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = NotificationPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	m.notifications = append(m.notifications, n)
	return nil
}

// Events returns a copy of the appended events, oldest first.
func (m *MemoryStore) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Notifications returns a copy of the enqueued notifications, oldest first.
func (m *MemoryStore) Notifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// Count reports how many entities of the given kind exist.
func (m *MemoryStore) Count(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entities[kind])
}
