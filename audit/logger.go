// Package audit appends the compliance history: one immutable event per
// successful transition. It is the only write path for events and offers no
// way to edit or delete them.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"freightflow/store"
)

// Entry describes one audit event before serialization. Details carries the
// transition context (previous/next status, payload keys, forced flag) and is
// marshalled to JSON in the stored record.
type Entry struct {
	Type        string
	ActorID     string
	SubjectKind store.Kind
	SubjectID   string
	Forced      bool
	Details     map[string]any
}

// Logger appends events through the entity store.
type Logger struct {
	store store.EntityStore
}

func NewLogger(st store.EntityStore) *Logger {
	return &Logger{store: st}
}

// Record appends one event. The details map is serialized as JSON text so
// the stored history is self-describing without any schema coupling.
func (l *Logger) Record(ctx context.Context, e Entry) error {
	details := "{}"
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("audit: marshal details: %w", err)
		}
		details = string(b)
	}

	event := store.Event{
		Type:        e.Type,
		ActorID:     e.ActorID,
		SubjectKind: e.SubjectKind,
		SubjectID:   e.SubjectID,
		Forced:      e.Forced,
		Details:     details,
	}
	if err := l.store.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("audit: append event %s: %w", e.Type, err)
	}
	return nil
}
