package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"regline/internal/domain"
)

// Writer appends audit entries inside a caller-owned transaction. Entries are
// insert-only; nothing in this package updates or deletes rows.
type Writer struct {
	Now func() time.Time
}

// Append inserts one entry. TS and ID are assigned here; the caller provides
// everything else.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e domain.AuditEntry) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if e.Actor == "" {
		return fmt.Errorf("audit entry requires an actor")
	}
	if e.ActorType == "" {
		e.ActorType = domain.ActorSystem
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO audit_entries(ts,entity_type,entity_id,action,actor,actor_type,previous_state,new_state,rationale)
VALUES (?,?,?,?,?,?,?,?,?)`,
		ts, e.EntityType, nullable(e.EntityID), e.Action, e.Actor, string(e.ActorType),
		nullableStringPtr(e.PreviousState), nullableStringPtr(e.NewState), nullableStringPtr(e.Rationale))
	return err
}

// Snapshot marshals a state value for the previous/new state columns.
func Snapshot(v any) *string {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
