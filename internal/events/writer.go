package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append stores one audit event. claimID indexes the event for per-claim
// lookups and may be empty.
func (w Writer) Append(ctx context.Context, evtType, claimID string, payload EventPayload) (int64, string, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, "", fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,claim_id,payload_json) VALUES (?,?,?,?)`,
		ts, evtType, nullable(claimID), string(data))
	if err != nil {
		return 0, "", fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, "", err
	}
	return id, ts, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
