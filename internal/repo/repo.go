package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"claimsaga/internal/domain"
)

// Repo reads the audit event table.
type Repo struct {
	DB *sql.DB
}

const eventColumns = `id,ts,type,payload_json`

func scanEvents(rows *sql.Rows) ([]domain.AuditEntry, error) {
	defer rows.Close()
	res := []domain.AuditEntry{}
	for rows.Next() {
		var (
			e       domain.AuditEntry
			payload string
		)
		if err := rows.Scan(&e.ID, &e.TS, &e.EventType, &payload); err != nil {
			return nil, err
		}
		e.Data = map[string]any{}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &e.Data); err != nil {
				return nil, fmt.Errorf("decode event %d payload: %w", e.ID, err)
			}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsByClaim returns the claim's events oldest first.
func (r Repo) EventsByClaim(ctx context.Context, claimID string) ([]domain.AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE claim_id=? ORDER BY id ASC`, claimID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// LatestEvents returns up to limit of the most recent events, oldest first.
func (r Repo) LatestEvents(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM (SELECT `+eventColumns+` FROM events ORDER BY id DESC LIMIT ?) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r Repo) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}
