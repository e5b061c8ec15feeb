// Package audit is the append-only claim event log. Entries live in an
// in-memory SQLite database and do not survive a restart.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"claimsaga/internal/db"
	"claimsaga/internal/domain"
	"claimsaga/internal/events"
	"claimsaga/internal/migrate"
	"claimsaga/internal/repo"
)

// DefaultRecent is how many entries Recent returns for a non-positive limit.
const DefaultRecent = 200

type Log struct {
	DB     *sql.DB
	Events events.Writer
	Repo   repo.Repo
}

// Open creates a fresh in-memory log with its schema applied.
func Open(ctx context.Context) (*Log, error) {
	conn, err := db.Open(db.Config{})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate audit log: %w", err)
	}
	return &Log{
		DB:     conn,
		Events: events.Writer{DB: conn, Now: time.Now},
		Repo:   repo.Repo{DB: conn},
	}, nil
}

func (l *Log) Close() error {
	return l.DB.Close()
}

// Append records an event. Entries whose data carries a string claimId are
// indexed under that claim.
func (l *Log) Append(ctx context.Context, eventType string, data map[string]any) (domain.AuditEntry, error) {
	if eventType == "" {
		return domain.AuditEntry{}, errors.New("eventType is required")
	}
	if data == nil {
		data = map[string]any{}
	}
	claimID, _ := data["claimId"].(string)
	id, ts, err := l.Events.Append(ctx, eventType, claimID, events.EventPayload(data))
	if err != nil {
		return domain.AuditEntry{}, err
	}
	return domain.AuditEntry{ID: id, TS: ts, EventType: eventType, Data: data}, nil
}

func (l *Log) ByClaim(ctx context.Context, claimID string) ([]domain.AuditEntry, error) {
	return l.Repo.EventsByClaim(ctx, claimID)
}

func (l *Log) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultRecent
	}
	return l.Repo.LatestEvents(ctx, limit)
}
