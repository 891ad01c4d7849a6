package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// OutboxStore writes trail events to the registry_outbox table so the
// durable trail survives broker outages. A relay can forward rows to the
// broker later; this store only appends.
type OutboxStore struct {
	db *sql.DB
}

// OpenOutbox connects with database/sql over lib/pq and ensures the table.
func OpenOutbox(ctx context.Context, databaseURL string) (*OutboxStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open outbox db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping outbox db: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS registry_outbox (
			id         TEXT PRIMARY KEY,
			action     TEXT NOT NULL,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("ensure outbox table: %w", err)
	}
	return &OutboxStore{db: db}, nil
}

func (s *OutboxStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal trail event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO registry_outbox (id, action, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, event.Action, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *OutboxStore) Close() error {
	return s.db.Close()
}
