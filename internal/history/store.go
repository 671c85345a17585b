package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zjrosen/modeldeck/internal/events"
)

// DefaultLimit is used when a Query does not set Limit.
const DefaultLimit = 100

// MaxLimit caps Query.Limit.
const MaxLimit = 1000

// StoredEvent is a persisted envelope.
type StoredEvent struct {
	Seq       int64           `json:"seq"`
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	Terminal  bool            `json:"terminal"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON writes Timestamp the way event payloads do.
func (e StoredEvent) MarshalJSON() ([]byte, error) {
	type plain StoredEvent
	return json.Marshal(struct {
		plain
		Timestamp string `json:"timestamp"`
	}{plain(e), events.FormatTime(e.Timestamp)})
}

// Query selects recent events.
type Query struct {
	Channel string // empty means all channels
	Limit   int
	// TerminalOnly restricts results to events that close an invocation.
	TerminalOnly bool
}

// Store reads and writes the events table.
type Store struct {
	db *sql.DB
}

type terminal interface{ IsTerminal() bool }

// isTerminal reports whether a payload ends its invocation. Chat events are
// always single-shot.
func isTerminal(env events.Envelope) bool {
	switch env.Channel {
	case events.ChannelChatMessage, events.ChannelChatError:
		return true
	}
	if t, ok := env.Payload.(terminal); ok {
		return t.IsTerminal()
	}
	return false
}

// Record inserts env. Recording the same envelope twice is a no-op.
func (s *Store) Record(ctx context.Context, env events.Envelope) error {
	payload, err := env.PayloadJSON()
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (event_id, channel, payload, created_at, terminal) VALUES (?, ?, ?, ?, ?)`,
		env.ID, env.Channel, string(payload), env.Timestamp.UnixNano(), isTerminal(env),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Recent returns up to q.Limit of the newest matching events, oldest first.
func (s *Store) Recent(ctx context.Context, q Query) ([]StoredEvent, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	query := `SELECT seq, event_id, channel, terminal, created_at, payload FROM events WHERE 1=1`
	var args []any
	if q.Channel != "" {
		query += ` AND channel = ?`
		args = append(args, q.Channel)
	}
	if q.TerminalOnly {
		query += ` AND terminal = 1`
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var nanos int64
		var payload string
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.Channel, &ev.Terminal, &nanos, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Timestamp = time.Unix(0, nanos).UTC()
		ev.Payload = json.RawMessage(payload)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// Prune keeps only the newest keep events and returns how many were deleted.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE seq NOT IN (SELECT seq FROM events ORDER BY seq DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}
