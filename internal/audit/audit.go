// Package audit defines the audit sink capability the core produces for
// every state-machine transition and reconciler verdict, plus a concrete
// SQLite-backed implementation so the capability is exercised end to end
// instead of only declared. Grounded on a WAL-mode CREATE TABLE IF NOT
// EXISTS schema idiom and a publish-and-forget event style, adapted into
// one append-only audit log table.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is one structured audit entry.
type Record struct {
	ID      string
	Ts      time.Time
	Kind    string
	Payload json.RawMessage
}

// Sink is the capability the core depends on to persist audit records.
// Implementations must not block state-machine transitions indefinitely;
// SQLiteSink writes synchronously but to a local WAL-mode database so
// writes are fast in the common case.
type Sink interface {
	Record(ctx context.Context, kind string, payload any) error
}

// TransitionPayload is the structured shape for state-machine transition
// audit entries.
type TransitionPayload struct {
	EntityType    string `json:"entityType"`
	EntityID      string `json:"entityId"`
	FromState     string `json:"fromState"`
	ToState       string `json:"toState"`
	Event         string `json:"event"`
	CorrelationID string `json:"correlationId"`
}

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	ts DATETIME NOT NULL,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_kind ON audit_log(kind);
CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts);
`

// SQLiteSink persists audit records to a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLiteSink opens (creating if necessary) the audit database at path.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Record inserts one audit entry, marshaling payload to JSON.
func (s *SQLiteSink) Record(ctx context.Context, kind string, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("audit: marshal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, ts, kind, payload) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), time.Now().UTC(), kind, string(buf),
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error { return s.db.Close() }

// NullSink discards every record; useful for tests that don't care about
// audit persistence.
type NullSink struct{}

func (NullSink) Record(ctx context.Context, kind string, payload any) error { return nil }
