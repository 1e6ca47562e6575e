// Package sqlite persists trace events to a local SQLite file.
package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/AaronLay10/decisiongraph/internal/events"
)

// DB wraps a SQLite connection holding the trace events of one or more runs.
// It implements events.Sink.
type DB struct {
	conn      *sqlx.DB
	sessionID string
}

// EventRow is one stored event.
type EventRow struct {
	ID        int64   `db:"id" json:"id"`
	Timestamp string  `db:"ts" json:"ts"`
	Level     string  `db:"level" json:"level"`
	Event     string  `db:"event" json:"event"`
	Message   *string `db:"msg" json:"msg,omitempty"`
	Fields    *string `db:"fields" json:"fields,omitempty"`
	SessionID string  `db:"session_id" json:"session_id"`
	Agent     *string `db:"agent" json:"agent,omitempty"`
}

// Decode returns the stored fields as a map.
func (r EventRow) Decode() (map[string]any, error) {
	if r.Fields == nil {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(*r.Fields), &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return out, nil
}

// Open opens or creates a SQLite database at the given path.
func Open(path, sessionID string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Appends arrive from the tick goroutine; one writer avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, sessionID: sessionID}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trace_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		level TEXT NOT NULL,
		event TEXT NOT NULL,
		msg TEXT,
		fields TEXT,
		session_id TEXT NOT NULL,
		agent TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_trace_events_session ON trace_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_trace_events_agent ON trace_events(agent);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Append inserts one event.
func (db *DB) Append(e events.Event) error {
	var msg, fields, agent *string
	if e.Message != "" {
		msg = &e.Message
	}
	if e.Fields != nil {
		b, err := json.Marshal(e.Fields)
		if err != nil {
			return fmt.Errorf("encode fields: %w", err)
		}
		s := string(b)
		fields = &s
		if a, ok := e.Fields["agent"].(string); ok && a != "" {
			agent = &a
		}
	}
	_, err := db.conn.Exec(
		"INSERT INTO trace_events (ts, level, event, msg, fields, session_id, agent) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.Timestamp, e.Level, e.Name, msg, fields, db.sessionID, agent,
	)
	return err
}

// AppendBatch inserts events in a single transaction.
func (db *DB) AppendBatch(evts []events.Event) error {
	if len(evts) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO trace_events (ts, level, event, msg, session_id) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range evts {
		if _, err := stmt.Exec(e.Timestamp, e.Level, e.Name, e.Message, db.sessionID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentEvents returns the most recent events of this session, newest first.
func (db *DB) RecentEvents(limit int) ([]EventRow, error) {
	var rows []EventRow
	err := db.conn.Select(&rows,
		"SELECT id, ts, level, event, msg, fields, session_id, agent FROM trace_events WHERE session_id = ? ORDER BY id DESC LIMIT ?",
		db.sessionID, limit,
	)
	return rows, err
}

// AgentEvents returns the events of one agent across all sessions, oldest first.
func (db *DB) AgentEvents(agent string) ([]EventRow, error) {
	var rows []EventRow
	err := db.conn.Select(&rows,
		"SELECT id, ts, level, event, msg, fields, session_id, agent FROM trace_events WHERE agent = ? ORDER BY id",
		agent,
	)
	return rows, err
}

// Count returns the number of stored events named name in this session.
func (db *DB) Count(name string) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM trace_events WHERE session_id = ? AND event = ?", db.sessionID, name)
	return n, err
}

var _ events.Sink = (*DB)(nil)
