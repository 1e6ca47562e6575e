// Package postgres persists trace events to a Postgres events table.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/decisiongraph/internal/events"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64          `json:"event_id"`
	Timestamp time.Time      `json:"ts"`
	Level     string         `json:"level"`
	Event     string         `json:"event"`
	Message   *string        `json:"msg,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	SessionID string         `json:"session_id"`
	Agent     *string        `json:"agent,omitempty"`
}

// Config holds connection settings. Empty fields take the libpq defaults
// used by ConnString.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnString renders cfg as a libpq key/value connection string.
func (cfg Config) ConnString() string {
	host := or(cfg.Host, "127.0.0.1")
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	parts := []string{
		"host=" + host,
		fmt.Sprintf("port=%d", port),
		"user=" + or(cfg.User, "decisiongraph"),
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+cfg.Password)
	}
	parts = append(parts,
		"dbname="+or(cfg.Database, "decisiongraph"),
		"sslmode="+or(cfg.SSLMode, "disable"),
	)
	return strings.Join(parts, " ")
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// Client appends events for one run session. It implements events.Sink.
type Client struct {
	db        *sql.DB
	sessionID string
}

// New connects, pings and creates the events table if needed.
func New(cfg Config, sessionID string) (*Client, error) {
	db, err := sql.Open("postgres", cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:        db,
		sessionID: sessionID,
	}

	if err := client.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	return client, nil
}

func (c *Client) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS trace_events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			session_id TEXT NOT NULL,
			agent      TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_trace_events_ts ON trace_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_trace_events_session ON trace_events(session_id);
	`
	_, err := c.db.Exec(query)
	return err
}

// row converts e into insert arguments. The agent tag is lifted into its own
// column so runs can be filtered per agent.
func row(e events.Event) (ts time.Time, msg *string, fields []byte, agent *string, err error) {
	ts = e.Time()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if e.Message != "" {
		m := e.Message
		msg = &m
	}
	if e.Fields != nil {
		fields, err = json.Marshal(e.Fields)
		if err != nil {
			return ts, nil, nil, nil, fmt.Errorf("failed to marshal fields: %w", err)
		}
		if a, ok := e.Fields["agent"].(string); ok && a != "" {
			agent = &a
		}
	}
	return ts, msg, fields, agent, nil
}

// Append inserts an event into the database.
func (c *Client) Append(e events.Event) error {
	ts, msg, fields, agent, err := row(e)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO trace_events (ts, level, event, msg, fields, session_id, agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, e.Level, e.Name, msg, fields, c.sessionID, agent)
	return err
}

// Query returns the last N events of this session, newest first.
func (c *Client) Query(limit int) ([]EventRow, error) {
	limit = clampLimit(limit)

	query := `
		SELECT event_id, ts, level, event, msg, fields, session_id, agent
		FROM trace_events
		WHERE session_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, agent sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.SessionID, &agent); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if agent.Valid {
			e.Agent = &agent.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	return min(limit, 10000)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

var _ events.Sink = (*Client)(nil)
