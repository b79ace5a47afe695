// Package sqlsink persists events to SQLite or Postgres. Register it with a
// blank import:
//
//	_ "github.com/ferro-labs/gateway-core/internal/sinks/sqlsink"
package sqlsink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ferro-labs/gateway-core/events"
)

// Name is the registry name of the sink.
const Name = "sql"

func init() {
	events.RegisterFactory(Name, func() events.Sink {
		return &Sink{}
	})
}

// Record is one stored event.
type Record struct {
	EventID   string
	Type      string
	Provider  string
	Data      string
	CreatedAt time.Time
}

// Sink writes events to a gateway_events table.
type Sink struct {
	db      *sql.DB
	dialect string
}

// Name returns the sink identifier.
func (s *Sink) Name() string { return Name }

// Init opens the database. Supported keys: "driver" ("sqlite" default, or
// "postgres") and "dsn".
func (s *Sink) Init(config map[string]interface{}) error {
	driver, _ := config["driver"].(string)
	dsn, _ := config["dsn"].(string)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		return s.open("sqlite", dsn)
	case "postgres", "postgresql":
		return s.open("postgres", dsn)
	default:
		return fmt.Errorf("unsupported sql sink driver %q", driver)
	}
}

// NewSQLite opens a SQLite-backed sink.
func NewSQLite(dsn string) (*Sink, error) {
	s := &Sink{}
	if err := s.open("sqlite", dsn); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgres opens a Postgres-backed sink.
func NewPostgres(dsn string) (*Sink, error) {
	s := &Sink{}
	if err := s.open("postgres", dsn); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) open(dialect, dsn string) error {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		if dialect == "postgres" {
			return fmt.Errorf("postgres dsn is required")
		}
		dsn = "gateway-events.db"
	}
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return fmt.Errorf("open %s event sink: %w", dialect, err)
	}
	s.db = db
	s.dialect = dialect
	if err := s.init(); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Sink) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s event sink: %w", s.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS gateway_events (
	id INTEGER PRIMARY KEY,
	event_id TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	provider TEXT,
	data TEXT,
	created_at TIMESTAMP NOT NULL
);`
	if s.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS gateway_events (
	id BIGSERIAL PRIMARY KEY,
	event_id TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	provider TEXT,
	data JSONB,
	created_at TIMESTAMPTZ NOT NULL
);`
	}
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize event schema: %w", err)
	}
	return nil
}

// Notify inserts ev.
func (s *Sink) Notify(ctx context.Context, ev events.Event) error {
	if s.db == nil {
		return fmt.Errorf("sql event sink not initialised")
	}
	data := "{}"
	if len(ev.Data) > 0 {
		b, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("encode event data: %w", err)
		}
		data = string(b)
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	query := `INSERT INTO gateway_events(event_id, event_type, provider, data, created_at) VALUES(?, ?, ?, ?, ?)`
	if s.dialect == "postgres" {
		query = `INSERT INTO gateway_events(event_id, event_type, provider, data, created_at) VALUES($1, $2, $3, $4, $5)`
	}
	if _, err := s.db.ExecContext(ctx, query, ev.ID, string(ev.Type), ev.Provider, data, at); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// List returns up to limit stored events of provider, newest first. An
// empty provider lists every provider.
func (s *Sink) List(ctx context.Context, provider string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT event_id, event_type, provider, data, created_at FROM gateway_events`
	var args []interface{}
	if provider != "" {
		if s.dialect == "postgres" {
			query += ` WHERE provider = $1`
		} else {
			query += ` WHERE provider = ?`
		}
		args = append(args, provider)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var provider, data sql.NullString
		if err := rows.Scan(&r.EventID, &r.Type, &provider, &data, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Provider = provider.String
		r.Data = data.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteBefore removes events older than cutoff and returns the count.
func (s *Sink) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM gateway_events WHERE created_at < ?`
	if s.dialect == "postgres" {
		query = `DELETE FROM gateway_events WHERE created_at < $1`
	}
	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Sink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
