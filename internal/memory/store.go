// Package memory provides durable conversation memory: a key-identified
// fact table and an append-only message log, both in a single SQLite
// database. The orchestrator is the only writer and operates one turn at
// a time; WAL mode serializes any future concurrent readers.
package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/thursdaylabs/thursday/internal/schema"
)

// Message is one append-only log record. Tool fields are only set on
// TOOL_RESULT entries.
type Message struct {
	ID         int64              `json:"id"`
	Role       string             `json:"role"` // user, assistant
	Content    string             `json:"content"`
	ToolName   string             `json:"tool_name,omitempty"`
	ToolArgs   map[string]any     `json:"tool_args,omitempty"`
	ToolResult *schema.ToolResult `json:"tool_result,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// FactRow is a stored fact with its full provenance and lifecycle timestamps.
type FactRow struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	Confidence float64         `json:"confidence"`
	Source     string          `json:"source"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Context is a point-in-time, read-only snapshot handed to the
// orchestrator at the start of each turn. It is never persisted.
type Context struct {
	Facts          map[string]json.RawMessage
	RecentMessages []Message
}

// Store is the SQLite-backed memory store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates a store at the given database path using the production
// driver (WAL journal, busy timeout).
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewStoreWithDB(db, logger)
}

// NewStoreWithDB creates a store on an existing connection. Tests use
// this with an in-memory modernc.org/sqlite database.
func NewStoreWithDB(db *sql.DB, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS facts (
			key TEXT PRIMARY KEY,
			value_json TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 1.0,
			source TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_name TEXT,
			tool_args_json TEXT,
			tool_result_json TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertFacts writes a batch of facts by key identity: the first write
// of a key creates the row, later writes replace value, confidence,
// source and updated_at while preserving created_at. Entries without a
// key are skipped, not an error. Returns the count actually written.
func (s *Store) UpsertFacts(facts []schema.Fact) (int, error) {
	count := 0
	for _, f := range facts {
		if f.Key == "" {
			s.logger.Debug("skipping fact without key")
			continue
		}

		value := f.Value
		if len(value) == 0 {
			value = json.RawMessage("null")
		}

		ts := time.Now().UTC().Format(time.RFC3339Nano)
		_, err := s.db.Exec(`
			INSERT INTO facts (key, value_json, confidence, source, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value_json = excluded.value_json,
				confidence = excluded.confidence,
				source = excluded.source,
				updated_at = excluded.updated_at
		`, f.Key, string(value), f.Confidence, string(f.Source), ts, ts)
		if err != nil {
			return count, fmt.Errorf("upsert fact %q: %w", f.Key, err)
		}
		count++
	}
	return count, nil
}

// GetFact returns a fact value by key.
func (s *Store) GetFact(key string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value_json FROM facts WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get fact %q: %w", key, err)
	}
	return json.RawMessage(value), true, nil
}

// ListFacts returns all facts ordered by key.
func (s *Store) ListFacts() ([]FactRow, error) {
	rows, err := s.db.Query(`
		SELECT key, value_json, confidence, source, created_at, updated_at
		FROM facts ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	var facts []FactRow
	for rows.Next() {
		var f FactRow
		var value, createdStr, updatedStr string
		var source sql.NullString
		if err := rows.Scan(&f.Key, &value, &f.Confidence, &source, &createdStr, &updatedStr); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.Value = json.RawMessage(value)
		if source.Valid {
			f.Source = source.String
		}
		f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		f.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// LogMessage appends one message to the log. It never mutates existing
// rows; a failure here is a persistence fault and is fatal to the turn.
func (s *Store) LogMessage(m Message) error {
	var toolName any
	if m.ToolName != "" {
		toolName = m.ToolName
	}

	var argsJSON, resultJSON any
	if m.ToolArgs != nil {
		b, err := json.Marshal(m.ToolArgs)
		if err != nil {
			return fmt.Errorf("marshal tool args: %w", err)
		}
		argsJSON = string(b)
	}
	if m.ToolResult != nil {
		b, err := json.Marshal(m.ToolResult)
		if err != nil {
			return fmt.Errorf("marshal tool result: %w", err)
		}
		resultJSON = string(b)
	}

	ts := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(`
		INSERT INTO messages (role, content, tool_name, tool_args_json, tool_result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.Role, m.Content, toolName, argsJSON, resultJSON, ts)
	if err != nil {
		return fmt.Errorf("log message: %w", err)
	}
	return nil
}

// RecentMessages returns the most recent limit messages in chronological
// order. When includeToolMessages is false, TOOL_RESULT entries are
// filtered out before the limit is applied.
func (s *Store) RecentMessages(limit int, includeToolMessages bool) ([]Message, error) {
	if limit <= 0 {
		limit = 30
	}

	query := `
		SELECT id, role, content, tool_name, tool_args_json, tool_result_json, created_at
		FROM messages
	`
	if !includeToolMessages {
		query += ` WHERE tool_name IS NULL`
	}
	query += ` ORDER BY id DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var reversed []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		reversed = append(reversed, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows arrive newest-first; flip to chronological order.
	out := make([]Message, len(reversed))
	for i, m := range reversed {
		out[len(reversed)-1-i] = m
	}
	return out, nil
}

// MemoryContext builds the read-only snapshot for one orchestrator turn:
// all current facts plus the historyLimit most recent messages.
func (s *Store) MemoryContext(historyLimit int, includeToolMessages bool) (*Context, error) {
	facts, err := s.ListFacts()
	if err != nil {
		return nil, err
	}

	messages, err := s.RecentMessages(historyLimit, includeToolMessages)
	if err != nil {
		return nil, err
	}

	factMap := make(map[string]json.RawMessage, len(facts))
	for _, f := range facts {
		factMap[f.Key] = f.Value
	}

	return &Context{Facts: factMap, RecentMessages: messages}, nil
}

func scanMessage(rows *sql.Rows) (Message, error) {
	var m Message
	var toolName, argsJSON, resultJSON sql.NullString
	var createdStr string

	if err := rows.Scan(&m.ID, &m.Role, &m.Content, &toolName, &argsJSON, &resultJSON, &createdStr); err != nil {
		return m, fmt.Errorf("scan message: %w", err)
	}

	if toolName.Valid {
		m.ToolName = toolName.String
	}
	if argsJSON.Valid && argsJSON.String != "" {
		if err := json.Unmarshal([]byte(argsJSON.String), &m.ToolArgs); err != nil {
			return m, fmt.Errorf("decode tool args for message %d: %w", m.ID, err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var res schema.ToolResult
		if err := json.Unmarshal([]byte(resultJSON.String), &res); err != nil {
			return m, fmt.Errorf("decode tool result for message %d: %w", m.ID, err)
		}
		m.ToolResult = &res
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)

	return m, nil
}
