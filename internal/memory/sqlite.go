// ABOUTME: SQLite implementation of the memory Store using modernc.org/sqlite
// ABOUTME: Appends are serialized so timestamps stay strictly increasing

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// mu orders appends; lastTS is the newest timestamp handed out.
	mu     sync.Mutex
	lastTS int64
	closed bool
}

// NewSQLiteStore opens (creating if needed) the log at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "memory")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := s.db.QueryRow(`SELECT COALESCE(MAX(timestamp), 0) FROM conversation_memory`).Scan(&s.lastTS); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading last timestamp: %w", err)
	}

	logger.Info("memory store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversation_memory (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_type TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_name TEXT,
			tool_args TEXT,
			tool_result TEXT,
			category TEXT,
			timestamp INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_timestamp
			ON conversation_memory(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// runMigrations upgrades logs created before categories were recorded.
func (s *SQLiteStore) runMigrations() error {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info('conversation_memory') WHERE name = 'category'`).Scan(&exists)
	if err != nil {
		if _, err := s.db.Exec(`ALTER TABLE conversation_memory ADD COLUMN category TEXT`); err != nil {
			return fmt.Errorf("adding category column to conversation_memory: %w", err)
		}
		s.logger.Info("applied migration", "column", "category", "table", "conversation_memory")
	}

	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_category ON conversation_memory(category)`); err != nil {
		return fmt.Errorf("creating category index: %w", err)
	}
	return nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, e *Entry) error {
	if e.Kind == "" {
		return fmt.Errorf("entry kind is required")
	}
	if e.Kind == KindTool {
		if e.ToolName == "" {
			return fmt.Errorf("tool entry requires a tool name")
		}
		e.Category, _ = Categorize(e.ToolName)
	} else {
		e.Category = ""
	}
	if len(e.ToolArgs) > 0 && !json.Valid(e.ToolArgs) {
		return fmt.Errorf("tool args are not valid JSON")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	ts := time.Now().UnixNano()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_memory
			(message_type, content, tool_name, tool_args, tool_result, category, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(e.Kind), e.Content, nullString(e.ToolName), nullString(string(e.ToolArgs)),
		nullString(e.ToolResult), nullString(string(e.Category)), ts)
	if err != nil {
		return fmt.Errorf("inserting memory entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted id: %w", err)
	}

	s.lastTS = ts
	e.ID = id
	e.Timestamp = time.Unix(0, ts).UTC()
	return nil
}

// All implements Store.
func (s *SQLiteStore) All(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, `
		SELECT id, message_type, content, tool_name, tool_args, tool_result, category, timestamp
		FROM conversation_memory
		ORDER BY timestamp ASC, id ASC
	`)
}

// ByCategory implements Store.
func (s *SQLiteStore) ByCategory(ctx context.Context, c Category) ([]Entry, error) {
	return s.query(ctx, `
		SELECT id, message_type, content, tool_name, tool_args, tool_result, category, timestamp
		FROM conversation_memory
		WHERE category = ?
		ORDER BY timestamp ASC, id ASC
	`, string(c))
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*)
		FROM conversation_memory
		WHERE message_type = ? AND category IS NOT NULL
		GROUP BY category
	`, string(KindTool))
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{}
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		stats = append(stats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stats: %w", err)
	}

	sortStats(stats)
	return stats, nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_memory`); err != nil {
		return fmt.Errorf("clearing memory: %w", err)
	}
	s.logger.Info("memory cleared")
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying memory: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var kind string
		var toolName, toolArgs, result, category sql.NullString
		var ts int64
		if err := rows.Scan(&e.ID, &kind, &e.Content, &toolName, &toolArgs, &result, &category, &ts); err != nil {
			return nil, fmt.Errorf("scanning memory row: %w", err)
		}
		e.Kind = Kind(kind)
		e.ToolName = toolName.String
		if toolArgs.Valid && toolArgs.String != "" {
			e.ToolArgs = json.RawMessage(toolArgs.String)
		}
		e.ToolResult = result.String
		e.Category = Category(category.String)
		e.Timestamp = time.Unix(0, ts).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memory rows: %w", err)
	}
	return entries, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
