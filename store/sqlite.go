package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ghiac/telemetrize/model"
	_ "modernc.org/sqlite"
)

// SQLiteStore owns the embedded telemetry database. It is the single writer;
// WAL journaling keeps the file readable by external query tools while this
// process appends.
type SQLiteStore struct {
	db         *sql.DB
	mu         sync.Mutex
	path       string
	maxPayload int
}

// NewSQLiteStore opens or creates the telemetry database at dbPath.
// If dbPath is empty, it uses ":memory:" for an in-memory database.
// maxPayload is the byte ceiling applied to free-text fields before they are
// bound into a statement; values <= 0 fall back to DefaultMaxPayloadBytes.
func NewSQLiteStore(dbPath string, maxPayload int) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayloadBytes
	}

	// For file-based storage, ensure the directory exists
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory for database: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; also keeps the connection-scoped pragmas below in effect
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:         db,
		path:       dbPath,
		maxPayload: maxPayload,
	}

	if err := store.configure(); err != nil {
		db.Close()
		return nil, err
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// configure applies the journaling and integrity pragmas.
// WAL lets external read-only clients see consistent snapshots while we write.
func (s *SQLiteStore) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}
	return nil
}

// initSchema creates the necessary tables. Safe to run on every startup.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		working_dir TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		session_file TEXT NOT NULL DEFAULT '',
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);

	CREATE TABLE IF NOT EXISTS turns (
		turn_id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		turn_index INTEGER NOT NULL,
		iteration INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		duration_ms INTEGER,
		model TEXT,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		stop_reason TEXT,
		UNIQUE(session_id, turn_index, iteration)
	);

	CREATE INDEX IF NOT EXISTS idx_turns_session_id ON turns(session_id);

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		turn_id INTEGER REFERENCES turns(turn_id),
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);

	CREATE TABLE IF NOT EXISTS tool_calls (
		tool_call_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		turn_id INTEGER REFERENCES turns(turn_id),
		tool_name TEXT NOT NULL,
		input TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		duration_ms INTEGER,
		is_error INTEGER NOT NULL DEFAULT 0,
		result TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_tool_calls_session_id ON tool_calls(session_id);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_started_at ON tool_calls(started_at);

	CREATE TABLE IF NOT EXISTS model_changes (
		change_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		created_at INTEGER NOT NULL,
		source TEXT NOT NULL,
		prev_provider TEXT NOT NULL DEFAULT '',
		prev_model TEXT NOT NULL DEFAULT '',
		next_provider TEXT NOT NULL DEFAULT '',
		next_model TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_model_changes_session_id ON model_changes(session_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Migration: add session_file column for databases created before it existed.
	// SQLite has no IF NOT EXISTS for ADD COLUMN, so the error is ignored.
	_, _ = s.db.Exec(`ALTER TABLE sessions ADD COLUMN session_file TEXT NOT NULL DEFAULT ''`)

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file location
func (s *SQLiteStore) Path() string {
	return s.path
}

// Execute runs a single statement and returns the number of affected rows
func (s *SQLiteStore) Execute(query string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec(s.db, query, args...)
}

// Transaction runs fn inside a single atomic transaction
func (s *SQLiteStore) Transaction(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transact(fn)
}

// transact is Transaction without locking; callers must hold s.mu
func (s *SQLiteStore) transact(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// execer covers both *sql.DB and *sql.Tx
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) exec(e execer, query string, args ...any) (int64, error) {
	res, err := e.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// UpsertSession creates the session row, or refreshes its descriptive fields
// when the host resumes a known session. Accumulated totals and the original
// start timestamp are never reset.
func (s *SQLiteStore) UpsertSession(session *model.Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.exec(s.db,
		`INSERT INTO sessions (session_id, started_at, working_dir, model, session_file)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			working_dir = excluded.working_dir,
			model = excluded.model,
			session_file = excluded.session_file,
			ended_at = NULL`,
		session.SessionID,
		session.StartedAt.UnixMilli(),
		session.WorkingDir,
		session.Model,
		session.SessionFile,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// CloseSession sets the session's end timestamp
func (s *SQLiteStore) CloseSession(sessionID string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.exec(s.db,
		`UPDATE sessions SET ended_at = ? WHERE session_id = ?`,
		endedAt.UnixMilli(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// StartTurn creates (or restarts) the turn row for the given natural key and
// returns its row id. A conflict on the (session, index, iteration) triple
// clears all mutable fields so a retried start never leaves stale data.
func (s *SQLiteStore) StartTurn(turn *model.Turn) (int64, error) {
	if turn == nil {
		return 0, fmt.Errorf("turn cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var turnID int64
	err := s.transact(func(tx *sql.Tx) error {
		_, err := s.exec(tx,
			`INSERT INTO turns (session_id, turn_index, iteration, started_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(session_id, turn_index, iteration) DO UPDATE SET
				started_at = excluded.started_at,
				ended_at = NULL,
				duration_ms = NULL,
				model = NULL,
				input_tokens = 0,
				output_tokens = 0,
				cost = 0,
				stop_reason = NULL`,
			turn.SessionID,
			turn.TurnIndex,
			turn.Iteration,
			turn.StartedAt.UnixMilli(),
		)
		if err != nil {
			return err
		}
		return tx.QueryRow(
			`SELECT turn_id FROM turns WHERE session_id = ? AND turn_index = ? AND iteration = ?`,
			turn.SessionID, turn.TurnIndex, turn.Iteration,
		).Scan(&turnID)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to start turn: %w", err)
	}

	turn.TurnID = turnID
	return turnID, nil
}

// CompleteTurn finalizes a turn in one atomic transaction: the turn row is
// updated first, then the parent session's totals are incremented by the
// turn's deltas, then the assistant message (if any) is inserted. A reader
// can never observe incremented totals without the finished turn row.
func (s *SQLiteStore) CompleteTurn(turn *model.Turn, assistant *model.Message) error {
	if turn == nil {
		return fmt.Errorf("turn cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.transact(func(tx *sql.Tx) error {
		_, err := s.exec(tx,
			`UPDATE turns SET
				ended_at = ?,
				duration_ms = ?,
				model = ?,
				input_tokens = ?,
				output_tokens = ?,
				cost = ?,
				stop_reason = ?
			 WHERE turn_id = ?`,
			turn.EndedAt.UnixMilli(),
			turn.DurationMs,
			nullString(turn.Model),
			turn.InputTokens,
			turn.OutputTokens,
			turn.Cost,
			nullString(turn.StopReason),
			turn.TurnID,
		)
		if err != nil {
			return err
		}

		_, err = s.exec(tx,
			`UPDATE sessions SET
				input_tokens = input_tokens + ?,
				output_tokens = output_tokens + ?,
				cost = cost + ?
			 WHERE session_id = ?`,
			turn.InputTokens,
			turn.OutputTokens,
			turn.Cost,
			turn.SessionID,
		)
		if err != nil {
			return err
		}

		if assistant != nil {
			return s.insertMessage(tx, assistant)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete turn: %w", err)
	}
	return nil
}

// InsertMessage stores a message row, truncating oversized content
func (s *SQLiteStore) InsertMessage(message *model.Message) error {
	if message == nil {
		return fmt.Errorf("message cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertMessage(s.db, message); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) insertMessage(e execer, message *model.Message) error {
	_, err := s.exec(e,
		`INSERT INTO messages (message_id, session_id, turn_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		message.MessageID,
		message.SessionID,
		nullID(message.TurnID),
		message.Role,
		Truncate(message.Content, s.maxPayload),
		message.CreatedAt.UnixMilli(),
	)
	return err
}

// StartToolCall records a tool invocation. INSERT OR REPLACE keeps at most
// one open row per tool-call id even if the start event is delivered twice.
func (s *SQLiteStore) StartToolCall(toolCall *model.ToolCall) error {
	if toolCall == nil {
		return fmt.Errorf("toolCall cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.exec(s.db,
		`INSERT OR REPLACE INTO tool_calls (tool_call_id, session_id, turn_id, tool_name, input, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		toolCall.ToolCallID,
		toolCall.SessionID,
		nullID(toolCall.TurnID),
		toolCall.ToolName,
		Truncate(toolCall.Input, s.maxPayload),
		toolCall.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store tool call: %w", err)
	}
	return nil
}

// CompleteToolCall writes the terminal update for a tool call and returns the
// number of affected rows. Zero affected rows means the start was never
// recorded (recording was disabled at the time); that is not an error.
func (s *SQLiteStore) CompleteToolCall(toolCallID string, endedAt time.Time, durationMs int64, isError bool, result string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	errFlag := 0
	if isError {
		errFlag = 1
	}

	affected, err := s.exec(s.db,
		`UPDATE tool_calls SET
			ended_at = ?,
			duration_ms = ?,
			is_error = ?,
			result = ?
		 WHERE tool_call_id = ?`,
		endedAt.UnixMilli(),
		durationMs,
		errFlag,
		Truncate(result, s.maxPayload),
		toolCallID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update tool call: %w", err)
	}
	return affected, nil
}

// InsertModelChange appends a model change record. Rows are never updated.
func (s *SQLiteStore) InsertModelChange(change *model.ModelChange) error {
	if change == nil {
		return fmt.Errorf("change cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.exec(s.db,
		`INSERT INTO model_changes (change_id, session_id, created_at, source, prev_provider, prev_model, next_provider, next_model)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		change.ChangeID,
		change.SessionID,
		change.CreatedAt.UnixMilli(),
		string(change.Source),
		change.Previous.Provider,
		change.Previous.Model,
		change.Next.Provider,
		change.Next.Model,
	)
	if err != nil {
		return fmt.Errorf("failed to store model change: %w", err)
	}
	return nil
}

// nullID maps a zero surrogate id to NULL
func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// nullString maps an empty string to NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
