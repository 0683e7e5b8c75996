package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ghiac/telemetrize/model"
)

// Read accessors. The analytics read side is plain SQL against the database
// file; these cover what the recorder itself and its tests need.

// GetSession retrieves a session by id, or nil if it does not exist
func (s *SQLiteStore) GetSession(sessionID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := &model.Session{}
	var startedAt int64
	var endedAt sql.NullInt64

	err := s.db.QueryRow(
		`SELECT session_id, started_at, ended_at, working_dir, model, session_file, input_tokens, output_tokens, cost
		 FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(
		&session.SessionID,
		&startedAt,
		&endedAt,
		&session.WorkingDir,
		&session.Model,
		&session.SessionFile,
		&session.InputTokens,
		&session.OutputTokens,
		&session.Cost,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	session.StartedAt = time.UnixMilli(startedAt)
	if endedAt.Valid {
		session.EndedAt = time.UnixMilli(endedAt.Int64)
	}
	return session, nil
}

// GetTurns returns all turns for a session ordered by turn index and iteration
func (s *SQLiteStore) GetTurns(sessionID string) ([]*model.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT turn_id, session_id, turn_index, iteration, started_at, ended_at, duration_ms, model, input_tokens, output_tokens, cost, stop_reason
		 FROM turns WHERE session_id = ? ORDER BY turn_index ASC, iteration ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []*model.Turn
	for rows.Next() {
		turn := &model.Turn{}
		var startedAt int64
		var endedAt, durationMs sql.NullInt64
		var modelName, stopReason sql.NullString

		err := rows.Scan(
			&turn.TurnID,
			&turn.SessionID,
			&turn.TurnIndex,
			&turn.Iteration,
			&startedAt,
			&endedAt,
			&durationMs,
			&modelName,
			&turn.InputTokens,
			&turn.OutputTokens,
			&turn.Cost,
			&stopReason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}

		turn.StartedAt = time.UnixMilli(startedAt)
		if endedAt.Valid {
			turn.EndedAt = time.UnixMilli(endedAt.Int64)
		}
		turn.DurationMs = durationMs.Int64
		turn.Model = modelName.String
		turn.StopReason = stopReason.String
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return turns, nil
}

// GetMessages returns all messages for a session in insertion order
func (s *SQLiteStore) GetMessages(sessionID string) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT message_id, session_id, turn_id, role, content, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		msg := &model.Message{}
		var turnID sql.NullInt64
		var createdAt int64

		err := rows.Scan(
			&msg.MessageID,
			&msg.SessionID,
			&turnID,
			&msg.Role,
			&msg.Content,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.TurnID = turnID.Int64
		msg.CreatedAt = time.UnixMilli(createdAt)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// GetToolCall retrieves a tool call by id, or nil if it does not exist
func (s *SQLiteStore) GetToolCall(toolCallID string) (*model.ToolCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tc := &model.ToolCall{}
	var turnID sql.NullInt64
	var startedAt int64
	var endedAt, durationMs sql.NullInt64
	var isError int

	err := s.db.QueryRow(
		`SELECT tool_call_id, session_id, turn_id, tool_name, input, started_at, ended_at, duration_ms, is_error, result
		 FROM tool_calls WHERE tool_call_id = ?`,
		toolCallID,
	).Scan(
		&tc.ToolCallID,
		&tc.SessionID,
		&turnID,
		&tc.ToolName,
		&tc.Input,
		&startedAt,
		&endedAt,
		&durationMs,
		&isError,
		&tc.Result,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tool call: %w", err)
	}

	tc.TurnID = turnID.Int64
	tc.StartedAt = time.UnixMilli(startedAt)
	if endedAt.Valid {
		tc.EndedAt = time.UnixMilli(endedAt.Int64)
	}
	tc.DurationMs = durationMs.Int64
	tc.IsError = isError != 0
	return tc, nil
}

// GetModelChanges returns all model changes for a session in order
func (s *SQLiteStore) GetModelChanges(sessionID string) ([]*model.ModelChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT change_id, session_id, created_at, source, prev_provider, prev_model, next_provider, next_model
		 FROM model_changes WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query model changes: %w", err)
	}
	defer rows.Close()

	var changes []*model.ModelChange
	for rows.Next() {
		change := &model.ModelChange{}
		var createdAt int64
		var source string

		err := rows.Scan(
			&change.ChangeID,
			&change.SessionID,
			&createdAt,
			&source,
			&change.Previous.Provider,
			&change.Previous.Model,
			&change.Next.Provider,
			&change.Next.Model,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model change: %w", err)
		}

		change.CreatedAt = time.UnixMilli(createdAt)
		change.Source = model.ChangeSource(source)
		changes = append(changes, change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating model changes: %w", err)
	}
	return changes, nil
}
