package model

import "time"

// ToolCall represents one tool invocation and its eventual result.
// A call whose result never arrives (process killed mid-call) keeps a zero
// EndedAt forever; that is an accepted permanent partial record.
type ToolCall struct {
	// ToolCallID is the globally unique identifier supplied by the host
	ToolCallID string

	// SessionID identifies the owning session
	SessionID string

	// TurnID references the turn that was open when the call started.
	// Zero (stored as NULL) when the call happened outside any tracked turn.
	TurnID int64

	// ToolName is the invoked tool's name
	ToolName string

	// Input is the serialized tool input, truncated to the payload ceiling
	Input string

	StartedAt time.Time

	// Terminal fields, written exactly once when the result arrives
	EndedAt    time.Time
	DurationMs int64
	IsError    bool
	Result     string
}
