package model

import "time"

// Session represents one continuous run of the host application, from
// session start to shutdown. Token and cost totals are running aggregates
// maintained incrementally as turns complete.
type Session struct {
	// SessionID is the opaque identifier supplied by the host
	SessionID string

	// StartedAt is set once when the session row is first created and
	// never reset, even when a resumed session re-sends session start
	StartedAt time.Time

	// EndedAt is set on session shutdown; zero while the session is live
	EndedAt time.Time

	// WorkingDir is the working directory the session originated from
	WorkingDir string

	// Model is the model identifier active when the session started
	Model string

	// SessionFile points at the host's session transcript file, if any
	SessionFile string

	// Running totals, incremented in the same transaction as each
	// completed turn
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// Turn represents one model-response iteration inside a logical
// conversational turn. The (SessionID, TurnIndex, Iteration) triple is the
// natural key: the iteration number distinguishes tool-use follow-up calls
// that share a turn index.
type Turn struct {
	// TurnID is the surrogate row id assigned by the store
	TurnID int64

	SessionID string
	TurnIndex int
	Iteration int

	StartedAt time.Time

	// EndedAt and the fields below stay zero until the turn completes,
	// and are cleared again if the same triple is restarted
	EndedAt      time.Time
	DurationMs   int64
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	StopReason   string
}
