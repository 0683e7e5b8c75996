package recorder

import (
	"sync"
	"time"

	"github.com/ghiac/telemetrize/log"
	"github.com/ghiac/telemetrize/model"
	"github.com/sashabaranov/go-openai"
)

// Status is the two-state health indicator the host may render
type Status string

const (
	// StatusActive means events are being recorded
	StatusActive Status = "recording-active"
	// StatusDisabled means recording is off for this session; every
	// ingestion call is a silent no-op
	StatusDisabled Status = "recording-disabled"
)

// Glyph returns a single-character indicator for the status
func (s Status) Glyph() string {
	if s == StatusActive {
		return "●"
	}
	return "○"
}

// Store is the write pipeline the recorder drives.
// Implemented by store.SQLiteStore.
type Store interface {
	UpsertSession(session *model.Session) error
	CloseSession(sessionID string, endedAt time.Time) error
	StartTurn(turn *model.Turn) (int64, error)
	CompleteTurn(turn *model.Turn, assistant *model.Message) error
	InsertMessage(message *model.Message) error
	StartToolCall(toolCall *model.ToolCall) error
	CompleteToolCall(toolCallID string, endedAt time.Time, durationMs int64, isError bool, result string) (int64, error)
	InsertModelChange(change *model.ModelChange) error
	Close() error
}

// OpenStoreFunc opens the telemetry store. Called once per session, at
// session start; an error disables recording for the whole session.
type OpenStoreFunc func() (Store, error)

// Recorder correlates lifecycle events from the host into consistent
// aggregate rows. It owns one session lifecycle at a time: the store handle
// is opened at session start and released at shutdown.
//
// Every method is fire-and-forget: failures are logged, never propagated,
// and never block the host beyond a handful of local statements.
type Recorder struct {
	mu    sync.Mutex
	open  OpenStoreFunc
	store Store

	status Status

	// correlator state, scoped to the current session
	sessionID     string
	turnID        int64
	turnStartedAt time.Time
	turnOpen      bool
	lastTurnIndex int
	turnSeen      bool
	iteration     int
	openToolCalls map[string]time.Time

	// now is replaceable in tests
	now func() time.Time
}

// New creates a recorder. open may be nil, in which case recording stays
// disabled for every session.
func New(open OpenStoreFunc) *Recorder {
	return &Recorder{
		open:          open,
		status:        StatusDisabled,
		openToolCalls: make(map[string]time.Time),
		now:           time.Now,
	}
}

// Status returns the current health indicator
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SessionID returns the id of the session currently being recorded, or ""
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Handle dispatches a lifecycle event payload to its typed handler
func (r *Recorder) Handle(payload model.Payload) {
	switch e := payload.(type) {
	case model.SessionStart:
		r.SessionStart(e)
	case model.SessionShutdown:
		r.SessionShutdown()
	case model.UserInput:
		r.UserInput(e)
	case model.TurnStart:
		r.TurnStart(e)
	case model.TurnEnd:
		r.TurnEnd(e)
	case model.ToolCallStart:
		r.ToolCallStart(e)
	case model.ToolCallResult:
		r.ToolCallResult(e)
	case model.ModelSelect:
		r.ModelSelect(e)
	default:
		log.Log.Debugf("recorder: ignoring unknown event payload %T", payload)
	}
}

// SessionStart opens the store and creates (or refreshes) the session row.
// A store that fails to open disables recording for the rest of the session;
// the host keeps functioning with recording off.
func (r *Recorder) SessionStart(e model.SessionStart) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetLocked()
	r.sessionID = e.SessionID

	if r.open == nil {
		return
	}

	st, err := r.open()
	if err != nil {
		log.Log.Errorf("recorder: telemetry store unavailable, recording disabled for session %s: %v", e.SessionID, err)
		return
	}
	r.store = st
	r.status = StatusActive

	session := &model.Session{
		SessionID:   e.SessionID,
		StartedAt:   r.now(),
		WorkingDir:  e.WorkingDir,
		Model:       e.Model.String(),
		SessionFile: e.SessionFile,
	}
	if err := r.store.UpsertSession(session); err != nil {
		log.Log.Warnf("recorder: failed to record session start: %v", err)
	}
}

// SessionShutdown closes the session row and releases the store handle.
// The handle is closed even if the final update fails, so the WAL journal is
// flushed on every exit path. Shutdown with no prior session start is a no-op.
func (r *Recorder) SessionShutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil {
		if r.sessionID != "" {
			if err := r.store.CloseSession(r.sessionID, r.now()); err != nil {
				log.Log.Warnf("recorder: failed to record session end: %v", err)
			}
		}
		if err := r.store.Close(); err != nil {
			log.Log.Warnf("recorder: failed to close telemetry store: %v", err)
		}
	}
	r.resetLocked()
}

// UserInput records raw user input as a message row. User messages never
// reference a turn.
func (r *Recorder) UserInput(e model.UserInput) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.activeLocked() {
		return
	}

	msg := model.NewUserMessage(r.sessionID, e.Content, r.now())
	if err := r.store.InsertMessage(msg); err != nil {
		log.Log.Warnf("recorder: failed to record user input: %v", err)
	}
}

// TurnStart opens a turn row. When the incoming turn index repeats the last
// seen index the iteration counter increments; when the index changes it
// resets to zero. The resulting (session, index, iteration) triple is the
// turn's primary key.
func (r *Recorder) TurnStart(e model.TurnStart) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.activeLocked() {
		return
	}

	if r.turnSeen && r.lastTurnIndex == e.TurnIndex {
		r.iteration++
	} else {
		r.iteration = 0
	}
	r.lastTurnIndex = e.TurnIndex
	r.turnSeen = true

	turn := &model.Turn{
		SessionID: r.sessionID,
		TurnIndex: e.TurnIndex,
		Iteration: r.iteration,
		StartedAt: r.now(),
	}
	turnID, err := r.store.StartTurn(turn)
	if err != nil {
		log.Log.Warnf("recorder: failed to record turn start: %v", err)
		r.turnOpen = false
		return
	}

	r.turnID = turnID
	r.turnStartedAt = turn.StartedAt
	r.turnOpen = true
}

// TurnEnd finalizes the currently open turn: turn row update, session total
// increment, and the assistant message insert all commit in one transaction.
// When no turn is open the event is dropped. Tokens and cost are recorded as
// zero when the completing message is not of assistant role.
func (r *Recorder) TurnEnd(e model.TurnEnd) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.activeLocked() {
		return
	}
	if !r.turnOpen {
		log.Log.Debugf("recorder: dropping turn end with no open turn (session %s)", r.sessionID)
		return
	}

	now := r.now()
	turn := &model.Turn{
		TurnID:     r.turnID,
		SessionID:  r.sessionID,
		TurnIndex:  r.lastTurnIndex,
		Iteration:  r.iteration,
		StartedAt:  r.turnStartedAt,
		EndedAt:    now,
		DurationMs: now.Sub(r.turnStartedAt).Milliseconds(),
	}

	var assistant *model.Message
	if e.Message.Role == openai.ChatMessageRoleAssistant {
		turn.Model = e.Model.String()
		turn.InputTokens = e.Usage.PromptTokens
		turn.OutputTokens = e.Usage.CompletionTokens
		turn.Cost = e.Cost
		turn.StopReason = e.StopReason
		if e.Message.Content != "" {
			assistant = model.NewAssistantMessage(r.sessionID, r.turnID, e.Message.Content, now)
		}
	}

	if err := r.store.CompleteTurn(turn, assistant); err != nil {
		log.Log.Warnf("recorder: failed to record turn end: %v", err)
	}

	r.turnOpen = false
	r.turnID = 0
}

// ToolCallStart records a tool invocation, referencing the open turn if any,
// and remembers the start time for duration calculation.
func (r *Recorder) ToolCallStart(e model.ToolCallStart) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.activeLocked() {
		return
	}

	now := r.now()
	tc := &model.ToolCall{
		ToolCallID: e.ToolCallID,
		SessionID:  r.sessionID,
		ToolName:   e.ToolName,
		Input:      e.Input,
		StartedAt:  now,
	}
	if r.turnOpen {
		tc.TurnID = r.turnID
	}

	if err := r.store.StartToolCall(tc); err != nil {
		log.Log.Warnf("recorder: failed to record tool call %s: %v", e.ToolCallID, err)
		return
	}
	r.openToolCalls[e.ToolCallID] = now
}

// ToolCallResult writes the terminal update for a tool call. If the start was
// never observed (recording was disabled when the call began), the duration
// is zero and the update matching no row counts as success.
func (r *Recorder) ToolCallResult(e model.ToolCallResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.activeLocked() {
		return
	}

	now := r.now()
	var durationMs int64
	if startedAt, ok := r.openToolCalls[e.ToolCallID]; ok {
		durationMs = now.Sub(startedAt).Milliseconds()
		delete(r.openToolCalls, e.ToolCallID)
	}

	affected, err := r.store.CompleteToolCall(e.ToolCallID, now, durationMs, e.IsError, e.Content)
	if err != nil {
		log.Log.Warnf("recorder: failed to record tool result %s: %v", e.ToolCallID, err)
		return
	}
	if affected == 0 {
		log.Log.Debugf("recorder: tool result %s matched no recorded call", e.ToolCallID)
	}
}

// ModelSelect appends a model change record
func (r *Recorder) ModelSelect(e model.ModelSelect) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.activeLocked() {
		return
	}

	change := model.NewModelChange(r.sessionID, e.Previous, e.Next, e.Source, r.now())
	if err := r.store.InsertModelChange(change); err != nil {
		log.Log.Warnf("recorder: failed to record model change: %v", err)
	}
}

// activeLocked reports whether events should be recorded. Callers must hold r.mu.
func (r *Recorder) activeLocked() bool {
	return r.status == StatusActive && r.store != nil && r.sessionID != ""
}

// resetLocked clears all correlator state. Callers must hold r.mu.
func (r *Recorder) resetLocked() {
	r.store = nil
	r.status = StatusDisabled
	r.sessionID = ""
	r.turnID = 0
	r.turnStartedAt = time.Time{}
	r.turnOpen = false
	r.lastTurnIndex = 0
	r.turnSeen = false
	r.iteration = 0
	r.openToolCalls = make(map[string]time.Time)
}
