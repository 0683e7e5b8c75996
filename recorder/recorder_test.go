package recorder

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghiac/telemetrize/model"
	"github.com/ghiac/telemetrize/store"
	"github.com/sashabaranov/go-openai"
)

// mockStore captures write pipeline calls without a real database
type mockStore struct {
	sessions    []*model.Session
	closedIDs   []string
	started     []*model.Turn
	completed   []*model.Turn
	assistants  []*model.Message
	messages    []*model.Message
	toolCalls   []*model.ToolCall
	toolResults []string
	changes     []*model.ModelChange
	nextTurnID  int64
	closed      bool

	startTurnErr error
}

func (m *mockStore) UpsertSession(s *model.Session) error {
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *mockStore) CloseSession(sessionID string, endedAt time.Time) error {
	m.closedIDs = append(m.closedIDs, sessionID)
	return nil
}

func (m *mockStore) StartTurn(t *model.Turn) (int64, error) {
	if m.startTurnErr != nil {
		return 0, m.startTurnErr
	}
	m.nextTurnID++
	t.TurnID = m.nextTurnID
	m.started = append(m.started, t)
	return m.nextTurnID, nil
}

func (m *mockStore) CompleteTurn(t *model.Turn, assistant *model.Message) error {
	m.completed = append(m.completed, t)
	if assistant != nil {
		m.assistants = append(m.assistants, assistant)
	}
	return nil
}

func (m *mockStore) InsertMessage(msg *model.Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockStore) StartToolCall(tc *model.ToolCall) error {
	m.toolCalls = append(m.toolCalls, tc)
	return nil
}

func (m *mockStore) CompleteToolCall(toolCallID string, endedAt time.Time, durationMs int64, isError bool, result string) (int64, error) {
	m.toolResults = append(m.toolResults, toolCallID)
	for _, tc := range m.toolCalls {
		if tc.ToolCallID == toolCallID {
			return 1, nil
		}
	}
	return 0, nil
}

func (m *mockStore) InsertModelChange(c *model.ModelChange) error {
	m.changes = append(m.changes, c)
	return nil
}

func (m *mockStore) Close() error {
	m.closed = true
	return nil
}

func newMockRecorder() (*Recorder, *mockStore) {
	mock := &mockStore{}
	rec := New(func() (Store, error) { return mock, nil })
	rec.SessionStart(model.SessionStart{SessionID: "s1"})
	return rec, mock
}

func assistantEnd(in, out int, cost float64, content string) model.TurnEnd {
	return model.TurnEnd{
		Message: openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: content,
		},
		Usage:      openai.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
		Cost:       cost,
		StopReason: "stop",
		Model:      model.ModelRef{Provider: "openai", Model: "gpt-4o"},
	}
}

func TestRecorder_IterationRule(t *testing.T) {
	rec, mock := newMockRecorder()

	indexes := []int{0, 0, 0, 1, 2, 2, 0}
	wantIterations := []int{0, 1, 2, 0, 0, 1, 0}

	for _, idx := range indexes {
		rec.TurnStart(model.TurnStart{TurnIndex: idx})
	}

	if len(mock.started) != len(indexes) {
		t.Fatalf("Expected %d started turns, got %d", len(indexes), len(mock.started))
	}
	for i, turn := range mock.started {
		if turn.TurnIndex != indexes[i] {
			t.Errorf("Turn %d: expected index %d, got %d", i, indexes[i], turn.TurnIndex)
		}
		if turn.Iteration != wantIterations[i] {
			t.Errorf("Turn %d (index %d): expected iteration %d, got %d",
				i, indexes[i], wantIterations[i], turn.Iteration)
		}
	}
}

func TestRecorder_IterationResetsOnNewSession(t *testing.T) {
	rec, mock := newMockRecorder()

	rec.TurnStart(model.TurnStart{TurnIndex: 0})
	rec.TurnStart(model.TurnStart{TurnIndex: 0})

	rec.SessionStart(model.SessionStart{SessionID: "s2"})
	rec.TurnStart(model.TurnStart{TurnIndex: 0})

	last := mock.started[len(mock.started)-1]
	if last.SessionID != "s2" || last.Iteration != 0 {
		t.Errorf("Expected fresh iteration 0 in new session, got %+v", last)
	}
}

func TestRecorder_TurnEndWithoutOpenTurn_Dropped(t *testing.T) {
	rec, mock := newMockRecorder()

	rec.TurnEnd(assistantEnd(10, 5, 0.01, "hi"))
	if len(mock.completed) != 0 {
		t.Fatalf("Turn end with no open turn must be dropped, got %d completions", len(mock.completed))
	}

	// A second end after a completed turn is dropped too
	rec.TurnStart(model.TurnStart{TurnIndex: 0})
	rec.TurnEnd(assistantEnd(10, 5, 0.01, "hi"))
	rec.TurnEnd(assistantEnd(3, 2, 0.002, "again"))
	if len(mock.completed) != 1 {
		t.Errorf("Expected exactly 1 completion, got %d", len(mock.completed))
	}
}

func TestRecorder_NonAssistantTurnEnd_ZeroUsage(t *testing.T) {
	rec, mock := newMockRecorder()

	rec.TurnStart(model.TurnStart{TurnIndex: 0})
	rec.TurnEnd(model.TurnEnd{
		Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, Content: "tool output"},
		Usage:   openai.Usage{PromptTokens: 99, CompletionTokens: 99},
		Cost:    1.0,
	})

	if len(mock.completed) != 1 {
		t.Fatalf("Expected 1 completion, got %d", len(mock.completed))
	}
	turn := mock.completed[0]
	if turn.InputTokens != 0 || turn.OutputTokens != 0 || turn.Cost != 0 {
		t.Errorf("Non-assistant turn end must record zero usage, got %+v", turn)
	}
	if len(mock.assistants) != 0 {
		t.Error("Non-assistant turn end must not insert an assistant message")
	}
}

func TestRecorder_StoreUnavailable_AllNoop(t *testing.T) {
	rec := New(func() (Store, error) { return nil, fmt.Errorf("sqlite missing") })

	rec.SessionStart(model.SessionStart{SessionID: "s1"})
	if rec.Status() != StatusDisabled {
		t.Fatalf("Expected disabled status, got %s", rec.Status())
	}

	// Every subsequent call must be a silent no-op
	rec.UserInput(model.UserInput{Content: "hello"})
	rec.TurnStart(model.TurnStart{TurnIndex: 0})
	rec.TurnEnd(assistantEnd(1, 1, 0.001, "x"))
	rec.ToolCallStart(model.ToolCallStart{ToolCallID: "tc-1", ToolName: "search"})
	rec.ToolCallResult(model.ToolCallResult{ToolCallID: "tc-1", Content: "r"})
	rec.ModelSelect(model.ModelSelect{Source: model.ChangeSourceSet})
	rec.SessionShutdown()
}

func TestRecorder_NilOpenFunc(t *testing.T) {
	rec := New(nil)
	rec.SessionStart(model.SessionStart{SessionID: "s1"})
	if rec.Status() != StatusDisabled {
		t.Errorf("Expected disabled status with nil store factory, got %s", rec.Status())
	}
	rec.SessionShutdown()
}

func TestRecorder_ShutdownWithoutStart(t *testing.T) {
	opened := false
	rec := New(func() (Store, error) {
		opened = true
		return &mockStore{}, nil
	})

	rec.SessionShutdown()
	if opened {
		t.Error("Shutdown without start must not open the store")
	}
}

func TestRecorder_Shutdown_ClosesStoreAndSession(t *testing.T) {
	rec, mock := newMockRecorder()

	rec.SessionShutdown()
	if len(mock.closedIDs) != 1 || mock.closedIDs[0] != "s1" {
		t.Errorf("Expected session s1 closed, got %v", mock.closedIDs)
	}
	if !mock.closed {
		t.Error("Shutdown must release the store handle")
	}
	if rec.Status() != StatusDisabled {
		t.Errorf("Expected disabled status after shutdown, got %s", rec.Status())
	}
}

func TestRecorder_StartTurnFailure_LeavesTurnClosed(t *testing.T) {
	rec, mock := newMockRecorder()
	mock.startTurnErr = fmt.Errorf("disk full")

	rec.TurnStart(model.TurnStart{TurnIndex: 0})
	rec.TurnEnd(assistantEnd(10, 5, 0.01, "hi"))

	if len(mock.completed) != 0 {
		t.Error("Turn end after a failed start must be dropped")
	}
}

func TestRecorder_Handle_Dispatch(t *testing.T) {
	rec, mock := newMockRecorder()

	rec.Handle(model.TurnStart{TurnIndex: 0})
	rec.Handle(assistantEnd(10, 5, 0.01, "hi"))
	rec.Handle(model.UserInput{Content: "hello"})

	if len(mock.started) != 1 || len(mock.completed) != 1 || len(mock.messages) != 1 {
		t.Errorf("Handle dispatch mismatch: started=%d completed=%d messages=%d",
			len(mock.started), len(mock.completed), len(mock.messages))
	}
}

func TestStatus_Glyph(t *testing.T) {
	if StatusActive.Glyph() == StatusDisabled.Glyph() {
		t.Error("Active and disabled glyphs must differ")
	}
}

// newFileRecorder wires the recorder to a real SQLite store on disk and
// returns the database path for post-shutdown verification
func newFileRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "telemetry.db")
	rec := New(func() (Store, error) {
		return store.NewSQLiteStore(dbPath, 0)
	})
	return rec, dbPath
}

func openForVerify(t *testing.T, dbPath string) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(dbPath, 0)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecorder_SessionScenario(t *testing.T) {
	rec, dbPath := newFileRecorder(t)

	rec.SessionStart(model.SessionStart{
		SessionID:  "s1",
		WorkingDir: "/home/alice/project",
		Model:      model.ModelRef{Provider: "openai", Model: "gpt-4o"},
	})
	if rec.Status() != StatusActive {
		t.Fatalf("Expected active status, got %s", rec.Status())
	}

	rec.TurnStart(model.TurnStart{TurnIndex: 0})
	rec.TurnEnd(assistantEnd(10, 5, 0.01, "first answer"))
	rec.TurnStart(model.TurnStart{TurnIndex: 0})
	rec.TurnEnd(assistantEnd(3, 2, 0.002, "second answer"))
	rec.SessionShutdown()

	s := openForVerify(t, dbPath)

	turns, err := s.GetTurns("s1")
	if err != nil {
		t.Fatalf("Failed to get turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("Expected 2 turn rows, got %d", len(turns))
	}
	if turns[0].Iteration != 0 || turns[1].Iteration != 1 {
		t.Errorf("Expected iterations 0 and 1, got %d and %d", turns[0].Iteration, turns[1].Iteration)
	}
	if turns[0].InputTokens != 10 || turns[1].InputTokens != 3 {
		t.Errorf("Unexpected turn tokens: %d, %d", turns[0].InputTokens, turns[1].InputTokens)
	}

	session, err := s.GetSession("s1")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if session.InputTokens != 13 || session.OutputTokens != 7 {
		t.Errorf("Expected totals in=13 out=7, got in=%d out=%d", session.InputTokens, session.OutputTokens)
	}
	if session.Cost < 0.0119 || session.Cost > 0.0121 {
		t.Errorf("Expected total cost 0.012, got %f", session.Cost)
	}
	if session.EndedAt.IsZero() {
		t.Error("Shutdown must set the session end timestamp")
	}
}

func TestRecorder_MessagesAndToolCalls(t *testing.T) {
	rec, dbPath := newFileRecorder(t)

	rec.SessionStart(model.SessionStart{SessionID: "s1"})
	rec.UserInput(model.UserInput{Content: "what's the weather?"})
	rec.TurnStart(model.TurnStart{TurnIndex: 0})
	rec.ToolCallStart(model.ToolCallStart{
		ToolCallID: "tc-1",
		ToolName:   "get_weather",
		Input:      `{"city":"Berlin"}`,
	})
	rec.ToolCallResult(model.ToolCallResult{ToolCallID: "tc-1", Content: "sunny, 22C"})

	// Result for a call whose start was never recorded: zero rows, no error,
	// recording stays healthy
	rec.ToolCallResult(model.ToolCallResult{ToolCallID: "tc-unknown", Content: "late"})
	if rec.Status() != StatusActive {
		t.Fatalf("Unmatched tool result must not disable recording, got %s", rec.Status())
	}

	rec.TurnEnd(assistantEnd(10, 5, 0.01, "it is sunny"))
	rec.ModelSelect(model.ModelSelect{
		Previous: model.ModelRef{Provider: "openai", Model: "gpt-4o"},
		Next:     model.ModelRef{Provider: "anthropic", Model: "claude"},
		Source:   model.ChangeSourceSet,
	})
	rec.SessionShutdown()

	s := openForVerify(t, dbPath)

	messages, err := s.GetMessages("s1")
	if err != nil {
		t.Fatalf("Failed to get messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected user + assistant messages, got %d", len(messages))
	}
	if messages[0].Role != "user" || messages[0].TurnID != 0 {
		t.Errorf("User message must not reference a turn: %+v", messages[0])
	}
	if messages[1].Role != "assistant" || messages[1].TurnID == 0 {
		t.Errorf("Assistant message must reference its turn: %+v", messages[1])
	}

	tc, err := s.GetToolCall("tc-1")
	if err != nil {
		t.Fatalf("Failed to get tool call: %v", err)
	}
	if tc == nil {
		t.Fatal("Tool call should exist")
	}
	if tc.TurnID == 0 {
		t.Error("Tool call inside a turn must reference it")
	}
	if tc.Result != "sunny, 22C" || tc.IsError {
		t.Errorf("Unexpected tool call state: %+v", tc)
	}

	if unknown, _ := s.GetToolCall("tc-unknown"); unknown != nil {
		t.Error("Unmatched tool result must not create a row")
	}

	changes, err := s.GetModelChanges("s1")
	if err != nil {
		t.Fatalf("Failed to get model changes: %v", err)
	}
	if len(changes) != 1 || changes[0].Source != model.ChangeSourceSet {
		t.Errorf("Unexpected model changes: %+v", changes)
	}
}

func TestRecorder_ToolCallOutsideTurn(t *testing.T) {
	rec, dbPath := newFileRecorder(t)

	rec.SessionStart(model.SessionStart{SessionID: "s1"})
	rec.ToolCallStart(model.ToolCallStart{ToolCallID: "tc-1", ToolName: "search"})
	rec.ToolCallResult(model.ToolCallResult{ToolCallID: "tc-1", Content: "found"})
	rec.SessionShutdown()

	s := openForVerify(t, dbPath)
	tc, err := s.GetToolCall("tc-1")
	if err != nil {
		t.Fatalf("Failed to get tool call: %v", err)
	}
	if tc == nil {
		t.Fatal("Tool call should exist")
	}
	if tc.TurnID != 0 {
		t.Errorf("Tool call outside any turn must keep a null turn reference, got %d", tc.TurnID)
	}
}

func TestRecorder_ResumedSessionKeepsTotals(t *testing.T) {
	rec, dbPath := newFileRecorder(t)

	rec.SessionStart(model.SessionStart{SessionID: "s1", WorkingDir: "/a"})
	rec.TurnStart(model.TurnStart{TurnIndex: 0})
	rec.TurnEnd(assistantEnd(10, 5, 0.01, "hi"))
	rec.SessionShutdown()

	// Same session id, new process lifecycle
	rec.SessionStart(model.SessionStart{SessionID: "s1", WorkingDir: "/b"})
	rec.TurnStart(model.TurnStart{TurnIndex: 1})
	rec.TurnEnd(assistantEnd(3, 2, 0.002, "again"))
	rec.SessionShutdown()

	s := openForVerify(t, dbPath)
	session, err := s.GetSession("s1")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if session.InputTokens != 13 || session.OutputTokens != 7 {
		t.Errorf("Resume must accumulate totals, got in=%d out=%d", session.InputTokens, session.OutputTokens)
	}
	if session.WorkingDir != "/b" {
		t.Errorf("Resume must refresh working dir, got '%s'", session.WorkingDir)
	}
}
