package model

import "github.com/sashabaranov/go-openai"

// Payload is the closed set of lifecycle event payloads the host can emit.
// The marker method seals the union; unknown event shapes never reach the
// recorder as Payload values.
type Payload interface {
	payload()
}

// SessionStart announces a new (or resumed) session
type SessionStart struct {
	// SessionID is the opaque session identifier
	SessionID string

	// SessionFile points at the host's transcript file, if any
	SessionFile string

	// WorkingDir is the directory the session was started from
	WorkingDir string

	// Model is the model active at session start
	Model ModelRef
}

// SessionShutdown announces the end of the current session
type SessionShutdown struct{}

// UserInput carries raw user input text
type UserInput struct {
	Content string
}

// TurnStart announces the beginning of a model-response iteration for the
// given conversational turn index
type TurnStart struct {
	TurnIndex int
}

// TurnEnd announces the completion of the currently open turn.
// Message and Usage come straight from the provider response; when the
// message is not of assistant role, tokens and cost are recorded as zero.
type TurnEnd struct {
	TurnIndex  int
	Message    openai.ChatCompletionMessage
	Usage      openai.Usage
	Cost       float64
	StopReason string

	// Model is the model that produced this iteration
	Model ModelRef
}

// ToolCallStart announces a tool invocation
type ToolCallStart struct {
	// ToolCallID is globally unique across sessions
	ToolCallID string
	ToolName   string

	// Input is the serialized tool input
	Input string
}

// ToolCallResult carries the terminal outcome of a tool invocation
type ToolCallResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// ModelSelect announces a model switch
type ModelSelect struct {
	Previous ModelRef
	Next     ModelRef
	Source   ChangeSource
}

func (SessionStart) payload()    {}
func (SessionShutdown) payload() {}
func (UserInput) payload()       {}
func (TurnStart) payload()       {}
func (TurnEnd) payload()         {}
func (ToolCallStart) payload()   {}
func (ToolCallResult) payload()  {}
func (ModelSelect) payload()     {}
