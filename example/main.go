package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ghiac/telemetrize"
	"github.com/ghiac/telemetrize/config"
	"github.com/ghiac/telemetrize/model"
	"github.com/ghiac/telemetrize/store"
	"github.com/sashabaranov/go-openai"
)

func main() {
	// Example: embedding the recorder into an agent loop

	dir, err := os.MkdirTemp("", "telemetrize-example")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)
	dbPath := filepath.Join(dir, "telemetry.db")

	// 1. Create the recorder (normally just telemetrize.New())
	rec := telemetrize.NewWithOptions(&telemetrize.Options{
		Config: &config.Config{
			DBPath:          dbPath,
			MaxPayloadBytes: config.DefaultMaxPayloadBytes,
		},
	})

	// 2. The host announces the session
	cwd, _ := os.Getwd()
	gpt4o := model.ModelRef{Provider: "openai", Model: "gpt-4o"}
	rec.SessionStart(model.SessionStart{
		SessionID:  "example-session",
		WorkingDir: cwd,
		Model:      gpt4o,
	})
	fmt.Printf("Recording status: %s %s\n", rec.Status().Glyph(), rec.Status())

	// 3. One conversational turn with a tool-use follow-up iteration
	rec.UserInput(model.UserInput{Content: "What's the weather in Berlin?"})

	rec.TurnStart(model.TurnStart{TurnIndex: 0})
	rec.ToolCallStart(model.ToolCallStart{
		ToolCallID: "call_abc123",
		ToolName:   "get_weather",
		Input:      `{"city":"Berlin"}`,
	})
	rec.ToolCallResult(model.ToolCallResult{ToolCallID: "call_abc123", Content: "sunny, 22C"})
	rec.TurnEnd(model.TurnEnd{
		TurnIndex: 0,
		Message: openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{
				{ID: "call_abc123", Function: openai.FunctionCall{Name: "get_weather"}},
			},
		},
		Usage:      openai.Usage{PromptTokens: 42, CompletionTokens: 12, TotalTokens: 54},
		Cost:       0.0011,
		StopReason: "tool_calls",
		Model:      gpt4o,
	})

	// Same turn index again: the follow-up model call after the tool result
	rec.TurnStart(model.TurnStart{TurnIndex: 0})
	rec.TurnEnd(model.TurnEnd{
		TurnIndex: 0,
		Message: openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: "It's sunny and 22C in Berlin.",
		},
		Usage:      openai.Usage{PromptTokens: 60, CompletionTokens: 15, TotalTokens: 75},
		Cost:       0.0016,
		StopReason: "stop",
		Model:      gpt4o,
	})

	// 4. Shutdown flushes and releases the store
	rec.SessionShutdown()

	// 5. The read side is plain SQL; any external tool can do this while
	// the recorder is live
	readStore, err := store.NewSQLiteStore(dbPath, 0)
	if err != nil {
		log.Fatalf("Failed to reopen store: %v", err)
	}
	defer readStore.Close()

	session, err := readStore.GetSession("example-session")
	if err != nil {
		log.Fatalf("Failed to read session: %v", err)
	}
	fmt.Printf("\nSession %s\n", session.SessionID)
	fmt.Printf("  tokens: in=%d out=%d cost=$%.4f\n", session.InputTokens, session.OutputTokens, session.Cost)

	turns, err := readStore.GetTurns("example-session")
	if err != nil {
		log.Fatalf("Failed to read turns: %v", err)
	}
	for _, turn := range turns {
		fmt.Printf("  turn %d.%d: %d+%d tokens, %s\n",
			turn.TurnIndex, turn.Iteration, turn.InputTokens, turn.OutputTokens, turn.StopReason)
	}
}
