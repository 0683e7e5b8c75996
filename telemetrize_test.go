package telemetrize

import (
	"path/filepath"
	"testing"

	"github.com/ghiac/telemetrize/config"
	"github.com/ghiac/telemetrize/model"
	"github.com/ghiac/telemetrize/recorder"
	"github.com/ghiac/telemetrize/store"
	"github.com/sashabaranov/go-openai"
)

func TestRecorder_Lifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "telemetry.db")
	rec := NewWithOptions(&Options{
		OpenStore: func() (recorder.Store, error) {
			return store.NewSQLiteStore(dbPath, 0)
		},
	})

	if rec.Status() != StatusDisabled {
		t.Fatalf("Expected disabled status before session start, got %s", rec.Status())
	}

	rec.SessionStart(model.SessionStart{
		SessionID:  "s1",
		WorkingDir: "/home/alice",
		Model:      model.ModelRef{Provider: "openai", Model: "gpt-4o"},
	})
	if rec.Status() != StatusActive {
		t.Fatalf("Expected active status, got %s", rec.Status())
	}
	if rec.SessionID() != "s1" {
		t.Errorf("Expected session id s1, got %s", rec.SessionID())
	}

	rec.UserInput(model.UserInput{Content: "hello"})
	rec.TurnStart(model.TurnStart{TurnIndex: 0})
	rec.TurnEnd(model.TurnEnd{
		Message: openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: "hi!",
		},
		Usage: openai.Usage{PromptTokens: 4, CompletionTokens: 2},
		Cost:  0.001,
		Model: model.ModelRef{Provider: "openai", Model: "gpt-4o"},
	})
	rec.SessionShutdown()

	if rec.Status() != StatusDisabled {
		t.Errorf("Expected disabled status after shutdown, got %s", rec.Status())
	}

	s, err := store.NewSQLiteStore(dbPath, 0)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	session, err := s.GetSession("s1")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if session == nil {
		t.Fatal("Session should exist")
	}
	if session.InputTokens != 4 || session.OutputTokens != 2 {
		t.Errorf("Unexpected totals: in=%d out=%d", session.InputTokens, session.OutputTokens)
	}
}

func TestRecorder_DisabledByConfig(t *testing.T) {
	rec := NewWithOptions(&Options{
		Config: &config.Config{Disabled: true, MaxPayloadBytes: config.DefaultMaxPayloadBytes},
	})

	rec.SessionStart(model.SessionStart{SessionID: "s1"})
	if rec.Status() != StatusDisabled {
		t.Errorf("Expected disabled status, got %s", rec.Status())
	}
	rec.SessionShutdown()
}

func TestVersion(t *testing.T) {
	if Version() == "" {
		t.Error("Version should not be empty")
	}
}
