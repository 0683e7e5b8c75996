package model

import (
	"time"

	"github.com/google/uuid"
)

// ChangeSource classifies how a model change was triggered
type ChangeSource string

const (
	// ChangeSourceSet means the user explicitly selected a model
	ChangeSourceSet ChangeSource = "explicit-set"
	// ChangeSourceCycle means the host cycled to the next configured model
	ChangeSourceCycle ChangeSource = "cycle"
	// ChangeSourceRestore means the model was restored from a saved session
	ChangeSourceRestore ChangeSource = "restore"
)

// ModelRef identifies a model by provider and model id
type ModelRef struct {
	Provider string
	Model    string
}

// String returns "provider/model", or just the model id when the provider
// is unset
func (m ModelRef) String() string {
	if m.Provider == "" {
		return m.Model
	}
	return m.Provider + "/" + m.Model
}

// ModelChange is an append-only record of a model switch inside a session
type ModelChange struct {
	// ChangeID is a generated surrogate identifier
	ChangeID string

	SessionID string
	CreatedAt time.Time
	Source    ChangeSource
	Previous  ModelRef
	Next      ModelRef
}

// NewModelChange creates a model change record for a session
func NewModelChange(sessionID string, previous, next ModelRef, source ChangeSource, at time.Time) *ModelChange {
	return &ModelChange{
		ChangeID:  uuid.NewString(),
		SessionID: sessionID,
		CreatedAt: at,
		Source:    source,
		Previous:  previous,
		Next:      next,
	}
}
