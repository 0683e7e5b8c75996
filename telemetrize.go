// Package telemetrize records the lifecycle of an interactive agent session
// into an embedded SQLite store for later analytics: cost, latency, error
// rate, and usage reporting.
//
// The recorder is embeddable and fire-and-forget: the host emits lifecycle
// events, and nothing in this package ever raises back into the host's
// control flow. If the store cannot be opened, recording is disabled for the
// session and every call becomes a logged no-op.
package telemetrize

import (
	"github.com/ghiac/telemetrize/config"
	"github.com/ghiac/telemetrize/model"
	"github.com/ghiac/telemetrize/recorder"
	"github.com/ghiac/telemetrize/store"
)

// Status re-exports the recorder's two-state health indicator
type Status = recorder.Status

const (
	StatusActive   = recorder.StatusActive
	StatusDisabled = recorder.StatusDisabled
)

// Recorder is the main entry point for the library. One Recorder owns one
// session lifecycle at a time: the store handle is opened on SessionStart
// and released on SessionShutdown.
type Recorder struct {
	rec *recorder.Recorder
}

// Options allows configuring Recorder behavior
type Options struct {
	// Config overrides the environment/file-derived configuration
	Config *config.Config

	// OpenStore allows providing a custom store factory (used by tests);
	// when set, Config's store settings are ignored
	OpenStore recorder.OpenStoreFunc
}

// New creates a Recorder with configuration from the environment and the
// optional config file
func New() *Recorder {
	return NewWithOptions(nil)
}

// NewWithOptions creates a Recorder with custom options
func NewWithOptions(opts *Options) *Recorder {
	var cfg *config.Config
	if opts != nil && opts.Config != nil {
		cfg = opts.Config
	} else {
		cfg = config.Load()
	}

	var open recorder.OpenStoreFunc
	switch {
	case opts != nil && opts.OpenStore != nil:
		open = opts.OpenStore
	case !cfg.Disabled:
		dbPath := cfg.DBPath
		maxPayload := cfg.MaxPayloadBytes
		open = func() (recorder.Store, error) {
			return store.NewSQLiteStore(dbPath, maxPayload)
		}
	}

	return &Recorder{rec: recorder.New(open)}
}

// Status returns the current recording health indicator for the host to render
func (r *Recorder) Status() Status {
	return r.rec.Status()
}

// SessionID returns the id of the session currently being recorded, or ""
func (r *Recorder) SessionID() string {
	return r.rec.SessionID()
}

// Handle dispatches any lifecycle event payload to its handler
func (r *Recorder) Handle(payload model.Payload) {
	r.rec.Handle(payload)
}

// SessionStart records the beginning of a session
func (r *Recorder) SessionStart(e model.SessionStart) {
	r.rec.SessionStart(e)
}

// SessionShutdown records the end of the session and releases the store
func (r *Recorder) SessionShutdown() {
	r.rec.SessionShutdown()
}

// UserInput records raw user input
func (r *Recorder) UserInput(e model.UserInput) {
	r.rec.UserInput(e)
}

// TurnStart records the beginning of a model-response iteration
func (r *Recorder) TurnStart(e model.TurnStart) {
	r.rec.TurnStart(e)
}

// TurnEnd records the completion of the open turn
func (r *Recorder) TurnEnd(e model.TurnEnd) {
	r.rec.TurnEnd(e)
}

// ToolCallStart records a tool invocation
func (r *Recorder) ToolCallStart(e model.ToolCallStart) {
	r.rec.ToolCallStart(e)
}

// ToolCallResult records a tool invocation's terminal result
func (r *Recorder) ToolCallResult(e model.ToolCallResult) {
	r.rec.ToolCallResult(e)
}

// ModelSelect records a model change
func (r *Recorder) ModelSelect(e model.ModelSelect) {
	r.rec.ModelSelect(e)
}

// Version returns the current version of the library
func Version() string {
	return "0.1.0"
}
