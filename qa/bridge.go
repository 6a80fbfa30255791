package qa

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Command is sent to a running game instance.
type Command string

const (
	CommandInit Command = "init"
	CommandQuit Command = "quit"
)

// EventType is reported by a running game instance.
type EventType string

const (
	EventReady    EventType = "ready"
	EventResult   EventType = "result"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one message observed from a game instance.
type Event struct {
	Type       EventType       `json:"type"`
	AttemptID  string          `json:"attemptId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// Handle identifies one launched game instance.
type Handle string

var (
	ErrNoRuntime     = errors.New("no game runtime available")
	ErrUnknownHandle = errors.New("unknown runtime handle")
	ErrEventTimeout  = errors.New("timed out waiting for runtime event")
)

// Bridge drives a game instance running in an external harness.
type Bridge interface {
	Launch(ctx context.Context, entryURL string) (Handle, error)
	SendCommand(ctx context.Context, h Handle, cmd Command) error
	// AwaitEvent returns the next event of the given type, or ErrEventTimeout.
	// Events of other types stay queued for later calls. A timeout <= 0 only
	// inspects the queue.
	AwaitEvent(ctx context.Context, h Handle, eventType EventType, timeout time.Duration) (Event, error)
	// Errors returns every error event the instance reported so far.
	Errors(h Handle) []Event
	Close(h Handle) error
}
