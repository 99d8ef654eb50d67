package entity

import "time"

// EventLevel tags a run log line for the presentation layer.
type EventLevel int

const (
	EventInfo EventLevel = iota
	EventSuccess
	EventWarning
	EventError
)

func (l EventLevel) String() string {
	switch l {
	case EventInfo:
		return "info"
	case EventSuccess:
		return "success"
	case EventWarning:
		return "warning"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// LogEvent is one human-readable line emitted by the controller.
// Events are emitted in row order; no structured schema beyond the level
// is guaranteed.
type LogEvent struct {
	Time    time.Time  `json:"time"`
	Level   EventLevel `json:"-"`
	Message string     `json:"message"`
}
