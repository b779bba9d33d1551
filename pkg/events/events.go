// Package events defines the notification stream emitted by the workflow:
// classified log lines, phase changes, and named domain events. Consumers
// (CLI output, the persisted event log) receive the same stream through the
// Notifier interface.
package events

import (
	"time"
)

// Severity classifies a log notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Kind names the notification type.
type Kind string

const (
	KindLog              Kind = "log"
	KindPhaseChange      Kind = "phase_change"
	KindArtifactCreated  Kind = "artifact_created"
	KindError            Kind = "error"
	KindPlanningComplete Kind = "planning_complete"
	KindModelingComplete Kind = "modeling_complete"
	KindWritingComplete  Kind = "writing_complete"
	KindWorkflowComplete Kind = "workflow_complete"
)

// Notification is one entry in the external event stream.
type Notification struct {
	Kind      Kind           `json:"kind"`
	Severity  Severity       `json:"severity,omitempty"`
	Message   string         `json:"message,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier receives notifications. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// NewLog builds a classified log notification.
func NewLog(severity Severity, message string) Notification {
	return Notification{
		Kind:      KindLog,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewPhaseChange builds a phase transition notification.
func NewPhaseChange(phase string) Notification {
	return Notification{
		Kind:      KindPhaseChange,
		Severity:  SeverityInfo,
		Phase:     phase,
		Message:   "entering phase " + phase,
		Timestamp: time.Now(),
	}
}

// NewArtifactCreated builds the named domain event for a stored artifact.
func NewArtifactCreated(artifactKind, name string, metadata map[string]any) Notification {
	payload := map[string]any{
		"artifact_kind": artifactKind,
		"name":          name,
	}
	for k, v := range metadata {
		payload[k] = v
	}
	return Notification{
		Kind:      KindArtifactCreated,
		Severity:  SeveritySuccess,
		Message:   "artifact created: " + name,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewError builds an error notification.
func NewError(message string) Notification {
	return Notification{
		Kind:      KindError,
		Severity:  SeverityError,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewEvent builds a named domain event with an arbitrary payload.
func NewEvent(kind Kind, payload map[string]any) Notification {
	return Notification{
		Kind:      kind,
		Severity:  SeveritySuccess,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Fanout returns a notifier that forwards each notification to all targets
// in order.
func Fanout(targets ...Notifier) Notifier {
	return NotifierFunc(func(n Notification) {
		for _, t := range targets {
			t.Notify(n)
		}
	})
}

// Discard drops all notifications.
var Discard Notifier = NotifierFunc(func(Notification) {}) //nolint:gochecknoglobals
