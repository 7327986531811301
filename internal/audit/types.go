// Package audit implements the structured audit event log: category
// filtering, sensitive-value sanitization, and a rotating-file sink.
package audit

import "time"

// EventType names a discrete audited occurrence, e.g. "TOOL_INVOCATION_START"
// or "BATCH_JOB_FAILED". Values are defined by callers, not enumerated here —
// new event types never require a change to this package.
type EventType string

// Category groups event types for the enabled-categories filter.
type Category string

const (
	CategoryTool     Category = "TOOL"
	CategoryJob      Category = "JOB"
	CategoryResource Category = "RESOURCE"
	CategoryPrompt   Category = "PROMPT"
	CategorySecurity Category = "SECURITY"
)

// Event is one immutable audit record. It is emitted synchronously and never
// mutated after construction.
type Event struct {
	EventType     EventType         `json:"eventType"`
	Category      Category          `json:"category"`
	Description   string            `json:"description"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlationId"`
	ToolName      string            `json:"toolName,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Success       bool              `json:"success"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
}
