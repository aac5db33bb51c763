// Package models defines the core data structures for AuditLife.
//
// It includes the extraction results, candidate document references, the
// per-conversation workflow state, and transport event types shared across modules.
package models

import (
	"errors"
	"strings"
)

// Error variables for better error handling and testability
var (
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrUnknownAction  = errors.New("unknown action token")
)

// Fact represents a single extracted fact as a subject-predicate-object triple.
// Facts are immutable once produced by the extraction client.
type Fact struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Context   string `json:"context,omitempty"` // surrounding phrase, optional
}

// IsValid reports whether the fact carries all three required components.
func (f Fact) IsValid() bool {
	return f.Subject != "" && f.Predicate != "" && f.Object != ""
}

// ProcessingResult holds the outcome of processing one input event.
type ProcessingResult struct {
	OriginalText string `json:"original_text"`
	EnglishText  string `json:"english_text"`
	Facts        []Fact `json:"facts"`
	Summary      string `json:"summary"`
}

// DocumentRef identifies a candidate or created destination document.
// Equality is by ID.
type DocumentRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// PendingWorkflow carries the data a conversation needs while it awaits a user
// decision about where to file a summary. Exactly one exists per conversation,
// owned by the conversation store until consumed and cleared by the orchestrator.
type PendingWorkflow struct {
	Result     ProcessingResult `json:"result"`
	Suggested  *DocumentRef     `json:"suggested,omitempty"`
	Candidates []DocumentRef    `json:"candidates,omitempty"`
}

// FindCandidate returns the candidate with the given id, or nil if absent.
func (p *PendingWorkflow) FindCandidate(id string) *DocumentRef {
	for i := range p.Candidates {
		if p.Candidates[i].ID == id {
			return &p.Candidates[i]
		}
	}
	return nil
}

// StateType identifies the current step of a conversation's workflow.
type StateType string

const (
	// StateIdle means no workflow is pending. Absence from the store is equivalent.
	StateIdle StateType = "IDLE"
	// StateAwaitingConfirmation means a suggested document awaits a yes/no answer.
	StateAwaitingConfirmation StateType = "AWAITING_CONFIRMATION"
	// StateAwaitingSelection means the full candidate list was offered.
	StateAwaitingSelection StateType = "AWAITING_SELECTION"
	// StateAwaitingNewName means the user was asked for a new document title.
	StateAwaitingNewName StateType = "AWAITING_NEW_NAME"
)

// ConversationState is the tagged per-conversation state. Pending is nil only
// when State is StateIdle; transitions replace the whole value, never mutate
// fields in place.
type ConversationState struct {
	State   StateType        `json:"state"`
	Pending *PendingWorkflow `json:"pending,omitempty"`
}

// Idle returns the idle conversation state.
func Idle() ConversationState {
	return ConversationState{State: StateIdle}
}

// IsIdle reports whether the conversation has no pending workflow.
func (s ConversationState) IsIdle() bool {
	return s.State == "" || s.State == StateIdle
}

// ResponseKind classifies inbound transport events.
type ResponseKind string

const (
	// ResponseKindText is a plain text message.
	ResponseKindText ResponseKind = "text"
	// ResponseKindAudio is a voice note or audio attachment.
	ResponseKindAudio ResponseKind = "audio"
	// ResponseKindAction is an opaque action token from a choice prompt.
	ResponseKindAction ResponseKind = "action"
	// ResponseKindCommand is a slash command such as /reset.
	ResponseKindCommand ResponseKind = "command"
)

// Response represents an inbound event delivered by a messaging service.
type Response struct {
	From     string       `json:"from"`
	Kind     ResponseKind `json:"kind"`
	Body     string       `json:"body,omitempty"`
	Audio    []byte       `json:"-"`
	MimeType string       `json:"mime_type,omitempty"`
	Time     int64        `json:"time"`
}

// Choice is one selectable option of an outbound choice prompt. The token is
// opaque to the transport and round-trips back as an action Response body.
type Choice struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// Receipt records the delivery status of an outbound message.
type Receipt struct {
	To     string     `json:"to"`
	Status StatusType `json:"status"`
	Time   int64      `json:"time"`
}

// StatusType defines message delivery status values.
type StatusType string

const (
	// StatusSent means the message was handed to the transport.
	StatusSent StatusType = "sent"
	// StatusDelivered means the transport confirmed delivery.
	StatusDelivered StatusType = "delivered"
	// StatusRead means the recipient read the message.
	StatusRead StatusType = "read"
	// StatusFailed means the transport reported a send failure.
	StatusFailed StatusType = "failed"
)

// NormalizeCommand strips the leading slash and any bot suffix from a command
// body, returning the bare command name in lower case.
func NormalizeCommand(body string) string {
	cmd := strings.TrimSpace(body)
	cmd = strings.TrimPrefix(cmd, "/")
	if i := strings.IndexAny(cmd, " @"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}
