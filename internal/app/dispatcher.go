// Package app wires the AuditLife modules together: it builds the conversation
// store, extraction client, Notion resolver, and messaging transport, then
// routes inbound events to the workflow orchestrator.
package app

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/auditlife/auditlife/internal/models"
)

const msgUnknownCommand = "Unknown command. Available commands: /start, /reset."

var digitsOnly = regexp.MustCompile(`[^0-9]+`)

// conversationHandler is the slice of the workflow orchestrator the dispatcher needs.
type conversationHandler interface {
	OnText(ctx context.Context, conversationID, text string)
	OnAudio(ctx context.Context, conversationID string, audio []byte, mimeType string)
	OnAction(ctx context.Context, conversationID, token string)
	OnStart(ctx context.Context, conversationID string)
	OnReset(ctx context.Context, conversationID string)
}

type sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Dispatcher routes inbound transport events to the orchestrator, enforcing
// the sender allow-list at the boundary so unauthorized input never reaches
// the workflow or the AI backends.
type Dispatcher struct {
	handler conversationHandler
	sender  sender
	allowed map[string]struct{}
}

// NewDispatcher creates a Dispatcher. Allow-list entries are canonicalized to
// bare digits so formatting differences ("+1 555..." vs "1555...") don't matter.
func NewDispatcher(handler conversationHandler, sender sender, allowFrom []string) *Dispatcher {
	allowed := make(map[string]struct{})
	for _, from := range allowFrom {
		if canonical := digitsOnly.ReplaceAllString(from, ""); canonical != "" {
			allowed[canonical] = struct{}{}
		}
	}
	return &Dispatcher{handler: handler, sender: sender, allowed: allowed}
}

// Allowed reports whether the sender passes the allow-list. An empty
// allow-list admits everyone.
func (d *Dispatcher) Allowed(from string) bool {
	if len(d.allowed) == 0 {
		return true
	}
	_, ok := d.allowed[digitsOnly.ReplaceAllString(from, "")]
	return ok
}

// HandleResponse routes one inbound event. Messages from senders outside the
// allow-list are dropped without a reply.
func (d *Dispatcher) HandleResponse(ctx context.Context, resp models.Response) {
	if !d.Allowed(resp.From) {
		slog.Warn("Dispatcher dropping message from unauthorized sender", "from", resp.From)
		return
	}

	switch resp.Kind {
	case models.ResponseKindCommand:
		d.handleCommand(ctx, resp)
	case models.ResponseKindAudio:
		d.handler.OnAudio(ctx, resp.From, resp.Audio, resp.MimeType)
	case models.ResponseKindAction:
		d.handler.OnAction(ctx, resp.From, resp.Body)
	default:
		d.handler.OnText(ctx, resp.From, resp.Body)
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, resp models.Response) {
	command := models.NormalizeCommand(resp.Body)
	slog.Debug("Dispatcher handling command", "from", resp.From, "command", command)

	switch command {
	case "start":
		d.handler.OnStart(ctx, resp.From)
	case "reset":
		d.handler.OnReset(ctx, resp.From)
	default:
		if err := d.sender.SendMessage(ctx, resp.From, msgUnknownCommand); err != nil {
			slog.Error("Dispatcher failed to send command reply", "error", err, "to", resp.From)
		}
	}
}
