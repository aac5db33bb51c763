// Package messaging provides pluggable transports for AuditLife. A Service
// delivers outbound messages and choice prompts and surfaces inbound events
// (text, voice notes, commands, and choice selections) as a channel of
// models.Response values.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/auditlife/auditlife/internal/models"
)

// Constants shared by the messaging service implementations.
const (
	// DefaultChannelBufferSize defines the buffer size for receipt and response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the timeout for non-blocking channel operations.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when a send is attempted after Stop.
var ErrServiceStopped = errors.New("messaging service is stopped")

var phoneNumberRegex = regexp.MustCompile(`[^0-9]+`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Each service implements its own validation rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a plain text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendChoices sends a prompt together with selectable options. Transports
	// without native buttons render the options as a numbered list and map the
	// user's numeric or label reply back to the option's token, which then
	// arrives on Responses() as a models.ResponseKindAction event.
	SendChoices(ctx context.Context, to string, body string, choices []models.Choice) error

	// Start begins any background processing (e.g. transport event handling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of incoming user events.
	Responses() <-chan models.Response
}

// canonicalizePhone strips non-numeric characters from a phone-style recipient
// and validates the result. Both WhatsApp transports address by bare digits.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if recipient != canonical {
		slog.Debug("messaging canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
