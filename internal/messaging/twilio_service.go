package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/auditlife/auditlife/internal/models"
	"github.com/auditlife/auditlife/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using the Twilio WhatsApp API.
// Inbound events arrive over an HTTP webhook instead of a live connection.
type TwilioService struct {
	client    twiliowhatsapp.Sender
	choices   *choiceTracker
	receipts  chan models.Receipt
	responses chan models.Response
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewTwilioService creates a new TwilioService wrapping the given sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:    client,
		choices:   newChoiceTracker(),
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start is a no-op; inbound traffic arrives through TwilioWebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	// Give in-flight webhook handlers a moment to finish before the
	// channels close underneath them.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.receipts)
		close(s.responses)
	}()
	return nil
}

// SendMessage sends a message via Twilio and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		return err
	}
	s.safeEmitReceipt(models.Receipt{To: canonicalTo, Status: models.StatusSent, Time: time.Now().Unix()})
	return nil
}

// SendChoices sends a prompt with options rendered as a numbered list. Twilio's
// Go SDK exposes no WhatsApp buttons, so selection works by numeric reply.
func (s *TwilioService) SendChoices(ctx context.Context, to string, body string, choices []models.Choice) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendChoices validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, renderChoices(body, choices)); err != nil {
		return err
	}
	s.choices.set(canonicalTo, choices)
	s.safeEmitReceipt(models.Receipt{To: canonicalTo, Status: models.StatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns the channel for sent message receipts.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns the channel for incoming user events.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// TwilioWebhookHandler handles inbound Twilio webhook requests, classifying
// each message as a command, a choice selection, or plain text.
//
// Inbound media (voice notes) is not fetched over the Twilio media URL yet;
// such messages are acknowledged and dropped with a warning.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" {
		slog.Warn("Twilio webhook missing From field")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	if r.FormValue("NumMedia") != "" && r.FormValue("NumMedia") != "0" {
		slog.Warn("Twilio webhook media message dropped (media download unsupported)", "from", from)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
		return
	}
	if body == "" {
		slog.Warn("Twilio webhook missing Body field", "from", from)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	response := models.Response{
		From: from,
		Kind: models.ResponseKindText,
		Body: body,
		Time: time.Now().Unix(),
	}
	if strings.HasPrefix(strings.TrimSpace(body), "/") {
		response.Kind = models.ResponseKindCommand
	} else if canonical, err := canonicalizePhone(from); err == nil {
		if token, ok := s.choices.resolve(canonical, body); ok {
			response.Kind = models.ResponseKindAction
			response.Body = token
		}
	}

	s.safeEmitResponse(response)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *TwilioService) safeEmitReceipt(receipt models.Receipt) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return
	}
	select {
	case s.receipts <- receipt:
	case <-time.After(DefaultChannelTimeout):
	}
}

func (s *TwilioService) safeEmitResponse(response models.Response) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TwilioService dropping inbound response (service stopped)", "from", response.From)
		return
	}
	select {
	case s.responses <- response:
		slog.Debug("TwilioService emitted inbound response", "from", response.From, "kind", response.Kind)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService responses channel blocked, dropping message", "from", response.From)
	}
}
