package messaging

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/auditlife/auditlife/internal/models"
	"github.com/auditlife/auditlife/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client    whatsapp.WhatsAppSender
	waClient  *whatsapp.Client // full client, needed for event handling and media downloads
	choices   *choiceTracker
	receipts  chan models.Receipt
	responses chan models.Response
	done      chan struct{}
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client:    client,
		choices:   newChoiceTracker(),
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}

	// Only a full Client can register event handlers and download media.
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start begins background event handling.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")
	if s.waClient != nil {
		go s.handleEvents(ctx)
		slog.Debug("WhatsAppService event handler started")
	} else {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
	}
	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	close(s.done)
	close(s.receipts)
	close(s.responses)
	return nil
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", canonicalTo)
		return err
	}
	s.receipts <- models.Receipt{To: canonicalTo, Status: models.StatusSent, Time: time.Now().Unix()}
	return nil
}

// SendChoices sends a prompt with options rendered as a numbered list. The
// WhatsApp consumer API has no interactive buttons, so the user answers with
// the option number (or label) and the reply is resolved back to the token.
func (s *WhatsAppService) SendChoices(ctx context.Context, to string, body string, choices []models.Choice) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendChoices validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, renderChoices(body, choices)); err != nil {
		slog.Error("WhatsAppService SendChoices error", "error", err, "to", canonicalTo)
		return err
	}
	s.choices.set(canonicalTo, choices)
	s.receipts <- models.Receipt{To: canonicalTo, Status: models.StatusSent, Time: time.Now().Unix()}
	return nil
}

// Receipts returns a channel of receipt events.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns a channel of incoming user events.
func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.responses
}

// handleEvents registers the whatsmeow event handler and keeps it running
// until the context is cancelled.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(ctx, v)
		case *events.Receipt:
			s.handleMessageReceipt(v)
		default:
			// Ignore presence, connection state, and other event types.
		}
	})

	slog.Debug("WhatsAppService event handler registered")
	<-ctx.Done()
	slog.Debug("WhatsAppService handleEvents stopping due to context cancellation")
}

// handleIncomingMessage classifies an incoming message as a voice note, a
// slash command, a choice selection, or plain text, and forwards it.
func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe {
		return
	}

	digits := evt.Info.Sender.User
	from := digits
	if !strings.HasPrefix(from, "+") {
		from = "+" + from
	}

	if audio := evt.Message.GetAudioMessage(); audio != nil {
		data, err := s.waClient.DownloadAudio(ctx, audio)
		if err != nil {
			slog.Error("WhatsAppService failed to download voice note", "from", from, "error", err)
			return
		}
		s.emitResponse(models.Response{
			From:     from,
			Kind:     models.ResponseKindAudio,
			Audio:    data,
			MimeType: audio.GetMimetype(),
			Time:     evt.Info.Timestamp.Unix(),
		})
		return
	}

	var messageText string
	switch {
	case evt.Message.Conversation != nil:
		messageText = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		messageText = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService ignoring unsupported message type", "from", from)
		return
	}

	response := models.Response{
		From: from,
		Kind: models.ResponseKindText,
		Body: messageText,
		Time: evt.Info.Timestamp.Unix(),
	}
	if strings.HasPrefix(strings.TrimSpace(messageText), "/") {
		response.Kind = models.ResponseKindCommand
	} else if token, ok := s.choices.resolve(digits, messageText); ok {
		response.Kind = models.ResponseKindAction
		response.Body = token
	}

	s.emitResponse(response)
}

// handleMessageReceipt forwards delivery and read receipts.
func (s *WhatsAppService) handleMessageReceipt(evt *events.Receipt) {
	toNumber := evt.MessageSource.Sender.User
	if !strings.HasPrefix(toNumber, "+") {
		toNumber = "+" + toNumber
	}

	var status models.StatusType
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.StatusDelivered
	case events.ReceiptTypeRead:
		status = models.StatusRead
	default:
		return
	}

	receipt := models.Receipt{To: toNumber, Status: status, Time: evt.Timestamp.Unix()}
	select {
	case s.receipts <- receipt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService receipts channel blocked, dropping receipt", "to", receipt.To)
	}
}

func (s *WhatsAppService) emitResponse(response models.Response) {
	select {
	case s.responses <- response:
		slog.Debug("WhatsAppService incoming event forwarded", "from", response.From, "kind", response.Kind)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService responses channel blocked, dropping message", "from", response.From)
	}
}
