package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/auditlife/auditlife/internal/models"
	"github.com/auditlife/auditlife/internal/store"
)

// TranscriptPreviewLength limits how much of a transcription is echoed back.
const TranscriptPreviewLength = 1000

// Extractor turns input text into a structured processing result.
type Extractor interface {
	Process(ctx context.Context, text string) (*models.ProcessingResult, error)
}

// Transcriber converts voice note audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// DocumentResolver lists, creates and appends to destination documents and
// persists extracted facts.
type DocumentResolver interface {
	ListPages(ctx context.Context) ([]models.DocumentRef, error)
	CreatePage(ctx context.Context, title, initialBody string) (models.DocumentRef, error)
	AppendToPage(ctx context.Context, pageID, text string) error
	AddFacts(ctx context.Context, facts []models.Fact, sourceText string) bool
}

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	SendMessage(ctx context.Context, to, body string) error
	SendChoices(ctx context.Context, to, body string, choices []models.Choice) error
}

// Orchestrator drives the per-conversation filing workflow. Each conversation
// is in exactly one state at a time; every completed or aborted workflow cycles
// the conversation back to idle. The orchestrator assumes events of the same
// conversation are handled one at a time, while different conversations may be
// processed concurrently.
type Orchestrator struct {
	states      store.ConversationStore
	extractor   Extractor
	transcriber Transcriber
	resolver    DocumentResolver
	messenger   Messenger
}

// NewOrchestrator creates an orchestrator with its collaborators injected.
func NewOrchestrator(states store.ConversationStore, extractor Extractor, transcriber Transcriber, resolver DocumentResolver, messenger Messenger) *Orchestrator {
	slog.Debug("Creating workflow orchestrator")
	return &Orchestrator{
		states:      states,
		extractor:   extractor,
		transcriber: transcriber,
		resolver:    resolver,
		messenger:   messenger,
	}
}

// OnText handles an inbound text message. When the conversation awaits a new
// document title the text is consumed as that title; otherwise it starts a new
// workflow.
func (o *Orchestrator) OnText(ctx context.Context, conversationID, text string) {
	state := o.currentState(conversationID)
	slog.Debug("Orchestrator OnText", "conversationID", conversationID, "state", state.State)

	if state.State == models.StateAwaitingNewName {
		o.handleNewName(ctx, conversationID, state, text)
		return
	}
	o.processInput(ctx, conversationID, text)
}

// OnAudio handles an inbound voice note: transcribe, echo a preview, then
// process the transcript as fresh input.
func (o *Orchestrator) OnAudio(ctx context.Context, conversationID string, audio []byte, mimeType string) {
	slog.Debug("Orchestrator OnAudio", "conversationID", conversationID, "audio_bytes", len(audio))
	o.send(ctx, conversationID, msgTranscribing)

	text, err := o.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Error("Orchestrator OnAudio transcription failed", "error", err, "conversationID", conversationID)
		o.send(ctx, conversationID, msgTranscribeFailed)
		return
	}

	preview := text
	if len(preview) > TranscriptPreviewLength {
		preview = preview[:TranscriptPreviewLength] + "..."
	}
	o.send(ctx, conversationID, "Transcription:\n\n"+preview)

	o.OnAudioTranscript(ctx, conversationID, text)
}

// OnAudioTranscript handles text that originated as a voice note. Transcripts
// always start a new workflow; a voice note cannot name a new document.
func (o *Orchestrator) OnAudioTranscript(ctx context.Context, conversationID, text string) {
	slog.Debug("Orchestrator OnAudioTranscript", "conversationID", conversationID)
	o.processInput(ctx, conversationID, text)
}

// OnAction handles a decoded-or-raw action token from a choice prompt.
func (o *Orchestrator) OnAction(ctx context.Context, conversationID, token string) {
	action, err := DecodeAction(token)
	if err != nil {
		slog.Warn("Orchestrator OnAction unknown token", "conversationID", conversationID, "token", token)
		o.send(ctx, conversationID, msgUnknownAction)
		return
	}
	slog.Debug("Orchestrator OnAction", "conversationID", conversationID, "kind", action.Kind)

	switch action.Kind {
	case ActionConfirm:
		o.handleConfirm(ctx, conversationID, action.DocID)
	case ActionReject:
		o.handleReject(ctx, conversationID)
	case ActionSelect:
		o.handleSelect(ctx, conversationID, action.DocID)
	case ActionNew:
		o.handleNewRequested(ctx, conversationID)
	}
}

// OnStart greets the user and silently discards any pending workflow, so a
// fresh /start always lands on a clean conversation.
func (o *Orchestrator) OnStart(ctx context.Context, conversationID string) {
	o.clear(conversationID)
	slog.Info("Orchestrator conversation started", "conversationID", conversationID)
	o.send(ctx, conversationID, msgGreeting)
}

// OnReset unconditionally discards any pending workflow.
func (o *Orchestrator) OnReset(ctx context.Context, conversationID string) {
	o.clear(conversationID)
	slog.Info("Orchestrator state reset", "conversationID", conversationID)
	o.send(ctx, conversationID, msgStateReset)
}

// processInput runs extraction, persists facts, and starts the filing decision.
func (o *Orchestrator) processInput(ctx context.Context, conversationID, text string) {
	o.send(ctx, conversationID, msgProcessing)

	result, err := o.extractor.Process(ctx, text)
	if err != nil {
		slog.Error("Orchestrator extraction failed", "error", err, "conversationID", conversationID)
		o.send(ctx, conversationID, msgExtractionFailed)
		o.clear(conversationID)
		return
	}

	if len(result.Facts) > 0 {
		o.send(ctx, conversationID, fmt.Sprintf("📝 Found %d facts. Adding to Notion database...", len(result.Facts)))
		if o.resolver.AddFacts(ctx, result.Facts, result.OriginalText) {
			o.send(ctx, conversationID, msgFactsAdded)
		} else {
			o.send(ctx, conversationID, msgFactsPartial)
		}
	} else {
		o.send(ctx, conversationID, msgNoFacts)
	}

	if result.Summary == "" {
		o.send(ctx, conversationID, msgNoSummary)
		o.clear(conversationID)
		return
	}

	candidates, err := o.resolver.ListPages(ctx)
	if err != nil {
		// A failed listing is reported instead of silently routing the user
		// into page creation.
		slog.Error("Orchestrator candidate listing failed", "error", err, "conversationID", conversationID)
		o.send(ctx, conversationID, msgListingFailed)
		o.clear(conversationID)
		return
	}

	if len(candidates) == 0 {
		slog.Info("Orchestrator found no candidate pages, prompting for new page name", "conversationID", conversationID)
		o.setState(conversationID, models.ConversationState{
			State:   models.StateAwaitingNewName,
			Pending: &models.PendingWorkflow{Result: *result},
		})
		o.send(ctx, conversationID, msgRequestPageName)
		return
	}

	suggested := pickSuggested(candidates)
	slog.Info("Orchestrator suggesting page", "conversationID", conversationID, "pageID", suggested.ID, "title", suggested.Title)
	o.setState(conversationID, models.ConversationState{
		State: models.StateAwaitingConfirmation,
		Pending: &models.PendingWorkflow{
			Result:     *result,
			Suggested:  suggested,
			Candidates: candidates,
		},
	})

	body := fmt.Sprintf("Here's the summary:\n\n---\n%s\n---\n\nShould I add this to the Notion page '%s'?", result.Summary, suggested.Title)
	o.sendChoices(ctx, conversationID, body, []models.Choice{
		{Label: fmt.Sprintf("✅ Yes, add to '%s'", suggested.Title), Token: ConfirmToken(suggested.ID)},
		{Label: "❌ No, choose another page", Token: RejectToken()},
	})
}

// handleConfirm appends the summary to the suggested document when the
// embedded id matches it. A mismatched id means the user answered a stale
// prompt; the workflow aborts rather than retrying.
func (o *Orchestrator) handleConfirm(ctx context.Context, conversationID, docID string) {
	state := o.currentState(conversationID)
	if state.State != models.StateAwaitingConfirmation || state.Pending == nil {
		o.expire(ctx, conversationID, state.State)
		return
	}
	pending := state.Pending
	if pending.Suggested == nil {
		slog.Error("Orchestrator confirmation with no suggested page in pending state", "conversationID", conversationID)
		o.send(ctx, conversationID, msgInternalStateGone)
		o.clear(conversationID)
		return
	}
	if pending.Suggested.ID != docID {
		slog.Warn("Orchestrator confirmation id mismatch", "conversationID", conversationID, "expected", pending.Suggested.ID, "got", docID)
		o.send(ctx, conversationID, msgConfirmMismatch)
		o.clear(conversationID)
		return
	}

	o.send(ctx, conversationID, fmt.Sprintf("✅ Got it! Adding summary to Notion page '%s'...", pending.Suggested.Title))
	err := o.resolver.AppendToPage(ctx, pending.Suggested.ID, "\n"+pending.Result.Summary)
	if err != nil {
		slog.Error("Orchestrator append after confirmation failed", "error", err, "conversationID", conversationID, "pageID", pending.Suggested.ID)
		o.send(ctx, conversationID, fmt.Sprintf("⚠️ Failed to add summary to Notion page '%s'.", pending.Suggested.Title))
	} else {
		o.send(ctx, conversationID, fmt.Sprintf("✅ Summary successfully added to Notion page '%s'.", pending.Suggested.Title))
	}
	o.clear(conversationID)
}

// handleReject keeps the pending workflow and offers the full candidate list.
func (o *Orchestrator) handleReject(ctx context.Context, conversationID string) {
	state := o.currentState(conversationID)
	if state.State != models.StateAwaitingConfirmation || state.Pending == nil {
		o.expire(ctx, conversationID, state.State)
		return
	}

	o.setState(conversationID, models.ConversationState{
		State:   models.StateAwaitingSelection,
		Pending: state.Pending,
	})

	choices := make([]models.Choice, 0, len(state.Pending.Candidates)+1)
	for _, candidate := range state.Pending.Candidates {
		choices = append(choices, models.Choice{Label: "📄 " + candidate.Title, Token: SelectToken(candidate.ID)})
	}
	choices = append(choices, models.Choice{Label: "✨ Create New Page", Token: NewDocumentToken()})
	o.sendChoices(ctx, conversationID, msgSelectionPrompt, choices)
}

// handleSelect appends the summary to the chosen candidate. An id absent from
// the stored candidates aborts the workflow; no reselection is offered.
func (o *Orchestrator) handleSelect(ctx context.Context, conversationID, docID string) {
	state := o.currentState(conversationID)
	if state.State != models.StateAwaitingSelection || state.Pending == nil {
		o.expire(ctx, conversationID, state.State)
		return
	}

	selected := state.Pending.FindCandidate(docID)
	if selected == nil {
		slog.Error("Orchestrator selected page not among candidates", "conversationID", conversationID, "pageID", docID)
		o.send(ctx, conversationID, msgPageNotFound)
		o.clear(conversationID)
		return
	}

	o.send(ctx, conversationID, fmt.Sprintf("✅ OK. Adding summary to Notion page '%s'...", selected.Title))
	err := o.resolver.AppendToPage(ctx, selected.ID, "\n\n"+entrySeparator+"\n"+state.Pending.Result.Summary)
	if err != nil {
		slog.Error("Orchestrator append after selection failed", "error", err, "conversationID", conversationID, "pageID", selected.ID)
		o.send(ctx, conversationID, fmt.Sprintf("⚠️ Failed to add summary to Notion page '%s'.", selected.Title))
	} else {
		o.send(ctx, conversationID, fmt.Sprintf("✅ Summary successfully added to Notion page '%s'.", selected.Title))
	}
	o.clear(conversationID)
}

// handleNewRequested transitions to awaiting a title for a new document. It is
// valid from the confirmation and selection steps, and is a no-op transition
// when the conversation is already awaiting a name.
func (o *Orchestrator) handleNewRequested(ctx context.Context, conversationID string) {
	state := o.currentState(conversationID)
	switch state.State {
	case models.StateAwaitingConfirmation, models.StateAwaitingSelection, models.StateAwaitingNewName:
		if state.Pending == nil {
			o.expire(ctx, conversationID, state.State)
			return
		}
	default:
		o.expire(ctx, conversationID, state.State)
		return
	}

	o.setState(conversationID, models.ConversationState{
		State:   models.StateAwaitingNewName,
		Pending: state.Pending,
	})
	o.send(ctx, conversationID, msgRequestPageName)
}

// handleNewName consumes the title for the new document. An empty title
// re-prompts and keeps the state; this is the machine's only self-loop. Any
// other outcome, success or failure, returns the conversation to idle.
func (o *Orchestrator) handleNewName(ctx context.Context, conversationID string, state models.ConversationState, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		o.send(ctx, conversationID, msgEmptyPageName)
		return
	}

	if state.Pending == nil {
		slog.Error("Orchestrator new page name with no pending workflow", "conversationID", conversationID)
		o.send(ctx, conversationID, msgInternalStateGone)
		o.clear(conversationID)
		return
	}

	o.send(ctx, conversationID, fmt.Sprintf("✨ Creating Notion page '%s'...", title))
	ref, err := o.resolver.CreatePage(ctx, title, entrySeparator+"\n"+state.Pending.Result.Summary)
	if err != nil {
		slog.Error("Orchestrator page creation failed", "error", err, "conversationID", conversationID, "title", title)
		o.send(ctx, conversationID, fmt.Sprintf("⚠️ Failed to create Notion page '%s'.", title))
	} else {
		o.send(ctx, conversationID, fmt.Sprintf("✅ Successfully created Notion page '%s' and added the summary.", ref.Title))
	}
	o.clear(conversationID)
}

// pickSuggested returns the candidate whose title sorts first case-insensitively.
// The scan is independent of upstream ordering so suggestions stay reproducible.
func pickSuggested(candidates []models.DocumentRef) *models.DocumentRef {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if strings.ToLower(candidates[i].Title) < strings.ToLower(candidates[best].Title) {
			best = i
		}
	}
	suggested := candidates[best]
	return &suggested
}

// expire reports an out-of-order action and forces the conversation to idle.
func (o *Orchestrator) expire(ctx context.Context, conversationID string, got models.StateType) {
	slog.Warn("Orchestrator action arrived in unexpected state", "conversationID", conversationID, "state", got)
	o.send(ctx, conversationID, msgOutOfOrder)
	o.clear(conversationID)
}

// currentState reads the conversation state, treating store errors as idle so
// a broken read can never leave a conversation wedged.
func (o *Orchestrator) currentState(conversationID string) models.ConversationState {
	state, err := o.states.GetState(conversationID)
	if err != nil {
		slog.Error("Orchestrator state read failed", "error", err, "conversationID", conversationID)
		return models.Idle()
	}
	return state
}

func (o *Orchestrator) setState(conversationID string, state models.ConversationState) {
	if err := o.states.SetState(conversationID, state); err != nil {
		slog.Error("Orchestrator state write failed", "error", err, "conversationID", conversationID, "state", state.State)
	}
}

func (o *Orchestrator) clear(conversationID string) {
	if err := o.states.ClearState(conversationID); err != nil {
		slog.Error("Orchestrator state clear failed", "error", err, "conversationID", conversationID)
	}
}

// send delivers a plain message, logging delivery failures without disturbing
// the state machine.
func (o *Orchestrator) send(ctx context.Context, to, body string) {
	if err := o.messenger.SendMessage(ctx, to, body); err != nil {
		slog.Warn("Orchestrator failed to send message", "error", err, "to", to)
	}
}

// sendChoices delivers a choice prompt, logging delivery failures.
func (o *Orchestrator) sendChoices(ctx context.Context, to, body string, choices []models.Choice) {
	if err := o.messenger.SendChoices(ctx, to, body, choices); err != nil {
		slog.Warn("Orchestrator failed to send choice prompt", "error", err, "to", to)
	}
}
