// Package extraction turns free-form user input into structured facts and a
// summary using the OpenAI API, and transcribes voice notes via Whisper.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/auditlife/auditlife/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Fixed strings used on the degraded (malformed payload) path.
const (
	// FailedEnglishText marks results whose structured payload could not be parsed.
	FailedEnglishText = "Translation/Fact extraction failed."
	// PlaceholderSummary is used when no summary could be recovered from a malformed payload.
	PlaceholderSummary = "Summary extraction failed."
)

// ErrNoChoicesReturned indicates the chat backend returned an empty choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

const systemPrompt = `You are an AI assistant helping a user audit their life. Your tasks are to:
1. Analyze the user's input text.
2. Ensure the core meaning is represented in English. If the input is already English, keep it. If it is another language, translate its meaning accurately to English.
3. Extract key facts from the English text. Structure each fact as a JSON object with keys "subject", "predicate" and "object", optionally with a "context" string holding the surrounding phrase.
4. Generate a very concise, clear summary of the English text.

Respond with a single JSON object containing three keys:
- "english_text": the English version of the input text.
- "facts": a JSON array of extracted fact objects. If no facts are found, return an empty array [].
- "summary": a string containing the concise summary.`

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// transcriptionService defines the minimal interface for audio transcription.
type transcriptionService interface {
	Create(ctx context.Context, params openai.AudioTranscriptionNewParams) (*openai.Transcription, error)
}

// openaiChat adapts the OpenAI chat completion service to chatService.
type openaiChat struct {
	client openai.Client
}

func (c openaiChat) Create(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

// openaiTranscription adapts the OpenAI transcription service to transcriptionService.
type openaiTranscription struct {
	client openai.Client
}

func (c openaiTranscription) Create(ctx context.Context, params openai.AudioTranscriptionNewParams) (*openai.Transcription, error) {
	return c.client.Audio.Transcriptions.New(ctx, params)
}

// Opts holds configuration options for the extraction client.
type Opts struct {
	APIKey          string
	ChatModel       openai.ChatModel
	TranscribeModel openai.AudioModel
}

// Option defines a configuration option for the extraction client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithChatModel overrides the chat model used for extraction.
func WithChatModel(model string) Option {
	return func(o *Opts) {
		o.ChatModel = openai.ChatModel(model)
	}
}

// WithTranscribeModel overrides the Whisper model used for transcription.
func WithTranscribeModel(model string) Option {
	return func(o *Opts) {
		o.TranscribeModel = openai.AudioModel(model)
	}
}

// Client performs extraction and transcription against the OpenAI API.
type Client struct {
	chat            chatService
	transcribe      transcriptionService
	chatModel       openai.ChatModel
	transcribeModel openai.AudioModel
}

// NewClient initializes an extraction client. The API key is taken from the
// OPENAI_API_KEY environment variable unless overridden via WithAPIKey.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		APIKey:          os.Getenv("OPENAI_API_KEY"),
		ChatModel:       openai.ChatModelGPT4o,
		TranscribeModel: openai.AudioModelWhisper1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("Extraction client created", "chatModel", cfg.ChatModel, "transcribeModel", cfg.TranscribeModel)
	return &Client{
		chat:            openaiChat{client: cli},
		transcribe:      openaiTranscription{client: cli},
		chatModel:       cfg.ChatModel,
		transcribeModel: cfg.TranscribeModel,
	}, nil
}

// Process runs one extraction request over the input text. A transport or API
// failure is returned as an error. A response that cannot be parsed as the
// expected structure is not an error: the result degrades to empty facts and a
// best-effort summary recovered from the raw payload.
func (c *Client) Process(ctx context.Context, text string) (*models.ProcessingResult, error) {
	slog.Debug("Extraction Process invoked", "input_length", len(text))

	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage("Process the following text:\n\n" + text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		slog.Error("Extraction Process chat completion failed", "error", err)
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("Extraction Process returned no choices")
		return nil, ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		slog.Error("Extraction Process returned empty content")
		return nil, fmt.Errorf("extraction returned empty content")
	}

	result := parsePayload(text, content)
	slog.Info("Extraction Process succeeded", "facts", len(result.Facts), "summary_set", result.Summary != "")
	return result, nil
}

// Transcribe converts a voice note into text using Whisper.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	slog.Debug("Extraction Transcribe invoked", "audio_bytes", len(audio), "mimeType", mimeType)
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio data provided")
	}
	if mimeType == "" {
		mimeType = "audio/ogg"
	}
	resp, err := c.transcribe.Create(ctx, openai.AudioTranscriptionNewParams{
		Model: c.transcribeModel,
		File:  openai.File(bytes.NewReader(audio), fileNameForMime(mimeType), mimeType),
	})
	if err != nil {
		slog.Error("Extraction Transcribe failed", "error", err)
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	slog.Info("Extraction Transcribe succeeded", "text_length", len(resp.Text))
	return resp.Text, nil
}

// extractionPayload is the strict shape expected from the chat backend. Facts
// are kept raw so a malformed fact array degrades on its own without taking
// the english text and summary down with it.
type extractionPayload struct {
	EnglishText string          `json:"english_text"`
	Facts       json.RawMessage `json:"facts"`
	Summary     string          `json:"summary"`
}

// parsePayload interprets the raw chat response. It never fails: unparsable
// payloads degrade to a result with empty facts and a recovered or placeholder
// summary.
func parsePayload(originalText, content string) *models.ProcessingResult {
	var payload extractionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		slog.Warn("Extraction payload is not valid JSON, degrading", "error", err)
		return &models.ProcessingResult{
			OriginalText: originalText,
			EnglishText:  FailedEnglishText,
			Facts:        []models.Fact{},
			Summary:      recoverSummary(content),
		}
	}

	englishText := payload.EnglishText
	if englishText == "" {
		englishText = originalText
	}

	facts := []models.Fact{}
	if len(payload.Facts) > 0 {
		var rawFacts []models.Fact
		if err := json.Unmarshal(payload.Facts, &rawFacts); err != nil {
			slog.Warn("Extraction payload facts are not a valid array, dropping", "error", err)
		} else {
			for _, fact := range rawFacts {
				if !fact.IsValid() {
					slog.Warn("Skipping fact missing subject, predicate or object",
						"subject", fact.Subject, "predicate", fact.Predicate, "object", fact.Object)
					continue
				}
				facts = append(facts, fact)
			}
		}
	}

	return &models.ProcessingResult{
		OriginalText: originalText,
		EnglishText:  englishText,
		Facts:        facts,
		Summary:      payload.Summary,
	}
}

// recoverSummary scans a malformed payload for a summary value, falling back
// to a fixed placeholder when none is found.
func recoverSummary(content string) string {
	const marker = `"summary": "`
	idx := strings.LastIndex(content, marker)
	if idx < 0 {
		return PlaceholderSummary
	}
	rest := content[idx+len(marker):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return PlaceholderSummary
	}
	if rest[:end] == "" {
		return PlaceholderSummary
	}
	return rest[:end]
}

// fileNameForMime picks an upload filename matching the audio MIME type.
func fileNameForMime(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return "audio.mp3"
	case strings.Contains(mimeType, "wav"):
		return "audio.wav"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return "audio.m4a"
	default:
		return "audio.ogg"
	}
}
