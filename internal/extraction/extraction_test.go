package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	content string
	err     error
	choices *int // override number of choices when set
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if m.err != nil {
		return nil, m.err
	}
	n := 1
	if m.choices != nil {
		n = *m.choices
	}
	resp := &openai.ChatCompletion{}
	for i := 0; i < n; i++ {
		resp.Choices = append(resp.Choices, openai.ChatCompletionChoice{
			Message: openai.ChatCompletionMessage{Content: m.content},
		})
	}
	return resp, nil
}

// mockTranscriptionService implements transcriptionService for testing.
type mockTranscriptionService struct {
	text string
	err  error
}

func (m *mockTranscriptionService) Create(ctx context.Context, params openai.AudioTranscriptionNewParams) (*openai.Transcription, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &openai.Transcription{Text: m.text}, nil
}

func newTestClient(chat chatService) *Client {
	return &Client{chat: chat, chatModel: "test-model", transcribeModel: "test-whisper"}
}

func TestProcess_WellFormedPayload(t *testing.T) {
	payload := `{
		"english_text": "I had lunch with Alice",
		"facts": [
			{"subject": "I", "predicate": "had lunch with", "object": "Alice", "context": "I had lunch with Alice"},
			{"subject": "Alice", "predicate": "is", "object": "a friend"}
		],
		"summary": "Lunch with Alice."
	}`
	client := newTestClient(&mockChatService{content: payload})
	result, err := client.Process(context.Background(), "I had lunch with Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EnglishText != "I had lunch with Alice" {
		t.Errorf("unexpected english text: %q", result.EnglishText)
	}
	if len(result.Facts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(result.Facts))
	}
	if result.Facts[0].Context != "I had lunch with Alice" {
		t.Errorf("fact context not preserved: %+v", result.Facts[0])
	}
	if result.Summary != "Lunch with Alice." {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
}

func TestProcess_InvalidFactsDroppedValidKept(t *testing.T) {
	payload := `{
		"english_text": "text",
		"facts": [
			{"subject": "I", "predicate": "", "object": "Alice"},
			{"subject": "I", "predicate": "met", "object": "Bob"},
			{"predicate": "met", "object": "Carol"}
		],
		"summary": "S"
	}`
	client := newTestClient(&mockChatService{content: payload})
	result, err := client.Process(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Facts) != 1 {
		t.Fatalf("expected 1 valid fact, got %d: %+v", len(result.Facts), result.Facts)
	}
	if result.Facts[0].Object != "Bob" {
		t.Errorf("wrong fact kept: %+v", result.Facts[0])
	}
}

func TestProcess_MalformedPayloadDegrades(t *testing.T) {
	content := `here is your result: "summary": "Recovered summary" but not valid JSON`
	client := newTestClient(&mockChatService{content: content})
	result, err := client.Process(context.Background(), "input")
	if err != nil {
		t.Fatalf("degradation path must not return an error, got %v", err)
	}
	if result.EnglishText != FailedEnglishText {
		t.Errorf("expected failure marker english text, got %q", result.EnglishText)
	}
	if len(result.Facts) != 0 {
		t.Errorf("expected no facts, got %d", len(result.Facts))
	}
	if result.Summary != "Recovered summary" {
		t.Errorf("expected recovered summary, got %q", result.Summary)
	}
}

func TestProcess_MalformedPayloadPlaceholderSummary(t *testing.T) {
	client := newTestClient(&mockChatService{content: "no structure at all"})
	result, err := client.Process(context.Background(), "input")
	if err != nil {
		t.Fatalf("degradation path must not return an error, got %v", err)
	}
	if result.Summary != PlaceholderSummary {
		t.Errorf("expected placeholder summary, got %q", result.Summary)
	}
	if result.Summary == "" {
		t.Error("degraded summary must never be empty")
	}
}

func TestProcess_FactsNotAListDegradesFactsOnly(t *testing.T) {
	payload := `{"english_text": "text", "facts": {"subject": "I"}, "summary": "S"}`
	client := newTestClient(&mockChatService{content: payload})
	result, err := client.Process(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Facts) != 0 {
		t.Errorf("expected no facts, got %d", len(result.Facts))
	}
	if result.Summary != "S" {
		t.Errorf("summary should survive a bad facts field, got %q", result.Summary)
	}
}

func TestProcess_MissingEnglishTextFallsBackToOriginal(t *testing.T) {
	payload := `{"facts": [], "summary": "S"}`
	client := newTestClient(&mockChatService{content: payload})
	result, err := client.Process(context.Background(), "original input")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EnglishText != "original input" {
		t.Errorf("expected fallback to original text, got %q", result.EnglishText)
	}
}

func TestProcess_TransportFailure(t *testing.T) {
	client := newTestClient(&mockChatService{err: errors.New("service failure")})
	_, err := client.Process(context.Background(), "text")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected transport failure error, got %v", err)
	}
}

func TestProcess_NoChoices(t *testing.T) {
	zero := 0
	client := newTestClient(&mockChatService{choices: &zero})
	_, err := client.Process(context.Background(), "text")
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestTranscribe_Success(t *testing.T) {
	client := newTestClient(nil)
	client.transcribe = &mockTranscriptionService{text: "hello world"}
	text, err := client.Transcribe(context.Background(), []byte{1, 2, 3}, "audio/ogg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello world" {
		t.Errorf("expected transcription text, got %q", text)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	client := newTestClient(nil)
	client.transcribe = &mockTranscriptionService{text: "unused"}
	if _, err := client.Transcribe(context.Background(), nil, "audio/ogg"); err == nil {
		t.Error("expected error for empty audio")
	}
}

func TestTranscribe_Failure(t *testing.T) {
	client := newTestClient(nil)
	client.transcribe = &mockTranscriptionService{err: errors.New("whisper down")}
	if _, err := client.Transcribe(context.Background(), []byte{1}, "audio/ogg"); err == nil {
		t.Error("expected error from transcription failure")
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Error("expected client instance, got nil")
	}
}
