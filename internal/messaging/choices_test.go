package messaging

import (
	"strings"
	"testing"

	"github.com/auditlife/auditlife/internal/models"
)

func sampleChoices() []models.Choice {
	return []models.Choice{
		{Label: "Yes", Token: "confirm:page-1"},
		{Label: "No", Token: "reject"},
		{Label: "📄 Groceries", Token: "select:page-2"},
		{Label: "✨ Create New Page", Token: "new"},
	}
}

func TestRenderChoices(t *testing.T) {
	rendered := renderChoices("Pick one:", sampleChoices())
	if !strings.HasPrefix(rendered, "Pick one:") {
		t.Errorf("rendered prompt should start with the body, got %q", rendered)
	}
	for _, want := range []string{"1. Yes", "2. No", "3. 📄 Groceries", "4. ✨ Create New Page"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered prompt missing %q:\n%s", want, rendered)
		}
	}
	if !strings.Contains(rendered, "Reply with a number") {
		t.Errorf("rendered prompt missing reply instruction:\n%s", rendered)
	}
}

func TestChoiceTrackerResolveByNumber(t *testing.T) {
	tracker := newChoiceTracker()
	tracker.set("15551234567", sampleChoices())

	token, ok := tracker.resolve("15551234567", " 2 ")
	if !ok || token != "reject" {
		t.Errorf("resolve by number = (%q, %v), want (reject, true)", token, ok)
	}

	// The prompt is consumed on a successful match.
	if _, ok := tracker.resolve("15551234567", "1"); ok {
		t.Error("resolve after consumption should not match")
	}
}

func TestChoiceTrackerResolveByLabel(t *testing.T) {
	tracker := newChoiceTracker()
	tracker.set("15551234567", sampleChoices())

	token, ok := tracker.resolve("15551234567", "yes")
	if !ok || token != "confirm:page-1" {
		t.Errorf("resolve by label = (%q, %v), want (confirm:page-1, true)", token, ok)
	}

	// Emoji markers on labels are ignored for matching.
	tracker.set("15551234567", sampleChoices())
	token, ok = tracker.resolve("15551234567", "groceries")
	if !ok || token != "select:page-2" {
		t.Errorf("resolve ignoring emoji = (%q, %v), want (select:page-2, true)", token, ok)
	}
}

func TestChoiceTrackerNoMatch(t *testing.T) {
	tracker := newChoiceTracker()

	if _, ok := tracker.resolve("15551234567", "1"); ok {
		t.Error("resolve without a pending prompt should not match")
	}

	tracker.set("15551234567", sampleChoices())
	if _, ok := tracker.resolve("15551234567", "9"); ok {
		t.Error("out-of-range number should not match")
	}
	if _, ok := tracker.resolve("15551234567", "buy milk tomorrow"); ok {
		t.Error("unrelated text should not match")
	}
	// Failed matches keep the prompt pending.
	if token, ok := tracker.resolve("15551234567", "1"); !ok || token != "confirm:page-1" {
		t.Errorf("prompt should survive failed matches, got (%q, %v)", token, ok)
	}
}

func TestChoiceTrackerReplacedByNewPrompt(t *testing.T) {
	tracker := newChoiceTracker()
	tracker.set("15551234567", sampleChoices())
	tracker.set("15551234567", []models.Choice{{Label: "Only", Token: "select:other"}})

	token, ok := tracker.resolve("15551234567", "1")
	if !ok || token != "select:other" {
		t.Errorf("latest prompt should win, got (%q, %v)", token, ok)
	}
}
