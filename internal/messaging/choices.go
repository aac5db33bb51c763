package messaging

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/auditlife/auditlife/internal/models"
)

// renderChoices formats a prompt body plus its options as a numbered list.
// Used by transports that have no native button support.
func renderChoices(body string, choices []models.Choice) string {
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	for i, c := range choices {
		fmt.Fprintf(&b, "\n%d. %s", i+1, c.Label)
	}
	b.WriteString("\n\nReply with a number to choose.")
	return b.String()
}

// choiceTracker remembers the latest choice prompt sent to each chat so that
// a later numeric or label reply can be resolved back to the option's token.
// Sending a new prompt to a chat replaces the previous one.
type choiceTracker struct {
	mu      sync.Mutex
	pending map[string][]models.Choice
}

func newChoiceTracker() *choiceTracker {
	return &choiceTracker{pending: make(map[string][]models.Choice)}
}

func (t *choiceTracker) set(chat string, choices []models.Choice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[chat] = choices
}

func (t *choiceTracker) clear(chat string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, chat)
}

// resolve matches a reply against the chat's pending choices, by 1-based
// number or by label. On a match the pending prompt is consumed and the
// matched option's token is returned.
func (t *choiceTracker) resolve(chat, reply string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	choices, ok := t.pending[chat]
	if !ok {
		return "", false
	}
	reply = strings.TrimSpace(reply)
	if n, err := strconv.Atoi(strings.TrimSuffix(reply, ".")); err == nil {
		if n >= 1 && n <= len(choices) {
			delete(t.pending, chat)
			return choices[n-1].Token, true
		}
		return "", false
	}
	normalized := normalizeLabel(reply)
	for _, c := range choices {
		if normalized == normalizeLabel(c.Label) {
			delete(t.pending, chat)
			return c.Token, true
		}
	}
	return "", false
}

// normalizeLabel lowercases a choice label and drops a leading emoji marker,
// so "📄 Groceries" matches a plain "groceries" reply.
func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ' '); i > 0 && !containsAlnum(s[:i]) {
		s = strings.TrimSpace(s[i+1:])
	}
	return s
}

func containsAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
