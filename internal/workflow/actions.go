// Package workflow implements the per-conversation filing workflow: the state
// machine that sequences extraction, candidate resolution, user confirmation
// and persistence, and the decoding of user action tokens.
package workflow

import (
	"strings"

	"github.com/auditlife/auditlife/internal/models"
)

// ActionKind identifies the user decision embedded in an action token.
type ActionKind string

const (
	// ActionConfirm accepts the suggested document; carries the document id.
	ActionConfirm ActionKind = "confirm"
	// ActionReject declines the suggested document.
	ActionReject ActionKind = "reject"
	// ActionSelect picks a document from the candidate list; carries the document id.
	ActionSelect ActionKind = "select"
	// ActionNew asks to create a new document.
	ActionNew ActionKind = "new"
)

// Action is the decoded form of an opaque action token.
type Action struct {
	Kind  ActionKind
	DocID string
}

// Token prefixes and literals. The prefixes are matched at the start of the
// token only: an embedded document id may legitimately contain another kind's
// prefix, so substring search would misroute.
const (
	tokenConfirmPrefix = "confirm:"
	tokenSelectPrefix  = "select:"
	tokenReject        = "reject"
	tokenNew           = "new"
)

// ConfirmToken builds the action token accepting the given document.
func ConfirmToken(docID string) string {
	return tokenConfirmPrefix + docID
}

// SelectToken builds the action token selecting the given document.
func SelectToken(docID string) string {
	return tokenSelectPrefix + docID
}

// RejectToken builds the action token declining the suggestion.
func RejectToken() string {
	return tokenReject
}

// NewDocumentToken builds the action token requesting a new document.
func NewDocumentToken() string {
	return tokenNew
}

// DecodeAction decodes an opaque action token into a tagged Action. Tokens
// that match no kind yield models.ErrUnknownAction.
func DecodeAction(token string) (Action, error) {
	switch {
	case strings.HasPrefix(token, tokenConfirmPrefix):
		return Action{Kind: ActionConfirm, DocID: token[len(tokenConfirmPrefix):]}, nil
	case strings.HasPrefix(token, tokenSelectPrefix):
		return Action{Kind: ActionSelect, DocID: token[len(tokenSelectPrefix):]}, nil
	case token == tokenReject:
		return Action{Kind: ActionReject}, nil
	case token == tokenNew:
		return Action{Kind: ActionNew}, nil
	default:
		return Action{}, models.ErrUnknownAction
	}
}
