package models

import "testing"

func TestFactIsValid(t *testing.T) {
	valid := Fact{Subject: "Anna", Predicate: "works at", Object: "hospital"}
	if !valid.IsValid() {
		t.Error("fact with subject, predicate and object should be valid")
	}
	for _, f := range []Fact{
		{Predicate: "works at", Object: "hospital"},
		{Subject: "Anna", Object: "hospital"},
		{Subject: "Anna", Predicate: "works at"},
	} {
		if f.IsValid() {
			t.Errorf("fact missing a component should be invalid: %+v", f)
		}
	}
	withContext := Fact{Subject: "Anna", Predicate: "works at", Object: "hospital", Context: "met at the gym"}
	if !withContext.IsValid() {
		t.Error("context is optional and must not affect validity")
	}
}

func TestFindCandidate(t *testing.T) {
	pending := PendingWorkflow{
		Candidates: []DocumentRef{
			{ID: "1", Title: "Groceries"},
			{ID: "2", Title: "Health"},
		},
	}
	if got := pending.FindCandidate("2"); got == nil || got.Title != "Health" {
		t.Errorf("FindCandidate(2) = %+v", got)
	}
	if got := pending.FindCandidate("9"); got != nil {
		t.Errorf("FindCandidate(9) = %+v, want nil", got)
	}
}

func TestConversationStateIsIdle(t *testing.T) {
	if !Idle().IsIdle() {
		t.Error("Idle() should be idle")
	}
	if !(ConversationState{}).IsIdle() {
		t.Error("zero value should be idle")
	}
	busy := ConversationState{State: StateAwaitingConfirmation, Pending: &PendingWorkflow{}}
	if busy.IsIdle() {
		t.Error("awaiting confirmation should not be idle")
	}
}

func TestNormalizeCommand(t *testing.T) {
	cases := map[string]string{
		"/start":              "start",
		"/reset":              "reset",
		"  /Reset  ":          "reset",
		"/start@auditlifebot": "start",
		"/reset now":          "reset",
		"reset":               "reset",
	}
	for input, want := range cases {
		if got := NormalizeCommand(input); got != want {
			t.Errorf("NormalizeCommand(%q) = %q, want %q", input, got, want)
		}
	}
}
