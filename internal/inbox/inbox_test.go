package inbox

import (
	"testing"
)

func TestDrainEmptyInboxReturnsNoMessages(t *testing.T) {
	s := NewStore(t.TempDir())
	messages, err := s.Drain("ctx1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("expected no messages, got %d", len(messages))
	}
}

func TestPushThenDrainReturnsInOrder(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Push("ctx1", "first"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := s.Push("ctx1", "second"); err != nil {
		t.Fatalf("push: %v", err)
	}

	messages, err := s.Drain("ctx1")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "first" || messages[1].Content != "second" {
		t.Fatalf("unexpected messages: %+v", messages)
	}
}

func TestDrainTruncatesInboxSoItIsEmptyAfterward(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Push("ctx1", "only"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := s.Drain("ctx1"); err != nil {
		t.Fatalf("drain: %v", err)
	}

	empty, err := s.IsEmpty("ctx1")
	if err != nil {
		t.Fatalf("is empty: %v", err)
	}
	if !empty {
		t.Error("expected inbox to be empty after drain")
	}

	messages, err := s.Drain("ctx1")
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("expected second drain to return nothing, got %d", len(messages))
	}
}

func TestIsEmptyForUntouchedContext(t *testing.T) {
	s := NewStore(t.TempDir())
	empty, err := s.IsEmpty("never-pushed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !empty {
		t.Error("expected an untouched context's inbox to be empty")
	}
}

func TestSeparateContextsDoNotShareAnInbox(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Push("ctx-a", "for a"); err != nil {
		t.Fatalf("push: %v", err)
	}

	messages, err := s.Drain("ctx-b")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(messages) != 0 {
		t.Error("expected ctx-b's inbox to be independent of ctx-a's")
	}
}
