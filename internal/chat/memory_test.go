package chat

import (
	"fmt"
	"testing"
	"time"
)

func TestMemory_MessagesAlternateRoles(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	m.AddExchange("What was decided?", "Shipping on Friday.")
	m.AddExchange("Who owns it?", "Speaker 2.")

	msgs := m.Messages()
	if len(msgs) != 4 {
		t.Fatalf("len(msgs) = %d, want 4", len(msgs))
	}
	wantRoles := []string{"user", "assistant", "user", "assistant"}
	for i, msg := range msgs {
		if msg.Role != wantRoles[i] {
			t.Errorf("msgs[%d].Role = %q, want %q", i, msg.Role, wantRoles[i])
		}
	}
	if msgs[0].Content != "What was decided?" || msgs[3].Content != "Speaker 2." {
		t.Errorf("content order wrong: %+v", msgs)
	}
}

func TestMemory_TurnLimit(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	for i := 0; i < 15; i++ {
		m.AddExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}
	if m.Len() != defaultMaxTurns {
		t.Fatalf("Len() = %d, want %d", m.Len(), defaultMaxTurns)
	}
	msgs := m.Messages()
	if msgs[0].Content != "q5" {
		t.Errorf("oldest retained turn = %q, want q5", msgs[0].Content)
	}
}

func TestMemory_AgePruning(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	m.AddExchange("old question", "old answer")
	now = now.Add(25 * time.Hour)
	m.AddExchange("fresh question", "fresh answer")

	msgs := m.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2 (old turn pruned)", len(msgs))
	}
	if msgs[0].Content != "fresh question" {
		t.Errorf("retained turn = %q", msgs[0].Content)
	}
}

func TestMemory_Clear(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	m.AddExchange("q", "a")
	m.Clear()
	if m.Len() != 0 || len(m.Messages()) != 0 {
		t.Error("memory not empty after Clear")
	}
}
