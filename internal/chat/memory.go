// Package chat answers on-demand questions about the ongoing meeting,
// grounding the LLM in a sliding transcript window plus a bounded
// conversational memory.
package chat

import (
	"sync"
	"time"

	"github.com/clever-foxes/meetfox/pkg/provider/llm"
)

const (
	defaultMaxTurns = 10
	defaultMaxAge   = 24 * time.Hour
)

type exchange struct {
	question string
	answer   string
	at       time.Time
}

// Memory is the rolling question/answer history carried between chat calls.
// It is pruned on every read: exchanges older than the maximum age and
// exchanges beyond the turn limit are dropped, oldest first.
type Memory struct {
	maxTurns int
	maxAge   time.Duration
	now      func() time.Time

	mu        sync.Mutex
	exchanges []exchange
}

// NewMemory returns a Memory with the default limits (10 turns, 24h).
func NewMemory() *Memory {
	return &Memory{
		maxTurns: defaultMaxTurns,
		maxAge:   defaultMaxAge,
		now:      time.Now,
	}
}

// AddExchange appends one question/answer turn.
func (m *Memory) AddExchange(question, answer string) {
	m.mu.Lock()
	m.exchanges = append(m.exchanges, exchange{question: question, answer: answer, at: m.now()})
	m.pruneLocked()
	m.mu.Unlock()
}

// Messages returns the pruned history as alternating user/assistant
// messages, oldest first. System messages are never part of memory.
func (m *Memory) Messages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	msgs := make([]llm.Message, 0, 2*len(m.exchanges))
	for _, e := range m.exchanges {
		msgs = append(msgs,
			llm.Message{Role: "user", Content: e.question},
			llm.Message{Role: "assistant", Content: e.answer},
		)
	}
	return msgs
}

// Len returns the number of retained turns.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	return len(m.exchanges)
}

// Clear drops the entire history.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.exchanges = nil
	m.mu.Unlock()
}

func (m *Memory) pruneLocked() {
	cutoff := m.now().Add(-m.maxAge)
	kept := m.exchanges[:0]
	for _, e := range m.exchanges {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	m.exchanges = kept
	if len(m.exchanges) > m.maxTurns {
		m.exchanges = append(m.exchanges[:0], m.exchanges[len(m.exchanges)-m.maxTurns:]...)
	}
}
