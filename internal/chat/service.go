package chat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/clever-foxes/meetfox/pkg/provider/llm"
	"github.com/clever-foxes/meetfox/pkg/types"
)

const (
	// maxContextChars bounds the transcript tail included in every prompt.
	maxContextChars = 3000

	historyFile = "private-chat-history.txt"

	defaultLLMTimeout = 30 * time.Second
)

// historyRule separates blocks in the persisted chat history.
var historyRule = strings.Repeat("=", 60)

// QuestionType selects one of the canned prompts, or Custom for a free-form
// question.
type QuestionType string

const (
	TypeSummary       QuestionType = "summary"
	TypeKeyPoints     QuestionType = "key_points"
	TypeActionItems   QuestionType = "action_items"
	TypeDecisions     QuestionType = "decisions"
	TypeOpenQuestions QuestionType = "open_questions"
	TypeNextSteps     QuestionType = "next_steps"
	TypeExplain       QuestionType = "explain"
	TypeCustom        QuestionType = "custom"
)

// cannedQuestions are the pre-defined prompts selectable by type.
var cannedQuestions = map[QuestionType]string{
	TypeSummary:       "Summarize what has been discussed so far in a few sentences.",
	TypeKeyPoints:     "What are the key points raised so far?",
	TypeActionItems:   "List the action items mentioned so far and who owns them, if stated.",
	TypeDecisions:     "What decisions have been made so far?",
	TypeOpenQuestions: "What questions were raised that have not been answered yet?",
	TypeNextSteps:     "Based on the discussion, what should the next steps be?",
	TypeExplain:       "Explain the topic currently being discussed in simple terms.",
}

const chatSystemPrompt = "You are a discreet meeting assistant. Answer the user's question using only " +
	"the meeting transcript provided. Be concise. If the transcript does not contain the answer, say so."

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithHistoryDir sets the resolver for the directory holding
// private-chat-history.txt. An empty result disables persistence.
func WithHistoryDir(dir func() string) Option {
	return func(s *Service) {
		s.historyDir = dir
	}
}

// WithTimeout caps each chat LLM call. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// Service is the private meeting chat. It keeps its own transcript window
// (fed by the arbiter), a bounded conversational memory, and serializes LLM
// calls so at most one question is in flight; concurrent callers queue.
type Service struct {
	provider   llm.Provider
	memory     *Memory
	logger     *slog.Logger
	now        func() time.Time
	historyDir func() string
	timeout    time.Duration

	// askMu serializes Ask calls.
	askMu sync.Mutex

	mu         sync.Mutex
	transcript []string
}

// NewService builds a chat Service on provider.
func NewService(provider llm.Provider, opts ...Option) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("chat: new service: provider is required")
	}
	s := &Service{
		provider: provider,
		memory:   NewMemory(),
		logger:   slog.Default(),
		now:      time.Now,
		timeout:  defaultLLMTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Observe appends one arbitrated utterance to the chat's transcript window.
func (s *Service) Observe(u types.Utterance) {
	line := fmt.Sprintf("[%s] [%s] %s", u.Timestamp.Format("15:04:05"), u.Source, u.Text)
	s.mu.Lock()
	s.transcript = append(s.transcript, line)
	s.mu.Unlock()
}

// Ask answers one question about the meeting. questionText is only used for
// [TypeCustom]; canned types ignore it. The answer is also recorded in
// memory and appended to the chat history file.
func (s *Service) Ask(ctx context.Context, qt QuestionType, questionText string) (string, error) {
	question, err := resolveQuestion(qt, questionText)
	if err != nil {
		return "", err
	}

	s.askMu.Lock()
	defer s.askMu.Unlock()

	messages := s.memory.Messages()
	messages = append(messages, llm.Message{Role: "user", Content: question})

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.provider.Complete(ctx, llm.Request{
		SystemPrompt: chatSystemPrompt + "\n\nMeeting transcript:\n" + s.transcriptTail(),
		Messages:     messages,
		Temperature:  0.4,
		MaxTokens:    600,
	})
	if err != nil {
		return "", fmt.Errorf("chat: ask %s: %w", qt, err)
	}
	answer := strings.TrimSpace(resp.Content)

	s.memory.AddExchange(question, answer)
	s.persist(qt, question, answer)
	return answer, nil
}

// ClearMemory drops the conversational memory, keeping the transcript
// window.
func (s *Service) ClearMemory() {
	s.memory.Clear()
}

// Reset drops both the transcript window and the memory. Called when a new
// session starts.
func (s *Service) Reset() {
	s.mu.Lock()
	s.transcript = nil
	s.mu.Unlock()
	s.memory.Clear()
}

// LoadHistory returns the persisted chat history for the current session, or
// "" when none exists.
func (s *Service) LoadHistory() (string, error) {
	path := s.historyPath()
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("chat: load history: %w", err)
	}
	return string(raw), nil
}

// ClearHistory removes the persisted chat history and the in-memory turns.
func (s *Service) ClearHistory() error {
	s.memory.Clear()
	path := s.historyPath()
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chat: clear history: %w", err)
	}
	return nil
}

func (s *Service) historyPath() string {
	if s.historyDir == nil {
		return ""
	}
	dir := s.historyDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, historyFile)
}

func (s *Service) persist(qt QuestionType, question, answer string) {
	path := s.historyPath()
	if path == "" {
		return
	}
	block := fmt.Sprintf("%s\n[%s] [%s]\nQ: %s\n\nA: %s\n\n",
		historyRule, s.now().Format("2006-01-02 15:04:05"), qt, question, answer)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Warn("cannot open chat history", "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(block); err != nil {
		s.logger.Warn("cannot append chat history", "error", err)
	}
}

// transcriptTail renders the newest transcript lines bounded to
// maxContextChars, oldest first.
func (s *Service) transcriptTail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.transcript) == 0 {
		return "(no transcript yet)"
	}
	start := len(s.transcript)
	total := 0
	for start > 0 {
		cost := len(s.transcript[start-1]) + 1
		if total+cost > maxContextChars && total > 0 {
			break
		}
		total += cost
		start--
	}
	return strings.Join(s.transcript[start:], "\n")
}

func resolveQuestion(qt QuestionType, questionText string) (string, error) {
	if qt == TypeCustom {
		questionText = strings.TrimSpace(questionText)
		if questionText == "" {
			return "", fmt.Errorf("chat: custom question requires text")
		}
		return questionText, nil
	}
	question, ok := cannedQuestions[qt]
	if !ok {
		return "", fmt.Errorf("chat: unknown question type %q", qt)
	}
	return question, nil
}
