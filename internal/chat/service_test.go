package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	llmmock "github.com/clever-foxes/meetfox/pkg/provider/llm/mock"
	"github.com/clever-foxes/meetfox/pkg/types"
)

var chatTime = time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)

func observed(text string) types.Utterance {
	return types.Utterance{Text: text, Source: types.SourceMic, Speaker: "Speaker 1", Timestamp: chatTime}
}

func newTestService(t *testing.T, provider *llmmock.Provider, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return chatTime })}, opts...)
	s, err := NewService(provider, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s
}

func TestNewService_RequiresProvider(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestService_AskCannedQuestion(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Response: "You agreed to ship on Friday."}
	s := newTestService(t, provider)
	s.Observe(observed("Let's ship on Friday."))

	answer, err := s.Ask(context.Background(), TypeDecisions, "")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != "You agreed to ship on Friday." {
		t.Errorf("answer = %q", answer)
	}

	req := provider.LastCall()
	if !strings.Contains(req.SystemPrompt, "[16:00:00] [MIC] Let's ship on Friday.") {
		t.Errorf("system prompt missing transcript line: %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != cannedQuestions[TypeDecisions] {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestService_AskCustomQuestion(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Response: "Yes."}
	s := newTestService(t, provider)

	if _, err := s.Ask(context.Background(), TypeCustom, "  "); err == nil {
		t.Error("blank custom question must fail")
	}
	if _, err := s.Ask(context.Background(), QuestionType("bogus"), ""); err == nil {
		t.Error("unknown question type must fail")
	}

	if _, err := s.Ask(context.Background(), TypeCustom, "Did we discuss budget?"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got := provider.LastCall().Messages[0].Content; got != "Did we discuss budget?" {
		t.Errorf("question = %q", got)
	}
}

func TestService_MemoryCarriesBetweenCalls(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Response: "Answer."}
	s := newTestService(t, provider)

	if _, err := s.Ask(context.Background(), TypeSummary, ""); err != nil {
		t.Fatalf("first Ask: %v", err)
	}
	if _, err := s.Ask(context.Background(), TypeCustom, "Anything else?"); err != nil {
		t.Fatalf("second Ask: %v", err)
	}

	req := provider.LastCall()
	// Prior exchange (2 messages) plus the new question.
	if len(req.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(req.Messages))
	}
	if req.Messages[1].Role != "assistant" || req.Messages[1].Content != "Answer." {
		t.Errorf("memory turn = %+v", req.Messages[1])
	}
}

func TestService_TranscriptTailBounded(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Response: "ok"}
	s := newTestService(t, provider)
	for i := 0; i < 200; i++ {
		s.Observe(observed(fmt.Sprintf("Filler sentence number %03d with some padding words.", i)))
	}

	if _, err := s.Ask(context.Background(), TypeSummary, ""); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	prompt := provider.LastCall().SystemPrompt
	tail := prompt[strings.Index(prompt, "Meeting transcript:\n")+len("Meeting transcript:\n"):]
	if len(tail) > maxContextChars {
		t.Errorf("tail length = %d, want <= %d", len(tail), maxContextChars)
	}
	if !strings.Contains(tail, "number 199") {
		t.Error("tail must keep the newest lines")
	}
	if strings.Contains(tail, "number 000") {
		t.Error("tail must drop the oldest lines")
	}
}

func TestService_PersistsHistoryBlocks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	provider := &llmmock.Provider{Response: "On Friday."}
	s := newTestService(t, provider, WithHistoryDir(func() string { return dir }))

	if _, err := s.Ask(context.Background(), TypeDecisions, ""); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, historyFile))
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	text := string(raw)
	if !strings.HasPrefix(text, strings.Repeat("=", 60)+"\n") {
		t.Errorf("block missing 60-char rule: %q", text)
	}
	for _, want := range []string{
		"[2026-08-24 16:00:00] [decisions]",
		"Q: " + cannedQuestions[TypeDecisions],
		"A: On Friday.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("history missing %q in %q", want, text)
		}
	}

	loaded, err := s.LoadHistory()
	if err != nil || loaded != text {
		t.Errorf("LoadHistory = %q, %v", loaded, err)
	}
	if err := s.ClearHistory(); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	if loaded, _ := s.LoadHistory(); loaded != "" {
		t.Error("history not empty after ClearHistory")
	}
}

func TestService_NoPersistenceWithoutSessionDir(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Response: "ok"}
	s := newTestService(t, provider, WithHistoryDir(func() string { return "" }))

	if _, err := s.Ask(context.Background(), TypeSummary, ""); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if loaded, err := s.LoadHistory(); err != nil || loaded != "" {
		t.Errorf("LoadHistory = %q, %v", loaded, err)
	}
}

func TestService_ResetDropsTranscriptAndMemory(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Response: "ok"}
	s := newTestService(t, provider)
	s.Observe(observed("Something."))
	if _, err := s.Ask(context.Background(), TypeSummary, ""); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	s.Reset()
	if _, err := s.Ask(context.Background(), TypeSummary, ""); err != nil {
		t.Fatalf("Ask after reset: %v", err)
	}
	req := provider.LastCall()
	if len(req.Messages) != 1 {
		t.Errorf("memory survived Reset: %+v", req.Messages)
	}
	if !strings.Contains(req.SystemPrompt, "(no transcript yet)") {
		t.Error("transcript window survived Reset")
	}
}

func TestService_FailureDoesNotPollute(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Err: context.DeadlineExceeded}
	s := newTestService(t, provider)

	if _, err := s.Ask(context.Background(), TypeSummary, ""); err == nil {
		t.Fatal("expected error")
	}
	if s.memory.Len() != 0 {
		t.Error("failed ask must not be recorded in memory")
	}
}
