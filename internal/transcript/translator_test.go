package transcript

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clever-foxes/meetfox/pkg/provider/llm"
	llmmock "github.com/clever-foxes/meetfox/pkg/provider/llm/mock"
	"github.com/clever-foxes/meetfox/pkg/types"
)

type translationResult struct {
	original    types.Utterance
	translation string
}

func targetRussian() string { return "Russian" }

func TestNewTranslator_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewTranslator(nil, targetRussian, nil); err == nil {
		t.Error("expected error for nil provider")
	}
	if _, err := NewTranslator(&llmmock.Provider{}, nil, nil); err == nil {
		t.Error("expected error for nil target func")
	}
}

func TestTranslator_TranslatesInOrder(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Queue: []llmmock.Scripted{
		{Content: "Привет"},
		{Content: "Пока"},
	}}
	results := make(chan translationResult, 4)
	tr, err := NewTranslator(provider, targetRussian, func(u types.Utterance, translation string) {
		results <- translationResult{original: u, translation: translation}
	})
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	tr.Start()
	defer tr.Stop()

	if !tr.Enqueue(utter("Hello", types.SourceMic)) {
		t.Fatal("Enqueue rejected with an empty queue")
	}
	if !tr.Enqueue(utter("Bye", types.SourceMic)) {
		t.Fatal("Enqueue rejected with room left")
	}

	first := recvResult(t, results)
	if first.original.Text != "Hello" || first.translation != "Привет" {
		t.Errorf("first = %q → %q", first.original.Text, first.translation)
	}
	second := recvResult(t, results)
	if second.original.Text != "Bye" || second.translation != "Пока" {
		t.Errorf("second = %q → %q", second.original.Text, second.translation)
	}
}

func TestTranslator_PromptNamesTargetLanguage(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Response: "Hallo"}
	done := make(chan struct{}, 1)
	tr, err := NewTranslator(provider, func() string { return "German" }, func(types.Utterance, string) {
		done <- struct{}{}
	})
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	tr.Start()
	defer tr.Stop()

	tr.Enqueue(utter("Hello", types.SourceMic))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("translation not delivered")
	}

	req := provider.LastCall()
	if !strings.Contains(req.SystemPrompt, "Translate the following text to German") {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if !strings.Contains(req.SystemPrompt, "ONLY the translation") {
		t.Errorf("system prompt missing only-the-translation clause: %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "Hello" {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestTranslator_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	// Worker never started, so the queue only drains by capacity.
	tr, err := NewTranslator(&llmmock.Provider{}, targetRussian, nil)
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	for i := 0; i < translationQueueCap; i++ {
		if !tr.Enqueue(utter("filler", types.SourceMic)) {
			t.Fatalf("Enqueue %d rejected below capacity", i)
		}
	}
	if tr.Enqueue(utter("overflow", types.SourceMic)) {
		t.Error("Enqueue must reject when the queue is full")
	}
	if tr.Backlog() != translationQueueCap {
		t.Errorf("Backlog() = %d, want %d", tr.Backlog(), translationQueueCap)
	}
}

func TestTranslator_FailureRaisesTypedWarning(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Err: context.DeadlineExceeded}
	warnings := make(chan error, 2)
	tr, err := NewTranslator(provider, targetRussian,
		func(types.Utterance, string) { t.Error("onTranslated must not fire on failure") },
		WithWarningHandler(func(err error) { warnings <- err }),
	)
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	tr.Start()
	defer tr.Stop()

	tr.Enqueue(utter("Hello", types.SourceMic))

	select {
	case werr := <-warnings:
		if !errors.Is(werr, llm.ErrTimeout) {
			t.Errorf("warning %v is not a timeout", werr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warning handler not invoked")
	}
}

func TestTranslator_WorkerSurvivesFailures(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Queue: []llmmock.Scripted{
		{Err: errors.New("boom")},
		{Content: "Привет"},
	}}
	results := make(chan translationResult, 2)
	tr, err := NewTranslator(provider, targetRussian, func(u types.Utterance, translation string) {
		results <- translationResult{original: u, translation: translation}
	})
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	tr.Start()
	defer tr.Stop()

	tr.Enqueue(utter("first", types.SourceMic))
	tr.Enqueue(utter("second", types.SourceMic))

	got := recvResult(t, results)
	if got.original.Text != "second" {
		t.Errorf("survivor = %q, want second", got.original.Text)
	}
}

func TestTranslator_EmptyTranslationSkipped(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Response: "   "}
	tr, err := NewTranslator(provider, targetRussian,
		func(types.Utterance, string) { t.Error("empty translation must not be delivered") },
	)
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	tr.Start()

	tr.Enqueue(utter("Hello", types.SourceMic))
	deadline := time.Now().Add(2 * time.Second)
	for provider.CallCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("translation request never sent")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Stop waits for the in-flight job, so a wrong delivery would have
	// fired by now.
	tr.Stop()
}

func TestTranslator_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	tr, err := NewTranslator(&llmmock.Provider{}, targetRussian, nil)
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	tr.Start()
	tr.Stop()
	tr.Stop()
}

func recvResult(t *testing.T, ch <-chan translationResult) translationResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no translation received within deadline")
		return translationResult{}
	}
}
