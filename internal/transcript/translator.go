package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/clever-foxes/meetfox/pkg/provider/llm"
	"github.com/clever-foxes/meetfox/pkg/types"
)

const (
	// translationQueueCap bounds the translation backlog. The queue drops new
	// jobs on overflow rather than stalling the arbiter.
	translationQueueCap = 5

	// dequeueTimeout is how long the worker blocks on an empty queue before
	// rechecking for shutdown.
	dequeueTimeout = time.Second

	// defaultRequestTimeout caps a single translation completion.
	defaultRequestTimeout = 15 * time.Second
)

const translatePromptFormat = "You are a professional translator. Translate the following text to %s. " +
	"Provide ONLY the translation without any explanations, comments, or additional text."

// TranslatorOption configures a Translator.
type TranslatorOption func(*Translator)

// WithTranslatorLogger sets the logger.
func WithTranslatorLogger(logger *slog.Logger) TranslatorOption {
	return func(t *Translator) {
		t.logger = logger
	}
}

// WithRequestTimeout caps each translation LLM call. Defaults to 15s.
func WithRequestTimeout(d time.Duration) TranslatorOption {
	return func(t *Translator) {
		t.timeout = d
	}
}

// WithWarningHandler registers a callback invoked on every failed
// translation. The error is wrapped with [llm.ErrConnection] or
// [llm.ErrTimeout] when the failure class is known, so handlers can match
// with errors.Is. Failures never stop the worker.
func WithWarningHandler(fn func(error)) TranslatorOption {
	return func(t *Translator) {
		t.onWarning = fn
	}
}

// Translator is the single-worker translation stage. Utterances enter
// through Enqueue (non-blocking, drop-on-full) and the worker translates them
// one at a time, preserving input order, delivering results to the
// onTranslated callback.
type Translator struct {
	provider     llm.Provider
	target       func() string
	onTranslated func(original types.Utterance, translation string)
	onWarning    func(error)
	logger       *slog.Logger
	timeout      time.Duration

	queue chan types.Utterance
	done  chan struct{}
	wg    sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewTranslator builds a Translator. target resolves the current target
// language name at translation time, so language switches apply to queued
// jobs too. onTranslated receives each successful translation on the worker
// goroutine.
func NewTranslator(provider llm.Provider, target func() string, onTranslated func(types.Utterance, string), opts ...TranslatorOption) (*Translator, error) {
	if provider == nil {
		return nil, fmt.Errorf("transcript: new translator: provider is required")
	}
	if target == nil {
		return nil, fmt.Errorf("transcript: new translator: target language func is required")
	}
	t := &Translator{
		provider:     provider,
		target:       target,
		onTranslated: onTranslated,
		logger:       slog.Default(),
		timeout:      defaultRequestTimeout,
		queue:        make(chan types.Utterance, translationQueueCap),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Start launches the worker goroutine. Subsequent calls are no-ops.
func (t *Translator) Start() {
	t.startOnce.Do(func() {
		t.wg.Add(1)
		go t.work()
	})
}

// Stop shuts the worker down and waits for an in-flight translation to
// finish. Queued jobs are abandoned. Safe to call more than once.
func (t *Translator) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.wg.Wait()
	})
}

// Enqueue offers an utterance to the translation queue without blocking.
// Returns false when the queue is full; the utterance is dropped and logged.
func (t *Translator) Enqueue(u types.Utterance) bool {
	select {
	case t.queue <- u:
		return true
	default:
		t.logger.Warn("translation queue full, dropping utterance", "source", u.Source, "speaker", u.Speaker)
		return false
	}
}

// Backlog returns the number of jobs waiting in the queue.
func (t *Translator) Backlog() int {
	return len(t.queue)
}

func (t *Translator) work() {
	defer t.wg.Done()
	timer := time.NewTimer(dequeueTimeout)
	defer timer.Stop()
	for {
		timer.Reset(dequeueTimeout)
		select {
		case <-t.done:
			return
		case u := <-t.queue:
			t.translate(u)
		case <-timer.C:
			// Idle tick; loop back and wait again.
		}
	}
}

func (t *Translator) translate(u types.Utterance) {
	target := t.target()
	if target == "" {
		t.logger.Warn("no target language configured, skipping translation")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	resp, err := t.provider.Complete(ctx, llm.Request{
		SystemPrompt: fmt.Sprintf(translatePromptFormat, target),
		Messages:     []llm.Message{{Role: "user", Content: u.Text}},
		Temperature:  0.3,
		MaxTokens:    500,
	})
	if err != nil {
		err = fmt.Errorf("transcript: translate to %s: %w", target, err)
		if kind := llm.Classify(err); kind != nil {
			err = fmt.Errorf("%w: %w", kind, err)
		}
		t.logger.Warn("translation failed", "error", err)
		if t.onWarning != nil {
			t.onWarning(err)
		}
		return
	}

	translation := strings.TrimSpace(resp.Content)
	if translation == "" {
		t.logger.Warn("empty translation returned", "target", target)
		return
	}
	if t.onTranslated != nil {
		t.onTranslated(u, translation)
	}
}
