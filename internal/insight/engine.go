package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/clever-foxes/meetfox/pkg/provider/llm"
	"github.com/clever-foxes/meetfox/pkg/types"
)

const (
	defaultMinExchanges  = 3
	defaultMinInterval   = 45 * time.Second
	defaultMinTextLength = 50
	defaultMaxContext    = 4000
	defaultThreshold     = 0.75
	defaultLLMTimeout    = 30 * time.Second

	// recentPerCategory is how many existing items per category the prompt
	// passes back to the model as already captured.
	recentPerCategory = 5

	// insightSource labels insights produced by the analysis call.
	insightSource = "ai_analysis"
)

// Journal receives accepted insights. The session manager implements it:
// AddInsight registers an item for the final summary, AppendInsightBlock
// appends one dated batch block to the per-category file.
type Journal interface {
	AddInsight(ins types.Insight)
	AppendInsightBlock(kind types.InsightKind, at time.Time, items []string) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMinExchanges sets how many new utterances must accumulate before an
// analysis may fire. Defaults to 3.
func WithMinExchanges(n int) Option {
	return func(e *Engine) {
		e.minExchanges = n
	}
}

// WithMinInterval sets the minimum gap between analyses. Defaults to 45s.
func WithMinInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.minInterval = d
	}
}

// WithMinTextLength sets the minimum trimmed length of the latest utterance
// for an analysis to fire. Defaults to 50.
func WithMinTextLength(n int) Option {
	return func(e *Engine) {
		e.minTextLength = n
	}
}

// WithSimilarityThreshold sets the dedup ratio at or above which a candidate
// is discarded. Defaults to 0.75.
func WithSimilarityThreshold(v float64) Option {
	return func(e *Engine) {
		e.threshold = v
	}
}

// WithSynchronousAnalysis makes Observe run the analysis inline instead of
// on a background goroutine. Tests use this to avoid polling.
func WithSynchronousAnalysis() Option {
	return func(e *Engine) {
		e.synchronous = true
	}
}

// Engine watches the conversation and periodically runs one consolidated LLM
// analysis extracting four insight categories. Accepted insights are written
// to the Journal. Near-duplicates of existing same-category insights are
// discarded.
type Engine struct {
	provider llm.Provider
	journal  Journal
	logger   *slog.Logger
	now      func() time.Time

	minExchanges  int
	minInterval   time.Duration
	minTextLength int
	maxContext    int
	threshold     float64
	llmTimeout    time.Duration
	synchronous   bool

	// analysisMu serializes analyses; TryLock makes them single-flight.
	analysisMu sync.Mutex

	mu           sync.Mutex
	history      []types.Utterance
	newExchanges int
	lastAnalysis time.Time
	categories   map[types.InsightKind][]string
}

// NewEngine builds an Engine writing accepted insights to journal.
func NewEngine(provider llm.Provider, journal Journal, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("insight: new engine: provider is required")
	}
	if journal == nil {
		return nil, fmt.Errorf("insight: new engine: journal is required")
	}
	e := &Engine{
		provider:      provider,
		journal:       journal,
		logger:        slog.Default(),
		now:           time.Now,
		minExchanges:  defaultMinExchanges,
		minInterval:   defaultMinInterval,
		minTextLength: defaultMinTextLength,
		maxContext:    defaultMaxContext,
		threshold:     defaultThreshold,
		llmTimeout:    defaultLLMTimeout,
		categories:    make(map[types.InsightKind][]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Reset clears conversation history, category caches, and counters. Called
// when a new session starts.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.history = nil
	e.newExchanges = 0
	e.lastAnalysis = time.Time{}
	e.categories = make(map[types.InsightKind][]string)
	e.mu.Unlock()
}

// Observe records one arbitrated utterance and fires an analysis when the
// triggering policy is met: enough new exchanges, enough time since the last
// analysis, and a substantial latest utterance.
func (e *Engine) Observe(u types.Utterance) {
	e.mu.Lock()
	e.history = append(e.history, u)
	e.newExchanges++
	fire := e.newExchanges >= e.minExchanges &&
		e.now().Sub(e.lastAnalysis) >= e.minInterval &&
		len(strings.TrimSpace(u.Text)) >= e.minTextLength
	e.mu.Unlock()
	if !fire {
		return
	}
	if e.synchronous {
		e.analyze()
		return
	}
	go e.analyze()
}

func (e *Engine) analyze() {
	if !e.analysisMu.TryLock() {
		return
	}
	defer e.analysisMu.Unlock()

	e.mu.Lock()
	// Counters reset when an analysis fires, regardless of its outcome, so a
	// failed call does not cause immediate re-analysis.
	e.newExchanges = 0
	e.lastAnalysis = e.now()
	contextText := conversationTail(e.history, e.maxContext)
	captured := e.recentCapturedLocked()
	e.mu.Unlock()

	if contextText == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.llmTimeout)
	defer cancel()
	resp, err := e.provider.Complete(ctx, llm.Request{
		SystemPrompt: analysisSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: buildAnalysisInput(contextText, captured)}},
		Temperature:  0.3,
		MaxTokens:    800,
	})
	if err != nil {
		e.logger.Warn("insight analysis failed", "error", err)
		return
	}

	batch := parseAnalysis(resp.Content, e.logger)
	at := e.now()
	for _, kind := range []types.InsightKind{
		types.InsightQuestion, types.InsightKeyPoint, types.InsightActionItem, types.InsightDecision,
	} {
		accepted := e.accept(kind, batch[kind])
		if len(accepted) == 0 {
			continue
		}
		for _, content := range accepted {
			e.journal.AddInsight(types.Insight{
				Timestamp:  at,
				Kind:       kind,
				Content:    content,
				Source:     insightSource,
				Confidence: 1.0,
			})
		}
		if err := e.journal.AppendInsightBlock(kind, at, accepted); err != nil {
			e.logger.Warn("failed to persist insights", "kind", kind, "error", err)
		}
	}
}

// accept filters candidates of one kind against the existing category cache
// and against each other, then records the survivors.
func (e *Engine) accept(kind types.InsightKind, candidates []string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	existing := e.categories[kind]
	var accepted []string
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if e.isDuplicateLocked(c, existing) || e.isDuplicateLocked(c, accepted) {
			continue
		}
		accepted = append(accepted, c)
	}
	e.categories[kind] = append(existing, accepted...)
	return accepted
}

func (e *Engine) isDuplicateLocked(candidate string, against []string) bool {
	for _, item := range against {
		if SimilarityRatio(candidate, item) >= e.threshold {
			return true
		}
	}
	return false
}

// recentCapturedLocked returns the last few items of each category for the
// "already captured" section of the prompt. Caller holds e.mu.
func (e *Engine) recentCapturedLocked() map[types.InsightKind][]string {
	captured := make(map[types.InsightKind][]string, len(e.categories))
	for kind, items := range e.categories {
		if len(items) > recentPerCategory {
			items = items[len(items)-recentPerCategory:]
		}
		captured[kind] = items
	}
	return captured
}

const analysisSystemPrompt = "You are a meeting analyst. You read a live meeting transcript and extract " +
	"only genuinely new observations. Respond with JSON only, no prose."

// buildAnalysisInput assembles the user message for the consolidated
// analysis call.
func buildAnalysisInput(contextText string, captured map[types.InsightKind][]string) string {
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	b.WriteString(contextText)
	b.WriteString("\n\nAlready captured (do not repeat):\n")
	writeCaptured(&b, "Questions", captured[types.InsightQuestion])
	writeCaptured(&b, "Key points", captured[types.InsightKeyPoint])
	writeCaptured(&b, "Action items", captured[types.InsightActionItem])
	writeCaptured(&b, "Decisions", captured[types.InsightDecision])
	b.WriteString("\nReturn a JSON object with keys \"questions\" (max 3 follow-up questions worth asking), " +
		"\"key_points\" (max 3), \"action_items\" (max 3), \"decisions\" (max 2). " +
		"Each value is an array of strings. Return [] for categories with nothing new.")
	return b.String()
}

func writeCaptured(b *strings.Builder, label string, items []string) {
	b.WriteString(label)
	b.WriteString(":")
	if len(items) == 0 {
		b.WriteString(" (none)\n")
		return
	}
	b.WriteString("\n")
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}

// conversationTail renders the most recent utterances, newest last, bounded
// to maxChars.
func conversationTail(history []types.Utterance, maxChars int) string {
	var lines []string
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		u := history[i]
		line := fmt.Sprintf("[%s] %s: %s", u.Timestamp.Format("15:04:05"), u.Speaker, u.Text)
		if total+len(line)+1 > maxChars && len(lines) > 0 {
			break
		}
		lines = append(lines, line)
		total += len(line) + 1
	}
	// Reverse back to chronological order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

type analysisPayload struct {
	Questions   []string `json:"questions"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
	Decisions   []string `json:"decisions"`
}

// parseAnalysis tolerantly decodes the model's JSON reply. Markdown code
// fences are stripped; on decode failure everything is empty.
func parseAnalysis(content string, logger *slog.Logger) map[types.InsightKind][]string {
	var payload analysisPayload
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &payload); err != nil {
		logger.Warn("unparseable insight analysis response", "error", err)
		return nil
	}
	return map[types.InsightKind][]string{
		types.InsightQuestion:   payload.Questions,
		types.InsightKeyPoint:   payload.KeyPoints,
		types.InsightActionItem: payload.ActionItems,
		types.InsightDecision:   payload.Decisions,
	}
}

// stripCodeFences removes a surrounding markdown code fence, with or without
// a language tag.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 && !strings.HasPrefix(s, "{") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
