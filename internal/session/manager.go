// Package session owns per-run session identity: the session directory under
// sessions/, insight and transcript counters, the per-category insight files,
// and the final JSON and Markdown meeting summaries.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/clever-foxes/meetfox/pkg/types"
)

const (
	// timeFormat is the local timestamp layout used across all session
	// artifacts.
	timeFormat = "2006-01-02 15:04:05"

	// idFormat mints the session identifier from the local start time.
	idFormat = "20060102_150405"

	defaultRoot = "sessions"
)

// categoryFiles maps insight kinds to their append-only files inside the
// session directory.
var categoryFiles = map[types.InsightKind]string{
	types.InsightQuestion:   "follow-up-questions.txt",
	types.InsightKeyPoint:   "key-points.txt",
	types.InsightActionItem: "action-items.txt",
	types.InsightDecision:   "decisions.txt",
}

// Status is a point-in-time snapshot of the active session.
type Status struct {
	ID              string
	Title           string
	StartTime       time.Time
	Duration        time.Duration
	TranscriptCount int
	Questions       int
	KeyPoints       int
	ActionItems     int
	Decisions       int
}

// Option configures a Manager.
type Option func(*Manager)

// WithRoot sets the directory session folders are created under. Defaults to
// "sessions".
func WithRoot(dir string) Option {
	return func(m *Manager) {
		m.root = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithSummarizer registers a function that produces a prose meeting summary
// for the Markdown rendering. Called once during EndCurrentSession; a failure
// only omits the summary section.
func WithSummarizer(fn func(ctx context.Context) (string, error)) Option {
	return func(m *Manager) {
		m.summarize = fn
	}
}

type record struct {
	id              string
	title           string
	startTime       time.Time
	dir             string
	transcriptCount int
	insights        []types.Insight
}

// Manager tracks the single active session per process and writes all its
// on-disk artifacts.
type Manager struct {
	root      string
	logger    *slog.Logger
	now       func() time.Time
	summarize func(ctx context.Context) (string, error)

	mu      sync.Mutex
	current *record
}

// NewManager builds a Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		root:   defaultRoot,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartNewSession mints a session identity from the local time, creates its
// directory, and makes it the active session. Returns an error when a
// session is already active.
func (m *Manager) StartNewSession(title string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return "", fmt.Errorf("session: session %s is still active", m.current.id)
	}
	start := m.now()
	id := start.Format(idFormat)
	if title == "" {
		title = "Meeting " + start.Format(timeFormat)
	}
	dir := filepath.Join(m.root, "session_"+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("session: create directory: %w", err)
	}
	m.current = &record{id: id, title: title, startTime: start, dir: dir}
	m.logger.Info("session started", "session_id", id, "dir", dir)
	return id, nil
}

// Active reports whether a session is in progress.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Dir returns the active session's directory, or "" when none is active.
func (m *Manager) Dir() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.dir
}

// AddTranscripts bumps the transcript counter by n.
func (m *Manager) AddTranscripts(n int) {
	m.mu.Lock()
	if m.current != nil {
		m.current.transcriptCount += n
	}
	m.mu.Unlock()
}

// AddInsight registers one insight with the active session. Insights arriving
// with no active session are dropped with a log line.
func (m *Manager) AddInsight(ins types.Insight) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		m.logger.Debug("insight dropped, no active session", "kind", ins.Kind)
		return
	}
	if ins.Confidence == 0 {
		ins.Confidence = 1.0
	}
	m.current.insights = append(m.current.insights, ins)
}

// AppendInsightBlock appends one dated batch block to the per-category file:
// a "=== <ts> ===" header followed by the items, bulleted (questions are
// numbered instead).
func (m *Manager) AppendInsightBlock(kind types.InsightKind, at time.Time, items []string) error {
	file, ok := categoryFiles[kind]
	if !ok {
		return fmt.Errorf("session: unknown insight kind %q", kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return fmt.Errorf("session: no active session")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n", at.Format(timeFormat))
	for i, item := range items {
		if kind == types.InsightQuestion {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item)
		} else {
			fmt.Fprintf(&b, "• %s\n", item)
		}
	}
	b.WriteString("\n")
	return appendFile(filepath.Join(m.current.dir, file), b.String())
}

// Status returns a snapshot of the active session, or false when none is
// active.
func (m *Manager) Status() (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Status{}, false
	}
	s := Status{
		ID:              m.current.id,
		Title:           m.current.title,
		StartTime:       m.current.startTime,
		Duration:        m.now().Sub(m.current.startTime),
		TranscriptCount: m.current.transcriptCount,
	}
	for _, ins := range m.current.insights {
		switch ins.Kind {
		case types.InsightQuestion:
			s.Questions++
		case types.InsightKeyPoint:
			s.KeyPoints++
		case types.InsightActionItem:
			s.ActionItems++
		case types.InsightDecision:
			s.Decisions++
		}
	}
	return s, true
}

// EndCurrentSession closes the active session: it stamps the end time,
// writes meeting_summary_<id>.json and its Markdown rendering into the
// session directory, and clears the in-memory state. Returns the JSON path.
func (m *Manager) EndCurrentSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	rec := m.current
	m.current = nil
	now := m.now()
	m.mu.Unlock()
	if rec == nil {
		return "", fmt.Errorf("session: no active session")
	}

	var prose string
	if m.summarize != nil {
		var err error
		if prose, err = m.summarize(ctx); err != nil {
			m.logger.Warn("meeting summary generation failed", "error", err)
			prose = ""
		}
	}

	jsonPath := filepath.Join(rec.dir, "meeting_summary_"+rec.id+".json")
	if err := os.WriteFile(jsonPath, buildSummaryJSON(rec, now), 0o644); err != nil {
		return "", fmt.Errorf("session: write summary: %w", err)
	}
	mdPath := filepath.Join(rec.dir, "meeting_summary_"+rec.id+".md")
	if err := os.WriteFile(mdPath, []byte(buildSummaryMarkdown(rec, now, prose)), 0o644); err != nil {
		return "", fmt.Errorf("session: write markdown summary: %w", err)
	}
	m.logger.Info("session ended", "session_id", rec.id,
		"duration_minutes", now.Sub(rec.startTime).Minutes(),
		"transcripts", rec.transcriptCount, "insights", len(rec.insights))
	return jsonPath, nil
}

type summaryItem struct {
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

type summaryDoc struct {
	SessionInfo struct {
		SessionID       string   `json:"session_id"`
		StartTime       string   `json:"start_time"`
		EndTime         string   `json:"end_time"`
		Title           string   `json:"title"`
		Participants    []string `json:"participants"`
		TranscriptCount int      `json:"transcript_count"`
	} `json:"session_info"`
	DurationMinutes float64 `json:"duration_minutes"`
	Statistics      struct {
		TotalTranscripts    int `json:"total_transcripts"`
		TotalInsights       int `json:"total_insights"`
		QuestionsGenerated  int `json:"questions_generated"`
		KeyPointsIdentified int `json:"key_points_identified"`
		ActionItemsCaptured int `json:"action_items_captured"`
		DecisionsRecorded   int `json:"decisions_recorded"`
	} `json:"statistics"`
	Insights struct {
		Questions   []summaryItem `json:"questions"`
		KeyPoints   []summaryItem `json:"key_points"`
		ActionItems []summaryItem `json:"action_items"`
		Decisions   []summaryItem `json:"decisions"`
	} `json:"insights"`
	SummaryGenerated string `json:"summary_generated"`
}

func buildSummaryJSON(rec *record, end time.Time) []byte {
	var doc summaryDoc
	doc.SessionInfo.SessionID = rec.id
	doc.SessionInfo.StartTime = rec.startTime.Format(timeFormat)
	doc.SessionInfo.EndTime = end.Format(timeFormat)
	doc.SessionInfo.Title = rec.title
	doc.SessionInfo.Participants = []string{}
	doc.SessionInfo.TranscriptCount = rec.transcriptCount
	doc.DurationMinutes = end.Sub(rec.startTime).Minutes()
	doc.Statistics.TotalTranscripts = rec.transcriptCount
	doc.Statistics.TotalInsights = len(rec.insights)
	doc.Insights.Questions = []summaryItem{}
	doc.Insights.KeyPoints = []summaryItem{}
	doc.Insights.ActionItems = []summaryItem{}
	doc.Insights.Decisions = []summaryItem{}
	for _, ins := range rec.insights {
		item := summaryItem{
			Content:   ins.Content,
			Timestamp: ins.Timestamp.Format(timeFormat),
			Source:    ins.Source,
		}
		switch ins.Kind {
		case types.InsightQuestion:
			doc.Statistics.QuestionsGenerated++
			doc.Insights.Questions = append(doc.Insights.Questions, item)
		case types.InsightKeyPoint:
			doc.Statistics.KeyPointsIdentified++
			doc.Insights.KeyPoints = append(doc.Insights.KeyPoints, item)
		case types.InsightActionItem:
			doc.Statistics.ActionItemsCaptured++
			doc.Insights.ActionItems = append(doc.Insights.ActionItems, item)
		case types.InsightDecision:
			doc.Statistics.DecisionsRecorded++
			doc.Insights.Decisions = append(doc.Insights.Decisions, item)
		}
	}
	doc.SummaryGenerated = end.Format(timeFormat)
	out, _ := json.MarshalIndent(doc, "", "  ")
	return out
}

func buildSummaryMarkdown(rec *record, end time.Time, prose string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rec.title)
	fmt.Fprintf(&b, "**Session:** %s  \n", rec.id)
	fmt.Fprintf(&b, "**Started:** %s  \n", rec.startTime.Format(timeFormat))
	fmt.Fprintf(&b, "**Duration:** %.1f minutes\n\n", end.Sub(rec.startTime).Minutes())
	if prose != "" {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", strings.TrimSpace(prose))
	}

	var questions, keyPoints, actionItems, decisions []types.Insight
	for _, ins := range rec.insights {
		switch ins.Kind {
		case types.InsightQuestion:
			questions = append(questions, ins)
		case types.InsightKeyPoint:
			keyPoints = append(keyPoints, ins)
		case types.InsightActionItem:
			actionItems = append(actionItems, ins)
		case types.InsightDecision:
			decisions = append(decisions, ins)
		}
	}

	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(&b, "- Transcriptions: %d\n", rec.transcriptCount)
	fmt.Fprintf(&b, "- Insights: %d\n", len(rec.insights))
	fmt.Fprintf(&b, "- Key points: %d\n", len(keyPoints))
	fmt.Fprintf(&b, "- Decisions: %d\n", len(decisions))
	fmt.Fprintf(&b, "- Action items: %d\n", len(actionItems))
	fmt.Fprintf(&b, "- Follow-up questions: %d\n\n", len(questions))

	b.WriteString("## Key Points\n\n")
	for _, ins := range keyPoints {
		fmt.Fprintf(&b, "- %s\n", ins.Content)
	}
	b.WriteString("\n## Decisions\n\n")
	for _, ins := range decisions {
		fmt.Fprintf(&b, "- %s\n", ins.Content)
	}
	b.WriteString("\n## Action Items\n\n")
	for _, ins := range actionItems {
		fmt.Fprintf(&b, "- [ ] %s\n", ins.Content)
	}
	b.WriteString("\n## Suggested Follow-up Questions\n\n")
	for i, ins := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ins.Content)
	}
	return b.String()
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("session: open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("session: append %s: %w", filepath.Base(path), err)
	}
	return nil
}
