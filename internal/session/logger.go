package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clever-foxes/meetfox/pkg/types"
)

const (
	conversationFile = "transcriptions.log"
	eventsFile       = "system_events.log"

	// fallbackDir receives log files written before any session directory
	// exists.
	fallbackDir = "logs"
)

// LoggerOption configures a TranscriptLogger.
type LoggerOption func(*TranscriptLogger)

// WithTranscriptClock overrides the wall clock, for tests.
func WithTranscriptClock(now func() time.Time) LoggerOption {
	return func(l *TranscriptLogger) {
		l.now = now
	}
}

// WithFallbackDir sets the directory used while no session is active.
// Defaults to "logs".
func WithFallbackDir(dir string) LoggerOption {
	return func(l *TranscriptLogger) {
		l.fallback = dir
	}
}

// WithTranscriptSlog sets the diagnostic logger.
func WithTranscriptSlog(logger *slog.Logger) LoggerOption {
	return func(l *TranscriptLogger) {
		l.logger = logger
	}
}

// TranscriptLogger writes the two append-only per-session logs: the
// conversation log (final utterances only) and the system-events log
// (capture starts/stops, feature toggles, language changes). Files follow
// the active session directory; while none exists they land in the fallback
// directory, created lazily.
type TranscriptLogger struct {
	dir      func() string
	fallback string
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	openedDir string
	convo     *os.File
	events    *os.File
}

// NewTranscriptLogger builds a TranscriptLogger. dir resolves the current
// session directory on every write; an empty result selects the fallback.
func NewTranscriptLogger(dir func() string, opts ...LoggerOption) *TranscriptLogger {
	l := &TranscriptLogger{
		dir:      dir,
		fallback: fallbackDir,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogUtterance appends one final utterance to the conversation log as
// "[ts] [SOURCE][Speaker] text". Interim results are never written.
func (l *TranscriptLogger) LogUtterance(u types.Utterance) error {
	line := fmt.Sprintf("[%s] [%s][%s] %s\n",
		l.now().Format(timeFormat), u.Source, u.Speaker, u.Text)
	return l.write(&l.convo, conversationFile, line)
}

// LogEvent appends one system event as "[ts] [SYSTEM] event".
func (l *TranscriptLogger) LogEvent(event string) error {
	line := fmt.Sprintf("[%s] [SYSTEM] %s\n", l.now().Format(timeFormat), event)
	return l.write(&l.events, eventsFile, line)
}

// LogLanguageChange records a detected spoken-language switch in the
// system-events log.
func (l *TranscriptLogger) LogLanguageChange(source types.Source, language string) error {
	line := fmt.Sprintf("[%s] [LANG] %s now speaking %s\n",
		l.now().Format(timeFormat), source, language)
	return l.write(&l.events, eventsFile, line)
}

// Close flushes and closes the open log files.
func (l *TranscriptLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *TranscriptLogger) closeLocked() error {
	var firstErr error
	for _, f := range []*os.File{l.convo, l.events} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.convo = nil
	l.events = nil
	l.openedDir = ""
	return firstErr
}

func (l *TranscriptLogger) write(slot **os.File, name, line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := ""
	if l.dir != nil {
		dir = l.dir()
	}
	if dir == "" {
		dir = l.fallback
	}
	// A session started or ended since the last write: rotate into the new
	// directory.
	if dir != l.openedDir {
		if err := l.closeLocked(); err != nil {
			l.logger.Warn("closing previous log files", "error", err)
		}
		l.openedDir = dir
	}

	if *slot == nil {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("session: create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("session: open %s: %w", name, err)
		}
		*slot = f
	}
	if _, err := (*slot).WriteString(line); err != nil {
		return fmt.Errorf("session: write %s: %w", name, err)
	}
	return nil
}
