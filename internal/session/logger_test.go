package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clever-foxes/meetfox/pkg/types"
)

var logTime = time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)

func TestTranscriptLogger_ConversationLine(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := NewTranscriptLogger(func() string { return dir }, WithTranscriptClock(fixedClock(logTime)))
	defer l.Close()

	err := l.LogUtterance(types.Utterance{
		Text:    "Hello everyone.",
		Source:  types.SourceMic,
		Speaker: "Speaker 1",
	})
	if err != nil {
		t.Fatalf("LogUtterance: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, conversationFile))
	if err != nil {
		t.Fatalf("read conversation log: %v", err)
	}
	want := "[2026-08-24 15:00:00] [MIC][Speaker 1] Hello everyone.\n"
	if string(raw) != want {
		t.Errorf("line = %q, want %q", raw, want)
	}
}

func TestTranscriptLogger_EventsAndLanguageChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := NewTranscriptLogger(func() string { return dir }, WithTranscriptClock(fixedClock(logTime)))
	defer l.Close()

	if err := l.LogEvent("transcription started"); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := l.LogLanguageChange(types.SourceSystem, "ru-RU"); err != nil {
		t.Fatalf("LogLanguageChange: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, eventsFile))
	if err != nil {
		t.Fatalf("read events log: %v", err)
	}
	want := "[2026-08-24 15:00:00] [SYSTEM] transcription started\n" +
		"[2026-08-24 15:00:00] [LANG] SYSTEM now speaking ru-RU\n"
	if string(raw) != want {
		t.Errorf("events = %q, want %q", raw, want)
	}
}

func TestTranscriptLogger_FallbackDirCreatedLazily(t *testing.T) {
	t.Parallel()

	fallback := filepath.Join(t.TempDir(), "logs")
	l := NewTranscriptLogger(func() string { return "" }, WithFallbackDir(fallback))
	defer l.Close()

	if _, err := os.Stat(fallback); !os.IsNotExist(err) {
		t.Fatal("fallback dir must not exist before the first write")
	}
	if err := l.LogEvent("early event"); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fallback, eventsFile)); err != nil {
		t.Errorf("events log not created in fallback dir: %v", err)
	}
}

func TestTranscriptLogger_FollowsSessionDirectory(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	current := ""
	l := NewTranscriptLogger(func() string { return current }, WithFallbackDir(filepath.Join(base, "logs")))
	defer l.Close()

	if err := l.LogEvent("before session"); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	current = filepath.Join(base, "session_x")
	if err := l.LogEvent("after session start"); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	early, err := os.ReadFile(filepath.Join(base, "logs", eventsFile))
	if err != nil {
		t.Fatalf("read fallback events: %v", err)
	}
	late, err := os.ReadFile(filepath.Join(base, "session_x", eventsFile))
	if err != nil {
		t.Fatalf("read session events: %v", err)
	}
	if !strings.Contains(string(early), "before session") || strings.Contains(string(early), "after session") {
		t.Errorf("fallback log = %q", early)
	}
	if !strings.Contains(string(late), "after session start") {
		t.Errorf("session log = %q", late)
	}
}
