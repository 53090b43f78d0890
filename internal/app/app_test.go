package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clever-foxes/meetfox/internal/chat"
	"github.com/clever-foxes/meetfox/internal/config"
	"github.com/clever-foxes/meetfox/pkg/audio/mixer"
	llmmock "github.com/clever-foxes/meetfox/pkg/provider/llm/mock"
	"github.com/clever-foxes/meetfox/pkg/provider/stt"
	sttmock "github.com/clever-foxes/meetfox/pkg/provider/stt/mock"
	ttsmock "github.com/clever-foxes/meetfox/pkg/provider/tts/mock"
	"github.com/clever-foxes/meetfox/pkg/tts"
	"github.com/clever-foxes/meetfox/pkg/types"
)

const waitTimeout = 2 * time.Second

// eventually polls cond until it holds or the timeout expires.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// fakeCapture blocks Read until Close, then reports EOF.
type fakeCapture struct {
	closed chan struct{}
	once   sync.Once
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{closed: make(chan struct{})}
}

func (c *fakeCapture) Read([]byte) (int, error) {
	<-c.closed
	return 0, io.EOF
}

func (c *fakeCapture) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// sessionProvider hands out a fresh mock session per StartStream and keeps
// every one for inspection.
type sessionProvider struct {
	mu       sync.Mutex
	configs  []stt.StreamConfig
	sessions []*sttmock.Session
}

func (p *sessionProvider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := sttmock.NewSession()
	p.configs = append(p.configs, cfg)
	p.sessions = append(p.sessions, s)
	return s, nil
}

func (p *sessionProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *sessionProvider) session(i int) *sttmock.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[i]
}

// eventLog collects Events callbacks for assertions.
type eventLog struct {
	mu           sync.Mutex
	utterances   []types.Utterance
	interims     []types.Utterance
	translations []string
	warnings     []error
}

func (e *eventLog) events() Events {
	return Events{
		OnUtterance: func(u types.Utterance) {
			e.mu.Lock()
			e.utterances = append(e.utterances, u)
			e.mu.Unlock()
		},
		OnInterim: func(u types.Utterance) {
			e.mu.Lock()
			e.interims = append(e.interims, u)
			e.mu.Unlock()
		},
		OnTranslation: func(_ types.Utterance, translated string) {
			e.mu.Lock()
			e.translations = append(e.translations, translated)
			e.mu.Unlock()
		},
		OnWarning: func(err error) {
			e.mu.Lock()
			e.warnings = append(e.warnings, err)
			e.mu.Unlock()
		},
	}
}

func (e *eventLog) utteranceTexts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.utterances))
	for i, u := range e.utterances {
		out[i] = u.Text
	}
	return out
}

func (e *eventLog) interimCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.interims)
}

func (e *eventLog) translated() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.translations...)
}

func testConfig() *config.Config {
	return &config.Config{
		SpeechLanguage:    "en-US",
		EnableDiarization: true,
		MinSpeakers:       1,
		MaxSpeakers:       4,
		AutoPauseSilence:  5 * time.Minute,
	}
}

type harness struct {
	app  *App
	stt  *sessionProvider
	llm  *llmmock.Provider
	log  *eventLog
	root string
}

func newHarness(t *testing.T, cfg *config.Config, mix *mixer.Mixer, speechProv *ttsmock.Provider, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		stt:  &sessionProvider{},
		llm:  &llmmock.Provider{},
		log:  &eventLog{},
		root: t.TempDir(),
	}
	// The system capture waits for the mic stream to register, so
	// session(0) is always the MIC session.
	captures := func(source types.Source, _ int) (io.ReadCloser, error) {
		if source == types.SourceSystem {
			deadline := time.Now().Add(waitTimeout)
			for h.stt.count() == 0 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
		}
		return newFakeCapture(), nil
	}
	providers := Providers{STT: h.stt, LLM: h.llm}
	if speechProv != nil {
		providers.TTS = speechProv
	}
	opts = append([]Option{WithSessionRoot(h.root)}, opts...)
	a, err := New(cfg, providers, mix, captures, h.log.events(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.app = a
	t.Cleanup(func() {
		if a.Running() {
			_, _ = a.StopTranscription(context.Background())
		}
	})
	return h
}

func (h *harness) start(t *testing.T) string {
	t.Helper()
	id, err := h.app.StartTranscription(context.Background(), "Test meeting")
	if err != nil {
		t.Fatalf("StartTranscription: %v", err)
	}
	return id
}

func TestNew_Validation(t *testing.T) {
	captures := func(types.Source, int) (io.ReadCloser, error) { return newFakeCapture(), nil }
	if _, err := New(nil, Providers{}, nil, captures, Events{}); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(testConfig(), Providers{LLM: &llmmock.Provider{}}, nil, captures, Events{}); err == nil {
		t.Error("expected error for missing STT provider")
	}
	if _, err := New(testConfig(), Providers{STT: &sessionProvider{}}, nil, captures, Events{}); err == nil {
		t.Error("expected error for missing LLM provider")
	}
	if _, err := New(testConfig(), Providers{STT: &sessionProvider{}, LLM: &llmmock.Provider{}}, nil, nil, Events{}); err == nil {
		t.Error("expected error for missing capture opener")
	}
}

func TestStartTranscription_OpensBothSources(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	id := h.start(t)

	if id == "" {
		t.Error("empty session id")
	}
	if !h.app.Running() {
		t.Error("app must report running")
	}
	if got := len(h.stt.configs); got != 2 {
		t.Fatalf("StartStream calls = %d, want 2", got)
	}
	for _, cfg := range h.stt.configs {
		if cfg.SampleRate != 16000 || cfg.Channels != 1 {
			t.Errorf("stream format = %d Hz / %d ch", cfg.SampleRate, cfg.Channels)
		}
		if cfg.Language != "en-US" || !cfg.Diarization {
			t.Errorf("stream config = %+v", cfg)
		}
	}
	if _, err := h.app.StartTranscription(context.Background(), "again"); err == nil {
		t.Error("second start must fail while running")
	}
}

func TestStartTranscription_AutoDetectLanguages(t *testing.T) {
	cfg := testConfig()
	cfg.SpeechLanguage = "auto"
	cfg.CandidateLanguages = []string{"en-US", "ru-RU"}
	h := newHarness(t, cfg, nil, nil)
	h.start(t)

	for _, sc := range h.stt.configs {
		if sc.Language != "" || len(sc.CandidateLanguages) != 2 {
			t.Errorf("stream config = %+v", sc)
		}
	}
}

func TestFinalFlowsToUtteranceSink(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	h.start(t)

	h.stt.session(0).FinalsCh <- types.Transcript{Text: "Hello everyone.", IsFinal: true, SpeakerID: "Guest-1"}

	eventually(t, func() bool {
		for _, text := range h.log.utteranceTexts() {
			if text == "Hello everyone." {
				return true
			}
		}
		return false
	}, "final never reached the utterance sink")

	path, err := h.app.StopTranscription(context.Background())
	if err != nil {
		t.Fatalf("StopTranscription: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !strings.Contains(string(data), `"total_transcripts": 1`) {
		t.Errorf("summary does not count the transcript:\n%s", data)
	}

	convo, err := os.ReadFile(filepath.Join(filepath.Dir(path), "transcriptions.log"))
	if err != nil {
		t.Fatalf("read conversation log: %v", err)
	}
	if !strings.Contains(string(convo), "Hello everyone.") {
		t.Error("conversation log is missing the final")
	}
}

func TestStopTranscription_FlushesPendingInterim(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	h.start(t)

	h.stt.session(0).PartialsCh <- types.Transcript{Text: "unfinished thought"}
	eventually(t, func() bool { return h.log.interimCount() == 1 }, "interim never delivered")

	if _, err := h.app.StopTranscription(context.Background()); err != nil {
		t.Fatalf("StopTranscription: %v", err)
	}
	if got := h.log.interimCount(); got != 2 {
		t.Errorf("interim callbacks = %d, want 2 (live + flush)", got)
	}
	if h.app.Running() {
		t.Error("app must report stopped")
	}
}

func TestStopTranscription_WithoutStartFails(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	if _, err := h.app.StopTranscription(context.Background()); err == nil {
		t.Error("expected error when not running")
	}
}

func TestTextTranslation(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	h.llm.Queue = []llmmock.Scripted{{Content: "Hallo zusammen."}}
	h.start(t)

	if err := h.app.EnableTextTranslation("German"); err != nil {
		t.Fatalf("EnableTextTranslation: %v", err)
	}
	h.stt.session(0).FinalsCh <- types.Transcript{Text: "Hello everyone.", IsFinal: true}

	eventually(t, func() bool {
		for _, tr := range h.log.translated() {
			if tr == "Hallo zusammen." {
				return true
			}
		}
		return false
	}, "translation never delivered")

	if req := h.llm.LastCall(); !strings.Contains(req.SystemPrompt, "German") {
		t.Errorf("translation prompt missing target language: %q", req.SystemPrompt)
	}
}

func TestTranslationFailureBecomesWarning(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	h.llm.Queue = []llmmock.Scripted{{Err: errors.New("backend exploded")}}
	h.start(t)

	if err := h.app.EnableTextTranslation("German"); err != nil {
		t.Fatalf("EnableTextTranslation: %v", err)
	}
	h.stt.session(0).FinalsCh <- types.Transcript{Text: "Hello everyone.", IsFinal: true}

	eventually(t, func() bool {
		n, _ := h.app.Warnings()
		return n > 0
	}, "warning never recorded")

	n, last := h.app.Warnings()
	if n != 1 || last == nil {
		t.Errorf("Warnings() = %d, %v", n, last)
	}
	h.app.ClearWarnings()
	if n, last := h.app.Warnings(); n != 0 || last != nil {
		t.Error("ClearWarnings did not reset the accumulator")
	}
}

func TestEnableTTSToMic_RequiresMixer(t *testing.T) {
	h := newHarness(t, testConfig(), nil, &ttsmock.Provider{})
	h.start(t)
	if err := h.app.EnableTTSToMic("Russian"); err == nil {
		t.Error("expected error without a mixer")
	}
}

// pacedSource feeds silent mic audio at a real-time-ish pace so the mixer
// loop can run in tests.
type pacedSource struct{}

func (pacedSource) Read(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	clear(p)
	return len(p), nil
}

type discardSink struct{}

func (discardSink) Write(p []byte) (int, error) { return len(p), nil }

func TestTTSToMic_SpeaksTranslations(t *testing.T) {
	mix := mixer.New(pacedSource{}, discardSink{})
	speechProv := &ttsmock.Provider{}
	h := newHarness(t, testConfig(), mix, speechProv)
	h.llm.Queue = []llmmock.Scripted{{Content: "Привет всем."}}
	h.start(t)

	if err := h.app.EnableTTSToMic("Russian"); err != nil {
		t.Fatalf("EnableTTSToMic: %v", err)
	}
	h.stt.session(0).FinalsCh <- types.Transcript{Text: "Hello everyone.", IsFinal: true}

	eventually(t, func() bool { return speechProv.CallCount() == 1 }, "synthesis never invoked")
	eventually(t, func() bool { return h.app.TTSState() == tts.StateIdle && !mix.TTSActive() },
		"playback never completed")

	if calls := speechProv.Calls; len(calls) == 1 && calls[0].Text != "Привет всем." {
		t.Errorf("synthesised %q, want the translation", calls[0].Text)
	}

	h.app.DisableTTSToMic()
	if h.app.TTSState() != tts.StateIdle {
		t.Error("disable must leave the controller idle")
	}
}

func TestAutoPause_StopsAfterSilence(t *testing.T) {
	cfg := testConfig()
	cfg.EnableAutoPause = true
	cfg.AutoPauseSilence = 30 * time.Millisecond
	h := newHarness(t, cfg, nil, nil, WithAutoPauseInterval(10*time.Millisecond))
	h.start(t)

	eventually(t, func() bool { return !h.app.Running() }, "auto-pause never stopped transcription")
}

func TestAsk_DelegatesToChat(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	h.llm.Queue = []llmmock.Scripted{{Content: "Nothing was decided yet."}}
	h.start(t)

	answer, err := h.app.Ask(context.Background(), chat.TypeDecisions, "")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != "Nothing was decided yet." {
		t.Errorf("answer = %q", answer)
	}
}

func TestSetTTSLanguage_WithoutSynthesisFails(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	if err := h.app.SetTTSLanguage("Russian"); err == nil {
		t.Error("expected error without TTS provider")
	}
	if err := h.app.Speak(); err == nil {
		t.Error("expected error without TTS provider")
	}
}
