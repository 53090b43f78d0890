// Package app wires all Meetfox subsystems into one embedder-facing facade.
//
// The App struct owns the full feature lifecycle: StartTranscription opens
// the capture streams and spawns one STT session per source,
// EnableTextTranslation and EnableTTSToMic switch the translation pipeline
// on, and StopTranscription finalises the session and writes its summary
// artifacts. Embedders (the CLI, a GUI) receive display updates through the
// Events callbacks and never touch the inner components directly.
//
// For testing, inject mock providers and a nil mixer; every subsystem that
// talks to hardware or the network sits behind an interface.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clever-foxes/meetfox/internal/chat"
	"github.com/clever-foxes/meetfox/internal/config"
	"github.com/clever-foxes/meetfox/internal/insight"
	"github.com/clever-foxes/meetfox/internal/observe"
	"github.com/clever-foxes/meetfox/internal/session"
	"github.com/clever-foxes/meetfox/internal/transcript"
	"github.com/clever-foxes/meetfox/pkg/audio/mixer"
	"github.com/clever-foxes/meetfox/pkg/provider/llm"
	"github.com/clever-foxes/meetfox/pkg/provider/stt"
	speech "github.com/clever-foxes/meetfox/pkg/provider/tts"
	"github.com/clever-foxes/meetfox/pkg/tts"
	"github.com/clever-foxes/meetfox/pkg/types"
)

const (
	// sttSampleRate is the PCM rate streamed to the recogniser.
	sttSampleRate = 16000

	// feedChunkBytes is the capture read size per STT push (~100 ms of
	// 16 kHz mono PCM16).
	feedChunkBytes = 3200

	// summaryContextChars bounds the transcript tail sent to the LLM when
	// generating the end-of-meeting summary paragraph.
	summaryContextChars = 3000

	// defaultAutoPauseInterval is how often the silence monitor checks the
	// time of the last observed speech.
	defaultAutoPauseInterval = 10 * time.Second
)

// Providers holds one interface value per backend slot.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS speech.Provider
}

// CaptureOpener opens a mono PCM16 capture stream for the given source at
// the given sample rate. The embedder supplies a device-backed
// implementation; tests supply fakes.
type CaptureOpener func(source types.Source, sampleRate int) (io.ReadCloser, error)

// Events are the embedder's display callbacks. All are optional and must
// not block; they are invoked from pipeline goroutines.
type Events struct {
	// OnUtterance receives every arbitrated utterance, including
	// TTS-reclassified ones.
	OnUtterance func(types.Utterance)

	// OnInterim receives partial recognition results for progressive
	// display. Interims are never persisted.
	OnInterim func(types.Utterance)

	// OnLanguage fires when auto-detection reports a new spoken language.
	OnLanguage func(source types.Source, language string)

	// OnTranslation receives each finished translation.
	OnTranslation func(original types.Utterance, translated string)

	// OnTTSState observes translation-speech state transitions.
	OnTTSState func(old, new tts.State)

	// OnWarning receives non-fatal pipeline errors as they are recorded.
	OnWarning func(err error)
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger used by the app and all subsystems it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithMetrics injects a metrics instance instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSessionRoot overrides the directory session artifacts are written
// under.
func WithSessionRoot(dir string) Option {
	return func(a *App) { a.sessionRoot = dir }
}

// WithVoiceTable overrides the embedded language-to-voice table.
func WithVoiceTable(t *tts.Table) Option {
	return func(a *App) { a.voices = t }
}

// WithMonitorSink mirrors synthesised audio to a local playback sink in
// addition to the mixer.
func WithMonitorSink(sink tts.MonitorSink) Option {
	return func(a *App) { a.monitor = sink }
}

// WithAutoPauseInterval sets the silence-monitor poll interval, for tests.
func WithAutoPauseInterval(d time.Duration) Option {
	return func(a *App) { a.pauseInterval = d }
}

// App is the Meetfox engine facade.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	now      func() time.Time
	metrics  *observe.Metrics
	events   Events
	mix      *mixer.Mixer
	captures CaptureOpener

	sessionRoot   string
	voices        *tts.Table
	monitor       tts.MonitorSink
	pauseInterval time.Duration

	sttProvider    stt.Provider
	translationLLM llm.Provider
	chatLLM        llm.Provider

	sessions *session.Manager
	tlog     *session.TranscriptLogger
	chat     *chat.Service
	insights *insight.Engine
	arbiter  *transcript.Arbiter

	controller *tts.Controller

	mu          sync.Mutex
	running     bool
	sources     []*sourceFeed
	translator  *transcript.Translator
	textLang    string
	ttsToMic    bool
	lastInterim map[types.Source]types.Utterance
	lastSpeech  time.Time
	stopMonitor chan struct{}
	summaryLog  []string

	warnMu    sync.Mutex
	warnCount int
	warnLast  error
}

// sourceFeed bundles one capture stream with its STT session and feed
// goroutine.
type sourceFeed struct {
	source  types.Source
	capture io.ReadCloser
	session *transcript.Session
	done    chan struct{}
}

// New wires all subsystems together. The mixer may be nil, in which case
// the TTS-to-mic feature is unavailable; STT and LLM providers are
// required.
func New(cfg *config.Config, providers Providers, mix *mixer.Mixer, captures CaptureOpener, events Events, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers.STT == nil {
		return nil, errors.New("app: STT provider is required")
	}
	if providers.LLM == nil {
		return nil, errors.New("app: LLM provider is required")
	}
	if captures == nil {
		return nil, errors.New("app: capture opener is required")
	}

	a := &App{
		cfg:           cfg,
		sttProvider:   providers.STT,
		logger:        slog.Default(),
		now:           time.Now,
		events:        events,
		mix:           mix,
		captures:      captures,
		voices:        tts.DefaultTable(),
		pauseInterval: defaultAutoPauseInterval,
		lastInterim:   make(map[types.Source]types.Utterance),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.translationLLM = observe.InstrumentLLM(providers.LLM, a.metrics, observe.StageTranslation)
	a.chatLLM = observe.InstrumentLLM(providers.LLM, a.metrics, observe.StageChat)
	insightLLM := observe.InstrumentLLM(providers.LLM, a.metrics, observe.StageInsight)

	sessionOpts := []session.Option{
		session.WithLogger(a.logger),
		session.WithClock(a.now),
		session.WithSummarizer(a.meetingSummary),
	}
	if a.sessionRoot != "" {
		sessionOpts = append(sessionOpts, session.WithRoot(a.sessionRoot))
	}
	a.sessions = session.NewManager(sessionOpts...)
	a.tlog = session.NewTranscriptLogger(a.sessions.Dir,
		session.WithTranscriptClock(a.now),
		session.WithTranscriptSlog(a.logger),
	)

	var err error
	a.chat, err = chat.NewService(a.chatLLM,
		chat.WithLogger(a.logger),
		chat.WithClock(a.now),
		chat.WithHistoryDir(a.sessions.Dir),
	)
	if err != nil {
		return nil, fmt.Errorf("app: chat service: %w", err)
	}
	a.insights, err = insight.NewEngine(insightLLM, a.sessions,
		insight.WithLogger(a.logger),
		insight.WithClock(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("app: insight engine: %w", err)
	}

	if providers.TTS != nil && mix != nil {
		buffer := tts.NewBuffer(observe.InstrumentTTS(providers.TTS, a.metrics))
		var routerOpts []tts.RouterOption
		if a.monitor != nil {
			routerOpts = append(routerOpts, tts.WithMonitor(a.monitor))
		}
		router := tts.NewRouter(mix, routerOpts...)
		a.controller = tts.NewController(buffer, router, a.voices,
			tts.WithStateCallback(a.handleTTSState),
		)
	}

	a.arbiter = transcript.NewArbiter(transcript.Sinks{
		Transcript: a.handleUtterance,
		Translate:  a.enqueueTranslation,
		Insight:    a.insights.Observe,
		Memory:     a.chat.Observe,
		Duplicate:  a.handleDuplicate,
	},
		transcript.WithArbiterLogger(a.logger),
		transcript.WithArbiterClock(a.now),
		transcript.WithMixerState(a.mixerRunning),
	)

	return a, nil
}

func (a *App) mixerRunning() bool {
	return a.mix != nil && a.mix.Running()
}

// ─── Transcription lifecycle ─────────────────────────────────────────────────

// StartTranscription opens both capture streams, spawns one STT session per
// source, and begins a new persisted session. Returns the new session ID.
func (a *App) StartTranscription(ctx context.Context, title string) (string, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return "", errors.New("app: transcription already running")
	}

	id, err := a.sessions.StartNewSession(title)
	if err != nil {
		a.mu.Unlock()
		return "", err
	}
	a.chat.Reset()
	a.insights.Reset()
	a.summaryLog = nil

	if a.mix != nil && !a.mix.Running() {
		if err := a.mix.Start(); err != nil {
			a.mu.Unlock()
			return "", fmt.Errorf("app: start mixer: %w", err)
		}
	}

	cfg := a.streamConfig()
	var feeds [2]*sourceFeed
	g, gctx := errgroup.WithContext(ctx)
	for i, source := range []types.Source{types.SourceMic, types.SourceSystem} {
		g.Go(func() error {
			feed, err := a.openSource(gctx, source, cfg)
			if err != nil {
				return err
			}
			feeds[i] = feed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Feed teardown waits on the STT pumps, whose callbacks take a.mu,
		// so the lock must be released first.
		a.mu.Unlock()
		for _, feed := range feeds {
			if feed != nil {
				feed.stop()
			}
		}
		if _, endErr := a.sessions.EndCurrentSession(ctx); endErr != nil {
			a.logger.Warn("session cleanup failed", "error", endErr)
		}
		return "", err
	}
	a.sources = feeds[:]

	a.running = true
	a.lastSpeech = a.now()
	if a.cfg.EnableAutoPause {
		a.stopMonitor = make(chan struct{})
		go a.monitorSilence(a.stopMonitor)
	}
	a.mu.Unlock()

	if err := a.tlog.LogEvent("Transcription started"); err != nil {
		a.logger.Warn("event log write failed", "error", err)
	}
	a.metrics.ActiveSessions.Add(ctx, 1)
	a.logger.Info("transcription started", "session", id)
	return id, nil
}

// StopTranscription is the reverse of StartTranscription: it tears down the
// capture feeds and STT sessions, flushes any pending interim for display,
// finalises the persisted session, and returns the summary JSON path.
func (a *App) StopTranscription(ctx context.Context) (string, error) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return "", errors.New("app: transcription not running")
	}
	a.running = false
	if a.stopMonitor != nil {
		close(a.stopMonitor)
		a.stopMonitor = nil
	}
	feeds := a.sources
	a.sources = nil
	interims := a.lastInterim
	a.lastInterim = make(map[types.Source]types.Utterance)
	a.mu.Unlock()

	for _, feed := range feeds {
		feed.stop()
	}

	a.disableTranslationFeatures()

	// Un-finalised speech is surfaced once for display; it is never
	// persisted or arbitrated.
	if a.events.OnInterim != nil {
		for _, u := range interims {
			if strings.TrimSpace(u.Text) != "" {
				a.events.OnInterim(u)
			}
		}
	}

	if a.mix != nil {
		if err := a.mix.Stop(); err != nil {
			a.recordWarning(fmt.Errorf("app: stop mixer: %w", err))
		}
	}

	if err := a.tlog.LogEvent("Transcription stopped"); err != nil {
		a.logger.Warn("event log write failed", "error", err)
	}
	a.metrics.ActiveSessions.Add(ctx, -1)

	path, err := a.sessions.EndCurrentSession(ctx)
	if err != nil {
		return "", err
	}
	a.logger.Info("transcription stopped", "summary", path)
	return path, nil
}

// Running reports whether transcription is active.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Status returns the live session statistics snapshot.
func (a *App) Status() (session.Status, bool) {
	return a.sessions.Status()
}

func (a *App) streamConfig() stt.StreamConfig {
	cfg := stt.StreamConfig{
		SampleRate:  sttSampleRate,
		Channels:    1,
		Diarization: a.cfg.EnableDiarization,
		MinSpeakers: a.cfg.MinSpeakers,
		MaxSpeakers: a.cfg.MaxSpeakers,
	}
	if a.cfg.AutoDetect() {
		cfg.CandidateLanguages = a.cfg.CandidateLanguages
	} else {
		cfg.Language = a.cfg.SpeechLanguage
	}
	return cfg
}

func (a *App) openSource(ctx context.Context, source types.Source, cfg stt.StreamConfig) (*sourceFeed, error) {
	capture, err := a.captures(source, sttSampleRate)
	if err != nil {
		return nil, fmt.Errorf("app: open %s capture: %w", source, err)
	}
	sess, err := transcript.StartSession(ctx, a.sttProvider, source, cfg, transcript.SessionEvents{
		OnFinal:   a.handleFinal,
		OnInterim: a.handleInterim,
		OnLanguage: func(language string) {
			a.handleLanguage(source, language)
		},
	},
		transcript.WithSessionLogger(a.logger),
		transcript.WithSessionClock(a.now),
	)
	if err != nil {
		capture.Close()
		return nil, err
	}
	feed := &sourceFeed{source: source, capture: capture, session: sess, done: make(chan struct{})}
	go feed.run(a.logger)
	return feed, nil
}

// run pumps capture audio into the STT session until the capture stream is
// closed.
func (f *sourceFeed) run(logger *slog.Logger) {
	defer close(f.done)
	buf := make([]byte, feedChunkBytes)
	for {
		n, err := f.capture.Read(buf)
		if n > 0 {
			if pushErr := f.session.PushPCM(buf[:n]); pushErr != nil {
				logger.Warn("audio push failed", "source", f.source, "error", pushErr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("capture read failed", "source", f.source, "error", err)
			}
			return
		}
	}
}

// stop closes the capture (ending the feed goroutine), waits for it, then
// closes the STT session so pending results drain.
func (f *sourceFeed) stop() {
	f.capture.Close()
	<-f.done
	f.session.Close()
}

// ─── Pipeline callbacks ──────────────────────────────────────────────────────

func (a *App) handleFinal(u types.Utterance) {
	a.mu.Lock()
	a.lastSpeech = a.now()
	delete(a.lastInterim, u.Source)
	a.mu.Unlock()
	a.arbiter.Process(u)
}

func (a *App) handleInterim(u types.Utterance) {
	a.mu.Lock()
	a.lastSpeech = a.now()
	a.lastInterim[u.Source] = u
	a.mu.Unlock()
	if a.events.OnInterim != nil {
		a.events.OnInterim(u)
	}
}

func (a *App) handleLanguage(source types.Source, language string) {
	if err := a.tlog.LogLanguageChange(source, language); err != nil {
		a.logger.Warn("event log write failed", "error", err)
	}
	if a.events.OnLanguage != nil {
		a.events.OnLanguage(source, language)
	}
}

// handleUtterance is the arbiter's transcript sink: it persists, counts, and
// forwards every surviving utterance.
func (a *App) handleUtterance(u types.Utterance) {
	a.sessions.AddTranscripts(1)
	if err := a.tlog.LogUtterance(u); err != nil {
		a.logger.Warn("conversation log write failed", "error", err)
	}
	ctx := context.Background()
	a.metrics.RecordUtterance(ctx, string(u.Source))
	if u.Source == types.SourceTTS {
		a.metrics.TTSEchoes.Add(ctx, 1)
	} else {
		a.appendSummaryLog(u)
	}
	if a.events.OnUtterance != nil {
		a.events.OnUtterance(u)
	}
}

func (a *App) handleDuplicate(u types.Utterance) {
	a.metrics.DuplicatesSuppressed.Add(context.Background(), 1)
	a.logger.Debug("duplicate suppressed", "source", u.Source, "speaker", u.Speaker)
}

func (a *App) enqueueTranslation(u types.Utterance) bool {
	a.mu.Lock()
	t := a.translator
	a.mu.Unlock()
	if t == nil {
		return false
	}
	if !t.Enqueue(u) {
		a.metrics.TranslationDrops.Add(context.Background(), 1)
		a.logger.Warn("translation queue full, dropping", "source", u.Source)
		return false
	}
	return true
}

// ─── Translation features ────────────────────────────────────────────────────

// EnableTextTranslation switches on translation of arbitrated utterances
// into lang for display.
func (a *App) EnableTextTranslation(lang string) error {
	if strings.TrimSpace(lang) == "" {
		return errors.New("app: translation language is required")
	}
	a.mu.Lock()
	a.textLang = lang
	a.mu.Unlock()
	if err := a.startTranslator(); err != nil {
		return err
	}
	a.arbiter.SetTranslationEnabled(true)
	a.logger.Info("text translation enabled", "language", lang)
	return nil
}

// DisableTextTranslation switches off display translation. The TTS-to-mic
// feature, if active, keeps its own translation flow.
func (a *App) DisableTextTranslation() {
	a.mu.Lock()
	a.textLang = ""
	ttsActive := a.ttsToMic
	var old *transcript.Translator
	if !ttsActive {
		old = a.translator
		a.translator = nil
	}
	a.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	if !ttsActive {
		a.arbiter.SetTranslationEnabled(false)
	}
	a.logger.Info("text translation disabled")
}

// EnableTTSToMic switches on speaking translations into the virtual
// microphone. Requires the mixer to be running. The set of texts seen so
// far is frozen so that pre-existing speech is never re-translated, and any
// pending translation queue is discarded.
func (a *App) EnableTTSToMic(lang string) error {
	if a.controller == nil {
		return errors.New("app: speech synthesis is not configured")
	}
	if !a.mixerRunning() {
		return errors.New("app: mixer must be running for TTS-to-mic")
	}
	if err := a.controller.SetLanguage(lang); err != nil {
		return err
	}

	// Replacing the worker discards any queued translations from before the
	// feature flip.
	a.replaceTranslator(nil)
	if err := a.startTranslator(); err != nil {
		return err
	}

	a.arbiter.EnableTTSEcho()
	a.arbiter.SetTranslationEnabled(true)
	a.mu.Lock()
	a.ttsToMic = true
	a.mu.Unlock()
	a.logger.Info("TTS-to-mic enabled", "language", lang)
	return nil
}

// DisableTTSToMic stops playback, clears buffered and queued audio and
// translations, and disarms echo reclassification.
func (a *App) DisableTTSToMic() {
	if a.controller != nil {
		a.controller.Stop()
		a.controller.ClearBuffer()
	}
	if a.mix != nil {
		a.mix.ClearTTS()
	}

	a.mu.Lock()
	if !a.ttsToMic {
		a.mu.Unlock()
		return
	}
	a.ttsToMic = false
	textLang := a.textLang
	a.mu.Unlock()

	a.arbiter.DisableTTSEcho()
	a.replaceTranslator(nil)
	if textLang != "" {
		if err := a.startTranslator(); err != nil {
			a.logger.Warn("translator restart failed", "error", err)
		}
	} else {
		a.arbiter.SetTranslationEnabled(false)
	}
	a.logger.Info("TTS-to-mic disabled")
}

// Speak plays the buffered translation into the virtual microphone.
func (a *App) Speak() error {
	if a.controller == nil {
		return errors.New("app: speech synthesis is not configured")
	}
	return a.controller.Speak()
}

// StopSpeaking cancels active playback.
func (a *App) StopSpeaking() {
	if a.controller != nil {
		a.controller.Stop()
	}
}

// SetTTSLanguage changes the synthesis voice target.
func (a *App) SetTTSLanguage(lang string) error {
	if a.controller == nil {
		return errors.New("app: speech synthesis is not configured")
	}
	return a.controller.SetLanguage(lang)
}

// TTSState returns the current translation-speech state, or idle when the
// feature is not configured.
func (a *App) TTSState() tts.State {
	if a.controller == nil {
		return tts.StateIdle
	}
	return a.controller.State()
}

// disableTranslationFeatures tears down both translation flows on stop.
func (a *App) disableTranslationFeatures() {
	if a.controller != nil {
		a.controller.Stop()
		a.controller.ClearBuffer()
	}
	a.mu.Lock()
	a.ttsToMic = false
	a.textLang = ""
	a.mu.Unlock()
	a.arbiter.DisableTTSEcho()
	a.arbiter.SetTranslationEnabled(false)
	a.replaceTranslator(nil)
}

// startTranslator creates and starts a fresh translation worker unless one
// is already installed. Must not be called with a.mu held: the worker's
// delivery callback takes that lock.
func (a *App) startTranslator() error {
	a.mu.Lock()
	exists := a.translator != nil
	a.mu.Unlock()
	if exists {
		return nil
	}
	t, err := transcript.NewTranslator(a.translationLLM, a.translationTarget, a.handleTranslated,
		transcript.WithTranslatorLogger(a.logger),
		transcript.WithWarningHandler(a.recordWarning),
	)
	if err != nil {
		return fmt.Errorf("app: translator: %w", err)
	}
	a.replaceTranslator(t)
	t.Start()
	return nil
}

// replaceTranslator swaps the translation worker and stops the previous one
// outside a.mu. The old worker may be mid-delivery and blocked on that lock,
// so stopping it while holding a.mu would deadlock. Any queued items on the
// old worker are dropped.
func (a *App) replaceTranslator(next *transcript.Translator) {
	a.mu.Lock()
	old := a.translator
	a.translator = next
	a.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

// translationTarget resolves the language translations are produced in: the
// text-translation language when set, otherwise the TTS voice language.
func (a *App) translationTarget() string {
	a.mu.Lock()
	lang := a.textLang
	a.mu.Unlock()
	if lang != "" {
		return lang
	}
	if a.controller != nil {
		code := a.controller.Language()
		if name, ok := a.voices.LanguageName(code); ok {
			return name
		}
		return code
	}
	return ""
}

func (a *App) handleTranslated(original types.Utterance, translated string) {
	if a.events.OnTranslation != nil {
		a.events.OnTranslation(original, translated)
	}
	a.mu.Lock()
	speak := a.ttsToMic
	a.mu.Unlock()
	if speak && a.controller != nil {
		if err := a.controller.AddTranslation(context.Background(), translated); err != nil {
			a.recordWarning(fmt.Errorf("app: buffer translation: %w", err))
		}
	}
}

// handleTTSState forwards controller transitions and speaks buffered audio
// automatically while TTS-to-mic is on.
func (a *App) handleTTSState(old, new tts.State) {
	if a.events.OnTTSState != nil {
		a.events.OnTTSState(old, new)
	}
	if new != tts.StateReady {
		return
	}
	a.mu.Lock()
	speak := a.ttsToMic
	a.mu.Unlock()
	if speak {
		go func() {
			if err := a.controller.Speak(); err != nil {
				a.recordWarning(fmt.Errorf("app: auto speak: %w", err))
			}
		}()
	}
}

// ─── Chat ────────────────────────────────────────────────────────────────────

// Ask answers a private question about the meeting. Question types are the
// canned chat.Type* constants or chat.TypeCustom with questionText set.
func (a *App) Ask(ctx context.Context, qt chat.QuestionType, questionText string) (string, error) {
	return a.chat.Ask(ctx, qt, questionText)
}

// ClearChatMemory drops the conversational chat memory.
func (a *App) ClearChatMemory() {
	a.chat.ClearMemory()
}

// ChatHistory returns the persisted private chat history for the current
// session.
func (a *App) ChatHistory() (string, error) {
	return a.chat.LoadHistory()
}

// ─── Warnings ────────────────────────────────────────────────────────────────

// recordWarning accumulates a non-fatal pipeline error.
func (a *App) recordWarning(err error) {
	a.warnMu.Lock()
	a.warnCount++
	a.warnLast = err
	a.warnMu.Unlock()
	a.logger.Warn("pipeline warning", "error", err)
	if a.events.OnWarning != nil {
		a.events.OnWarning(err)
	}
}

// Warnings returns the accumulated warning count and the most recent
// warning.
func (a *App) Warnings() (int, error) {
	a.warnMu.Lock()
	defer a.warnMu.Unlock()
	return a.warnCount, a.warnLast
}

// ClearWarnings resets the warning accumulator.
func (a *App) ClearWarnings() {
	a.warnMu.Lock()
	a.warnCount = 0
	a.warnLast = nil
	a.warnMu.Unlock()
}

// ─── Auto-pause & summary ────────────────────────────────────────────────────

// monitorSilence stops transcription after the configured stretch without
// any recognised speech.
func (a *App) monitorSilence(stop <-chan struct{}) {
	ticker := time.NewTicker(a.pauseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.mu.Lock()
			idle := a.now().Sub(a.lastSpeech)
			running := a.running
			a.mu.Unlock()
			if !running {
				return
			}
			if idle >= a.cfg.AutoPauseSilence {
				a.logger.Info("auto-pausing after silence", "idle", idle)
				if err := a.tlog.LogEvent("Auto-paused after prolonged silence"); err != nil {
					a.logger.Warn("event log write failed", "error", err)
				}
				if _, err := a.StopTranscription(context.Background()); err != nil {
					a.logger.Warn("auto-pause stop failed", "error", err)
				}
				return
			}
		}
	}
}

// appendSummaryLog keeps a bounded transcript tail for the end-of-meeting
// summary prompt.
func (a *App) appendSummaryLog(u types.Utterance) {
	line := fmt.Sprintf("[%s] %s: %s", u.Timestamp.Format("15:04:05"), u.Speaker, u.Text)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summaryLog = append(a.summaryLog, line)
	total := 0
	for i := len(a.summaryLog) - 1; i >= 0; i-- {
		total += len(a.summaryLog[i]) + 1
		if total > summaryContextChars {
			a.summaryLog = append([]string(nil), a.summaryLog[i+1:]...)
			break
		}
	}
}

// meetingSummary asks the LLM for a closing summary paragraph over the
// transcript tail. Used by the session manager when finalising a session.
func (a *App) meetingSummary(ctx context.Context) (string, error) {
	a.mu.Lock()
	tail := strings.Join(a.summaryLog, "\n")
	a.mu.Unlock()
	if strings.TrimSpace(tail) == "" {
		return "", errors.New("app: no transcript to summarise")
	}
	resp, err := a.chatLLM.Complete(ctx, llm.Request{
		SystemPrompt: "You are a meeting assistant. Write a concise single-paragraph summary " +
			"of the meeting transcript you are given. Mention the main topics and outcomes only.",
		Messages:    []llm.Message{{Role: "user", Content: tail}},
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
