package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/clever-foxes/meetfox/pkg/provider/stt"
	"github.com/clever-foxes/meetfox/pkg/types"
)

// SessionEvents are the callbacks a Session invokes as the recogniser emits
// results. Nil callbacks are skipped. All callbacks run on the session's
// internal pump goroutine, so they must not block for long.
type SessionEvents struct {
	// OnFinal receives each authoritative utterance after speaker relabelling
	// and consecutive-duplicate suppression.
	OnFinal func(types.Utterance)

	// OnInterim receives low-latency partial utterances for progressive
	// display. A later final for the same (source, speaker) supersedes any
	// pending interim.
	OnInterim func(types.Utterance)

	// OnLanguage receives the BCP-47 tag of each newly detected spoken
	// language when auto-detection is active.
	OnLanguage func(language string)
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the logger used by the session pump.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithSessionClock overrides the wall clock, for tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// Session wraps one streaming STT session for a single audio source. It pumps
// the provider's transcript channels, relabels diarization speakers for
// display, drops consecutive duplicate finals, and hands clean [types.Utterance]
// values to the registered callbacks.
type Session struct {
	source types.Source
	handle stt.SessionHandle
	events SessionEvents
	logger *slog.Logger
	now    func() time.Time

	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup

	// Consecutive-final suppression state, touched only by the pump.
	lastSpeaker string
	lastNorm    string
}

// StartSession opens a streaming recognition session on provider for the
// given source and begins pumping its results into events.
//
// The caller owns the returned Session and must call Close when capture for
// this source stops.
func StartSession(ctx context.Context, provider stt.Provider, source types.Source, cfg stt.StreamConfig, events SessionEvents, opts ...SessionOption) (*Session, error) {
	if provider == nil {
		return nil, fmt.Errorf("transcript: start session: provider is required")
	}
	handle, err := provider.StartStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("transcript: start %s session: %w", source, err)
	}
	s := &Session{
		source: source,
		handle: handle,
		events: events,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wg.Add(1)
	go s.pump()
	return s, nil
}

// Source returns the audio source this session transcribes.
func (s *Session) Source() types.Source {
	return s.source
}

// PushPCM forwards a chunk of raw PCM audio to the recogniser. It is safe to
// call from an audio capture callback.
func (s *Session) PushPCM(chunk []byte) error {
	if err := s.handle.SendAudio(chunk); err != nil {
		return fmt.Errorf("transcript: push audio: %w", err)
	}
	return nil
}

// Close terminates the underlying STT session and waits for the pump to
// drain. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.handle.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

func (s *Session) pump() {
	defer s.wg.Done()
	partials := s.handle.Partials()
	finals := s.handle.Finals()
	langs := s.handle.LanguageChanges()
	for partials != nil || finals != nil || langs != nil {
		select {
		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			s.handleFinal(tr)
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			s.handleInterim(tr)
		case lang, ok := <-langs:
			if !ok {
				langs = nil
				continue
			}
			s.logger.Info("detected language change", "source", s.source, "language", lang)
			if s.events.OnLanguage != nil {
				s.events.OnLanguage(lang)
			}
		}
	}
}

func (s *Session) handleFinal(tr types.Transcript) {
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return
	}
	speaker := displaySpeaker(tr.SpeakerID)
	norm := normalizeText(text)
	// Recognisers occasionally emit the same final twice in a row for the
	// same speaker; keep only the first.
	if speaker == s.lastSpeaker && norm == s.lastNorm {
		s.logger.Debug("dropped repeated final", "source", s.source, "speaker", speaker)
		return
	}
	s.lastSpeaker = speaker
	s.lastNorm = norm
	if s.events.OnFinal != nil {
		s.events.OnFinal(types.Utterance{
			Text:      text,
			Source:    s.source,
			Speaker:   speaker,
			Timestamp: s.now(),
		})
	}
}

func (s *Session) handleInterim(tr types.Transcript) {
	text := strings.TrimSpace(tr.Text)
	if text == "" || s.events.OnInterim == nil {
		return
	}
	s.events.OnInterim(types.Utterance{
		Text:      text,
		Source:    s.source,
		Speaker:   displaySpeaker(tr.SpeakerID),
		Timestamp: s.now(),
	})
}

// displaySpeaker converts a provider diarization label into the display form.
// Azure labels speakers "Guest-1", "Guest-2", ...; without diarization the
// label is empty.
func displaySpeaker(raw string) string {
	if raw == "" || strings.EqualFold(raw, "unknown") {
		return "Speaker 1"
	}
	if n, ok := strings.CutPrefix(raw, "Guest-"); ok {
		return "Speaker " + n
	}
	return raw
}
