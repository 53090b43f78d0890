package transcript

import (
	"log/slog"
	"sync"
	"time"

	"github.com/clever-foxes/meetfox/pkg/types"
)

const (
	// crossSourceWindow is how far back the arbiter looks when deciding
	// whether a MIC final is an echo of a SYSTEM final or vice versa. Echoes
	// through the virtual cable arrive well inside this window.
	crossSourceWindow = 3 * time.Second

	// ledgerWindow is how long normalized finals stay in the per-source
	// ledgers before pruning.
	ledgerWindow = 10 * time.Second

	// queuedWindow is how long a queued-for-translation marker protects a
	// text from TTS-echo reclassification. System echoes of original speech
	// can trail the final by well over the cross-source window.
	queuedWindow = 30 * time.Second
)

// Sinks are the downstream consumers of arbitrated utterances. Transcript is
// required; the rest are optional. Translate reports whether the utterance
// was accepted by the translation queue; returning false counts as a drop.
type Sinks struct {
	// Transcript receives every utterance that survives arbitration,
	// including TTS-reclassified ones.
	Transcript func(types.Utterance)

	// Translate receives utterances eligible for translation.
	Translate func(types.Utterance) bool

	// Insight receives every non-TTS utterance.
	Insight func(types.Utterance)

	// Memory receives every utterance for conversational memory.
	Memory func(types.Utterance)

	// Duplicate is notified when a cross-source echo is suppressed.
	Duplicate func(types.Utterance)
}

// ArbiterOption configures an Arbiter.
type ArbiterOption func(*Arbiter)

// WithArbiterClock overrides the wall clock, for tests.
func WithArbiterClock(now func() time.Time) ArbiterOption {
	return func(a *Arbiter) {
		a.now = now
	}
}

// WithArbiterLogger sets the logger.
func WithArbiterLogger(logger *slog.Logger) ArbiterOption {
	return func(a *Arbiter) {
		a.logger = logger
	}
}

// WithMixerState tells the arbiter whether the continuous mixer is relaying
// the microphone into the virtual output. Cross-source echo suppression only
// applies while it is, since the cable is the only path that produces echoes.
func WithMixerState(running func() bool) ArbiterOption {
	return func(a *Arbiter) {
		a.mixerRunning = running
	}
}

type ledgerEntry struct {
	norm string
	at   time.Time
}

// Arbiter is the convergence point for finals from both STT sessions. It
// suppresses cross-source echoes, maintains the per-source ledgers,
// reclassifies system captures of our own synthesised speech, and fans the
// surviving utterances out to the configured sinks.
//
// Process calls are serialized by an internal mutex; within one arbiter,
// utterances are handled strictly in arrival order.
type Arbiter struct {
	sinks        Sinks
	logger       *slog.Logger
	now          func() time.Time
	mixerRunning func() bool

	mu     sync.Mutex
	mic    []ledgerEntry
	system []ledgerEntry

	translationEnabled bool

	// TTS-echo state. seenBeforeTTS is frozen at the moment TTS-to-mic is
	// enabled and gates re-translation only; queued maps normalized texts
	// recently submitted for translation to their submission time, with
	// entries aged out after queuedWindow.
	ttsEnabled    bool
	seenBeforeTTS map[string]struct{}
	queued        map[string]time.Time
}

// NewArbiter returns an Arbiter fanning out to sinks.
func NewArbiter(sinks Sinks, opts ...ArbiterOption) *Arbiter {
	a := &Arbiter{
		sinks:  sinks,
		logger: slog.Default(),
		now:    time.Now,
		queued: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetTranslationEnabled toggles translation candidacy for subsequent
// utterances.
func (a *Arbiter) SetTranslationEnabled(enabled bool) {
	a.mu.Lock()
	a.translationEnabled = enabled
	a.mu.Unlock()
}

// EnableTTSEcho arms TTS-echo reclassification. The set of texts seen so far
// (both ledgers plus anything still queued for translation) is frozen at this
// moment; pre-existing speech is never re-translated.
func (a *Arbiter) EnableTTSEcho() {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := make(map[string]struct{}, len(a.mic)+len(a.system)+len(a.queued))
	for _, e := range a.mic {
		seen[e.norm] = struct{}{}
	}
	for _, e := range a.system {
		seen[e.norm] = struct{}{}
	}
	for norm := range a.queued {
		seen[norm] = struct{}{}
	}
	a.seenBeforeTTS = seen
	a.ttsEnabled = true
}

// DisableTTSEcho disarms TTS-echo reclassification and discards the frozen
// seen set.
func (a *Arbiter) DisableTTSEcho() {
	a.mu.Lock()
	a.ttsEnabled = false
	a.seenBeforeTTS = nil
	a.mu.Unlock()
}

// Process arbitrates one final utterance from an STT session and fans it out.
func (a *Arbiter) Process(u types.Utterance) {
	norm := normalizeText(u.Text)
	if norm == "" {
		return
	}

	a.mu.Lock()
	now := a.now()
	a.prune(now)

	if a.mixerRunning != nil && a.mixerRunning() && a.isCrossSourceEcho(u.Source, norm, now) {
		a.mu.Unlock()
		a.logger.Debug("suppressed cross-source echo", "source", u.Source, "speaker", u.Speaker)
		if a.sinks.Duplicate != nil {
			a.sinks.Duplicate(u)
		}
		return
	}

	switch u.Source {
	case types.SourceMic:
		a.mic = append(a.mic, ledgerEntry{norm: norm, at: now})
	case types.SourceSystem:
		a.system = append(a.system, ledgerEntry{norm: norm, at: now})
	}

	// A system capture whose text was not recently submitted for
	// translation is our own synthesised voice coming back through the
	// loopback.
	if u.Source == types.SourceSystem && a.ttsEnabled {
		if _, pending := a.queued[norm]; !pending {
			u.Source = types.SourceTTS
			u.Speaker = types.TranslatedSpeaker
		}
	}

	translate := a.translationEnabled && a.sinks.Translate != nil && u.Source != types.SourceTTS
	if translate && a.ttsEnabled {
		if _, seen := a.seenBeforeTTS[norm]; seen {
			translate = false
		}
	}
	if translate {
		a.queued[norm] = now
	}
	a.mu.Unlock()

	if a.sinks.Transcript != nil {
		a.sinks.Transcript(u)
	}
	if translate && !a.sinks.Translate(u) {
		a.logger.Debug("translation sink rejected utterance", "source", u.Source)
	}
	if u.Source != types.SourceTTS && a.sinks.Insight != nil {
		a.sinks.Insight(u)
	}
	if a.sinks.Memory != nil {
		a.sinks.Memory(u)
	}
}

// isCrossSourceEcho reports whether norm appeared on the opposite source
// within the echo window. Caller holds a.mu.
func (a *Arbiter) isCrossSourceEcho(source types.Source, norm string, now time.Time) bool {
	var other []ledgerEntry
	switch source {
	case types.SourceMic:
		other = a.system
	case types.SourceSystem:
		other = a.mic
	default:
		return false
	}
	for i := len(other) - 1; i >= 0; i-- {
		if now.Sub(other[i].at) > crossSourceWindow {
			break
		}
		if other[i].norm == norm {
			return true
		}
	}
	return false
}

// prune drops ledger entries and queued-for-translation markers older than
// their retention windows. Caller holds a.mu.
func (a *Arbiter) prune(now time.Time) {
	a.mic = pruneLedger(a.mic, now)
	a.system = pruneLedger(a.system, now)
	for norm, at := range a.queued {
		if now.Sub(at) > queuedWindow {
			delete(a.queued, norm)
		}
	}
}

func pruneLedger(entries []ledgerEntry, now time.Time) []ledgerEntry {
	cut := 0
	for cut < len(entries) && now.Sub(entries[cut].at) > ledgerWindow {
		cut++
	}
	if cut == 0 {
		return entries
	}
	return append(entries[:0], entries[cut:]...)
}
