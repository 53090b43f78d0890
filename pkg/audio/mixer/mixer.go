// Package mixer implements the continuous microphone-to-virtual-output
// relay at the heart of Meetfox.
//
// The mixer runs one real-time loop: it reads fixed-size mono chunks from
// the microphone source, widens them to stereo, blends in any queued
// synthesised speech, and writes the result to the virtual output sink.
// Because the loop never stops while the mixer runs, remote meeting peers
// hear the local speaker continuously and synthesised translations are
// overlaid on top rather than replacing the voice.
//
// Source and Sink are narrow interfaces so the mixing semantics can be
// exercised in tests without touching real devices; the audio package
// provides the device-backed implementations.
package mixer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clever-foxes/meetfox/pkg/audio"
)

const (
	// SampleRate is the fixed mixer rate in Hz.
	SampleRate = 48000

	// ChunkFrames is the number of mono frames read from the source per
	// loop iteration (~21 ms at 48 kHz).
	ChunkFrames = 1024

	// errorBackoff is how long the loop sleeps after a source or sink
	// error before retrying.
	errorBackoff = 10 * time.Millisecond

	// stopTimeout bounds how long Stop waits for the loop goroutine.
	stopTimeout = 2 * time.Second
)

// Source delivers mono int16 PCM at [SampleRate]. Read must block until the
// buffer is filled, pacing the loop at real time.
type Source interface {
	Read(p []byte) (int, error)
}

// Sink accepts stereo int16 PCM at [SampleRate].
type Sink interface {
	Write(p []byte) (int, error)
}

// Mixer relays microphone audio to a virtual output while mixing in queued
// TTS audio. All methods are safe for concurrent use.
type Mixer struct {
	src Source
	out Sink

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	mu        sync.Mutex
	ttsQueue  []byte
	ttsActive bool
}

// New creates a Mixer relaying src to out. Neither may be nil.
func New(src Source, out Sink) *Mixer {
	return &Mixer{src: src, out: out}
}

// Start launches the mixing loop. Returns an error if the mixer is already
// running.
func (m *Mixer) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("mixer: already running")
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop()
	slog.Info("mixer started", "sample_rate", SampleRate, "chunk_frames", ChunkFrames)
	return nil
}

// Stop terminates the loop and waits for it to exit. Returns an error if the
// loop does not stop within two seconds; the mixer is still marked stopped.
func (m *Mixer) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return nil
	}
	close(m.stop)
	select {
	case <-m.done:
	case <-time.After(stopTimeout):
		return fmt.Errorf("mixer: loop did not exit within %s", stopTimeout)
	}
	slog.Info("mixer stopped")
	return nil
}

// Running reports whether the mixing loop is active.
func (m *Mixer) Running() bool {
	return m.running.Load()
}

// QueueTTS appends stereo 48 kHz PCM to the synthesis queue. The audio is
// blended into the live microphone relay over the following loop iterations.
// Returns an error when the mixer is not running, since queued audio would
// never drain.
func (m *Mixer) QueueTTS(stereoPCM []byte) error {
	if !m.running.Load() {
		return errors.New("mixer: not running")
	}
	if len(stereoPCM) == 0 {
		return nil
	}
	m.mu.Lock()
	m.ttsQueue = append(m.ttsQueue, stereoPCM...)
	m.ttsActive = true
	m.mu.Unlock()
	return nil
}

// TTSActive reports whether queued synthesis audio is still being played
// out. It flips to false exactly once per queued utterance, when the last
// chunk has been consumed by the loop.
func (m *Mixer) TTSActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttsActive
}

// ClearTTS drops any queued synthesis audio and resets the active flag.
// Used when playback is cancelled mid-utterance.
func (m *Mixer) ClearTTS() {
	m.mu.Lock()
	m.ttsQueue = nil
	m.ttsActive = false
	m.mu.Unlock()
}

// takeTTS pops up to n bytes from the queue, zero-padding a partial tail
// chunk so it can be mixed against a full microphone chunk. Returns nil when
// the queue is empty. Clears the active flag when the pop empties the queue.
func (m *Mixer) takeTTS(n int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ttsQueue) == 0 {
		return nil
	}
	chunk := make([]byte, n)
	c := copy(chunk, m.ttsQueue)
	m.ttsQueue = m.ttsQueue[c:]
	if len(m.ttsQueue) == 0 {
		m.ttsQueue = nil
		m.ttsActive = false
	}
	return chunk
}

// loop is the real-time relay. Source and sink errors are logged and
// retried after a short sleep; the loop only exits on Stop.
func (m *Mixer) loop() {
	defer close(m.done)

	mono := make([]byte, ChunkFrames*2)
	for {
		select {
		case <-m.stop:
			return
		default:
		}

		n, err := m.src.Read(mono)
		if err != nil {
			slog.Warn("mixer: source read failed", "err", err)
			if !m.sleepOrStop() {
				return
			}
			continue
		}

		stereo := audio.MonoToStereo(mono[:n])
		if tts := m.takeTTS(len(stereo)); tts != nil {
			stereo = audio.MixAverage16(stereo, tts)
		}

		if _, err := m.out.Write(stereo); err != nil {
			slog.Warn("mixer: sink write failed", "err", err)
			if !m.sleepOrStop() {
				return
			}
		}
	}
}

// sleepOrStop pauses for the error backoff. Returns false if Stop was
// requested during the pause.
func (m *Mixer) sleepOrStop() bool {
	select {
	case <-m.stop:
		return false
	case <-time.After(errorBackoff):
		return true
	}
}
