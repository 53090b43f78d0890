package tts

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/clever-foxes/meetfox/pkg/audio"
	"github.com/clever-foxes/meetfox/pkg/audio/mixer"
)

const (
	// localChunkBytes is the write granularity for the local monitor sink,
	// small enough that Stop cuts playback quickly.
	localChunkBytes = 4096

	// defaultPollInterval is how often the router checks whether the mixer
	// has drained the queued audio.
	defaultPollInterval = 100 * time.Millisecond
)

// MonitorSink receives a local copy of the synthesised audio so the user
// hears what the remote side hears. Usually an audio.PlaybackStream on the
// default output device.
type MonitorSink interface {
	Write(p []byte) (int, error)
}

// Router pushes one synthesised utterance at a time into the running mixer,
// optionally mirroring it to a local monitor device, and reports completion
// or cancellation through callbacks.
//
// Only one utterance may be in flight; Play rejects overlapping requests.
type Router struct {
	mixer   *mixer.Mixer
	monitor MonitorSink
	poll    time.Duration

	mu      sync.Mutex
	playing bool
	stop    chan struct{}
}

// RouterOption is a functional option for the Router.
type RouterOption func(*Router)

// WithMonitor mirrors playback to a local sink.
func WithMonitor(sink MonitorSink) RouterOption {
	return func(r *Router) {
		r.monitor = sink
	}
}

// WithPollInterval overrides the drain-poll interval. Intended for tests.
func WithPollInterval(d time.Duration) RouterOption {
	return func(r *Router) {
		r.poll = d
	}
}

// NewRouter creates a Router feeding m.
func NewRouter(m *mixer.Mixer, opts ...RouterOption) *Router {
	r := &Router{
		mixer: m,
		poll:  defaultPollInterval,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Play converts monoPCM (16 kHz 16-bit mono) to the mixer format, queues it,
// and watches the mixer until the audio has fully played out. Exactly one of
// onComplete or onStopped is then called, from the router's watch goroutine.
//
// Returns an error without invoking callbacks when the mixer is not running
// or another utterance is still playing.
func (r *Router) Play(monoPCM []byte, onComplete, onStopped func()) error {
	if len(monoPCM) == 0 {
		return errors.New("tts: no audio to play")
	}
	if !r.mixer.Running() {
		return errors.New("tts: mixer is not running")
	}

	r.mu.Lock()
	if r.playing {
		r.mu.Unlock()
		return errors.New("tts: playback already in progress")
	}
	r.playing = true
	stop := make(chan struct{})
	r.stop = stop
	r.mu.Unlock()

	stereo := audio.MonoToStereo(audio.Upsample3x(monoPCM))
	if err := r.mixer.QueueTTS(stereo); err != nil {
		r.finish()
		return err
	}

	if r.monitor != nil {
		go r.mirror(stereo, stop)
	}
	go r.watch(stop, onComplete, onStopped)
	return nil
}

// Stop cancels the current playback, if any. The onStopped callback of the
// active Play call fires asynchronously.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.playing || r.stop == nil {
		return
	}
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

// Playing reports whether an utterance is currently in flight.
func (r *Router) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// mirror copies the stereo audio to the local monitor in small chunks so a
// Stop lands between writes.
func (r *Router) mirror(stereo []byte, stop <-chan struct{}) {
	for off := 0; off < len(stereo); off += localChunkBytes {
		select {
		case <-stop:
			return
		default:
		}
		end := min(off+localChunkBytes, len(stereo))
		if _, err := r.monitor.Write(stereo[off:end]); err != nil {
			slog.Warn("tts: monitor write failed", "err", err)
			return
		}
	}
}

// watch polls the mixer until the queued audio drains or Stop is called.
func (r *Router) watch(stop <-chan struct{}, onComplete, onStopped func()) {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			r.mixer.ClearTTS()
			r.finish()
			if onStopped != nil {
				onStopped()
			}
			return
		case <-ticker.C:
			if r.mixer.TTSActive() && r.mixer.Running() {
				continue
			}
			r.finish()
			if onComplete != nil {
				onComplete()
			}
			return
		}
	}
}

func (r *Router) finish() {
	r.mu.Lock()
	r.playing = false
	r.stop = nil
	r.mu.Unlock()
}
