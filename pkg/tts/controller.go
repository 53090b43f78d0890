package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the translation-speech feature state. The zero value is
// StateIdle.
type State int

const (
	// StateIdle means nothing is buffered or playing.
	StateIdle State = iota

	// StateBuffering means a translation is being synthesised.
	StateBuffering

	// StateReady means synthesised audio is buffered and can be spoken.
	StateReady

	// StateSpeaking means buffered audio is playing into the mixer.
	StateSpeaking
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StateReady:
		return "ready"
	case StateSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateCallback observes controller state transitions. Callbacks run
// outside the controller lock, in the goroutine that caused the
// transition; they may call back into the controller.
type StateCallback func(old, new State)

// Controller drives the translation-to-speech feature: it owns the single
// state machine, feeds translations into the Buffer, and plays buffered
// audio through the Router.
//
// All methods are safe for concurrent use.
type Controller struct {
	buffer *Buffer
	router *Router
	table  *Table

	mu      sync.Mutex
	state   State
	onState StateCallback
	sexPref string
	lang    string
}

// ControllerOption is a functional option for the Controller.
type ControllerOption func(*Controller)

// WithStateCallback registers a transition observer.
func WithStateCallback(cb StateCallback) ControllerOption {
	return func(c *Controller) {
		c.onState = cb
	}
}

// WithVoicePreference sets the preferred voice sex ("female" or "male")
// used when resolving voices from the table.
func WithVoicePreference(sex string) ControllerOption {
	return func(c *Controller) {
		c.sexPref = sex
	}
}

// NewController creates a Controller over the given buffer, router, and
// voice table.
func NewController(buffer *Buffer, router *Router, table *Table, opts ...ControllerOption) *Controller {
	c := &Controller{
		buffer: buffer,
		router: router,
		table:  table,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetLanguage resolves a voice for the language (a BCP-47 code or a
// friendly name like "Russian") and selects it on the buffer. Buffered
// audio in the previous language is dropped.
func (c *Controller) SetLanguage(language string) error {
	code, ok := c.table.LanguageCode(language)
	if !ok {
		return fmt.Errorf("tts: unknown language %q", language)
	}
	c.mu.Lock()
	sexPref := c.sexPref
	c.lang = code
	c.mu.Unlock()

	voice, ok := c.table.VoiceFor(code, sexPref)
	if !ok {
		return fmt.Errorf("tts: no voice for language %q", code)
	}
	c.buffer.SetVoice(voice.Name)
	c.buffer.Clear()
	c.toIdleIfNotSpeaking()
	slog.Info("tts voice selected", "language", code, "voice", voice.Name)
	return nil
}

// Language returns the active language code, or "" when none is set.
func (c *Controller) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lang
}

// AddTranslation synthesises text into the buffer, moving the controller
// through buffering to ready. While audio is speaking or another
// generation is in flight the call is rejected.
func (c *Controller) AddTranslation(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.state == StateSpeaking {
		c.mu.Unlock()
		return errors.New("tts: cannot buffer while speaking")
	}
	c.mu.Unlock()

	c.setState(StateBuffering)
	errCh := make(chan error, 1)
	c.buffer.GenerateAsync(ctx, text, func(ok bool, detail string) {
		if !ok {
			c.setState(StateIdle)
			errCh <- errors.New(detail)
			return
		}
		c.setState(StateReady)
		errCh <- nil
	})

	// Input validation failures surface synchronously; generation errors
	// arrive later and are reflected purely through the state machine.
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// Speak plays the buffered audio into the mixer. Requires StateReady.
// The buffer is cleared and the state returns to idle when playback
// completes or is stopped.
func (c *Controller) Speak() error {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("tts: nothing ready to speak (state %s)", state)
	}
	c.mu.Unlock()

	audio := c.buffer.Audio()
	if audio == nil {
		c.setState(StateIdle)
		return errors.New("tts: buffer is empty")
	}

	c.setState(StateSpeaking)
	err := c.router.Play(audio,
		func() { // complete
			c.buffer.Clear()
			c.setState(StateIdle)
		},
		func() { // stopped
			c.buffer.Clear()
			c.setState(StateIdle)
		},
	)
	if err != nil {
		c.setState(StateReady)
		return err
	}
	return nil
}

// Stop halts active playback, drops any buffered audio, and returns the
// feature to idle from any state.
func (c *Controller) Stop() {
	c.router.Stop()
	c.buffer.Clear()
	c.toIdleIfNotSpeaking()
}

// ClearBuffer drops buffered audio and returns to idle unless speaking.
func (c *Controller) ClearBuffer() {
	c.buffer.Clear()
	c.toIdleIfNotSpeaking()
}

// State returns the current feature state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsReady reports whether buffered audio is ready to speak.
func (c *Controller) IsReady() bool { return c.State() == StateReady }

// IsSpeaking reports whether buffered audio is playing.
func (c *Controller) IsSpeaking() bool { return c.State() == StateSpeaking }

// setState transitions to next and fires the callback outside the lock.
func (c *Controller) setState(next State) {
	c.mu.Lock()
	old := c.state
	if old == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	cb := c.onState
	c.mu.Unlock()

	slog.Debug("tts state", "from", old.String(), "to", next.String())
	if cb != nil {
		cb(old, next)
	}
}

func (c *Controller) toIdleIfNotSpeaking() {
	c.mu.Lock()
	speaking := c.state == StateSpeaking
	c.mu.Unlock()
	if !speaking {
		c.setState(StateIdle)
	}
}
