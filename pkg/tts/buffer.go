package tts

import (
	"context"
	"strings"
	"sync"

	speech "github.com/clever-foxes/meetfox/pkg/provider/tts"
)

// Buffer holds at most one pre-generated utterance of synthesised speech.
//
// Generation runs in the background and is single-flight: a second request
// while one is in progress is rejected through the completion callback
// rather than queued. The stored audio is 16 kHz 16-bit mono PCM, the
// format the provider emits.
type Buffer struct {
	provider speech.Provider

	genMu sync.Mutex // held for the duration of one generation

	mu    sync.Mutex
	voice string
	audio []byte
}

// NewBuffer creates a Buffer backed by the given synthesis provider.
func NewBuffer(p speech.Provider) *Buffer {
	return &Buffer{provider: p}
}

// SetVoice selects the provider voice used for subsequent generations.
func (b *Buffer) SetVoice(name string) {
	b.mu.Lock()
	b.voice = name
	b.mu.Unlock()
}

// Voice returns the currently selected voice name.
func (b *Buffer) Voice() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voice
}

// GenerateAsync synthesises text into the buffer in the background and
// reports the outcome through done, which is always called exactly once
// (possibly synchronously for input validation failures). A successful
// generation replaces any previously buffered audio.
func (b *Buffer) GenerateAsync(ctx context.Context, text string, done func(ok bool, detail string)) {
	if done == nil {
		done = func(bool, string) {}
	}
	if strings.TrimSpace(text) == "" {
		done(false, "empty text")
		return
	}
	voice := b.Voice()
	if voice == "" {
		done(false, "no voice configured")
		return
	}
	if !b.genMu.TryLock() {
		done(false, "generation already in progress")
		return
	}

	go func() {
		defer b.genMu.Unlock()

		audio, err := b.provider.Synthesize(ctx, text, voice)
		if err != nil {
			done(false, err.Error())
			return
		}
		b.mu.Lock()
		b.audio = audio
		b.mu.Unlock()
		done(true, "")
	}()
}

// Has reports whether generated audio is buffered.
func (b *Buffer) Has() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.audio) > 0
}

// Audio returns a copy of the buffered audio, or nil when empty. The buffer
// keeps its content; call Clear after playback.
func (b *Buffer) Audio() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.audio) == 0 {
		return nil
	}
	return append([]byte(nil), b.audio...)
}

// Clear drops the buffered audio.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.audio = nil
	b.mu.Unlock()
}
