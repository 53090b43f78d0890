// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns a text string into raw PCM speech audio. Meetfox
// requests 16 kHz 16-bit mono PCM, which the audio layer upsamples to the
// 48 kHz stereo mixer format before playout.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given provider voice name and
	// returns 16 kHz 16-bit mono PCM audio.
	//
	// Returns an error if the voice is unknown, the service rejects the
	// request, or ctx is cancelled first.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
