// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// An STT provider wraps a real-time transcription service and exposes a
// uniform streaming interface. The central abstraction is SessionHandle:
// once opened, a session accepts raw PCM audio frames and emits two streams
// of Transcript values, low-latency partials for on-screen feedback and
// authoritative finals for the transcript pipeline, plus a side channel of
// detected-language changes when auto-detection is active.
//
// Implementations must be safe for concurrent use. Audio input and
// transcript output channels are goroutine-safe by construction.
package stt

import (
	"context"

	"github.com/clever-foxes/meetfox/pkg/types"
)

// StreamConfig describes the audio format and recognition settings for a new
// STT session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Meetfox always streams
	// 16000 Hz mono to the recogniser.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g. "en-US").
	// Ignored when CandidateLanguages is non-empty.
	Language string

	// CandidateLanguages enables continuous language auto-detection over the
	// given candidate set. Detected switches are reported on the session's
	// LanguageChanges channel.
	CandidateLanguages []string

	// Diarization requests speaker separation. Providers label speakers with
	// raw IDs such as "Guest-1" on each Transcript.
	Diarization bool

	// MinSpeakers and MaxSpeakers hint the expected speaker count range when
	// diarization is active. Zero means provider default.
	MinSpeakers int
	MaxSpeakers int
}

// SessionHandle represents an open STT streaming session. It is an interface
// so that test code can provide mock implementations without a live
// provider connection.
//
// Callers must call Close when the session is no longer needed. Failing to
// do so may leak goroutines and network connections inside the provider
// implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes for transcription.
	// The chunk must match the SampleRate, Channels, and 16-bit depth agreed
	// in StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel emitting low-latency interim
	// Transcript values. These drive on-screen feedback and must not be
	// written to the transcript log. Closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals returns a read-only channel emitting authoritative Transcript
	// values. Closed when the session ends.
	Finals() <-chan types.Transcript

	// LanguageChanges returns a read-only channel emitting the BCP-47 tag of
	// each newly detected spoken language when auto-detection is active.
	// Closed when the session ends.
	LanguageChanges() <-chan string

	// Close terminates the session, flushes pending audio, and releases all
	// associated resources. After Close returns the output channels are
	// closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously (Meetfox runs one per audio source).
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session. The
	// caller owns the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
