// Package types defines the shared types used across all Meetfox packages.
//
// These types form the lingua franca between the audio layer, the STT
// providers, and the transcript/insight pipeline. They are intentionally
// minimal: each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// Source identifies where a transcription originated.
type Source string

const (
	// SourceMic is speech captured from the physical microphone.
	SourceMic Source = "MIC"

	// SourceSystem is speech captured from system playback via the loopback
	// input of a virtual audio device.
	SourceSystem Source = "SYSTEM"

	// SourceTTS marks a system capture that was classified as an echo of our
	// own synthesised speech.
	SourceTTS Source = "TTS"
)

// TranslatedSpeaker is the display label assigned to utterances reclassified
// as TTS echo.
const TranslatedSpeaker = "🌍 Translated"

// Transcript represents a speech-to-text result from an STT provider.
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// SpeakerID identifies the speaker when diarization is active, using the
	// provider's raw label (e.g. "Guest-1").
	SpeakerID string

	// Language is the BCP-47 tag detected for this result, when the provider
	// runs language identification.
	Language string
}

// Utterance is a finalised piece of recognised speech after source
// attribution. It is the unit that flows through the transcript arbiter.
type Utterance struct {
	// Text is the recognised text, already punctuated by the provider.
	Text string

	// Source is the attributed origin.
	Source Source

	// Speaker is the display label, e.g. "Speaker 1".
	Speaker string

	// Timestamp is the local wall-clock time the utterance was finalised.
	Timestamp time.Time
}

// InsightKind classifies a meeting insight.
type InsightKind string

const (
	InsightQuestion   InsightKind = "question"
	InsightKeyPoint   InsightKind = "key_point"
	InsightActionItem InsightKind = "action_item"
	InsightDecision   InsightKind = "decision"
)

// Insight is a single extracted meeting observation.
type Insight struct {
	// Timestamp is when the insight was extracted.
	Timestamp time.Time `json:"timestamp"`

	// Kind is the insight category.
	Kind InsightKind `json:"type"`

	// Content is the insight text.
	Content string `json:"content"`

	// Source names the component that produced the insight.
	Source string `json:"source"`

	// Confidence is the extraction confidence in [0, 1].
	Confidence float64 `json:"confidence"`
}
