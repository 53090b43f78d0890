// Package transcript implements the live transcription pipeline between the
// STT providers and the rest of Meetfox: per-source session wrappers, the
// arbiter that attributes and deduplicates utterances from the microphone
// and system-audio sources, and the translation worker.
package transcript

import "strings"

// normalizeText canonicalises recognised text for equality comparison
// between sources: lowercase, trimmed, with spaces, periods, and commas
// removed. Recognisers frequently disagree on exactly this punctuation for
// the same speech.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r := strings.NewReplacer(" ", "", ".", "", ",", "")
	return r.Replace(s)
}
