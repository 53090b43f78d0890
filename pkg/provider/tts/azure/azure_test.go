package azure

import (
	"context"
	"strings"
	"testing"
)

func TestBuildSSMLEscapesText(t *testing.T) {
	t.Parallel()

	ssml := buildSSML("5 < 6 & 7 > 2", "en-US-JennyNeural")
	if strings.Contains(ssml, "<voice name='en-US-JennyNeural'>5 < 6") {
		t.Error("text was not escaped")
	}
	if !strings.Contains(ssml, "5 &lt; 6 &amp; 7 &gt; 2") {
		t.Errorf("unexpected body: %s", ssml)
	}
	if !strings.Contains(ssml, `xml:lang='en-US'`) {
		t.Errorf("missing document language: %s", ssml)
	}
}

func TestVoiceLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		voice string
		want  string
	}{
		{"ru-RU-SvetlanaNeural", "ru-RU"},
		{"en-US-GuyNeural", "en-US"},
		{"weird", "en-US"},
	}
	for _, tt := range tests {
		if got := voiceLanguage(tt.voice); got != tt.want {
			t.Errorf("voiceLanguage(%q) = %q, want %q", tt.voice, got, tt.want)
		}
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "westeurope"); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("expected error for empty region")
	}
}

func TestSynthesizeRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	p, err := New("key", "westeurope")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "  ", "en-US-JennyNeural"); err == nil {
		t.Error("expected error for blank text")
	}
	if _, err := p.Synthesize(context.Background(), "hello", ""); err == nil {
		t.Error("expected error for empty voice")
	}
}
