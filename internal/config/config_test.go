package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setRequired sets the minimum viable environment. t.Setenv restores the
// previous values automatically.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STT_KEY", "stt-key")
	t.Setenv("STT_REGION", "westeurope")
	t.Setenv("LLM_ENDPOINT", "https://meetfox.openai.azure.com")
	t.Setenv("LLM_KEY", "llm-key")
	t.Setenv("LLM_MODEL", "gpt-4o")
	t.Setenv("TTS_KEY", "tts-key")
	t.Setenv("TTS_REGION", "westeurope")
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequired(t)

	cfg := FromEnv()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.SpeechLanguage != "auto" || !cfg.AutoDetect() {
		t.Errorf("SpeechLanguage = %q", cfg.SpeechLanguage)
	}
	if len(cfg.CandidateLanguages) != 2 || cfg.CandidateLanguages[0] != "en-US" {
		t.Errorf("CandidateLanguages = %v", cfg.CandidateLanguages)
	}
	if !cfg.EnableDiarization {
		t.Error("diarization must default to enabled")
	}
	if cfg.MinSpeakers != 1 || cfg.MaxSpeakers != 4 {
		t.Errorf("speakers = %d..%d", cfg.MinSpeakers, cfg.MaxSpeakers)
	}
	if cfg.EnableAutoPause {
		t.Error("auto-pause must default to disabled")
	}
	if cfg.AutoPauseSilence != 5*time.Minute {
		t.Errorf("AutoPauseSilence = %v", cfg.AutoPauseSilence)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SPEECH_LANGUAGE", "de-DE")
	t.Setenv("CANDIDATE_LANGUAGES", "de-DE, en-US ,fr-FR")
	t.Setenv("ENABLE_DIARIZATION", "false")
	t.Setenv("MIN_SPEAKERS", "2")
	t.Setenv("MAX_SPEAKERS", "6")
	t.Setenv("ENABLE_AUTO_PAUSE", "true")
	t.Setenv("AUTO_PAUSE_SILENCE_DURATION", "90")
	t.Setenv("LLM_API_VERSION", "2024-10-21")

	cfg := FromEnv()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.AutoDetect() {
		t.Error("fixed language must disable auto-detection")
	}
	want := []string{"de-DE", "en-US", "fr-FR"}
	if len(cfg.CandidateLanguages) != len(want) {
		t.Fatalf("CandidateLanguages = %v", cfg.CandidateLanguages)
	}
	for i := range want {
		if cfg.CandidateLanguages[i] != want[i] {
			t.Errorf("CandidateLanguages[%d] = %q, want %q", i, cfg.CandidateLanguages[i], want[i])
		}
	}
	if cfg.EnableDiarization {
		t.Error("ENABLE_DIARIZATION=false not honoured")
	}
	if cfg.MinSpeakers != 2 || cfg.MaxSpeakers != 6 {
		t.Errorf("speakers = %d..%d", cfg.MinSpeakers, cfg.MaxSpeakers)
	}
	if !cfg.EnableAutoPause || cfg.AutoPauseSilence != 90*time.Second {
		t.Errorf("auto-pause = %v / %v", cfg.EnableAutoPause, cfg.AutoPauseSilence)
	}
	if cfg.LLMAPIVersion != "2024-10-21" {
		t.Errorf("LLMAPIVersion = %q", cfg.LLMAPIVersion)
	}
}

func TestValidate_ReportsAllMissingKeys(t *testing.T) {
	err := Validate(&Config{
		SpeechLanguage:     "en-US",
		CandidateLanguages: DefaultCandidateLanguages,
		MinSpeakers:        1,
		MaxSpeakers:        4,
	})
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, key := range []string{"STT_KEY", "STT_REGION", "LLM_ENDPOINT", "LLM_KEY", "LLM_MODEL", "TTS_KEY", "TTS_REGION"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not mention %s: %v", key, err)
		}
	}
}

func TestValidate_SpeakerRange(t *testing.T) {
	setRequired(t)
	t.Setenv("MIN_SPEAKERS", "5")
	t.Setenv("MAX_SPEAKERS", "2")

	if err := Validate(FromEnv()); err == nil {
		t.Error("expected error for inverted speaker range")
	}
}

func TestValidate_AutoPauseDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("ENABLE_AUTO_PAUSE", "true")
	t.Setenv("AUTO_PAUSE_SILENCE_DURATION", "0")

	if err := Validate(FromEnv()); err == nil {
		t.Error("expected error for zero auto-pause duration")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	setRequired(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("SPEECH_LANGUAGE=it-IT\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SpeechLanguage != "it-IT" {
		t.Errorf("SpeechLanguage = %q, want it-IT", cfg.SpeechLanguage)
	}

	// A missing file is not an error.
	if _, err := Load(filepath.Join(dir, "absent.env")); err != nil {
		t.Errorf("missing env file must be ignored: %v", err)
	}
}
