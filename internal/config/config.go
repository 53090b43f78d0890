// Package config provides the environment-driven configuration schema for
// Meetfox.
//
// All settings come from environment variables (optionally seeded from a
// .env file via [Load]). The embedding app supplies the speech, language
// model, and synthesis credentials; everything else has workable defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultSpeechLanguage   = "auto"
	DefaultMinSpeakers      = 1
	DefaultMaxSpeakers      = 4
	DefaultAutoPauseSilence = 5 * time.Minute
)

// DefaultCandidateLanguages is the auto-detection candidate set used when
// CANDIDATE_LANGUAGES is unset.
var DefaultCandidateLanguages = []string{"en-US", "ru-RU"}

// Config holds every runtime setting read from the environment.
type Config struct {
	// STTKey and STTRegion authenticate against the speech-to-text service.
	STTKey    string
	STTRegion string

	// LLMEndpoint, LLMKey, LLMAPIVersion, and LLMModel configure the language
	// model deployment used for translation, insights, and chat.
	LLMEndpoint   string
	LLMKey        string
	LLMAPIVersion string
	LLMModel      string

	// TTSKey and TTSRegion authenticate against the speech-synthesis service.
	TTSKey    string
	TTSRegion string

	// SpeechLanguage is the fixed recognition language (BCP-47), or "auto"
	// to detect among CandidateLanguages.
	SpeechLanguage string

	// CandidateLanguages is the auto-detection candidate set.
	CandidateLanguages []string

	// EnableDiarization requests speaker separation from the recogniser.
	EnableDiarization bool

	// MinSpeakers and MaxSpeakers hint the expected speaker count range.
	MinSpeakers int
	MaxSpeakers int

	// LogFile is an optional override path for the conversation log.
	LogFile string

	// EnableAutoPause stops transcription automatically after
	// AutoPauseSilence without any speech.
	EnableAutoPause  bool
	AutoPauseSilence time.Duration
}

// Load seeds the process environment from the given .env files (missing
// files are ignored) and returns the validated configuration.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %q: %w", file, err)
		}
	}
	cfg := FromEnv()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the configuration from the current process environment
// without validating it.
func FromEnv() *Config {
	return &Config{
		STTKey:             os.Getenv("STT_KEY"),
		STTRegion:          os.Getenv("STT_REGION"),
		LLMEndpoint:        os.Getenv("LLM_ENDPOINT"),
		LLMKey:             os.Getenv("LLM_KEY"),
		LLMAPIVersion:      os.Getenv("LLM_API_VERSION"),
		LLMModel:           os.Getenv("LLM_MODEL"),
		TTSKey:             os.Getenv("TTS_KEY"),
		TTSRegion:          os.Getenv("TTS_REGION"),
		SpeechLanguage:     envString("SPEECH_LANGUAGE", DefaultSpeechLanguage),
		CandidateLanguages: envList("CANDIDATE_LANGUAGES", DefaultCandidateLanguages),
		EnableDiarization:  envBool("ENABLE_DIARIZATION", true),
		MinSpeakers:        envInt("MIN_SPEAKERS", DefaultMinSpeakers),
		MaxSpeakers:        envInt("MAX_SPEAKERS", DefaultMaxSpeakers),
		LogFile:            os.Getenv("LOG_FILE"),
		EnableAutoPause:    envBool("ENABLE_AUTO_PAUSE", false),
		AutoPauseSilence:   envSeconds("AUTO_PAUSE_SILENCE_DURATION", DefaultAutoPauseSilence),
	}
}

// AutoDetect reports whether language auto-detection is requested.
func (c *Config) AutoDetect() bool {
	return strings.EqualFold(c.SpeechLanguage, "auto")
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error
	for _, required := range []struct {
		key   string
		value string
	}{
		{"STT_KEY", cfg.STTKey},
		{"STT_REGION", cfg.STTRegion},
		{"LLM_ENDPOINT", cfg.LLMEndpoint},
		{"LLM_KEY", cfg.LLMKey},
		{"LLM_MODEL", cfg.LLMModel},
		{"TTS_KEY", cfg.TTSKey},
		{"TTS_REGION", cfg.TTSRegion},
	} {
		if strings.TrimSpace(required.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", required.key))
		}
	}
	if cfg.AutoDetect() && len(cfg.CandidateLanguages) == 0 {
		errs = append(errs, errors.New("CANDIDATE_LANGUAGES must not be empty when SPEECH_LANGUAGE=auto"))
	}
	if cfg.MinSpeakers < 1 {
		errs = append(errs, fmt.Errorf("MIN_SPEAKERS %d must be at least 1", cfg.MinSpeakers))
	}
	if cfg.MaxSpeakers < cfg.MinSpeakers {
		errs = append(errs, fmt.Errorf("MAX_SPEAKERS %d must be >= MIN_SPEAKERS %d", cfg.MaxSpeakers, cfg.MinSpeakers))
	}
	if cfg.EnableAutoPause && cfg.AutoPauseSilence <= 0 {
		errs = append(errs, errors.New("AUTO_PAUSE_SILENCE_DURATION must be positive when ENABLE_AUTO_PAUSE is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// envSeconds parses a duration expressed as a plain number of seconds.
func envSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
