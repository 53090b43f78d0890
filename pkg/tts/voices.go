// Package tts contains the speech-synthesis pipeline that sits between the
// translation worker and the audio mixer: the declarative voice table, the
// pre-generation buffer, the audio router, and the four-state controller
// that ties them together.
package tts

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed voices.yml
var defaultVoicesYAML []byte

// Voice is one synthesis voice from the table.
type Voice struct {
	// Name is the provider voice name, e.g. "ru-RU-SvetlanaNeural".
	Name string

	// Sex is "female" or "male".
	Sex string
}

// languageEntry is the per-language block of the voice table. Voices keep
// the YAML document order so "first voice" is deterministic.
type languageEntry struct {
	Language string
	Voices   []Voice
}

// UnmarshalYAML decodes a language block, preserving voice order.
func (e *languageEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("tts: language entry must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		switch key {
		case "language":
			e.Language = value.Value
		case "voices":
			if value.Kind != yaml.MappingNode {
				return fmt.Errorf("tts: voices must be a mapping")
			}
			for j := 0; j+1 < len(value.Content); j += 2 {
				var attrs struct {
					Sex string `yaml:"sex"`
				}
				if err := value.Content[j+1].Decode(&attrs); err != nil {
					return fmt.Errorf("tts: voice %q: %w", value.Content[j].Value, err)
				}
				e.Voices = append(e.Voices, Voice{
					Name: value.Content[j].Value,
					Sex:  attrs.Sex,
				})
			}
		}
	}
	return nil
}

// tableFile is the YAML document layout.
type tableFile struct {
	APIVersion int                      `yaml:"apiVersion"`
	Languages  map[string]languageEntry `yaml:"languages"`
}

// Table is the immutable voice lookup table. All lookups are pure; the
// table carries no synthesis state.
type Table struct {
	languages map[string]languageEntry
}

// DefaultTable returns the table built from the embedded voice list.
func DefaultTable() *Table {
	t, err := ParseTable(defaultVoicesYAML)
	if err != nil {
		// The embedded document is validated by tests; this is unreachable
		// with a correct build.
		panic("tts: embedded voice table invalid: " + err.Error())
	}
	return t
}

// LoadTable reads a voice table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tts: read voice table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable parses a YAML voice table document.
func ParseTable(data []byte) (*Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file tableFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("tts: parse voice table: %w", err)
	}
	if len(file.Languages) == 0 {
		return nil, fmt.Errorf("tts: voice table has no languages")
	}
	for code, entry := range file.Languages {
		if len(entry.Voices) == 0 {
			return nil, fmt.Errorf("tts: language %q has no voices", code)
		}
	}
	return &Table{languages: file.Languages}, nil
}

// VoiceFor returns the voice for a language code, honouring an optional sex
// preference ("female" or "male"). When no voice matches the preference, or
// the preference is empty, the first voice for the language wins. Returns
// false for unknown language codes.
func (t *Table) VoiceFor(code, sexPreference string) (Voice, bool) {
	entry, ok := t.languages[code]
	if !ok {
		return Voice{}, false
	}
	if sexPreference != "" {
		for _, v := range entry.Voices {
			if strings.EqualFold(v.Sex, sexPreference) {
				return v, true
			}
		}
	}
	return entry.Voices[0], true
}

// LanguageCode resolves a friendly language name ("Russian") to its BCP-47
// code ("ru-RU"), case-insensitively. A string that already is a known code
// is returned as-is.
func (t *Table) LanguageCode(name string) (string, bool) {
	if _, ok := t.languages[name]; ok {
		return name, true
	}
	for code, entry := range t.languages {
		if strings.EqualFold(entry.Language, name) {
			return code, true
		}
	}
	return "", false
}

// LanguageName returns the friendly display name for a language code.
func (t *Table) LanguageName(code string) (string, bool) {
	entry, ok := t.languages[code]
	if !ok {
		return "", false
	}
	return entry.Language, true
}

// Languages returns all language codes in the table, sorted.
func (t *Table) Languages() []string {
	codes := make([]string, 0, len(t.languages))
	for code := range t.languages {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
