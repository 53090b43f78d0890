// Package azure provides a TTS provider backed by the Azure Speech REST
// synthesis API.
package azure

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/clever-foxes/meetfox/pkg/provider/tts"
)

const (
	endpointFormat = "https://%s.tts.speech.microsoft.com/cognitiveservices/v1"

	// outputFormat matches the mixer input path: the router upsamples this
	// to 48 kHz stereo.
	outputFormat = "raw-16khz-16bit-mono-pcm"

	defaultTimeout = 30 * time.Second
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithTimeout sets the per-request timeout. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.client.SetTimeout(d)
	}
}

// Provider implements tts.Provider backed by the Azure Speech synthesis
// endpoint.
type Provider struct {
	client *resty.Client
	url    string
}

// New creates a new Azure TTS Provider. key and region must be non-empty.
func New(key, region string, opts ...Option) (*Provider, error) {
	if key == "" {
		return nil, errors.New("azure: key must not be empty")
	}
	if region == "" {
		return nil, errors.New("azure: region must not be empty")
	}

	client := resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("Ocp-Apim-Subscription-Key", key).
		SetHeader("Content-Type", "application/ssml+xml").
		SetHeader("X-Microsoft-OutputFormat", outputFormat).
		SetHeader("User-Agent", "meetfox")

	p := &Provider{
		client: client,
		url:    fmt.Sprintf(endpointFormat, region),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("azure: text must not be empty")
	}
	if voice == "" {
		return nil, errors.New("azure: voice must not be empty")
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(buildSSML(text, voice)).
		Post(p.url)
	if err != nil {
		return nil, fmt.Errorf("azure: synthesis request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("azure: synthesis failed: status %d: %s",
			resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	audio := resp.Body()
	if len(audio) == 0 {
		return nil, errors.New("azure: synthesis returned no audio")
	}
	return audio, nil
}

// buildSSML renders the minimal SSML document the synthesis endpoint
// expects, deriving the document language from the voice name prefix
// (e.g. "ru-RU-SvetlanaNeural" → "ru-RU").
func buildSSML(text, voice string) string {
	lang := voiceLanguage(voice)

	var escaped bytes.Buffer
	_ = xml.EscapeText(&escaped, []byte(text))

	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='%s'><voice name='%s'>%s</voice></speak>`,
		lang, voice, escaped.String(),
	)
}

// voiceLanguage extracts the BCP-47 prefix from an Azure voice name.
func voiceLanguage(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
