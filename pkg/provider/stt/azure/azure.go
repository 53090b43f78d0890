// Package azure provides an Azure Speech-backed STT provider using the
// service's streaming WebSocket API. It implements the stt.Provider
// interface.
package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/clever-foxes/meetfox/pkg/provider/stt"
	"github.com/clever-foxes/meetfox/pkg/types"
)

const (
	endpointFormat    = "wss://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Azure Provider.
type Option func(*Provider)

// WithLanguage sets the default BCP-47 recognition language (e.g. "en-US").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the provider-level default audio sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// Provider implements stt.Provider backed by the Azure Speech streaming API.
type Provider struct {
	key        string
	region     string
	language   string
	sampleRate int
}

// New creates a new Azure Speech Provider. key and region must be non-empty;
// region is the short Azure region name such as "westeurope".
func New(key, region string, opts ...Option) (*Provider, error) {
	if key == "" {
		return nil, errors.New("azure: key must not be empty")
	}
	if region == "" {
		return nil, errors.New("azure: region must not be empty")
	}
	p := &Provider{
		key:        key,
		region:     region,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming recognition session with Azure Speech.
// It respects cfg.Language, cfg.CandidateLanguages, and the diarization
// settings.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("azure: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Ocp-Apim-Subscription-Key", p.key)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("azure: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		langs:    make(chan string, 8),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the regional streaming endpoint URL for the given
// config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(fmt.Sprintf(endpointFormat, p.region))
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("format", "detailed")
	q.Set("language", lang)
	if len(cfg.CandidateLanguages) > 0 {
		q.Set("lidEnabled", "true")
		q.Set("lidLanguages", strings.Join(cfg.CandidateLanguages, ","))
	}
	if cfg.Diarization {
		q.Set("diarizationEnabled", "true")
		if cfg.MinSpeakers > 0 {
			q.Set("minSpeakerCount", strconv.Itoa(cfg.MinSpeakers))
		}
		if cfg.MaxSpeakers > 0 {
			q.Set("maxSpeakerCount", strconv.Itoa(cfg.MaxSpeakers))
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// phraseMessage is the JSON body of a speech.phrase or speech.hypothesis
// event from the service.
type phraseMessage struct {
	RecognitionStatus string  `json:"RecognitionStatus"`
	DisplayText       string  `json:"DisplayText"`
	Text              string  `json:"Text"`
	SpeakerID         string  `json:"SpeakerId"`
	Confidence        float64 `json:"Confidence"`
	PrimaryLanguage   struct {
		Language string `json:"Language"`
	} `json:"PrimaryLanguage"`
	NBest []struct {
		Display    string  `json:"Display"`
		Confidence float64 `json:"Confidence"`
	} `json:"NBest"`
}

// session is a live Azure streaming session. It implements
// stt.SessionHandle.
type session struct {
	conn     *websocket.Conn
	partials chan types.Transcript
	finals   chan types.Transcript
	langs    chan string
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	lastLanguage string // readLoop only
}

// SendAudio queues a PCM audio chunk for delivery to the service.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("azure: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("azure: session is closed")
	}
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *session) Finals() <-chan types.Transcript { return s.finals }

// LanguageChanges returns the channel of detected-language switches.
func (s *session) LanguageChanges() <-chan string { return s.langs }

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary frames to the
// service.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain buffered audio so trailing speech still gets recognised.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives service messages and dispatches them to the partials,
// finals, and language channels.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)
	defer close(s.langs)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation.
			return
		}

		t, ok := parseMessage(msg)
		if !ok {
			continue
		}

		if t.Language != "" && t.Language != s.lastLanguage {
			s.lastLanguage = t.Language
			select {
			case s.langs <- t.Language:
			case <-s.done:
			default:
			}
		}

		if t.IsFinal {
			select {
			case s.finals <- t:
			case <-s.done:
			}
		} else {
			select {
			case s.partials <- t:
			case <-s.done:
			}
		}
	}
}

// parseMessage parses a raw service WebSocket message into a Transcript.
// Messages are a block of "Key: Value" headers, a blank line, and a JSON
// body; the Path header selects the event type. Returns (zero, false) for
// messages that should be ignored.
func parseMessage(data []byte) (types.Transcript, bool) {
	path, body, ok := splitFrame(data)
	if !ok {
		return types.Transcript{}, false
	}

	var msg phraseMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return types.Transcript{}, false
	}

	switch path {
	case "speech.hypothesis":
		if msg.Text == "" {
			return types.Transcript{}, false
		}
		return types.Transcript{
			Text:      msg.Text,
			SpeakerID: msg.SpeakerID,
			Language:  msg.PrimaryLanguage.Language,
		}, true

	case "speech.phrase":
		if msg.RecognitionStatus != "Success" {
			return types.Transcript{}, false
		}
		text := msg.DisplayText
		confidence := msg.Confidence
		if text == "" && len(msg.NBest) > 0 {
			text = msg.NBest[0].Display
			confidence = msg.NBest[0].Confidence
		}
		if text == "" {
			return types.Transcript{}, false
		}
		return types.Transcript{
			Text:       text,
			IsFinal:    true,
			Confidence: confidence,
			SpeakerID:  msg.SpeakerID,
			Language:   msg.PrimaryLanguage.Language,
		}, true

	default:
		return types.Transcript{}, false
	}
}

// splitFrame separates the header block from the JSON body and extracts the
// Path header.
func splitFrame(data []byte) (path string, body []byte, ok bool) {
	raw := string(data)
	idx := strings.Index(raw, "\r\n\r\n")
	if idx < 0 {
		// Some events arrive as bare JSON; treat them as phrase results.
		if strings.HasPrefix(strings.TrimSpace(raw), "{") {
			return "speech.phrase", data, true
		}
		return "", nil, false
	}

	for line := range strings.SplitSeq(raw[:idx], "\r\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), "Path") {
			path = strings.TrimSpace(value)
		}
	}
	if path == "" {
		return "", nil, false
	}
	return path, []byte(raw[idx+4:]), true
}
