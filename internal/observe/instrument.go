package observe

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/clever-foxes/meetfox/pkg/provider/llm"
	speech "github.com/clever-foxes/meetfox/pkg/provider/tts"
)

// Pipeline stage names used as the "stage" attribute on LLM metrics.
const (
	StageTranslation = "translation"
	StageInsight     = "insight"
	StageChat        = "chat"
)

// InstrumentLLM wraps provider so that every Complete call records its
// latency and classifies failures on m. The stage string becomes the "stage"
// attribute; latency is recorded on the matching histogram
// ([StageTranslation] and [StageInsight] have dedicated instruments, other
// stages only count errors).
func InstrumentLLM(provider llm.Provider, m *Metrics, stage string) llm.Provider {
	var hist metric.Float64Histogram
	switch stage {
	case StageTranslation:
		hist = m.TranslationDuration
	case StageInsight:
		hist = m.InsightDuration
	}
	return &instrumentedLLM{inner: provider, metrics: m, stage: stage, hist: hist}
}

type instrumentedLLM struct {
	inner   llm.Provider
	metrics *Metrics
	stage   string
	hist    metric.Float64Histogram
}

var _ llm.Provider = (*instrumentedLLM)(nil)

func (p *instrumentedLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	start := time.Now()
	resp, err := p.inner.Complete(ctx, req)
	if p.hist != nil {
		p.hist.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("stage", p.stage)),
		)
	}
	if err != nil {
		p.metrics.RecordLLMError(ctx, p.stage, errorKind(err))
	}
	return resp, err
}

// errorKind maps a completion failure to the "kind" attribute value.
func errorKind(err error) string {
	switch {
	case errors.Is(err, llm.ErrTimeout):
		return "timeout"
	case errors.Is(err, llm.ErrConnection):
		return "connection"
	default:
		return "other"
	}
}

// InstrumentTTS wraps provider so that every Synthesize call records its
// latency on m.TTSDuration.
func InstrumentTTS(provider speech.Provider, m *Metrics) speech.Provider {
	return &instrumentedTTS{inner: provider, metrics: m}
}

type instrumentedTTS struct {
	inner   speech.Provider
	metrics *Metrics
}

var _ speech.Provider = (*instrumentedTTS)(nil)

func (p *instrumentedTTS) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	start := time.Now()
	audio, err := p.inner.Synthesize(ctx, text, voice)
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	return audio, err
}
