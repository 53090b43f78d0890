package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/clever-foxes/meetfox/pkg/provider/llm"
	llmmock "github.com/clever-foxes/meetfox/pkg/provider/llm/mock"
	ttsmock "github.com/clever-foxes/meetfox/pkg/provider/tts/mock"
)

func TestInstrumentLLM_RecordsLatencyAndErrors(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	inner := &llmmock.Provider{}
	inner.Queue = []llmmock.Scripted{
		{Content: "ok"},
		{Err: llm.ErrTimeout},
	}
	p := InstrumentLLM(inner, m, StageTranslation)

	if _, err := p.Complete(ctx, llm.Request{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := p.Complete(ctx, llm.Request{}); err == nil {
		t.Fatal("expected scripted failure")
	}

	rm := collect(t, reader)

	met := findMetric(rm, "meetfox.translation.duration")
	if met == nil {
		t.Fatal("latency histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatal("no histogram data")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("latency sample count = %d, want 2", got)
	}

	met = findMetric(rm, "meetfox.llm.errors")
	if met == nil {
		t.Fatal("error counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("no counter data")
	}
	for _, kv := range sum.DataPoints[0].Attributes.ToSlice() {
		if string(kv.Key) == "kind" && kv.Value.AsString() != "timeout" {
			t.Errorf("kind = %q, want timeout", kv.Value.AsString())
		}
	}
}

func TestInstrumentLLM_ChatStageCountsErrorsOnly(t *testing.T) {
	m, reader := newTestMetrics(t)

	inner := &llmmock.Provider{Response: "hi"}
	p := InstrumentLLM(inner, m, StageChat)
	if _, err := p.Complete(context.Background(), llm.Request{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	rm := collect(t, reader)
	for _, name := range []string{"meetfox.translation.duration", "meetfox.insight.duration"} {
		if findMetric(rm, name) != nil {
			t.Errorf("chat stage must not record on %s", name)
		}
	}
}

func TestInstrumentTTS_RecordsLatency(t *testing.T) {
	m, reader := newTestMetrics(t)

	inner := &ttsmock.Provider{Audio: []byte{1, 2, 3, 4}}
	p := InstrumentTTS(inner, m)
	if _, err := p.Synthesize(context.Background(), "hello", "voice-a"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	rm := collect(t, reader)
	met := findMetric(rm, "meetfox.tts.duration")
	if met == nil {
		t.Fatal("latency histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
		t.Error("expected one latency sample")
	}
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{llm.ErrTimeout, "timeout"},
		{llm.ErrConnection, "connection"},
		{context.Canceled, "other"},
	}
	for _, tc := range cases {
		if got := errorKind(tc.err); got != tc.want {
			t.Errorf("errorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
