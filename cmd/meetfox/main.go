// Command meetfox runs the Meetfox meeting assistant from a terminal: it
// relays the microphone into the virtual meeting device, transcribes both
// conversation sides, and drives the translation, insight, and chat
// pipelines. An interactive prompt on stdin controls the session.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clever-foxes/meetfox/internal/app"
	"github.com/clever-foxes/meetfox/internal/chat"
	"github.com/clever-foxes/meetfox/internal/config"
	"github.com/clever-foxes/meetfox/internal/health"
	"github.com/clever-foxes/meetfox/internal/observe"
	"github.com/clever-foxes/meetfox/pkg/audio"
	"github.com/clever-foxes/meetfox/pkg/audio/mixer"
	llmazure "github.com/clever-foxes/meetfox/pkg/provider/llm/azure"
	sttazure "github.com/clever-foxes/meetfox/pkg/provider/stt/azure"
	ttsazure "github.com/clever-foxes/meetfox/pkg/provider/tts/azure"
	"github.com/clever-foxes/meetfox/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	envFile := flag.String("env", ".env", "path to the .env file with service credentials")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	listDevices := flag.Bool("list-devices", false, "print the audio device directory and exit")
	title := flag.String("title", "", "meeting title for the session record")
	translate := flag.String("translate", "", "enable text translation into this language")
	ttsLang := flag.String("tts-lang", "", "enable speaking translations into the mic in this language")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	// ── Audio backend ─────────────────────────────────────────────────────────
	engine, err := audio.NewEngine()
	if err != nil {
		slog.Error("audio backend init failed", "err", err)
		return 1
	}
	defer engine.Close()

	devices, err := engine.Devices()
	if err != nil {
		slog.Error("device enumeration failed", "err", err)
		return 1
	}
	if *listDevices {
		printDevices(devices)
		return 0
	}

	// ── Configuration ─────────────────────────────────────────────────────────
	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "meetfox: %v\n", err)
		return 1
	}

	// ── Observability ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "meetfox"})
	if err != nil {
		slog.Error("metrics init failed", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Device selection ──────────────────────────────────────────────────────
	mic, err := audio.SelectPhysicalMic(devices)
	if err != nil {
		slog.Error("no usable microphone", "err", err)
		return 1
	}
	virtual, err := audio.SelectVirtualOutput(devices)
	if err != nil {
		slog.Error("no virtual output device — install BlackHole or VB-CABLE", "err", err)
		return 1
	}
	loopback, haveLoopback := audio.SelectLoopbackInput(devices)
	if !haveLoopback {
		slog.Warn("no loopback input found, remote side will not be transcribed")
		loopback = virtual
	}
	slog.Info("devices selected", "mic", mic.Name, "virtual_output", virtual.Name, "loopback", loopback.Name)

	// ── Mixer ─────────────────────────────────────────────────────────────────
	mixSrc, err := engine.OpenCapture(mic, mixer.SampleRate, 1)
	if err != nil {
		slog.Error("open mixer capture failed", "err", err)
		return 1
	}
	defer mixSrc.Close()
	mixOut, err := engine.OpenPlayback(virtual, mixer.SampleRate, 2)
	if err != nil {
		slog.Error("open virtual output failed", "err", err)
		return 1
	}
	defer mixOut.Close()
	mix := mixer.New(mixSrc, mixOut)

	// ── Providers ─────────────────────────────────────────────────────────────
	sttProvider, err := sttazure.New(cfg.STTKey, cfg.STTRegion)
	if err != nil {
		slog.Error("stt provider init failed", "err", err)
		return 1
	}
	llmProvider, err := llmazure.New(cfg.LLMEndpoint, cfg.LLMKey, cfg.LLMAPIVersion, cfg.LLMModel)
	if err != nil {
		slog.Error("llm provider init failed", "err", err)
		return 1
	}
	ttsProvider, err := ttsazure.New(cfg.TTSKey, cfg.TTSRegion)
	if err != nil {
		slog.Error("tts provider init failed", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	captures := func(source types.Source, sampleRate int) (io.ReadCloser, error) {
		switch source {
		case types.SourceMic:
			return engine.OpenCapture(mic, sampleRate, 1)
		case types.SourceSystem:
			return engine.OpenCapture(loopback, sampleRate, 1)
		default:
			return nil, fmt.Errorf("meetfox: no capture device for source %s", source)
		}
	}

	application, err := app.New(cfg,
		app.Providers{STT: sttProvider, LLM: llmProvider, TTS: ttsProvider},
		mix, captures, terminalEvents(),
		app.WithLogger(logger),
	)
	if err != nil {
		slog.Error("application init failed", "err", err)
		return 1
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, mix.Running, application.Running)
	}

	id, err := application.StartTranscription(ctx, *title)
	if err != nil {
		slog.Error("start transcription failed", "err", err)
		return 1
	}
	fmt.Printf("session %s started — press Ctrl+C to stop, type 'help' for commands\n", id)

	if *translate != "" {
		if err := application.EnableTextTranslation(*translate); err != nil {
			slog.Error("enable translation failed", "err", err)
		}
	}
	if *ttsLang != "" {
		if err := application.EnableTTSToMic(*ttsLang); err != nil {
			slog.Error("enable TTS-to-mic failed", "err", err)
		}
	}

	go commandLoop(ctx, application)

	<-ctx.Done()
	stop()

	summaryCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if application.Running() {
		path, err := application.StopTranscription(summaryCtx)
		if err != nil {
			slog.Error("stop transcription failed", "err", err)
			return 1
		}
		fmt.Printf("session summary written to %s\n", path)
	}
	return 0
}

// terminalEvents prints pipeline output for a terminal embedder.
func terminalEvents() app.Events {
	return app.Events{
		OnUtterance: func(u types.Utterance) {
			fmt.Printf("[%s] [%s][%s] %s\n", u.Timestamp.Format("15:04:05"), u.Source, u.Speaker, u.Text)
		},
		OnTranslation: func(_ types.Utterance, translated string) {
			fmt.Printf("    🌍 %s\n", translated)
		},
		OnLanguage: func(source types.Source, language string) {
			fmt.Printf("    (%s now speaking %s)\n", source, language)
		},
		OnWarning: func(err error) {
			fmt.Printf("    ⚠ %v\n", err)
		},
	}
}

// commandLoop reads interactive commands from stdin until ctx ends.
func commandLoop(ctx context.Context, application *app.App) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "help":
			fmt.Println("commands: ask <question> | summary | actions | decisions | status | warnings | speak | quiet")
		case "ask", "summary", "actions", "decisions":
			answer, err := askCommand(ctx, application, cmd, rest)
			if err != nil {
				fmt.Printf("chat error: %v\n", err)
				continue
			}
			fmt.Printf("💬 %s\n", answer)
		case "status":
			printStatus(application)
		case "warnings":
			n, last := application.Warnings()
			fmt.Printf("%d warnings, last: %v\n", n, last)
			application.ClearWarnings()
		case "speak":
			if err := application.Speak(); err != nil {
				fmt.Printf("speak error: %v\n", err)
			}
		case "quiet":
			application.StopSpeaking()
		default:
			fmt.Printf("unknown command %q — type 'help'\n", cmd)
		}
	}
}

func askCommand(ctx context.Context, application *app.App, cmd, rest string) (string, error) {
	switch cmd {
	case "summary":
		return application.Ask(ctx, chat.TypeSummary, "")
	case "actions":
		return application.Ask(ctx, chat.TypeActionItems, "")
	case "decisions":
		return application.Ask(ctx, chat.TypeDecisions, "")
	default:
		if rest == "" {
			return "", errors.New("usage: ask <question>")
		}
		return application.Ask(ctx, chat.TypeCustom, rest)
	}
}

func printStatus(application *app.App) {
	status, ok := application.Status()
	if !ok {
		fmt.Println("no active session")
		return
	}
	fmt.Printf("session %s: %s elapsed, %d transcripts (%d questions, %d key points, %d actions, %d decisions)\n",
		status.ID, status.Duration.Round(time.Second), status.TranscriptCount,
		status.Questions, status.KeyPoints, status.ActionItems, status.Decisions)
}

func printDevices(devices []audio.Device) {
	fmt.Println("audio devices:")
	for _, d := range devices {
		flags := make([]string, 0, 2)
		if d.IsDefaultInput {
			flags = append(flags, "default-in")
		}
		if d.IsDefaultOutput {
			flags = append(flags, "default-out")
		}
		fmt.Printf("  [%2d] %-40s in:%d out:%d %s\n",
			d.Index, d.Name, d.MaxInputChannels, d.MaxOutputChannels, strings.Join(flags, " "))
	}
}

func serveMetrics(addr string, mixerRunning, transcribing func() bool) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(
		health.MixerChecker(mixerRunning),
		health.TranscriptionChecker(transcribing),
	).Register(mux)
	slog.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Warn("metrics server error", "err", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
