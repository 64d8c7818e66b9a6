// Command parley is a turn-taking spoken-dialogue daemon: it listens for
// an utterance, transcribes it, generates a persona-driven reply, speaks
// the reply, and listens again until interrupted or told to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/parley-ai/parley/internal/app"
	"github.com/parley-ai/parley/internal/chat"
	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/observe"
	"github.com/parley-ai/parley/pkg/provider/asr"
	"github.com/parley-ai/parley/pkg/provider/asr/azure"
	"github.com/parley-ai/parley/pkg/provider/asr/deepgram"
	"github.com/parley-ai/parley/pkg/provider/asr/whisper"
	"github.com/parley-ai/parley/pkg/provider/llm"
	"github.com/parley-ai/parley/pkg/provider/llm/anyllm"
	"github.com/parley-ai/parley/pkg/provider/llm/openai"
	"github.com/parley-ai/parley/pkg/provider/tts"
	"github.com/parley-ai/parley/pkg/provider/tts/coqui"
	"github.com/parley-ai/parley/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "parley.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("parley starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "parley",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	application.AddCloser(func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return otelShutdown(closeCtx)
	})

	slog.Info("daemon ready — speak, or press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the
// appropriate provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── ASR ───────────────────────────────────────────────────────────────────

	reg.RegisterASR("whisper", func(entry config.ProviderEntry) (asr.Recognizer, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterASR("whisper-native", func(entry config.ProviderEntry) (asr.Recognizer, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.StringOption("model_path")
		}
		var opts []whisper.NativeOption
		if lang := entry.StringOption("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterASR("azure", func(entry config.ProviderEntry) (asr.Recognizer, error) {
		var opts []azure.Option
		if entry.BaseURL != "" {
			opts = append(opts, azure.WithEndpoint(entry.BaseURL))
		}
		if lang := entry.StringOption("language"); lang != "" {
			opts = append(opts, azure.WithLanguage(lang))
		}
		return azure.New(entry.StringOption("region"), entry.APIKey, opts...)
	})

	reg.RegisterASR("deepgram", func(entry config.ProviderEntry) (asr.Recognizer, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai goes through the dedicated SDK client; the rest share the
	// any-llm pattern of optional APIKey + optional BaseURL.

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not a key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.StringOption("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []coqui.Option
		if lang := entry.StringOption("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.StringOption("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		// Recognizers and the playback device expect 16 kHz mono.
		opts = append(opts, coqui.WithOutputSampleRate(16000))
		return coqui.New(entry.BaseURL, opts...)
	})
}

// buildProviders instantiates the three providers named in cfg using the
// registry and returns them in an [app.Providers] struct.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	recognizer, err := reg.CreateASR(cfg.Providers.ASR)
	if err != nil {
		return nil, fmt.Errorf("create asr provider %q: %w", cfg.Providers.ASR.Name, err)
	}
	ps.ASR = recognizer
	slog.Info("provider created", "kind", "asr", "name", cfg.Providers.ASR.Name)

	generator, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM = generator
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	synthesizer, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.TTS = synthesizer
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          parley — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("ASR", cfg.Providers.ASR.Name, cfg.Providers.ASR.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	capacity := cfg.Conversation.HistoryCapacity
	if capacity == 0 {
		capacity = chat.DefaultHistoryCapacity
	}
	fmt.Printf("║  History turns   : %-19d ║\n", capacity)
	fmt.Printf("║  Stop phrases    : %-19d ║\n", len(cfg.Conversation.StopPhrases))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Ops addr        : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
