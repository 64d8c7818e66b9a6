// Package app wires all parley subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects the
// conversation pipeline and the ops HTTP server, Run executes both until
// the context is cancelled or a stop phrase ends the session, and Shutdown
// tears everything down in order.
//
// For testing, inject fakes via functional options (WithSourceOpener,
// WithSink, WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/parley-ai/parley/internal/chat"
	"github.com/parley-ai/parley/internal/command"
	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/health"
	"github.com/parley-ai/parley/internal/observe"
	"github.com/parley-ai/parley/internal/port"
	"github.com/parley-ai/parley/internal/resilience"
	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/asr"
	"github.com/parley-ai/parley/pkg/provider/llm"
	"github.com/parley-ai/parley/pkg/provider/tts"
)

// Providers holds one interface value per pipeline stage. Populated by
// main.go via the config registry; all three are required.
type Providers struct {
	ASR asr.Recognizer
	LLM llm.Provider
	TTS tts.Synthesizer
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	opener  audio.SourceOpener
	sink    audio.Sink
	metrics *observe.Metrics
	log     *slog.Logger

	loop   *chat.Loop
	server *http.Server

	// closers run in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSourceOpener injects a capture source instead of the arecord device.
func WithSourceOpener(o audio.SourceOpener) Option {
	return func(a *App) { a.opener = o }
}

// WithSink injects a playback sink instead of the aplay device.
func WithSink(s audio.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithMetrics injects a metrics instance instead of the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// AddCloser registers a cleanup function to run during Shutdown, after the
// app's own closers.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// New creates an App by wiring the providers into the conversation loop.
// The providers struct comes from main.go (populated via the config
// registry).
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.ASR == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("app: all three providers (asr, llm, tts) are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	if a.opener == nil {
		a.opener = newCaptureDevice(cfg.Audio)
	}
	if a.sink == nil {
		a.sink = newPlaybackDevice(cfg.Audio)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.loop = a.buildLoop()

	if cfg.Server.ListenAddr != "" {
		a.server = a.buildServer()
	}

	return a, nil
}

// ─── Wiring ──────────────────────────────────────────────────────────────────

func (a *App) buildLoop() *chat.Loop {
	conv := a.cfg.Conversation

	transcriber := port.NewTranscription(a.opener, a.providers.ASR,
		port.WithRecognizeConfig(asr.Config{Language: conv.Language}),
		port.WithTranscriptionLogger(a.log),
		port.WithTranscriptionMetrics(a.metrics, a.cfg.Providers.ASR.Name),
	)

	breaker := resilience.NewCircuitBreaker(resilience.Config{
		Name:         "llm/" + a.cfg.Providers.LLM.Name,
		MaxFailures:  a.cfg.Resilience.MaxFailures,
		ResetTimeout: a.cfg.Resilience.ResetTimeout,
		HalfOpenMax:  a.cfg.Resilience.HalfOpenMax,
	})
	genOpts := []port.GenerationOption{
		port.WithSampling(conv.Temperature, conv.MaxTokens),
		port.WithBreaker(breaker),
		port.WithGenerationLogger(a.log),
		port.WithGenerationMetrics(a.metrics, a.cfg.Providers.LLM.Name),
	}
	if conv.RoleMode != "" {
		genOpts = append(genOpts, port.WithRoleMode(port.RoleMode(conv.RoleMode)))
	}
	generator := port.NewGeneration(a.providers.LLM, genOpts...)

	speaker := port.NewSpeech(a.providers.TTS, a.sink,
		port.WithVoice(tts.Voice{ID: conv.Voice}),
		port.WithSpeechLogger(a.log),
		port.WithSpeechMetrics(a.metrics, a.cfg.Providers.TTS.Name),
	)

	loopOpts := []chat.Option{
		chat.WithLogger(a.log),
		chat.WithHistoryCapacity(conv.HistoryCapacity),
		chat.WithStageTimeouts(conv.ListenTimeout, conv.GenerateTimeout, conv.SpeakTimeout),
		chat.WithRecorder(a.metrics),
	}
	if len(conv.StopPhrases) > 0 {
		loopOpts = append(loopOpts, chat.WithStopDetector(command.NewDetector(conv.StopPhrases)))
	}

	return chat.New(conv.Persona, transcriber, generator, speaker, loopOpts...)
}

func (a *App) buildServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	checkers := []health.Checker{
		{Name: "conversation", Check: func(context.Context) error {
			if a.loop.State() == chat.StateStopped {
				return errors.New("conversation loop has stopped")
			}
			return nil
		}},
	}
	health.New(checkers, health.WithStatusSource(loopStatus{a.loop})).Register(mux)

	return &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// loopStatus adapts the loop to the health status endpoint.
type loopStatus struct{ loop *chat.Loop }

func (s loopStatus) LoopState() string { return s.loop.State().String() }
func (s loopStatus) TurnCount() int    { return s.loop.TurnCount() }

func newCaptureDevice(cfg config.AudioConfig) audio.SourceOpener {
	if len(cfg.CaptureCommand) > 0 {
		return audio.NewCaptureDevice(
			audio.WithCaptureCommand(cfg.CaptureCommand[0], cfg.CaptureCommand[1:]...))
	}
	return audio.NewCaptureDevice()
}

func newPlaybackDevice(cfg config.AudioConfig) audio.Sink {
	if len(cfg.PlaybackCommand) > 0 {
		return audio.NewPlaybackDevice(
			audio.WithPlaybackCommand(cfg.PlaybackCommand[0], cfg.PlaybackCommand[1:]...))
	}
	return audio.NewPlaybackDevice()
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// Run executes the conversation loop and the ops HTTP server until ctx is
// cancelled or a spoken stop phrase ends the session. A clean voice stop
// also stops the ops server and returns nil.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// The loop ending for any reason (voice stop included) cancels the
	// group and brings the ops server down with it.
	loopDone := make(chan struct{})
	g.Go(func() error {
		defer close(loopDone)
		err := a.loop.Run(ctx)
		if err == nil {
			return errStopPhrase
		}
		return err
	})

	if a.server != nil {
		g.Go(func() error {
			a.log.Info("ops server listening", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	<-loopDone
	if errors.Is(err, errStopPhrase) {
		return nil
	}
	return err
}

// errStopPhrase is an internal sentinel carrying the voice-stop outcome
// through the errgroup so the ops server shuts down too.
var errStopPhrase = errors.New("stop phrase")

// Loop exposes the conversation loop, mainly for status inspection.
func (a *App) Loop() *chat.Loop { return a.loop }

// Shutdown runs all registered closers in order.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
