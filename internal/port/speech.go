package port

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/parley-ai/parley/internal/chat"
	"github.com/parley-ai/parley/internal/observe"
	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/tts"
)

// Speech adapts a [tts.Synthesizer] plus a playback device into the loop's
// speaking stage: synthesize the whole reply into a clip, then drain it
// into the sink. Speak returns once playback has finished, keeping the
// strict speak-then-listen turn order.
type Speech struct {
	synth    tts.Synthesizer
	sink     audio.Sink
	voice    tts.Voice
	provider string
	log      *slog.Logger
	metrics  *observe.Metrics
}

// compile-time interface check
var _ chat.Speaker = (*Speech)(nil)

// SpeechOption configures a [Speech].
type SpeechOption func(*Speech)

// WithVoice sets the synthesis voice. The zero voice uses the provider's
// default.
func WithVoice(v tts.Voice) SpeechOption {
	return func(s *Speech) { s.voice = v }
}

// WithSpeechLogger sets the logger. Defaults to slog.Default().
func WithSpeechLogger(log *slog.Logger) SpeechOption {
	return func(s *Speech) { s.log = log }
}

// WithSpeechMetrics enables stage metrics, labelled with the given provider
// name.
func WithSpeechMetrics(m *observe.Metrics, provider string) SpeechOption {
	return func(s *Speech) {
		s.metrics = m
		s.provider = provider
	}
}

// NewSpeech creates the speaking-stage adapter.
func NewSpeech(synth tts.Synthesizer, sink audio.Sink, opts ...SpeechOption) *Speech {
	s := &Speech{
		synth:    synth,
		sink:     sink,
		provider: "tts",
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak synthesizes text and plays it to completion. Failures are wrapped
// in [chat.ErrPlaybackFailed]; cancellation passes through untouched.
func (s *Speech) Speak(ctx context.Context, text string) error {
	start := time.Now()

	clip, err := s.synth.Synthesize(ctx, text, s.voice)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.fail(ctx, fmt.Errorf("synthesize: %w", err))
	}
	if len(clip.PCM) == 0 {
		s.log.Debug("synthesizer returned an empty clip", "text_length", len(text))
		return nil
	}

	s.log.Debug("playing clip",
		"bytes", len(clip.PCM),
		"sample_rate", clip.Format.SampleRate)

	// Wrap the clip in a WAV container so the sink sees the clip's own
	// sample rate; raw PCM would play at whatever the device assumes.
	wav := audio.EncodeWAV(clip.PCM, clip.Format)
	if err := s.sink.Play(ctx, bytes.NewReader(wav)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.fail(ctx, fmt.Errorf("play: %w", err))
	}

	if s.metrics != nil {
		s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("provider", s.provider)))
		s.metrics.RecordProviderRequest(ctx, s.provider, "tts", "ok")
	}
	return nil
}

func (s *Speech) fail(ctx context.Context, err error) error {
	if s.metrics != nil {
		s.metrics.RecordProviderRequest(ctx, s.provider, "tts", "error")
		s.metrics.RecordProviderError(ctx, s.provider, "tts")
	}
	return fmt.Errorf("%w: %v", chat.ErrPlaybackFailed, err)
}
