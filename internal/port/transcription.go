// Package port adapts the provider packages (pkg/provider/...) to the
// conversation loop's stage interfaces (internal/chat). Each adapter owns
// the glue a stage needs around a raw provider call: opening devices,
// sentinel error classification, circuit breaking, and stage metrics.
package port

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/parley-ai/parley/internal/chat"
	"github.com/parley-ai/parley/internal/observe"
	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/asr"
)

// Transcription adapts an [asr.Recognizer] plus a capture device into the
// loop's listening stage. Every Listen opens a fresh capture source and
// runs a fresh recognition pass, so no buffered audio from a previous turn
// can leak into the next one.
type Transcription struct {
	opener   audio.SourceOpener
	rec      asr.Recognizer
	cfg      asr.Config
	provider string
	log      *slog.Logger
	metrics  *observe.Metrics
}

// compile-time interface check
var _ chat.Transcriber = (*Transcription)(nil)

// TranscriptionOption configures a [Transcription].
type TranscriptionOption func(*Transcription)

// WithRecognizeConfig sets the per-utterance recognition parameters.
func WithRecognizeConfig(cfg asr.Config) TranscriptionOption {
	return func(t *Transcription) { t.cfg = cfg }
}

// WithTranscriptionLogger sets the logger. Defaults to slog.Default().
func WithTranscriptionLogger(log *slog.Logger) TranscriptionOption {
	return func(t *Transcription) { t.log = log }
}

// WithTranscriptionMetrics enables stage metrics, labelled with the given
// provider name.
func WithTranscriptionMetrics(m *observe.Metrics, provider string) TranscriptionOption {
	return func(t *Transcription) {
		t.metrics = m
		t.provider = provider
	}
}

// NewTranscription creates the listening-stage adapter.
func NewTranscription(opener audio.SourceOpener, rec asr.Recognizer, opts ...TranscriptionOption) *Transcription {
	t := &Transcription{
		opener:   opener,
		rec:      rec,
		provider: "asr",
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

type recognizeResult struct {
	res asr.Result
	err error
}

// Listen captures and transcribes one utterance. Failures are wrapped in
// [chat.ErrRecognitionFailed]; cancellation of ctx is returned as ctx's own
// error. An empty string with a nil error means silence.
func (t *Transcription) Listen(ctx context.Context) (string, error) {
	start := time.Now()

	src, err := t.opener.OpenSource(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", t.fail(ctx, fmt.Errorf("open capture source: %w", err))
	}

	// The recognizer honours ctx, but a device Read can still block past
	// cancellation. Running the call on its own goroutine keeps Listen
	// responsive; an abandoned worker exits once the source is closed.
	ch := make(chan recognizeResult, 1)
	go func() {
		res, err := t.rec.RecognizeOnce(ctx, src, t.cfg)
		src.Close()
		ch <- recognizeResult{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		src.Close()
		return "", ctx.Err()
	case out := <-ch:
		if out.err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", t.fail(ctx, out.err)
		}
		t.observe(ctx, start, "ok")
		if out.res.Text != "" {
			t.log.Debug("utterance transcribed",
				"confidence", out.res.Confidence,
				"audio_duration", out.res.AudioDuration)
		}
		return out.res.Text, nil
	}
}

func (t *Transcription) fail(ctx context.Context, err error) error {
	t.observe(ctx, time.Time{}, "error")
	if t.metrics != nil {
		t.metrics.RecordProviderError(ctx, t.provider, "asr")
	}
	return fmt.Errorf("%w: %v", chat.ErrRecognitionFailed, err)
}

func (t *Transcription) observe(ctx context.Context, start time.Time, status string) {
	if t.metrics == nil {
		return
	}
	if !start.IsZero() {
		t.metrics.ASRDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("provider", t.provider)))
	}
	t.metrics.RecordProviderRequest(ctx, t.provider, "asr", status)
}
