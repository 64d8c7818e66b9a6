// This file contains the NativeRecognizer implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/asr"
)

// Compile-time assertion that NativeRecognizer satisfies asr.Recognizer.
var _ asr.Recognizer = (*NativeRecognizer)(nil)

// NativeRecognizer implements asr.Recognizer using the whisper.cpp Go
// bindings (CGO), eliminating HTTP overhead entirely. The model is loaded
// once and shared across all calls; each RecognizeOnce builds a fresh
// whisper context because contexts are not thread-safe and are cheap to
// create compared to model loading.
type NativeRecognizer struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeRecognizer.
type NativeOption func(*NativeRecognizer)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(r *NativeRecognizer) { r.language = lang }
}

// NewNative creates a NativeRecognizer that loads the whisper.cpp model
// from the given file path. The caller must call Close when the recognizer
// is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeRecognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &NativeRecognizer{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the whisper model.
func (r *NativeRecognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// RecognizeOnce captures a single utterance from src and transcribes it in
// process. A turn that contains no speech before the source ends yields an
// empty Result with a nil error.
func (r *NativeRecognizer) RecognizeOnce(ctx context.Context, src audio.Source, cfg asr.Config) (asr.Result, error) {
	pcm, dur, err := asr.CaptureUtterance(ctx, src, cfg)
	if err != nil {
		return asr.Result{}, err
	}
	if len(pcm) == 0 {
		return asr.Result{}, nil
	}

	lang := cfg.Language
	if lang == "" {
		lang = r.language
	}

	text, err := r.infer(pcm, src.Format().Channels, lang)
	if err != nil {
		return asr.Result{}, err
	}
	return asr.Result{
		Text:          strings.TrimSpace(text),
		AudioDuration: dur,
	}, nil
}

// infer converts the captured PCM audio to float32, runs whisper.cpp
// inference using a fresh context, and returns the concatenated text.
func (r *NativeRecognizer) infer(pcm []byte, channels int, language string) (string, error) {
	samples := pcmToFloat32Mono(pcm, channels)

	// Each context is NOT thread-safe, but the model can be shared across
	// goroutines.
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// pcmToFloat32Mono converts 16-bit signed little-endian PCM to the float32
// mono samples whisper.cpp expects, averaging channels when more than one
// is present.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	n := len(pcm) / 2 / channels
	out := make([]float32, 0, n)
	for i := 0; i+2*channels <= len(pcm); i += 2 * channels {
		var sum float32
		for c := 0; c < channels; c++ {
			s := int16(uint16(pcm[i+2*c]) | uint16(pcm[i+2*c+1])<<8)
			sum += float32(s) / 32768.0
		}
		out = append(out, sum/float32(channels))
	}
	return out
}
