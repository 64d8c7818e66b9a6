// Package asr defines the Recognizer interface for speech-to-text backends.
//
// A Recognizer wraps a transcription service (a local whisper.cpp server or
// model, Azure Speech, Deepgram) behind a single blocking operation:
// RecognizeOnce captures exactly one utterance from an audio source and
// returns its text. The conversation loop calls it once per listen cycle
// with a freshly opened source, so no recognizer state survives between
// cycles.
//
// Implementations must be safe for concurrent use, although the loop issues
// at most one RecognizeOnce call at a time.
package asr

import (
	"context"
	"time"

	"github.com/parley-ai/parley/pkg/audio"
)

// Config carries per-recognition hints. All fields are optional; zero values
// select implementation defaults.
type Config struct {
	// Language is the BCP-47 recognition language tag (e.g., "en-US").
	// Opaque to the caller; forwarded to the backend.
	Language string

	// SilenceWindow is the trailing-silence duration that ends an utterance
	// for recognizers doing local endpointing. Default 500 ms.
	SilenceWindow time.Duration

	// MaxUtterance caps how much audio may be captured for one utterance
	// before recognition is forced. Default 10 s.
	MaxUtterance time.Duration
}

// Result is the outcome of one recognition pass. A Result with empty Text
// and nil error means the utterance was silence or noise — that is a valid
// outcome, not a failure.
type Result struct {
	// Text is the transcribed utterance. Empty when nothing was recognised.
	Text string

	// Confidence is the backend's overall confidence (0.0–1.0), zero when
	// the backend does not report one.
	Confidence float64

	// AudioDuration is the length of audio submitted for recognition.
	AudioDuration time.Duration
}

// Recognizer is the abstraction over any speech-to-text backend.
//
// RecognizeOnce blocks until one utterance has been captured from src and
// transcribed, until src is exhausted, or until ctx is cancelled. The call
// must return promptly on cancellation; src is owned by the caller and is
// closed by the caller, not the recognizer.
type Recognizer interface {
	RecognizeOnce(ctx context.Context, src audio.Source, cfg Config) (Result, error)
}

const (
	// DefaultSilenceWindow is the trailing-silence duration that commits an
	// utterance when Config.SilenceWindow is zero.
	DefaultSilenceWindow = 500 * time.Millisecond

	// DefaultMaxUtterance bounds capture length when Config.MaxUtterance is
	// zero, preventing unbounded buffering during continuous speech.
	DefaultMaxUtterance = 10 * time.Second
)
