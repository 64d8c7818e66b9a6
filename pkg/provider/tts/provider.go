// Package tts defines the Synthesizer interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, or a
// local Coqui instance) and renders a complete reply into a PCM clip that
// the playback device can drain. In a strict turn-taking loop the assistant
// speaks whole replies, so the interface is batch rather than streaming.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/parley-ai/parley/pkg/audio"
)

// Voice describes a synthesis voice configuration.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, age,
	// accent, etc.).
	Metadata map[string]string
}

// Clip is a fully synthesised utterance.
type Clip struct {
	// PCM is raw 16-bit little-endian signed audio.
	PCM []byte

	// Format describes the PCM layout.
	Format audio.Format
}

// Synthesizer is the abstraction over any TTS backend.
type Synthesizer interface {
	// Synthesize renders text into a PCM clip using the given voice.
	// Implementations should return an error if the requested voice is not
	// available or if ctx is cancelled before synthesis completes.
	Synthesize(ctx context.Context, text string, voice Voice) (*Clip, error)

	// ListVoices returns all voice profiles available from this provider.
	// The list reflects the provider's current catalogue and may change
	// between calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]Voice, error)
}
