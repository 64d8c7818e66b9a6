// Package mock provides a test double for the tts.Synthesizer interface.
package mock

import (
	"context"
	"sync"

	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/tts"
)

// Synthesizer is a mock implementation of tts.Synthesizer. Synthesize
// records the text it was given and returns a clip whose PCM is the text's
// bytes, so tests can assert on what was spoken without real audio.
type Synthesizer struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	// Texts records every text passed to Synthesize, in order.
	Texts []string
}

// Compile-time assertion that Synthesizer implements tts.Synthesizer.
var _ tts.Synthesizer = (*Synthesizer)(nil)

func (m *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.Voice) (*tts.Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.Texts = append(m.Texts, text)
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &tts.Clip{
		PCM:    []byte(text),
		Format: audio.DefaultFormat,
	}, nil
}

func (m *Synthesizer) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Voices, nil
}

// Calls reports how many times Synthesize ran.
func (m *Synthesizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Texts)
}
