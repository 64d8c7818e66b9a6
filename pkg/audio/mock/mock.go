// Package mock provides test doubles for the audio.SourceOpener and
// audio.Sink interfaces.
//
// Opener serves pre-canned PCM from memory; Sink records everything played
// into it. Both keep call records for assertions after the test.
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/parley-ai/parley/pkg/audio"
)

// Opener is a mock audio.SourceOpener. Each OpenSource call serves the next
// element of PCM (the last element is reused once the list is exhausted).
type Opener struct {
	mu sync.Mutex

	// PCM is the sequence of capture payloads to serve, one per OpenSource.
	PCM [][]byte

	// SourceFormat is reported by every opened source. Zero value means
	// audio.DefaultFormat.
	SourceFormat audio.Format

	// OpenErr, if non-nil, is returned by OpenSource instead of a source.
	OpenErr error

	// Opens counts OpenSource invocations.
	Opens int
}

// OpenSource implements audio.SourceOpener.
func (o *Opener) OpenSource(_ context.Context) (audio.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.OpenErr != nil {
		o.Opens++
		return nil, o.OpenErr
	}
	idx := o.Opens
	if idx >= len(o.PCM) {
		idx = len(o.PCM) - 1
	}
	var data []byte
	if idx >= 0 {
		data = o.PCM[idx]
	}
	o.Opens++
	f := o.SourceFormat
	if f.SampleRate == 0 {
		f = audio.DefaultFormat
	}
	return &source{r: bytes.NewReader(data), format: f}, nil
}

type source struct {
	r      *bytes.Reader
	format audio.Format
	closed bool
}

func (s *source) Read(p []byte) (int, error) {
	if s.closed {
		return 0, io.EOF
	}
	return s.r.Read(p)
}

func (s *source) Format() audio.Format { return s.format }

func (s *source) Close() error {
	s.closed = true
	return nil
}

// Sink is a mock audio.Sink that records played audio.
type Sink struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play after draining r.
	PlayErr error

	// Played collects the full payload of each Play call in order.
	Played [][]byte
}

// Play implements audio.Sink. It drains r completely before returning so
// that callers exercising the blocking-playback contract behave as they
// would against a real device.
func (s *Sink) Play(ctx context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.Played = append(s.Played, data)
	err = s.PlayErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return ctx.Err()
}

// PlayCount returns the number of completed Play calls.
func (s *Sink) PlayCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Played)
}
