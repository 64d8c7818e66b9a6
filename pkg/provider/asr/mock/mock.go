// Package mock provides a scripted [asr.Recognizer] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/asr"
)

// Recognizer returns scripted results in order. Once the script is
// exhausted it keeps returning the last entry, or a zero result when
// no script was given.
type Recognizer struct {
	mu      sync.Mutex
	Results []asr.Result
	Errs    []error

	calls int
}

var _ asr.Recognizer = (*Recognizer)(nil)

func (m *Recognizer) RecognizeOnce(ctx context.Context, src audio.Source, cfg asr.Config) (asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return asr.Result{}, err
	}
	m.mu.Lock()
	i := m.calls
	m.calls++
	m.mu.Unlock()

	var res asr.Result
	if len(m.Results) > 0 {
		if i >= len(m.Results) {
			i = len(m.Results) - 1
		}
		res = m.Results[i]
	}
	var err error
	if len(m.Errs) > 0 {
		j := i
		if j >= len(m.Errs) {
			j = len(m.Errs) - 1
		}
		err = m.Errs[j]
	}
	return res, err
}

// Calls reports how many times RecognizeOnce ran.
func (m *Recognizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
