// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the conversation loop sends
// correct CompletionRequests and to feed controlled responses without a live
// LLM backend. All fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []*llm.CompletionResponse{{Content: "Hello!"}},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/parley-ai/parley/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider. Responses are consumed
// in order; once exhausted the last entry repeats. A nil Responses slice
// causes Complete to return an empty response.
type Provider struct {
	mu sync.Mutex

	// Responses is the sequence of responses returned by Complete.
	Responses []*llm.CompletionResponse

	// Errs pairs with Responses; a non-nil entry is returned instead of
	// the corresponding response.
	Errs []error

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	i := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if len(p.Errs) > 0 {
		j := i
		if j >= len(p.Errs) {
			j = len(p.Errs) - 1
		}
		if p.Errs[j] != nil {
			return nil, p.Errs[j]
		}
	}
	if len(p.Responses) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	if i >= len(p.Responses) {
		i = len(p.Responses) - 1
	}
	return p.Responses[i], nil
}

// Calls reports how many times Complete ran.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// LastRequest returns the most recent CompletionRequest, or a zero value when
// Complete has not been called.
func (p *Provider) LastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.CompleteCalls) == 0 {
		return llm.CompletionRequest{}
	}
	return p.CompleteCalls[len(p.CompleteCalls)-1].Req
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}
