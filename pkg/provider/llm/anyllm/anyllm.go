// Package anyllm adapts github.com/mozilla-ai/any-llm-go to the llm.Provider
// interface, giving a single constructor for every chat backend the library
// ships: OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq,
// llama.cpp and llamafile.
//
//	p, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/parley-ai/parley/pkg/provider/llm"
)

// backends maps a provider name to the any-llm-go constructor for it. Keys
// are the names accepted by [New].
var backends = map[string]func(...anyllmlib.Option) (anyllmlib.Provider, error){
	"openai":    func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(opts...) },
	"anthropic": func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(opts...) },
	"gemini":    func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(opts...) },
	"ollama":    func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(opts...) },
	"deepseek":  func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(opts...) },
	"mistral":   func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(opts...) },
	"groq":      func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(opts...) },
	"llamacpp":  func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(opts...) },
	"llamafile": func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(opts...) },
}

// Backends returns the provider names [New] accepts, sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provider implements llm.Provider on top of an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// New constructs a Provider for the named backend (see [Backends]) and
// model. opts pass straight through to any-llm-go; when no API key option
// is given the backend falls back to its environment variable
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, and so on).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	construct, ok := backends[strings.ToLower(providerName)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported provider %q; supported: %s",
			providerName, strings.Join(Backends(), ", "))
	}
	backend, err := construct(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, model: model}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	result := &llm.CompletionResponse{
		Content: resp.Choices[0].Message.ContentString(),
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, len(req.Messages)+1)

	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}
