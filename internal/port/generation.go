package port

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/parley-ai/parley/internal/chat"
	"github.com/parley-ai/parley/internal/observe"
	"github.com/parley-ai/parley/internal/resilience"
	"github.com/parley-ai/parley/pkg/provider/llm"
)

// RoleMode controls how dialogue turns map to chat-completion roles.
type RoleMode string

const (
	// RoleModeCollapsed sends every history turn with the user role. Some
	// persona prompts hold character better when the model never sees its
	// own previous answers attributed to the assistant.
	RoleModeCollapsed RoleMode = "collapsed"

	// RoleModeFaithful maps user turns to the user role and assistant
	// turns to the assistant role.
	RoleModeFaithful RoleMode = "faithful"
)

// Generation adapts an [llm.Provider] into the loop's reply stage. The
// persona travels as the system prompt; history turns become chat messages
// according to the configured [RoleMode]. Calls go through a circuit
// breaker so a dead API fails fast instead of stalling every turn.
type Generation struct {
	provider llm.Provider
	name     string
	roleMode RoleMode

	temperature float64
	maxTokens   int

	breaker *resilience.CircuitBreaker
	log     *slog.Logger
	metrics *observe.Metrics
}

// compile-time interface check
var _ chat.Generator = (*Generation)(nil)

// GenerationOption configures a [Generation].
type GenerationOption func(*Generation)

// WithRoleMode sets the turn-to-role mapping. Default: [RoleModeCollapsed].
func WithRoleMode(mode RoleMode) GenerationOption {
	return func(g *Generation) { g.roleMode = mode }
}

// WithSampling sets the temperature and completion token limit forwarded to
// the provider. Zero values are omitted from requests.
func WithSampling(temperature float64, maxTokens int) GenerationOption {
	return func(g *Generation) {
		g.temperature = temperature
		g.maxTokens = maxTokens
	}
}

// WithBreaker sets the circuit breaker guarding provider calls. When nil,
// calls go straight through.
func WithBreaker(cb *resilience.CircuitBreaker) GenerationOption {
	return func(g *Generation) { g.breaker = cb }
}

// WithGenerationLogger sets the logger. Defaults to slog.Default().
func WithGenerationLogger(log *slog.Logger) GenerationOption {
	return func(g *Generation) { g.log = log }
}

// WithGenerationMetrics enables stage metrics, labelled with the given
// provider name.
func WithGenerationMetrics(m *observe.Metrics, provider string) GenerationOption {
	return func(g *Generation) {
		g.metrics = m
		g.name = provider
	}
}

// NewGeneration creates the reply-stage adapter.
func NewGeneration(provider llm.Provider, opts ...GenerationOption) *Generation {
	g := &Generation{
		provider: provider,
		name:     "llm",
		roleMode: RoleModeCollapsed,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate produces the next reply from the persona and the dialogue so
// far. Failures (including an open breaker) are wrapped in
// [chat.ErrGenerationFailed]; cancellation passes through untouched.
func (g *Generation) Generate(ctx context.Context, persona string, turns []chat.Turn) (string, error) {
	req := llm.CompletionRequest{
		SystemPrompt: persona,
		Messages:     g.buildMessages(turns),
		Temperature:  g.temperature,
		MaxTokens:    g.maxTokens,
	}

	start := time.Now()
	var resp *llm.CompletionResponse

	call := func(ctx context.Context) error {
		var err error
		resp, err = g.provider.Complete(ctx, req)
		return err
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if g.metrics != nil {
			g.metrics.RecordProviderRequest(ctx, g.name, "llm", "error")
			g.metrics.RecordProviderError(ctx, g.name, "llm")
		}
		return "", fmt.Errorf("%w: %v", chat.ErrGenerationFailed, err)
	}

	if g.metrics != nil {
		g.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("provider", g.name)))
		g.metrics.RecordProviderRequest(ctx, g.name, "llm", "ok")
	}
	if resp.Usage.TotalTokens > 0 {
		g.log.Debug("completion usage",
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens)
	}
	return resp.Content, nil
}

// buildMessages converts history turns to provider messages per the role
// mode. Turns arrive oldest first and keep that order.
func (g *Generation) buildMessages(turns []chat.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, turn := range turns {
		role := "user"
		if g.roleMode == RoleModeFaithful && turn.Role == chat.RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, llm.Message{Role: role, Content: turn.Text})
	}
	return msgs
}
