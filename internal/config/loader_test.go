package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/parley-ai/parley/pkg/provider/llm"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  asr:
    name: whisper
    base_url: http://localhost:9000
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  tts:
    name: coqui
    base_url: http://localhost:5002
conversation:
  persona: "You are a grumpy lighthouse keeper."
  history_capacity: 10
  role_mode: faithful
  stop_phrases:
    - stop listening
    - goodbye computer
  language: en-US
  temperature: 0.8
  max_tokens: 200
  generate_timeout: 30s
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm model = %q", cfg.Providers.LLM.Model)
	}
	if cfg.Conversation.HistoryCapacity != 10 {
		t.Errorf("history_capacity = %d", cfg.Conversation.HistoryCapacity)
	}
	if cfg.Conversation.RoleMode != RoleModeFaithful {
		t.Errorf("role_mode = %q", cfg.Conversation.RoleMode)
	}
	if len(cfg.Conversation.StopPhrases) != 2 {
		t.Errorf("stop_phrases = %v", cfg.Conversation.StopPhrases)
	}
	if cfg.Conversation.GenerateTimeout != 30*time.Second {
		t.Errorf("generate_timeout = %v", cfg.Conversation.GenerateTimeout)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	yaml := validYAML + "\nunknown_section:\n  foo: bar\n"
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("unknown top-level field was accepted")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		cfg, err := LoadFromReader(strings.NewReader(validYAML))
		if err != nil {
			t.Fatalf("base config: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantSub: "server.log_level",
		},
		{
			name:    "missing asr provider",
			mutate:  func(c *Config) { c.Providers.ASR.Name = "" },
			wantSub: "providers.asr.name",
		},
		{
			name:    "missing llm provider",
			mutate:  func(c *Config) { c.Providers.LLM.Name = "" },
			wantSub: "providers.llm.name",
		},
		{
			name:    "missing tts provider",
			mutate:  func(c *Config) { c.Providers.TTS.Name = "" },
			wantSub: "providers.tts.name",
		},
		{
			name:    "blank persona",
			mutate:  func(c *Config) { c.Conversation.Persona = "   " },
			wantSub: "conversation.persona",
		},
		{
			name:    "negative history capacity",
			mutate:  func(c *Config) { c.Conversation.HistoryCapacity = -1 },
			wantSub: "history_capacity",
		},
		{
			name:    "bad role mode",
			mutate:  func(c *Config) { c.Conversation.RoleMode = "merged" },
			wantSub: "role_mode",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.Conversation.Temperature = 3.5 },
			wantSub: "temperature",
		},
		{
			name:    "blank stop phrase",
			mutate:  func(c *Config) { c.Conversation.StopPhrases = []string{"stop", " "} },
			wantSub: "stop_phrases[1]",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Conversation.ListenTimeout = -time.Second },
			wantSub: "timeouts",
		},
		{
			name:    "negative breaker settings",
			mutate:  func(c *Config) { c.Resilience.MaxFailures = -2 },
			wantSub: "resilience",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("empty config validated")
	}
	for _, want := range []string{"providers.asr.name", "providers.llm.name", "providers.tts.name", "conversation.persona"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/parley.yaml")
	if err == nil {
		t.Fatal("Load accepted a missing file")
	}
}

func TestProviderEntry_StringOption(t *testing.T) {
	t.Parallel()

	e := ProviderEntry{Options: map[string]any{"api_mode": "xtts", "retries": 3}}
	if got := e.StringOption("api_mode"); got != "xtts" {
		t.Errorf("StringOption(api_mode) = %q", got)
	}
	if got := e.StringOption("retries"); got != "" {
		t.Errorf("StringOption(retries) = %q, want empty for non-string", got)
	}
	if got := e.StringOption("absent"); got != "" {
		t.Errorf("StringOption(absent) = %q, want empty", got)
	}
}

func TestRegistry_DispatchAndMiss(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	r.RegisterLLM("fake", func(e ProviderEntry) (llm.Provider, error) {
		return nil, errors.New("factory ran: " + e.Model)
	})

	_, err := r.CreateLLM(ProviderEntry{Name: "fake", Model: "m1"})
	if err == nil || !strings.Contains(err.Error(), "factory ran: m1") {
		t.Errorf("factory was not dispatched: %v", err)
	}

	_, err = r.CreateLLM(ProviderEntry{Name: "missing"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	_, err = r.CreateASR(ProviderEntry{Name: "missing"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	_, err = r.CreateTTS(ProviderEntry{Name: "missing"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}
