package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr": {"whisper", "whisper-native", "azure", "deepgram"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation, warnings only since third-party names are
	// allowed.
	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.ASR.Name == "" {
		errs = append(errs, errors.New("providers.asr.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}

	// Conversation
	conv := cfg.Conversation
	if strings.TrimSpace(conv.Persona) == "" {
		errs = append(errs, errors.New("conversation.persona is required"))
	}
	if conv.HistoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("conversation.history_capacity %d must not be negative", conv.HistoryCapacity))
	}
	if conv.RoleMode != "" && !conv.RoleMode.IsValid() {
		errs = append(errs, fmt.Errorf("conversation.role_mode %q is invalid; valid values: collapsed, faithful", conv.RoleMode))
	}
	if conv.Temperature < 0 || conv.Temperature > 2 {
		errs = append(errs, fmt.Errorf("conversation.temperature %.2f is out of range [0, 2]", conv.Temperature))
	}
	if conv.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_tokens %d must not be negative", conv.MaxTokens))
	}
	for i, phrase := range conv.StopPhrases {
		if strings.TrimSpace(phrase) == "" {
			errs = append(errs, fmt.Errorf("conversation.stop_phrases[%d] is blank", i))
		}
	}
	if len(conv.StopPhrases) == 0 {
		slog.Warn("no stop phrases configured; the session can only be ended by signal")
	}
	if conv.ListenTimeout < 0 || conv.GenerateTimeout < 0 || conv.SpeakTimeout < 0 {
		errs = append(errs, errors.New("conversation timeouts must not be negative"))
	}

	// Audio overrides
	if len(cfg.Audio.CaptureCommand) == 1 && cfg.Audio.CaptureCommand[0] == "" {
		errs = append(errs, errors.New("audio.capture_command must name an executable"))
	}
	if len(cfg.Audio.PlaybackCommand) == 1 && cfg.Audio.PlaybackCommand[0] == "" {
		errs = append(errs, errors.New("audio.playback_command must name an executable"))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.HalfOpenMax < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience settings must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
