// Package config provides the configuration schema, loader, and provider
// registry for the parley conversation daemon.
package config

import "time"

// LogLevel controls log verbosity for the daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// RoleMode selects how dialogue history maps to chat-completion roles.
type RoleMode string

const (
	// RoleModeCollapsed sends all history with the user role.
	RoleModeCollapsed RoleMode = "collapsed"

	// RoleModeFaithful maps user and assistant turns to their own roles.
	RoleModeFaithful RoleMode = "faithful"
)

// IsValid reports whether m is a recognised role mode.
func (m RoleMode) IsValid() bool {
	return m == RoleModeCollapsed || m == RoleModeFaithful
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Conversation ConversationConfig `yaml:"conversation"`
	Audio        AudioConfig        `yaml:"audio"`
	Resilience   ResilienceConfig   `yaml:"resilience"`
}

// ServerConfig holds network and logging settings for the ops endpoint.
type ServerConfig struct {
	// ListenAddr is the TCP address the ops HTTP server (metrics, health)
	// listens on (e.g., ":8080"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	ASR ProviderEntry `yaml:"asr"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "openai", "whisper", "coqui").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above. Values may be strings, numbers, booleans,
	// or nested maps.
	Options map[string]any `yaml:"options"`
}

// StringOption returns Options[key] as a string, or "" when absent or not
// a string.
func (e ProviderEntry) StringOption(key string) string {
	if s, ok := e.Options[key].(string); ok {
		return s
	}
	return ""
}

// ConversationConfig describes the dialogue behaviour of the daemon.
type ConversationConfig struct {
	// Persona is the free-text character description sent to the LLM as
	// the system prompt.
	Persona string `yaml:"persona"`

	// HistoryCapacity bounds the rolling dialogue history in turns.
	// Zero uses the built-in default of 20.
	HistoryCapacity int `yaml:"history_capacity"`

	// RoleMode selects the history-to-role mapping. Default: collapsed.
	RoleMode RoleMode `yaml:"role_mode"`

	// StopPhrases are spoken commands that end the session cleanly
	// (e.g., "stop listening").
	StopPhrases []string `yaml:"stop_phrases"`

	// Language is the BCP-47 recognition language hint (e.g., "en-US").
	Language string `yaml:"language"`

	// Voice is the provider-specific TTS voice identifier.
	Voice string `yaml:"voice"`

	// Temperature is forwarded to the LLM. Zero uses the provider default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps completion length. Zero means no explicit cap.
	MaxTokens int `yaml:"max_tokens"`

	// ListenTimeout bounds one utterance capture. Zero disables it.
	ListenTimeout time.Duration `yaml:"listen_timeout"`

	// GenerateTimeout bounds one reply generation. Zero disables it.
	GenerateTimeout time.Duration `yaml:"generate_timeout"`

	// SpeakTimeout bounds one playback. Zero disables it.
	SpeakTimeout time.Duration `yaml:"speak_timeout"`
}

// AudioConfig overrides the capture and playback shell-outs.
type AudioConfig struct {
	// CaptureCommand replaces the default arecord invocation. The command
	// must write raw 16 kHz mono 16-bit PCM to stdout.
	CaptureCommand []string `yaml:"capture_command"`

	// PlaybackCommand replaces the default aplay invocation. The command
	// must read raw PCM from stdin and block until playback finishes.
	PlaybackCommand []string `yaml:"playback_command"`
}

// ResilienceConfig tunes the circuit breaker around generation calls.
type ResilienceConfig struct {
	// MaxFailures is the consecutive-failure count that opens the breaker.
	// Zero uses the default of 5.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the breaker stays open. Zero means 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenMax is the probe budget in the half-open state. Zero means 3.
	HalfOpenMax int `yaml:"half_open_max"`
}
