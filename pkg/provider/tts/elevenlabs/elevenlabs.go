// Package elevenlabs provides an ElevenLabs-backed synthesizer using the
// ElevenLabs streaming WebSocket API. It implements the tts.Synthesizer
// interface: each Synthesize call opens a short-lived stream-input session,
// sends the full reply text, and collects the PCM chunks into one clip.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/tts"
)

const (
	defaultWSBase    = "wss://api.elevenlabs.io"
	wsPathFmt        = "/v1/text-to-speech/%s/stream-input?model_id=%s"
	voicesPath       = "/v1/voices"
	defaultAPIBase   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "pcm_16000",
// "pcm_24000"). The numeric suffix determines the clip's sample rate.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the WebSocket and REST endpoints. Useful for tests;
// the given base is used for both (ws scheme is derived automatically).
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		p.apiBase = strings.TrimRight(base, "/")
		p.wsBase = strings.TrimRight(base, "/")
	}
}

// Provider implements tts.Synthesizer backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	apiBase      string
	wsBase       string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		apiBase:      defaultAPIBase,
		wsBase:       defaultWSBase,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the
// WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"` // error or info
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// Synthesize opens a stream-input WebSocket session, sends the full text,
// and accumulates the returned PCM into a single clip.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (*tts.Clip, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}

	wsURL := p.wsBase + fmt.Sprintf(wsPathFmt, voice.ID, p.model)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(1 << 22)

	// The BOI message authenticates and configures the stream. ElevenLabs
	// requires a non-empty first text value.
	boi := boiMessage{
		Text: " ",
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		XiAPIKey:     p.apiKey,
		OutputFormat: p.outputFormat,
	}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	msgBytes, _ := json.Marshal(textMessage{Text: text + " "})
	if err := conn.Write(ctx, websocket.MessageText, msgBytes); err != nil {
		return nil, fmt.Errorf("elevenlabs: send text: %w", err)
	}

	// An empty text message flushes and ends the input stream.
	flushBytes, _ := json.Marshal(textMessage{Text: ""})
	if err := conn.Write(ctx, websocket.MessageText, flushBytes); err != nil {
		return nil, fmt.Errorf("elevenlabs: send flush: %w", err)
	}

	clip := &tts.Clip{Format: p.clipFormat()}
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Server closed the stream: done if any audio arrived.
			if len(clip.PCM) > 0 {
				return clip, nil
			}
			return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
		}

		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err == nil {
				clip.PCM = append(clip.PCM, pcm...)
			}
		}
		if resp.IsFinal {
			return clip, nil
		}
	}
}

// clipFormat derives the PCM layout from the configured output format.
// ElevenLabs pcm_* formats are mono 16-bit at the rate in the suffix.
func (p *Provider) clipFormat() audio.Format {
	f := audio.Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
	if rate, ok := strings.CutPrefix(p.outputFormat, "pcm_"); ok {
		if hz, err := strconv.Atoi(rate); err == nil && hz > 0 {
			f.SampleRate = hz
		}
	}
	return f
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured
// API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return convertVoices(vr), nil
}

// convertVoices maps the raw API response to tts.Voice values.
func convertVoices(vr voicesResponse) []tts.Voice {
	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, tts.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return voices
}
