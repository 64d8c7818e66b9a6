// Package azure provides a speech recognizer backed by the Azure Speech
// short-audio REST API.
//
// Each RecognizeOnce call captures a single utterance with the shared
// energy-based endpointer and submits it as one recognition request, the
// recommended pattern for turn-taking dialogue where an utterance rarely
// exceeds a few seconds.
//
// Usage:
//
//	r, err := azure.New("westeurope", apiKey, azure.WithLanguage("en-US"))
//	res, err := r.RecognizeOnce(ctx, src, asr.Config{})
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/asr"
)

const defaultLanguage = "en-US"

// recognitionPath is the short-audio endpoint for conversational speech.
const recognitionPath = "/speech/recognition/conversation/cognitiveservices/v1"

// Compile-time assertion that Recognizer implements asr.Recognizer.
var _ asr.Recognizer = (*Recognizer)(nil)

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLanguage sets the recognition language as a BCP-47 tag with region
// (e.g., "en-US", "de-DE"). Defaults to "en-US". A language set in the
// per-call [asr.Config] takes precedence.
func WithLanguage(lang string) Option {
	return func(r *Recognizer) {
		r.language = lang
	}
}

// WithEndpoint overrides the service endpoint derived from the region.
// Useful for sovereign clouds and tests.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) {
		r.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithHTTPClient replaces the HTTP client used for recognition requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Recognizer) {
		r.httpClient = c
	}
}

// Recognizer implements asr.Recognizer backed by the Azure Speech REST API.
// It is safe for concurrent use; each RecognizeOnce call is independent.
type Recognizer struct {
	endpoint   string
	apiKey     string
	language   string
	httpClient *http.Client
}

// New creates a Recognizer for the given Azure region (e.g., "westeurope")
// and subscription key. Both must be non-empty unless WithEndpoint overrides
// the region-derived URL.
func New(region, apiKey string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, errors.New("azure: apiKey must not be empty")
	}
	r := &Recognizer{
		apiKey:     apiKey,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if region != "" {
		r.endpoint = fmt.Sprintf("https://%s.stt.speech.microsoft.com", region)
	}
	for _, o := range opts {
		o(r)
	}
	if r.endpoint == "" {
		return nil, errors.New("azure: region or endpoint must be set")
	}
	return r, nil
}

// recognitionResponse is the subset of the Azure response the recognizer
// consumes. Duration and Offset are expressed in 100-nanosecond ticks.
type recognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	Duration          int64  `json:"Duration"`
}

// RecognizeOnce captures a single utterance from src and submits it for
// recognition. A turn with no speech, or one the service reports as NoMatch
// or InitialSilenceTimeout, yields an empty Result with a nil error.
func (r *Recognizer) RecognizeOnce(ctx context.Context, src audio.Source, cfg asr.Config) (asr.Result, error) {
	pcm, dur, err := asr.CaptureUtterance(ctx, src, cfg)
	if err != nil {
		return asr.Result{}, err
	}
	if len(pcm) == 0 {
		return asr.Result{}, nil
	}

	lang := cfg.Language
	if lang == "" {
		lang = r.language
	}

	format := src.Format()
	reqURL := r.endpoint + recognitionPath + "?" + url.Values{
		"language": {lang},
		"format":   {"simple"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(audio.EncodeWAV(pcm, format)))
	if err != nil {
		return asr.Result{}, fmt.Errorf("azure: create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", r.apiKey)
	req.Header.Set("Content-Type", fmt.Sprintf("audio/wav; codecs=audio/pcm; samplerate=%d", format.SampleRate))
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return asr.Result{}, fmt.Errorf("azure: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return asr.Result{}, fmt.Errorf("azure: service returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return asr.Result{}, fmt.Errorf("azure: read response body: %w", err)
	}

	var result recognitionResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return asr.Result{}, fmt.Errorf("azure: parse JSON response: %w", err)
	}

	switch result.RecognitionStatus {
	case "Success":
		return asr.Result{
			Text:          strings.TrimSpace(result.DisplayText),
			AudioDuration: dur,
		}, nil
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return asr.Result{AudioDuration: dur}, nil
	default:
		return asr.Result{}, fmt.Errorf("azure: recognition failed with status %q", result.RecognitionStatus)
	}
}
