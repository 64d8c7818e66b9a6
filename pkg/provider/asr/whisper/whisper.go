// Package whisper provides speech recognizers backed by whisper.cpp.
//
// Two variants are available:
//
//   - [Recognizer] talks to a running whisper-server binary over its REST
//     API (POST /inference). Each utterance is captured from the audio
//     source with an energy-based endpointer and submitted as a single
//     batch request.
//   - [NativeRecognizer] loads a GGML model in process through the
//     whisper.cpp cgo bindings and needs no server; libwhisper.a and
//     whisper.h must be available at link time.
//
// Usage:
//
//	r, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	res, err := r.RecognizeOnce(ctx, src, asr.Config{})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/asr"
)

const defaultLanguage = "en"

// Compile-time assertion that Recognizer implements asr.Recognizer.
var _ asr.Recognizer = (*Recognizer)(nil)

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with.
func WithModel(model string) Option {
	return func(r *Recognizer) {
		r.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en". A language set in the
// per-call [asr.Config] takes precedence.
func WithLanguage(lang string) Option {
	return func(r *Recognizer) {
		r.language = lang
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Recognizer) {
		r.httpClient = c
	}
}

// Recognizer implements asr.Recognizer backed by a whisper.cpp HTTP server.
// It is safe for concurrent use; each RecognizeOnce call is independent.
type Recognizer struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Recognizer that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Recognizer, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	r := &Recognizer{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// RecognizeOnce captures a single utterance from src and submits it to the
// whisper.cpp server for batch transcription. A turn that contains no speech
// before the source ends yields an empty Result with a nil error.
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

	text, err := r.infer(ctx, audio.EncodeWAV(pcm, src.Format()), lang)
	if err != nil {
		return asr.Result{}, err
	}
	return asr.Result{
		Text:          strings.TrimSpace(text),
		AudioDuration: dur,
	}, nil
}

// infer POSTs a WAV file to the whisper.cpp /inference endpoint as
// multipart/form-data and returns the transcribed text.
func (r *Recognizer) infer(ctx context.Context, wav []byte, language string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if r.model != "" {
		if err := mw.WriteField("model", r.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}
