// Package deepgram provides a speech recognizer backed by the Deepgram
// streaming WebSocket API.
//
// Unlike the batch recognizers, Deepgram performs its own server-side
// endpointing: RecognizeOnce opens a short-lived streaming session, pumps
// audio from the source, and returns as soon as the service reports the
// end of the utterance (speech_final). The local energy endpointer is not
// used.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/asr"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"

	// writeChunkMs is the cadence at which captured audio is forwarded to
	// the streaming session.
	writeChunkMs = 50
)

// Compile-time assertion that Recognizer implements asr.Recognizer.
var _ asr.Recognizer = (*Recognizer)(nil)

// Option is a functional option for configuring the Recognizer.
type Option func(*Recognizer)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(r *Recognizer) {
		r.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en",
// "de-DE"). A language set in the per-call [asr.Config] takes precedence.
func WithLanguage(language string) Option {
	return func(r *Recognizer) {
		r.language = language
	}
}

// WithEndpoint overrides the streaming endpoint URL. Useful for tests and
// self-hosted deployments.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) {
		r.endpoint = endpoint
	}
}

// Recognizer implements asr.Recognizer backed by the Deepgram streaming
// API. Each RecognizeOnce call opens its own WebSocket session, so the
// Recognizer is safe for concurrent use.
type Recognizer struct {
	apiKey   string
	endpoint string
	model    string
	language string
}

// New creates a Deepgram Recognizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	r := &Recognizer{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// resultsMessage is the subset of a Deepgram Results event the recognizer
// consumes.
type resultsMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// RecognizeOnce streams audio from src to Deepgram and returns the first
// complete utterance the service delimits. An utterance boundary reached
// with no recognized speech yields an empty Result with a nil error.
func (r *Recognizer) RecognizeOnce(ctx context.Context, src audio.Source, cfg asr.Config) (asr.Result, error) {
	wsURL, err := r.buildURL(src.Format(), cfg)
	if err != nil {
		return asr.Result{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return asr.Result{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "utterance complete")

	// The writer runs until the source ends, the utterance completes, or
	// ctx is cancelled.
	writeCtx, stopWriter := context.WithCancel(ctx)
	defer stopWriter()
	writerDone := make(chan error, 1)
	go func() {
		writerDone <- r.pumpAudio(writeCtx, conn, src)
	}()

	start := time.Now()
	var parts []string
	var confidence float64

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return asr.Result{}, ctx.Err()
			}
			// Server closed after CloseStream: whatever finals arrived
			// form the utterance.
			return r.finish(parts, confidence, time.Since(start)), nil
		}

		var res resultsMessage
		if err := json.Unmarshal(msg, &res); err != nil || res.Type != "Results" {
			continue
		}
		if len(res.Channel.Alternatives) == 0 {
			continue
		}
		alt := res.Channel.Alternatives[0]

		if res.IsFinal && alt.Transcript != "" {
			parts = append(parts, alt.Transcript)
			if alt.Confidence > confidence {
				confidence = alt.Confidence
			}
		}
		if res.SpeechFinal {
			stopWriter()
			<-writerDone
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
			return r.finish(parts, confidence, time.Since(start)), nil
		}
	}
}

func (r *Recognizer) finish(parts []string, confidence float64, elapsed time.Duration) asr.Result {
	return asr.Result{
		Text:          strings.TrimSpace(strings.Join(parts, " ")),
		Confidence:    confidence,
		AudioDuration: elapsed,
	}
}

// pumpAudio forwards PCM from src to the session as binary messages and
// signals end-of-stream with a CloseStream control message.
func (r *Recognizer) pumpAudio(ctx context.Context, conn *websocket.Conn, src audio.Source) error {
	chunkBytes := src.Format().BytesPerSecond() * writeChunkMs / 1000
	if chunkBytes < 2 {
		chunkBytes = 2
	}
	buf := make([]byte, chunkBytes)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			if werr := conn.Write(ctx, websocket.MessageBinary, buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
			}
			return err
		}
	}
}

// buildURL constructs the streaming endpoint URL for the given audio format
// and per-call config.
func (r *Recognizer) buildURL(f audio.Format, cfg asr.Config) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = r.language
	}
	endpointing := cfg.SilenceWindow
	if endpointing <= 0 {
		endpointing = asr.DefaultSilenceWindow
	}

	q := u.Query()
	q.Set("model", r.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(f.SampleRate))
	q.Set("channels", strconv.Itoa(f.Channels))
	q.Set("endpointing", strconv.FormatInt(endpointing.Milliseconds(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
