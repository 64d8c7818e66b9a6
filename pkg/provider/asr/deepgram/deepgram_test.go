package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/parley-ai/parley/pkg/audio"
	audiomock "github.com/parley-ai/parley/pkg/audio/mock"
	"github.com/parley-ai/parley/pkg/provider/asr"
)

func assertEqual(t *testing.T, name, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %q; want %q", name, got, want)
	}
}

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	r, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := r.buildURL(audio.DefaultFormat, asr.Config{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	assertEqual(t, "endpointing", "500", q.Get("endpointing"))
}

func TestBuildURL_CustomModelAndLanguage(t *testing.T) {
	r, err := New("key", WithModel("base"), WithLanguage("de-DE"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := r.buildURL(audio.Format{SampleRate: 48000, Channels: 2, BitsPerSample: 16}, asr.Config{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "channels", "2", q.Get("channels"))
}

func TestBuildURL_ConfigOverrides(t *testing.T) {
	r, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := r.buildURL(audio.DefaultFormat, asr.Config{
		Language:      "fr-FR",
		SilenceWindow: 800 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "fr-FR", u.Query().Get("language"))
	assertEqual(t, "endpointing", "800", u.Query().Get("endpointing"))
}

func TestNew_EmptyAPIKey_ReturnsError(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

// ---- live session tests against a fake server ----

// fakeDeepgram accepts one WebSocket session, consumes binary audio, and
// replies with a final Results event once any audio has arrived.
func fakeDeepgram(t *testing.T, transcript string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.HasPrefix(req.Header.Get("Authorization"), "Token ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		// Wait for the first audio chunk.
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}

		msg := map[string]any{
			"type":         "Results",
			"is_final":     true,
			"speech_final": true,
			"channel": map[string]any{
				"alternatives": []map[string]any{
					{"transcript": transcript, "confidence": 0.97},
				},
			},
		}
		data, _ := json.Marshal(msg)
		_ = conn.Write(ctx, websocket.MessageText, data)

		// Drain until the client closes.
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
}

func TestRecognizeOnce_ReturnsDelimitedUtterance(t *testing.T) {
	srv := fakeDeepgram(t, "open the gates")
	defer srv.Close()

	r, err := New("test-key", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	opener := &audiomock.Opener{PCM: [][]byte{make([]byte, 32000)}}
	src, err := opener.OpenSource(context.Background())
	if err != nil {
		t.Fatalf("open mock source: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := r.RecognizeOnce(ctx, src, asr.Config{})
	if err != nil {
		t.Fatalf("RecognizeOnce: %v", err)
	}
	if res.Text != "open the gates" {
		t.Errorf("Text = %q; want %q", res.Text, "open the gates")
	}
	if res.Confidence != 0.97 {
		t.Errorf("Confidence = %v; want 0.97", res.Confidence)
	}
}

func TestRecognizeOnce_DialFailure_ReturnsError(t *testing.T) {
	r, err := New("test-key", WithEndpoint("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	opener := &audiomock.Opener{PCM: [][]byte{make([]byte, 320)}}
	src, _ := opener.OpenSource(context.Background())
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := r.RecognizeOnce(ctx, src, asr.Config{}); err == nil {
		t.Fatal("expected dial error, got nil")
	}
}
