package azure_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/parley-ai/parley/pkg/audio"
	audiomock "github.com/parley-ai/parley/pkg/audio/mock"
	"github.com/parley-ai/parley/pkg/provider/asr"
	"github.com/parley-ai/parley/pkg/provider/asr/azure"
)

func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func utteranceSource(t *testing.T) audio.Source {
	t.Helper()
	var pcm []byte
	pcm = append(pcm, makeSpeechPCM(1600)...)
	pcm = append(pcm, make([]byte, 32000)...) // 1 s of silence
	opener := &audiomock.Opener{PCM: [][]byte{pcm}}
	src, err := opener.OpenSource(context.Background())
	if err != nil {
		t.Fatalf("open mock source: %v", err)
	}
	return src
}

// newMockService serves the Azure short-audio recognition endpoint with the
// given status and text, verifying the subscription key header.
func newMockService(t *testing.T, status, text string, lastLang *atomic.Value) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speech/recognition/conversation/cognitiveservices/v1" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if lastLang != nil {
			lastLang.Store(r.URL.Query().Get("language"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"RecognitionStatus": status,
			"DisplayText":       text,
			"Duration":          12_300_000,
		})
	}))
}

func TestNew_EmptyAPIKey_ReturnsError(t *testing.T) {
	if _, err := azure.New("westeurope", ""); err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

func TestNew_NoRegionNoEndpoint_ReturnsError(t *testing.T) {
	if _, err := azure.New("", "test-key"); err == nil {
		t.Fatal("expected error when neither region nor endpoint is set")
	}
}

func TestRecognizeOnce_Success(t *testing.T) {
	srv := newMockService(t, "Success", "hello there", nil)
	defer srv.Close()

	r, err := azure.New("", "test-key", azure.WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := utteranceSource(t)
	defer src.Close()

	res, err := r.RecognizeOnce(context.Background(), src, asr.Config{})
	if err != nil {
		t.Fatalf("RecognizeOnce: %v", err)
	}
	if res.Text != "hello there" {
		t.Errorf("Text = %q; want %q", res.Text, "hello there")
	}
	if res.AudioDuration <= 0 {
		t.Error("expected positive AudioDuration")
	}
}

func TestRecognizeOnce_NoMatch_YieldsEmptyResult(t *testing.T) {
	srv := newMockService(t, "NoMatch", "", nil)
	defer srv.Close()

	r, _ := azure.New("", "test-key", azure.WithEndpoint(srv.URL))
	src := utteranceSource(t)
	defer src.Close()

	res, err := r.RecognizeOnce(context.Background(), src, asr.Config{})
	if err != nil {
		t.Fatalf("RecognizeOnce: %v", err)
	}
	if res.Text != "" {
		t.Errorf("Text = %q; want empty", res.Text)
	}
}

func TestRecognizeOnce_ErrorStatus_ReturnsError(t *testing.T) {
	srv := newMockService(t, "Error", "", nil)
	defer srv.Close()

	r, _ := azure.New("", "test-key", azure.WithEndpoint(srv.URL))
	src := utteranceSource(t)
	defer src.Close()

	if _, err := r.RecognizeOnce(context.Background(), src, asr.Config{}); err == nil {
		t.Fatal("expected error for Error status, got nil")
	}
}

func TestRecognizeOnce_SendsConfiguredLanguage(t *testing.T) {
	var lang atomic.Value
	srv := newMockService(t, "Success", "servus", &lang)
	defer srv.Close()

	r, _ := azure.New("", "test-key",
		azure.WithEndpoint(srv.URL),
		azure.WithLanguage("de-DE"),
	)
	src := utteranceSource(t)
	defer src.Close()

	if _, err := r.RecognizeOnce(context.Background(), src, asr.Config{}); err != nil {
		t.Fatalf("RecognizeOnce: %v", err)
	}
	if got := lang.Load(); got != "de-DE" {
		t.Errorf("language query param = %v; want %q", got, "de-DE")
	}
}

func TestRecognizeOnce_HTTPError_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r, _ := azure.New("", "test-key", azure.WithEndpoint(srv.URL))
	src := utteranceSource(t)
	defer src.Close()

	if _, err := r.RecognizeOnce(context.Background(), src, asr.Config{}); err == nil {
		t.Fatal("expected error for HTTP 429, got nil")
	}
}
