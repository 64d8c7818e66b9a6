package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"mime"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/parley-ai/parley/pkg/audio"
	audiomock "github.com/parley-ai/parley/pkg/audio/mock"
	"github.com/parley-ai/parley/pkg/provider/asr"
	"github.com/parley-ai/parley/pkg/provider/asr/whisper"
)

// ---- helpers ----------------------------------------------------------------

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing the provided responseText. It increments *callCount on
// every matched request and records the language form field in *lastLang when
// the pointer is non-nil.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32, lastLang *atomic.Value) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "multipart/form-data" {
			http.Error(w, "expected multipart/form-data", http.StatusBadRequest)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if lastLang != nil {
			lastLang.Store(r.FormValue("language"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

// makeSpeechPCM generates a sine-wave PCM buffer at 440 Hz whose RMS is well
// above the silence threshold. The buffer contains `samples` 16-bit
// little-endian signed samples.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// makeSilencePCM generates a zero-valued PCM buffer containing `samples`
// 16-bit little-endian samples.
func makeSilencePCM(samples int) []byte {
	return make([]byte, samples*2)
}

// utteranceSource returns a mock audio source serving speech followed by
// enough trailing silence to delimit the utterance.
func utteranceSource(t *testing.T) audio.Source {
	t.Helper()
	var pcm []byte
	pcm = append(pcm, makeSpeechPCM(1600)...)   // 100 ms of speech
	pcm = append(pcm, makeSilencePCM(16000)...) // 1 s of silence
	opener := &audiomock.Opener{PCM: [][]byte{pcm}}
	src, err := opener.OpenSource(context.Background())
	if err != nil {
		t.Fatalf("open mock source: %v", err)
	}
	return src
}

// silenceSource returns a mock audio source serving only silence.
func silenceSource(t *testing.T) audio.Source {
	t.Helper()
	opener := &audiomock.Opener{PCM: [][]byte{makeSilencePCM(16000)}}
	src, err := opener.OpenSource(context.Background())
	if err != nil {
		t.Fatalf("open mock source: %v", err)
	}
	return src
}

// ---- construction -------------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	r, err := whisper.New("http://localhost:8080",
		whisper.WithModel("small"),
		whisper.WithLanguage("de"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r == nil {
		t.Fatal("expected non-nil Recognizer")
	}
}

// ---- recognition --------------------------------------------------------------

func TestRecognizeOnce_ReturnsServerText(t *testing.T) {
	const wantText = "Hello darkness my old friend"
	srv := newMockServer(t, wantText, nil, nil)
	defer srv.Close()

	r, _ := whisper.New(srv.URL)
	src := utteranceSource(t)
	defer src.Close()

	res, err := r.RecognizeOnce(context.Background(), src, asr.Config{
		SilenceWindow: asr.DefaultSilenceWindow,
	})
	if err != nil {
		t.Fatalf("RecognizeOnce: %v", err)
	}
	if res.Text != wantText {
		t.Errorf("Text = %q; want %q", res.Text, wantText)
	}
	if res.AudioDuration <= 0 {
		t.Error("expected positive AudioDuration")
	}
}

func TestRecognizeOnce_SilenceOnly_NoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "unexpected", &calls, nil)
	defer srv.Close()

	r, _ := whisper.New(srv.URL)
	src := silenceSource(t)
	defer src.Close()

	res, err := r.RecognizeOnce(context.Background(), src, asr.Config{})
	if err != nil {
		t.Fatalf("RecognizeOnce: %v", err)
	}
	if res.Text != "" {
		t.Errorf("Text = %q; want empty", res.Text)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("inference called %d time(s) for silence-only audio; want 0", n)
	}
}

func TestRecognizeOnce_ConfigLanguageOverridesDefault(t *testing.T) {
	var lang atomic.Value
	srv := newMockServer(t, "bonjour", nil, &lang)
	defer srv.Close()

	r, _ := whisper.New(srv.URL, whisper.WithLanguage("en"))
	src := utteranceSource(t)
	defer src.Close()

	if _, err := r.RecognizeOnce(context.Background(), src, asr.Config{Language: "fr"}); err != nil {
		t.Fatalf("RecognizeOnce: %v", err)
	}
	if got := lang.Load(); got != "fr" {
		t.Errorf("language field = %v; want %q", got, "fr")
	}
}

func TestRecognizeOnce_ServerError_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, _ := whisper.New(srv.URL)
	src := utteranceSource(t)
	defer src.Close()

	if _, err := r.RecognizeOnce(context.Background(), src, asr.Config{}); err == nil {
		t.Fatal("expected error for HTTP 500, got nil")
	}
}

func TestRecognizeOnce_CancelledContext_ReturnsError(t *testing.T) {
	srv := newMockServer(t, "never", nil, nil)
	defer srv.Close()

	r, _ := whisper.New(srv.URL)
	src := utteranceSource(t)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.RecognizeOnce(ctx, src, asr.Config{}); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}
