// Package coqui provides a Coqui TTS-backed synthesizer that connects to
// either a Coqui XTTS v2 server or a standard Coqui TTS server via its REST
// API. It implements the tts.Synthesizer interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts
//     with URL query parameters; the voice catalogue is retrieved from
//     GET /details.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is
//     performed via POST /tts_to_audio/ with a JSON body; the voice
//     catalogue is retrieved from GET /studio_speakers; voice cloning is
//     available via CloneVoice (POST /clone_speaker).
//
// Both servers operate in batch mode (one HTTP call per request). Long
// replies are split into sentences and synthesised with a small concurrent
// lookahead, then reassembled in order, which keeps per-request latency low
// without changing the batch contract.
//
// Typical usage (standard server):
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithTimeout(15*time.Second),
//	)
//	clip, err := p.Synthesize(ctx, "One left. Mind the stairs.", voice)
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Provider)(nil)

const (
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	cloneSpeakerEndpoint   = "/clone_speaker"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	// sentenceLookahead controls how many concurrent HTTP synthesis
	// requests may be in flight simultaneously for one reply.
	sentenceLookahead = 4
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code sent to the TTS server (e.g.,
// "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for
// the standard Coqui TTS Docker image or APIModeXTTS for the XTTS v2 API
// server.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithOutputSampleRate configures the provider to resample synthesised PCM
// to the given rate (e.g., 16000 to match the capture format). When 0
// (default), PCM is returned at the model's native rate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// Provider implements tts.Synthesizer backed by a Coqui TTS server. It is
// safe for concurrent use; multiple Synthesize calls may run in parallel.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int // target sample rate; 0 = no resampling
}

// New creates a Provider that targets the TTS server at serverURL (e.g.,
// "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// sentenceResult carries one synthesised sentence or an error from a worker.
type sentenceResult struct {
	pcm    []byte
	format audio.Format
	err    error
}

// studioSpeakersResponse is the raw map[name]any returned by
// GET /studio_speakers. Only the keys matter.
type studioSpeakersResponse map[string]json.RawMessage

// cloneSpeakerResponse is the JSON body returned by POST /clone_speaker.
type cloneSpeakerResponse struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize splits text into sentences, issues one HTTP synthesis request
// per sentence with a bounded concurrent lookahead, and reassembles the PCM
// in sentence order.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (*tts.Clip, error) {
	if voice.ID == "" && p.apiMode == APIModeXTTS {
		return nil, errors.New("coqui: voice.ID must not be empty (required for XTTS mode)")
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, errors.New("coqui: text must not be empty")
	}

	results := make([]chan sentenceResult, len(sentences))
	for i := range results {
		results[i] = make(chan sentenceResult, 1)
	}

	// Admission tokens bound in-flight requests.
	tokens := make(chan struct{}, sentenceLookahead)
	go func() {
		for i, s := range sentences {
			select {
			case tokens <- struct{}{}:
			case <-ctx.Done():
				results[i] <- sentenceResult{err: ctx.Err()}
				continue
			}
			go func(s string, out chan<- sentenceResult) {
				defer func() { <-tokens }()
				pcm, f, err := p.synthesizeSentence(ctx, s, voice)
				out <- sentenceResult{pcm: pcm, format: f, err: err}
			}(s, results[i])
		}
	}()

	var clip tts.Clip
	for _, ch := range results {
		select {
		case res := <-ch:
			if res.err != nil {
				return nil, res.err
			}
			clip.PCM = append(clip.PCM, res.pcm...)
			clip.Format = res.format
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &clip, nil
}

// synthesizeSentence dispatches to the appropriate implementation based on
// the configured API mode and returns decoded PCM with its format.
func (p *Provider) synthesizeSentence(ctx context.Context, sentence string, voice tts.Voice) ([]byte, audio.Format, error) {
	var wav []byte
	var err error
	if p.apiMode == APIModeStandard {
		wav, err = p.fetchStandard(ctx, sentence, voice)
	} else {
		wav, err = p.fetchXTTS(ctx, sentence, voice)
	}
	if err != nil {
		return nil, audio.Format{}, err
	}

	pcm, f, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("coqui: %w", err)
	}
	if p.outputRate > 0 && f.SampleRate != p.outputRate && f.Channels == 1 {
		pcm = resampleMono16(pcm, f.SampleRate, p.outputRate)
		f.SampleRate = p.outputRate
	}
	return pcm, f, nil
}

// fetchXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode) and
// returns the WAV response body.
func (p *Provider) fetchXTTS(ctx context.Context, sentence string, voice tts.Voice) ([]byte, error) {
	body := ttsRequest{
		Text:       sentence,
		SpeakerWav: voice.ID,
		Language:   p.language,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: POST %s: %w", ttsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: POST %s returned status %d", ttsEndpoint, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// fetchStandard performs a single GET /api/tts request (standard server
// mode) using URL query parameters and returns the WAV response body.
func (p *Provider) fetchStandard(ctx context.Context, sentence string, voice tts.Voice) ([]byte, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	reqURL := p.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", apiTTSEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", apiTTSEndpoint, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// ListVoices retrieves the list of available voices from the Coqui server.
//
// In APIModeXTTS, it calls GET /studio_speakers and maps each entry to a
// Voice. In APIModeStandard, it calls GET /details and returns one Voice per
// speaker for multi-speaker models, or a single Voice (identified by model
// name) for single-speaker models.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	if p.apiMode == APIModeStandard {
		return p.listVoicesStandard(ctx)
	}
	return p.listVoicesXTTS(ctx)
}

func (p *Provider) listVoicesXTTS(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+studioSpeakersEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", studioSpeakersEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", studioSpeakersEndpoint, resp.StatusCode)
	}

	var raw studioSpeakersResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("coqui: decode studio speakers: %w", err)
	}

	// Sort keys for deterministic output.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	voices := make([]tts.Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, tts.Voice{
			ID:       name,
			Name:     name,
			Provider: "coqui",
			Metadata: map[string]string{
				"type": "studio",
			},
		})
	}
	return voices, nil
}

func (p *Provider) listVoicesStandard(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+detailsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", detailsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", detailsEndpoint, resp.StatusCode)
	}

	var details detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}

	// Multi-speaker model: one voice per speaker.
	if len(details.Speakers) > 0 {
		speakers := make([]string, len(details.Speakers))
		copy(speakers, details.Speakers)
		sort.Strings(speakers)

		voices := make([]tts.Voice, 0, len(speakers))
		for _, spk := range speakers {
			voices = append(voices, tts.Voice{
				ID:       spk,
				Name:     spk,
				Provider: "coqui",
				Metadata: map[string]string{
					"type":       "speaker",
					"model_name": details.ModelName,
				},
			})
		}
		return voices, nil
	}

	// Single-speaker model: one voice identified by the model name.
	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []tts.Voice{
		{
			ID:       name,
			Name:     name,
			Provider: "coqui",
			Metadata: map[string]string{
				"type":       "single-speaker",
				"model_name": name,
			},
		},
	}, nil
}

// CloneVoice creates a new speaker voice by uploading WAV audio samples to
// the XTTS server via POST /clone_speaker. Each element of samples must be a
// valid WAV-encoded audio file.
//
// Voice cloning is only supported in APIModeXTTS; in APIModeStandard this
// method always returns an error. It is an expensive operation and should
// not be called in the hot path.
func (p *Provider) CloneVoice(ctx context.Context, samples [][]byte) (*tts.Voice, error) {
	if p.apiMode == APIModeStandard {
		return nil, errors.New("coqui: voice cloning is not supported in standard API mode")
	}
	if len(samples) == 0 {
		return nil, errors.New("coqui: CloneVoice requires at least one audio sample")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for i, sample := range samples {
		fw, err := mw.CreateFormFile("wav_files", fmt.Sprintf("sample_%02d.wav", i))
		if err != nil {
			return nil, fmt.Errorf("coqui: create form file %d: %w", i, err)
		}
		if _, err := fw.Write(sample); err != nil {
			return nil, fmt.Errorf("coqui: write form file %d: %w", i, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("coqui: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+cloneSpeakerEndpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("coqui: create clone-speaker request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: POST %s: %w", cloneSpeakerEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: POST %s returned status %d", cloneSpeakerEndpoint, resp.StatusCode)
	}

	var cloneResp cloneSpeakerResponse
	if err := json.NewDecoder(resp.Body).Decode(&cloneResp); err != nil {
		return nil, fmt.Errorf("coqui: decode clone-speaker response: %w", err)
	}
	if cloneResp.Name == "" {
		return nil, errors.New("coqui: clone-speaker response missing name")
	}

	return &tts.Voice{
		ID:       cloneResp.Name,
		Name:     cloneResp.Name,
		Provider: "coqui",
		Metadata: map[string]string{
			"type": "cloned",
		},
	}, nil
}

// resampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples. If
// srcRate == dstRate, the input is returned unchanged.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// splitSentences splits text at '.', '!', or '?' boundaries that are either
// at the end of the text or followed by whitespace, so abbreviations like
// "Dr." and decimals like "3.14" stay intact. Leftover text without a
// terminator forms the final sentence.
func splitSentences(text string) []string {
	var sentences []string
	rest := text
	for {
		idx := findSentenceBoundary(rest)
		if idx < 0 {
			break
		}
		if s := strings.TrimSpace(rest[:idx+1]); s != "" {
			sentences = append(sentences, s)
		}
		rest = rest[idx+1:]
	}
	if s := strings.TrimSpace(rest); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// findSentenceBoundary returns the index of the first sentence-ending
// character ('.', '!', '?') that is either at the end of s or immediately
// followed by whitespace. Returns -1 if no boundary is found.
func findSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
