package asr

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"

	"github.com/parley-ai/parley/pkg/audio"
)

// rmsThreshold is the root-mean-square energy level (in 16-bit PCM sample
// units, max 32 767) below which a chunk counts as silence. 300 corresponds
// to near-silence on typical microphones.
const rmsThreshold = 300.0

// captureChunkMs is the analysis window for energy-based endpointing.
const captureChunkMs = 50

// CaptureUtterance reads PCM from src until one utterance has been
// delimited: leading silence is discarded, then audio accumulates until the
// trailing silence exceeds cfg.SilenceWindow or the buffer reaches
// cfg.MaxUtterance. It returns the captured PCM (including the trailing
// silence, which batch recognizers tolerate) and its duration.
//
// A nil PCM slice with nil error means src ended or the window elapsed
// without any speech energy — the caller should treat that as an empty
// transcript. Cancellation is checked between chunks; a cancelled ctx
// returns ctx.Err() with no partial result.
//
// Recognizers that do their own server-side endpointing (Deepgram) do not
// use this helper.
func CaptureUtterance(ctx context.Context, src audio.Source, cfg Config) ([]byte, time.Duration, error) {
	silenceWindow := cfg.SilenceWindow
	if silenceWindow <= 0 {
		silenceWindow = DefaultSilenceWindow
	}
	maxUtterance := cfg.MaxUtterance
	if maxUtterance <= 0 {
		maxUtterance = DefaultMaxUtterance
	}

	format := src.Format()
	chunkBytes := format.BytesPerSecond() * captureChunkMs / 1000
	if chunkBytes < 2 {
		chunkBytes = 2
	}
	chunkDur := time.Duration(captureChunkMs) * time.Millisecond
	maxBytes := int(maxUtterance / chunkDur * time.Duration(chunkBytes))

	var (
		buffer    []byte
		hadSpeech bool
		silence   time.Duration
	)
	chunk := make([]byte, chunkBytes)

	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		n, err := io.ReadFull(src, chunk)
		if n > 0 {
			part := chunk[:n]
			if computeRMS(part) < rmsThreshold {
				// Leading silence before any speech is discarded.
				if hadSpeech {
					silence += chunkDur
					buffer = append(buffer, part...)
					if silence >= silenceWindow {
						return buffer, pcmDuration(buffer, format), nil
					}
				}
			} else {
				hadSpeech = true
				silence = 0
				buffer = append(buffer, part...)
				if len(buffer) >= maxBytes {
					return buffer, pcmDuration(buffer, format), nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if hadSpeech {
					return buffer, pcmDuration(buffer, format), nil
				}
				return nil, 0, nil
			}
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			return nil, 0, err
		}
	}
}

// computeRMS returns the root-mean-square amplitude of a 16-bit signed
// little-endian PCM buffer, in sample units (0–32 767).
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// pcmDuration returns the playback duration of a PCM buffer in f.
func pcmDuration(pcm []byte, f audio.Format) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(len(pcm)) * time.Second / time.Duration(bps)
}
