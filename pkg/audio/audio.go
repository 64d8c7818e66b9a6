// Package audio defines the audio device contracts used by the parley
// conversation pipeline: a capture Source the recognizers read microphone
// PCM from, and a playback Sink the speech output port drains synthesized
// audio into.
//
// The package deliberately knows nothing about speech recognition or
// synthesis — it only moves bytes. Concrete devices are provided by
// [NewCaptureDevice] and [NewPlaybackDevice], which shell out to an external
// recorder/player command (arecord/aplay by default) so the daemon does not
// need to link against a platform audio library.
package audio

import (
	"context"
	"io"
)

// Format describes raw PCM audio: signed little-endian integer samples.
type Format struct {
	// SampleRate in Hz. Recognizers typically want 16000.
	SampleRate int

	// Channels is the channel count; 1 for microphone capture.
	Channels int

	// BitsPerSample is the sample width. Only 16 is used in practice.
	BitsPerSample int
}

// BytesPerSecond returns the raw PCM data rate for the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// DefaultFormat is 16 kHz mono 16-bit PCM, the format every bundled
// recognizer accepts.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

// Source is an open audio capture stream. Read returns raw PCM in the
// stream's [Format]. A Source is single-use: the transcription port opens a
// fresh one for every listen cycle and closes it when the utterance ends,
// so no stale audio leaks into the next cycle.
type Source interface {
	io.ReadCloser

	// Format reports the PCM format of the bytes returned by Read.
	Format() Format
}

// SourceOpener creates capture sources. Implementations must be safe for
// concurrent use, though the conversation loop opens at most one source at
// a time.
type SourceOpener interface {
	// OpenSource starts a new capture stream. The stream stops when the
	// returned Source is closed or ctx is cancelled.
	OpenSource(ctx context.Context) (Source, error)
}

// Sink plays synthesized audio. Play consumes r until EOF and blocks until
// playback has physically finished (or ctx is cancelled), matching the
// speak-then-listen turn discipline of the conversation loop.
type Sink interface {
	Play(ctx context.Context, r io.Reader) error
}
