package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// CaptureDevice implements [SourceOpener] by spawning an external recorder
// process (arecord by default) and exposing its stdout as the PCM stream.
// Each OpenSource call starts a fresh process, which guarantees the next
// listen cycle never sees buffered audio from the previous one.
type CaptureDevice struct {
	command string
	args    []string
	format  Format
}

// CaptureOption configures a [CaptureDevice].
type CaptureOption func(*CaptureDevice)

// WithCaptureCommand overrides the recorder executable and its arguments.
// The command must write raw PCM in the device's format to stdout and exit
// when stdin/stdout is closed.
func WithCaptureCommand(command string, args ...string) CaptureOption {
	return func(d *CaptureDevice) {
		d.command = command
		d.args = args
	}
}

// WithCaptureFormat sets the PCM format the recorder is asked to produce.
// Defaults to [DefaultFormat].
func WithCaptureFormat(f Format) CaptureOption {
	return func(d *CaptureDevice) { d.format = f }
}

// NewCaptureDevice returns a capture device for the default microphone.
// Without options it runs arecord with parameters matching [DefaultFormat].
func NewCaptureDevice(opts ...CaptureOption) *CaptureDevice {
	d := &CaptureDevice{format: DefaultFormat}
	for _, o := range opts {
		o(d)
	}
	if d.command == "" {
		d.command = "arecord"
		d.args = []string{
			"-q",
			"-f", "S16_LE",
			"-r", strconv.Itoa(d.format.SampleRate),
			"-c", strconv.Itoa(d.format.Channels),
			"-t", "raw",
		}
	}
	return d
}

// OpenSource implements [SourceOpener].
func (d *CaptureDevice) OpenSource(ctx context.Context) (Source, error) {
	cmd := exec.CommandContext(ctx, d.command, d.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start %s: %w", d.command, err)
	}
	return &processSource{cmd: cmd, out: stdout, format: d.format}, nil
}

// processSource wraps a running recorder process as a [Source].
type processSource struct {
	cmd       *exec.Cmd
	out       io.ReadCloser
	format    Format
	closeOnce sync.Once
}

func (s *processSource) Read(p []byte) (int, error) { return s.out.Read(p) }

func (s *processSource) Format() Format { return s.format }

// Close stops the recorder. The process is killed rather than signalled:
// recorders stream indefinitely and have no state worth flushing. Close may
// be called from both the cancelling caller and an abandoned recognition
// worker, so the teardown runs exactly once.
func (s *processSource) Close() error {
	s.closeOnce.Do(func() {
		s.out.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		// Reap the child; the error is the expected kill signal.
		_ = s.cmd.Wait()
	})
	return nil
}

// PlaybackDevice implements [Sink] by piping audio into an external player
// process (aplay by default). Play blocks until the player exits, which is
// how the conversation loop knows playback has physically completed.
type PlaybackDevice struct {
	command string
	args    []string
}

// PlaybackOption configures a [PlaybackDevice].
type PlaybackOption func(*PlaybackDevice)

// WithPlaybackCommand overrides the player executable and its arguments.
// The command must read audio from stdin and exit once it has been played.
func WithPlaybackCommand(command string, args ...string) PlaybackOption {
	return func(d *PlaybackDevice) {
		d.command = command
		d.args = args
	}
}

// NewPlaybackDevice returns a playback device for the default output.
// Without options it runs aplay in quiet mode, which auto-detects WAV input.
func NewPlaybackDevice(opts ...PlaybackOption) *PlaybackDevice {
	d := &PlaybackDevice{}
	for _, o := range opts {
		o(d)
	}
	if d.command == "" {
		d.command = "aplay"
		d.args = []string{"-q"}
	}
	return d
}

// Play implements [Sink].
func (d *PlaybackDevice) Play(ctx context.Context, r io.Reader) error {
	cmd := exec.CommandContext(ctx, d.command, d.args...)
	cmd.Stdin = r
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audio: %s: %w", d.command, err)
	}
	return nil
}
