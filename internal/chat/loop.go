package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ─── Ports ───────────────────────────────────────────────────────────────────

// Transcriber captures one user utterance and returns its transcript. The
// call blocks until an utterance has been delimited, the source ends, or
// ctx is cancelled. An empty transcript with a nil error is a valid
// outcome (silence).
type Transcriber interface {
	Listen(ctx context.Context) (string, error)
}

// Generator produces the assistant's next reply from the persona and the
// dialogue turns visible so far, oldest first.
type Generator interface {
	Generate(ctx context.Context, persona string, turns []Turn) (string, error)
}

// Speaker voices a reply. It returns once playback has completed or ctx is
// cancelled.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// StopDetector reports whether a final transcript is a spoken command to
// end the session.
type StopDetector interface {
	Matches(text string) bool
}

// Recorder receives loop-level accounting events. Stage latency metrics
// live in the port adapters; the loop only reports cycle outcomes.
type Recorder interface {
	// TurnCompleted is called after a full listen→speak cycle.
	TurnCompleted(ctx context.Context)

	// StageFailed is called when a stage error was absorbed and the loop
	// returned to listening. stage is one of "recognition", "generation",
	// "playback".
	StageFailed(ctx context.Context, stage string)
}

// ─── State machine ───────────────────────────────────────────────────────────

// State is the loop's current position in the conversation cycle.
type State int

const (
	// StateListening: waiting for a user utterance.
	StateListening State = iota

	// StateTranscribed: a non-blank transcript is in hand, not yet
	// appended.
	StateTranscribed

	// StateGenerating: waiting for the LLM reply.
	StateGenerating

	// StateSpeaking: playing back the reply.
	StateSpeaking

	// StateStopped: terminal; the loop has exited.
	StateStopped
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateTranscribed:
		return "transcribed"
	case StateGenerating:
		return "generating"
	case StateSpeaking:
		return "speaking"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ─── Loop ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Loop.
type Option func(*Loop)

// WithHistoryCapacity sets the rolling history size. Non-positive values
// fall back to [DefaultHistoryCapacity].
func WithHistoryCapacity(n int) Option {
	return func(l *Loop) {
		l.history = NewHistory(n)
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) {
		l.log = log
	}
}

// WithStopDetector installs a spoken stop-phrase detector. Matching
// transcripts end the session cleanly without being appended to history.
func WithStopDetector(d StopDetector) Option {
	return func(l *Loop) {
		l.stop = d
	}
}

// WithRecorder installs a cycle-outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) {
		l.recorder = r
	}
}

// WithStageTimeouts sets optional per-stage deadlines applied around each
// port call. Zero disables the corresponding deadline. A stage that blows
// its own deadline counts as a stage failure and the loop keeps running;
// only the parent context ends the session.
func WithStageTimeouts(listen, generate, speak time.Duration) Option {
	return func(l *Loop) {
		l.listenTimeout = listen
		l.generateTimeout = generate
		l.speakTimeout = speak
	}
}

// Loop drives the conversation: one listen → generate → speak cycle at a
// time, appending to the rolling history in strict sequence. Run must be
// called from a single goroutine, but [Loop.State] and [Loop.TurnCount] may
// be read concurrently (the ops server polls them).
type Loop struct {
	transcriber Transcriber
	generator   Generator
	speaker     Speaker

	persona string
	history *History
	log     *slog.Logger
	stop    StopDetector

	recorder Recorder

	listenTimeout   time.Duration
	generateTimeout time.Duration
	speakTimeout    time.Duration

	state     atomic.Int32
	turnCount atomic.Int32
}

// New creates a conversation loop for the given persona and ports.
func New(persona string, t Transcriber, g Generator, s Speaker, opts ...Option) *Loop {
	l := &Loop{
		transcriber: t,
		generator:   g,
		speaker:     s,
		persona:     persona,
		history:     NewHistory(DefaultHistoryCapacity),
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// State reports the loop's current state. Safe for concurrent use.
func (l *Loop) State() State { return State(l.state.Load()) }

// TurnCount reports how many turns the history currently holds. Safe for
// concurrent use.
func (l *Loop) TurnCount() int { return int(l.turnCount.Load()) }

// Turns returns a snapshot of the dialogue history, oldest first. Unlike
// State and TurnCount it must only be called from the Run goroutine, or
// after Run has returned.
func (l *Loop) Turns() []Turn { return l.history.Turns() }

// Run executes conversation cycles until ctx is cancelled or a stop phrase
// is spoken. It returns ctx.Err() on cancellation and nil on a spoken
// stop. Stage failures (recognition, generation, playback) never end the
// session; they are logged and the loop returns to listening.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("conversation started",
		"history_capacity", l.history.Cap(),
		"persona_length", len(l.persona))

	for {
		if err := ctx.Err(); err != nil {
			l.setState(StateStopped)
			return err
		}
		stopRequested, err := l.runCycle(ctx)
		if err != nil {
			l.setState(StateStopped)
			return err
		}
		if stopRequested {
			l.log.Info("stop phrase spoken, ending conversation")
			l.setState(StateStopped)
			return nil
		}
	}
}

// runCycle performs one full cycle. It returns a non-nil error only for
// parent-context interruption; every stage failure is absorbed.
func (l *Loop) runCycle(ctx context.Context) (stopRequested bool, err error) {
	l.setState(StateListening)

	text, err := l.listen(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		l.log.Warn("recognition failed", "error", err)
		l.recordFailure(ctx, "recognition")
		return false, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		l.log.Debug("no speech recognized")
		return false, nil
	}

	l.log.Info("user said", "text", text)

	if l.stop != nil && l.stop.Matches(text) {
		// The command utterance itself is not part of the dialogue.
		return true, nil
	}

	l.setState(StateTranscribed)
	l.append(Turn{Role: RoleUser, Text: text})

	l.setState(StateGenerating)
	reply, err := l.generate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		l.log.Warn("generation failed", "error", err)
		l.recordFailure(ctx, "generation")
		return false, nil
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		l.log.Warn("generator returned an empty reply")
		return false, nil
	}

	l.append(Turn{Role: RoleAssistant, Text: reply})
	l.log.Info("assistant replied", "text", reply)

	l.setState(StateSpeaking)
	if err := l.speak(ctx, reply); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// The reply stays in history: it was generated, just not heard.
		l.log.Warn("playback failed", "error", err)
		l.recordFailure(ctx, "playback")
		return false, nil
	}

	if l.recorder != nil {
		l.recorder.TurnCompleted(ctx)
	}
	return false, nil
}

func (l *Loop) listen(ctx context.Context) (string, error) {
	ctx, cancel := l.stageContext(ctx, l.listenTimeout)
	defer cancel()
	return l.transcriber.Listen(ctx)
}

func (l *Loop) generate(ctx context.Context) (string, error) {
	ctx, cancel := l.stageContext(ctx, l.generateTimeout)
	defer cancel()
	return l.generator.Generate(ctx, l.persona, l.history.Turns())
}

func (l *Loop) speak(ctx context.Context, text string) error {
	ctx, cancel := l.stageContext(ctx, l.speakTimeout)
	defer cancel()
	return l.speaker.Speak(ctx, text)
}

// stageContext derives a per-stage context. Zero timeout means the stage
// inherits the parent deadline only.
func (l *Loop) stageContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (l *Loop) setState(s State) {
	if prev := State(l.state.Swap(int32(s))); prev != s {
		l.log.Debug("state change", "from", prev, "to", s)
	}
}

func (l *Loop) append(t Turn) {
	l.history.Append(t)
	l.turnCount.Store(int32(l.history.Len()))
}

func (l *Loop) recordFailure(ctx context.Context, stage string) {
	if l.recorder != nil {
		l.recorder.StageFailed(ctx, stage)
	}
}
