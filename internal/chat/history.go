// Package chat implements the turn-taking conversation core: the rolling
// dialogue history and the loop state machine that drives one
// listen → generate → speak cycle at a time.
package chat

// Role identifies the speaker of a Turn.
type Role string

const (
	// RoleUser marks a transcribed user utterance.
	RoleUser Role = "user"

	// RoleAssistant marks a generated reply.
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in the dialogue. Turns are immutable values; the
// history never mutates a turn after it is appended.
type Turn struct {
	Role Role
	Text string
}

// DefaultHistoryCapacity bounds the rolling context window when no explicit
// capacity is configured. Twenty turns keeps roughly ten exchanges in play,
// enough for short-term coherence without unbounded prompt growth.
const DefaultHistoryCapacity = 20

// History is a fixed-capacity FIFO ring of dialogue turns. Once full, each
// append evicts the oldest turn. The capacity is fixed at construction.
//
// History is not safe for concurrent use: it is owned by the single loop
// goroutine, which is the only writer and reader during a session.
type History struct {
	turns []Turn
	start int // index of the oldest turn
	count int
}

// NewHistory creates a History holding at most capacity turns. A
// non-positive capacity falls back to [DefaultHistoryCapacity].
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		turns: make([]Turn, capacity),
	}
}

// Append adds a turn as the newest entry, evicting the oldest entry when
// the buffer is full.
func (h *History) Append(t Turn) {
	if h.count < len(h.turns) {
		h.turns[(h.start+h.count)%len(h.turns)] = t
		h.count++
		return
	}
	h.turns[h.start] = t
	h.start = (h.start + 1) % len(h.turns)
}

// Turns returns a copy of the buffered turns ordered oldest to newest.
// Callers may retain or mutate the returned slice freely.
func (h *History) Turns() []Turn {
	out := make([]Turn, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.turns[(h.start+i)%len(h.turns)]
	}
	return out
}

// Len reports the number of buffered turns.
func (h *History) Len() int { return h.count }

// Cap reports the fixed capacity.
func (h *History) Cap() int { return len(h.turns) }
