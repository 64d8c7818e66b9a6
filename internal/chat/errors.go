package chat

import "errors"

// Stage failure sentinels. Port adapters wrap provider errors with the
// matching sentinel so the loop (and tests) can classify failures with
// errors.Is without knowing the provider. Interruption is never wrapped in
// these: a cancelled or deadline-expired context surfaces as
// context.Canceled or context.DeadlineExceeded.
var (
	// ErrRecognitionFailed marks a failed listen/transcribe attempt.
	ErrRecognitionFailed = errors.New("recognition failed")

	// ErrGenerationFailed marks a failed reply generation.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrPlaybackFailed marks failed synthesis or playback of a reply.
	ErrPlaybackFailed = errors.New("playback failed")
)
