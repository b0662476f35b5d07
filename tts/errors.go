package tts

import (
	"context"
	"errors"
	"fmt"
)

// Errors surfaced by the playback engine and its collaborators.
var (
	// ErrNoSentences indicates the loaded book segmented into nothing
	// speakable. Playback simply has nothing to play; this is not fatal.
	ErrNoSentences = errors.New("no speakable sentences in book")

	// ErrRateOutOfRange is returned when a speaking rate falls outside
	// the supported range.
	ErrRateOutOfRange = errors.New("rate must be between 0.5 and 2.0")

	// ErrVoiceNotFound is returned when selecting a voice URI that the
	// registry does not know.
	ErrVoiceNotFound = errors.New("requested voice not found")

	// ErrBackendUnavailable indicates the speech backend cannot run at
	// all, for example a missing binary or credentials.
	ErrBackendUnavailable = errors.New("speech backend is not available")

	// ErrBackendClosed indicates the speech backend has been shut down.
	ErrBackendClosed = errors.New("speech backend is closed")

	// ErrUtteranceCanceled reports an utterance ended because it was
	// cancelled, typically by a stop or a new speech request.
	ErrUtteranceCanceled = errors.New("utterance canceled")

	// ErrUtteranceInterrupted reports an utterance was cut off by the
	// backend, typically because another utterance superseded it.
	ErrUtteranceInterrupted = errors.New("utterance interrupted")
)

// BackendError wraps a failure reported by the speech backend with the
// operation that produced it. Transient failures are expected side effects
// of cancellation and are never surfaced to the user.
type BackendError struct {
	Op        string
	Err       error
	Transient bool
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("backend %s failed", e.Op)
	}
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsBenign reports whether err is an expected side effect of cancelling or
// superseding an utterance rather than a genuine backend failure. Benign
// errors are swallowed; anything else forces playback to stop.
func IsBenign(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrUtteranceCanceled) ||
		errors.Is(err, ErrUtteranceInterrupted) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Transient
	}
	return false
}
