package orchestration

import (
	"errors"
	"fmt"

	"github.com/koscakluka/ema-voice/core/synthesis"
)

var (
	// ErrGenerationFailed is returned when the language model produced no
	// response. The run is aborted.
	ErrGenerationFailed = errors.New("response generation failed")
	// ErrNoAudio is returned together with the final state when no segment
	// could be synthesized.
	ErrNoAudio = synthesis.ErrNoAudio
	ErrClosed  = errors.New("engine is closed")
)

// StageError ties an error to the stage and run it happened in.
type StageError struct {
	Stage     string
	SessionID string
	RunID     string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (run %s): %v", e.Stage, e.RunID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
