package pipeline

import (
	"errors"
	"fmt"

	"github.com/book-expert/echoverse/internal/core"
)

// Stage names the step of a run that failed.
type Stage string

// Stages in execution order.
const (
	StageInput      Stage = "input"
	StageCredential Stage = "credential"
	StageGeneration Stage = "generation"
	StageSynthesis  Stage = "synthesis"
	StageStorage    Stage = "storage"
)

const (
	errFmtStage        = "%s stage: %v"
	msgEmptyInput      = "Please provide some text to convert."
	msgDemoMode        = "Demo mode: set WATSONX_API_KEY to generate audiobooks."
	msgFmtCredential   = "Could not authenticate with IBM Cloud: %v"
	msgFmtGeneration   = "Failed to generate narration: %v"
	msgFmtMalformed    = "The language model returned narration that could not be read: %v"
	msgFmtSynthesis    = "Failed to synthesize audio: %v"
	msgFmtStorage      = "Failed to store the audiobook: %v"
	msgFmtUnknownStage = "Audiobook generation failed: %v"
)

// StageError records which stage of a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf(errFmtStage, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Message renders the failure for an end user.
func (e *StageError) Message() string {
	switch e.Stage {
	case StageInput:
		return msgEmptyInput
	case StageCredential:
		if errors.Is(e.Err, core.ErrDemoMode) {
			return msgDemoMode
		}

		return fmt.Sprintf(msgFmtCredential, e.Err)
	case StageGeneration:
		if errors.Is(e.Err, core.ErrMalformedResponse) {
			return fmt.Sprintf(msgFmtMalformed, e.Err)
		}

		return fmt.Sprintf(msgFmtGeneration, e.Err)
	case StageSynthesis:
		return fmt.Sprintf(msgFmtSynthesis, e.Err)
	case StageStorage:
		return fmt.Sprintf(msgFmtStorage, e.Err)
	default:
		return fmt.Sprintf(msgFmtUnknownStage, e.Err)
	}
}

func stageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
