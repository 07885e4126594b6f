package narration

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/book-expert/echoverse/internal/core"
)

// StopSequence ends generation at the close of the JSON array.
const StopSequence = "]"

// Error messages.
const (
	errFmtInvalidSegments = "%w: generated text is not a JSON array of segments: %w"
	errFmtEmptySegments   = "%w: generated text contains no segments"
	errFmtEmptySpeech     = "%w: segment %d has no speech_text"
)

// rawSegment mirrors the generated JSON before normalization.
type rawSegment struct {
	SpeechText string `json:"speech_text"`
	Emotion    string `json:"emotion"`
	Background string `json:"background"`
}

// ParseSegments decodes generated text into narration segments in their
// original order. Providers drop the matched stop sequence from the output, so
// when stoppedAtSequence is set a text that opens an array but does not close
// it gets the bracket back once. Output cut off for any other reason is never
// repaired. Anything that fails to decode is an error; no partial result is
// returned.
func ParseSegments(generated string, stoppedAtSequence bool) ([]core.NarrationSegment, error) {
	trimmed := strings.TrimSpace(generated)
	if stoppedAtSequence && strings.HasPrefix(trimmed, "[") && !strings.HasSuffix(trimmed, StopSequence) {
		trimmed += StopSequence
	}

	var raw []rawSegment

	err := json.Unmarshal([]byte(trimmed), &raw)
	if err != nil {
		return nil, fmt.Errorf(errFmtInvalidSegments, core.ErrMalformedResponse, err)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf(errFmtEmptySegments, core.ErrMalformedResponse)
	}

	segments := make([]core.NarrationSegment, 0, len(raw))

	for index, item := range raw {
		if strings.TrimSpace(item.SpeechText) == "" {
			return nil, fmt.Errorf(errFmtEmptySpeech, core.ErrMalformedResponse, index)
		}

		segments = append(segments, core.NarrationSegment{
			SpeechText: item.SpeechText,
			Emotion:    core.ParseEmotion(item.Emotion),
			Background: core.ParseBackground(item.Background),
		})
	}

	return segments, nil
}
