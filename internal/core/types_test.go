package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/book-expert/echoverse/internal/core"
)

func TestParseEmotion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want core.Emotion
	}{
		{raw: "HAPPY", want: core.EmotionHappy},
		{raw: " sad ", want: core.EmotionSad},
		{raw: "SUPRISE", want: core.EmotionSurprise},
		{raw: "surprise", want: core.EmotionSurprise},
		{raw: "", want: core.EmotionNeutral},
		{raw: "bored", want: core.Emotion("BORED")},
	}

	for _, testCase := range tests {
		t.Run(testCase.raw, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, core.ParseEmotion(testCase.raw))
		})
	}
}

func TestParseBackground(t *testing.T) {
	t.Parallel()

	assert.Equal(t, core.BackgroundRaining, core.ParseBackground("RAINNING"))
	assert.Equal(t, core.BackgroundOffice, core.ParseBackground(" office"))
	assert.Equal(t, core.BackgroundNone, core.ParseBackground(""))
}

func TestNarrationText(t *testing.T) {
	t.Parallel()

	segments := []core.NarrationSegment{
		{SpeechText: " The wind blew. ", Emotion: core.EmotionAngry, Background: core.BackgroundOutdoor},
		{SpeechText: "The sun smiled.", Emotion: core.EmotionHappy, Background: core.BackgroundNone},
	}

	assert.Equal(t, "The wind blew. The sun smiled.", core.NarrationText(segments))
	assert.Empty(t, core.NarrationText(nil))
}
