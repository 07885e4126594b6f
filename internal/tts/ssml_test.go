package tts_test

import (
	"strings"
	"testing"

	"github.com/book-expert/echoverse/internal/core"
	"github.com/book-expert/echoverse/internal/tts"
	"github.com/stretchr/testify/assert"
)

func threeSegments() []core.NarrationSegment {
	return []core.NarrationSegment{
		{SpeechText: "Get out!", Emotion: core.EmotionAngry, Background: core.BackgroundNone},
		{SpeechText: "We won the game.", Emotion: core.EmotionHappy, Background: core.BackgroundCrowd},
		{SpeechText: "It was Tuesday.", Emotion: core.EmotionNeutral, Background: core.BackgroundNone},
	}
}

func TestBuildSSML_OrderAndProsody(t *testing.T) {
	t.Parallel()

	ssml := tts.BuildSSML(threeSegments())

	expected := "<speak>" +
		`<express-as type="angry"><prosody rate="fast" pitch="+20%">Get out!</prosody></express-as><break time="0.8s"/>` +
		`<express-as type="cheerful"><prosody rate="medium" pitch="+10%">We won the game.</prosody></express-as><break time="0.8s"/>` +
		`<express-as type="neutral">It was Tuesday.</express-as><break time="0.8s"/>` +
		"</speak>"

	assert.Equal(t, expected, ssml)
	assert.Equal(t, 3, strings.Count(ssml, "<express-as"))
	assert.Equal(t, 3, strings.Count(ssml, `<break time="0.8s"/>`))
	assert.Equal(t, 2, strings.Count(ssml, "<prosody"))
}

func TestBuildSSML_UnknownEmotionIsNeutral(t *testing.T) {
	t.Parallel()

	ssml := tts.BuildSSML([]core.NarrationSegment{
		{SpeechText: "Hmm.", Emotion: "PENSIVE", Background: core.BackgroundNone},
		{SpeechText: "Oh!", Emotion: "SUPRISE", Background: core.BackgroundNone},
	})

	assert.Contains(t, ssml, `<express-as type="neutral">Hmm.</express-as>`)
	assert.Contains(t, ssml, `<express-as type="surprised"><prosody rate="fast" pitch="+20%">Oh!</prosody>`)
}

func TestBuildSSML_EscapesText(t *testing.T) {
	t.Parallel()

	ssml := tts.BuildSSML([]core.NarrationSegment{
		{SpeechText: `Tom & Jerry <3 "cheese"`, Emotion: core.EmotionCalm, Background: core.BackgroundNone},
	})

	assert.Contains(t, ssml, "Tom &amp; Jerry &lt;3 &#34;cheese&#34;")
	assert.NotContains(t, ssml, "<3")
}

func TestExpressionFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		emotion  core.Emotion
		expected tts.Expression
	}{
		{emotion: core.EmotionSad, expected: tts.Expression{Type: "sad", Rate: "slow", Pitch: "-15%"}},
		{emotion: core.EmotionFear, expected: tts.Expression{Type: "afraid", Rate: "fast", Pitch: "+25%"}},
		{emotion: core.EmotionDisgust, expected: tts.Expression{Type: "disgusted", Rate: "slow", Pitch: "-10%"}},
		{emotion: core.EmotionJoy, expected: tts.Expression{Type: "cheerful", Rate: "medium", Pitch: "+10%"}},
		{emotion: "happy", expected: tts.Expression{Type: "cheerful", Rate: "medium", Pitch: "+10%"}},
		{emotion: core.EmotionExcited, expected: tts.Expression{Type: "excited", Rate: "", Pitch: ""}},
		{emotion: "", expected: tts.Expression{Type: "neutral", Rate: "", Pitch: ""}},
	}

	for _, testCase := range tests {
		t.Run(string(testCase.emotion), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, tts.ExpressionFor(testCase.emotion))
		})
	}
}

func TestBuildPlainText(t *testing.T) {
	t.Parallel()

	text := tts.BuildPlainText(threeSegments())

	assert.Equal(t, "Get out!. We won the game.. It was Tuesday.", text)
	assert.NotContains(t, text, "<")
}

func TestBuildRequest_BranchesOnVoice(t *testing.T) {
	t.Parallel()

	expressive, ok := tts.LookupVoice("allison_expressive")
	assert.True(t, ok)

	standard, ok := tts.LookupVoice("michael")
	assert.True(t, ok)

	expressiveReq := tts.BuildRequest(threeSegments(), expressive)
	assert.True(t, strings.HasPrefix(expressiveReq.Text, "<speak>"))
	assert.Equal(t, "en-US_AllisonExpressive", expressiveReq.Voice)
	assert.Equal(t, tts.ContentTypeMP3, expressiveReq.Accept)

	standardReq := tts.BuildRequest(threeSegments(), standard)
	assert.Equal(t, tts.BuildPlainText(threeSegments()), standardReq.Text)
	assert.Equal(t, "en-US_MichaelV3Voice", standardReq.Voice)

	fallback := tts.FallbackRequest(threeSegments())
	assert.Equal(t, tts.FallbackVoiceID, fallback.Voice)
	assert.Equal(t, standardReq.Text, fallback.Text)
}
