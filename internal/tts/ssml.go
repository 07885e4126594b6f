package tts

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/book-expert/echoverse/internal/core"
)

// SSML fragments.
const (
	ssmlOpen          = "<speak>"
	ssmlClose         = "</speak>"
	ssmlPause         = `<break time="0.8s"/>`
	expressAsOpen     = `<express-as type="%s">`
	expressAsClose    = "</express-as>"
	prosodyOpen       = `<prosody rate="%s" pitch="%s">`
	prosodyClose      = "</prosody>"
	plainTextJoin     = ". "
	neutralExpression = "neutral"
)

// Expression is how one emotion is rendered: the express-as type plus an
// optional prosody change. An empty Rate means no prosody element.
type Expression struct {
	Type  string
	Rate  string
	Pitch string
}

var expressions = map[core.Emotion]Expression{
	core.EmotionAngry:    {Type: "angry", Rate: "fast", Pitch: "+20%"},
	core.EmotionSad:      {Type: "sad", Rate: "slow", Pitch: "-15%"},
	core.EmotionHappy:    {Type: "cheerful", Rate: "medium", Pitch: "+10%"},
	core.EmotionJoy:      {Type: "cheerful", Rate: "medium", Pitch: "+10%"},
	core.EmotionFear:     {Type: "afraid", Rate: "fast", Pitch: "+25%"},
	core.EmotionSurprise: {Type: "surprised", Rate: "fast", Pitch: "+20%"},
	core.EmotionDisgust:  {Type: "disgusted", Rate: "slow", Pitch: "-10%"},
	core.EmotionExcited:  {Type: "excited", Rate: "", Pitch: ""},
	core.EmotionCalm:     {Type: "calm", Rate: "", Pitch: ""},
	core.EmotionNeutral:  {Type: neutralExpression, Rate: "", Pitch: ""},
}

// ExpressionFor returns the rendering of emotion; unknown tags are neutral.
func ExpressionFor(emotion core.Emotion) Expression {
	expression, ok := expressions[core.ParseEmotion(string(emotion))]
	if !ok {
		return Expression{Type: neutralExpression, Rate: "", Pitch: ""}
	}

	return expression
}

// BuildSSML wraps the segments, in order, in one SSML document. Every segment
// becomes an express-as block followed by a fixed pause.
func BuildSSML(segments []core.NarrationSegment) string {
	var builder strings.Builder

	builder.WriteString(ssmlOpen)

	for _, segment := range segments {
		expression := ExpressionFor(segment.Emotion)
		text := escapeText(segment.SpeechText)

		fmt.Fprintf(&builder, expressAsOpen, expression.Type)

		if expression.Rate != "" {
			fmt.Fprintf(&builder, prosodyOpen, expression.Rate, expression.Pitch)
			builder.WriteString(text)
			builder.WriteString(prosodyClose)
		} else {
			builder.WriteString(text)
		}

		builder.WriteString(expressAsClose)
		builder.WriteString(ssmlPause)
	}

	builder.WriteString(ssmlClose)

	return builder.String()
}

// BuildPlainText joins the speech text of every segment with ". ", dropping
// emotion and background.
func BuildPlainText(segments []core.NarrationSegment) string {
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		parts = append(parts, segment.SpeechText)
	}

	return strings.Join(parts, plainTextJoin)
}

func escapeText(text string) string {
	var builder strings.Builder

	_ = xml.EscapeText(&builder, []byte(text))

	return builder.String()
}
