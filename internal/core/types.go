package core

import (
	"strings"
	"time"
)

// Emotion is the emotion tag attached to a narration segment.
type Emotion string

// Emotions understood by the synthesizer. The generator is asked for the first six.
const (
	EmotionAngry    Emotion = "ANGRY"
	EmotionSad      Emotion = "SAD"
	EmotionHappy    Emotion = "HAPPY"
	EmotionFear     Emotion = "FEAR"
	EmotionDisgust  Emotion = "DISGUST"
	EmotionSurprise Emotion = "SURPRISE"
	EmotionNeutral  Emotion = "NEUTRAL"
	EmotionJoy      Emotion = "JOY"
	EmotionExcited  Emotion = "EXCITED"
	EmotionCalm     Emotion = "CALM"
)

// Background is the optional ambience label of a narration segment.
type Background string

// Ambience labels. BackgroundNone means no label was chosen.
const (
	BackgroundNone    Background = ""
	BackgroundOutdoor Background = "OUTDOOR"
	BackgroundIndoor  Background = "INDOOR"
	BackgroundRaining Background = "RAINING"
	BackgroundCrowd   Background = "CROWD"
	BackgroundOffice  Background = "OFFICE"
)

// Spellings produced by the prompt's own enum lists.
var (
	emotionAliases = map[string]Emotion{
		"SUPRISE": EmotionSurprise,
	}
	backgroundAliases = map[string]Background{
		"RAINNING": BackgroundRaining,
	}
)

// ParseEmotion normalizes a generated emotion tag. Unknown tags are kept as-is so
// the synthesizer can degrade them to a neutral expression; an empty tag is NEUTRAL.
func ParseEmotion(raw string) Emotion {
	tag := strings.ToUpper(strings.TrimSpace(raw))
	if tag == "" {
		return EmotionNeutral
	}

	if alias, ok := emotionAliases[tag]; ok {
		return alias
	}

	return Emotion(tag)
}

// ParseBackground normalizes a generated background label.
func ParseBackground(raw string) Background {
	label := strings.ToUpper(strings.TrimSpace(raw))
	if alias, ok := backgroundAliases[label]; ok {
		return alias
	}

	return Background(label)
}

// NarrationSegment is one unit of rewritten text with its emotion and ambience.
type NarrationSegment struct {
	SpeechText string     `json:"speech_text"`
	Emotion    Emotion    `json:"emotion"`
	Background Background `json:"background,omitempty"`
}

// NarrationText joins the speech text of all segments with a single space, the
// form shown to readers next to the original input.
func NarrationText(segments []NarrationSegment) string {
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		parts = append(parts, strings.TrimSpace(segment.SpeechText))
	}

	return strings.Join(parts, " ")
}

// AudioArtifact describes a synthesized audio file on disk.
type AudioArtifact struct {
	Path         string
	Size         int64
	VoiceKey     string
	VoiceID      string
	UsedFallback bool
	Duration     time.Duration
}

// HistoryEntry is the persisted summary of one generated audiobook.
type HistoryEntry struct {
	ID           string
	Tone         string
	VoiceKey     string
	SegmentCount int
	AudioKey     string
	Narration    string
	UsedFallback bool
	CreatedAt    time.Time
}
