// Package narration rewrites source text into emotionally annotated narration
// segments using a hosted text generation model.
package narration

import "strings"

// Template placeholders.
const (
	placeholderTone  = "{{tone}}"
	placeholderInput = "{{input}}"
)

// DefaultTone fills an empty tone.
const DefaultTone = "Neutral"

// Template is an immutable prompt with {{tone}} and {{input}} placeholders.
type Template struct {
	text string
}

// NewTemplate wraps text as a Template.
func NewTemplate(text string) Template {
	return Template{text: text}
}

// Text returns the unrendered prompt.
func (t Template) Text() string {
	return t.text
}

// Render fills tone and source text into tpl. The template itself is never
// modified, so one Template can serve concurrent requests. Substitution is a
// single pass: placeholders appearing inside tone or text are left alone.
func Render(tpl Template, tone, text string) string {
	if strings.TrimSpace(tone) == "" {
		tone = DefaultTone
	}

	replacer := strings.NewReplacer(placeholderTone, tone, placeholderInput, text)

	return replacer.Replace(tpl.text)
}

// DefaultTemplate is the audiobook reader instruction with one worked example.
var DefaultTemplate = NewTemplate(audiobookReaderPrompt)

const audiobookReaderPrompt = `you are an audiobook reader. rewrite this text as you would read it, in an {{tone}} tone. the output must be in a list of json object having the following keys


- speech_text it is the text to be read
- emotion it is one of [ANGRY, SAD, HAPPY, FEAR, DISGUST, SUPRISE]
- background its optional its one of [OUTDOOR, INDOOR, RAINNING, CROWD, OFFICE]
you may not choose emotion and background apart from anything i have provided. you may leave the background as blank if nothing matches

NOTE:
- ensure consistent reading flow
- add relavant punctuation where necessary
- ignore text that might be out of context such as page numbers, headers, footer


Input: Once the Wind and the Sun had an argument. “I am stronger than you,” said the Wind. “No,
you are not,” said the Sun. Just at that moment they saw a traveler walking across the road.
He was wrapped in a shawl. The Sun and the Wind agreed that whoever could separate the
traveller from his shawl was stronger.
The Wind took the first turn. He blew with all his might to tear the traveller’s shawl from his
shoulders. But the harder he blew, the tighter the traveller gripped the shawl to his body.
The struggle went on till the Wind’s turn was over.
Now it was the Sun’s turn. The Sun smiled warmly. The traveller felt the warmth of the
smiling Sun. Soon he let the shawl fall open. The Sun’s smile grew warmer and warmer...
hotter and hotter. Now the traveller no longer needed his shawl. He took it off and dropped
it on the ground. The Sun was declared stronger than the Wind.
Output: [
  {
    "speech_text": "Once, the Wind and the Sun had an argument. 'I am stronger than you,' boasted the Wind.",
    "emotion": "ANGRY",
    "background": "OUTDOOR"
  },
  {
    "speech_text": "'No, you are not,' replied the Sun, calm but confident.",
    "emotion": "HAPPY",
    "background": "OUTDOOR"
  },
  {
    "speech_text": "Just then, they saw a traveler walking along the road, wrapped tightly in a shawl.",
    "emotion": "SUPRISE",
    "background": "OUTDOOR"
  },
  {
    "speech_text": "They agreed: whoever could make the traveler remove his shawl would be the stronger.",
    "emotion": "SUPRISE",
    "background": "OUTDOOR"
  },
  {
    "speech_text": "The Wind took the first turn. He blew with all his might, roaring and howling, trying to tear the shawl away.",
    "emotion": "ANGRY",
    "background": "OUTDOOR"
  },
  {
    "speech_text": "But the harder he blew, the tighter the traveler clutched the shawl to his body.",
    "emotion": "SAD",
    "background": "OUTDOOR"
  },
  {
    "speech_text": "The struggle went on until the Wind, exhausted, had to give up.",
    "emotion": "SAD",
    "background": "OUTDOOR"
  },
  {
    "speech_text": "Now it was the Sun’s turn. The Sun smiled warmly, sending gentle rays down upon the traveler.",
    "emotion": "HAPPY",
    "background": "OUTDOOR"
  },
  {
    "speech_text": "The traveler felt the pleasant warmth and loosened his grip on the shawl.",
    "emotion": "HAPPY",
    "background": "OUTDOOR"
  },
  {
    "speech_text": "The Sun’s smile grew warmer and warmer... hotter and hotter... until the traveler no longer needed his shawl.",
    "emotion": "SUPRISE",
    "background": "OUTDOOR"
  },
  {
    "speech_text": "At last, he took it off and dropped it to the ground.",
    "emotion": "HAPPY",
    "background": "OUTDOOR"
  },
  {
    "speech_text": "And so, the Sun was declared stronger than the Wind—not by force, but by gentle warmth.",
    "emotion": "HAPPY",
    "background": "OUTDOOR"
  }
]

Input: {{input}}
Output:`
