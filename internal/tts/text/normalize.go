// Package text cleans source text before it is sent for narration.
//
// Text extracted from PDFs carries page numbers, hyphenated line breaks,
// reference markers and typographic punctuation that read badly when spoken.
// The Normalizer removes them while leaving URLs and email addresses intact.
package text

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Regex patterns for text normalization.
const (
	urlRegexPattern         = `https?://\S+`
	emailRegexPattern       = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	referenceRegexPattern   = `\[\d+(?:\s*[,–-]\s*\d+)*\]|\(\d+\)|[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
	citationRegexPattern    = `\([A-Z][^()]*?,?\s*\d{4}[a-z]?\)`
	pageNumberRegexPattern  = `(?im)^[ \t]*(?:page[ \t]+)?[-–—]?[ \t]*\d{1,4}[ \t]*[-–—]?(?:[ \t]+of[ \t]+\d{1,4})?[ \t]*$`
	hyphenBreakRegexPattern = `(\p{L})-\n[ \t]*(\p{L})`
	whitespaceRegexPattern  = `\s+`
	spaceBeforePunctPattern = `\s+([.,!?;:])`
)

// Patterns for preserving URLs and emails.
const (
	urlPlaceholderPattern   = `__URL_PLACEHOLDER_%d__`
	emailPlaceholderPattern = `__EMAIL_PLACEHOLDER_%d__`
)

// Punctuation and formatting constants.
const (
	emDash         = "—"
	enDash         = "–"
	figureDash     = "‒"
	ellipsis       = "..."
	ellipsisChar   = "…"
	carriageReturn = "\r\n"
	lineFeed       = "\n"
)

// Normalizer prepares raw document text for the narration generator.
type Normalizer struct {
	urlPattern              *regexp.Regexp
	emailPattern            *regexp.Regexp
	referencePattern        *regexp.Regexp
	citationPattern         *regexp.Regexp
	pageNumberPattern       *regexp.Regexp
	hyphenBreakPattern      *regexp.Regexp
	whitespacePattern       *regexp.Regexp
	spaceBeforePunctPattern *regexp.Regexp
	punctuationReplacer     *strings.Replacer
}

// NewNormalizer compiles the patterns once; a Normalizer is safe for concurrent use.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		urlPattern:              regexp.MustCompile(urlRegexPattern),
		emailPattern:            regexp.MustCompile(emailRegexPattern),
		referencePattern:        regexp.MustCompile(referenceRegexPattern),
		citationPattern:         regexp.MustCompile(citationRegexPattern),
		pageNumberPattern:       regexp.MustCompile(pageNumberRegexPattern),
		hyphenBreakPattern:      regexp.MustCompile(hyphenBreakRegexPattern),
		whitespacePattern:       regexp.MustCompile(whitespaceRegexPattern),
		spaceBeforePunctPattern: regexp.MustCompile(spaceBeforePunctPattern),
		punctuationReplacer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize returns text as a single line of clean prose ending in punctuation.
// Blank input yields an empty string.
func (n *Normalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	// Line structure is only meaningful until whitespace is collapsed.
	cleaned := strings.ReplaceAll(text, carriageReturn, lineFeed)
	cleaned = n.pageNumberPattern.ReplaceAllString(cleaned, "")
	cleaned = n.hyphenBreakPattern.ReplaceAllString(cleaned, "${1}${2}")

	preserved, placeholders := n.preserveTokens(cleaned)

	preserved = n.referencePattern.ReplaceAllString(preserved, "")
	preserved = n.citationPattern.ReplaceAllString(preserved, "")
	preserved = n.whitespacePattern.ReplaceAllString(preserved, " ")
	preserved = n.spaceBeforePunctPattern.ReplaceAllString(preserved, "$1")
	preserved = n.punctuationReplacer.Replace(preserved)

	restored := restoreTokens(strings.TrimSpace(preserved), placeholders)

	return ensureSentenceEnding(restored)
}

// preserveTokens swaps URLs and emails for placeholders so the cleanup passes
// cannot corrupt them.
func (n *Normalizer) preserveTokens(text string) (string, map[string]string) {
	placeholders := make(map[string]string)
	counter := 0
	processed := text

	replace := func(pattern *regexp.Regexp, placeholderFormat string) {
		processed = pattern.ReplaceAllStringFunc(processed, func(match string) string {
			placeholder := fmt.Sprintf(placeholderFormat, counter)
			placeholders[placeholder] = match
			counter++

			return placeholder
		})
	}

	replace(n.urlPattern, urlPlaceholderPattern)
	replace(n.emailPattern, emailPlaceholderPattern)

	return processed, placeholders
}

func restoreTokens(text string, placeholders map[string]string) string {
	for placeholder, original := range placeholders {
		text = strings.ReplaceAll(text, placeholder, original)
	}

	return text
}

// ensureSentenceEnding adds a period when the text ends mid-sentence.
func ensureSentenceEnding(text string) string {
	if text == "" {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(text)
	if unicode.IsLetter(lastChar) || unicode.IsDigit(lastChar) {
		return text + "."
	}

	return text
}

// Truncate shortens text to at most maxRunes runes, cutting after the last
// complete sentence when there is one and at a word boundary otherwise.
// A non-positive maxRunes disables truncation.
func Truncate(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	head := string(runes[:maxRunes])

	sentenceEnd := strings.LastIndexAny(head, ".!?")
	if sentenceEnd > 0 {
		return strings.TrimSpace(head[:sentenceEnd+1])
	}

	if unicode.IsSpace(runes[maxRunes]) {
		return strings.TrimSpace(head)
	}

	wordEnd := strings.LastIndexByte(head, ' ')
	if wordEnd > 0 {
		return strings.TrimSpace(head[:wordEnd])
	}

	return head
}
