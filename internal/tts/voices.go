package tts

import "sort"

// Gender of a voice.
type Gender string

// Accent of a voice.
type Accent string

// Genders and accents present in the voice table.
const (
	GenderFemale Gender = "Female"
	GenderMale   Gender = "Male"

	AccentAmerican   Accent = "American"
	AccentBritish    Accent = "British"
	AccentAustralian Accent = "Australian"
)

// Voice keys with special roles.
const (
	// DefaultVoiceKey is used for unknown voice keys.
	DefaultVoiceKey = "allison_expressive"
	// FallbackVoiceID is the standard voice used by the plain-text fallback.
	FallbackVoiceID = "en-US_AllisonV3Voice"
)

// VoiceProfile describes one selectable voice.
type VoiceProfile struct {
	Key             string `json:"key"`
	ProviderID      string `json:"provider_id"`
	SupportsEmotion bool   `json:"supports_emotion"`
	Gender          Gender `json:"gender"`
	Accent          Accent `json:"accent"`
	DisplayName     string `json:"display_name"`
}

var voiceTable = map[string]VoiceProfile{
	"allison":            {"allison", "en-US_AllisonV3Voice", false, GenderFemale, AccentAmerican, "Allison (Female, Standard)"},
	"lisa":               {"lisa", "en-US_LisaV3Voice", false, GenderFemale, AccentAmerican, "Lisa (Female, Standard)"},
	"michael":            {"michael", "en-US_MichaelV3Voice", false, GenderMale, AccentAmerican, "Michael (Male, Standard)"},
	"kevin":              {"kevin", "en-US_KevinV3Voice", false, GenderMale, AccentAmerican, "Kevin (Male, Young)"},
	"henry":              {"henry", "en-US_HenryV3Voice", false, GenderMale, AccentAmerican, "Henry (Male, Mature)"},
	"emily":              {"emily", "en-US_EmilyV3Voice", false, GenderFemale, AccentAmerican, "Emily (Female, Energetic)"},
	"allison_expressive": {"allison_expressive", "en-US_AllisonExpressive", true, GenderFemale, AccentAmerican, "Allison (Female, Expressive)"},
	"emma_expressive":    {"emma_expressive", "en-US_EmmaExpressive", true, GenderFemale, AccentAmerican, "Emma (Female, Expressive)"},
	"lisa_expressive":    {"lisa_expressive", "en-US_LisaExpressive", true, GenderFemale, AccentAmerican, "Lisa (Female, Expressive)"},
	"michael_expressive": {"michael_expressive", "en-US_MichaelExpressive", true, GenderMale, AccentAmerican, "Michael (Male, Expressive)"},
	"kate_british":       {"kate_british", "en-GB_KateV3Voice", false, GenderFemale, AccentBritish, "Kate (Female, British)"},
	"charlotte_british":  {"charlotte_british", "en-GB_CharlotteV3Voice", false, GenderFemale, AccentBritish, "Charlotte (Female, British)"},
	"james_british":      {"james_british", "en-GB_JamesV3Voice", false, GenderMale, AccentBritish, "James (Male, British)"},
	"heidi_australian":   {"heidi_australian", "en-AU_HeidiExpressive", true, GenderFemale, AccentAustralian, "Heidi (Female, Australian)"},
	"jack_australian":    {"jack_australian", "en-AU_JackExpressive", true, GenderMale, AccentAustralian, "Jack (Male, Australian)"},
}

// recommendations maps a content type to a voice key.
var recommendations = map[string]string{
	"story":        "allison_expressive",
	"professional": "michael_expressive",
	"casual":       "kevin",
	"dramatic":     "lisa_expressive",
	"british":      "james_british",
	"energetic":    "emily",
	"mature":       "henry",
}

// LookupVoice returns the profile for key and whether key is known.
func LookupVoice(key string) (VoiceProfile, bool) {
	profile, ok := voiceTable[key]

	return profile, ok
}

// ResolveVoice returns the profile for key, or the default expressive voice.
func ResolveVoice(key string) VoiceProfile {
	profile, ok := voiceTable[key]
	if !ok {
		return voiceTable[DefaultVoiceKey]
	}

	return profile
}

// ListVoices returns all voices, expressive voices first, then by key.
func ListVoices() []VoiceProfile {
	voices := make([]VoiceProfile, 0, len(voiceTable))
	for _, profile := range voiceTable {
		voices = append(voices, profile)
	}

	sort.Slice(voices, func(i, j int) bool {
		if voices[i].SupportsEmotion != voices[j].SupportsEmotion {
			return voices[i].SupportsEmotion
		}

		return voices[i].Key < voices[j].Key
	})

	return voices
}

// RecommendedVoice returns the voice key suggested for a kind of content.
func RecommendedVoice(contentType string) string {
	key, ok := recommendations[contentType]
	if !ok {
		return DefaultVoiceKey
	}

	return key
}
