package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/echoverse/internal/core"
	"github.com/book-expert/echoverse/internal/tts/audio"
)

const filePermissions = 0o600

const (
	errFmtInvalid        = "%w: %s"
	errFmtCredential     = "failed to authenticate with text to speech service: %w"
	errFmtBothFailed     = "%w: primary voice %s: %w; fallback voice %s: %w"
	errFmtWriteAudio     = "failed to write audio file %s: %w"
	errSegmentsEmpty     = "narration segments cannot be empty"
	errOutputPathEmpty   = "output path cannot be empty"
	errAPIKeyEmpty       = "API key cannot be empty"
	logFmtUnknownVoice   = "Unknown voice %q, using %s"
	logFmtPrimaryFailed  = "Synthesis with voice %s failed, retrying with %s: %v"
	logFmtGeneratedAudio = "Generated audio: %s (%d bytes, %s)"
	logFmtProbeFailed    = "Could not determine duration of %s: %v"
)

// invalidator is implemented by authenticators that cache tokens.
type invalidator interface {
	Invalidate(apiKey string)
}

// Synthesizer implements core.SpeechSynthesizer on top of a SpeechClient.
type Synthesizer struct {
	client  SpeechClient
	auth    core.Authenticator
	logger  *logger.Logger
	timeout time.Duration
}

// NewSynthesizer creates a Synthesizer. auth turns the API key passed to
// Synthesize into a bearer token; timeout bounds each synthesis call.
func NewSynthesizer(
	client SpeechClient,
	auth core.Authenticator,
	log *logger.Logger,
	timeout time.Duration,
) *Synthesizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Synthesizer{
		client:  client,
		auth:    auth,
		logger:  log,
		timeout: timeout,
	}
}

// BuildRequest renders segments for voice: SSML for expressive voices, plain
// text otherwise.
func BuildRequest(segments []core.NarrationSegment, voice VoiceProfile) SynthesisRequest {
	text := BuildPlainText(segments)
	if voice.SupportsEmotion {
		text = BuildSSML(segments)
	}

	return SynthesisRequest{
		Text:   text,
		Voice:  voice.ProviderID,
		Accept: ContentTypeMP3,
	}
}

// FallbackRequest is the plain-text request sent to the standard fallback voice.
func FallbackRequest(segments []core.NarrationSegment) SynthesisRequest {
	return SynthesisRequest{
		Text:   BuildPlainText(segments),
		Voice:  FallbackVoiceID,
		Accept: ContentTypeMP3,
	}
}

// Synthesize renders segments with the voice named by voiceKey and writes the
// MP3 to outputPath, replacing any existing file. The directory must exist.
//
// If the primary call fails for any reason, exactly one plain-text attempt is
// made with FallbackVoiceID. When both fail the error wraps core.ErrSynthesisFailure.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	segments []core.NarrationSegment,
	voiceKey, apiKey, outputPath string,
) (*core.AudioArtifact, error) {
	inputErr := validateInputs(segments, apiKey, outputPath)
	if inputErr != nil {
		return nil, inputErr
	}

	voice, known := LookupVoice(voiceKey)
	if !known {
		voice = ResolveVoice(voiceKey)
		s.logger.Warn(logFmtUnknownVoice, voiceKey, voice.Key)
	}

	bearer, authErr := s.auth.Exchange(ctx, apiKey)
	if authErr != nil {
		return nil, fmt.Errorf(errFmtCredential, authErr)
	}

	audioData, primaryErr := s.attempt(ctx, BuildRequest(segments, voice), bearer, outputPath)
	usedFallback := false

	if primaryErr != nil {
		s.logger.Warn(logFmtPrimaryFailed, voice.ProviderID, FallbackVoiceID, primaryErr)

		bearer = s.refreshOnUnauthorized(ctx, primaryErr, apiKey, bearer)

		var fallbackErr error

		audioData, fallbackErr = s.attempt(ctx, FallbackRequest(segments), bearer, outputPath)
		if fallbackErr != nil {
			return nil, fmt.Errorf(errFmtBothFailed, core.ErrSynthesisFailure,
				voice.ProviderID, primaryErr, FallbackVoiceID, fallbackErr)
		}

		usedFallback = true
	}

	artifact := &core.AudioArtifact{
		Path:         outputPath,
		Size:         int64(len(audioData)),
		VoiceKey:     voice.Key,
		VoiceID:      voice.ProviderID,
		UsedFallback: usedFallback,
		Duration:     0,
	}

	if usedFallback {
		artifact.VoiceID = FallbackVoiceID
	}

	info, probeErr := audio.Probe(audioData)
	if probeErr != nil {
		s.logger.Warn(logFmtProbeFailed, outputPath, probeErr)
	} else {
		artifact.Duration = info.Duration
	}

	s.logger.Info(logFmtGeneratedAudio, outputPath, artifact.Size, artifact.VoiceID)

	return artifact, nil
}

// attempt synthesizes req and writes the audio to outputPath. A failed write
// counts as a failed attempt.
func (s *Synthesizer) attempt(
	ctx context.Context,
	req SynthesisRequest,
	bearer, outputPath string,
) ([]byte, error) {
	audioData, err := s.call(ctx, req, bearer)
	if err != nil {
		return nil, err
	}

	writeErr := os.WriteFile(outputPath, audioData, filePermissions)
	if writeErr != nil {
		return nil, fmt.Errorf(errFmtWriteAudio, outputPath, writeErr)
	}

	return audioData, nil
}

func (s *Synthesizer) call(ctx context.Context, req SynthesisRequest, bearer string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	audioData, err := s.client.Synthesize(ctx, req, bearer)
	if err != nil {
		return nil, fmt.Errorf("voice %s: %w", req.Voice, err)
	}

	return audioData, nil
}

// refreshOnUnauthorized drops a cached token the service rejected and fetches a
// new one for the fallback call. Any other failure keeps the current token.
func (s *Synthesizer) refreshOnUnauthorized(
	ctx context.Context,
	primaryErr error,
	apiKey, bearer string,
) string {
	var httpErr *core.HTTPError
	if !errors.As(primaryErr, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized {
		return bearer
	}

	cache, ok := s.auth.(invalidator)
	if !ok {
		return bearer
	}

	cache.Invalidate(apiKey)

	refreshed, err := s.auth.Exchange(ctx, apiKey)
	if err != nil {
		return bearer
	}

	return refreshed
}

func validateInputs(segments []core.NarrationSegment, apiKey, outputPath string) error {
	if len(segments) == 0 {
		return fmt.Errorf(errFmtInvalid, core.ErrInvalidInput, errSegmentsEmpty)
	}

	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf(errFmtInvalid, core.ErrInvalidInput, errAPIKeyEmpty)
	}

	if outputPath == "" {
		return fmt.Errorf(errFmtInvalid, core.ErrInvalidInput, errOutputPathEmpty)
	}

	return nil
}
