// Package pipeline turns source text into a narrated audiobook: it exchanges
// the API key for a bearer token, asks the generator for narration segments
// and hands them to the synthesizer.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/echoverse/internal/core"
	"github.com/book-expert/echoverse/internal/tts/text"
	"github.com/book-expert/echoverse/internal/tts/ttsutils"
)

// DefaultTone is used when a request names no tone.
const DefaultTone = "Neutral"

// Tones offered to users. Any other label is passed to the generator unchanged.
var Tones = []string{"Neutral", "Suspenseful", "Inspiring", "Professional", "Casual", "Dramatic"}

const (
	errFmtInvalid        = "%w: %s"
	errTextEmpty         = "source text is empty after normalization"
	logFmtTruncated      = "Source text for %s truncated from %d to %d characters"
	logFmtStarted        = "Generating audiobook %s (tone %s, voice %s)"
	logFmtSegments       = "Audiobook %s: %d narration segments"
	logFmtFinished       = "Audiobook %s ready at %s in %s"
	logFmtStageFailed    = "Audiobook %s failed: %v"
	logFmtHistoryFailed  = "Could not record audiobook %s in history: %v"
	audioObjectKeyFormat = "%s.mp3"
)

// Settings are the per-process values a Service needs.
type Settings struct {
	APIKey        string
	DefaultVoice  string
	WorkDir       string
	MaxInputChars int
}

// Dependencies are the collaborators of a Service. Store and History are optional.
type Dependencies struct {
	Authenticator core.Authenticator
	Generator     core.NarrationGenerator
	Synthesizer   core.SpeechSynthesizer
	Store         core.ObjectStore
	History       core.HistoryRecorder
	Logger        *logger.Logger
}

// Request is one audiobook to produce. Empty ID and OutputPath are generated;
// an empty Voice uses the configured default.
type Request struct {
	ID         string
	Text       string
	Tone       string
	Voice      string
	OutputPath string
}

// Result is a finished audiobook.
type Result struct {
	ID        string
	Tone      string
	Segments  []core.NarrationSegment
	Narration string
	Artifact  *core.AudioArtifact
	AudioKey  string
}

// Service runs requests through credential exchange, generation and synthesis.
type Service struct {
	auth        core.Authenticator
	generator   core.NarrationGenerator
	synthesizer core.SpeechSynthesizer
	store       core.ObjectStore
	history     core.HistoryRecorder
	logger      *logger.Logger
	normalizer  *text.Normalizer
	settings    Settings
}

// NewService creates a Service.
func NewService(deps Dependencies, settings Settings) *Service {
	if settings.WorkDir == "" {
		settings.WorkDir = ttsutils.GetWorkDir()
	}

	return &Service{
		auth:        deps.Authenticator,
		generator:   deps.Generator,
		synthesizer: deps.Synthesizer,
		store:       deps.Store,
		history:     deps.History,
		logger:      deps.Logger,
		normalizer:  text.NewNormalizer(),
		settings:    settings,
	}
}

// DemoMode reports whether the service lacks an API key.
func (s *Service) DemoMode() bool {
	return s.settings.APIKey == ""
}

// DefaultVoice returns the voice used when a request names none.
func (s *Service) DefaultVoice() string {
	return s.settings.DefaultVoice
}

// Run produces one audiobook. Every failure is a *StageError.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	req = s.withDefaults(req)

	source, err := s.prepareText(req)
	if err != nil {
		return nil, s.fail(req.ID, stageError(StageInput, err))
	}

	if s.DemoMode() {
		return nil, s.fail(req.ID, stageError(StageCredential, core.ErrDemoMode))
	}

	s.logger.Info(logFmtStarted, req.ID, req.Tone, req.Voice)

	bearer, err := s.auth.Exchange(ctx, s.settings.APIKey)
	if err != nil {
		return nil, s.fail(req.ID, stageError(StageCredential, err))
	}

	segments, err := s.generator.Generate(ctx, source, req.Tone, bearer)
	if err != nil {
		return nil, s.fail(req.ID, stageError(StageGeneration, err))
	}

	s.logger.Info(logFmtSegments, req.ID, len(segments))

	dirErr := ttsutils.EnsureDir(filepath.Dir(req.OutputPath))
	if dirErr != nil {
		return nil, s.fail(req.ID, stageError(StageSynthesis, dirErr))
	}

	artifact, err := s.synthesizer.Synthesize(ctx, segments, req.Voice, s.settings.APIKey, req.OutputPath)
	if err != nil {
		return nil, s.fail(req.ID, stageError(StageSynthesis, err))
	}

	result := &Result{
		ID:        req.ID,
		Tone:      req.Tone,
		Segments:  segments,
		Narration: core.NarrationText(segments),
		Artifact:  artifact,
		AudioKey:  "",
	}

	if s.store != nil {
		key := fmt.Sprintf(audioObjectKeyFormat, req.ID)

		uploadErr := s.store.UploadFile(ctx, key, artifact.Path)
		if uploadErr != nil {
			return nil, s.fail(req.ID, stageError(StageStorage, uploadErr))
		}

		result.AudioKey = key
	}

	s.record(ctx, result)
	s.logger.Info(logFmtFinished, req.ID, artifact.Path, time.Since(start).Round(time.Millisecond))

	return result, nil
}

func (s *Service) withDefaults(req Request) Request {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	req.Tone = strings.TrimSpace(req.Tone)
	if req.Tone == "" {
		req.Tone = DefaultTone
	}

	req.Voice = strings.TrimSpace(req.Voice)
	if req.Voice == "" {
		req.Voice = s.settings.DefaultVoice
	}

	if req.OutputPath == "" {
		req.OutputPath = ttsutils.AudioPath(s.settings.WorkDir, req.ID)
	}

	return req
}

func (s *Service) prepareText(req Request) (string, error) {
	normalized := s.normalizer.Normalize(req.Text)
	if strings.TrimSpace(normalized) == "" {
		return "", fmt.Errorf(errFmtInvalid, core.ErrInvalidInput, errTextEmpty)
	}

	truncated := text.Truncate(normalized, s.settings.MaxInputChars)
	if len(truncated) < len(normalized) {
		s.logger.Warn(logFmtTruncated, req.ID, len([]rune(normalized)), len([]rune(truncated)))
	}

	return truncated, nil
}

func (s *Service) record(ctx context.Context, result *Result) {
	if s.history == nil {
		return
	}

	err := s.history.Record(ctx, core.HistoryEntry{
		ID:           result.ID,
		Tone:         result.Tone,
		VoiceKey:     result.Artifact.VoiceKey,
		SegmentCount: len(result.Segments),
		AudioKey:     result.AudioKey,
		Narration:    result.Narration,
		UsedFallback: result.Artifact.UsedFallback,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn(logFmtHistoryFailed, result.ID, err)
	}
}

func (s *Service) fail(id string, err *StageError) error {
	s.logger.Error(logFmtStageFailed, id, err)

	return err
}
