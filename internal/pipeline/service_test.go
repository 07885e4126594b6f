package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/echoverse/internal/core"
	"github.com/book-expert/echoverse/internal/pipeline"
)

type mockAuthenticator struct {
	err   error
	calls int
}

func (m *mockAuthenticator) Exchange(_ context.Context, apiKey string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}

	return "Bearer token-for-" + apiKey, nil
}

type mockGenerator struct {
	err       error
	gotText   string
	gotTone   string
	gotBearer string
	segments  []core.NarrationSegment
}

func (m *mockGenerator) Generate(_ context.Context, text, tone, bearer string) ([]core.NarrationSegment, error) {
	m.gotText = text
	m.gotTone = tone
	m.gotBearer = bearer

	if m.err != nil {
		return nil, m.err
	}

	return m.segments, nil
}

type mockSynthesizer struct {
	err      error
	gotVoice string
	gotKey   string
	gotPath  string
}

func (m *mockSynthesizer) Synthesize(
	_ context.Context,
	segments []core.NarrationSegment,
	voiceKey, apiKey, outputPath string,
) (*core.AudioArtifact, error) {
	m.gotVoice = voiceKey
	m.gotKey = apiKey
	m.gotPath = outputPath

	if m.err != nil {
		return nil, m.err
	}

	data := []byte(core.NarrationText(segments))

	writeErr := os.WriteFile(outputPath, data, 0o600)
	if writeErr != nil {
		return nil, writeErr
	}

	return &core.AudioArtifact{
		Path:         outputPath,
		Size:         int64(len(data)),
		VoiceKey:     voiceKey,
		VoiceID:      "en-US_AllisonExpressive",
		UsedFallback: false,
		Duration:     0,
	}, nil
}

type mockStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *mockStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.objects[key], nil
}

func (m *mockStore) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = data

	return nil
}

func (m *mockStore) UploadFile(ctx context.Context, key, path string) error {
	if m.err != nil {
		return m.err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return m.Upload(ctx, key, data)
}

type mockHistory struct {
	entries []core.HistoryEntry
	err     error
}

func (m *mockHistory) Record(_ context.Context, entry core.HistoryEntry) error {
	if m.err != nil {
		return m.err
	}

	m.entries = append(m.entries, entry)

	return nil
}

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "pipeline-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

var testSegments = []core.NarrationSegment{
	{SpeechText: "The wind blew hard.", Emotion: core.EmotionAngry, Background: core.BackgroundOutdoor},
	{SpeechText: "The sun smiled.", Emotion: core.EmotionHappy, Background: core.BackgroundNone},
}

type fixture struct {
	auth        *mockAuthenticator
	generator   *mockGenerator
	synthesizer *mockSynthesizer
	store       *mockStore
	history     *mockHistory
	workDir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	return &fixture{
		auth:        &mockAuthenticator{err: nil, calls: 0},
		generator:   &mockGenerator{segments: testSegments},
		synthesizer: &mockSynthesizer{},
		store:       &mockStore{objects: map[string][]byte{}},
		history:     &mockHistory{},
		workDir:     filepath.Join(t.TempDir(), "work"),
	}
}

func (f *fixture) service(t *testing.T, apiKey string, withExtras bool) *pipeline.Service {
	t.Helper()

	deps := pipeline.Dependencies{
		Authenticator: f.auth,
		Generator:     f.generator,
		Synthesizer:   f.synthesizer,
		Store:         nil,
		History:       nil,
		Logger:        createTestLogger(t),
	}

	if withExtras {
		deps.Store = f.store
		deps.History = f.history
	}

	return pipeline.NewService(deps, pipeline.Settings{
		APIKey:        apiKey,
		DefaultVoice:  "allison_expressive",
		WorkDir:       f.workDir,
		MaxInputChars: 0,
	})
}

func TestRun_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	service := f.service(t, "key-123", true)

	result, err := service.Run(context.Background(), pipeline.Request{
		ID:         "book-1",
		Text:       "The North Wind and the Sun were disputing which was the stronger",
		Tone:       "Dramatic",
		Voice:      "lisa_expressive",
		OutputPath: "",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.auth.calls)
	assert.Equal(t, "Bearer token-for-key-123", f.generator.gotBearer)
	assert.Equal(t, "Dramatic", f.generator.gotTone)
	assert.Equal(t, "The North Wind and the Sun were disputing which was the stronger.", f.generator.gotText)
	assert.Equal(t, "lisa_expressive", f.synthesizer.gotVoice)
	assert.Equal(t, "key-123", f.synthesizer.gotKey, "synthesizer receives the API key, not the bearer")
	assert.Equal(t, filepath.Join(f.workDir, "book-1.mp3"), result.Artifact.Path)

	assert.Equal(t, "book-1", result.ID)
	assert.Equal(t, testSegments, result.Segments)
	assert.Equal(t, "The wind blew hard. The sun smiled.", result.Narration)
	assert.Equal(t, "book-1.mp3", result.AudioKey)
	assert.Equal(t, []byte("The wind blew hard. The sun smiled."), f.store.objects["book-1.mp3"])

	require.Len(t, f.history.entries, 1)
	entry := f.history.entries[0]
	assert.Equal(t, "book-1", entry.ID)
	assert.Equal(t, 2, entry.SegmentCount)
	assert.Equal(t, "lisa_expressive", entry.VoiceKey)
	assert.Equal(t, "book-1.mp3", entry.AudioKey)
}

func TestRun_Defaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	service := f.service(t, "key-123", false)

	result, err := service.Run(context.Background(), pipeline.Request{Text: "Hello there."})
	require.NoError(t, err)

	assert.NotEmpty(t, result.ID)
	assert.Equal(t, pipeline.DefaultTone, result.Tone)
	assert.Equal(t, pipeline.DefaultTone, f.generator.gotTone)
	assert.Equal(t, "allison_expressive", f.synthesizer.gotVoice)
	assert.Empty(t, result.AudioKey)
	assert.FileExists(t, result.Artifact.Path)
}

func TestRun_EmptyText(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.service(t, "key-123", false).Run(context.Background(), pipeline.Request{Text: " \n\t \n"})

	var stageErr *pipeline.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, pipeline.StageInput, stageErr.Stage)
	require.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Equal(t, "Please provide some text to convert.", stageErr.Message())
	assert.Zero(t, f.auth.calls)
}

func TestRun_DemoMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	service := f.service(t, "", false)
	require.True(t, service.DemoMode())

	_, err := service.Run(context.Background(), pipeline.Request{Text: "Hello."})
	require.ErrorIs(t, err, core.ErrDemoMode)

	var stageErr *pipeline.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Contains(t, stageErr.Message(), "WATSONX_API_KEY")
	assert.Zero(t, f.auth.calls)
}

func TestRun_StageFailures(t *testing.T) {
	t.Parallel()

	networkErr := errors.New("connection refused")

	tests := []struct {
		name    string
		arrange func(f *fixture)
		stage   pipeline.Stage
		target  error
		message string
	}{
		{
			name:    "credential",
			arrange: func(f *fixture) { f.auth.err = networkErr },
			stage:   pipeline.StageCredential,
			target:  networkErr,
			message: "Could not authenticate with IBM Cloud: connection refused",
		},
		{
			name:    "generation",
			arrange: func(f *fixture) { f.generator.err = core.ErrGeneration },
			stage:   pipeline.StageGeneration,
			target:  core.ErrGeneration,
			message: "Failed to generate narration: generation failed",
		},
		{
			name:    "malformed narration",
			arrange: func(f *fixture) { f.generator.err = core.ErrMalformedResponse },
			stage:   pipeline.StageGeneration,
			target:  core.ErrMalformedResponse,
			message: "The language model returned narration that could not be read: malformed response",
		},
		{
			name:    "synthesis",
			arrange: func(f *fixture) { f.synthesizer.err = core.ErrSynthesisFailure },
			stage:   pipeline.StageSynthesis,
			target:  core.ErrSynthesisFailure,
			message: "Failed to synthesize audio: synthesis failed",
		},
		{
			name:    "storage",
			arrange: func(f *fixture) { f.store.err = networkErr },
			stage:   pipeline.StageStorage,
			target:  networkErr,
			message: "Failed to store the audiobook: connection refused",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			testCase.arrange(f)

			_, err := f.service(t, "key-123", true).Run(context.Background(), pipeline.Request{Text: "Hello."})

			var stageErr *pipeline.StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, testCase.stage, stageErr.Stage)
			require.ErrorIs(t, err, testCase.target)
			assert.Equal(t, testCase.message, stageErr.Message())
			assert.Empty(t, f.history.entries)
		})
	}
}

func TestRun_HistoryFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.history.err = errors.New("disk full")

	result, err := f.service(t, "key-123", true).Run(context.Background(), pipeline.Request{Text: "Hello."})
	require.NoError(t, err)
	assert.NotNil(t, result.Artifact)
}

func TestRun_TruncatesLongInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	service := pipeline.NewService(pipeline.Dependencies{
		Authenticator: f.auth,
		Generator:     f.generator,
		Synthesizer:   f.synthesizer,
		Store:         nil,
		History:       nil,
		Logger:        createTestLogger(t),
	}, pipeline.Settings{
		APIKey:        "key",
		DefaultVoice:  "allison",
		WorkDir:       f.workDir,
		MaxInputChars: 20,
	})

	_, err := service.Run(context.Background(), pipeline.Request{Text: "First sentence. Second sentence is long."})
	require.NoError(t, err)
	assert.Equal(t, "First sentence.", f.generator.gotText)
}
