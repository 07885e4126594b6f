package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/book-expert/echoverse/internal/core"
	"github.com/book-expert/echoverse/internal/document"
	"github.com/book-expert/echoverse/internal/pipeline"
	"github.com/book-expert/echoverse/internal/tts"
	"github.com/book-expert/echoverse/internal/tts/ttsutils"
)

const (
	mimeMultipart       = "multipart/form-data"
	mimeAudio           = "audio/mpeg"
	formFieldText       = "text"
	formFieldTone       = "tone"
	formFieldVoice      = "voice"
	formFieldFile       = "file"
	paramID             = "id"
	queryLimit          = "limit"
	queryContent        = "content"
	audioURLFormat      = "/api/audiobooks/%s/audio"
	downloadNameFormat  = "audiobook-%s.mp3"
	audioObjectFormat   = "%s.mp3"
	errInvalidJSON      = "invalid JSON body"
	errNoInput          = "provide text or upload a PDF or TXT file"
	errInvalidID        = "invalid audiobook id"
	errAudioNotFound    = "audio not found"
	errHistoryDisabled  = "history is not enabled"
	errFmtOpenUpload    = "failed to open uploaded file: %w"
	errFmtReadUpload    = "failed to read uploaded file: %w"
	logFmtRestoreFailed = "Could not restore audio %s from object store: %v"
	timeLayout          = time.RFC3339
)

type audiobookRequest struct {
	Text  string `json:"text"`
	Tone  string `json:"tone"`
	Voice string `json:"voice"`
}

type audiobookResponse struct {
	ID              string                  `json:"id"`
	Tone            string                  `json:"tone"`
	Narration       string                  `json:"narration"`
	Segments        []core.NarrationSegment `json:"segments"`
	Voice           string                  `json:"voice"`
	VoiceID         string                  `json:"voice_id"`
	UsedFallback    bool                    `json:"used_fallback"`
	AudioURL        string                  `json:"audio_url"`
	AudioKey        string                  `json:"audio_key,omitempty"`
	SizeBytes       int64                   `json:"size_bytes"`
	DurationSeconds float64                 `json:"duration_seconds"`
}

type statusResponse struct {
	DemoMode     bool     `json:"demo_mode"`
	Tones        []string `json:"tones"`
	DefaultTone  string   `json:"default_tone"`
	DefaultVoice string   `json:"default_voice"`
}

type voicesResponse struct {
	Voices      []tts.VoiceProfile `json:"voices"`
	Recommended string             `json:"recommended"`
}

type historyItem struct {
	ID           string `json:"id"`
	Tone         string `json:"tone"`
	Voice        string `json:"voice"`
	SegmentCount int    `json:"segment_count"`
	Narration    string `json:"narration"`
	UsedFallback bool   `json:"used_fallback"`
	AudioURL     string `json:"audio_url"`
	CreatedAt    string `json:"created_at"`
}

type errorResponse struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.SendString("ok")
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(statusResponse{
		DemoMode:     s.runner.DemoMode(),
		Tones:        pipeline.Tones,
		DefaultTone:  pipeline.DefaultTone,
		DefaultVoice: s.runner.DefaultVoice(),
	})
}

func (s *Server) handleVoices(c *fiber.Ctx) error {
	return c.JSON(voicesResponse{
		Voices:      tts.ListVoices(),
		Recommended: tts.RecommendedVoice(c.Query(queryContent)),
	})
}

func (s *Server) handleCreateAudiobook(c *fiber.Ctx) error {
	req, err := s.parseAudiobookRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Stage: string(pipeline.StageInput),
			Error: err.Error(),
		})
	}

	id := uuid.NewString()

	result, err := s.runner.Run(c.UserContext(), pipeline.Request{
		ID:         id,
		Text:       req.Text,
		Tone:       req.Tone,
		Voice:      req.Voice,
		OutputPath: ttsutils.AudioPath(s.workDir, id),
	})
	if err != nil {
		return s.writeRunError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(audiobookResponse{
		ID:              result.ID,
		Tone:            result.Tone,
		Narration:       result.Narration,
		Segments:        result.Segments,
		Voice:           result.Artifact.VoiceKey,
		VoiceID:         result.Artifact.VoiceID,
		UsedFallback:    result.Artifact.UsedFallback,
		AudioURL:        fmt.Sprintf(audioURLFormat, result.ID),
		AudioKey:        result.AudioKey,
		SizeBytes:       result.Artifact.Size,
		DurationSeconds: result.Artifact.Duration.Seconds(),
	})
}

// parseAudiobookRequest reads a JSON or multipart body. A non-blank text
// field wins over an uploaded file.
func (s *Server) parseAudiobookRequest(c *fiber.Ctx) (audiobookRequest, error) {
	var req audiobookRequest

	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), mimeMultipart) {
		err := c.BodyParser(&req)
		if err != nil {
			return req, errors.New(errInvalidJSON)
		}

		if strings.TrimSpace(req.Text) == "" {
			return req, errors.New(errNoInput)
		}

		return req, nil
	}

	req = audiobookRequest{
		Text:  c.FormValue(formFieldText),
		Tone:  c.FormValue(formFieldTone),
		Voice: c.FormValue(formFieldVoice),
	}

	if strings.TrimSpace(req.Text) != "" {
		return req, nil
	}

	fileHeader, err := c.FormFile(formFieldFile)
	if err != nil {
		return req, errors.New(errNoInput)
	}

	text, err := extractUpload(fileHeader)
	if err != nil {
		return req, err
	}

	req.Text = text

	return req, nil
}

func extractUpload(fileHeader *multipart.FileHeader) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf(errFmtOpenUpload, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf(errFmtReadUpload, err)
	}

	return document.Extract(fileHeader.Filename, fileHeader.Header.Get(fiber.HeaderContentType), data)
}

func (s *Server) writeRunError(c *fiber.Ctx, err error) error {
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		return err
	}

	return c.Status(statusForStage(stageErr)).JSON(errorResponse{
		Stage: string(stageErr.Stage),
		Error: stageErr.Message(),
	})
}

func statusForStage(stageErr *pipeline.StageError) int {
	switch {
	case stageErr.Stage == pipeline.StageInput:
		return fiber.StatusBadRequest
	case errors.Is(stageErr, core.ErrDemoMode):
		return fiber.StatusServiceUnavailable
	case errors.Is(stageErr, core.ErrTransientNetwork):
		return fiber.StatusGatewayTimeout
	case stageErr.Stage == pipeline.StageStorage:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusBadGateway
	}
}

func (s *Server) handleAudio(c *fiber.Ctx) error {
	id := c.Params(paramID)

	_, err := uuid.Parse(id)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, errInvalidID)
	}

	path := ttsutils.AudioPath(s.workDir, id)

	_, statErr := os.Stat(path)
	if statErr != nil && s.audio != nil {
		restoreErr := ttsutils.EnsureDir(filepath.Dir(path))
		if restoreErr == nil {
			restoreErr = s.audio.DownloadFile(c.UserContext(), fmt.Sprintf(audioObjectFormat, id), path)
		}

		if restoreErr != nil {
			s.log.Warn(logFmtRestoreFailed, id, restoreErr)
		}

		_, statErr = os.Stat(path)
	}

	if statErr != nil {
		return fiber.NewError(fiber.StatusNotFound, errAudioNotFound)
	}

	c.Set(fiber.HeaderContentType, mimeAudio)
	c.Attachment(fmt.Sprintf(downloadNameFormat, id))

	return c.SendFile(path)
}

func (s *Server) handleListAudiobooks(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusNotFound, errHistoryDisabled)
	}

	limit := c.QueryInt(queryLimit, s.historyLimit)
	if limit <= 0 {
		limit = s.historyLimit
	}

	entries, err := s.history.Recent(c.UserContext(), min(limit, maxHistoryLimit))
	if err != nil {
		return err
	}

	items := make([]historyItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, historyItem{
			ID:           entry.ID,
			Tone:         entry.Tone,
			Voice:        entry.VoiceKey,
			SegmentCount: entry.SegmentCount,
			Narration:    entry.Narration,
			UsedFallback: entry.UsedFallback,
			AudioURL:     fmt.Sprintf(audioURLFormat, entry.ID),
			CreatedAt:    entry.CreatedAt.UTC().Format(timeLayout),
		})
	}

	return c.JSON(items)
}
