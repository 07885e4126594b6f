// Package worker provides a NATS worker that turns stored text into audiobooks.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/echoverse/internal/core"
	"github.com/book-expert/echoverse/internal/pipeline"
)

// DefaultHandleTimeout bounds one request: a generation call plus a synthesis
// call and its fallback.
const DefaultHandleTimeout = 6 * time.Minute

const audioKeyFormat = "%s.mp3"

const (
	errFmtSubscribe    = "failed to subscribe to subject %s: %w"
	errFmtDrain        = "failed to drain subscription: %w"
	errFmtUnmarshal    = "failed to unmarshal event: %w"
	errFmtDownload     = "failed to download text data for key '%s': %w"
	errFmtUpload       = "failed to upload audio data for key '%s': %w"
	errFmtMarshalReply = "failed to marshal reply event: %w"
	errFmtPublishReply = "failed to publish reply event: %w"
	logFmtInvalidEvent = "Failed to parse and validate event: %v"
	logFmtJobFailed    = "Failed to process audiobook job for workflow %s: %v"
	logFmtReplyFailed  = "Failed to publish reply event for workflow %s: %v"
	logFmtRemoveFailed = "Failed to remove local audio %s: %v"
	logFmtJobDone      = "Audiobook for workflow %s stored as %s"
	logFmtListening    = "Listening for audiobook requests on subject: %s"
	stageUnknown       = "request"
)

// ErrTextKeyEmpty indicates that the event names no text object.
var ErrTextKeyEmpty = errors.New("text key cannot be empty")

// AudiobookRequestedEvent asks the worker to narrate the text stored under TextKey.
type AudiobookRequestedEvent struct {
	Header  events.EventHeader `json:"header"`
	TextKey string             `json:"text_key"`
	Tone    string             `json:"tone,omitempty"`
	Voice   string             `json:"voice,omitempty"`
}

// AudiobookFailedEvent is the reply sent when a request cannot be completed.
type AudiobookFailedEvent struct {
	Header  events.EventHeader `json:"header"`
	Stage   string             `json:"stage"`
	Message string             `json:"message"`
	Error   string             `json:"error"`
}

// Runner produces one audiobook. *pipeline.Service implements it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// NatsWorker listens for audiobook requests on a NATS subject and answers each
// with an events.AudioChunkCreatedEvent.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	runner         Runner
	log            *logger.Logger
	timeout        time.Duration
}

// NewNatsWorker creates a new instance of a NATS worker. A non-positive
// timeout uses DefaultHandleTimeout.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	runner Runner,
	log *logger.Logger,
	timeout time.Duration,
) *NatsWorker {
	if timeout <= 0 {
		timeout = DefaultHandleTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		runner:         runner,
		log:            log,
		timeout:        timeout,
	}
}

// Run starts the worker and blocks until ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf(errFmtSubscribe, w.subject, err)
	}

	w.log.System(logFmtListening, w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf(errFmtDrain, drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	event, err := parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error(logFmtInvalidEvent, err)
		w.replyFailure(msg, events.EventHeader{}, err)

		return
	}

	audioKey, processErr := w.processJob(ctx, event)
	if processErr != nil {
		w.log.Error(logFmtJobFailed, event.Header.WorkflowID, processErr)
		w.replyFailure(msg, event.Header, processErr)

		return
	}

	w.log.Info(logFmtJobDone, event.Header.WorkflowID, audioKey)

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: 1,
		TotalPages: 1,
	}

	err = w.publishReply(msg, replyEvent)
	if err != nil {
		w.log.Error(logFmtReplyFailed, event.Header.WorkflowID, err)
	}
}

// processJob downloads the text, runs the pipeline and makes sure the audio
// ends up in the object store. It returns the audio object key.
func (w *NatsWorker) processJob(ctx context.Context, event *AudiobookRequestedEvent) (string, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf(errFmtDownload, event.TextKey, err)
	}

	result, err := w.runner.Run(ctx, pipeline.Request{
		ID:         uuid.NewString(),
		Text:       string(textData),
		Tone:       event.Tone,
		Voice:      event.Voice,
		OutputPath: "",
	})
	if err != nil {
		return "", err
	}

	defer w.removeLocal(result.Artifact.Path)

	if result.AudioKey != "" {
		return result.AudioKey, nil
	}

	audioKey := fmt.Sprintf(audioKeyFormat, result.ID)

	err = w.store.UploadFile(ctx, audioKey, result.Artifact.Path)
	if err != nil {
		return "", fmt.Errorf(errFmtUpload, audioKey, err)
	}

	return audioKey, nil
}

func (w *NatsWorker) removeLocal(path string) {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		w.log.Warn(logFmtRemoveFailed, path, err)
	}
}

func (w *NatsWorker) replyFailure(msg *nats.Msg, header events.EventHeader, cause error) {
	if msg.Reply == "" {
		return
	}

	failure := &AudiobookFailedEvent{
		Header:  header,
		Stage:   stageUnknown,
		Message: cause.Error(),
		Error:   cause.Error(),
	}

	var stageErr *pipeline.StageError
	if errors.As(cause, &stageErr) {
		failure.Stage = string(stageErr.Stage)
		failure.Message = stageErr.Message()
	}

	err := w.publishReply(msg, failure)
	if err != nil {
		w.log.Error(logFmtReplyFailed, header.WorkflowID, err)
	}
}

// publishReply marshals and responds with reply.
func (w *NatsWorker) publishReply(msg *nats.Msg, reply any) error {
	replyData, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf(errFmtMarshalReply, err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf(errFmtPublishReply, err)
	}

	return nil
}

func parseAndValidateEvent(msg *nats.Msg) (*AudiobookRequestedEvent, error) {
	var event AudiobookRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf(errFmtUnmarshal, err)
	}

	if strings.TrimSpace(event.TextKey) == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}
