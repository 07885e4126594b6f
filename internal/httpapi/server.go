// Package httpapi exposes the audiobook pipeline over HTTP with fiber.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/book-expert/echoverse/internal/core"
	"github.com/book-expert/echoverse/internal/pipeline"
	"github.com/book-expert/echoverse/internal/tts/ttsutils"
)

const (
	appName             = "echoverse"
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	logFmtRequest       = "%s %s -> %d (%s)"
	logFmtHandlerError  = "%s %s failed: %v"
	errFmtListen        = "failed to listen on %s: %w"
	errFmtShutdown      = "failed to shut down HTTP server: %w"
)

// Runner produces audiobooks. *pipeline.Service implements it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	DemoMode() bool
	DefaultVoice() string
}

// HistoryLister lists recently generated audiobooks. *history.Store implements it.
type HistoryLister interface {
	Recent(ctx context.Context, limit int) ([]core.HistoryEntry, error)
}

// AudioSource restores audio files that are no longer on local disk.
// *objectstore.NatsObjectStore implements it.
type AudioSource interface {
	DownloadFile(ctx context.Context, key, path string) error
}

// Options tune the server. History and Audio may be nil.
type Options struct {
	WorkDir      string
	BodyLimit    int
	HistoryLimit int
	History      HistoryLister
	Audio        AudioSource
}

// Server is the HTTP surface of the audiobook service.
type Server struct {
	app          *fiber.App
	runner       Runner
	history      HistoryLister
	audio        AudioSource
	log          *logger.Logger
	workDir      string
	historyLimit int
}

// New builds a Server and registers its routes.
func New(runner Runner, log *logger.Logger, opts Options) *Server {
	if opts.WorkDir == "" {
		opts.WorkDir = ttsutils.GetWorkDir()
	}

	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}

	opts.HistoryLimit = min(opts.HistoryLimit, maxHistoryLimit)

	server := &Server{
		app:          nil,
		runner:       runner,
		history:      opts.History,
		audio:        opts.Audio,
		log:          log,
		workDir:      opts.WorkDir,
		historyLimit: opts.HistoryLimit,
	}

	config := fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ErrorHandler:          server.handleError,
	}
	if opts.BodyLimit > 0 {
		config.BodyLimit = opts.BodyLimit
	}

	server.app = fiber.New(config)
	server.app.Use(recover.New())
	server.app.Use(server.logRequests)
	server.routes()

	return server
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	err := s.app.Listen(addr)
	if err != nil {
		return fmt.Errorf(errFmtListen, addr, err)
	}

	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	if err != nil {
		return fmt.Errorf(errFmtShutdown, err)
	}

	return nil
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.handleHealth)

	api := s.app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/voices", s.handleVoices)
	api.Post("/audiobooks", s.handleCreateAudiobook)
	api.Get("/audiobooks", s.handleListAudiobooks)
	api.Get("/audiobooks/:id/audio", s.handleAudio)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status = fiberErr.Code
	}

	s.log.Info(logFmtRequest, c.Method(), c.Path(), status, time.Since(start).Round(time.Millisecond))

	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	} else {
		s.log.Error(logFmtHandlerError, c.Method(), c.Path(), err)
	}

	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
