// Package app wires configuration into the components shared by the
// echoverse binaries.
package app

import (
	"fmt"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/echoverse/internal/config"
	"github.com/book-expert/echoverse/internal/core"
	"github.com/book-expert/echoverse/internal/history"
	"github.com/book-expert/echoverse/internal/iam"
	"github.com/book-expert/echoverse/internal/narration"
	"github.com/book-expert/echoverse/internal/objectstore"
	"github.com/book-expert/echoverse/internal/pipeline"
	"github.com/book-expert/echoverse/internal/tts"
)

const (
	natsClientName        = "echoverse"
	errFmtHistory         = "failed to open history store: %w"
	errFmtNATSConnect     = "failed to connect to NATS at %s: %w"
	errFmtJetStream       = "failed to get JetStream context: %w"
	errFmtObjectStore     = "failed to open object store: %w"
	logFmtTokenCache      = "Caching IAM tokens with a %s refresh margin"
	logFmtProvider        = "Narration provider: %s"
	logFmtHistoryEnabled  = "Recording history in %s"
	logFmtObjectStore     = "Storing audiobooks in NATS bucket %s"
	logFmtCloseFailed     = "Failed to close %s: %v"
	logDemoMode           = "WATSONX_API_KEY is not set, running in demo mode"
	logOpenAIKeyMissing   = "OPENAI_API_KEY is not set, narration requests will fail"
	componentHistoryStore = "history store"
)

// Components are the long-lived objects built from a Config.
type Components struct {
	Config        *config.Config
	Authenticator core.Authenticator
	SpeechClient  *tts.HTTPClient
	Service       *pipeline.Service
	History       *history.Store
	Store         *objectstore.NatsObjectStore
	NATS          *nats.Conn
	log           *logger.Logger
}

// Build creates every component cfg enables. History and NATS are optional;
// their fields stay nil when disabled.
func Build(cfg *config.Config, log *logger.Logger) (*Components, error) {
	components := &Components{
		Config:        cfg,
		Authenticator: nil,
		SpeechClient:  nil,
		Service:       nil,
		History:       nil,
		Store:         nil,
		NATS:          nil,
		log:           log,
	}

	if cfg.DemoMode() {
		log.Warn(logDemoMode)
	}

	components.Authenticator = newAuthenticator(cfg, log)
	components.SpeechClient = tts.NewHTTPClient(cfg.Synthesis.ServiceURL, cfg.SynthesisTimeout())

	deps := pipeline.Dependencies{
		Authenticator: components.Authenticator,
		Generator:     newGenerator(cfg, log),
		Synthesizer: tts.NewSynthesizer(
			components.SpeechClient,
			components.Authenticator,
			log,
			cfg.SynthesisTimeout(),
		),
		Store:   nil,
		History: nil,
		Logger:  log,
	}

	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf(errFmtHistory, err)
		}

		log.Info(logFmtHistoryEnabled, cfg.History.DBPath)

		components.History = store
		deps.History = store
	}

	if cfg.NATS.URL != "" {
		err := components.connectNATS()
		if err != nil {
			components.Close()

			return nil, err
		}

		deps.Store = components.Store
	}

	components.Service = pipeline.NewService(deps, pipeline.Settings{
		APIKey:        cfg.Secrets.APIKey,
		DefaultVoice:  cfg.Synthesis.DefaultVoice,
		WorkDir:       cfg.Paths.WorkDir,
		MaxInputChars: cfg.Generation.MaxInputChars,
	})

	return components, nil
}

func (c *Components) connectNATS() error {
	natsConnection, err := nats.Connect(c.Config.NATS.URL, nats.Name(natsClientName))
	if err != nil {
		return fmt.Errorf(errFmtNATSConnect, c.Config.NATS.URL, err)
	}

	c.NATS = natsConnection

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf(errFmtJetStream, err)
	}

	store, err := objectstore.New(jetstreamContext, c.Config.NATS.AudiobookBucket)
	if err != nil {
		return fmt.Errorf(errFmtObjectStore, err)
	}

	c.log.Info(logFmtObjectStore, store.Bucket())
	c.Store = store

	return nil
}

// Close releases the history database and the NATS connection.
func (c *Components) Close() {
	if c.History != nil {
		err := c.History.Close()
		if err != nil {
			c.log.Warn(logFmtCloseFailed, componentHistoryStore, err)
		}
	}

	if c.NATS != nil {
		c.NATS.Close()
	}
}

func newAuthenticator(cfg *config.Config, log *logger.Logger) core.Authenticator {
	exchanger := iam.NewExchanger(cfg.IAM.TokenURL, cfg.IAMTimeout())
	if !cfg.IAM.CacheTokens {
		return exchanger
	}

	log.Info(logFmtTokenCache, cfg.RefreshMargin())

	return iam.NewCache(exchanger, cfg.RefreshMargin())
}

func newGenerator(cfg *config.Config, log *logger.Logger) core.NarrationGenerator {
	log.Info(logFmtProvider, cfg.Generation.Provider)

	if cfg.Generation.Provider == config.ProviderOpenAI {
		if cfg.Secrets.OpenAIAPIKey == "" {
			log.Warn(logOpenAIKeyMissing)
		}

		return narration.NewOpenAIGenerator(narration.OpenAIConfig{
			APIKey:    cfg.Secrets.OpenAIAPIKey,
			BaseURL:   cfg.Generation.OpenAIBaseURL,
			Model:     cfg.Generation.OpenAIModel,
			MaxTokens: cfg.Generation.MaxNewTokens,
			Timeout:   cfg.GenerationTimeout(),
			Template:  narration.DefaultTemplate,
		})
	}

	return narration.NewWatsonxGenerator(narration.WatsonxConfig{
		URL:       cfg.Generation.URL,
		ModelID:   cfg.Generation.ModelID,
		ProjectID: cfg.Generation.ProjectID,
		MaxTokens: cfg.Generation.MaxNewTokens,
		Timeout:   cfg.GenerationTimeout(),
		Template:  narration.DefaultTemplate,
	})
}
