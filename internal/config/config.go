// Package config provides the configuration structure for the audiobook service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/book-expert/echoverse/internal/tts/ttsutils"
)

// Environment variables holding secrets. Secrets never live in project.toml.
const (
	EnvAPIKey       = "WATSONX_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Generation providers.
const (
	ProviderWatsonx = "watsonx"
	ProviderOpenAI  = "openai"
)

// Defaults applied to zero values.
const (
	defaultIAMTimeoutSeconds        = 15
	defaultRefreshMarginSeconds     = 60
	defaultGenerationTimeoutSeconds = 120
	defaultMaxNewTokens             = 8192
	defaultMaxInputChars            = 12000
	defaultSynthesisTimeoutSeconds  = 120
	defaultDefaultVoice             = "allison_expressive"
	defaultServerAddress            = ":8080"
	defaultBodyLimitMB              = 20
	defaultAudiobookSubject         = "audiobook.requested"
	defaultAudiobookBucket          = "AUDIOBOOKS"
	defaultHistoryFile              = "history.db"
	defaultRecentLimit              = 20
	defaultLogsDirName              = "logs"
)

const (
	errFmtConfiguratorLoad = "failed to load configuration from configurator: %w"
	errFmtDecode           = "failed to decode configuration: %w"
	errFmtReadFile         = "failed to read configuration file %s: %w"
	errFmtLoadEnv          = "failed to load env file: %w"
	errFmtEnsureDir        = "failed to prepare %s directory: %w"
	errFmtUnknownProvider  = "unknown generation provider %q"
)

// IAMConfig configures the API key to bearer token exchange.
type IAMConfig struct {
	TokenURL             string `toml:"token_url"`
	TimeoutSeconds       int    `toml:"timeout_seconds"`
	CacheTokens          bool   `toml:"cache_tokens"`
	RefreshMarginSeconds int    `toml:"refresh_margin_seconds"`
}

// GenerationConfig configures the narration generator.
type GenerationConfig struct {
	Provider       string `toml:"provider"`
	URL            string `toml:"url"`
	ModelID        string `toml:"model_id"`
	ProjectID      string `toml:"project_id"`
	MaxNewTokens   int    `toml:"max_new_tokens"`
	MaxInputChars  int    `toml:"max_input_chars"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	OpenAIBaseURL  string `toml:"openai_base_url"`
	OpenAIModel    string `toml:"openai_model"`
}

// SynthesisConfig configures the text to speech service.
type SynthesisConfig struct {
	ServiceURL     string `toml:"service_url"`
	DefaultVoice   string `toml:"default_voice"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address     string `toml:"address"`
	BodyLimitMB int    `toml:"body_limit_mb"`
}

// NATSConfig holds the configuration for NATS. An empty URL disables the
// object store and the worker.
type NATSConfig struct {
	URL                       string `toml:"url"`
	AudiobookRequestedSubject string `toml:"audiobook_requested_subject"`
	AudiobookBucket           string `toml:"audiobook_bucket"`
}

// HistoryConfig configures the SQLite history of generated audiobooks.
type HistoryConfig struct {
	Enabled     bool   `toml:"enabled"`
	DBPath      string `toml:"db_path"`
	RecentLimit int    `toml:"recent_limit"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	WorkDir     string `toml:"work_dir"`
}

// Secrets are read from the environment, never from project.toml.
type Secrets struct {
	APIKey       string `toml:"-"`
	OpenAIAPIKey string `toml:"-"`
}

// Config is the root configuration structure.
type Config struct {
	IAM        IAMConfig        `toml:"iam"`
	Generation GenerationConfig `toml:"generation"`
	Synthesis  SynthesisConfig  `toml:"synthesis"`
	Server     ServerConfig     `toml:"server"`
	NATS       NATSConfig       `toml:"nats"`
	History    HistoryConfig    `toml:"history"`
	Paths      PathsConfig      `toml:"paths"`
	Secrets    Secrets          `toml:"-"`
}

// Load loads project.toml through the configurator, applies defaults and
// reads secrets from the environment.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf(errFmtConfiguratorLoad, err)
	}

	return finish(&cfg)
}

// LoadFile decodes the TOML file at path and reads secrets.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf(errFmtReadFile, path, err)
	}

	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}

	return finish(cfg)
}

// Decode parses TOML into a Config with defaults applied. Secrets are left empty.
func Decode(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf(errFmtDecode, err)
	}

	cfg.ApplyDefaults()

	return &cfg, cfg.Validate()
}

// Default returns a Config holding only defaults.
func Default() *Config {
	var cfg Config

	cfg.ApplyDefaults()

	return &cfg
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	secretsErr := cfg.LoadSecrets()
	if secretsErr != nil {
		return nil, secretsErr
	}

	return cfg, nil
}

// ApplyDefaults fills every zero value with its default.
func (c *Config) ApplyDefaults() {
	setInt(&c.IAM.TimeoutSeconds, defaultIAMTimeoutSeconds)
	setInt(&c.IAM.RefreshMarginSeconds, defaultRefreshMarginSeconds)

	setString(&c.Generation.Provider, ProviderWatsonx)
	c.Generation.Provider = strings.ToLower(c.Generation.Provider)
	setInt(&c.Generation.MaxNewTokens, defaultMaxNewTokens)
	setInt(&c.Generation.MaxInputChars, defaultMaxInputChars)
	setInt(&c.Generation.TimeoutSeconds, defaultGenerationTimeoutSeconds)

	setString(&c.Synthesis.DefaultVoice, defaultDefaultVoice)
	setInt(&c.Synthesis.TimeoutSeconds, defaultSynthesisTimeoutSeconds)

	setString(&c.Server.Address, defaultServerAddress)
	setInt(&c.Server.BodyLimitMB, defaultBodyLimitMB)

	setString(&c.NATS.AudiobookRequestedSubject, defaultAudiobookSubject)
	setString(&c.NATS.AudiobookBucket, defaultAudiobookBucket)

	setString(&c.Paths.WorkDir, ttsutils.GetWorkDir())
	setString(&c.Paths.BaseLogsDir, filepath.Join(c.Paths.WorkDir, defaultLogsDirName))
	setString(&c.History.DBPath, filepath.Join(c.Paths.WorkDir, defaultHistoryFile))
	setInt(&c.History.RecentLimit, defaultRecentLimit)
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Generation.Provider {
	case ProviderWatsonx, ProviderOpenAI:
		return nil
	default:
		return fmt.Errorf(errFmtUnknownProvider, c.Generation.Provider)
	}
}

// LoadSecrets loads envFiles (".env" when none are given) and reads the API
// keys from the environment. Missing env files are not an error.
func (c *Config) LoadSecrets(envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	for _, envFile := range envFiles {
		err := godotenv.Load(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf(errFmtLoadEnv, err)
		}
	}

	c.Secrets.APIKey = strings.TrimSpace(os.Getenv(EnvAPIKey))
	c.Secrets.OpenAIAPIKey = strings.TrimSpace(os.Getenv(EnvOpenAIAPIKey))

	return nil
}

// DemoMode reports whether the watsonx API key is missing. Synthesis always
// needs it, so nothing can be generated without it.
func (c *Config) DemoMode() bool {
	return c.Secrets.APIKey == ""
}

// EnsureDirectories creates the work and log directories.
func (c *Config) EnsureDirectories() error {
	for name, dir := range map[string]string{
		"work": c.Paths.WorkDir,
		"logs": c.Paths.BaseLogsDir,
	} {
		err := ttsutils.EnsureDir(dir)
		if err != nil {
			return fmt.Errorf(errFmtEnsureDir, name, err)
		}
	}

	return nil
}

// IAMTimeout returns the token exchange timeout.
func (c *Config) IAMTimeout() time.Duration {
	return seconds(c.IAM.TimeoutSeconds)
}

// RefreshMargin returns how long before expiry a cached token is replaced.
func (c *Config) RefreshMargin() time.Duration {
	return seconds(c.IAM.RefreshMarginSeconds)
}

// GenerationTimeout returns the narration generation timeout.
func (c *Config) GenerationTimeout() time.Duration {
	return seconds(c.Generation.TimeoutSeconds)
}

// SynthesisTimeout returns the speech synthesis timeout.
func (c *Config) SynthesisTimeout() time.Duration {
	return seconds(c.Synthesis.TimeoutSeconds)
}

// BodyLimitBytes returns the maximum accepted request body size.
func (c *Config) BodyLimitBytes() int {
	return c.Server.BodyLimitMB * 1024 * 1024
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func setString(target *string, fallback string) {
	if strings.TrimSpace(*target) == "" {
		*target = fallback
	}
}

func setInt(target *int, fallback int) {
	if *target <= 0 {
		*target = fallback
	}
}
