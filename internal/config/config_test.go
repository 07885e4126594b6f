// Package config_test tests the configuration loading for the audiobook service.
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/echoverse/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tomlData := `
[iam]
token_url = "http://127.0.0.1:9000/identity/token"
timeout_seconds = 5
cache_tokens = true

[generation]
provider = "OpenAI"
project_id = "proj-123"
max_input_chars = 500
openai_model = "gpt-4o"

[synthesis]
service_url = "http://127.0.0.1:9001"
default_voice = "lisa_expressive"

[server]
address = ":9090"

[nats]
url = "nats://127.0.0.1:4222"
audiobook_requested_subject = "books.requested"

[history]
enabled = true
db_path = "/var/lib/echoverse/history.db"

[paths]
base_logs_dir = "/var/log/echoverse"
work_dir = "/var/lib/echoverse"
`

	cfg, err := config.Decode([]byte(tomlData))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9000/identity/token", cfg.IAM.TokenURL)
	assert.Equal(t, 5*time.Second, cfg.IAMTimeout())
	assert.True(t, cfg.IAM.CacheTokens)
	assert.Equal(t, time.Minute, cfg.RefreshMargin())
	assert.Equal(t, config.ProviderOpenAI, cfg.Generation.Provider)
	assert.Equal(t, "proj-123", cfg.Generation.ProjectID)
	assert.Equal(t, 500, cfg.Generation.MaxInputChars)
	assert.Equal(t, 8192, cfg.Generation.MaxNewTokens)
	assert.Equal(t, "gpt-4o", cfg.Generation.OpenAIModel)
	assert.Equal(t, "http://127.0.0.1:9001", cfg.Synthesis.ServiceURL)
	assert.Equal(t, "lisa_expressive", cfg.Synthesis.DefaultVoice)
	assert.Equal(t, 2*time.Minute, cfg.SynthesisTimeout())
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 20*1024*1024, cfg.BodyLimitBytes())
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "books.requested", cfg.NATS.AudiobookRequestedSubject)
	assert.Equal(t, "AUDIOBOOKS", cfg.NATS.AudiobookBucket)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "/var/lib/echoverse/history.db", cfg.History.DBPath)
	assert.Equal(t, "/var/log/echoverse", cfg.Paths.BaseLogsDir)
	assert.Empty(t, cfg.Secrets.APIKey)
}

func TestDecode_DefaultsFollowWorkDir(t *testing.T) {
	t.Parallel()

	cfg, err := config.Decode([]byte("[paths]\nwork_dir = \"/srv/books\"\n"))
	require.NoError(t, err)

	assert.Equal(t, config.ProviderWatsonx, cfg.Generation.Provider)
	assert.Equal(t, "allison_expressive", cfg.Synthesis.DefaultVoice)
	assert.Equal(t, 2*time.Minute, cfg.GenerationTimeout())
	assert.Equal(t, filepath.Join("/srv/books", "logs"), cfg.Paths.BaseLogsDir)
	assert.Equal(t, filepath.Join("/srv/books", "history.db"), cfg.History.DBPath)
	assert.False(t, cfg.History.Enabled)
	assert.Empty(t, cfg.NATS.URL)
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	_, err := config.Decode([]byte("[generation\nprovider = "))
	require.Error(t, err)

	_, err = config.Decode([]byte("[generation]\nprovider = \"bard\"\n"))
	require.ErrorContains(t, err, "bard")
}

func TestLoadSecrets_FromEnvFile(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvOpenAIAPIKey, "")
	require.NoError(t, os.Unsetenv(config.EnvAPIKey))
	require.NoError(t, os.Unsetenv(config.EnvOpenAIAPIKey))

	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("WATSONX_API_KEY=  from-file  \n"), 0o600))

	cfg := config.Default()
	require.True(t, cfg.DemoMode())

	require.NoError(t, cfg.LoadSecrets(envFile, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", cfg.Secrets.APIKey)
	assert.Empty(t, cfg.Secrets.OpenAIAPIKey)
	assert.False(t, cfg.DemoMode())
}

func TestLoadSecrets_EnvironmentWins(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "from-env")

	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("WATSONX_API_KEY=from-file\n"), 0o600))

	cfg := config.Default()
	require.NoError(t, cfg.LoadSecrets(envFile))
	assert.Equal(t, "from-env", cfg.Secrets.APIKey)
}

func TestLoadFile(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "project.toml")
	require.NoError(t, os.WriteFile(path, []byte("[synthesis]\ndefault_voice = \"kevin\"\n"), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kevin", cfg.Synthesis.DefaultVoice)
	assert.Equal(t, "secret", cfg.Secrets.APIKey)

	_, err = config.LoadFile(filepath.Join(dir, "absent.toml"))
	require.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(root, "work")
	cfg.Paths.BaseLogsDir = filepath.Join(root, "work", "logs")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.Paths.WorkDir)
	assert.DirExists(t, cfg.Paths.BaseLogsDir)
}
