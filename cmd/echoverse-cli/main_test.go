package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/echoverse/internal/config"
	"github.com/book-expert/echoverse/internal/core"
	"github.com/book-expert/echoverse/internal/pipeline"
)

// TestParseFlags verifies that command-line flags are parsed correctly.
func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want appFlags
	}{
		{
			name: "text flag parsing",
			args: []string{"--text", "Hello, world!"},
			want: appFlags{text: "Hello, world!", tone: pipeline.DefaultTone},
		},
		{
			name: "file with tone and voice",
			args: []string{"--file", "book.pdf", "--tone", "Dramatic", "--voice", "lisa_expressive", "--output", "out.mp3"},
			want: appFlags{file: "book.pdf", tone: "Dramatic", voice: "lisa_expressive", output: "out.mp3"},
		},
		{
			name: "switches",
			args: []string{"--list-voices", "--verbose", "--health", "--config", "project.toml"},
			want: appFlags{tone: pipeline.DefaultTone, config: "project.toml", listVoices: true, verbose: true, health: true},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			flags, err := parseFlags(testCase.args)
			require.NoError(t, err)
			assert.Equal(t, testCase.want, flags)
		})
	}
}

func TestParseFlags_Unknown(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"--chunks", "x.json"})
	require.Error(t, err)
}

// TestArgumentValidation verifies required and conflicting arguments.
func TestArgumentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   appFlags
		wantErr string
	}{
		{name: "text only", flags: appFlags{text: "hi"}, wantErr: ""},
		{name: "file only", flags: appFlags{file: "book.PDF"}, wantErr: ""},
		{name: "neither", flags: appFlags{}, wantErr: errEitherTextOrFile},
		{name: "both", flags: appFlags{text: "hi", file: "book.txt"}, wantErr: errCannotSpecifyBoth},
		{name: "unsupported file", flags: appFlags{file: "cover.png"}, wantErr: "unsupported document cover.png"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := validateFlags(testCase.flags)
			if testCase.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorContains(t, err, testCase.wantErr)
		})
	}
}

func TestRun_ListVoices(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	require.NoError(t, run([]string{"--list-voices"}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 16)
	assert.True(t, strings.HasPrefix(lines[0], "KEY"))
	assert.Contains(t, out.String(), "Allison (Female, Expressive)")
}

func TestRun_MissingInput(t *testing.T) {
	t.Parallel()

	err := run([]string{"--tone", "Casual"}, &bytes.Buffer{})
	require.EqualError(t, err, errEitherTextOrFile)
}

func TestReadInput(t *testing.T) {
	t.Parallel()

	text, err := readInput(appFlags{text: "typed"})
	require.NoError(t, err)
	assert.Equal(t, "typed", text)

	path := filepath.Join(t.TempDir(), "chapter.txt")
	require.NoError(t, os.WriteFile(path, []byte("From a file."), 0o600))

	text, err = readInput(appFlags{file: path})
	require.NoError(t, err)
	assert.Equal(t, "From a file.", text)

	_, err = readInput(appFlags{file: filepath.Join(t.TempDir(), "missing.txt")})
	require.Error(t, err)
}

func TestReport(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	report(&out, &pipeline.Result{
		ID:        "id",
		Tone:      "Neutral",
		Segments:  nil,
		Narration: "Once upon a time.",
		Artifact: &core.AudioArtifact{
			Path:         "/tmp/book.mp3",
			Size:         2048,
			VoiceKey:     "allison",
			VoiceID:      "en-US_AllisonV3Voice",
			UsedFallback: true,
			Duration:     90 * time.Second,
		},
		AudioKey: "",
	})

	assert.Contains(t, out.String(), "Generated: /tmp/book.mp3 (2.0 KB, 1m 30.0s)")
	assert.Contains(t, out.String(), "fallback voice was used")
	assert.Contains(t, out.String(), "Once upon a time.")
}

// TestRun_GenerateWithConfigFile drives the CLI against fake cloud endpoints.
func TestRun_GenerateWithConfigFile(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "cli-key")

	mux := http.NewServeMux()
	mux.HandleFunc("/identity/token", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	})
	mux.HandleFunc("/generation", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{{
				"generated_text": `[{"speech_text": "Hello from the CLI.", "emotion": "HAPPY"}`,
				"stop_reason":    "stop_sequence",
			}},
		})
	})
	mux.HandleFunc("/v1/synthesize", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("fake-mp3-data"))
	})
	mux.HandleFunc("/v1/voices", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"voices":[{"name":"en-US_AllisonV3Voice"}]}`))
	})

	cloud := httptest.NewServer(mux)
	t.Cleanup(cloud.Close)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "project.toml")
	configData := fmt.Sprintf(`
[iam]
token_url = "%[1]s/identity/token"

[generation]
url = "%[1]s/generation"
project_id = "p"

[synthesis]
service_url = "%[1]s"

[paths]
work_dir = %[2]q
`, cloud.URL, filepath.Join(dir, "work"))
	require.NoError(t, os.WriteFile(configPath, []byte(configData), 0o600))

	var out bytes.Buffer

	output := filepath.Join(dir, "book.mp3")
	require.NoError(t, run([]string{"--config", configPath, "--text", "Hello", "--output", output}, &out))

	audio, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "fake-mp3-data", string(audio))
	assert.Contains(t, out.String(), "Hello from the CLI.")

	out.Reset()
	require.NoError(t, run([]string{"--config", configPath, "--health"}, &out))
	assert.Contains(t, out.String(), msgServiceHealthy)
}
