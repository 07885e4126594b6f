package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/echoverse/internal/app"
	"github.com/book-expert/echoverse/internal/config"
	"github.com/book-expert/echoverse/internal/document"
	"github.com/book-expert/echoverse/internal/pipeline"
	"github.com/book-expert/echoverse/internal/tts"
	"github.com/book-expert/echoverse/internal/tts/ttsutils"
)

// Flag descriptions and messages.
const (
	flagTextDesc       = "Text to convert into an audiobook"
	flagFileDesc       = "PDF or TXT file to convert into an audiobook"
	flagToneDesc       = "Narration tone (Neutral, Suspenseful, Inspiring, Professional, Casual, Dramatic)"
	flagVoiceDesc      = "Voice key (see --list-voices)"
	flagOutputDesc     = "Output file path (.mp3)"
	flagListVoicesDesc = "List available voices and exit"
	flagConfigDesc     = "Path to project.toml (defaults to the configurator search)"
	flagVerboseDesc    = "Enable verbose logging"
	flagHealthDesc     = "Check text to speech service health and exit"
)

// Flag names.
const (
	flagText       = "text"
	flagFile       = "file"
	flagTone       = "tone"
	flagVoice      = "voice"
	flagOutput     = "output"
	flagListVoices = "list-voices"
	flagConfig     = "config"
	flagVerbose    = "verbose"
	flagHealth     = "health"
)

// Error messages.
const (
	errFailedToLoadConfig  = "failed to load configuration: %w"
	errFailedToInitLogger  = "failed to initialize logger: %w"
	errFailedToCreateDirs  = "failed to create directories: %w"
	errFailedToBuild       = "failed to build services: %w"
	errFailedToReadFile    = "failed to read %s: %w"
	errHealthCheckFailed   = "Health check failed: %v"
	errServiceNotHealthy   = "Text to speech service is not healthy: %v\n"
	errEitherTextOrFile    = "either --text or --file must be provided"
	errCannotSpecifyBoth   = "cannot specify both --text and --file"
	errUnsupportedDocument = "unsupported document %s: only PDF and TXT files are accepted"
	errFailedToGenerate    = "Failed to generate audiobook: %v"
)

// Log and output messages.
const (
	msgServiceHealthy   = "Text to speech service is healthy"
	logClientReady      = "EchoVerse CLI initialized (work dir: %s)"
	logGeneratingTo     = "Generating audiobook to: %s"
	logGenerated        = "Generated audiobook: %s"
	outGenerated        = "Generated: %s (%s, %s)\n"
	outFallback         = "Note: the expressive voice failed, the standard fallback voice was used.\n"
	outNarrationHeading = "\nNarration:\n%s\n"
	outVoiceHeader      = "KEY\tNAME\tEMOTION\tACCENT"
	outVoiceRow         = "%s\t%s\t%t\t%s\n"
)

// File names and paths.
const (
	logFileNameDefault = "echoverse-cli.log"
	logFileNameVerbose = "echoverse-cli-verbose.log"
	bootstrapLogFile   = "echoverse-cli-bootstrap.log"
	defaultOutputFile  = "audiobook.mp3"
	healthTimeout      = 10 * time.Second
	runTimeout         = 10 * time.Minute
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text       string
	file       string
	tone       string
	voice      string
	output     string
	config     string
	listVoices bool
	verbose    bool
	health     bool
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run(args []string, out io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	if flags.listVoices {
		return printVoices(out)
	}

	if !flags.health {
		validateErr := validateFlags(flags)
		if validateErr != nil {
			return validateErr
		}
	}

	cfg, appLogger, err := setup(flags.config, flags.verbose)
	if err != nil {
		return err
	}
	defer appLogger.Close()

	components, err := app.Build(cfg, appLogger)
	if err != nil {
		return fmt.Errorf(errFailedToBuild, err)
	}
	defer components.Close()

	appLogger.Info(logClientReady, cfg.Paths.WorkDir)

	if flags.health {
		return handleHealthCheck(components, appLogger, out)
	}

	return generate(components, appLogger, flags, out)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("echoverse-cli", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.file, flagFile, "", flagFileDesc)
	flagSet.StringVar(&flags.tone, flagTone, pipeline.DefaultTone, flagToneDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.StringVar(&flags.config, flagConfig, "", flagConfigDesc)
	flagSet.BoolVar(&flags.listVoices, flagListVoices, false, flagListVoicesDesc)
	flagSet.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return flags, err
	}

	return flags, nil
}

// validateFlags checks for required and conflicting input flags.
func validateFlags(flags appFlags) error {
	if flags.text == "" && flags.file == "" {
		return errors.New(errEitherTextOrFile)
	}

	if flags.text != "" && flags.file != "" {
		return errors.New(errCannotSpecifyBoth)
	}

	if flags.file != "" && !ttsutils.IsSupportedDocument(flags.file) {
		return fmt.Errorf(errUnsupportedDocument, flags.file)
	}

	return nil
}

// setup loads config, initializes the logger, and ensures directories exist.
func setup(configPath string, verbose bool) (*config.Config, *logger.Logger, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToLoadConfig, err)
	}

	err = cfg.EnsureDirectories()
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToCreateDirs, err)
	}

	logFileName := logFileNameDefault
	if verbose {
		logFileName = logFileNameVerbose
	}

	appLogger, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	return cfg, appLogger, nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}

	bootstrapLog, err := logger.New(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, fmt.Errorf(errFailedToInitLogger, err)
	}
	defer bootstrapLog.Close()

	return config.Load(bootstrapLog)
}

// printVoices writes the voice table.
func printVoices(out io.Writer) error {
	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, outVoiceHeader)

	for _, voice := range tts.ListVoices() {
		fmt.Fprintf(writer, outVoiceRow, voice.Key, voice.DisplayName, voice.SupportsEmotion, voice.Accent)
	}

	return writer.Flush()
}

// handleHealthCheck performs a service health check and prints the result.
func handleHealthCheck(components *app.Components, appLogger *logger.Logger, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	err := checkHealth(ctx, components)
	if err != nil {
		appLogger.Error(errHealthCheckFailed, err)
		fmt.Fprintf(out, errServiceNotHealthy, err)

		return err
	}

	fmt.Fprintln(out, msgServiceHealthy)

	return nil
}

func checkHealth(ctx context.Context, components *app.Components) error {
	bearer, err := components.Authenticator.Exchange(ctx, components.Config.Secrets.APIKey)
	if err != nil {
		return err
	}

	return components.SpeechClient.HealthCheck(ctx, bearer)
}

// readInput returns the text to narrate from --text or --file.
func readInput(flags appFlags) (string, error) {
	if flags.text != "" {
		return flags.text, nil
	}

	text, err := document.ExtractFile(flags.file)
	if err != nil {
		return "", fmt.Errorf(errFailedToReadFile, flags.file, err)
	}

	return text, nil
}

// generate runs the pipeline and reports the artifact.
func generate(components *app.Components, appLogger *logger.Logger, flags appFlags, out io.Writer) error {
	text, err := readInput(flags)
	if err != nil {
		return err
	}

	outputPath := flags.output
	if outputPath == "" {
		outputPath = filepath.Join(components.Config.Paths.WorkDir, defaultOutputFile)
	}

	appLogger.Info(logGeneratingTo, outputPath)

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	result, err := components.Service.Run(ctx, pipeline.Request{
		ID:         "",
		Text:       text,
		Tone:       flags.tone,
		Voice:      flags.voice,
		OutputPath: outputPath,
	})
	if err != nil {
		appLogger.Error(errFailedToGenerate, err)

		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			return errors.New(stageErr.Message())
		}

		return err
	}

	appLogger.Info(logGenerated, result.Artifact.Path)
	report(out, result)

	return nil
}

func report(out io.Writer, result *pipeline.Result) {
	fmt.Fprintf(out, outGenerated,
		result.Artifact.Path,
		ttsutils.FormatFileSize(result.Artifact.Size),
		ttsutils.FormatDuration(result.Artifact.Duration),
	)

	if result.Artifact.UsedFallback {
		fmt.Fprint(out, outFallback)
	}

	fmt.Fprintf(out, outNarrationHeading, result.Narration)
}
