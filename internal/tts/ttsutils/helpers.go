// Package ttsutils provides file and formatting helpers shared by the
// audiobook surfaces.
package ttsutils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Environment variable names used for path resolution.
const (
	envWorkDir = "ECHOVERSE_WORK_DIR"
)

// Common application directory and path constants.
const (
	appName                = "echoverse"
	defaultDirPermissions  = 0o750
	invalidCharReplacement = "_"
	audioExtension         = ".mp3"
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Time and size formatting constants.
const (
	formatSeconds = "%.1fs"
	formatMinutes = "%dm %.1fs"
	formatHours   = "%dh %dm"
	formatGB      = "%.1f GB"
	formatMB      = "%.1f MB"
	formatKB      = "%.1f KB"
	formatBytes   = "%d B"
)

// File extension constants.
const (
	extPDF = ".pdf"
	extTXT = ".txt"
	extMD  = ".md"
)

const errFmtFailedToCreateDir = "failed to create directory %s: %w"

// GetWorkDir returns the directory for generated audio, honouring the
// ECHOVERSE_WORK_DIR override.
func GetWorkDir() string {
	if workDir := os.Getenv(envWorkDir); workDir != "" {
		return workDir
	}

	return filepath.Join(os.TempDir(), appName)
}

// EnsureDir creates path and its parents if needed.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// AudioPath returns the MP3 path for an audiobook id inside dir.
func AudioPath(dir, id string) string {
	return filepath.Join(dir, SanitizeFilename(id)+audioExtension)
}

// FormatDuration formats a duration as "1h 15m", "5m 30.5s" or "45.2s".
func FormatDuration(duration time.Duration) string {
	if duration < time.Minute {
		return fmt.Sprintf(formatSeconds, duration.Seconds())
	}

	if duration < time.Hour {
		minutes := int(duration / time.Minute)
		remaining := duration - time.Duration(minutes)*time.Minute

		return fmt.Sprintf(formatMinutes, minutes, remaining.Seconds())
	}

	hours := int(duration / time.Hour)
	remainingMinutes := int((duration - time.Duration(hours)*time.Hour) / time.Minute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats a file size as "1.2 GB", "500.5 MB" and so on.
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// IsSupportedDocument reports whether a filename has an extension the
// document extractor accepts.
func IsSupportedDocument(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extPDF, extTXT, extMD:
		return true
	default:
		return false
	}
}

// SanitizeFilename replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
		" ", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}
