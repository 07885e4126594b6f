// Package core defines the shared types, errors and interfaces of the audiobook service.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	UploadFile(ctx context.Context, key, path string) error
}

// Authenticator turns a long-lived API key into a value ready for an
// Authorization header ("Bearer <token>").
type Authenticator interface {
	Exchange(ctx context.Context, apiKey string) (string, error)
}

// NarrationGenerator rewrites source text as an ordered list of narration segments.
// The bearer value is placed in the Authorization header verbatim.
type NarrationGenerator interface {
	Generate(ctx context.Context, text, tone, bearer string) ([]NarrationSegment, error)
}

// SpeechSynthesizer renders narration segments to an audio file at outputPath.
// It receives the API key, not a bearer token, and authenticates on its own.
type SpeechSynthesizer interface {
	Synthesize(
		ctx context.Context,
		segments []NarrationSegment,
		voiceKey, apiKey, outputPath string,
	) (*AudioArtifact, error)
}

// HistoryRecorder persists a summary of every generated audiobook.
type HistoryRecorder interface {
	Record(ctx context.Context, entry HistoryEntry) error
}
