// Package audio inspects synthesized audio files.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// Format represents supported audio formats.
type Format string

// Audio formats recognized by the probe.
const (
	FormatMP3     Format = "mp3"
	FormatWAV     Format = "wav"
	FormatOGG     Format = "ogg"
	FormatFLAC    Format = "flac"
	FormatUnknown Format = ""
)

// go-mp3 always decodes to 16-bit stereo.
const (
	decodedChannels       = 2
	decodedBytesPerSample = 2
	bytesPerFrame         = decodedChannels * decodedBytesPerSample
)

// Error messages.
const (
	errFmtDecodeMP3   = "%w: %w"
	errFmtUnsupported = "%w: %s"
)

// Errors returned by the probe.
var (
	ErrEmptyAudio        = errors.New("audio data is empty")
	ErrInvalidAudio      = errors.New("audio data cannot be decoded")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Info describes a decoded audio stream.
type Info struct {
	Format     Format        `json:"format"`
	Duration   time.Duration `json:"duration"`
	FileSize   int64         `json:"fileSize"`
	SampleRate int           `json:"sampleRate"`
	Channels   int           `json:"channels"`
}

// DetectFormat sniffs the container from the leading bytes.
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOGG
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC
	default:
		return FormatUnknown
	}
}

// Probe decodes data far enough to report its length. Only MP3 is decoded.
func Probe(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrEmptyAudio
	}

	format := DetectFormat(data)
	if format != FormatMP3 {
		return Info{}, fmt.Errorf(errFmtUnsupported, ErrUnsupportedFormat, formatName(format))
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf(errFmtDecodeMP3, ErrInvalidAudio, err)
	}

	info := Info{
		Format:     FormatMP3,
		Duration:   0,
		FileSize:   int64(len(data)),
		SampleRate: decoder.SampleRate(),
		Channels:   decodedChannels,
	}

	if decoder.SampleRate() > 0 && decoder.Length() > 0 {
		frames := decoder.Length() / bytesPerFrame
		info.Duration = time.Duration(frames) * time.Second / time.Duration(decoder.SampleRate())
	}

	return info, nil
}

func formatName(format Format) string {
	if format == FormatUnknown {
		return "unknown"
	}

	return string(format)
}
