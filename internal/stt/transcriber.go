// Package stt transcribes recorded voice commands.
package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/babelcloud/voicepilot/config"
	model "github.com/babelcloud/voicepilot/pkg/agent"
)

var (
	// ErrUnavailable is returned when no transcription credential is configured.
	ErrUnavailable = errors.New("speech-to-text unavailable")
	// ErrEmptyAudio is returned for a zero-length upload.
	ErrEmptyAudio = errors.New("no audio provided")
)

// Transcriber turns a complete audio recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (*model.Transcript, error)
	Name() string
}

// New builds the transcriber named in cfg. openAIKey backs the whisper provider.
func New(cfg config.STTConfig, openAIKey string) (Transcriber, error) {
	switch strings.ToLower(cfg.Provider) {
	case "deepgram", "":
		if cfg.DeepgramAPIKey == "" {
			return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY not set", ErrUnavailable)
		}
		return NewDeepgram(cfg.DeepgramURL, cfg.DeepgramAPIKey, cfg.Model, cfg.Language, nil), nil
	case "whisper", "openai":
		if openAIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrUnavailable)
		}
		return NewWhisper(openAIKey, cfg.Language), nil
	default:
		return nil, fmt.Errorf("unknown stt provider: %s (supported: deepgram, whisper)", cfg.Provider)
	}
}

// DetectMIME returns declared unless it's empty or generic, in which case
// the type is sniffed from the audio bytes.
func DetectMIME(audio []byte, declared string) string {
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(audio).String()
}

// extensionFor picks a filename extension for providers that infer the
// format from the upload name.
func extensionFor(mimeType string) string {
	if m := mimetype.Lookup(mimeType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	switch {
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return ".m4a"
	default:
		return ".mp3"
	}
}
