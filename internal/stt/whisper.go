package stt

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"

	model "github.com/babelcloud/voicepilot/pkg/agent"
)

// Whisper transcribes through the OpenAI audio API.
type Whisper struct {
	client   *openai.Client
	language string
}

var _ Transcriber = (*Whisper)(nil)

func NewWhisper(apiKey, language string) *Whisper {
	return NewWhisperWithConfig(openai.DefaultConfig(apiKey), language)
}

func NewWhisperWithConfig(cfg openai.ClientConfig, language string) *Whisper {
	return &Whisper{client: openai.NewClientWithConfig(cfg), language: language}
}

func (w *Whisper) Name() string { return "whisper" }

func (w *Whisper) Transcribe(ctx context.Context, audio []byte, mimeType string) (*model.Transcript, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "audio" + extensionFor(DetectMIME(audio, mimeType)),
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: w.language,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}
	logprobs := make([]float64, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		logprobs = append(logprobs, s.AvgLogprob)
	}
	return model.NewTranscript(resp.Text, segmentConfidence(logprobs)), nil
}

// segmentConfidence maps the mean segment log-probability into [0, 1].
// Whisper reports no per-transcript confidence, so no segments means 1.
func segmentConfidence(avgLogprobs []float64) float64 {
	if len(avgLogprobs) == 0 {
		return 1
	}
	var sum float64
	for _, lp := range avgLogprobs {
		sum += lp
	}
	c := math.Exp(sum / float64(len(avgLogprobs)))
	return math.Max(0, math.Min(1, c))
}
