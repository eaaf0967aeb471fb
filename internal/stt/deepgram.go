package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	model "github.com/babelcloud/voicepilot/pkg/agent"
)

const defaultDeepgramURL = "https://api.deepgram.com/v1/listen"

// Deepgram uses the prerecorded transcription endpoint.
type Deepgram struct {
	endpoint string
	apiKey   string
	model    string
	language string
	client   *http.Client
}

var _ Transcriber = (*Deepgram)(nil)

func NewDeepgram(endpoint, apiKey, model, language string, client *http.Client) *Deepgram {
	if endpoint == "" {
		endpoint = defaultDeepgramURL
	}
	if model == "" {
		model = "nova-2"
	}
	if language == "" {
		language = "en"
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Deepgram{endpoint: endpoint, apiKey: apiKey, model: model, language: language, client: client}
}

func (d *Deepgram) Name() string { return "deepgram" }

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) Transcribe(ctx context.Context, audio []byte, mimeType string) (*model.Transcript, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	q := url.Values{}
	q.Set("model", d.model)
	q.Set("language", d.language)
	q.Set("smart_format", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"?"+q.Encode(), bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("failed to create deepgram request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", DetectMIME(audio, mimeType))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read deepgram response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out deepgramResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode deepgram response: %w", err)
	}
	var text string
	var confidence float64
	if len(out.Results.Channels) > 0 && len(out.Results.Channels[0].Alternatives) > 0 {
		alt := out.Results.Channels[0].Alternatives[0]
		text, confidence = alt.Transcript, alt.Confidence
	}
	return model.NewTranscript(text, confidence), nil
}
