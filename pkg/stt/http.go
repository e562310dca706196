package stt

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voxagent/pkg/audioconv"
)

// HTTPConfig configures an OpenAI-compatible transcription endpoint.
type HTTPConfig struct {
	APIBase  string // e.g. "https://api.openai.com/v1" or "https://api.groq.com/openai/v1"
	APIKey   string
	Model    string // e.g. "whisper-1" or "whisper-large-v3"
	Language string // optional ISO-639-1 code
	Client   *http.Client
}

// HTTPRecognizer uploads WAV-encoded audio to /audio/transcriptions.
type HTTPRecognizer struct {
	client   openai.Client
	model    string
	language string
}

func NewHTTPRecognizer(cfg HTTPConfig) *HTTPRecognizer {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 120 * time.Second}
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.APIBase),
		option.WithHTTPClient(cfg.Client),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &HTTPRecognizer{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		language: cfg.Language,
	}
}

func (h *HTTPRecognizer) Recognize(ctx context.Context, pcm audioconv.Buffer) (string, error) {
	if pcm.Frames() == 0 {
		return "", ErrNoSpeech
	}
	wavData, err := audioconv.EncodeWAV(pcm)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	params := openai.AudioTranscriptionNewParams{
		File:           openai.File(bytes.NewReader(wavData), "audio.wav", "audio/wav"),
		Model:          openai.AudioModel(h.model),
		ResponseFormat: openai.AudioResponseFormatJSON,
	}
	if h.language != "" {
		params.Language = openai.String(h.language)
	}

	resp, err := h.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return resp.Text, nil
}
