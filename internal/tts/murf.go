package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"voiceassist/internal/config"
	"voiceassist/internal/retry"
	"log/slog"
)

var (
	// ErrNotConfigured возвращается, когда API-ключ не задан.
	ErrNotConfigured = errors.New("tts client is not configured")
	// ErrEmptyText возвращается для пустого текста.
	ErrEmptyText = errors.New("text is empty")
)

// MurfClient клиент синтеза речи Murf. Возвращает URL сгенерированного аудио.
type MurfClient struct {
	apiKey      string
	baseURL     string
	voiceID     string
	style       string
	httpClient  *http.Client
	retryPolicy retry.Policy
	logger      *slog.Logger
}

func NewMurfClient(cfg config.MurfConfig, httpClient *http.Client, logger *slog.Logger) *MurfClient {
	return &MurfClient{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		voiceID:     cfg.VoiceID,
		style:       cfg.Style,
		httpClient:  httpClient,
		retryPolicy: retry.DefaultPolicy(),
		logger:      logger,
	}
}

// Configured сообщает, задан ли API-ключ.
func (c *MurfClient) Configured() bool {
	return c.apiKey != ""
}

// Synthesize генерирует аудио для текста голосом по умолчанию.
// Лимит длины текста контролирует вызывающая сторона.
func (c *MurfClient) Synthesize(ctx context.Context, text string) (string, error) {
	return c.SynthesizeVoice(ctx, text, c.voiceID, c.style)
}

// SynthesizeVoice генерирует аудио указанным голосом и стилем.
func (c *MurfClient) SynthesizeVoice(ctx context.Context, text, voiceID, style string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if text == "" {
		return "", ErrEmptyText
	}
	if voiceID == "" {
		voiceID = c.voiceID
	}
	if style == "" {
		style = c.style
	}

	payload, err := json.Marshal(generateRequest{
		Text:              text,
		VoiceID:           voiceID,
		Style:             style,
		MultiNativeLocale: "en-US",
		Language:          "en-US",
	})
	if err != nil {
		return "", fmt.Errorf("marshal tts request: %w", err)
	}

	resp, body, err := retry.DoHTTP(ctx, c.retryPolicy, c.logger, func(ctx context.Context) (*http.Response, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/speech/generate", bytes.NewReader(payload))
		if err != nil {
			return nil, nil, fmt.Errorf("build tts request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp, nil, fmt.Errorf("read response: %w", err)
		}
		return resp, respBody, nil
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode tts response: %w", err)
	}
	if parsed.AudioFile == "" {
		return "", errors.New("no audio url in response")
	}
	return parsed.AudioFile, nil
}

type generateRequest struct {
	Text              string `json:"text"`
	VoiceID           string `json:"voice_id"`
	Style             string `json:"style,omitempty"`
	MultiNativeLocale string `json:"multiNativeLocale,omitempty"`
	Language          string `json:"language,omitempty"`
}

type generateResponse struct {
	AudioFile string `json:"audioFile"`
}
