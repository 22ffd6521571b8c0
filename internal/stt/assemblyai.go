package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"voiceassist/internal/config"
	"voiceassist/internal/retry"
	"log/slog"
)

var (
	// ErrNotConfigured возвращается, когда API-ключ не задан.
	ErrNotConfigured = errors.New("stt client is not configured")
	// ErrEmptyAudio возвращается для пустого аудио.
	ErrEmptyAudio = errors.New("audio is empty")
	// ErrEmptyTranscript возвращается, когда провайдер не распознал речь.
	ErrEmptyTranscript = errors.New("empty transcript")
)

// AssemblyAIClient клиент AssemblyAI: загрузка аудио, постановка задачи
// транскрипции и опрос результата.
type AssemblyAIClient struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
	retryPolicy  retry.Policy
	logger       *slog.Logger
}

func NewAssemblyAIClient(cfg config.AssemblyAIConfig, httpClient *http.Client, logger *slog.Logger) *AssemblyAIClient {
	return &AssemblyAIClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		httpClient:   httpClient,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		retryPolicy:  retry.DefaultPolicy(),
		logger:       logger,
	}
}

// Configured сообщает, задан ли API-ключ.
func (c *AssemblyAIClient) Configured() bool {
	return c.apiKey != ""
}

// Transcribe загружает аудио и возвращает распознанный текст.
// Блокируется до завершения транскрипции или истечения pollTimeout.
func (c *AssemblyAIClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}

	uploadURL, err := c.upload(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}

	transcriptID, err := c.submit(ctx, uploadURL)
	if err != nil {
		return "", fmt.Errorf("submit transcript: %w", err)
	}

	text, err := c.poll(ctx, transcriptID)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *AssemblyAIClient) upload(ctx context.Context, audio []byte) (string, error) {
	resp, body, err := retry.DoHTTP(ctx, c.retryPolicy, c.logger, func(ctx context.Context) (*http.Response, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(audio))
		if err != nil {
			return nil, nil, fmt.Errorf("build upload request: %w", err)
		}
		req.Header.Set("Authorization", c.apiKey)
		req.Header.Set("Content-Type", "application/octet-stream")
		return c.do(req)
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected upload status %d: %s", resp.StatusCode, string(body))
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if parsed.UploadURL == "" {
		return "", errors.New("no upload url in response")
	}
	return parsed.UploadURL, nil
}

func (c *AssemblyAIClient) submit(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(transcriptRequest{AudioURL: audioURL})
	if err != nil {
		return "", fmt.Errorf("marshal transcript request: %w", err)
	}

	resp, body, err := retry.DoHTTP(ctx, c.retryPolicy, c.logger, func(ctx context.Context) (*http.Response, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcript", bytes.NewReader(payload))
		if err != nil {
			return nil, nil, fmt.Errorf("build transcript request: %w", err)
		}
		req.Header.Set("Authorization", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return c.do(req)
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected transcript status %d: %s", resp.StatusCode, string(body))
	}

	var parsed transcriptResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode transcript response: %w", err)
	}
	if parsed.ID == "" {
		return "", errors.New("no transcript id in response")
	}
	return parsed.ID, nil
}

// poll опрашивает статус транскрипции до completed/error.
func (c *AssemblyAIClient) poll(ctx context.Context, transcriptID string) (string, error) {
	deadline := time.Now().Add(c.pollTimeout)

	for {
		parsed, err := c.fetchTranscript(ctx, transcriptID)
		if err != nil {
			return "", err
		}

		switch parsed.Status {
		case "completed":
			if parsed.Text == "" {
				return "", ErrEmptyTranscript
			}
			return parsed.Text, nil
		case "error":
			return "", fmt.Errorf("transcription error: %s", parsed.Error)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("transcription not finished after %s", c.pollTimeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *AssemblyAIClient) fetchTranscript(ctx context.Context, transcriptID string) (transcriptResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transcript/"+transcriptID, nil)
	if err != nil {
		return transcriptResponse{}, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transcriptResponse{}, fmt.Errorf("execute status request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transcriptResponse{}, fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return transcriptResponse{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed transcriptResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return transcriptResponse{}, fmt.Errorf("decode status response: %w", err)
	}
	return parsed, nil
}

func (c *AssemblyAIClient) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, body, nil
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}
