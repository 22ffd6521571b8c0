package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voiceassist/internal/config"
	"voiceassist/internal/session"
	"log/slog"
)

var (
	// ErrNotConfigured возвращается, когда API-ключ не задан.
	ErrNotConfigured = errors.New("llm client is not configured")
)

// systemInstruction передаётся при каждом запросе: ответ будет озвучен,
// поэтому модель должна отвечать кратко и разговорно.
const systemInstruction = "You are a voice assistant. Your replies are spoken aloud, " +
	"so keep them conversational and under 2500 characters. Do not use markdown."

// GeminiClient клиент Google Gemini (generateContent REST API).
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	retryCount int
	backoff    time.Duration
	logger     *slog.Logger
}

func NewGeminiClient(cfg config.GeminiConfig, httpClient *http.Client, logger *slog.Logger) *GeminiClient {
	return &GeminiClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: httpClient,
		retryCount: 2,
		backoff:    500 * time.Millisecond,
		logger:     logger,
	}
}

// Configured сообщает, задан ли API-ключ.
func (c *GeminiClient) Configured() bool {
	return c.apiKey != ""
}

// Generate выполняет запрос к модели с историей диалога в качестве контекста.
// history передаётся старыми репликами первыми, userText добавляется последним
// сообщением пользователя.
func (c *GeminiClient) Generate(ctx context.Context, userText string, history []session.Turn) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	contents := make([]geminiContent, 0, len(history)+1)
	for _, turn := range history {
		role := "user"
		if turn.Role == session.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: turn.Text}},
		})
	}
	contents = append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: userText}},
	})

	requestBody := geminiRequest{
		Contents: contents,
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: systemInstruction}},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		answer, err := c.doRequest(ctx, requestBody)
		if err == nil {
			return answer, nil
		}
		if !shouldRetry(err) || attempt == c.retryCount {
			return "", err
		}
		lastErr = err
		if c.logger != nil {
			c.logger.Warn("gemini retry",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt+1)):
		}
	}
	return "", fmt.Errorf("gemini request failed: %w", lastErr)
}

func (c *GeminiClient) doRequest(ctx context.Context, body geminiRequest) (string, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", &transientError{status: resp.StatusCode, body: string(bodyBytes)}
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", errors.New("empty response from model")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", errors.New("empty response from model")
	}
	return answer, nil
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var te *transientError
	return errors.As(err, &te)
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type transientError struct {
	status int
	body   string
}

func (e *transientError) Error() string {
	return fmt.Sprintf("transient status %d: %s", e.status, e.body)
}
