package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr        string
	LogLevel        string
	StaticDir       string
	RequestTimeout  time.Duration
	MaxUploadBytes  int64
	MaxHistoryTurns int
	AssemblyAI      AssemblyAIConfig
	Gemini          GeminiConfig
	Murf            MurfConfig
}

type AssemblyAIConfig struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type MurfConfig struct {
	APIKey        string
	BaseURL       string
	VoiceID       string
	Style         string
	MaxTextLength int
}

func Load() (Config, error) {
	var cfg Config

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.StaticDir = getEnv("STATIC_DIR", "static")

	reqTimeout, err := parseDuration(getEnv("HTTP_CLIENT_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse HTTP_CLIENT_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = reqTimeout

	maxUpload, err := parseInt64(getEnv("MAX_UPLOAD_BYTES", "52428800"))
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_BYTES: %w", err)
	}
	cfg.MaxUploadBytes = maxUpload

	maxTurns, err := parseInt(getEnv("MAX_HISTORY_TURNS", "50"))
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_HISTORY_TURNS: %w", err)
	}
	cfg.MaxHistoryTurns = maxTurns

	pollInterval, err := parseDuration(getEnv("STT_POLL_INTERVAL", "1s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse STT_POLL_INTERVAL: %w", err)
	}
	pollTimeout, err := parseDuration(getEnv("STT_POLL_TIMEOUT", "2m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse STT_POLL_TIMEOUT: %w", err)
	}

	cfg.AssemblyAI = AssemblyAIConfig{
		APIKey:       getEnv("ASSEMBLYAI_API_KEY", ""),
		BaseURL:      getEnv("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com/v2"),
		PollInterval: pollInterval,
		PollTimeout:  pollTimeout,
	}

	cfg.Gemini = GeminiConfig{
		APIKey:  getEnv("GEMINI_API_KEY", ""),
		BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		Model:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
	}

	maxText, err := parseInt(getEnv("TTS_MAX_TEXT_LENGTH", "3000"))
	if err != nil {
		return Config{}, fmt.Errorf("parse TTS_MAX_TEXT_LENGTH: %w", err)
	}

	cfg.Murf = MurfConfig{
		APIKey:        getEnv("MURF_API_KEY", ""),
		BaseURL:       getEnv("MURF_BASE_URL", "https://api.murf.ai/v1"),
		VoiceID:       getEnv("MURF_VOICE_ID", "en-US-natalie"),
		Style:         getEnv("MURF_VOICE_STYLE", "Conversational"),
		MaxTextLength: maxText,
	}

	return cfg, nil
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("duration is empty")
	}
	return time.ParseDuration(value)
}

func parseInt(value string) (int, error) {
	if value == "" {
		return 0, fmt.Errorf("number is empty")
	}
	return strconv.Atoi(value)
}

func parseInt64(value string) (int64, error) {
	if value == "" {
		return 0, fmt.Errorf("number is empty")
	}
	return strconv.ParseInt(value, 10, 64)
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}
