package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voiceassist/internal/config"
	"voiceassist/internal/httpserver"
	"voiceassist/internal/llm"
	"voiceassist/internal/pipeline"
	"voiceassist/internal/session"
	"voiceassist/internal/stt"
	"voiceassist/internal/transport"
	"voiceassist/internal/tts"
	"log/slog"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if !tts.IsValidVoice(cfg.Murf.VoiceID) {
		log.Fatalf("unknown default voice: %s", cfg.Murf.VoiceID)
	}

	logger := newLogger(cfg.LogLevel)

	httpClient := transport.NewHTTPClient(cfg.RequestTimeout)
	sttClient := stt.NewAssemblyAIClient(cfg.AssemblyAI, httpClient, logger)
	llmClient := llm.NewGeminiClient(cfg.Gemini, httpClient, logger)
	ttsClient := tts.NewMurfClient(cfg.Murf, httpClient, logger)

	store := session.NewMemoryStore(cfg.MaxHistoryTurns)
	exchange := pipeline.New(pipeline.Config{
		STT:               sttClient,
		LLM:               llmClient,
		TTS:               ttsClient,
		Store:             store,
		MaxSynthesisChars: cfg.Murf.MaxTextLength,
		Logger:            logger,
	})

	handlers := httpserver.NewHandlers(httpserver.HandlerDeps{
		Exchange:       exchange,
		STT:            sttClient,
		LLM:            llmClient,
		TTS:            ttsClient,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TTSMaxChars:    cfg.Murf.MaxTextLength,
		Version:        version,
		Logger:         logger,
	})

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Logger:    logger,
		Handlers:  handlers,
		StaticDir: cfg.StaticDir,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("version", version),
			slog.Bool("assemblyai_configured", sttClient.Configured()),
			slog.Bool("gemini_configured", llmClient.Configured()),
			slog.Bool("murf_configured", ttsClient.Configured()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	slogLevel := slog.LevelInfo
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
