package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"voiceassist/internal/pipeline"
	"voiceassist/internal/tts"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Exchanger граница ядра: один голосовой обмен плюс управление сессией.
type Exchanger interface {
	Run(ctx context.Context, sessionID string, audio []byte) pipeline.ExchangeResult
	ClearSession(ctx context.Context, sessionID string) error
	TurnCount(ctx context.Context, sessionID string) (int, error)
}

// Synthesizer провайдер синтеза для standalone-эндпоинтов /tts и /tts/echo.
type Synthesizer interface {
	SynthesizeVoice(ctx context.Context, text, voiceID, style string) (string, error)
	Configured() bool
}

type HandlerDeps struct {
	Exchange       Exchanger
	STT            pipeline.Transcriber
	LLM            pipeline.Generator
	TTS            Synthesizer
	MaxUploadBytes int64
	TTSMaxChars    int
	Version        string
	Logger         *slog.Logger
}

// Handlers обработчики голосового API.
type Handlers struct {
	exchange       Exchanger
	stt            pipeline.Transcriber
	llm            pipeline.Generator
	tts            Synthesizer
	maxUploadBytes int64
	ttsMaxChars    int
	version        string
	logger         *slog.Logger
}

func NewHandlers(deps HandlerDeps) *Handlers {
	return &Handlers{
		exchange:       deps.Exchange,
		stt:            deps.STT,
		llm:            deps.LLM,
		tts:            deps.TTS,
		maxUploadBytes: deps.MaxUploadBytes,
		ttsMaxChars:    deps.TTSMaxChars,
		version:        deps.Version,
		logger:         deps.Logger,
	}
}

type healthResponse struct {
	Status            string          `json:"status"`
	APIKeysConfigured map[string]bool `json:"api_keys_configured"`
	Timestamp         string          `json:"timestamp"`
	Version           string          `json:"version"`
}

type transcriptionResponse struct {
	Transcription string `json:"transcription"`
	Success       bool   `json:"success"`
}

type ttsRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
	Style   string `json:"style,omitempty"`
}

type ttsResponse struct {
	AudioURL string `json:"audio_url"`
	Success  bool   `json:"success"`
}

type echoResponse struct {
	AudioURL      string `json:"audio_url"`
	Transcription string `json:"transcription"`
	Error         string `json:"error,omitempty"`
	Success       bool   `json:"success"`
}

// exchangeResponse ответ полного голосового обмена.
// Имена полей — публичный контракт клиента, менять нельзя.
type exchangeResponse struct {
	SessionID     string `json:"session_id,omitempty"`
	AudioURL      string `json:"audio_url"`
	Transcription string `json:"transcription"`
	LLMResponse   string `json:"llm_response"`
	HistoryLength int    `json:"history_length"`
	Error         string `json:"error,omitempty"`
	FallbackText  string `json:"fallback_text,omitempty"`
	Success       bool   `json:"success"`
}

type sessionInfoResponse struct {
	SessionID     string `json:"session_id"`
	HistoryLength int    `json:"history_length"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Health статус сервиса и сконфигурированность вендорных ключей.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, healthResponse{
		Status: "healthy",
		APIKeysConfigured: map[string]bool{
			"assemblyai": h.stt.Configured(),
			"gemini":     h.llm.Configured(),
			"murf":       h.tts.Configured(),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	})
}

// TranscribeFile распознаёт загруженный аудиофайл без сохранения истории.
func (h *Handlers) TranscribeFile(w http.ResponseWriter, r *http.Request) {
	audio, ok := h.readAudio(w, r)
	if !ok {
		return
	}
	if !h.stt.Configured() {
		WriteJSONError(w, http.StatusServiceUnavailable, "config_failure", "speech-to-text service not configured")
		return
	}

	text, err := h.stt.Transcribe(r.Context(), audio)
	if err != nil {
		h.logger.Error("transcription failed", slog.String("error", err.Error()))
		WriteJSONError(w, http.StatusBadGateway, "stt_failure", "could not transcribe audio")
		return
	}

	WriteJSON(w, http.StatusOK, transcriptionResponse{Transcription: text, Success: true})
}

// GenerateTTS синтезирует речь из текста. Текст длиннее лимита обрезается.
func (h *Handlers) GenerateTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "bad_request", "cannot parse request body")
		return
	}
	if req.Text == "" {
		WriteJSONError(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}
	if req.VoiceID != "" && !tts.IsValidVoice(req.VoiceID) {
		WriteJSONError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown voice: %s", req.VoiceID))
		return
	}
	if !h.tts.Configured() {
		WriteJSONError(w, http.StatusServiceUnavailable, "config_failure", "text-to-speech service not configured")
		return
	}

	text := pipeline.TruncateForSynthesis(req.Text, h.ttsMaxChars)
	audioURL, err := h.tts.SynthesizeVoice(r.Context(), text, req.VoiceID, req.Style)
	if err != nil {
		h.logger.Error("tts failed", slog.String("error", err.Error()))
		WriteJSONError(w, http.StatusBadGateway, "tts_failure", "could not generate speech")
		return
	}

	WriteJSON(w, http.StatusOK, ttsResponse{AudioURL: audioURL, Success: true})
}

// EchoTTS распознаёт аудио и озвучивает распознанный текст обратно.
func (h *Handlers) EchoTTS(w http.ResponseWriter, r *http.Request) {
	audio, ok := h.readAudio(w, r)
	if !ok {
		return
	}
	if !h.stt.Configured() || !h.tts.Configured() {
		WriteJSONError(w, http.StatusServiceUnavailable, "config_failure", "required services not configured")
		return
	}

	text, err := h.stt.Transcribe(r.Context(), audio)
	if err != nil {
		h.logger.Error("echo transcription failed", slog.String("error", err.Error()))
		WriteJSON(w, http.StatusBadGateway, echoResponse{
			Error:   string(pipeline.ErrKindSTT),
			Success: false,
		})
		return
	}

	audioURL, err := h.tts.SynthesizeVoice(r.Context(), pipeline.TruncateForSynthesis(text, h.ttsMaxChars), "", "")
	if err != nil {
		h.logger.Error("echo tts failed", slog.String("error", err.Error()))
		WriteJSON(w, http.StatusOK, echoResponse{
			Transcription: text,
			Error:         string(pipeline.ErrKindTTS),
			Success:       false,
		})
		return
	}

	WriteJSON(w, http.StatusOK, echoResponse{
		AudioURL:      audioURL,
		Transcription: text,
		Success:       true,
	})
}

// LLMQuery одноразовый обмен без накопления истории:
// сессия создаётся на время запроса и удаляется после ответа.
func (h *Handlers) LLMQuery(w http.ResponseWriter, r *http.Request) {
	audio, ok := h.readAudio(w, r)
	if !ok {
		return
	}

	sessionID := uuid.NewString()
	res := h.exchange.Run(r.Context(), sessionID, audio)
	if err := h.exchange.ClearSession(r.Context(), sessionID); err != nil {
		h.logger.Error("failed to clear one-shot session", slog.String("error", err.Error()))
	}

	res.SessionID = ""
	res.TurnCount = 0
	h.writeExchange(w, res)
}

// AgentChat полный голосовой обмен с историей сессии.
func (h *Handlers) AgentChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	audio, ok := h.readAudio(w, r)
	if !ok {
		return
	}

	res := h.exchange.Run(r.Context(), sessionID, audio)
	h.writeExchange(w, res)
}

// AgentSession информация о сессии: идентификатор и длина истории.
func (h *Handlers) AgentSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	count, err := h.exchange.TurnCount(r.Context(), sessionID)
	if err != nil {
		WriteJSONError(w, http.StatusInternalServerError, "internal", "cannot read session")
		return
	}

	WriteJSON(w, http.StatusOK, sessionInfoResponse{
		SessionID:     sessionID,
		HistoryLength: count,
	})
}

// AgentClear удаляет историю сессии. Успешен и для неизвестной сессии.
func (h *Handlers) AgentClear(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.exchange.ClearSession(r.Context(), sessionID); err != nil {
		WriteJSONError(w, http.StatusInternalServerError, "internal", "cannot clear session")
		return
	}

	h.logger.Info("session cleared", slog.String("session_id", sessionID))
	WriteJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Session %s cleared", sessionID)})
}

// Voices каталог доступных голосов синтеза.
func (h *Handlers) Voices(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, tts.AvailableVoices)
}

func (h *Handlers) writeExchange(w http.ResponseWriter, res pipeline.ExchangeResult) {
	status := http.StatusOK
	switch res.ErrorKind {
	case pipeline.ErrKindConfig:
		status = http.StatusServiceUnavailable
	case pipeline.ErrKindSTT, pipeline.ErrKindLLM:
		status = http.StatusBadGateway
	case pipeline.ErrKindTTS:
		// Деградация: обмен состоялся, отдаём 200 с текстом без аудио.
		status = http.StatusOK
	}

	WriteJSON(w, status, exchangeResponse{
		SessionID:     res.SessionID,
		AudioURL:      res.AudioURL,
		Transcription: res.Transcription,
		LLMResponse:   res.ReplyText,
		HistoryLength: res.TurnCount,
		Error:         string(res.ErrorKind),
		FallbackText:  res.FallbackText,
		Success:       res.Success(),
	})
}

// readAudio извлекает аудио из multipart-поля "file" с лимитом размера.
func (h *Handlers) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "bad_request", "audio file is required")
		return nil, false
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "bad_request", "cannot read audio file")
		return nil, false
	}
	if len(audio) == 0 {
		WriteJSONError(w, http.StatusBadRequest, "bad_request", "audio file is empty")
		return nil, false
	}
	return audio, true
}
