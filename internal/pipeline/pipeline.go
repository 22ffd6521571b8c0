package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"voiceassist/internal/session"
)

// Transcriber внешний провайдер распознавания речи.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Configured() bool
}

// Generator внешний провайдер генерации ответа.
// history передаётся старыми репликами первыми, userText — новой репликой.
type Generator interface {
	Generate(ctx context.Context, userText string, history []session.Turn) (string, error)
	Configured() bool
}

// Synthesizer внешний провайдер синтеза речи.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
	Configured() bool
}

// Pipeline координатор одного голосового обмена: транскрипция, генерация
// ответа с контекстом сессии, фиксация пары реплик, синтез речи.
// Стадии выполняются строго последовательно: вход каждой — выход предыдущей.
// Повторных попыток на этом уровне нет, это забота вендорных клиентов.
type Pipeline struct {
	stt      Transcriber
	llm      Generator
	tts      Synthesizer
	store    session.Store
	maxChars int
	logger   *slog.Logger
}

// Config конфигурация для создания Pipeline.
type Config struct {
	STT               Transcriber
	LLM               Generator
	TTS               Synthesizer
	Store             session.Store
	MaxSynthesisChars int
	Logger            *slog.Logger
}

// New создаёт координатор обменов.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		stt:      cfg.STT,
		llm:      cfg.LLM,
		tts:      cfg.TTS,
		store:    cfg.Store,
		maxChars: cfg.MaxSynthesisChars,
		logger:   cfg.Logger,
	}
}

// Run выполняет один обмен для сессии.
// Политика сбоев:
//   - провайдеры не сконфигурированы -> config_failure до выполнения стадий;
//   - сбой транскрипции -> stt_failure, история не изменяется;
//   - сбой генерации -> llm_failure, транскрипция в результате, истории нет;
//   - сбой синтеза -> tts_failure, но обмен логически состоялся: пара
//     (user, assistant) уже зафиксирована, текст ответа в результате.
//
// Сырые ошибки вендоров наружу не выходят: результат всегда корректно собран.
func (p *Pipeline) Run(ctx context.Context, sessionID string, audio []byte) ExchangeResult {
	res := ExchangeResult{SessionID: sessionID}

	if !p.stt.Configured() || !p.llm.Configured() || !p.tts.Configured() {
		return p.fail(ctx, res, ErrKindConfig, fmt.Errorf("capability providers not configured"))
	}

	if len(audio) == 0 {
		return p.fail(ctx, res, ErrKindSTT, fmt.Errorf("audio is empty"))
	}

	userText, err := p.stt.Transcribe(ctx, audio)
	if err != nil {
		return p.fail(ctx, res, ErrKindSTT, err)
	}
	if userText == "" {
		return p.fail(ctx, res, ErrKindSTT, fmt.Errorf("empty transcription"))
	}
	res.Transcription = userText

	// Контекст генерации: ограниченная история без текущей реплики.
	history, err := p.store.History(ctx, sessionID)
	if err != nil {
		// Хранилище в памяти не падает, но на всякий случай отвечаем без контекста.
		p.logger.Error("failed to read session history",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		history = nil
	}

	replyText, err := p.llm.Generate(ctx, userText, history)
	if err != nil {
		return p.fail(ctx, res, ErrKindLLM, err)
	}
	res.ReplyText = replyText

	// Обмен логически состоялся: фиксируем пару до синтеза,
	// чтобы сбой озвучки не терял реплики.
	count, err := p.store.AppendExchange(ctx, sessionID, userText, replyText)
	if err != nil {
		p.logger.Error("failed to save session history",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	} else {
		res.TurnCount = count
	}

	audioURL, err := p.tts.Synthesize(ctx, TruncateForSynthesis(replyText, p.maxChars))
	if err != nil {
		return p.fail(ctx, res, ErrKindTTS, err)
	}
	res.AudioURL = audioURL

	p.logger.Info("exchange completed",
		slog.String("session_id", sessionID),
		slog.Int("turn_count", res.TurnCount))
	return res
}

// ClearSession удаляет историю сессии. Не падает для неизвестной сессии.
func (p *Pipeline) ClearSession(ctx context.Context, sessionID string) error {
	return p.store.Clear(ctx, sessionID)
}

// TurnCount возвращает число реплик в истории сессии.
func (p *Pipeline) TurnCount(ctx context.Context, sessionID string) (int, error) {
	return p.store.TurnCount(ctx, sessionID)
}

func (p *Pipeline) fail(ctx context.Context, res ExchangeResult, kind ErrorKind, err error) ExchangeResult {
	res.ErrorKind = kind
	res.FallbackText = FallbackText(kind)

	if res.TurnCount == 0 {
		if count, countErr := p.store.TurnCount(ctx, res.SessionID); countErr == nil {
			res.TurnCount = count
		}
	}

	p.logger.Error("exchange failed",
		slog.String("session_id", res.SessionID),
		slog.String("error_kind", string(kind)),
		slog.String("error", err.Error()))
	return res
}

// TruncateForSynthesis обрезает текст до лимита провайдера синтеза.
// Политика — обрезка, а не отказ: обрезанный текст заканчивается "..."
// и укладывается ровно в maxChars символов. Если maxChars <= 0, лимита нет.
func TruncateForSynthesis(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	runes := []rune(text)
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	return string(runes[:maxChars-3]) + "..."
}
