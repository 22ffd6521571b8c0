package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"voiceassist/internal/session"
)

// mockTranscriber реализует Transcriber для тестов.
type mockTranscriber struct {
	transcribeFunc func(ctx context.Context, audio []byte) (string, error)
	configured     bool
}

func (m *mockTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if m.transcribeFunc != nil {
		return m.transcribeFunc(ctx, audio)
	}
	return "", errors.New("not implemented")
}

func (m *mockTranscriber) Configured() bool { return m.configured }

// mockGenerator реализует Generator для тестов.
type mockGenerator struct {
	generateFunc func(ctx context.Context, userText string, history []session.Turn) (string, error)
	configured   bool
}

func (m *mockGenerator) Generate(ctx context.Context, userText string, history []session.Turn) (string, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, userText, history)
	}
	return "", errors.New("not implemented")
}

func (m *mockGenerator) Configured() bool { return m.configured }

// mockSynthesizer реализует Synthesizer для тестов.
type mockSynthesizer struct {
	synthesizeFunc func(ctx context.Context, text string) (string, error)
	configured     bool
}

func (m *mockSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	if m.synthesizeFunc != nil {
		return m.synthesizeFunc(ctx, text)
	}
	return "", errors.New("not implemented")
}

func (m *mockSynthesizer) Configured() bool { return m.configured }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func happyPipeline(store session.Store) *Pipeline {
	return New(Config{
		STT: &mockTranscriber{
			configured: true,
			transcribeFunc: func(ctx context.Context, audio []byte) (string, error) {
				return "hello", nil
			},
		},
		LLM: &mockGenerator{
			configured: true,
			generateFunc: func(ctx context.Context, userText string, history []session.Turn) (string, error) {
				return "hi there", nil
			},
		},
		TTS: &mockSynthesizer{
			configured: true,
			synthesizeFunc: func(ctx context.Context, text string) (string, error) {
				return "https://audio/1", nil
			},
		},
		Store:             store,
		MaxSynthesisChars: 3000,
		Logger:            testLogger(),
	})
}

func TestPipeline_Run_Success(t *testing.T) {
	store := session.NewMemoryStore(50)
	p := happyPipeline(store)

	res := p.Run(context.Background(), "s1", []byte("audio"))

	if !res.Success() {
		t.Fatalf("expected success, got error kind: %s", res.ErrorKind)
	}
	if res.SessionID != "s1" {
		t.Errorf("expected session s1, got: %s", res.SessionID)
	}
	if res.Transcription != "hello" {
		t.Errorf("expected transcription 'hello', got: %s", res.Transcription)
	}
	if res.ReplyText != "hi there" {
		t.Errorf("expected reply 'hi there', got: %s", res.ReplyText)
	}
	if res.AudioURL != "https://audio/1" {
		t.Errorf("expected audio url, got: %s", res.AudioURL)
	}
	if res.TurnCount != 2 {
		t.Errorf("expected turn count 2, got: %d", res.TurnCount)
	}
	if res.FallbackText != "" {
		t.Errorf("expected no fallback text, got: %s", res.FallbackText)
	}
}

func TestPipeline_Run_NotConfigured(t *testing.T) {
	store := session.NewMemoryStore(50)
	p := New(Config{
		STT:               &mockTranscriber{configured: false},
		LLM:               &mockGenerator{configured: true},
		TTS:               &mockSynthesizer{configured: true},
		Store:             store,
		MaxSynthesisChars: 3000,
		Logger:            testLogger(),
	})

	res := p.Run(context.Background(), "s1", []byte("audio"))

	if res.ErrorKind != ErrKindConfig {
		t.Fatalf("expected config_failure, got: %s", res.ErrorKind)
	}
	if res.Transcription != "" || res.ReplyText != "" || res.AudioURL != "" {
		t.Errorf("expected empty stage outputs, got: %+v", res)
	}
	if res.FallbackText == "" {
		t.Errorf("expected fallback text for config failure")
	}
}

func TestPipeline_Run_EmptyAudioIsSTTFailure(t *testing.T) {
	store := session.NewMemoryStore(50)
	p := happyPipeline(store)

	res := p.Run(context.Background(), "s1", nil)

	if res.ErrorKind != ErrKindSTT {
		t.Fatalf("expected stt_failure for empty audio, got: %s", res.ErrorKind)
	}
}

func TestPipeline_Run_STTFailureDoesNotTouchHistory(t *testing.T) {
	store := session.NewMemoryStore(50)
	p := New(Config{
		STT: &mockTranscriber{
			configured: true,
			transcribeFunc: func(ctx context.Context, audio []byte) (string, error) {
				return "", errors.New("provider error")
			},
		},
		LLM:               &mockGenerator{configured: true},
		TTS:               &mockSynthesizer{configured: true},
		Store:             store,
		MaxSynthesisChars: 3000,
		Logger:            testLogger(),
	})

	res := p.Run(context.Background(), "s1", []byte("audio"))

	if res.ErrorKind != ErrKindSTT {
		t.Fatalf("expected stt_failure, got: %s", res.ErrorKind)
	}
	if res.Transcription != "" || res.ReplyText != "" || res.AudioURL != "" {
		t.Errorf("expected empty stage outputs, got: %+v", res)
	}
	if res.TurnCount != 0 {
		t.Errorf("expected turn count 0, got: %d", res.TurnCount)
	}

	count, err := p.TurnCount(context.Background(), "s1")
	if err != nil {
		t.Fatalf("TurnCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected history unchanged (0 turns), got: %d", count)
	}
}

func TestPipeline_Run_LLMFailureKeepsTranscription(t *testing.T) {
	store := session.NewMemoryStore(50)
	p := New(Config{
		STT: &mockTranscriber{
			configured: true,
			transcribeFunc: func(ctx context.Context, audio []byte) (string, error) {
				return "hello", nil
			},
		},
		LLM: &mockGenerator{
			configured: true,
			generateFunc: func(ctx context.Context, userText string, history []session.Turn) (string, error) {
				return "", errors.New("provider error")
			},
		},
		TTS:               &mockSynthesizer{configured: true},
		Store:             store,
		MaxSynthesisChars: 3000,
		Logger:            testLogger(),
	})

	res := p.Run(context.Background(), "s1", []byte("audio"))

	if res.ErrorKind != ErrKindLLM {
		t.Fatalf("expected llm_failure, got: %s", res.ErrorKind)
	}
	if res.Transcription != "hello" {
		t.Errorf("expected transcription preserved, got: %s", res.Transcription)
	}
	if res.ReplyText != "" || res.AudioURL != "" {
		t.Errorf("expected empty reply/audio, got: %+v", res)
	}

	count, _ := p.TurnCount(context.Background(), "s1")
	if count != 0 {
		t.Fatalf("expected history unchanged on llm failure, got: %d", count)
	}
}

func TestPipeline_Run_TTSFailureCommitsHistory(t *testing.T) {
	store := session.NewMemoryStore(50)
	p := New(Config{
		STT: &mockTranscriber{
			configured: true,
			transcribeFunc: func(ctx context.Context, audio []byte) (string, error) {
				return "hello", nil
			},
		},
		LLM: &mockGenerator{
			configured: true,
			generateFunc: func(ctx context.Context, userText string, history []session.Turn) (string, error) {
				return "hi there", nil
			},
		},
		TTS: &mockSynthesizer{
			configured: true,
			synthesizeFunc: func(ctx context.Context, text string) (string, error) {
				return "", errors.New("provider error")
			},
		},
		Store:             store,
		MaxSynthesisChars: 3000,
		Logger:            testLogger(),
	})

	res := p.Run(context.Background(), "s1", []byte("audio"))

	// Деградация: обмен состоялся, аудио нет, пара в истории.
	if res.ErrorKind != ErrKindTTS {
		t.Fatalf("expected tts_failure, got: %s", res.ErrorKind)
	}
	if !res.Degraded() {
		t.Errorf("expected degraded result")
	}
	if res.Transcription != "hello" || res.ReplyText != "hi there" {
		t.Errorf("expected transcription and reply preserved, got: %+v", res)
	}
	if res.AudioURL != "" {
		t.Errorf("expected empty audio url, got: %s", res.AudioURL)
	}
	if res.TurnCount != 2 {
		t.Errorf("expected turn count 2, got: %d", res.TurnCount)
	}

	count, _ := p.TurnCount(context.Background(), "s1")
	if count != 2 {
		t.Fatalf("expected pair committed despite tts failure, got: %d", count)
	}
}

func TestPipeline_Run_GenerateReceivesBoundedHistory(t *testing.T) {
	store := session.NewMemoryStore(4)
	var gotHistory []session.Turn

	p := New(Config{
		STT: &mockTranscriber{
			configured: true,
			transcribeFunc: func(ctx context.Context, audio []byte) (string, error) {
				return "question", nil
			},
		},
		LLM: &mockGenerator{
			configured: true,
			generateFunc: func(ctx context.Context, userText string, history []session.Turn) (string, error) {
				gotHistory = append([]session.Turn(nil), history...)
				return "answer", nil
			},
		},
		TTS: &mockSynthesizer{
			configured: true,
			synthesizeFunc: func(ctx context.Context, text string) (string, error) {
				return "https://audio/1", nil
			},
		},
		Store:             store,
		MaxSynthesisChars: 3000,
		Logger:            testLogger(),
	})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		res := p.Run(ctx, "s1", []byte("audio"))
		if !res.Success() {
			t.Fatalf("exchange %d failed: %s", i, res.ErrorKind)
		}
	}

	// Четвёртый обмен видит только окно из двух последних пар,
	// и текущая реплика в историю-контекст не входит.
	if len(gotHistory) != 4 {
		t.Fatalf("expected bounded history of 4 turns, got: %d", len(gotHistory))
	}

	count, _ := store.TurnCount(ctx, "s1")
	if count != 4 {
		t.Fatalf("expected 4 stored turns (window), got: %d", count)
	}
}

func TestPipeline_Run_TruncatesReplyForSynthesis(t *testing.T) {
	store := session.NewMemoryStore(50)
	longReply := strings.Repeat("a", 5000)
	var synthesized string

	p := New(Config{
		STT: &mockTranscriber{
			configured: true,
			transcribeFunc: func(ctx context.Context, audio []byte) (string, error) {
				return "hello", nil
			},
		},
		LLM: &mockGenerator{
			configured: true,
			generateFunc: func(ctx context.Context, userText string, history []session.Turn) (string, error) {
				return longReply, nil
			},
		},
		TTS: &mockSynthesizer{
			configured: true,
			synthesizeFunc: func(ctx context.Context, text string) (string, error) {
				synthesized = text
				return "https://audio/1", nil
			},
		},
		Store:             store,
		MaxSynthesisChars: 3000,
		Logger:            testLogger(),
	})

	res := p.Run(context.Background(), "s1", []byte("audio"))

	if !res.Success() {
		t.Fatalf("expected success, got: %s", res.ErrorKind)
	}
	if len(synthesized) != 3000 {
		t.Errorf("expected synthesized text of exactly 3000 chars, got: %d", len(synthesized))
	}
	if !strings.HasSuffix(synthesized, "...") {
		t.Errorf("expected truncated text to end with ellipsis")
	}
	// Полный ответ в результате не обрезается.
	if res.ReplyText != longReply {
		t.Errorf("expected untruncated reply in result")
	}
}

func TestPipeline_Run_SlidingWindowAcrossExchanges(t *testing.T) {
	const maxTurns = 6
	store := session.NewMemoryStore(maxTurns)
	i := 0

	p := New(Config{
		STT: &mockTranscriber{
			configured: true,
			transcribeFunc: func(ctx context.Context, audio []byte) (string, error) {
				return fmt.Sprintf("q%d", i), nil
			},
		},
		LLM: &mockGenerator{
			configured: true,
			generateFunc: func(ctx context.Context, userText string, history []session.Turn) (string, error) {
				return fmt.Sprintf("a%d", i), nil
			},
		},
		TTS: &mockSynthesizer{
			configured: true,
			synthesizeFunc: func(ctx context.Context, text string) (string, error) {
				return "https://audio/1", nil
			},
		},
		Store:             store,
		MaxSynthesisChars: 3000,
		Logger:            testLogger(),
	})

	ctx := context.Background()
	for ; i < 10; i++ {
		res := p.Run(ctx, "s1", []byte("audio"))
		want := 2 * (i + 1)
		if want > maxTurns {
			want = maxTurns
		}
		if res.TurnCount != want {
			t.Fatalf("exchange %d: expected turn count %d, got: %d", i, want, res.TurnCount)
		}
	}

	// Вытеснены именно старые пары.
	history, err := store.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != maxTurns {
		t.Fatalf("expected %d turns, got: %d", maxTurns, len(history))
	}
	if history[0].Text != "q7" {
		t.Errorf("expected oldest surviving turn q7, got: %s", history[0].Text)
	}
	if history[len(history)-1].Text != "a9" {
		t.Errorf("expected newest turn a9, got: %s", history[len(history)-1].Text)
	}
}

func TestPipeline_Run_ConcurrentSessionsDoNotInterleave(t *testing.T) {
	store := session.NewMemoryStore(0)

	p := New(Config{
		STT: &mockTranscriber{
			configured: true,
			transcribeFunc: func(ctx context.Context, audio []byte) (string, error) {
				return string(audio), nil
			},
		},
		LLM: &mockGenerator{
			configured: true,
			generateFunc: func(ctx context.Context, userText string, history []session.Turn) (string, error) {
				return "reply-" + userText, nil
			},
		},
		TTS: &mockSynthesizer{
			configured: true,
			synthesizeFunc: func(ctx context.Context, text string) (string, error) {
				return "https://audio/1", nil
			},
		},
		Store:             store,
		MaxSynthesisChars: 3000,
		Logger:            testLogger(),
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	const exchanges = 50

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("session-%d", id)
			for j := 0; j < exchanges; j++ {
				res := p.Run(ctx, sessionID, []byte(fmt.Sprintf("audio-%d", id)))
				if !res.Success() {
					t.Errorf("exchange failed: %s", res.ErrorKind)
				}
			}
		}(i)
	}
	wg.Wait()

	// История каждой сессии содержит только её собственные реплики.
	for i := 0; i < 2; i++ {
		sessionID := fmt.Sprintf("session-%d", i)
		history, err := store.History(ctx, sessionID)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(history) != exchanges*2 {
			t.Fatalf("expected %d turns for %s, got: %d", exchanges*2, sessionID, len(history))
		}
		for _, turn := range history {
			if !strings.Contains(turn.Text, fmt.Sprintf("-%d", i)) {
				t.Fatalf("session %s contains foreign turn: %q", sessionID, turn.Text)
			}
		}
	}
}

func TestPipeline_ClearSession(t *testing.T) {
	store := session.NewMemoryStore(50)
	p := happyPipeline(store)
	ctx := context.Background()

	res := p.Run(ctx, "s1", []byte("audio"))
	if res.TurnCount != 2 {
		t.Fatalf("expected 2 turns, got: %d", res.TurnCount)
	}

	if err := p.ClearSession(ctx, "s1"); err != nil {
		t.Fatalf("ClearSession failed: %v", err)
	}

	count, err := p.TurnCount(ctx, "s1")
	if err != nil {
		t.Fatalf("TurnCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 turns after clear, got: %d", count)
	}
}

func TestTruncateForSynthesis(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     string
	}{
		{"short text untouched", "hello", 3000, "hello"},
		{"exact limit untouched", strings.Repeat("a", 10), 10, strings.Repeat("a", 10)},
		{"long text truncated with ellipsis", strings.Repeat("a", 20), 10, strings.Repeat("a", 7) + "..."},
		{"no limit", strings.Repeat("a", 20), 0, strings.Repeat("a", 20)},
		{"tiny limit", "hello", 2, "he"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateForSynthesis(tt.text, tt.maxChars)
			if got != tt.want {
				t.Errorf("expected %q, got: %q", tt.want, got)
			}
			if tt.maxChars > 0 && len([]rune(got)) > tt.maxChars {
				t.Errorf("result exceeds limit: %d > %d", len([]rune(got)), tt.maxChars)
			}
		})
	}
}

func TestFallbackText(t *testing.T) {
	for _, kind := range []ErrorKind{ErrKindSTT, ErrKindLLM, ErrKindTTS, ErrKindConfig} {
		if FallbackText(kind) == "" {
			t.Errorf("expected fallback phrase for %s", kind)
		}
	}
	if FallbackText(ErrorKind("unknown")) != generalFallback {
		t.Errorf("expected general fallback for unknown kind")
	}
}
