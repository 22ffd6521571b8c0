package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore потокобезопасное in-memory хранилище историй сессий.
// Сессии живут до явного Clear или до завершения процесса.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
	maxTurns int
}

// NewMemoryStore создаёт новое in-memory хранилище сессий.
// maxTurns ограничивает длину истории одной сессии: при превышении
// старые реплики вытесняются первыми. Если maxTurns <= 0, история не ограничена.
func NewMemoryStore(maxTurns int) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]Turn),
		maxTurns: maxTurns,
	}
}

// History возвращает копию истории, чтобы избежать изменений снаружи.
func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	if len(turns) == 0 {
		return nil, nil
	}

	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// AppendExchange добавляет пару (user, assistant) под одной блокировкой,
// поэтому пары разных обменов одной сессии не перемешиваются.
func (s *MemoryStore) AppendExchange(ctx context.Context, sessionID, userText, replyText string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	turns := append(s.sessions[sessionID],
		Turn{Role: RoleUser, Text: userText, Timestamp: now},
		Turn{Role: RoleAssistant, Text: replyText, Timestamp: now},
	)

	// Скользящее окно: вытесняем старые реплики.
	if s.maxTurns > 0 && len(turns) > s.maxTurns {
		trimmed := make([]Turn, s.maxTurns)
		copy(trimmed, turns[len(turns)-s.maxTurns:])
		turns = trimmed
	}

	s.sessions[sessionID] = turns
	return len(turns), nil
}

// Clear удаляет сессию.
func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// TurnCount возвращает число реплик сессии. Для неизвестной сессии — 0.
func (s *MemoryStore) TurnCount(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions[sessionID]), nil
}
