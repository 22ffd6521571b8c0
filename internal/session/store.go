package session

import (
	"context"
	"time"
)

// Role роль автора реплики в диалоге.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn представляет одну реплику диалога. После сохранения не изменяется.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Store интерфейс для хранения истории сессий.
type Store interface {
	// History возвращает копию истории сессии (старые реплики первыми).
	// Для неизвестной сессии возвращает пустую историю без ошибки.
	History(ctx context.Context, sessionID string) ([]Turn, error)

	// AppendExchange атомарно добавляет пару (user, assistant) к сессии.
	// Если сессии не существует, она будет создана. При превышении лимита
	// реплик старые вытесняются первыми (скользящее окно).
	// Возвращает новое число реплик в сессии.
	AppendExchange(ctx context.Context, sessionID, userText, replyText string) (int, error)

	// Clear удаляет сессию и всю её историю.
	// Для неизвестной сессии — no-op без ошибки.
	Clear(ctx context.Context, sessionID string) error

	// TurnCount возвращает число сохранённых реплик сессии.
	TurnCount(ctx context.Context, sessionID string) (int, error)
}
