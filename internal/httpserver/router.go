package httpserver

import (
	"net/http"
	"path/filepath"

	"voiceassist/internal/middleware"

	"log/slog"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	Logger    *slog.Logger
	Handlers  *Handlers
	StaticDir string
}

// NewRouter собирает chi-роутер с общими middleware и маршрутами голосового API.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))

	h := deps.Handlers

	r.Get("/health", h.Health)
	r.Get("/voices", h.Voices)

	r.Post("/transcribe/file", h.TranscribeFile)
	r.Post("/tts", h.GenerateTTS)
	r.Post("/tts/echo", h.EchoTTS)
	r.Post("/llm/query", h.LLMQuery)

	r.Route("/agent/chat/{sessionID}", func(r chi.Router) {
		r.Post("/", h.AgentChat)
		r.Get("/", h.AgentSession)
		r.Delete("/", h.AgentClear)
	})

	if deps.StaticDir != "" {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(deps.StaticDir, "index.html"))
		})
		fileServer := http.StripPrefix("/static/", http.FileServer(http.Dir(deps.StaticDir)))
		r.Get("/static/*", fileServer.ServeHTTP)
	}

	return r
}
