package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mrwolf/her-server/internal/config"
	"github.com/mrwolf/her-server/internal/counselor"
	"github.com/mrwolf/her-server/internal/db"
	"github.com/mrwolf/her-server/internal/history"
	"github.com/mrwolf/her-server/internal/llm"
	"github.com/mrwolf/her-server/internal/logger"
	"github.com/mrwolf/her-server/internal/selector"
)

// Deps are the collaborators the handlers need
type Deps struct {
	Config    *config.Config
	DB        *db.DB
	History   *history.Service
	Selector  *selector.Selector
	Counselor *counselor.Counselor
	LLM       *llm.Client
	Log       *logger.Logger
}

func NewRouter(d Deps) *chi.Mux {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(d.Log))
	r.Use(CORS(d.Config.AllowedOrigins))

	handlers := NewHandlers(d)

	r.Get("/health", handlers.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(JSONContentType)
		r.Use(RateLimitMiddleware(NewRateLimiter(d.Config.RateLimit, time.Minute)))

		r.Post("/questions", handlers.Questions)
		r.Post("/generate", handlers.Generate)
		r.Post("/conversation", handlers.SaveConversation)
		r.Post("/conversations", handlers.Conversations)
		r.Post("/themes", handlers.Themes)
	})

	return r
}
