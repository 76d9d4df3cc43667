package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flemzord/rolechat/internal/security"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if g.metrics != nil {
		r.Use(g.metrics.Middleware)
	}

	// Public.
	r.Get("/health", g.handleHealth)
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(g.authMiddleware)

		r.Route("/api", func(r chi.Router) {
			r.Get("/status", g.handleStatus)
			r.Get("/models", g.handleListModels)
			r.Get("/provider", g.handleGetProvider)
			r.Put("/provider", g.handlePutProvider)
			r.Get("/characters", g.handleListCharacters)
			r.With(g.limit(security.KindImage)).Post("/images", g.handleGenerateImage)

			r.Route("/chats/{id}", func(r chi.Router) {
				r.Get("/", g.handleGetChat)
				r.Get("/messages", g.handleListMessages)
				r.Delete("/messages", g.handleClear)
				r.With(g.limit(security.KindTurn)).Post("/messages", g.handleSend)
				r.With(g.limit(security.KindTurn)).Put("/messages/{messageID}", g.handleEdit)
				r.With(g.limit(security.KindTurn)).Post("/regenerate", g.handleRegenerate)
				r.Patch("/settings", g.handleUpdateSettings)
				r.Get("/suggestions", g.handleSuggestions)
				r.Get("/summary", g.handleSummary)
				r.Post("/memories", g.handleRegenerateMemory)
				r.Delete("/memories/{messageID}", g.handleDeleteMemory)
			})
		})

		r.Get("/ws/chats/{id}", g.handleWebSocket)
	})

	return r
}
