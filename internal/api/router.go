package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Get("/health", apiHandler.HealthHandler)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/auth/login", apiHandler.LoginHandler)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/auth/user", apiHandler.CurrentUserHandler)

			// Knowledge item routes
			r.Get("/knowledge-items", apiHandler.ListKnowledgeItemsHandler)
			r.Get("/knowledge-items/{itemID}", apiHandler.GetKnowledgeItemHandler)
			r.Post("/knowledge-items", apiHandler.CreateKnowledgeItemHandler)
			r.Post("/upload", apiHandler.UploadHandler)

			// Chat routes
			r.Post("/chat", apiHandler.ChatHandler)
			r.Get("/conversations", apiHandler.ListConversationsHandler)
			r.Get("/conversations/{conversationID}/messages", apiHandler.ListConversationMessagesHandler)

			r.Get("/tags", apiHandler.ListTagsHandler)

			r.Get("/ai-settings", apiHandler.GetAISettingsHandler)
			r.Put("/ai-settings", apiHandler.UpdateAISettingsHandler)

			// Direct agent access for diagnostics
			r.Post("/agents/process-document", apiHandler.AgentProcessDocumentHandler)
			r.Post("/agents/search", apiHandler.AgentSearchHandler)
			r.Post("/agents/summarize", apiHandler.AgentSummarizeHandler)
		})
	})

	return r
}
