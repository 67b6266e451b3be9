package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Jalalidin/knowledgevault/internal/auth"
	"github.com/Jalalidin/knowledgevault/internal/core"
	"github.com/Jalalidin/knowledgevault/internal/store"
)

const (
	apiVersion       = "2.0.0"
	defaultListLimit = 50
	maxUploadBytes   = 32 << 20
)

type contextKey string

const userContextKey contextKey = "user"

type APIHandler struct {
	store       *store.SQLiteStore
	ingest      *core.IngestService
	chat        *core.ChatService
	generator   core.Generator
	jwtSecret   []byte
	development bool
	logger      *zap.Logger
}

func NewAPIHandler(db *store.SQLiteStore, ingest *core.IngestService, chat *core.ChatService, generator core.Generator, jwtSecret []byte, development bool, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		store:       db,
		ingest:      ingest,
		chat:        chat,
		generator:   generator,
		jwtSecret:   jwtSecret,
		development: development,
		logger:      logger,
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func currentUser(r *http.Request) *store.User {
	user, _ := r.Context().Value(userContextKey).(*store.User)
	return user
}

// JWTAuthMiddleware resolves the bearer token to a user before any handler
// logic runs. All failures are a uniform 401.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := auth.ValidateToken(h.jwtSecret, tokenString)
		if err != nil {
			http.Error(w, "Invalid authentication credentials", http.StatusUnauthorized)
			return
		}

		user, err := h.store.GetUserByID(userID)
		if err != nil {
			h.logger.Error("Failed to resolve user from token", zap.String("user_id", userID), zap.Error(err))
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	database := "connected"
	if err := h.store.Ping(); err != nil {
		database = "unavailable"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"version":          apiVersion,
		"agents_available": h.generator.Available(),
		"database":         database,
	})
}

// LoginHandler is the development-only demo login: get-or-create the user by
// email and issue a bearer token. Outside development it must reject every
// request; the unauthenticated path is never reachable in production.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !h.development {
		http.Error(w, "Password/OAuth authentication required in production", http.StatusForbidden)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}
	email := r.FormValue("email")
	if email == "" {
		http.Error(w, "Email is required", http.StatusBadRequest)
		return
	}

	user, err := h.store.GetOrCreateUserByEmail(email, "Demo", "User")
	if err != nil {
		h.logger.Error("Demo login failed", zap.String("email", email), zap.Error(err))
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateToken(h.jwtSecret, user.ID)
	if err != nil {
		h.logger.Error("Failed to generate token", zap.String("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

func (h *APIHandler) CurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, currentUser(r))
}

func (h *APIHandler) ListKnowledgeItemsHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	items, err := h.store.ListKnowledgeItems(user.ID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list knowledge items", zap.String("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to list knowledge items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.KnowledgeItem{}
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *APIHandler) GetKnowledgeItemHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	itemID := chi.URLParam(r, "itemID")

	item, err := h.store.GetKnowledgeItemByID(itemID, user.ID)
	if err != nil {
		h.logger.Error("Failed to get knowledge item", zap.String("item_id", itemID), zap.Error(err))
		http.Error(w, "Failed to get knowledge item", http.StatusInternalServerError)
		return
	}
	if item == nil {
		http.Error(w, "Knowledge item not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

type CreateKnowledgeItemRequest struct {
	Title    string         `json:"title"`
	Summary  string         `json:"summary"`
	Content  string         `json:"content"`
	Type     store.ItemType `json:"type"`
	Tags     []string       `json:"tags"`
	Metadata map[string]any `json:"metadata"`
}

func (h *APIHandler) CreateKnowledgeItemHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req CreateKnowledgeItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}
	if !store.ValidItemType(req.Type) {
		http.Error(w, "Invalid item type", http.StatusBadRequest)
		return
	}

	item, err := h.ingest.CreateItem(r.Context(), user.ID, core.CreateItemParams{
		Title:    req.Title,
		Summary:  req.Summary,
		Content:  req.Content,
		Type:     req.Type,
		Tags:     req.Tags,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.logger.Error("Failed to create knowledge item", zap.String("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to create knowledge item", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart body: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "A file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read uploaded file", http.StatusBadRequest)
		return
	}

	item, err := h.ingest.UploadFile(r.Context(), core.UploadParams{
		UserID:      user.ID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.logger.Error("Upload failed", zap.String("user_id", user.ID), zap.String("filename", header.Filename), zap.Error(err))
		http.Error(w, "Failed to process upload", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

type ChatRequest struct {
	Message          string `json:"message"`
	ConversationID   string `json:"conversation_id"`
	UseKnowledgeBase *bool  `json:"use_knowledge_base"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "Message cannot be empty", http.StatusBadRequest)
		return
	}
	useKnowledgeBase := true
	if req.UseKnowledgeBase != nil {
		useKnowledgeBase = *req.UseKnowledgeBase
	}

	result, err := h.chat.Chat(r.Context(), user.ID, core.ChatParams{
		Message:          req.Message,
		ConversationID:   req.ConversationID,
		UseKnowledgeBase: useKnowledgeBase,
	})
	if err != nil {
		h.logger.Error("Chat failed", zap.String("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to process chat message", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	convs, err := h.store.ListConversations(user.ID)
	if err != nil {
		h.logger.Error("Failed to list conversations", zap.String("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	respondJSON(w, http.StatusOK, convs)
}

func (h *APIHandler) ListConversationMessagesHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.store.GetConversationByID(conversationID, user.ID)
	if err != nil {
		h.logger.Error("Failed to get conversation", zap.String("conversation_id", conversationID), zap.Error(err))
		http.Error(w, "Failed to get conversation", http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	messages, err := h.store.ListMessagesByConversation(conversationID)
	if err != nil {
		h.logger.Error("Failed to list messages", zap.String("conversation_id", conversationID), zap.Error(err))
		http.Error(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []store.ChatMessage{}
	}
	respondJSON(w, http.StatusOK, messages)
}

func (h *APIHandler) ListTagsHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	tags, err := h.store.ListTags(user.ID)
	if err != nil {
		h.logger.Error("Failed to list tags", zap.String("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to list tags", http.StatusInternalServerError)
		return
	}
	if tags == nil {
		tags = []store.Tag{}
	}
	respondJSON(w, http.StatusOK, tags)
}

func (h *APIHandler) GetAISettingsHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	settings, err := h.store.GetOrCreateAISettings(user.ID)
	if err != nil {
		h.logger.Error("Failed to get AI settings", zap.String("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to get AI settings", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

type UpdateAISettingsRequest struct {
	PreferredProvider string         `json:"preferredProvider"`
	PreferredModel    string         `json:"preferredModel"`
	ChatSettings      map[string]any `json:"chatSettings"`
}

func (h *APIHandler) UpdateAISettingsHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req UpdateAISettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.PreferredProvider == "" || req.PreferredModel == "" {
		http.Error(w, "preferredProvider and preferredModel are required", http.StatusBadRequest)
		return
	}

	settings, err := h.store.UpdateAISettings(user.ID, req.PreferredProvider, req.PreferredModel, req.ChatSettings)
	if err != nil {
		h.logger.Error("Failed to update AI settings", zap.String("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to update AI settings", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// Direct agent endpoints: diagnostic pass-throughs to the enrichment caller,
// bypassing persistence.

func (h *APIHandler) agentPassthrough(w http.ResponseWriter, r *http.Request, agent core.Agent, unavailableMsg string, buildPrompt func(map[string]any) string) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if !h.generator.Available() {
		respondJSON(w, http.StatusOK, map[string]string{"response": unavailableMsg, "agent": agent.Name})
		return
	}

	response, err := h.generator.Generate(r.Context(), agent, buildPrompt(body))
	if err != nil {
		h.logger.Error("Agent pass-through failed", zap.String("agent", agent.Name), zap.Error(err))
		http.Error(w, "Agent processing failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"response": response, "agent": agent.Name})
}

func stringField(body map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (h *APIHandler) AgentProcessDocumentHandler(w http.ResponseWriter, r *http.Request) {
	h.agentPassthrough(w, r, core.DocumentProcessor, "AI processing unavailable", func(body map[string]any) string {
		return "Process this content: " + stringField(body, "text", "content")
	})
}

func (h *APIHandler) AgentSearchHandler(w http.ResponseWriter, r *http.Request) {
	h.agentPassthrough(w, r, core.SearchAgent, "AI search unavailable", func(body map[string]any) string {
		return stringField(body, "query")
	})
}

func (h *APIHandler) AgentSummarizeHandler(w http.ResponseWriter, r *http.Request) {
	h.agentPassthrough(w, r, core.SummarizationAgent, "AI summarization unavailable", func(body map[string]any) string {
		return "Summarize this content: " + stringField(body, "content", "text")
	})
}
