package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Jalalidin/knowledgevault/internal/store"
)

const (
	maxChatSources     = 5
	searchQueryLimit   = 50
	contextExcerptSize = 300

	chatFallbackMessage = "I'm sorry, I'm having trouble processing your request right now. Please try again."
)

// ChatService runs the retrieval-augmented conversation pipeline: resolve the
// conversation, persist the user turn, search the user's items for context,
// generate, persist the assistant turn. Each step either succeeds or degrades
// to a fixed fallback and still advances; a conversation never ends in a
// failed state from the caller's perspective.
type ChatService struct {
	store     *store.SQLiteStore
	generator Generator
	logger    *zap.Logger
}

func NewChatService(db *store.SQLiteStore, generator Generator, logger *zap.Logger) *ChatService {
	return &ChatService{
		store:     db,
		generator: generator,
		logger:    logger,
	}
}

type ChatParams struct {
	Message          string
	ConversationID   string
	UseKnowledgeBase bool
}

// Source identifies a knowledge item used to ground an assistant turn.
type Source struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Type    string `json:"type"`
}

type ChatResult struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id"`
	Sources        []Source `json:"sources"`
	AgentUsed      string   `json:"agent_used"`
}

func (s *ChatService) Chat(ctx context.Context, userID string, p ChatParams) (*ChatResult, error) {
	conv, err := s.resolveConversation(userID, p.ConversationID)
	if err != nil {
		return nil, err
	}

	// The user turn is committed before any generation so history survives a
	// failed or hung generation call.
	userMsg := store.ChatMessage{
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        p.Message,
	}
	if err := s.store.CreateChatMessage(&userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	sources := []Source{}
	contextBlock := ""
	if p.UseKnowledgeBase {
		sources, contextBlock, err = s.retrieveContext(userID, p.Message)
		if err != nil {
			return nil, err
		}
	}

	prompt := fmt.Sprintf(
		"User question: %s\n\nKnowledge base context:\n%s\n\nProvide a helpful response based on the available context.",
		p.Message, contextBlock,
	)
	assistantContent, err := s.generator.Generate(ctx, ConversationAgent, prompt)
	if err != nil {
		s.logger.Warn("Chat generation failed, using fallback response",
			zap.String("conversation_id", conv.ID), zap.Error(err))
		assistantContent = chatFallbackMessage
	}

	assistantMsg := store.ChatMessage{
		ConversationID: conv.ID,
		Role:           store.RoleAssistant,
		Content:        assistantContent,
		Metadata: map[string]any{
			"sources":    sources,
			"agent_used": ConversationAgent.Name,
		},
	}
	if err := s.store.CreateChatMessage(&assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}
	if err := s.store.TouchConversation(conv.ID); err != nil {
		s.logger.Warn("Failed to update conversation timestamp",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	return &ChatResult{
		Message:        assistantContent,
		ConversationID: conv.ID,
		Sources:        sources,
		AgentUsed:      ConversationAgent.Name,
	}, nil
}

// resolveConversation reuses the supplied conversation when it belongs to the
// user; any other id, or none, starts a fresh timestamp-titled conversation.
func (s *ChatService) resolveConversation(userID, conversationID string) (*store.Conversation, error) {
	if conversationID != "" {
		conv, err := s.store.GetConversationByID(conversationID, userID)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			return conv, nil
		}
	}
	title := fmt.Sprintf("Chat %s", time.Now().Format("2006-01-02 15:04"))
	return s.store.CreateConversation(userID, title)
}

// retrieveContext matches a prefix of the message against the user's item
// content and builds the context block for the generation prompt.
func (s *ChatService) retrieveContext(userID, message string) ([]Source, string, error) {
	query := message
	if runes := []rune(query); len(runes) > searchQueryLimit {
		query = string(runes[:searchQueryLimit])
	}

	items, err := s.store.SearchKnowledgeItemsByContent(userID, query, maxChatSources)
	if err != nil {
		return nil, "", fmt.Errorf("knowledge base search failed: %w", err)
	}

	sources := make([]Source, 0, len(items))
	blocks := make([]string, 0, len(items))
	for _, item := range items {
		sources = append(sources, Source{
			ID:      item.ID,
			Title:   item.Title,
			Summary: item.Summary,
			Type:    string(item.Type),
		})
		excerpt := item.Content
		if runes := []rune(excerpt); len(runes) > contextExcerptSize {
			excerpt = string(runes[:contextExcerptSize])
		}
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s\n%s...", item.Title, item.Summary, excerpt))
	}
	return sources, strings.Join(blocks, "\n\n"), nil
}
