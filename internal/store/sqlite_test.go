package store

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s *SQLiteStore, email string) *User {
	t.Helper()
	user, err := s.GetOrCreateUserByEmail(email, "Demo", "User")
	require.NoError(t, err)
	return user
}

func TestGetOrCreateUserByEmail(t *testing.T) {
	s := newTestStore(t)

	first, err := s.GetOrCreateUserByEmail("demo@example.com", "Demo", "User")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "demo@example.com", first.Email)
	assert.Equal(t, "Demo", first.FirstName)

	second, err := s.GetOrCreateUserByEmail("demo@example.com", "Other", "Name")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "repeated login must resolve to the same user")

	missing, err := s.GetUserByID("no-such-id")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestKnowledgeItemTagRoundTrip(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "tags@example.com")

	item := &KnowledgeItem{
		UserID:      user.ID,
		Title:       "My Notes",
		Type:        ItemTypeText,
		Metadata:    map[string]any{"origin": "manual"},
		IsProcessed: true,
	}
	require.NoError(t, s.CreateKnowledgeItem(item))

	for _, name := range []string{"a", "b"} {
		tag, err := s.GetOrCreateTag(user.ID, name)
		require.NoError(t, err)
		require.NoError(t, s.AttachTag(item.ID, tag.ID))
	}

	got, err := s.GetKnowledgeItemByID(item.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.ElementsMatch(t, []string{"a", "b"}, got.Tags)
	assert.Equal(t, "My Notes", got.Title)
	assert.True(t, got.IsProcessed)
	assert.Equal(t, "manual", got.Metadata["origin"])
}

func TestGetKnowledgeItemOwnershipIsNotFound(t *testing.T) {
	s := newTestStore(t)
	owner := newTestUser(t, s, "owner@example.com")
	other := newTestUser(t, s, "other@example.com")

	item := &KnowledgeItem{UserID: owner.ID, Title: "Private", Type: ItemTypeText}
	require.NoError(t, s.CreateKnowledgeItem(item))

	got, err := s.GetKnowledgeItemByID(item.ID, other.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "another user's item must look identical to a missing one")
}

func TestGetOrCreateTagConcurrent(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "race@example.com")

	const workers = 10
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag, err := s.GetOrCreateTag(user.ID, "shared")
			assert.NoError(t, err)
			if tag != nil {
				ids[i] = tag.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id, "all concurrent callers must converge on one tag row")
	}

	tags, err := s.ListTags(user.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "shared", tags[0].Name)
	assert.Equal(t, "#3B82F6", tags[0].Color)
}

func TestSearchKnowledgeItemsByContent(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "search@example.com")
	other := newTestUser(t, s, "searcher2@example.com")

	for i := 0; i < 7; i++ {
		item := &KnowledgeItem{
			UserID:  user.ID,
			Title:   "doc",
			Content: "All about Gophers and Go routines",
			Type:    ItemTypeDocument,
		}
		require.NoError(t, s.CreateKnowledgeItem(item))
	}
	// Same content, different owner: must never appear in user's results.
	require.NoError(t, s.CreateKnowledgeItem(&KnowledgeItem{
		UserID:  other.ID,
		Title:   "foreign",
		Content: "All about Gophers",
		Type:    ItemTypeDocument,
	}))
	// No content: not searchable.
	require.NoError(t, s.CreateKnowledgeItem(&KnowledgeItem{
		UserID: user.ID,
		Title:  "empty",
		Type:   ItemTypeText,
	}))

	results, err := s.SearchKnowledgeItemsByContent(user.ID, "gophers", 5)
	require.NoError(t, err)
	assert.Len(t, results, 5, "results are capped at the supplied limit")
	for _, item := range results {
		assert.Equal(t, user.ID, item.UserID)
		assert.Equal(t, "doc", item.Title)
	}

	none, err := s.SearchKnowledgeItemsByContent(user.ID, "unrelated topic", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestConversationsAndMessages(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "chat@example.com")

	conv, err := s.CreateConversation(user.ID, "Chat 2025-08-25 10:00")
	require.NoError(t, err)

	userMsg := ChatMessage{ConversationID: conv.ID, Role: RoleUser, Content: "hello"}
	require.NoError(t, s.CreateChatMessage(&userMsg))
	assistantMsg := ChatMessage{
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Content:        "hi there",
		Metadata:       map[string]any{"agent_used": "ConversationAgent"},
	}
	require.NoError(t, s.CreateChatMessage(&assistantMsg))

	messages, err := s.ListMessagesByConversation(conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, RoleAssistant, messages[1].Role)
	assert.False(t, messages[1].CreatedAt.Before(messages[0].CreatedAt))
	assert.Equal(t, "ConversationAgent", messages[1].Metadata["agent_used"])

	convs, err := s.ListConversations(user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 2, convs[0].MessageCount)

	// Ownership check doubles as existence check.
	other := newTestUser(t, s, "intruder@example.com")
	got, err := s.GetConversationByID(conv.ID, other.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAISettingsDefaultsAndUpdate(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "settings@example.com")

	settings, err := s.GetOrCreateAISettings(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "gemini", settings.PreferredProvider)
	assert.Equal(t, "gemini-2.5-flash", settings.PreferredModel)

	updated, err := s.UpdateAISettings(user.ID, "openai", "gpt-4o", map[string]any{"temperature": 0.2})
	require.NoError(t, err)
	assert.Equal(t, "openai", updated.PreferredProvider)
	assert.Equal(t, "gpt-4o", updated.PreferredModel)
	assert.Equal(t, 0.2, updated.ChatSettings["temperature"])

	again, err := s.GetOrCreateAISettings(user.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.ID, again.ID)
	assert.Equal(t, "openai", again.PreferredProvider)
}
