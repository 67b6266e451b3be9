package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway; a single connection keeps the
	// foreign_keys pragma in effect and avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        email TEXT UNIQUE,
        first_name TEXT,
        last_name TEXT,
        profile_image_url TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS knowledge_items (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        title TEXT NOT NULL,
        summary TEXT,
        content TEXT,
        type TEXT NOT NULL CHECK (type IN ('text', 'image', 'audio', 'video', 'document', 'link')),
        file_url TEXT,
        file_name TEXT,
        file_size INTEGER,
        mime_type TEXT,
        object_path TEXT,
        metadata TEXT, -- JSON object
        is_processed BOOLEAN DEFAULT FALSE,
        processing_error TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS tags (
        id TEXT PRIMARY KEY, -- UUID
        name TEXT NOT NULL,
        color TEXT DEFAULT '#3B82F6',
        user_id TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
        UNIQUE (user_id, name) -- tag identity is scoped per user
    );

    CREATE TABLE IF NOT EXISTS knowledge_item_tags (
        knowledge_item_id TEXT NOT NULL,
        tag_id TEXT NOT NULL,
        PRIMARY KEY (knowledge_item_id, tag_id),
        FOREIGN KEY (knowledge_item_id) REFERENCES knowledge_items (id) ON DELETE CASCADE,
        FOREIGN KEY (tag_id) REFERENCES tags (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        title TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS chat_messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        metadata TEXT, -- JSON object
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS user_ai_settings (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL UNIQUE,
        preferred_provider TEXT NOT NULL DEFAULT 'gemini',
        preferred_model TEXT NOT NULL DEFAULT 'gemini-2.5-flash',
        chat_settings TEXT, -- JSON object
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func marshalMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil
	}
	return m
}

// User methods

func (s *SQLiteStore) GetUserByID(id string) (*User, error) {
	var user User
	var email, first, last, image sql.NullString
	err := s.db.QueryRow(
		"SELECT id, email, first_name, last_name, profile_image_url, created_at, updated_at FROM users WHERE id = ?", id,
	).Scan(&user.ID, &email, &first, &last, &image, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	user.Email = email.String
	user.FirstName = first.String
	user.LastName = last.String
	user.ProfileImageURL = image.String
	return &user, nil
}

func (s *SQLiteStore) GetUserByEmail(email string) (*User, error) {
	var id string
	err := s.db.QueryRow("SELECT id FROM users WHERE email = ?", email).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	return s.GetUserByID(id)
}

// GetOrCreateUserByEmail returns the user with the given email, creating one
// with the supplied names if absent. The unique email constraint plus
// conflict-tolerant insert makes concurrent logins converge on one row.
func (s *SQLiteStore) GetOrCreateUserByEmail(email, firstName, lastName string) (*User, error) {
	now := time.Now()
	_, err := s.db.Exec(
		"INSERT INTO users (id, email, first_name, last_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (email) DO NOTHING",
		uuid.NewString(), email, firstName, lastName, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	user, err := s.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s missing after upsert", email)
	}
	return user, nil
}

// KnowledgeItem methods

func (s *SQLiteStore) CreateKnowledgeItem(item *KnowledgeItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	metadata, err := marshalMetadata(item.Metadata)
	if err != nil {
		return err
	}

	stmt, err := s.db.Prepare(`
        INSERT INTO knowledge_items
            (id, user_id, title, summary, content, type, file_url, file_name, file_size, mime_type, object_path, metadata, is_processed, processing_error, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare knowledge item insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(
		item.ID, item.UserID, item.Title, item.Summary, item.Content, item.Type,
		item.FileURL, item.FileName, item.FileSize, item.MimeType, item.ObjectPath,
		metadata, item.IsProcessed, item.ProcessingError, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to execute knowledge item insert: %w", err)
	}
	return nil
}

const knowledgeItemColumns = "id, user_id, title, summary, content, type, file_url, file_name, file_size, mime_type, object_path, metadata, is_processed, processing_error, created_at, updated_at"

func scanKnowledgeItem(row interface{ Scan(...any) error }) (*KnowledgeItem, error) {
	var item KnowledgeItem
	var summary, content, fileURL, fileName, mimeType, objectPath, metadata, processingError sql.NullString
	var fileSize sql.NullInt64
	err := row.Scan(
		&item.ID, &item.UserID, &item.Title, &summary, &content, &item.Type,
		&fileURL, &fileName, &fileSize, &mimeType, &objectPath,
		&metadata, &item.IsProcessed, &processingError, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Summary = summary.String
	item.Content = content.String
	item.FileURL = fileURL.String
	item.FileName = fileName.String
	item.FileSize = fileSize.Int64
	item.MimeType = mimeType.String
	item.ObjectPath = objectPath.String
	item.Metadata = unmarshalMetadata(metadata)
	item.ProcessingError = processingError.String
	return &item, nil
}

// GetKnowledgeItemByID returns the item only when it is owned by userID;
// items owned by other users are indistinguishable from missing ones.
func (s *SQLiteStore) GetKnowledgeItemByID(id, userID string) (*KnowledgeItem, error) {
	row := s.db.QueryRow(
		"SELECT "+knowledgeItemColumns+" FROM knowledge_items WHERE id = ? AND user_id = ?", id, userID,
	)
	item, err := scanKnowledgeItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found (or not owned)
		}
		return nil, fmt.Errorf("failed to get knowledge item: %w", err)
	}
	item.Tags, err = s.GetTagNamesForItem(item.ID)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *SQLiteStore) ListKnowledgeItems(userID string, limit, offset int) ([]KnowledgeItem, error) {
	rows, err := s.db.Query(
		"SELECT "+knowledgeItemColumns+" FROM knowledge_items WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?",
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge items: %w", err)
	}
	defer rows.Close()

	var items []KnowledgeItem
	for rows.Next() {
		item, err := scanKnowledgeItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge item row: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate knowledge items: %w", err)
	}
	for i := range items {
		items[i].Tags, err = s.GetTagNamesForItem(items[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

// SearchKnowledgeItemsByContent performs a case-insensitive substring match of
// query against item content, scoped to userID, in the store's natural order.
// No relevance ranking; this is deliberately not semantic search.
func (s *SQLiteStore) SearchKnowledgeItemsByContent(userID, query string, limit int) ([]KnowledgeItem, error) {
	rows, err := s.db.Query(
		"SELECT "+knowledgeItemColumns+" FROM knowledge_items WHERE user_id = ? AND content IS NOT NULL AND content <> '' AND instr(lower(content), lower(?)) > 0 LIMIT ?",
		userID, query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge items: %w", err)
	}
	defer rows.Close()

	var items []KnowledgeItem
	for rows.Next() {
		item, err := scanKnowledgeItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge item row: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// Tag methods

// GetOrCreateTag resolves the user-scoped tag by name, inserting it first if
// absent. The UNIQUE(user_id, name) constraint plus ON CONFLICT DO NOTHING
// keeps concurrent callers converging on a single row.
func (s *SQLiteStore) GetOrCreateTag(userID, name string) (*Tag, error) {
	_, err := s.db.Exec(
		"INSERT INTO tags (id, name, user_id, created_at) VALUES (?, ?, ?, ?) ON CONFLICT (user_id, name) DO NOTHING",
		uuid.NewString(), name, userID, time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tag: %w", err)
	}

	var tag Tag
	err = s.db.QueryRow(
		"SELECT id, name, color, user_id, created_at FROM tags WHERE user_id = ? AND name = ?", userID, name,
	).Scan(&tag.ID, &tag.Name, &tag.Color, &tag.UserID, &tag.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get tag after upsert: %w", err)
	}
	return &tag, nil
}

func (s *SQLiteStore) AttachTag(itemID, tagID string) error {
	_, err := s.db.Exec(
		"INSERT INTO knowledge_item_tags (knowledge_item_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		itemID, tagID,
	)
	if err != nil {
		return fmt.Errorf("failed to attach tag: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTagNamesForItem(itemID string) ([]string, error) {
	rows, err := s.db.Query(`
        SELECT t.name FROM tags t
        JOIN knowledge_item_tags it ON it.tag_id = t.id
        WHERE it.knowledge_item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query item tags: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) ListTags(userID string) ([]Tag, error) {
	rows, err := s.db.Query(
		"SELECT id, name, color, user_id, created_at FROM tags WHERE user_id = ?", userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Color, &tag.UserID, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// Conversation methods

func (s *SQLiteStore) CreateConversation(userID, title string) (*Conversation, error) {
	conv := &Conversation{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  title,
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := s.db.Exec(
		"INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) GetConversationByID(id, userID string) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRow(
		"SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?", id, userID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *SQLiteStore) ListConversations(userID string) ([]Conversation, error) {
	rows, err := s.db.Query(`
        SELECT c.id, c.user_id, c.title, c.created_at, c.updated_at,
               (SELECT COUNT(*) FROM chat_messages m WHERE m.conversation_id = c.id) AS message_count
        FROM conversations c
        WHERE c.user_id = ?
        ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt, &conv.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (s *SQLiteStore) TouchConversation(id string) error {
	_, err := s.db.Exec("UPDATE conversations SET updated_at = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// ChatMessage methods

func (s *SQLiteStore) CreateChatMessage(msg *ChatMessage) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now()

	metadata, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return err
	}

	stmt, err := s.db.Prepare("INSERT INTO chat_messages (id, conversation_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(msg.ID, msg.ConversationID, msg.Role, msg.Content, metadata, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMessagesByConversation(conversationID string) ([]ChatMessage, error) {
	rows, err := s.db.Query(
		"SELECT id, conversation_id, role, content, metadata, created_at FROM chat_messages WHERE conversation_id = ? ORDER BY created_at ASC",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		var metadata sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Metadata = unmarshalMetadata(metadata)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AI settings methods

func (s *SQLiteStore) GetOrCreateAISettings(userID string) (*UserAISettings, error) {
	_, err := s.db.Exec(
		"INSERT INTO user_ai_settings (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT (user_id) DO NOTHING",
		uuid.NewString(), userID, time.Now(), time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ai settings: %w", err)
	}

	var settings UserAISettings
	var chatSettings sql.NullString
	err = s.db.QueryRow(
		"SELECT id, user_id, preferred_provider, preferred_model, chat_settings, created_at, updated_at FROM user_ai_settings WHERE user_id = ?", userID,
	).Scan(&settings.ID, &settings.UserID, &settings.PreferredProvider, &settings.PreferredModel, &chatSettings, &settings.CreatedAt, &settings.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get ai settings: %w", err)
	}
	settings.ChatSettings = unmarshalMetadata(chatSettings)
	return &settings, nil
}

func (s *SQLiteStore) UpdateAISettings(userID, provider, model string, chatSettings map[string]any) (*UserAISettings, error) {
	if _, err := s.GetOrCreateAISettings(userID); err != nil {
		return nil, err
	}
	raw, err := marshalMetadata(chatSettings)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		"UPDATE user_ai_settings SET preferred_provider = ?, preferred_model = ?, chat_settings = ?, updated_at = ? WHERE user_id = ?",
		provider, model, raw, time.Now(), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update ai settings: %w", err)
	}
	return s.GetOrCreateAISettings(userID)
}
