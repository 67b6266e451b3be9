package store

import "time"

// ItemType classifies a knowledge item's content.
type ItemType string

const (
	ItemTypeText     ItemType = "text"
	ItemTypeImage    ItemType = "image"
	ItemTypeAudio    ItemType = "audio"
	ItemTypeVideo    ItemType = "video"
	ItemTypeDocument ItemType = "document"
	ItemTypeLink     ItemType = "link"
)

// ValidItemType reports whether t is one of the known item types.
func ValidItemType(t ItemType) bool {
	switch t {
	case ItemTypeText, ItemTypeImage, ItemTypeAudio, ItemTypeVideo, ItemTypeDocument, ItemTypeLink:
		return true
	}
	return false
}

// Message roles within a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	ProfileImageURL string    `json:"profileImageUrl"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type KnowledgeItem struct {
	ID              string         `json:"id"`
	UserID          string         `json:"-"`
	Title           string         `json:"title"`
	Summary         string         `json:"summary"`
	Content         string         `json:"content"`
	Type            ItemType       `json:"type"`
	FileURL         string         `json:"fileUrl"`
	FileName        string         `json:"fileName"`
	FileSize        int64          `json:"fileSize"`
	MimeType        string         `json:"mimeType"`
	ObjectPath      string         `json:"objectPath"`
	Metadata        map[string]any `json:"metadata"`
	IsProcessed     bool           `json:"isProcessed"`
	ProcessingError string         `json:"processingError,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Tags            []string       `json:"tags"`
}

type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	UserID    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// MessageCount is populated on listings only.
	MessageCount int `json:"message_count"`
}

type ChatMessage struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"-"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"createdAt"`
}

type UserAISettings struct {
	ID                string         `json:"id"`
	UserID            string         `json:"-"`
	PreferredProvider string         `json:"preferredProvider"`
	PreferredModel    string         `json:"preferredModel"`
	ChatSettings      map[string]any `json:"chatSettings"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}
