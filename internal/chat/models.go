package chat

import "time"

type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

type ContentType string

const (
	ContentText ContentType = "text"
	ContentCode ContentType = "code"
)

type Conversation struct {
	ID            string     `gorm:"primaryKey;type:varchar(26)" json:"id"`
	UserID        uint64     `gorm:"index:idx_conv_user_updated,priority:1;not null" json:"user_id"`
	Title         string     `gorm:"type:varchar(255);not null" json:"title"`
	IsPublic      bool       `gorm:"not null;default:false" json:"is_public"`
	ShareToken    *string    `gorm:"type:varchar(64);uniqueIndex" json:"share_token,omitempty"`
	MessageCount  int        `gorm:"not null;default:0" json:"message_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `gorm:"index:idx_conv_user_updated,priority:2" json:"updated_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`

	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

type Message struct {
	ID             string      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	ConversationID string      `gorm:"type:varchar(26);not null;index:idx_msg_conv_created,priority:1" json:"conversation_id"`
	UserID         uint64      `gorm:"index;not null" json:"user_id"`
	Title          string      `gorm:"type:varchar(64)" json:"title"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	Author         Author      `gorm:"type:varchar(16);not null" json:"author"`
	Position       int         `gorm:"not null;default:0" json:"position"`
	ContentType    ContentType `gorm:"type:varchar(16);not null;default:text" json:"content_type"`
	CreatedAt      time.Time   `gorm:"index:idx_msg_conv_created,priority:2" json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (Message) TableName() string { return "messages" }

func (m Message) IsAssistant() bool { return m.Author == AuthorAssistant }

type CreateConversationInput struct {
	Title      string  `json:"title"`
	IsPublic   bool    `json:"is_public"`
	ShareToken *string `json:"share_token,omitempty"`
}

// UpdateConversationInput carries only the fields to change.
type UpdateConversationInput struct {
	Title         *string    `json:"title,omitempty"`
	IsPublic      *bool      `json:"is_public,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	MessageCount  *int       `json:"message_count,omitempty"`
}

type CreateMessageInput struct {
	ConversationID string      `json:"conversation_id"`
	Title          string      `json:"title"`
	Content        string      `json:"content"`
	Author         Author      `json:"author"`
	Position       int         `json:"position"`
	ContentType    ContentType `json:"content_type,omitempty"`
}
