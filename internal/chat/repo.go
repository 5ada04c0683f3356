package chat

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateConversation(ctx context.Context, c *Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversationWithMessages loads the conversation and its messages in display order.
func (r *Repo) GetConversationWithMessages(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", id).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) GetConversationByShareToken(ctx context.Context, token string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("share_token = ? AND is_public = ?", token, true).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns the owner's conversations, most recently updated first.
func (r *Repo) ListConversations(ctx context.Context, userID uint64) ([]Conversation, error) {
	var out []Conversation
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) UpdateConversation(ctx context.Context, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now()
	return r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// DeleteConversation removes the messages and then the conversation in one transaction.
func (r *Repo) DeleteConversation(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
			return fmt.Errorf("deleting messages: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&Conversation{})
		if res.Error != nil {
			return fmt.Errorf("deleting conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repo) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) UpdateMessageContent(ctx context.Context, id, content, title string) error {
	return r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"content":    content,
			"title":      title,
			"updated_at": time.Now(),
		}).Error
}

func (r *Repo) DeleteMessage(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&Message{}).Error
}

type countDrift struct {
	ID           string
	MessageCount int
	Actual       int
}

// ReconcileMessageCounts rewrites message_count wherever it differs from the
// number of stored messages and returns how many conversations were fixed.
func (r *Repo) ReconcileMessageCounts(ctx context.Context) (int, error) {
	var drifts []countDrift
	err := r.db.WithContext(ctx).
		Table("conversations AS c").
		Select("c.id, c.message_count, COUNT(m.id) AS actual").
		Joins("LEFT JOIN messages AS m ON m.conversation_id = c.id").
		Group("c.id, c.message_count").
		Having("COUNT(m.id) <> c.message_count").
		Scan(&drifts).Error
	if err != nil {
		return 0, fmt.Errorf("scanning counts: %w", err)
	}
	for _, d := range drifts {
		// updated_at is left alone so the sidebar order does not jump
		if err := r.db.WithContext(ctx).Model(&Conversation{}).
			Where("id = ?", d.ID).
			UpdateColumn("message_count", d.Actual).Error; err != nil {
			return 0, fmt.Errorf("fixing %s: %w", d.ID, err)
		}
	}
	return len(drifts), nil
}
