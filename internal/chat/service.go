package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"gorm.io/gorm"
)

var (
	errConversationNotFound = common.NotFound("conversation not found")
	errMessageNotFound      = common.NotFound("message not found")
)

type Service struct {
	repo *Repo
	sink EventSink
	now  func() time.Time
}

func NewService(repo *Repo, sink EventSink) *Service {
	if sink == nil {
		sink = nopSink{}
	}
	return &Service{repo: repo, sink: sink, now: time.Now}
}

func newShareToken() *string {
	t := uuid.NewString()
	return &t
}

func (s *Service) CreateConversation(ctx context.Context, userID uint64, in CreateConversationInput) (*Conversation, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = DefaultTitle(s.now())
	}
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	conv := &Conversation{
		ID:         id,
		UserID:     userID,
		Title:      title,
		IsPublic:   in.IsPublic,
		ShareToken: in.ShareToken,
	}
	if conv.ShareToken != nil && strings.TrimSpace(*conv.ShareToken) == "" {
		conv.ShareToken = nil
	}
	if conv.IsPublic && conv.ShareToken == nil {
		conv.ShareToken = newShareToken()
	}

	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context, userID uint64) ([]Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

// owned loads a conversation and hides other users' conversations behind not-found.
func (s *Service) owned(ctx context.Context, userID uint64, id string) (*Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errConversationNotFound
		}
		return nil, err
	}
	if conv.UserID != userID {
		return nil, errConversationNotFound
	}
	return conv, nil
}

func (s *Service) ValidateConversationOwner(ctx context.Context, userID uint64, id string) error {
	_, err := s.owned(ctx, userID, id)
	return err
}

// GetConversation returns the conversation with its messages in display order.
func (s *Service) GetConversation(ctx context.Context, userID uint64, id string) (*Conversation, error) {
	conv, err := s.repo.GetConversationWithMessages(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errConversationNotFound
		}
		return nil, err
	}
	if conv.UserID != userID {
		return nil, errConversationNotFound
	}
	return conv, nil
}

// GetShared returns a public conversation by its share token.
func (s *Service) GetShared(ctx context.Context, token string) (*Conversation, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errConversationNotFound
	}
	conv, err := s.repo.GetConversationByShareToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

func (s *Service) UpdateConversation(ctx context.Context, userID uint64, id string, in UpdateConversationInput) (*Conversation, error) {
	conv, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if in.Title != nil {
		if err := ValidateTitle(*in.Title); err != nil {
			return nil, err
		}
		fields["title"] = strings.TrimSpace(*in.Title)
	}
	if in.IsPublic != nil {
		fields["is_public"] = *in.IsPublic
		if *in.IsPublic && conv.ShareToken == nil {
			fields["share_token"] = uuid.NewString()
		}
	}
	if in.LastMessageAt != nil {
		fields["last_message_at"] = *in.LastMessageAt
	}
	if in.MessageCount != nil {
		if *in.MessageCount < 0 {
			return nil, common.Validation("message_count", "Message count cannot be negative")
		}
		fields["message_count"] = *in.MessageCount
	}

	if err := s.repo.UpdateConversation(ctx, id, fields); err != nil {
		return nil, err
	}
	updated, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	s.sink.Publish(ctx, Event{Type: EventConversationUpdated, ConversationID: id, UserID: userID, At: s.now()})
	return updated, nil
}

func (s *Service) DeleteConversation(ctx context.Context, userID uint64, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteConversation(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errConversationNotFound
		}
		return err
	}
	s.sink.Publish(ctx, Event{Type: EventConversationDeleted, ConversationID: id, UserID: userID, At: s.now()})
	return nil
}

func (s *Service) CreateMessage(ctx context.Context, userID uint64, in CreateMessageInput) (*Message, error) {
	if _, err := s.owned(ctx, userID, in.ConversationID); err != nil {
		return nil, err
	}
	if err := ValidateMessage(in.Content); err != nil {
		return nil, err
	}

	author := in.Author
	switch author {
	case "":
		author = AuthorUser
	case AuthorUser, AuthorAssistant:
	default:
		return nil, common.Validation("author", "Author must be user or assistant")
	}
	contentType := in.ContentType
	switch contentType {
	case "":
		contentType = ContentText
	case ContentText, ContentCode:
	default:
		return nil, common.Validation("content_type", "Content type must be text or code")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = MessageTitle(in.Content)
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	msg := &Message{
		ID:             id,
		ConversationID: in.ConversationID,
		UserID:         userID,
		Title:          MessageTitle(title),
		Content:        in.Content,
		Author:         author,
		Position:       in.Position,
		ContentType:    contentType,
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.sink.Publish(ctx, Event{Type: EventMessageCreated, ConversationID: msg.ConversationID, UserID: userID, Message: msg, At: s.now()})
	return msg, nil
}

func (s *Service) ownedMessage(ctx context.Context, userID uint64, id string) (*Message, error) {
	msg, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errMessageNotFound
		}
		return nil, err
	}
	if msg.UserID != userID {
		return nil, errMessageNotFound
	}
	return msg, nil
}

func (s *Service) UpdateMessage(ctx context.Context, userID uint64, id string, content string) (*Message, error) {
	msg, err := s.ownedMessage(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateMessage(content); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateMessageContent(ctx, id, content, MessageTitle(content)); err != nil {
		return nil, err
	}
	updated, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	s.sink.Publish(ctx, Event{Type: EventMessageUpdated, ConversationID: msg.ConversationID, UserID: userID, Message: updated, At: s.now()})
	return updated, nil
}

func (s *Service) DeleteMessage(ctx context.Context, userID uint64, id string) error {
	msg, err := s.ownedMessage(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteMessage(ctx, id); err != nil {
		return err
	}
	s.sink.Publish(ctx, Event{Type: EventMessageDeleted, ConversationID: msg.ConversationID, UserID: userID, Message: msg, At: s.now()})
	return nil
}

// ReconcileMessageCounts repairs denormalized counters that drifted from the stored messages.
func (s *Service) ReconcileMessageCounts(ctx context.Context) (int, error) {
	return s.repo.ReconcileMessageCounts(ctx)
}
