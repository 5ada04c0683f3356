package chat

import "context"

// UserScope is the service bound to one signed-in user, the shape the
// client-side controller talks to when it runs in the same process.
type UserScope struct {
	svc    *Service
	userID uint64
}

func (s *Service) ForUser(userID uint64) *UserScope {
	return &UserScope{svc: s, userID: userID}
}

func (u *UserScope) ListConversations(ctx context.Context) ([]Conversation, error) {
	return u.svc.ListConversations(ctx, u.userID)
}

func (u *UserScope) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return u.svc.GetConversation(ctx, u.userID, id)
}

func (u *UserScope) CreateConversation(ctx context.Context, in CreateConversationInput) (*Conversation, error) {
	return u.svc.CreateConversation(ctx, u.userID, in)
}

func (u *UserScope) UpdateConversation(ctx context.Context, id string, in UpdateConversationInput) (*Conversation, error) {
	return u.svc.UpdateConversation(ctx, u.userID, id, in)
}

func (u *UserScope) DeleteConversation(ctx context.Context, id string) error {
	return u.svc.DeleteConversation(ctx, u.userID, id)
}

func (u *UserScope) CreateMessage(ctx context.Context, in CreateMessageInput) (*Message, error) {
	return u.svc.CreateMessage(ctx, u.userID, in)
}
