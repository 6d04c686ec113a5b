package orch

import (
	"context"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// MessageInput is a post as submitted by a client.
type MessageInput struct {
	ChannelID    domain.ChannelID
	Content      string
	Files        []domain.FileAttachment
	ThreadID     domain.MessageID
	SuppressEcho bool
}

// SendMessage posts on behalf of the connection's user.
func (o *Orchestrator) SendMessage(ctx context.Context, id core.ConnID, in MessageInput) (*domain.Message, error) {
	user, err := o.user(id)
	if err != nil {
		return nil, err
	}
	return o.PostAs(ctx, user, in, id)
}

// PostAs posts on behalf of user. An empty user posts as the system and
// bypasses the permission checks.
func (o *Orchestrator) PostAs(ctx context.Context, user domain.UserID, in MessageInput, origin core.ConnID) (*domain.Message, error) {
	sender := domain.Sender{Name: "System", Avatar: "S"}
	if user != "" {
		d := o.display(ctx, user)
		sender = domain.Sender{ID: user, Name: d.Name, Avatar: d.Avatar}
	}
	return o.Pipeline.Post(ctx, app.PostInput{
		ChannelID:    in.ChannelID,
		Sender:       sender,
		Content:      in.Content,
		Files:        in.Files,
		ThreadID:     in.ThreadID,
		Origin:       origin,
		SuppressEcho: in.SuppressEcho,
	})
}

func (o *Orchestrator) EditMessage(ctx context.Context, id core.ConnID, msg domain.MessageID, content string) (*domain.Message, error) {
	user, err := o.user(id)
	if err != nil {
		return nil, err
	}
	return o.Pipeline.Edit(ctx, user, msg, content)
}

func (o *Orchestrator) DeleteMessage(ctx context.Context, id core.ConnID, msg domain.MessageID) error {
	user, err := o.user(id)
	if err != nil {
		return err
	}
	return o.Pipeline.Delete(ctx, user, msg)
}

func (o *Orchestrator) React(ctx context.Context, id core.ConnID, msg domain.MessageID, emoji string) (*domain.Message, error) {
	user, err := o.user(id)
	if err != nil {
		return nil, err
	}
	return o.Pipeline.React(ctx, user, msg, emoji)
}
