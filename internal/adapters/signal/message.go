package signal

import (
	"context"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type sendMessagePayload struct {
	ChannelID    domain.ChannelID        `json:"channelId" validate:"required"`
	Content      string                  `json:"content" validate:"max=4000"`
	Files        []domain.FileAttachment `json:"files" validate:"dive"`
	ThreadID     domain.MessageID        `json:"threadId"`
	SuppressEcho bool                    `json:"suppressEcho"`
}

type messageRefPayload struct {
	MessageID domain.MessageID `json:"messageId" validate:"required"`
}

type editMessagePayload struct {
	MessageID domain.MessageID `json:"messageId" validate:"required"`
	Content   string           `json:"content" validate:"required,max=4000"`
}

type reactPayload struct {
	MessageID domain.MessageID `json:"messageId" validate:"required"`
	Emoji     string           `json:"emoji" validate:"required,max=32"`
}

func (ctl *SignalWSController) allow(id core.ConnID) error {
	if ctl.Limiter == nil {
		return nil
	}
	key, ok := ctl.Orch.Registry.ResolveConnectionUser(id)
	if !ok {
		key = domain.UserID(id)
	}
	if !ctl.Limiter.Allow(key) {
		return core.ErrRateLimited
	}
	return nil
}

func (ctl *SignalWSController) handleSendMessage(ctx context.Context, id core.ConnID, raw []byte) error {
	var p sendMessagePayload
	if err := bind(raw, &p); err != nil {
		return err
	}
	if err := ctl.allow(id); err != nil {
		return err
	}
	_, err := ctl.Orch.SendMessage(ctx, id, orch.MessageInput{
		ChannelID:    p.ChannelID,
		Content:      p.Content,
		Files:        p.Files,
		ThreadID:     p.ThreadID,
		SuppressEcho: p.SuppressEcho,
	})
	return err
}

func (ctl *SignalWSController) handleEditMessage(ctx context.Context, id core.ConnID, raw []byte) error {
	var p editMessagePayload
	if err := bind(raw, &p); err != nil {
		return err
	}
	_, err := ctl.Orch.EditMessage(ctx, id, p.MessageID, p.Content)
	return err
}

func (ctl *SignalWSController) handleDeleteMessage(ctx context.Context, id core.ConnID, raw []byte) error {
	var p messageRefPayload
	if err := bind(raw, &p); err != nil {
		return err
	}
	return ctl.Orch.DeleteMessage(ctx, id, p.MessageID)
}

func (ctl *SignalWSController) handleReact(ctx context.Context, id core.ConnID, raw []byte) error {
	var p reactPayload
	if err := bind(raw, &p); err != nil {
		return err
	}
	if err := ctl.allow(id); err != nil {
		return err
	}
	_, err := ctl.Orch.React(ctx, id, p.MessageID, p.Emoji)
	return err
}

