package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type channelPayload struct {
	ChannelID domain.ChannelID `json:"channelId" validate:"required,max=128"`
}

type serverPayload struct {
	ServerID domain.ServerID `json:"serverId" validate:"required,max=128"`
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, id core.ConnID, raw []byte) error {
	var p channelPayload
	if err := bind(raw, &p); err != nil {
		return err
	}
	_, err := ctl.Orch.Join(ctx, id, p.ChannelID)
	return err
}

// handleLeave leaves one channel; the connection itself stays open.
func (ctl *SignalWSController) handleLeave(ctx context.Context, id core.ConnID, raw []byte) error {
	var p channelPayload
	if err := bind(raw, &p); err != nil {
		return err
	}
	return ctl.Orch.Leave(ctx, id, p.ChannelID)
}

func (ctl *SignalWSController) handleJoinServer(ctx context.Context, id core.ConnID, raw []byte) error {
	var p serverPayload
	if err := bind(raw, &p); err != nil {
		return err
	}
	return ctl.Orch.JoinServer(ctx, id, p.ServerID)
}

func (ctl *SignalWSController) handleLeaveServer(_ context.Context, id core.ConnID, raw []byte) error {
	var p serverPayload
	if err := bind(raw, &p); err != nil {
		return err
	}
	return ctl.Orch.LeaveServer(id, p.ServerID)
}

func (ctl *SignalWSController) handleTyping(start bool) handlerFunc {
	return func(ctx context.Context, id core.ConnID, raw []byte) error {
		var p channelPayload
		if err := bind(raw, &p); err != nil {
			return err
		}
		return ctl.Orch.Typing(ctx, id, p.ChannelID, start)
	}
}

type whiteboardPayload struct {
	ChannelID domain.ChannelID `json:"channelId" validate:"required"`
	Payload   json.RawMessage  `json:"payload"`
}

func (ctl *SignalWSController) handleWhiteboard(event string) handlerFunc {
	return func(_ context.Context, id core.ConnID, raw []byte) error {
		var p whiteboardPayload
		if err := bind(raw, &p); err != nil {
			return err
		}
		return ctl.Orch.Whiteboard(id, p.ChannelID, event, p.Payload)
	}
}

type markReadPayload struct {
	ChannelID domain.ChannelID `json:"channelId" validate:"required"`
	Timestamp *time.Time       `json:"timestamp"`
}

func (ctl *SignalWSController) handleMarkRead(ctx context.Context, id core.ConnID, raw []byte) error {
	var p markReadPayload
	if err := bind(raw, &p); err != nil {
		return err
	}
	_, err := ctl.Orch.MarkRead(ctx, id, p.ChannelID, p.Timestamp)
	return err
}
