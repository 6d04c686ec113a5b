package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type callJoinPayload struct {
	ChannelID   domain.ChannelID `json:"channelId" validate:"required"`
	DisplayName string           `json:"displayName" validate:"max=80"`
	ServerID    domain.ServerID  `json:"serverId"`
}

func (ctl *SignalWSController) handleCallJoin(ctx context.Context, id core.ConnID, raw []byte) error {
	var p callJoinPayload
	if err := bind(raw, &p); err != nil {
		return err
	}
	_, err := ctl.Orch.CallJoin(ctx, id, p.ChannelID, p.DisplayName, p.ServerID)
	return err
}

func (ctl *SignalWSController) handleCallLeave(_ context.Context, id core.ConnID, raw []byte) error {
	var p channelPayload
	if err := bind(raw, &p); err != nil {
		return err
	}
	return ctl.Orch.CallLeave(id, p.ChannelID)
}

type relayPayload struct {
	Target    core.ConnID      `json:"targetConnectionId" validate:"required"`
	ChannelID domain.ChannelID `json:"channelId"`
	Payload   json.RawMessage  `json:"payload"`
}

// handleRelay forwards the payload untouched. Its content is the peers' business.
func (ctl *SignalWSController) handleRelay(kind string) handlerFunc {
	return func(_ context.Context, id core.ConnID, raw []byte) error {
		var p relayPayload
		if err := bind(raw, &p); err != nil {
			return err
		}
		return ctl.Orch.Relay(kind, id, p.Target, p.ChannelID, p.Payload)
	}
}

func (ctl *SignalWSController) handleScreenShare(on bool) handlerFunc {
	return func(_ context.Context, id core.ConnID, raw []byte) error {
		var p channelPayload
		if err := bind(raw, &p); err != nil {
			return err
		}
		return ctl.Orch.ScreenShare(id, p.ChannelID, on)
	}
}
