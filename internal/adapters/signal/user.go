package signal

import (
	"context"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type identifyPayload struct {
	Token string `json:"token" validate:"required"`
}

// handleIdentify binds the connection to the user named by the token.
// Identifying again replaces the previous user.
func (ctl *SignalWSController) handleIdentify(ctx context.Context, id core.ConnID, raw []byte) error {
	var p identifyPayload
	if err := bind(raw, &p); err != nil {
		return err
	}
	return ctl.identify(ctx, id, p.Token)
}

type whoAmIPayload struct {
	ConnID  core.ConnID      `json:"connectionId"`
	UserID  domain.UserID    `json:"userId,omitempty"`
	Rooms   []domain.RoomKey `json:"rooms"`
	Display *domain.Display  `json:"display,omitempty"`
}

func (ctl *SignalWSController) handleWhoAmI(ctx context.Context, id core.ConnID, _ []byte) error {
	resp := whoAmIPayload{ConnID: id, Rooms: ctl.Orch.Registry.Rooms(id)}
	if user, ok := ctl.Orch.Registry.ResolveConnectionUser(id); ok {
		resp.UserID = user
		if d, err := ctl.Orch.Registry.ResolveDisplay(ctx, user); err == nil {
			resp.Display = &d
		}
	}
	ctl.Orch.Send(id, inWhoAmI, resp)
	return nil
}
