package app

import (
	"context"
	"errors"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// Gate resolves a user's role for a channel and applies the channel rules.
type Gate struct {
	Identity core.IdentityLookup
}

// Role returns the user's role in the channel's server. member is false when
// the user does not belong to that server. Direct channels have no server
// and everybody is a plain member there.
func (g Gate) Role(ctx context.Context, ch *domain.Channel, user domain.UserID) (domain.Role, bool, error) {
	if ch.IsDirect() || g.Identity == nil {
		return domain.RoleMember, true, nil
	}
	role, ok, err := g.Identity.GetRole(ctx, ch.ServerID, user)
	if err != nil {
		return "", false, core.Transient("get role", err)
	}
	if !ok {
		return domain.RoleMember, false, nil
	}
	return domain.ParseRole(string(role)), true, nil
}

// Access requires server membership and channel visibility.
func (g Gate) Access(ctx context.Context, ch *domain.Channel, user domain.UserID) (domain.Role, error) {
	role, member, err := g.Role(ctx, ch, user)
	if err != nil {
		return "", err
	}
	if !member || !CanAccessChannel(ch, user, role) {
		return "", core.ErrForbidden
	}
	return role, nil
}

// LoadChannel fetches a channel and classifies store failures.
func LoadChannel(ctx context.Context, store core.ChannelStore, id domain.ChannelID) (*domain.Channel, error) {
	if id == "" {
		return nil, core.BadRequest("channelId required")
	}
	ch, err := store.GetChannel(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		return nil, core.Transient("get channel", err)
	}
	return ch, nil
}
