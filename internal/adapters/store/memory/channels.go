package memory

import (
	"context"
	"slices"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// PutChannel adds or replaces a channel.
func (s *Store) PutChannel(ch domain.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneChannel(&ch)
	s.channels[ch.ID] = c
}

func (s *Store) GetChannel(_ context.Context, id domain.ChannelID) (*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneChannel(ch), nil
}

func (s *Store) AddChannelMember(_ context.Context, id domain.ChannelID, member domain.ChannelMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return core.ErrNotFound
	}
	if slices.ContainsFunc(ch.Members, func(m domain.ChannelMember) bool { return m.ID == member.ID }) {
		return nil
	}
	ch.Members = append(ch.Members, member)
	return nil
}

func cloneChannel(ch *domain.Channel) *domain.Channel {
	c := *ch
	c.AllowedRoles = slices.Clone(ch.AllowedRoles)
	c.AllowedMembers = slices.Clone(ch.AllowedMembers)
	c.Members = slices.Clone(ch.Members)
	return &c
}
