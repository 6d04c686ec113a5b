package memory

import (
	"context"
	"slices"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

func (s *Store) Upsert(_ context.Context, st domain.ReadState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[readKey{st.UserID, st.ChannelID}] = st.LastReadAt
	return nil
}

func (s *Store) Get(_ context.Context, user domain.UserID, channel domain.ChannelID) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.reads[readKey{user, channel}]
	return t, ok, nil
}

func (s *Store) MarkOnline(_ context.Context, channel domain.ChannelID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online[channel] == nil {
		s.online[channel] = make(map[domain.UserID]struct{})
	}
	s.online[channel][user] = struct{}{}
	return nil
}

func (s *Store) MarkOffline(_ context.Context, channel domain.ChannelID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.online[channel], user)
	if len(s.online[channel]) == 0 {
		delete(s.online, channel)
	}
	return nil
}

// Online lists the users the presence mirror currently holds for channel.
func (s *Store) Online(channel domain.ChannelID) []domain.UserID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserID, 0, len(s.online[channel]))
	for u := range s.online[channel] {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}
