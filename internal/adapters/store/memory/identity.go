package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// PutUser adds or replaces a user profile.
func (s *Store) PutUser(id domain.UserID, d domain.Display, keywords ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.users[id]; ok {
		delete(s.byUsername, strings.ToLower(old.display.Username))
	}
	s.users[id] = userRecord{display: d, keywords: keywords}
	if d.Username != "" {
		s.byUsername[strings.ToLower(d.Username)] = id
	}
}

// SetRole makes user a member of server.
func (s *Store) SetRole(server domain.ServerID, user domain.UserID, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[server] == nil {
		s.roles[server] = make(map[domain.UserID]domain.Role)
	}
	s.roles[server][user] = role
}

func (s *Store) GetDisplay(_ context.Context, user domain.UserID) (domain.Display, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[user]
	if !ok {
		return domain.Display{}, core.ErrNotFound
	}
	return u.display, nil
}

func (s *Store) GetRole(_ context.Context, server domain.ServerID, user domain.UserID) (domain.Role, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[server][user]
	return role, ok, nil
}

func (s *Store) FindByUsername(_ context.Context, username string) (domain.UserID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[strings.ToLower(username)]
	return id, ok, nil
}

func (s *Store) KeywordWatchers(context.Context) ([]domain.KeywordWatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.KeywordWatch
	for id, u := range s.users {
		if len(u.keywords) == 0 {
			continue
		}
		out = append(out, domain.KeywordWatch{UserID: id, Keywords: slices.Clone(u.keywords)})
	}
	slices.SortFunc(out, func(a, b domain.KeywordWatch) int { return strings.Compare(string(a.UserID), string(b.UserID)) })
	return out, nil
}

func (s *Store) GetServerMembers(_ context.Context, server domain.ServerID) ([]domain.ServerMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ServerMembership, 0, len(s.roles[server]))
	for user, role := range s.roles[server] {
		out = append(out, domain.ServerMembership{UserID: user, ServerID: server, Role: role})
	}
	slices.SortFunc(out, func(a, b domain.ServerMembership) int { return strings.Compare(string(a.UserID), string(b.UserID)) })
	return out, nil
}
