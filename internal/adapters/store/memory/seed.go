package memory

import "github.com/dkeye/Huddle/internal/domain"

// SeedDemo fills an empty store with one server, a public and a private
// channel and two users so the dev profile is usable without databases.
func SeedDemo(s *Store) {
	const server domain.ServerID = "demo"
	s.PutUser("u-alice", domain.Display{Name: "Alice", Username: "alice"}, "release")
	s.PutUser("u-bob", domain.Display{Name: "Bob", Username: "bob"})
	s.SetRole(server, "u-alice", domain.RoleOwner)
	s.SetRole(server, "u-bob", domain.RoleMember)
	s.PutChannel(domain.Channel{
		ID: "general", Name: "general", Kind: domain.ChannelStandard, ServerID: server,
		PostPermission: domain.PostEveryone,
	})
	s.PutChannel(domain.Channel{
		ID: "staff", Name: "staff", Kind: domain.ChannelPrivateStandard, ServerID: server,
		IsPrivate: true, AllowedRoles: []domain.Role{domain.RoleAdmin}, PostPermission: domain.PostEveryone,
	})
	s.PutChannel(domain.Channel{
		ID: "announcements", Name: "announcements", Kind: domain.ChannelStandard, ServerID: server,
		PostPermission: domain.PostAdminOnly,
	})
}
