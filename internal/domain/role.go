package domain

import "strings"

type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// ParseRole maps anything unrecognised to member.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOwner, RoleAdmin, RoleModerator, RoleMember:
		return r
	default:
		return RoleMember
	}
}

type ServerID string

// ServerMembership holds the single role a user has in a server.
type ServerMembership struct {
	UserID   UserID   `json:"userId" bson:"user_id"`
	ServerID ServerID `json:"serverId" bson:"server_id"`
	Role     Role     `json:"role" bson:"role"`
}
