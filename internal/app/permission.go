package app

import (
	"slices"

	"github.com/dkeye/Huddle/internal/domain"
)

// Owner and admin bypass every channel-level restriction. This is the only
// place that rule lives.
func bypassesChannelRules(role domain.Role) bool {
	return role == domain.RoleOwner || role == domain.RoleAdmin
}

// CanAccessChannel decides whether a user holding role may see ch.
func CanAccessChannel(ch *domain.Channel, user domain.UserID, role domain.Role) bool {
	if ch == nil {
		return false
	}
	if !ch.IsPrivate {
		return true
	}
	role = domain.ParseRole(string(role))
	if user != "" && slices.Contains(ch.AllowedMembers, user) {
		return true
	}
	if slices.Contains(ch.AllowedRoles, role) {
		return true
	}
	return bypassesChannelRules(role)
}

// CanPost applies the channel's post permission. Unknown values behave like everyone.
func CanPost(ch *domain.Channel, role domain.Role) bool {
	if ch == nil {
		return false
	}
	role = domain.ParseRole(string(role))
	switch ch.PostPermission {
	case domain.PostAdminOnly:
		return bypassesChannelRules(role)
	case domain.PostOwnerOnly:
		return role == domain.RoleOwner
	default:
		return true
	}
}

// CanModerate reports whether role may edit or delete other users' messages.
func CanModerate(role domain.Role) bool {
	switch domain.ParseRole(string(role)) {
	case domain.RoleOwner, domain.RoleAdmin, domain.RoleModerator:
		return true
	default:
		return false
	}
}
