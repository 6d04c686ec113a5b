package domain

import "strings"

type ChannelID string

type ChannelKind string

const (
	ChannelStandard        ChannelKind = "standard"
	ChannelPrivateStandard ChannelKind = "private_standard"
	ChannelDirect          ChannelKind = "direct"
	ChannelGroupDirect     ChannelKind = "group_direct"
)

type PostPermission string

const (
	PostEveryone  PostPermission = "everyone"
	PostAdminOnly PostPermission = "admin_only"
	PostOwnerOnly PostPermission = "owner_only"
)

// Channel is read-only to the core; it is mutated by the server-management service.
// AllowedRoles and AllowedMembers only matter when IsPrivate is set.
type Channel struct {
	ID             ChannelID       `json:"id" bson:"_id"`
	Name           string          `json:"name" bson:"name"`
	Kind           ChannelKind     `json:"kind" bson:"kind"`
	ServerID       ServerID        `json:"serverId,omitempty" bson:"server_id,omitempty"`
	IsPrivate      bool            `json:"isPrivate" bson:"is_private"`
	AllowedRoles   []Role          `json:"allowedRoles,omitempty" bson:"allowed_roles,omitempty"`
	AllowedMembers []UserID        `json:"allowedMembers,omitempty" bson:"allowed_members,omitempty"`
	PostPermission PostPermission  `json:"postPermission" bson:"post_permission"`
	Members        []ChannelMember `json:"members,omitempty" bson:"members,omitempty"`
}

// IsDirect reports whether the channel lives outside any server.
func (c *Channel) IsDirect() bool {
	return c.Kind == ChannelDirect || c.Kind == ChannelGroupDirect || c.ServerID == ""
}

// ChannelMember is the persisted membership record written on join.
type ChannelMember struct {
	ID     UserID `json:"id" bson:"id"`
	Name   string `json:"name" bson:"name"`
	Avatar string `json:"avatar" bson:"avatar"`
	Role   Role   `json:"role" bson:"role"`
}

// RoomKey identifies a fan-out set. Channel rooms use the channel id,
// server-wide rooms are prefixed.
type RoomKey string

const serverRoomPrefix = "server:"

func ChannelRoom(id ChannelID) RoomKey { return RoomKey(id) }

func ServerRoom(id ServerID) RoomKey { return RoomKey(serverRoomPrefix + string(id)) }

func (k RoomKey) IsServer() bool {
	return strings.HasPrefix(string(k), serverRoomPrefix)
}

// Channel returns the channel id for channel rooms.
func (k RoomKey) Channel() (ChannelID, bool) {
	if k.IsServer() || k == "" {
		return "", false
	}
	return ChannelID(k), true
}
