package core

import "github.com/dkeye/Huddle/internal/domain"

// ConnID identifies one live transport session. It is not a user.
type ConnID string

// Sender delivers a frame to a single connection.
type Sender interface {
	Send(id ConnID, f Frame) error
}

// Participant is one entry of a call roster.
type Participant struct {
	ConnID        ConnID        `json:"connectionId"`
	UserID        domain.UserID `json:"userId,omitempty"`
	DisplayName   string        `json:"displayName"`
	ScreenSharing bool          `json:"screenSharing"`
}
