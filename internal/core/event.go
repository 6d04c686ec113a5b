package core

import "encoding/json"

// Event names delivered to clients.
const (
	EventJoined           = "joined"
	EventLeft             = "left"
	EventMemberJoined     = "memberJoined"
	EventMemberLeft       = "memberLeft"
	EventMessage          = "message"
	EventMessageEdited    = "messageEdited"
	EventMessageDeleted   = "messageDeleted"
	EventReactionAdded    = "reactionAdded"
	EventTypingStart      = "typingStart"
	EventTypingStop       = "typingStop"
	EventUserJoined       = "userJoined"
	EventUserLeft         = "userLeft"
	EventCallParticipants = "callParticipants"
	EventOffer            = "offer"
	EventAnswer           = "answer"
	EventIceCandidate     = "iceCandidate"
	EventScreenShareOn    = "screenShareStarted"
	EventScreenShareOff   = "screenShareStopped"
	EventVoiceState       = "voiceStateUpdate"
	EventUserReadUpdate   = "userReadUpdate"
	EventWhiteboardDraw   = "whiteboardDraw"
	EventWhiteboardClear  = "whiteboardClear"
	EventServerJoined     = "serverJoined"
	EventServerLeft       = "serverLeft"
	EventIdentified       = "identified"
	EventNack             = "nack"
	EventPong             = "pong"
)

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Encode wraps data into the outbound envelope.
func Encode(eventType string, data any) (Frame, error) {
	return json.Marshal(envelope{Type: eventType, Data: data})
}
