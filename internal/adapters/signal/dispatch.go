package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Inbound event types.
const (
	inIdentify        = "identify"
	inWhoAmI          = "whoami"
	inPing            = "ping"
	inJoin            = "join"
	inLeave           = "leave"
	inJoinServer      = "joinServer"
	inLeaveServer     = "leaveServer"
	inTypingStart     = "typingStart"
	inTypingStop      = "typingStop"
	inWhiteboardDraw  = "whiteboardDraw"
	inWhiteboardClear = "whiteboardClear"
	inMarkRead        = "markRead"
	inCallJoin        = "callJoin"
	inCallLeave       = "callLeave"
	inOffer           = "offer"
	inAnswer          = "answer"
	inIceCandidate    = "iceCandidate"
	inScreenShareOn   = "screenShareStarted"
	inScreenShareOff  = "screenShareStopped"
	inSendMessage     = "sendMessage"
	inEditMessage     = "editMessage"
	inDeleteMessage   = "deleteMessage"
	inReact           = "react"
)

type handlerFunc func(ctx context.Context, id core.ConnID, raw []byte) error

func (ctl *SignalWSController) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		inIdentify:        ctl.handleIdentify,
		inWhoAmI:          ctl.handleWhoAmI,
		inPing:            ctl.handlePing,
		inJoin:            ctl.handleJoin,
		inLeave:           ctl.handleLeave,
		inJoinServer:      ctl.handleJoinServer,
		inLeaveServer:     ctl.handleLeaveServer,
		inTypingStart:     ctl.handleTyping(true),
		inTypingStop:      ctl.handleTyping(false),
		inWhiteboardDraw:  ctl.handleWhiteboard(core.EventWhiteboardDraw),
		inWhiteboardClear: ctl.handleWhiteboard(core.EventWhiteboardClear),
		inMarkRead:        ctl.handleMarkRead,
		inCallJoin:        ctl.handleCallJoin,
		inCallLeave:       ctl.handleCallLeave,
		inOffer:           ctl.handleRelay(core.EventOffer),
		inAnswer:          ctl.handleRelay(core.EventAnswer),
		inIceCandidate:    ctl.handleRelay(core.EventIceCandidate),
		inScreenShareOn:   ctl.handleScreenShare(true),
		inScreenShareOff:  ctl.handleScreenShare(false),
		inSendMessage:     ctl.handleSendMessage,
		inEditMessage:     ctl.handleEditMessage,
		inDeleteMessage:   ctl.handleDeleteMessage,
		inReact:           ctl.handleReact,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// dispatch routes one inbound frame. Failures become a nack to the sender
// and never end the read loop.
func (ctl *SignalWSController) dispatch(ctx context.Context, id core.ConnID, data []byte) {
	if !gjson.ValidBytes(data) {
		ctl.Orch.Nack(id, "", "", core.BadRequest("malformed json"))
		return
	}
	typ := gjson.GetBytes(data, "type").String()
	h, ok := ctl.handlers[typ]
	if !ok {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Str("type", typ).Msg("unknown signal")
		ctl.Orch.Nack(id, typ, "", core.BadRequest("unknown event type"))
		return
	}
	if err := h(ctx, id, data); err != nil {
		channel := domain.ChannelID(gjson.GetBytes(data, "channelId").String())
		ctl.Orch.Nack(id, typ, channel, err)
	}
}

// bind decodes raw into p and runs its validate tags.
func bind(raw []byte, p any) error {
	if err := json.Unmarshal(raw, p); err != nil {
		return core.BadRequest("bad payload")
	}
	if err := validate.Struct(p); err != nil {
		return core.BadRequest(err.Error())
	}
	return nil
}
