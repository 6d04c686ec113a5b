package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	orch *orch.Orchestrator
}

type postRequest struct {
	Content  string                  `json:"content"`
	Files    []domain.FileAttachment `json:"files"`
	ThreadID domain.MessageID        `json:"threadId"`
}

type editRequest struct {
	Content string `json:"content" binding:"required"`
}

type reactRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

type readRequest struct {
	At *time.Time `json:"at"`
}

func statusFor(err error) int {
	switch core.Reason(err) {
	case "not_found":
		return http.StatusNotFound
	case "forbidden":
		return http.StatusForbidden
	case "bad_request":
		return http.StatusBadRequest
	case "rate_limited":
		return http.StatusTooManyRequests
	case "transient":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Str("module", "adapters.http").Str("path", c.FullPath()).Err(err).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error(), "reason": core.Reason(err)})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Stats())
}

func (h *handlers) postMessage(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, core.BadRequest(err.Error()))
		return
	}
	msg, err := h.orch.PostAs(c.Request.Context(), currentUser(c), orch.MessageInput{
		ChannelID: domain.ChannelID(c.Param("id")),
		Content:   req.Content,
		Files:     req.Files,
		ThreadID:  req.ThreadID,
	}, "")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *handlers) systemPost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, core.BadRequest(err.Error()))
		return
	}
	msg, err := h.orch.PostAs(c.Request.Context(), "", orch.MessageInput{
		ChannelID: domain.ChannelID(c.Param("id")),
		Content:   req.Content,
		Files:     req.Files,
		ThreadID:  req.ThreadID,
	}, "")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *handlers) history(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			fail(c, core.BadRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	var before *time.Time
	if s := c.Query("before"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			fail(c, core.BadRequest("before must be RFC3339"))
			return
		}
		before = &t
	}
	msgs, err := h.orch.Pipeline.History(c.Request.Context(), currentUser(c), domain.ChannelID(c.Param("id")), limit, before)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *handlers) getMessage(c *gin.Context) {
	ctx := c.Request.Context()
	msg, err := h.orch.Pipeline.Get(ctx, domain.MessageID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.access(c, msg.ChannelID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *handlers) editMessage(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, core.BadRequest(err.Error()))
		return
	}
	msg, err := h.orch.Pipeline.Edit(c.Request.Context(), currentUser(c), domain.MessageID(c.Param("id")), req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *handlers) deleteMessage(c *gin.Context) {
	if err := h.orch.Pipeline.Delete(c.Request.Context(), currentUser(c), domain.MessageID(c.Param("id"))); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) react(c *gin.Context) {
	var req reactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, core.BadRequest(err.Error()))
		return
	}
	msg, err := h.orch.Pipeline.React(c.Request.Context(), currentUser(c), domain.MessageID(c.Param("id")), req.Emoji)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *handlers) markRead(c *gin.Context) {
	var req readRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, core.BadRequest(err.Error()))
			return
		}
	}
	at, err := h.orch.MarkReadAs(c.Request.Context(), currentUser(c), domain.ChannelID(c.Param("id")), req.At, "")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channelId": c.Param("id"), "lastReadAt": at})
}

func (h *handlers) unread(c *gin.Context) {
	channel := domain.ChannelID(c.Param("id"))
	if err := h.access(c, channel); err != nil {
		fail(c, err)
		return
	}
	count, mentioned, err := h.orch.Reads.UnreadCount(c.Request.Context(), currentUser(c), channel)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channelId": channel, "count": count, "mentioned": mentioned})
}

func (h *handlers) callParticipants(c *gin.Context) {
	channel := domain.ChannelID(c.Param("id"))
	if err := h.access(c, channel); err != nil {
		fail(c, err)
		return
	}
	roster, ok := h.orch.Calls.Participants(channel)
	if !ok {
		roster = []core.Participant{}
	}
	c.JSON(http.StatusOK, gin.H{"channelId": channel, "active": ok, "participants": roster})
}

func (h *handlers) evictRoom(c *gin.Context) {
	h.orch.EvictRoom(c.Request.Context(), domain.RoomKey(c.Param("key")))
	c.Status(http.StatusNoContent)
}

func (h *handlers) access(c *gin.Context, channel domain.ChannelID) error {
	ctx := c.Request.Context()
	ch, err := app.LoadChannel(ctx, h.orch.Channels, channel)
	if err != nil {
		return err
	}
	_, err = h.orch.Gate.Access(ctx, ch, currentUser(c))
	return err
}
