package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/chatcore-server/internal/core"
	"github.com/vovakirdan/chatcore-server/internal/proto"
	"github.com/vovakirdan/chatcore-server/internal/store"
)

// maxHistoryLimit caps the ?limit query parameter.
const maxHistoryLimit = 500

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChannelHandlers serves the read-only channel and history endpoints.
type ChannelHandlers struct {
	store        store.Store
	historyLimit int
	log          *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(st store.Store, historyLimit int, logger *zerolog.Logger) *ChannelHandlers {
	if historyLimit <= 0 {
		historyLimit = core.DefaultHistoryLimit
	}
	return &ChannelHandlers{
		store:        st,
		historyLimit: historyLimit,
		log:          logger,
	}
}

type messagesQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ListChannels lists every channel.
// GET /api/channels
func (h *ChannelHandlers) ListChannels(c *gin.Context) {
	channels, err := h.store.ListChannels(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list channels")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := lo.Map(channels, func(ch *store.Channel, _ int) proto.ChannelInfo {
		return proto.ChannelInfo{
			ID:          ch.ID,
			Name:        ch.Name,
			Description: ch.DescriptionOrEmpty(),
		}
	})
	c.JSON(http.StatusOK, response)
}

// ListMessages returns the most recent messages of a channel, oldest first.
// GET /api/channels/:id/messages?limit=N
func (h *ChannelHandlers) ListMessages(c *gin.Context) {
	channelID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || channelID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid channel id"})
		return
	}

	var query messagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.log.Debug().Err(err).Msg("invalid messages query")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 500"})
		return
	}
	limit := query.Limit
	if limit == 0 {
		limit = min(h.historyLimit, maxHistoryLimit)
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetChannelByID(ctx, channelID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
			return
		}
		h.log.Error().Err(err).Int64("channel_id", channelID).Msg("failed to load channel")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	messages, err := h.store.ListRecentMessages(ctx, channelID, limit)
	if err != nil {
		h.log.Error().Err(err).Int64("channel_id", channelID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := lo.Map(messages, func(m *store.Message, _ int) proto.ChatMessage {
		return proto.ChatMessage{
			ID:        m.ID,
			Content:   m.Content,
			Username:  m.Username,
			Timestamp: formatTimestamp(m.CreatedAt),
			ChannelID: m.ChannelID,
		}
	})
	c.JSON(http.StatusOK, response)
}

// PresenceResponse is one online user.
type PresenceResponse struct {
	Username string `json:"username"`
	UserID   int64  `json:"user_id"`
}

// PresenceHandlers exposes who is currently connected.
type PresenceHandlers struct {
	sessions *core.SessionRegistry
}

// NewPresenceHandlers creates presence handlers backed by the session registry.
func NewPresenceHandlers(sessions *core.SessionRegistry) *PresenceHandlers {
	return &PresenceHandlers{sessions: sessions}
}

// ListOnline lists bound sessions sorted by username.
// GET /api/presence
func (h *PresenceHandlers) ListOnline(c *gin.Context) {
	response := lo.Map(h.sessions.Online(), func(id core.Identity, _ int) PresenceResponse {
		return PresenceResponse{Username: id.Username, UserID: id.UserID}
	})
	c.JSON(http.StatusOK, response)
}
