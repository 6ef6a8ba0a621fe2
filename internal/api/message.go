package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/live"
	"github.com/heiloMeow/nudgeeq/internal/models"
	"github.com/heiloMeow/nudgeeq/internal/repository"
)

type MessageHandler struct {
	messages repository.MessageRepository
	roles    repository.RoleRepository
	broker   *live.Broker
	logger   *zap.Logger
}

func NewMessageHandler(messages repository.MessageRepository, roles repository.RoleRepository, broker *live.Broker, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, roles: roles, broker: broker, logger: logger}
}

type createMessageRequest struct {
	FromRoleID string `json:"fromRoleId"`
	ToRoleID   string `json:"toRoleId"`
	Text       string `json:"text"`
	Kind       string `json:"kind"`
	InReplyTo  string `json:"inReplyTo"`
}

// Create handles POST /api/messages.
func (h *MessageHandler) Create(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": codeMissingFields})
		return
	}

	msg, err := h.messages.Create(c.Request.Context(),
		req.FromRoleID, req.ToRoleID, req.Text, req.Kind, req.InReplyTo)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// Best-effort fan-out to both parties. The live channel is advisory:
	// its failures are invisible to the sender, who already has a 201.
	h.publishBoth(c, msg)

	c.JSON(http.StatusCreated, gin.H{"id": msg.ID})
}

func (h *MessageHandler) publishBoth(c *gin.Context, msg *models.Message) {
	push := models.PushMessage{Message: *msg, Dir: "in"}
	if from, err := h.roles.GetByID(c.Request.Context(), msg.FromRoleID); err == nil && from != nil {
		push.FromRoleName = from.Name
		push.FromTableID = from.TableID
		push.FromSeatID = from.SeatID
	}
	h.broker.Publish(msg.ToRoleID, "message", push)

	echo := push
	echo.Dir = "out"
	h.broker.Publish(msg.FromRoleID, "message", echo)
}

// ListSent handles GET /api/roles/:id/messages/sent?cursor=&limit=.
func (h *MessageHandler) ListSent(c *gin.Context) {
	h.list(c, false)
}

// ListReceived handles GET /api/roles/:id/messages/received?cursor=&limit=.
func (h *MessageHandler) ListReceived(c *gin.Context) {
	h.list(c, true)
}

func (h *MessageHandler) list(c *gin.Context, received bool) {
	roleID := c.Param("id")
	cursor := repository.ParseCursor(c.Query("cursor"))
	limit := repository.ClampLimit(queryInt(c, "limit", 20))

	var page *models.MessagePage
	var err error
	if received {
		page, err = h.messages.ListReceived(c.Request.Context(), roleID, cursor, limit)
	} else {
		page, err = h.messages.ListSent(c.Request.Context(), roleID, cursor, limit)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
