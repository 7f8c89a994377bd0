package http

import (
	"net/http"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	"physlab/internal/core/services"
	"physlab/pkg/utils"

	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 20

type MessageHandler struct {
	messageService ports.MessageService
}

func NewMessageHandler(messageService ports.MessageService) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
	}
}

func (h *MessageHandler) SetupRoutes(api *gin.RouterGroup, g Guards) {
	messages := api.Group("/messages", g.Auth)
	{
		messages.POST("/send", g.require(services.OpMessageSend), h.Send)
		messages.GET("/history", h.History)
		messages.PUT("/:id/read", h.MarkRead)
		messages.GET("/:id/delivery", g.require(services.OpMessageDelivery), h.Delivery)
	}
}

type SendMessageRequest struct {
	RecipientID *domain.UserID `json:"recipient_id"`
	Content     string         `json:"content" binding:"max=4000"`
	Type        string         `json:"type" binding:"max=20"`
	IsBroadcast bool           `json:"is_broadcast"`
	TargetGroup string         `json:"target_group" binding:"max=50"`
}

// Send delivers a direct message, or fans out to a class when is_broadcast is set.
func (h *MessageHandler) Send(c *gin.Context) {
	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if req.IsBroadcast {
		result, err := h.messageService.Broadcast(ctx, identity(c), req.TargetGroup, req.Content, req.Type)
		if err != nil {
			c.Error(err)
			return
		}
		respond(c, http.StatusCreated, result)
		return
	}

	var recipient domain.UserID
	if req.RecipientID != nil {
		recipient = *req.RecipientID
	}
	msg, err := h.messageService.Send(ctx, identity(c), recipient, req.Content, req.Type)
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusCreated, msg)
}

func (h *MessageHandler) History(c *gin.Context) {
	var q pageQuery
	if !bindQuery(c, &q) {
		return
	}

	page := utils.NewPage(q.Page, q.Limit, defaultHistoryLimit)
	list, total, err := h.messageService.History(c.Request.Context(), identity(c), page.Page, page.Limit)
	if err != nil {
		c.Error(err)
		return
	}
	respondPage(c, list, page.Meta(total))
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	msg, err := h.messageService.MarkRead(c.Request.Context(), identity(c), domain.MessageID(id))
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, msg)
}

func (h *MessageHandler) Delivery(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.messageService.DeliveryStats(c.Request.Context(), identity(c), domain.MessageID(id))
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, stats)
}
