package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kiteline/kiteline-api/internal/models"
	"github.com/kiteline/kiteline-api/internal/service"
	appErrors "github.com/kiteline/kiteline-api/pkg/errors"
	"github.com/kiteline/kiteline-api/pkg/response"
)

// MessageHandler handles direct message endpoints.
type MessageHandler struct {
	service *service.MessageService
	users   *service.UserService
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.MessageService, users *service.UserService) *MessageHandler {
	return &MessageHandler{service: svc, users: users}
}

// Send godoc
// @Summary Send direct message
// @Description Send a direct message to the named user
// @Tags Messages
// @Accept json
// @Produce json
// @Param username path string true "Recipient username"
// @Param payload body service.SendMessageRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /messages/{username} [post]
func (h *MessageHandler) Send(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	recipient, err := h.users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}

	message, err := h.service.Send(c.Request.Context(), claims.UserID, recipient.ID, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, message)
}

// Conversation godoc
// @Summary Read conversation
// @Description List messages exchanged with the named user, oldest first
// @Tags Messages
// @Produce json
// @Param username path string true "Other participant"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /messages/{username} [get]
func (h *MessageHandler) Conversation(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	other, err := h.users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var filter models.MessageFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "50")); err == nil {
		filter.PageSize = size
	}

	messages, pagination, err := h.service.Conversation(c.Request.Context(), claims.UserID, other.ID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, messages, pagination)
}
