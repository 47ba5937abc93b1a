package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kiteline/kiteline-api/internal/service"
	appErrors "github.com/kiteline/kiteline-api/pkg/errors"
	"github.com/kiteline/kiteline-api/pkg/response"
)

// FollowHandler handles social graph endpoints.
type FollowHandler struct {
	service *service.FollowService
	users   *service.UserService
}

// NewFollowHandler creates a new follow handler.
func NewFollowHandler(svc *service.FollowService, users *service.UserService) *FollowHandler {
	return &FollowHandler{service: svc, users: users}
}

// Follow godoc
// @Summary Follow user
// @Description Follow the named user
// @Tags Follows
// @Produce json
// @Param username path string true "Username"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users/{username}/follow [post]
func (h *FollowHandler) Follow(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	target, err := h.users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.service.Follow(c.Request.Context(), claims.UserID, target.ID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Unfollow godoc
// @Summary Unfollow user
// @Description Stop following the named user
// @Tags Follows
// @Produce json
// @Param username path string true "Username"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{username}/follow [delete]
func (h *FollowHandler) Unfollow(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	target, err := h.users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.service.Unfollow(c.Request.Context(), claims.UserID, target.ID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Followers godoc
// @Summary List followers
// @Description List users following the named user
// @Tags Follows
// @Produce json
// @Param username path string true "Username"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{username}/followers [get]
func (h *FollowHandler) Followers(c *gin.Context) {
	target, err := h.users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}

	followers, err := h.service.Followers(c.Request.Context(), target.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, followers, nil)
}

// Following godoc
// @Summary List following
// @Description List users the named user follows
// @Tags Follows
// @Produce json
// @Param username path string true "Username"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{username}/following [get]
func (h *FollowHandler) Following(c *gin.Context) {
	target, err := h.users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}

	following, err := h.service.Following(c.Request.Context(), target.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, following, nil)
}
