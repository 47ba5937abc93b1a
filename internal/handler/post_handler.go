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

// PostHandler handles post endpoints.
type PostHandler struct {
	service *service.PostService
	users   *service.UserService
}

// NewPostHandler creates a new post handler.
func NewPostHandler(svc *service.PostService, users *service.UserService) *PostHandler {
	return &PostHandler{service: svc, users: users}
}

// Create godoc
// @Summary Create post
// @Description Publish a post as the authenticated user
// @Tags Posts
// @Accept json
// @Produce json
// @Param payload body service.CreatePostRequest true "Post payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /posts [post]
func (h *PostHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid post payload"))
		return
	}

	post, err := h.service.Create(c.Request.Context(), claims.UserID, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, post)
}

// Get godoc
// @Summary Get post
// @Description Get a single post by id
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /posts/{id} [get]
func (h *PostHandler) Get(c *gin.Context) {
	post, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, post, nil)
}

// ListByAuthor godoc
// @Summary List a user's posts
// @Description List posts authored by the named user
// @Tags Posts
// @Produce json
// @Param username path string true "Username"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{username}/posts [get]
func (h *PostHandler) ListByAuthor(c *gin.Context) {
	author, err := h.users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}

	filter := models.PostFilter{AuthorID: author.ID}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}

	posts, pagination, err := h.service.ListByAuthor(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, posts, pagination)
}

// Delete godoc
// @Summary Delete post
// @Description Delete a post; authors may delete their own, administrators any
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /posts/{id} [delete]
func (h *PostHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
