package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kiteline/kiteline-api/internal/models"
	"github.com/kiteline/kiteline-api/internal/service"
	appErrors "github.com/kiteline/kiteline-api/pkg/errors"
	"github.com/kiteline/kiteline-api/pkg/response"
)

// VerificationHandler exposes the verification-request lifecycle over HTTP.
// Usernames in routes are translated to immutable user ids here, before any
// service call; the service layer never sees a username.
type VerificationHandler struct {
	service *service.VerificationService
	users   *service.UserService
	export  *service.ExportService
}

// NewVerificationHandler creates a new verification handler.
func NewVerificationHandler(svc *service.VerificationService, users *service.UserService, export *service.ExportService) *VerificationHandler {
	return &VerificationHandler{service: svc, users: users, export: export}
}

func (h *VerificationHandler) resolveSubject(c *gin.Context) (*models.User, bool) {
	user, err := h.users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return user, true
}

// Submit godoc
// @Summary Submit verification request
// @Description File a verification request for the authenticated user
// @Tags Verification
// @Accept json
// @Produce json
// @Param payload body service.SubmitVerificationRequest true "Verification payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /verification [post]
func (h *VerificationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verification payload"))
		return
	}

	res, err := h.service.Submit(c.Request.Context(), claims.UserID, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, res)
}

// Me godoc
// @Summary Own verification status
// @Description Returns the authenticated user's current verification request, or {"status":"none"} when no request exists
// @Tags Verification
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /verification/me [get]
func (h *VerificationHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	record, err := h.service.GetBySubject(c.Request.Context(), claims.UserID)
	if err != nil {
		// Never having asked is an answer, not an error, when the caller asks
		// about themselves.
		if appErrors.FromError(err).Code == appErrors.ErrNotFound.Code {
			response.JSON(c, http.StatusOK, gin.H{"status": "none"}, nil)
			return
		}
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, record, nil)
}

// Get godoc
// @Summary Get a user's verification request
// @Description Returns the named user's current verification request
// @Tags Verification
// @Produce json
// @Param username path string true "Username"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /verification/{username} [get]
func (h *VerificationHandler) Get(c *gin.Context) {
	user, ok := h.resolveSubject(c)
	if !ok {
		return
	}

	record, err := h.service.GetBySubject(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, record, nil)
}

// Approve godoc
// @Summary Approve verification request
// @Description Approve the named user's pending verification request
// @Tags Verification
// @Produce json
// @Param username path string true "Username"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /verification/{username}/approve [post]
func (h *VerificationHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, ok := h.resolveSubject(c)
	if !ok {
		return
	}

	res, err := h.service.Approve(c.Request.Context(), user.ID, claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Reject godoc
// @Summary Reject verification request
// @Description Reject the named user's pending verification request with an optional reason
// @Tags Verification
// @Accept json
// @Produce json
// @Param username path string true "Username"
// @Param payload body object false "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /verification/{username}/reject [post]
func (h *VerificationHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, ok := h.resolveSubject(c)
	if !ok {
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rejection payload"))
			return
		}
	}

	res, err := h.service.Reject(c.Request.Context(), user.ID, claims.UserID, payload.Reason, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Delete godoc
// @Summary Delete verification request
// @Description Remove a verification request by id; succeeds even when the id is unknown
// @Tags Verification
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /verification/{id} [delete]
func (h *VerificationHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	res, err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Export godoc
// @Summary Export verification decisions
// @Description Download verification decisions as CSV or PDF
// @Tags Verification
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param status query string false "Status filter"
// @Success 200 {file} byte
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/verification/export [get]
func (h *VerificationHandler) Export(c *gin.Context) {
	var status *models.VerificationStatus
	if raw := c.Query("status"); raw != "" {
		s := models.VerificationStatus(raw)
		if !s.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw)))
			return
		}
		status = &s
	}

	result, err := h.export.Decisions(c.Request.Context(), c.DefaultQuery("format", "csv"), status)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
