package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiteline/kiteline-api/internal/middleware"
	"github.com/kiteline/kiteline-api/internal/models"
	"github.com/kiteline/kiteline-api/internal/service"
)

type verificationRepoFake struct {
	requests map[string]*models.VerificationRequest
	deleted  []string
}

func newVerificationRepoFake() *verificationRepoFake {
	return &verificationRepoFake{requests: make(map[string]*models.VerificationRequest)}
}

func (f *verificationRepoFake) Create(ctx context.Context, req *models.VerificationRequest) error {
	if req.ID == "" {
		req.ID = "req-" + req.SubjectID
	}
	req.Status = models.VerificationPending
	copied := *req
	f.requests[req.SubjectID] = &copied
	return nil
}

func (f *verificationRepoFake) FindBySubject(ctx context.Context, subjectID string) (*models.VerificationRequest, error) {
	if req, ok := f.requests[subjectID]; ok {
		copied := *req
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *verificationRepoFake) FindByID(ctx context.Context, id string) (*models.VerificationRequest, error) {
	for _, req := range f.requests {
		if req.ID == id {
			copied := *req
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *verificationRepoFake) Transition(ctx context.Context, subjectID string, status models.VerificationStatus, reason string, reviewerID string, updatedAt time.Time) (bool, error) {
	req, ok := f.requests[subjectID]
	if !ok || req.Status != models.VerificationPending {
		return false, nil
	}
	req.Status = status
	req.Reason = reason
	req.ReviewedBy = &reviewerID
	return true, nil
}

func (f *verificationRepoFake) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	for subject, req := range f.requests {
		if req.ID == id {
			delete(f.requests, subject)
		}
	}
	return nil
}

func (f *verificationRepoFake) ListDecisions(ctx context.Context, filter models.VerificationFilter) ([]models.VerificationDecision, error) {
	var rows []models.VerificationDecision
	for _, req := range f.requests {
		rows = append(rows, models.VerificationDecision{ID: req.ID, Status: req.Status, Reason: req.Reason})
	}
	return rows, nil
}

type userRepoFake struct {
	usersByID   map[string]*models.User
	usersByName map[string]*models.User
	verified    map[string]bool
}

func newUserRepoFake() *userRepoFake {
	return &userRepoFake{
		usersByID:   make(map[string]*models.User),
		usersByName: make(map[string]*models.User),
		verified:    make(map[string]bool),
	}
}

func (f *userRepoFake) add(user *models.User) {
	f.usersByID[user.ID] = user
	f.usersByName[user.Username] = user
}

func (f *userRepoFake) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return nil, 0, nil
}

func (f *userRepoFake) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := f.usersByID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (f *userRepoFake) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if user, ok := f.usersByName[username]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (f *userRepoFake) Update(ctx context.Context, user *models.User) error { return nil }
func (f *userRepoFake) Delete(ctx context.Context, id string) error         { return nil }

func (f *userRepoFake) SetVerified(ctx context.Context, id string, verified bool, updatedAt time.Time) error {
	f.verified[id] = verified
	return nil
}

func (f *userRepoFake) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

func newVerificationTestHandler(repo *verificationRepoFake, users *userRepoFake) *VerificationHandler {
	verificationSvc := service.NewVerificationService(repo, users, nil, nil, validator.New(), nil, time.Minute)
	userSvc := service.NewUserService(users, validator.New(), nil)
	exportSvc := service.NewExportService(verificationSvc, nil, nil, nil)
	return NewVerificationHandler(verificationSvc, userSvc, exportSvc)
}

func envelopeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestVerificationHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newVerificationTestHandler(newVerificationRepoFake(), newUserRepoFake())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.SubmitVerificationRequest{Credentials: "press pass"})
	req, _ := http.NewRequest(http.MethodPost, "/verification", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Username: "ada", Role: models.RoleUser})

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	data := envelopeData(t, w)
	assert.Equal(t, "verification request submitted", data["message"])
}

func TestVerificationHandlerSubmitDuplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newVerificationRepoFake()
	repo.requests["u1"] = &models.VerificationRequest{ID: "r1", SubjectID: "u1", Status: models.VerificationPending}
	handler := newVerificationTestHandler(repo, newUserRepoFake())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.SubmitVerificationRequest{Credentials: "x"})
	req, _ := http.NewRequest(http.MethodPost, "/verification", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Username: "ada", Role: models.RoleUser})

	handler.Submit(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestVerificationHandlerMeNone(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newVerificationTestHandler(newVerificationRepoFake(), newUserRepoFake())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/verification/me", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Username: "ada", Role: models.RoleUser})

	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := envelopeData(t, w)
	assert.Equal(t, "none", data["status"])
}

func TestVerificationHandlerApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newVerificationRepoFake()
	repo.requests["u1"] = &models.VerificationRequest{ID: "r1", SubjectID: "u1", Status: models.VerificationPending}
	users := newUserRepoFake()
	users.add(&models.User{ID: "u1", Username: "ada"})
	handler := newVerificationTestHandler(repo, users)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/verification/ada/approve", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "username", Value: "ada"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Username: "root", Role: models.RoleAdmin})

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := envelopeData(t, w)
	assert.Equal(t, "verification request approved", data["message"])
	assert.Equal(t, models.VerificationApproved, repo.requests["u1"].Status)
	assert.True(t, users.verified["u1"])
}

func TestVerificationHandlerApproveUnknownUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newVerificationTestHandler(newVerificationRepoFake(), newUserRepoFake())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/verification/ghost/approve", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "username", Value: "ghost"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Approve(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerificationHandlerRejectWithReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newVerificationRepoFake()
	repo.requests["u1"] = &models.VerificationRequest{ID: "r1", SubjectID: "u1", Status: models.VerificationPending}
	users := newUserRepoFake()
	users.add(&models.User{ID: "u1", Username: "ada"})
	handler := newVerificationTestHandler(repo, users)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := []byte(`{"reason":"blurry documents"}`)
	req, _ := http.NewRequest(http.MethodPost, "/verification/ada/reject", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "username", Value: "ada"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := envelopeData(t, w)
	assert.Equal(t, "verification request rejected: blurry documents", data["message"])
	assert.Equal(t, "blurry documents", repo.requests["u1"].Reason)
}

func TestVerificationHandlerDeleteUnknownID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newVerificationTestHandler(newVerificationRepoFake(), newUserRepoFake())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/verification/no-such-id", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "no-such-id"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Delete(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := envelopeData(t, w)
	assert.Equal(t, "verification request deleted", data["message"])
}

func TestVerificationHandlerExportCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newVerificationRepoFake()
	repo.requests["u1"] = &models.VerificationRequest{ID: "r1", SubjectID: "u1", Status: models.VerificationApproved}
	handler := newVerificationTestHandler(repo, newUserRepoFake())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/admin/verification/export?format=csv", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
}

func TestVerificationHandlerExportUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newVerificationTestHandler(newVerificationRepoFake(), newUserRepoFake())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/admin/verification/export?status=MAYBE", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// The review surface is reachable only through the role gate; a regular user
// must be rejected by the router before any handler runs.
func TestVerificationAdminGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newVerificationRepoFake()
	repo.requests["u1"] = &models.VerificationRequest{ID: "r1", SubjectID: "u1", Status: models.VerificationPending}
	users := newUserRepoFake()
	users.add(&models.User{ID: "u1", Username: "ada"})
	handler := newVerificationTestHandler(repo, users)

	r := gin.New()
	injectClaims := func(claims *models.JWTClaims) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set(middleware.ContextUserKey, claims)
			c.Next()
		}
	}

	user := &models.JWTClaims{UserID: "u2", Username: "eve", Role: models.RoleUser}
	admin := &models.JWTClaims{UserID: "a1", Username: "root", Role: models.RoleAdmin}

	userGroup := r.Group("/user", injectClaims(user), middleware.RequireAdmin())
	userGroup.POST("/verification/:username/approve", handler.Approve)

	adminGroup := r.Group("/admin", injectClaims(admin), middleware.RequireAdmin())
	adminGroup.POST("/verification/:username/approve", handler.Approve)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/user/verification/ada/approve", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, models.VerificationPending, repo.requests["u1"].Status)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/admin/verification/ada/approve", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.VerificationApproved, repo.requests["u1"].Status)
}
