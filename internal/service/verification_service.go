package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kiteline/kiteline-api/internal/models"
	"github.com/kiteline/kiteline-api/internal/repository"
	appErrors "github.com/kiteline/kiteline-api/pkg/errors"
)

type verificationRepository interface {
	Create(ctx context.Context, req *models.VerificationRequest) error
	FindBySubject(ctx context.Context, subjectID string) (*models.VerificationRequest, error)
	FindByID(ctx context.Context, id string) (*models.VerificationRequest, error)
	Transition(ctx context.Context, subjectID string, status models.VerificationStatus, reason string, reviewerID string, updatedAt time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	ListDecisions(ctx context.Context, filter models.VerificationFilter) ([]models.VerificationDecision, error)
}

type verificationUserRepository interface {
	SetVerified(ctx context.Context, id string, verified bool, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SubmitVerificationRequest is the payload a subject submits for review.
type SubmitVerificationRequest struct {
	Credentials string `json:"credentials" validate:"required"`
}

// SubmitVerificationResponse returns the confirmation message and the
// newly created request.
type SubmitVerificationResponse struct {
	Message string                      `json:"message"`
	Request *models.VerificationRequest `json:"request"`
}

// VerificationMessageResponse carries the outcome message of a review action.
type VerificationMessageResponse struct {
	Message string `json:"message"`
}

// VerificationService owns the verification-request lifecycle: one PENDING
// request per subject, PENDING -> APPROVED or PENDING -> REJECTED, nothing
// out of a terminal state. Identity translation and the administrator gate
// live with the callers; this service is keyed by immutable subject ids only.
type VerificationService struct {
	repo      verificationRepository
	users     verificationUserRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	statusTTL time.Duration
}

// NewVerificationService constructs a VerificationService instance.
func NewVerificationService(repo verificationRepository, users verificationUserRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, statusTTL time.Duration) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if statusTTL <= 0 {
		statusTTL = 5 * time.Minute
	}
	return &VerificationService{repo: repo, users: users, cache: cache, metrics: metrics, validator: validate, logger: logger, statusTTL: statusTTL}
}

func verificationCacheKey(subjectID string) string {
	return "verification:subject:" + subjectID
}

// Submit files a new verification request for the subject. It fails with a
// conflict while a PENDING request exists; a subject whose previous request
// was approved or rejected may submit again.
func (s *VerificationService) Submit(ctx context.Context, subjectID string, req SubmitVerificationRequest, meta models.LoginRequest) (*SubmitVerificationResponse, error) {
	if subjectID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	existing, err := s.repo.FindBySubject(ctx, subjectID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing verification request")
	}
	if existing != nil && existing.Status == models.VerificationPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a verification request is already pending for this user")
	}

	record := &models.VerificationRequest{
		SubjectID:   subjectID,
		Credentials: req.Credentials,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		// The partial unique index is the authoritative guard; a concurrent
		// submission that slipped past the pre-check surfaces here.
		if errors.Is(err, repository.ErrDuplicatePending) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a verification request is already pending for this user")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create verification request")
	}

	s.invalidateStatus(ctx, subjectID)
	s.audit(ctx, meta, models.AuditActionVerificationSubmit, &subjectID, &record.ID, map[string]interface{}{"status": record.Status})

	return &SubmitVerificationResponse{
		Message: "verification request submitted",
		Request: record,
	}, nil
}

// GetBySubject returns the subject's current verification request.
func (s *VerificationService) GetBySubject(ctx context.Context, subjectID string) (*models.VerificationRequest, error) {
	if s.cache.Enabled() {
		var cached models.VerificationRequest
		if hit, err := s.cache.Get(ctx, verificationCacheKey(subjectID), &cached); err == nil && hit {
			return &cached, nil
		}
	}

	record, err := s.repo.FindBySubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "verification request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load verification request")
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, verificationCacheKey(subjectID), record, s.statusTTL); err != nil {
			s.logger.Warn("failed to cache verification request", zap.Error(err))
		}
	}

	return record, nil
}

// GetByID returns a verification request by identifier.
func (s *VerificationService) GetByID(ctx context.Context, id string) (*models.VerificationRequest, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "verification request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load verification request")
	}
	return record, nil
}

// Approve moves the subject's PENDING request to APPROVED and marks the
// user profile verified.
func (s *VerificationService) Approve(ctx context.Context, subjectID, reviewerID string, meta models.LoginRequest) (*VerificationMessageResponse, error) {
	if err := s.transition(ctx, subjectID, models.VerificationApproved, "", reviewerID); err != nil {
		return nil, err
	}

	if err := s.users.SetVerified(ctx, subjectID, true, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to mark user verified", zap.String("subject_id", subjectID), zap.Error(err))
	}

	s.audit(ctx, meta, models.AuditActionVerificationApprove, &reviewerID, &subjectID, map[string]interface{}{"status": models.VerificationApproved})

	return &VerificationMessageResponse{Message: "verification request approved"}, nil
}

// Reject moves the subject's PENDING request to REJECTED. The optional reason
// is stored on the record and embedded verbatim in the returned message.
func (s *VerificationService) Reject(ctx context.Context, subjectID, reviewerID, reason string, meta models.LoginRequest) (*VerificationMessageResponse, error) {
	if err := s.transition(ctx, subjectID, models.VerificationRejected, reason, reviewerID); err != nil {
		return nil, err
	}

	s.audit(ctx, meta, models.AuditActionVerificationReject, &reviewerID, &subjectID, map[string]interface{}{"status": models.VerificationRejected, "reason": reason})

	message := "verification request rejected"
	if reason != "" {
		message = fmt.Sprintf("verification request rejected: %s", reason)
	}
	return &VerificationMessageResponse{Message: message}, nil
}

// Delete removes a verification request by id. Unlike every other operation
// it succeeds even when the id does not exist.
func (s *VerificationService) Delete(ctx context.Context, id, actorID string, meta models.LoginRequest) (*VerificationMessageResponse, error) {
	// Best-effort lookup so the subject's cached status can be dropped.
	if record, err := s.repo.FindByID(ctx, id); err == nil {
		s.invalidateStatus(ctx, record.SubjectID)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete verification request")
	}

	s.audit(ctx, meta, models.AuditActionVerificationDelete, &actorID, &id, nil)

	return &VerificationMessageResponse{Message: "verification request deleted"}, nil
}

// ListDecisions exposes the joined decision rows for the admin export.
func (s *VerificationService) ListDecisions(ctx context.Context, filter models.VerificationFilter) ([]models.VerificationDecision, error) {
	start := time.Now()
	rows, err := s.repo.ListDecisions(ctx, filter)
	s.metrics.ObserveDBQuery("verification_decisions", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list verification decisions")
	}
	return rows, nil
}

func (s *VerificationService) transition(ctx context.Context, subjectID string, target models.VerificationStatus, reason, reviewerID string) error {
	current, err := s.repo.FindBySubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "verification request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load verification request")
	}

	if !current.Status.CanTransition(target) {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("verification request is already %s", current.Status))
	}

	moved, err := s.repo.Transition(ctx, subjectID, target, reason, reviewerID, time.Now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update verification request")
	}
	if !moved {
		// A concurrent reviewer decided the request between the read and the
		// guarded update.
		return appErrors.Clone(appErrors.ErrConflict, "verification request was already decided")
	}

	s.invalidateStatus(ctx, subjectID)
	return nil
}

func (s *VerificationService) invalidateStatus(ctx context.Context, subjectID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Delete(ctx, verificationCacheKey(subjectID)); err != nil {
		s.logger.Warn("failed to invalidate verification cache", zap.String("subject_id", subjectID), zap.Error(err))
	}
}

func (s *VerificationService) audit(ctx context.Context, meta models.LoginRequest, action string, actorID, resourceID *string, values map[string]interface{}) {
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     actorID,
		Action:     action,
		Resource:   "verification_requests",
		ResourceID: resourceID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record verification audit log", zap.String("action", action), zap.Error(err))
	}
}
