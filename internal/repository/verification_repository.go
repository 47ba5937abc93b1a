package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kiteline/kiteline-api/internal/models"
)

// ErrDuplicatePending is returned when an insert collides with the partial
// unique index on (subject_id) WHERE status = 'PENDING'. The index is what
// actually serialises concurrent submissions; the service-level existence
// check only exists for a friendlier message.
var ErrDuplicatePending = errors.New("pending verification request already exists for subject")

const pqUniqueViolation = "23505"

// VerificationRepository owns the verification_requests collection. No other
// repository writes to it.
type VerificationRepository struct {
	db *sqlx.DB
}

// NewVerificationRepository creates a new instance of VerificationRepository.
func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Create inserts a new request in PENDING status.
func (r *VerificationRepository) Create(ctx context.Context, req *models.VerificationRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	req.Status = models.VerificationPending

	const query = `INSERT INTO verification_requests (id, subject_id, credentials, status, reason, reviewed_by, created_at, updated_at) VALUES (:id, :subject_id, :credentials, :status, :reason, :reviewed_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrDuplicatePending
		}
		return fmt.Errorf("create verification request: %w", err)
	}
	return nil
}

// FindBySubject returns the most recent request for a subject.
func (r *VerificationRepository) FindBySubject(ctx context.Context, subjectID string) (*models.VerificationRequest, error) {
	const query = `SELECT id, subject_id, credentials, status, reason, reviewed_by, created_at, updated_at FROM verification_requests WHERE subject_id = $1 ORDER BY created_at DESC LIMIT 1`
	var req models.VerificationRequest
	if err := r.db.GetContext(ctx, &req, query, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find verification request by subject: %w", err)
	}
	return &req, nil
}

// FindByID returns a request by identifier.
func (r *VerificationRepository) FindByID(ctx context.Context, id string) (*models.VerificationRequest, error) {
	const query = `SELECT id, subject_id, credentials, status, reason, reviewed_by, created_at, updated_at FROM verification_requests WHERE id = $1 LIMIT 1`
	var req models.VerificationRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find verification request by id: %w", err)
	}
	return &req, nil
}

// Transition moves the subject's PENDING request into a terminal status. The
// status guard lives in the WHERE clause so a concurrent reviewer cannot
// re-decide an already decided request; it reports whether a row transitioned.
func (r *VerificationRepository) Transition(ctx context.Context, subjectID string, status models.VerificationStatus, reason string, reviewerID string, updatedAt time.Time) (bool, error) {
	const query = `UPDATE verification_requests SET status = $2, reason = $3, reviewed_by = $4, updated_at = $5 WHERE subject_id = $1 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, subjectID, status, reason, reviewerID, updatedAt)
	if err != nil {
		return false, fmt.Errorf("transition verification request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition verification request rows: %w", err)
	}
	return affected > 0, nil
}

// Delete removes a request by id. Deleting an absent id is a no-op, not an
// error; callers rely on this asymmetry.
func (r *VerificationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM verification_requests WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete verification request: %w", err)
	}
	return nil
}

// ListDecisions returns requests joined with the subject's username for the
// admin export, newest first.
func (r *VerificationRepository) ListDecisions(ctx context.Context, filter models.VerificationFilter) ([]models.VerificationDecision, error) {
	query := `SELECT v.id, u.username, v.status, v.reason, v.created_at, v.updated_at FROM verification_requests v JOIN users u ON u.id = v.subject_id`
	var args []interface{}
	if filter.Status != nil {
		query += ` WHERE v.status = $1`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY v.created_at DESC`

	pageSize := filter.PageSize
	if pageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)
	}

	var rows []models.VerificationDecision
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list verification decisions: %w", err)
	}
	return rows, nil
}
