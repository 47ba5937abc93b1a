package models

import "time"

// VerificationStatus is the lifecycle state of a verification request.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationApproved VerificationStatus = "APPROVED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationApproved, VerificationRejected:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s VerificationStatus) Terminal() bool {
	return s == VerificationApproved || s == VerificationRejected
}

// CanTransition reports whether a request in this status may move to target.
// Only PENDING is a legal source state; APPROVED and REJECTED are final.
func (s VerificationStatus) CanTransition(target VerificationStatus) bool {
	return s == VerificationPending && target.Terminal()
}

// VerificationRequest is a user's current verification attempt. Requests are
// keyed by the immutable subject user id, never by the mutable username; at
// most one PENDING request may exist per subject.
type VerificationRequest struct {
	ID          string             `db:"id" json:"id"`
	SubjectID   string             `db:"subject_id" json:"subject_id"`
	Credentials string             `db:"credentials" json:"credentials"`
	Status      VerificationStatus `db:"status" json:"status"`
	Reason      string             `db:"reason" json:"reason,omitempty"`
	ReviewedBy  *string            `db:"reviewed_by" json:"reviewed_by,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// VerificationFilter captures filtering criteria for listing requests.
type VerificationFilter struct {
	Status   *VerificationStatus
	Page     int
	PageSize int
}

// VerificationDecision is the export row shape joining a request with the
// subject's current username.
type VerificationDecision struct {
	ID        string             `db:"id" json:"id"`
	Username  string             `db:"username" json:"username"`
	Status    VerificationStatus `db:"status" json:"status"`
	Reason    string             `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}
