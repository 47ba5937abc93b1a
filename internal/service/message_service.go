package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kiteline/kiteline-api/internal/models"
	appErrors "github.com/kiteline/kiteline-api/pkg/errors"
)

type messageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	ListConversation(ctx context.Context, userA, userB string, filter models.MessageFilter) ([]models.Message, int, error)
}

type messageAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SendMessageRequest is the payload for sending a direct message.
type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

// MessageService handles direct message workflows.
type MessageService struct {
	repo      messageRepository
	audit     messageAuditRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMessageService creates an instance of MessageService.
func NewMessageService(repo messageRepository, audit messageAuditRepository, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MessageService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Send delivers a direct message from sender to recipient.
func (s *MessageService) Send(ctx context.Context, senderID, recipientID string, req SendMessageRequest, meta models.LoginRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	if senderID == recipientID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot message yourself")
	}

	msg := &models.Message{SenderID: senderID, RecipientID: recipientID, Body: req.Body}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &senderID,
		Action:     models.AuditActionMessageSend,
		Resource:   "messages",
		ResourceID: &msg.ID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record message audit log", zap.Error(err))
	}

	return msg, nil
}

// Conversation returns messages between the caller and another user.
func (s *MessageService) Conversation(ctx context.Context, callerID, otherID string, filter models.MessageFilter) ([]models.Message, *models.Pagination, error) {
	msgs, total, err := s.repo.ListConversation(ctx, callerID, otherID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversation")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	return msgs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}
