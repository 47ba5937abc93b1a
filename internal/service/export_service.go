package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kiteline/kiteline-api/internal/models"
	"github.com/kiteline/kiteline-api/pkg/export"
	appErrors "github.com/kiteline/kiteline-api/pkg/errors"
)

type decisionLister interface {
	ListDecisions(ctx context.Context, filter models.VerificationFilter) ([]models.VerificationDecision, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(table export.Table, title string) ([]byte, error)
}

// ExportResult carries the rendered document and its HTTP metadata.
type ExportResult struct {
	Data        []byte
	ContentType string
	Filename    string
}

// ExportService renders the admin verification-decision export.
type ExportService struct {
	decisions decisionLister
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(decisions decisionLister, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{decisions: decisions, csv: csv, pdf: pdf, logger: logger}
}

var decisionHeaders = []string{"username", "status", "reason", "submitted_at", "decided_at"}

// Decisions renders verification requests as CSV or PDF.
func (s *ExportService) Decisions(ctx context.Context, format string, status *models.VerificationStatus) (*ExportResult, error) {
	rows, err := s.decisions.ListDecisions(ctx, models.VerificationFilter{Status: status})
	if err != nil {
		return nil, err
	}

	table := export.Table{Headers: decisionHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		table.Rows = append(table.Rows, map[string]string{
			"username":     row.Username,
			"status":       string(row.Status),
			"reason":       row.Reason,
			"submitted_at": row.CreatedAt.UTC().Format(time.RFC3339),
			"decided_at":   row.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	switch strings.ToLower(format) {
	case "csv", "":
		data, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{
			Data:        data,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("verification-decisions-%s.csv", stamp),
		}, nil
	case "pdf":
		data, err := s.pdf.Render(table, "Verification Decisions")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{
			Data:        data,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("verification-decisions-%s.pdf", stamp),
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}
