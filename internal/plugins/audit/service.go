package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keyxmakerx/mediatag/internal/apperror"
)

// perPage is the number of audit entries returned per page.
const perPage = 50

// maxEntityHistoryEntries caps the number of history entries returned for a
// single entity to prevent unbounded result sets.
const maxEntityHistoryEntries = 100

// AuditService handles business logic for the audit log. It validates inputs,
// enforces limits, and delegates persistence to the repository.
type AuditService interface {
	// Log records an audit entry. Designed to be fire-and-forget friendly:
	// errors are logged and callers may ignore them since audit failures
	// should not block the primary operation.
	Log(ctx context.Context, entry *AuditEntry) error

	// GetClientActivity returns a paginated activity feed for a client,
	// optionally narrowed to one campaign. Returns entries, total count,
	// and any error.
	GetClientActivity(ctx context.Context, clientID, campaignID string, page int) ([]AuditEntry, int, error)

	// GetEntityHistory returns the recent actions on one document path.
	GetEntityHistory(ctx context.Context, entityPath string) ([]AuditEntry, error)
}

// auditService implements AuditService.
type auditService struct {
	repo AuditRepository
}

// NewAuditService creates a new audit service with the given repository.
func NewAuditService(repo AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// Log validates and persists an audit entry. Missing required fields cause
// a validation error. Logging failures are recorded via slog so the caller
// can treat this as fire-and-forget when appropriate.
func (s *auditService) Log(ctx context.Context, entry *AuditEntry) error {
	if entry.ClientID == "" {
		return apperror.NewBadRequest("client ID is required for audit entry")
	}
	if entry.Action == "" {
		return apperror.NewBadRequest("action is required for audit entry")
	}

	if err := s.repo.Log(ctx, entry); err != nil {
		slog.Error("failed to write audit log entry",
			slog.String("client_id", entry.ClientID),
			slog.String("action", entry.Action),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("writing audit entry: %w", err))
	}

	return nil
}

// GetClientActivity returns the paginated activity feed for a client.
// Pages are 1-indexed. Invalid page numbers are clamped to 1.
func (s *auditService) GetClientActivity(ctx context.Context, clientID, campaignID string, page int) ([]AuditEntry, int, error) {
	if clientID == "" {
		return nil, 0, apperror.NewBadRequest("client ID is required")
	}
	if page < 1 {
		page = 1
	}

	offset := (page - 1) * perPage
	entries, total, err := s.repo.ListByClient(ctx, clientID, campaignID, perPage, offset)
	if err != nil {
		return nil, 0, apperror.NewInternal(fmt.Errorf("listing client activity: %w", err))
	}

	return entries, total, nil
}

// GetEntityHistory returns the recent actions on a single document path.
// Limited to maxEntityHistoryEntries to prevent excessively large responses.
func (s *auditService) GetEntityHistory(ctx context.Context, entityPath string) ([]AuditEntry, error) {
	if entityPath == "" {
		return nil, apperror.NewBadRequest("entity path is required")
	}

	entries, err := s.repo.ListByEntity(ctx, entityPath, maxEntityHistoryEntries)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing entity history: %w", err))
	}

	return entries, nil
}
