package crm

import (
	"context"
	"strings"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// History page bounds
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// ContactNormalizer canonicalises phone contacts before they are logged
type ContactNormalizer interface {
	Normalize(raw string) (string, error)
}

// CommunicationService appends to and reads the customer communication log
type CommunicationService struct {
	scope      TransactionScope
	normalizer ContactNormalizer
	logger     *zap.Logger
	opts       options
}

// NewCommunicationService creates a new CommunicationService.
// normalizer may be nil, in which case contacts are only trimmed.
func NewCommunicationService(scope TransactionScope, normalizer ContactNormalizer, logger *zap.Logger, opts ...Option) *CommunicationService {
	return &CommunicationService{
		scope:      scope,
		normalizer: normalizer,
		logger:     logger,
		opts:       buildOptions(opts),
	}
}

// Record appends one contact to the log of a customer
func (s *CommunicationService) Record(ctx context.Context, req RecordCommunicationRequest) (*CommunicationResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	commType := crm.CommunicationType(req.Type)
	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.opts.clock()
	}

	var response CommunicationResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		record, err := repos.CustomerRecords().FindByCustomerID(ctx, req.CustomerID)
		if err != nil {
			return err
		}

		entry, err := crm.NewCommunicationEntry(record, crm.NewCommunicationParams{
			Type:           commType,
			Direction:      crm.CommunicationDirection(req.Direction),
			Status:         crm.CommunicationStatus(req.Status),
			Outcome:        req.Outcome,
			Notes:          req.Notes,
			SalespersonID:  req.SalespersonID,
			ContactAddress: s.normalizeContact(commType, req.Contact),
			OccurredAt:     occurredAt,
		})
		if err != nil {
			return err
		}

		if err := repos.Communications().Append(ctx, entry); err != nil {
			return err
		}
		if err := flushEvents(ctx, repos.Outbox(), entry); err != nil {
			return err
		}
		response = ToCommunicationResponse(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("communication recorded",
		zap.String("customer_id", req.CustomerID.String()),
		zap.String("type", response.Type),
		zap.String("direction", response.Direction),
		zap.String("status", response.Status),
	)
	return &response, nil
}

// History returns the most recent entries of a customer, newest first
func (s *CommunicationService) History(ctx context.Context, customerID uuid.UUID, limit int) ([]CommunicationResponse, error) {
	entries, err := s.history(ctx, customerID, clampHistoryLimit(limit))
	if err != nil {
		return nil, err
	}
	responses := make([]CommunicationResponse, len(entries))
	for i := range entries {
		responses[i] = ToCommunicationResponse(&entries[i])
	}
	return responses, nil
}

// CountTrailingUnanswered counts the consecutive missed or unanswered
// contacts at the head of a customer's history
func (s *CommunicationService) CountTrailingUnanswered(ctx context.Context, customerID uuid.UUID) (int, error) {
	limit := DefaultHistoryLimit
	for {
		entries, err := s.history(ctx, customerID, limit)
		if err != nil {
			return 0, err
		}
		count := crm.CountTrailingUnanswered(entries)
		// Either the streak ended inside the page or the log is exhausted
		if count < len(entries) || len(entries) < limit {
			return count, nil
		}
		limit *= 2
	}
}

func (s *CommunicationService) history(ctx context.Context, customerID uuid.UUID, limit int) ([]crm.CommunicationEntry, error) {
	var entries []crm.CommunicationEntry
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		record, err := repos.CustomerRecords().FindByCustomerID(ctx, customerID)
		if err != nil {
			return err
		}
		entries, err = repos.Communications().FindByCustomerRecord(ctx, record.ID, limit)
		return err
	})
	return entries, err
}

// normalizeContact formats phone contacts as E.164. Unparseable numbers are
// kept as the caller sent them, trimmed.
func (s *CommunicationService) normalizeContact(commType crm.CommunicationType, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || s.normalizer == nil || !commType.UsesPhoneNumber() {
		return raw
	}
	normalized, err := s.normalizer.Normalize(raw)
	if err != nil {
		s.logger.Debug("contact is not a parseable phone number, storing as-is", zap.Error(err))
		return raw
	}
	return normalized
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
