package crm

import (
	"context"
	"time"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const webhookKeyPrefix = "crm:webhook:"

// LeadWebhook is one delivery from an ad platform's lead or conversion webhook
type LeadWebhook struct {
	DeliveryID         string    `json:"delivery_id" validate:"required,max=255"`
	CustomerID         uuid.UUID `json:"customer_id" validate:"required"`
	Platform           string    `json:"platform" validate:"required,max=50"`
	CampaignExternalID string    `json:"campaign_external_id" validate:"required,max=255"`
	Kind               string    `json:"kind" validate:"omitempty,oneof=click lead_form message call"`
	LeadFormID         *string   `json:"lead_form_id" validate:"omitempty,max=255"`
	OccurredAt         time.Time `json:"occurred_at"`
	Converted          bool      `json:"converted"`
}

// IngestResult reports what happened to a delivery
type IngestResult struct {
	Duplicate   bool                 `json:"duplicate"`
	Attribution *AttributionResponse `json:"attribution,omitempty"`
}

// LeadIngestor turns ad-platform webhook deliveries into attribution updates.
// Platforms redeliver on timeouts, so each delivery ID is processed once.
type LeadIngestor struct {
	attribution *AttributionService
	store       shared.IdempotencyStore
	logger      *zap.Logger
	opts        options
}

// NewLeadIngestor creates a new LeadIngestor
func NewLeadIngestor(attribution *AttributionService, store shared.IdempotencyStore, logger *zap.Logger, opts ...Option) *LeadIngestor {
	return &LeadIngestor{
		attribution: attribution,
		store:       store,
		logger:      logger,
		opts:        buildOptions(opts),
	}
}

// Ingest records the delivery's interaction and, for conversion deliveries,
// marks the edge converted
func (i *LeadIngestor) Ingest(ctx context.Context, hook LeadWebhook) (*IngestResult, error) {
	if err := validateRequest(hook); err != nil {
		return nil, err
	}

	ctx = logger.WithCustomerID(logger.WithCorrelationID(ctx, hook.DeliveryID), hook.CustomerID.String())
	log := logger.For(ctx, i.logger)

	key := webhookKeyPrefix + crm.CampaignRef{Platform: hook.Platform}.Normalize().Platform + ":" + hook.DeliveryID
	isNew, err := i.store.MarkProcessed(ctx, key, i.opts.settings.WebhookDedupTTL)
	if err != nil {
		// Processing twice is safer than dropping a lead
		log.Warn("failed to check webhook delivery, processing anyway", zap.Error(err))
	} else if !isNew {
		log.Debug("duplicate webhook delivery skipped")
		return &IngestResult{Duplicate: true}, nil
	}

	result, err := i.process(ctx, hook)
	if err != nil {
		// Let the platform's redelivery try again
		if releaseErr := i.store.Release(ctx, key); releaseErr != nil {
			log.Warn("failed to release webhook delivery key", zap.Error(releaseErr))
		}
		return nil, err
	}
	return result, nil
}

func (i *LeadIngestor) process(ctx context.Context, hook LeadWebhook) (*IngestResult, error) {
	req := RecordInteractionRequest{
		CustomerID: hook.CustomerID,
		Platform:   hook.Platform,
		ExternalID: hook.CampaignExternalID,
		OccurredAt: hook.OccurredAt,
		Kind:       hook.Kind,
		LeadFormID: hook.LeadFormID,
	}
	record := i.attribution.RecordInteraction
	if hook.Converted {
		// the bump and the conversion commit together so a released key
		// never leads to a second bump on redelivery
		record = i.attribution.RecordConvertedInteraction
	}
	attribution, err := record(ctx, req)
	if err != nil {
		return nil, err
	}
	return &IngestResult{Attribution: attribution}, nil
}
