package crm

import (
	"context"
	"strings"
	"time"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttributionService matches customers to the ad campaigns that brought them in
type AttributionService struct {
	scope  TransactionScope
	logger *zap.Logger
	opts   options
}

// NewAttributionService creates a new AttributionService
func NewAttributionService(scope TransactionScope, logger *zap.Logger, opts ...Option) *AttributionService {
	return &AttributionService{
		scope:  scope,
		logger: logger,
		opts:   buildOptions(opts),
	}
}

// RecordInteraction registers one ad interaction. The customer record and the
// campaign are created on first sight; the attribution edge is inserted or
// bumped atomically. The first edge ever created for a record becomes its
// primary attribution.
func (s *AttributionService) RecordInteraction(ctx context.Context, req RecordInteractionRequest) (*AttributionResponse, error) {
	return s.recordInteraction(ctx, req, false)
}

// RecordConvertedInteraction is RecordInteraction followed by MarkConverted
// on the same edge, in one transaction. A failed conversion leaves the
// interaction count untouched, so the caller can safely retry.
func (s *AttributionService) RecordConvertedInteraction(ctx context.Context, req RecordInteractionRequest) (*AttributionResponse, error) {
	return s.recordInteraction(ctx, req, true)
}

func (s *AttributionService) recordInteraction(ctx context.Context, req RecordInteractionRequest, convert bool) (*AttributionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	interaction := crm.Interaction{
		At:         req.OccurredAt,
		Kind:       crm.InteractionKind(req.Kind),
		LeadFormID: req.LeadFormID,
	}
	if interaction.At.IsZero() {
		interaction.At = s.opts.clock()
	}
	if err := interaction.Validate(); err != nil {
		return nil, err
	}
	ref := crm.CampaignRef{Platform: req.Platform, ExternalID: req.ExternalID}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	ref = ref.Normalize()

	var (
		response  AttributionResponse
		inserted  bool
		converted bool
	)
	run := func() error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			edge, record, err := s.touchEdge(ctx, repos, req.CustomerID, ref, interaction, &inserted)
			if err != nil {
				return err
			}
			if convert {
				if converted, err = convertEdge(ctx, repos, edge, interaction.At); err != nil {
					return err
				}
			}
			response = ToAttributionResponse(edge, record.AdAttributionID)
			return nil
		})
	}
	var err error
	if convert {
		err = withConflictRetry(s.logger, s.opts.metrics, "record_converted_interaction", run)
	} else {
		err = run()
	}
	if err != nil {
		return nil, err
	}

	s.opts.metrics.RecordInteraction(ctx, ref.Platform, inserted)
	s.logger.Debug("ad interaction recorded",
		zap.String("customer_id", req.CustomerID.String()),
		zap.String("platform", ref.Platform),
		zap.String("external_id", ref.ExternalID),
		zap.Int("interaction_count", response.InteractionCount),
	)
	if converted {
		s.logConversion(ctx, req.CustomerID, response.ID, ref.Platform)
	}
	return &response, nil
}

// touchEdge inserts or bumps the customer's edge to the campaign and assigns
// the primary attribution when the record has none. The returned record's
// AdAttributionID reflects the committed primary.
func (s *AttributionService) touchEdge(
	ctx context.Context,
	repos TransactionalRepositories,
	customerID uuid.UUID,
	ref crm.CampaignRef,
	interaction crm.Interaction,
	inserted *bool,
) (*crm.AdAttribution, *crm.CustomerRecord, error) {
	record, err := ensureRecord(ctx, repos, customerID)
	if err != nil {
		return nil, nil, err
	}
	campaign, err := s.ensureCampaign(ctx, repos, ref, "")
	if err != nil {
		return nil, nil, err
	}

	candidate, err := crm.NewAdAttribution(record.ID, campaign.ID, interaction)
	if err != nil {
		return nil, nil, err
	}
	if *inserted, err = repos.Attributions().Touch(ctx, candidate); err != nil {
		return nil, nil, err
	}
	if *inserted {
		if err := repos.Outbox().Append(ctx, crm.NewAttributionCreatedEvent(candidate)); err != nil {
			return nil, nil, err
		}
	}

	edge, err := repos.Attributions().FindByPair(ctx, record.ID, campaign.ID)
	if err != nil {
		return nil, nil, err
	}

	if record.AdAttributionID == nil {
		assigned, err := repos.CustomerRecords().AssignPrimaryAttribution(ctx, record.ID, edge.ID)
		if err != nil {
			return nil, nil, err
		}
		if assigned {
			record.AdAttributionID = &edge.ID
			if err := repos.Outbox().Append(ctx, crm.NewPrimaryAttributionAssignedEvent(record.ID, edge)); err != nil {
				return nil, nil, err
			}
		}
	}
	if campaign.Platform == crm.PlatformFacebook && record.FacebookCampaignID == nil {
		if _, err := repos.CustomerRecords().AssignFacebookCampaign(ctx, record.ID, campaign.ExternalID); err != nil {
			return nil, nil, err
		}
	}

	if record.AdAttributionID == nil {
		// Another transaction assigned it first
		fresh, err := repos.CustomerRecords().FindByID(ctx, record.ID)
		if err != nil {
			return nil, nil, err
		}
		record.AdAttributionID = fresh.AdAttributionID
	}
	return edge, record, nil
}

// convertEdge flags the edge converted and persists it. It reports false
// when the edge had already converted.
func convertEdge(ctx context.Context, repos TransactionalRepositories, edge *crm.AdAttribution, at time.Time) (bool, error) {
	if !edge.MarkConverted(at) {
		return false, nil
	}
	if err := repos.Attributions().SaveWithLock(ctx, edge); err != nil {
		return false, err
	}
	if err := flushEvents(ctx, repos.Outbox(), edge); err != nil {
		return false, err
	}
	return true, nil
}

func (s *AttributionService) logConversion(ctx context.Context, customerID, attributionID uuid.UUID, platform string) {
	s.opts.metrics.RecordConversion(ctx, platform)
	s.logger.Info("attribution converted",
		zap.String("customer_id", customerID.String()),
		zap.String("attribution_id", attributionID.String()),
		zap.String("platform", platform),
	)
}

// MarkConverted flags the edge between a customer and a campaign as
// converted. A second call leaves the first conversion time in place.
func (s *AttributionService) MarkConverted(ctx context.Context, req MarkConvertedRequest) (*AttributionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return s.markConverted(ctx, req.CustomerID, req.ConvertedAt, func(repos TransactionalRepositories) (*crm.AdCampaign, error) {
		return repos.Campaigns().FindByID(ctx, req.CampaignID)
	})
}

// MarkConvertedByRef is MarkConverted for callers that only know the
// platform's campaign ID
func (s *AttributionService) MarkConvertedByRef(ctx context.Context, customerID uuid.UUID, ref crm.CampaignRef, at time.Time) (*AttributionResponse, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return s.markConverted(ctx, customerID, at, func(repos TransactionalRepositories) (*crm.AdCampaign, error) {
		return repos.Campaigns().FindByRef(ctx, ref.Normalize())
	})
}

func (s *AttributionService) markConverted(
	ctx context.Context,
	customerID uuid.UUID,
	at time.Time,
	findCampaign func(repos TransactionalRepositories) (*crm.AdCampaign, error),
) (*AttributionResponse, error) {
	if at.IsZero() {
		at = s.opts.clock()
	}

	var (
		response  AttributionResponse
		converted bool
		platform  string
	)
	err := withConflictRetry(s.logger, s.opts.metrics, "mark_converted", func() error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			record, err := repos.CustomerRecords().FindByCustomerID(ctx, customerID)
			if err != nil {
				return err
			}
			campaign, err := findCampaign(repos)
			if err != nil {
				return err
			}
			platform = campaign.Platform

			edge, err := repos.Attributions().FindByPair(ctx, record.ID, campaign.ID)
			if err != nil {
				return err
			}
			if converted, err = convertEdge(ctx, repos, edge, at); err != nil {
				return err
			}
			response = ToAttributionResponse(edge, record.AdAttributionID)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if converted {
		s.logConversion(ctx, customerID, response.ID, platform)
	}
	return &response, nil
}

// ListAttributions returns every attribution edge of a customer
func (s *AttributionService) ListAttributions(ctx context.Context, customerID uuid.UUID) ([]AttributionResponse, error) {
	var responses []AttributionResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		record, err := repos.CustomerRecords().FindByCustomerID(ctx, customerID)
		if err != nil {
			return err
		}
		edges, err := repos.Attributions().FindByCustomerRecord(ctx, record.ID)
		if err != nil {
			return err
		}
		responses = make([]AttributionResponse, len(edges))
		for i := range edges {
			responses[i] = ToAttributionResponse(&edges[i], record.AdAttributionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// UpsertCampaign creates a campaign or refreshes its synced details
func (s *AttributionService) UpsertCampaign(ctx context.Context, req UpsertCampaignRequest) (*AdCampaignResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	ref := crm.CampaignRef{Platform: req.Platform, ExternalID: req.ExternalID}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	ref = ref.Normalize()

	details := crm.CampaignDetails{
		Name:         req.Name,
		OwnerAgentID: req.OwnerAgentID,
		Budget:       req.Budget,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Metadata: crm.CampaignMetadata{
			Objective:  req.Objective,
			AdSetID:    req.AdSetID,
			CreativeID: req.CreativeID,
			UTMSource:  req.UTMSource,
		},
	}

	var response AdCampaignResponse
	err := withConflictRetry(s.logger, s.opts.metrics, "upsert_campaign", func() error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			campaign, err := s.ensureCampaign(ctx, repos, ref, req.Name)
			if err != nil {
				return err
			}
			if err := campaign.UpdateDetails(details); err != nil {
				return err
			}
			if err := repos.Campaigns().SaveWithLock(ctx, campaign); err != nil {
				return err
			}
			response = ToAdCampaignResponse(campaign)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// GetCampaign retrieves a campaign by ID
func (s *AttributionService) GetCampaign(ctx context.Context, id uuid.UUID) (*AdCampaignResponse, error) {
	var response AdCampaignResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		campaign, err := repos.Campaigns().FindByID(ctx, id)
		if err != nil {
			return err
		}
		response = ToAdCampaignResponse(campaign)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// ListCampaigns lists campaigns with pagination
func (s *AttributionService) ListCampaigns(ctx context.Context, filter CampaignListFilter) (*shared.Page[AdCampaignResponse], error) {
	if err := validateRequest(filter); err != nil {
		return nil, err
	}
	query := shared.NewPageQuery(filter.Page, filter.PageSize)

	var result shared.Page[AdCampaignResponse]
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		campaigns, total, err := repos.Campaigns().FindAll(ctx, strings.ToLower(strings.TrimSpace(filter.Platform)), query)
		if err != nil {
			return err
		}
		items := make([]AdCampaignResponse, len(campaigns))
		for i := range campaigns {
			items[i] = ToAdCampaignResponse(&campaigns[i])
		}
		result = shared.NewPage(items, total, query)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ensureCampaign finds or creates the campaign for ref
func (s *AttributionService) ensureCampaign(ctx context.Context, repos TransactionalRepositories, ref crm.CampaignRef, name string) (*crm.AdCampaign, error) {
	candidate, err := crm.NewAdCampaign(ref, name)
	if err != nil {
		return nil, err
	}
	campaign, created, err := repos.Campaigns().Ensure(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		if err := flushEvents(ctx, repos.Outbox(), candidate); err != nil {
			return nil, err
		}
		s.logger.Info("ad campaign registered",
			zap.String("campaign_id", campaign.ID.String()),
			zap.String("platform", campaign.Platform),
			zap.String("external_id", campaign.ExternalID),
		)
	}
	return campaign, nil
}
