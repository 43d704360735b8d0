package crm

import (
	"time"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Attribution DTOs ====================

// RecordInteractionRequest represents one ad interaction by a customer
type RecordInteractionRequest struct {
	CustomerID uuid.UUID `json:"customer_id" validate:"required"`
	Platform   string    `json:"platform" validate:"required,max=50"`
	ExternalID string    `json:"external_id" validate:"required,max=255"`
	OccurredAt time.Time `json:"occurred_at"`
	Kind       string    `json:"kind" validate:"omitempty,oneof=click lead_form message call"`
	LeadFormID *string   `json:"lead_form_id" validate:"omitempty,max=255"`
}

// MarkConvertedRequest represents a conversion reported for a customer and campaign
type MarkConvertedRequest struct {
	CustomerID  uuid.UUID `json:"customer_id" validate:"required"`
	CampaignID  uuid.UUID `json:"campaign_id" validate:"required"`
	ConvertedAt time.Time `json:"converted_at"`
}

// UpsertCampaignRequest carries campaign details synced from an ad platform
type UpsertCampaignRequest struct {
	Platform     string          `json:"platform" validate:"required,max=50"`
	ExternalID   string          `json:"external_id" validate:"required,max=255"`
	Name         string          `json:"name" validate:"max=255"`
	OwnerAgentID *uuid.UUID      `json:"owner_agent_id"`
	Budget       decimal.Decimal `json:"budget"`
	StartDate    *time.Time      `json:"start_date"`
	EndDate      *time.Time      `json:"end_date"`
	Objective    string          `json:"objective" validate:"max=100"`
	AdSetID      string          `json:"ad_set_id" validate:"max=255"`
	CreativeID   string          `json:"creative_id" validate:"max=255"`
	UTMSource    string          `json:"utm_source" validate:"max=255"`
}

// CampaignListFilter filters the campaign list
type CampaignListFilter struct {
	Platform string `json:"platform"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size" validate:"omitempty,max=100"`
}

// AdCampaignResponse represents a campaign
type AdCampaignResponse struct {
	ID           uuid.UUID       `json:"id"`
	Platform     string          `json:"platform"`
	ExternalID   string          `json:"external_id"`
	Name         string          `json:"name"`
	OwnerAgentID *uuid.UUID      `json:"owner_agent_id,omitempty"`
	Budget       decimal.Decimal `json:"budget"`
	StartDate    *time.Time      `json:"start_date,omitempty"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
	Objective    string          `json:"objective,omitempty"`
	AdSetID      string          `json:"ad_set_id,omitempty"`
	CreativeID   string          `json:"creative_id,omitempty"`
	UTMSource    string          `json:"utm_source,omitempty"`
	Version      int             `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ToAdCampaignResponse converts a campaign to its response
func ToAdCampaignResponse(c *crm.AdCampaign) AdCampaignResponse {
	return AdCampaignResponse{
		ID:           c.ID,
		Platform:     c.Platform,
		ExternalID:   c.ExternalID,
		Name:         c.Name,
		OwnerAgentID: c.OwnerAgentID,
		Budget:       c.Budget,
		StartDate:    c.StartDate,
		EndDate:      c.EndDate,
		Objective:    c.Metadata.Objective,
		AdSetID:      c.Metadata.AdSetID,
		CreativeID:   c.Metadata.CreativeID,
		UTMSource:    c.Metadata.UTMSource,
		Version:      c.Version,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// AttributionResponse represents an attribution edge
type AttributionResponse struct {
	ID                  uuid.UUID  `json:"id"`
	CustomerRecordID    uuid.UUID  `json:"customer_record_id"`
	CampaignID          uuid.UUID  `json:"campaign_id"`
	FirstInteractionAt  time.Time  `json:"first_interaction_at"`
	LastInteractionAt   time.Time  `json:"last_interaction_at"`
	InteractionCount    int        `json:"interaction_count"`
	LastInteractionKind string     `json:"last_interaction_kind"`
	LeadFormID          *string    `json:"lead_form_id,omitempty"`
	Converted           bool       `json:"converted"`
	ConvertedAt         *time.Time `json:"converted_at,omitempty"`
	IsPrimary           bool       `json:"is_primary"`
}

// ToAttributionResponse converts an edge to its response
func ToAttributionResponse(a *crm.AdAttribution, primaryID *uuid.UUID) AttributionResponse {
	return AttributionResponse{
		ID:                  a.ID,
		CustomerRecordID:    a.CustomerRecordID,
		CampaignID:          a.AdCampaignID,
		FirstInteractionAt:  a.FirstInteractionAt,
		LastInteractionAt:   a.LastInteractionAt,
		InteractionCount:    a.InteractionCount,
		LastInteractionKind: string(a.LastInteractionKind),
		LeadFormID:          a.LeadFormID,
		Converted:           a.Converted,
		ConvertedAt:         a.ConvertedAt,
		IsPrimary:           primaryID != nil && *primaryID == a.ID,
	}
}

// ==================== Customer Record DTOs ====================

// CustomerRecordResponse represents a customer record
type CustomerRecordResponse struct {
	ID                    uuid.UUID       `json:"id"`
	CustomerID            uuid.UUID       `json:"customer_id"`
	Status                string          `json:"status"`
	LifetimeValue         decimal.Decimal `json:"lifetime_value"`
	TotalAppointments     int             `json:"total_appointments"`
	CompletedAppointments int             `json:"completed_appointments"`
	CancelledAppointments int             `json:"cancelled_appointments"`
	IsRepeatCustomer      bool            `json:"is_repeat_customer"`
	FacebookCampaignID    *string         `json:"facebook_campaign_id,omitempty"`
	AdAttributionID       *uuid.UUID      `json:"ad_attribution_id,omitempty"`
	LastActivityAt        *time.Time      `json:"last_activity_at,omitempty"`
	Version               int             `json:"version"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// ToCustomerRecordResponse converts a record to its response
func ToCustomerRecordResponse(r *crm.CustomerRecord) CustomerRecordResponse {
	return CustomerRecordResponse{
		ID:                    r.ID,
		CustomerID:            r.CustomerID,
		Status:                string(r.Status),
		LifetimeValue:         r.LifetimeValue,
		TotalAppointments:     r.TotalAppointments,
		CompletedAppointments: r.CompletedAppointments,
		CancelledAppointments: r.CancelledAppointments,
		IsRepeatCustomer:      r.IsRepeatCustomer,
		FacebookCampaignID:    r.FacebookCampaignID,
		AdAttributionID:       r.AdAttributionID,
		LastActivityAt:        r.LastActivityAt,
		Version:               r.Version,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

// ==================== CRM Action DTOs ====================

// CreateActionRequest represents a request to create a CRM action
type CreateActionRequest struct {
	CustomerID    uuid.UUID  `json:"customer_id" validate:"required"`
	SalespersonID uuid.UUID  `json:"salesperson_id" validate:"required"`
	ActionType    string     `json:"action_type" validate:"required,oneof=phone_call email follow_up appointment_confirmation treatment_reminder meeting"`
	Title         string     `json:"title" validate:"required,min=1,max=200"`
	Description   string     `json:"description" validate:"max=2000"`
	Priority      string     `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	DueDate       *time.Time `json:"due_date"`
}

// OutcomeInput is the outcome recorded when completing an action
type OutcomeInput struct {
	Clinic            *string          `json:"clinic" validate:"omitempty,max=200"`
	ProposedTreatment *string          `json:"proposed_treatment" validate:"omitempty,max=500"`
	Cost              *decimal.Decimal `json:"cost"`
	CallOutcome       *string          `json:"call_outcome" validate:"omitempty,oneof=answered no_answer busy voicemail wrong_number callback_requested"`
}

func (o *OutcomeInput) toDomain() *crm.ActionOutcome {
	if o == nil {
		return nil
	}
	out := &crm.ActionOutcome{
		Clinic:            o.Clinic,
		ProposedTreatment: o.ProposedTreatment,
		Cost:              o.Cost,
	}
	if o.CallOutcome != nil {
		co := crm.CallOutcome(*o.CallOutcome)
		out.CallOutcome = &co
	}
	return out
}

// TransitionActionRequest represents a status change requested by a salesperson
type TransitionActionRequest struct {
	ActionID    uuid.UUID     `json:"action_id" validate:"required"`
	Status      string        `json:"status" validate:"required,oneof=pending in_progress completed overdue cancelled"`
	CompletedAt *time.Time    `json:"completed_at"`
	Outcome     *OutcomeInput `json:"outcome"`
	Reason      string        `json:"reason" validate:"max=500"`
}

// ActionResponse represents a CRM action
type ActionResponse struct {
	ID            uuid.UUID          `json:"id"`
	CustomerID    uuid.UUID          `json:"customer_id"`
	SalespersonID uuid.UUID          `json:"salesperson_id"`
	ActionType    string             `json:"action_type"`
	Title         string             `json:"title"`
	Description   string             `json:"description,omitempty"`
	Status        string             `json:"status"`
	Priority      string             `json:"priority"`
	DueDate       *time.Time         `json:"due_date,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	CancelReason  string             `json:"cancel_reason,omitempty"`
	Outcome       *crm.ActionOutcome `json:"outcome,omitempty"`
	Version       int                `json:"version"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ToActionResponse converts an action to its response
func ToActionResponse(a *crm.CrmAction) ActionResponse {
	resp := ActionResponse{
		ID:            a.ID,
		CustomerID:    a.CustomerID,
		SalespersonID: a.SalespersonID,
		ActionType:    string(a.ActionType),
		Title:         a.Title,
		Description:   a.Description,
		Status:        string(a.Status),
		Priority:      string(a.Priority),
		DueDate:       a.DueDate,
		CompletedAt:   a.CompletedAt,
		CancelReason:  a.CancelReason,
		Version:       a.Version,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if !a.Outcome.IsEmpty() {
		outcome := a.Outcome
		resp.Outcome = &outcome
	}
	return resp
}

// ToActionResponses converts a list of actions
func ToActionResponses(actions []crm.CrmAction) []ActionResponse {
	out := make([]ActionResponse, len(actions))
	for i := range actions {
		out[i] = ToActionResponse(&actions[i])
	}
	return out
}

// ==================== Communication DTOs ====================

// RecordCommunicationRequest represents a contact to append to the log
type RecordCommunicationRequest struct {
	CustomerID    uuid.UUID  `json:"customer_id" validate:"required"`
	Type          string     `json:"type" validate:"required,oneof=phone_call sms email whatsapp in_person"`
	Direction     string     `json:"direction" validate:"required,oneof=inbound outbound"`
	Status        string     `json:"status" validate:"required,oneof=completed missed no_answer failed voicemail"`
	Outcome       string     `json:"outcome" validate:"max=255"`
	Notes         string     `json:"notes" validate:"max=4000"`
	OccurredAt    time.Time  `json:"occurred_at"`
	SalespersonID *uuid.UUID `json:"salesperson_id"`
	Contact       string     `json:"contact" validate:"max=255"`
}

// CommunicationResponse represents one log entry
type CommunicationResponse struct {
	ID             uuid.UUID  `json:"id"`
	CustomerID     uuid.UUID  `json:"customer_id"`
	Type           string     `json:"type"`
	Direction      string     `json:"direction"`
	Status         string     `json:"status"`
	Outcome        string     `json:"outcome,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	SalespersonID  *uuid.UUID `json:"salesperson_id,omitempty"`
	ContactAddress string     `json:"contact,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// ToCommunicationResponse converts a log entry to its response
func ToCommunicationResponse(e *crm.CommunicationEntry) CommunicationResponse {
	return CommunicationResponse{
		ID:             e.ID,
		CustomerID:     e.CustomerID,
		Type:           string(e.Type),
		Direction:      string(e.Direction),
		Status:         string(e.Status),
		Outcome:        e.Outcome,
		Notes:          e.Notes,
		SalespersonID:  e.SalespersonID,
		ContactAddress: e.ContactAddress,
		OccurredAt:     e.OccurredAt,
	}
}

// ==================== Referral DTOs ====================

// ApplyReferralRequest links a newly registered user to a referrer's code
type ApplyReferralRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Code   string    `json:"code" validate:"required,len=6,alphanum"`
}

// ReferralResponse represents a user's place in the referral forest
type ReferralResponse struct {
	UserID       uuid.UUID  `json:"user_id"`
	ReferralCode string     `json:"referral_code,omitempty"`
	ReferredByID *uuid.UUID `json:"referred_by_id,omitempty"`
}

// ToReferralResponse converts a node to its response
func ToReferralResponse(n *crm.ReferralNode) ReferralResponse {
	resp := ReferralResponse{
		UserID:       n.UserID,
		ReferredByID: n.ReferredByID,
	}
	if n.ReferralCode != nil {
		resp.ReferralCode = *n.ReferralCode
	}
	return resp
}
