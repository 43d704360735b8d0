package models

import (
	"time"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomerRecordModel is the persistence model for the CustomerRecord aggregate
type CustomerRecordModel struct {
	AggregateModel
	CustomerID            uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex"`
	Status                crm.CustomerStatus `gorm:"type:varchar(20);not null;default:'new';index"`
	LifetimeValue         decimal.Decimal    `gorm:"type:decimal(18,2);not null;default:0"`
	TotalAppointments     int                `gorm:"not null;default:0"`
	CompletedAppointments int                `gorm:"not null;default:0"`
	CancelledAppointments int                `gorm:"not null;default:0"`
	IsRepeatCustomer      bool               `gorm:"not null;default:false"`
	FacebookCampaignID    *string            `gorm:"type:varchar(255)"`
	AdAttributionID       *uuid.UUID         `gorm:"type:uuid"`
	LastActivityAt        *time.Time
}

// TableName returns the table name for GORM
func (CustomerRecordModel) TableName() string {
	return "customer_records"
}

// CustomerRecordLifecycleColumns are the columns written by SaveWithLock.
// The attribution columns are set-once and owned by conditional updates.
var CustomerRecordLifecycleColumns = []string{
	"status", "lifetime_value", "total_appointments", "completed_appointments",
	"cancelled_appointments", "is_repeat_customer", "last_activity_at", "version", "updated_at",
}

// ToDomain converts the persistence model to a domain CustomerRecord
func (m *CustomerRecordModel) ToDomain() *crm.CustomerRecord {
	return &crm.CustomerRecord{
		BaseAggregateRoot:     m.ToDomainAggregateRoot(),
		CustomerID:            m.CustomerID,
		Status:                m.Status,
		LifetimeValue:         m.LifetimeValue,
		TotalAppointments:     m.TotalAppointments,
		CompletedAppointments: m.CompletedAppointments,
		CancelledAppointments: m.CancelledAppointments,
		IsRepeatCustomer:      m.IsRepeatCustomer,
		FacebookCampaignID:    m.FacebookCampaignID,
		AdAttributionID:       m.AdAttributionID,
		LastActivityAt:        m.LastActivityAt,
	}
}

// CustomerRecordModelFromDomain creates a persistence model from a domain CustomerRecord
func CustomerRecordModelFromDomain(r *crm.CustomerRecord) *CustomerRecordModel {
	m := &CustomerRecordModel{
		CustomerID:            r.CustomerID,
		Status:                r.Status,
		LifetimeValue:         r.LifetimeValue,
		TotalAppointments:     r.TotalAppointments,
		CompletedAppointments: r.CompletedAppointments,
		CancelledAppointments: r.CancelledAppointments,
		IsRepeatCustomer:      r.IsRepeatCustomer,
		FacebookCampaignID:    r.FacebookCampaignID,
		AdAttributionID:       r.AdAttributionID,
		LastActivityAt:        utcPtr(r.LastActivityAt),
	}
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	return m
}

// AdCampaignModel is the persistence model for the AdCampaign aggregate
type AdCampaignModel struct {
	AggregateModel
	Platform     string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_ad_campaign_ref,priority:1"`
	ExternalID   string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_ad_campaign_ref,priority:2"`
	OwnerAgentID *uuid.UUID      `gorm:"type:uuid;index"`
	Name         string          `gorm:"type:varchar(255);not null"`
	Budget       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	StartDate    *time.Time
	EndDate      *time.Time
	Metadata     crm.CampaignMetadata `gorm:"type:jsonb;serializer:json"`
}

// TableName returns the table name for GORM
func (AdCampaignModel) TableName() string {
	return "ad_campaigns"
}

// AdCampaignDetailColumns are the columns written by SaveWithLock
var AdCampaignDetailColumns = []string{
	"owner_agent_id", "name", "budget", "start_date", "end_date", "metadata", "version", "updated_at",
}

// ToDomain converts the persistence model to a domain AdCampaign
func (m *AdCampaignModel) ToDomain() *crm.AdCampaign {
	return &crm.AdCampaign{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Platform:          m.Platform,
		ExternalID:        m.ExternalID,
		OwnerAgentID:      m.OwnerAgentID,
		Name:              m.Name,
		Budget:            m.Budget,
		StartDate:         m.StartDate,
		EndDate:           m.EndDate,
		Metadata:          m.Metadata,
	}
}

// AdCampaignModelFromDomain creates a persistence model from a domain AdCampaign
func AdCampaignModelFromDomain(c *crm.AdCampaign) *AdCampaignModel {
	m := &AdCampaignModel{
		Platform:     c.Platform,
		ExternalID:   c.ExternalID,
		OwnerAgentID: c.OwnerAgentID,
		Name:         c.Name,
		Budget:       c.Budget,
		StartDate:    utcPtr(c.StartDate),
		EndDate:      utcPtr(c.EndDate),
		Metadata:     c.Metadata,
	}
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	return m
}

// AdAttributionModel is the persistence model for an attribution edge
type AdAttributionModel struct {
	AggregateModel
	CustomerRecordID    uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_ad_attribution_pair,priority:1"`
	AdCampaignID        uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_ad_attribution_pair,priority:2;index"`
	FirstInteractionAt  time.Time           `gorm:"not null"`
	LastInteractionAt   time.Time           `gorm:"not null"`
	InteractionCount    int                 `gorm:"not null;default:1"`
	LastInteractionKind crm.InteractionKind `gorm:"type:varchar(20);not null;default:'click'"`
	LeadFormID          *string             `gorm:"type:varchar(255)"`
	Converted           bool                `gorm:"not null;default:false"`
	ConvertedAt         *time.Time
}

// TableName returns the table name for GORM
func (AdAttributionModel) TableName() string {
	return "ad_attributions"
}

// ToDomain converts the persistence model to a domain AdAttribution
func (m *AdAttributionModel) ToDomain() *crm.AdAttribution {
	return &crm.AdAttribution{
		BaseAggregateRoot:   m.ToDomainAggregateRoot(),
		CustomerRecordID:    m.CustomerRecordID,
		AdCampaignID:        m.AdCampaignID,
		FirstInteractionAt:  m.FirstInteractionAt,
		LastInteractionAt:   m.LastInteractionAt,
		InteractionCount:    m.InteractionCount,
		LastInteractionKind: m.LastInteractionKind,
		LeadFormID:          m.LeadFormID,
		Converted:           m.Converted,
		ConvertedAt:         m.ConvertedAt,
	}
}

// AdAttributionModelFromDomain creates a persistence model from a domain AdAttribution
func AdAttributionModelFromDomain(a *crm.AdAttribution) *AdAttributionModel {
	m := &AdAttributionModel{
		CustomerRecordID:    a.CustomerRecordID,
		AdCampaignID:        a.AdCampaignID,
		FirstInteractionAt:  a.FirstInteractionAt.UTC(),
		LastInteractionAt:   a.LastInteractionAt.UTC(),
		InteractionCount:    a.InteractionCount,
		LastInteractionKind: a.LastInteractionKind,
		LeadFormID:          a.LeadFormID,
		Converted:           a.Converted,
		ConvertedAt:         utcPtr(a.ConvertedAt),
	}
	m.FromDomainAggregateRoot(a.BaseAggregateRoot)
	return m
}

// CrmActionModel is the persistence model for the CrmAction aggregate
type CrmActionModel struct {
	AggregateModel
	CustomerID    uuid.UUID          `gorm:"type:uuid;not null;index:idx_crm_action_customer_status,priority:1"`
	SalespersonID uuid.UUID          `gorm:"type:uuid;not null;index:idx_crm_action_salesperson_status,priority:1"`
	ActionType    crm.ActionType     `gorm:"type:varchar(50);not null"`
	Title         string             `gorm:"type:varchar(200);not null"`
	Description   string             `gorm:"type:text"`
	Status        crm.ActionStatus   `gorm:"type:varchar(20);not null;default:'pending';index:idx_crm_action_customer_status,priority:2;index:idx_crm_action_salesperson_status,priority:2;index:idx_crm_action_status_due,priority:1"`
	Priority      crm.ActionPriority `gorm:"type:varchar(20);not null;default:'medium'"`
	DueDate       *time.Time         `gorm:"index:idx_crm_action_status_due,priority:2"`
	CompletedAt   *time.Time
	CancelReason  string            `gorm:"type:varchar(500)"`
	Outcome       crm.ActionOutcome `gorm:"type:jsonb;serializer:json"`
}

// TableName returns the table name for GORM
func (CrmActionModel) TableName() string {
	return "crm_actions"
}

// CrmActionStateColumns are the columns written by SaveWithLock
var CrmActionStateColumns = []string{
	"status", "priority", "due_date", "completed_at", "cancel_reason", "outcome", "version", "updated_at",
}

// ToDomain converts the persistence model to a domain CrmAction
func (m *CrmActionModel) ToDomain() *crm.CrmAction {
	return &crm.CrmAction{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		CustomerID:        m.CustomerID,
		SalespersonID:     m.SalespersonID,
		ActionType:        m.ActionType,
		Title:             m.Title,
		Description:       m.Description,
		Status:            m.Status,
		Priority:          m.Priority,
		DueDate:           m.DueDate,
		CompletedAt:       m.CompletedAt,
		CancelReason:      m.CancelReason,
		Outcome:           m.Outcome,
	}
}

// CrmActionModelFromDomain creates a persistence model from a domain CrmAction
func CrmActionModelFromDomain(a *crm.CrmAction) *CrmActionModel {
	m := &CrmActionModel{
		CustomerID:    a.CustomerID,
		SalespersonID: a.SalespersonID,
		ActionType:    a.ActionType,
		Title:         a.Title,
		Description:   a.Description,
		Status:        a.Status,
		Priority:      a.Priority,
		DueDate:       utcPtr(a.DueDate),
		CompletedAt:   utcPtr(a.CompletedAt),
		CancelReason:  a.CancelReason,
		Outcome:       a.Outcome,
	}
	m.FromDomainAggregateRoot(a.BaseAggregateRoot)
	return m
}

// CommunicationEntryModel is the persistence model for a communication log entry
type CommunicationEntryModel struct {
	BaseModel
	CustomerRecordID uuid.UUID                  `gorm:"type:uuid;not null;index:idx_communication_record_time,priority:1"`
	CustomerID       uuid.UUID                  `gorm:"type:uuid;not null;index"`
	Type             crm.CommunicationType      `gorm:"type:varchar(20);not null"`
	Direction        crm.CommunicationDirection `gorm:"type:varchar(10);not null"`
	Status           crm.CommunicationStatus    `gorm:"type:varchar(20);not null"`
	Outcome          string                     `gorm:"type:varchar(255)"`
	Notes            string                     `gorm:"type:text"`
	SalespersonID    *uuid.UUID                 `gorm:"type:uuid;index"`
	ContactAddress   string                     `gorm:"type:varchar(255)"`
	OccurredAt       time.Time                  `gorm:"not null;index:idx_communication_record_time,priority:2"`
}

// TableName returns the table name for GORM
func (CommunicationEntryModel) TableName() string {
	return "communication_entries"
}

// ToDomain converts the persistence model to a domain CommunicationEntry
func (m *CommunicationEntryModel) ToDomain() *crm.CommunicationEntry {
	e := &crm.CommunicationEntry{
		CustomerRecordID: m.CustomerRecordID,
		CustomerID:       m.CustomerID,
		Type:             m.Type,
		Direction:        m.Direction,
		Status:           m.Status,
		Outcome:          m.Outcome,
		Notes:            m.Notes,
		SalespersonID:    m.SalespersonID,
		ContactAddress:   m.ContactAddress,
		OccurredAt:       m.OccurredAt,
	}
	e.BaseEntity = m.BaseModel.ToDomain()
	e.Version = 1
	return e
}

// CommunicationEntryModelFromDomain creates a persistence model from a domain CommunicationEntry
func CommunicationEntryModelFromDomain(e *crm.CommunicationEntry) *CommunicationEntryModel {
	m := &CommunicationEntryModel{
		CustomerRecordID: e.CustomerRecordID,
		CustomerID:       e.CustomerID,
		Type:             e.Type,
		Direction:        e.Direction,
		Status:           e.Status,
		Outcome:          e.Outcome,
		Notes:            e.Notes,
		SalespersonID:    e.SalespersonID,
		ContactAddress:   e.ContactAddress,
		OccurredAt:       e.OccurredAt.UTC(),
	}
	m.FromDomainBaseEntity(e.BaseEntity)
	return m
}

// ReferralNodeModel is the persistence model for a user's referral node
type ReferralNodeModel struct {
	AggregateModel
	UserID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex"`
	ReferralCode *string    `gorm:"type:varchar(6);uniqueIndex"`
	ReferredByID *uuid.UUID `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (ReferralNodeModel) TableName() string {
	return "referral_nodes"
}

// ReferralNodeColumns are the columns written by SaveWithLock
var ReferralNodeColumns = []string{"referral_code", "referred_by_id", "version", "updated_at"}

// ToDomain converts the persistence model to a domain ReferralNode
func (m *ReferralNodeModel) ToDomain() *crm.ReferralNode {
	return &crm.ReferralNode{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		UserID:            m.UserID,
		ReferralCode:      m.ReferralCode,
		ReferredByID:      m.ReferredByID,
	}
}

// ReferralNodeModelFromDomain creates a persistence model from a domain ReferralNode
func ReferralNodeModelFromDomain(n *crm.ReferralNode) *ReferralNodeModel {
	m := &ReferralNodeModel{
		UserID:       n.UserID,
		ReferralCode: n.ReferralCode,
		ReferredByID: n.ReferredByID,
	}
	m.FromDomainAggregateRoot(n.BaseAggregateRoot)
	return m
}

// AllModels lists every CRM model, for AutoMigrate in tests
func AllModels() []any {
	return []any{
		&CustomerRecordModel{},
		&AdCampaignModel{},
		&AdAttributionModel{},
		&CrmActionModel{},
		&CommunicationEntryModel{},
		&ReferralNodeModel{},
	}
}
