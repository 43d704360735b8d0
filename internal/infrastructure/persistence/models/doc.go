// Package models contains the GORM persistence models for the CRM tables.
// Domain aggregates carry no GORM tags; each model here maps one table and
// converts to and from its aggregate with ToDomain and FromDomain.
//
// Files:
// - base.go: BaseModel and AggregateModel (id, timestamps, version)
// - crm.go: customer records, campaigns, attributions, actions,
//   communication log and referral nodes
package models
