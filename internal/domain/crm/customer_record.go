package crm

import (
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomerStatus represents where a customer is in the sales lifecycle
type CustomerStatus string

const (
	CustomerStatusNew       CustomerStatus = "new"
	CustomerStatusEngaged   CustomerStatus = "engaged"
	CustomerStatusConverted CustomerStatus = "converted"
	CustomerStatusRepeat    CustomerStatus = "repeat"
	CustomerStatusLost      CustomerStatus = "lost"
)

// RepeatCustomerThreshold is the number of completed appointments that makes
// a customer a repeat customer
const RepeatCustomerThreshold = 2

// IsValid checks if the status is a known value
func (s CustomerStatus) IsValid() bool {
	switch s {
	case CustomerStatusNew, CustomerStatusEngaged, CustomerStatusConverted,
		CustomerStatusRepeat, CustomerStatusLost:
		return true
	}
	return false
}

// stage orders the forward statuses. lost sits outside the ordering.
func (s CustomerStatus) stage() int {
	switch s {
	case CustomerStatusNew:
		return 0
	case CustomerStatusEngaged:
		return 1
	case CustomerStatusConverted:
		return 2
	case CustomerStatusRepeat:
		return 3
	}
	return -1
}

// CustomerRecord is the CRM view of a client-role user.
// It is created lazily on the first relevant event and never hard-deleted.
type CustomerRecord struct {
	shared.BaseAggregateRoot
	CustomerID            uuid.UUID
	Status                CustomerStatus
	LifetimeValue         decimal.Decimal
	TotalAppointments     int
	CompletedAppointments int
	CancelledAppointments int
	IsRepeatCustomer      bool
	FacebookCampaignID    *string
	AdAttributionID       *uuid.UUID
	LastActivityAt        *time.Time
}

// NewCustomerRecord creates a record in the new status for the given user
func NewCustomerRecord(customerID uuid.UUID) (*CustomerRecord, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError("Customer ID cannot be empty")
	}

	record := &CustomerRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CustomerID:        customerID,
		Status:            CustomerStatusNew,
		LifetimeValue:     decimal.Zero,
	}
	record.AddDomainEvent(NewCustomerRecordCreatedEvent(record))
	return record, nil
}

// OpenAppointments returns the number of scheduled appointments that have not
// yet been completed or cancelled
func (r *CustomerRecord) OpenAppointments() int {
	return r.TotalAppointments - r.CompletedAppointments - r.CancelledAppointments
}

// ScheduleAppointment registers a newly scheduled appointment.
// new -> engaged, lost -> engaged.
func (r *CustomerRecord) ScheduleAppointment(at time.Time) {
	oldStatus := r.Status
	r.TotalAppointments++
	r.markActive(at)
	r.advanceTo(CustomerStatusEngaged)
	r.commit(oldStatus, "appointment_scheduled")
}

// CompleteAppointment registers a completed appointment worth amount.
// A completion consumes an open scheduled slot when one exists, otherwise it
// counts as a new appointment as well. Status only ever moves forward:
// first completion -> converted, second and later -> repeat.
func (r *CustomerRecord) CompleteAppointment(amount decimal.Decimal, at time.Time) error {
	if amount.IsNegative() {
		return shared.NewValidationError("Appointment amount cannot be negative")
	}

	oldStatus := r.Status
	oldValue := r.LifetimeValue

	if r.OpenAppointments() == 0 {
		r.TotalAppointments++
	}
	r.CompletedAppointments++
	r.LifetimeValue = r.LifetimeValue.Add(amount)
	r.IsRepeatCustomer = r.CompletedAppointments >= RepeatCustomerThreshold
	r.markActive(at)

	target := CustomerStatusConverted
	if r.IsRepeatCustomer {
		target = CustomerStatusRepeat
	}
	r.advanceTo(target)

	if !amount.IsZero() {
		r.AddDomainEvent(NewLifetimeValueChangedEvent(r, oldValue, "appointment_completed"))
	}
	r.commit(oldStatus, "appointment_completed")
	return nil
}

// CancelAppointment registers a cancelled appointment. It never decrements
// totals; a cancellation with no open slot also counts toward the total so
// that completed + cancelled never exceeds total.
func (r *CustomerRecord) CancelAppointment() {
	if r.OpenAppointments() == 0 {
		r.TotalAppointments++
	}
	r.CancelledAppointments++
	r.commit(r.Status, "appointment_cancelled")
}

// Refund lowers the lifetime value. It is the only operation allowed to
// decrease it and never takes it below zero.
func (r *CustomerRecord) Refund(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewValidationError("Refund amount must be positive")
	}
	if amount.GreaterThan(r.LifetimeValue) {
		return shared.NewValidationError("Refund amount exceeds lifetime value")
	}

	oldValue := r.LifetimeValue
	r.LifetimeValue = r.LifetimeValue.Sub(amount)
	r.AddDomainEvent(NewLifetimeValueChangedEvent(r, oldValue, "refund"))
	r.commit(r.Status, "refund")
	return nil
}

// MarkLost retires the record after prolonged inactivity.
// Returns false when the record is already lost.
func (r *CustomerRecord) MarkLost() bool {
	if r.Status == CustomerStatusLost {
		return false
	}
	oldStatus := r.Status
	r.Status = CustomerStatusLost
	r.commit(oldStatus, "inactivity")
	return true
}

// RegisterActivity records renewed customer-initiated activity.
// new -> engaged, lost -> engaged.
func (r *CustomerRecord) RegisterActivity(at time.Time) {
	oldStatus := r.Status
	r.markActive(at)
	r.advanceTo(CustomerStatusEngaged)
	r.commit(oldStatus, "activity")
}

// CheckInvariants verifies the counter and value invariants
func (r *CustomerRecord) CheckInvariants() error {
	if r.TotalAppointments < 0 || r.CompletedAppointments < 0 || r.CancelledAppointments < 0 {
		return shared.NewValidationError("Appointment counters cannot be negative")
	}
	if r.CompletedAppointments+r.CancelledAppointments > r.TotalAppointments {
		return shared.NewValidationError("Completed plus cancelled appointments exceed total")
	}
	if r.LifetimeValue.IsNegative() {
		return shared.NewValidationError("Lifetime value cannot be negative")
	}
	if r.IsRepeatCustomer != (r.CompletedAppointments >= RepeatCustomerThreshold) {
		return shared.NewValidationError("Repeat customer flag out of sync with completed appointments")
	}
	return nil
}

// advanceTo moves the status forward to target, reactivating a lost record
// first. It never moves backwards.
func (r *CustomerRecord) advanceTo(target CustomerStatus) {
	if r.Status == CustomerStatusLost {
		r.Status = CustomerStatusEngaged
	}
	if target.stage() > r.Status.stage() {
		r.Status = target
	}
}

func (r *CustomerRecord) markActive(at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	if r.LastActivityAt == nil || at.After(*r.LastActivityAt) {
		r.LastActivityAt = &at
	}
}

func (r *CustomerRecord) commit(oldStatus CustomerStatus, reason string) {
	if oldStatus != r.Status {
		r.AddDomainEvent(NewCustomerStatusChangedEvent(r, oldStatus, r.Status, reason))
	}
	r.MarkChanged()
}
