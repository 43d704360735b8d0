package crm

import (
	"strings"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// CallOutcome is the result of a phone call action
type CallOutcome string

const (
	CallOutcomeAnswered          CallOutcome = "answered"
	CallOutcomeNoAnswer          CallOutcome = "no_answer"
	CallOutcomeBusy              CallOutcome = "busy"
	CallOutcomeVoicemail         CallOutcome = "voicemail"
	CallOutcomeWrongNumber       CallOutcome = "wrong_number"
	CallOutcomeCallbackRequested CallOutcome = "callback_requested"
)

// IsValid checks if the call outcome is a known value
func (o CallOutcome) IsValid() bool {
	switch o {
	case CallOutcomeAnswered, CallOutcomeNoAnswer, CallOutcomeBusy,
		CallOutcomeVoicemail, CallOutcomeWrongNumber, CallOutcomeCallbackRequested:
		return true
	}
	return false
}

// OutcomeOption names one recognised outcome field
type OutcomeOption string

const (
	OutcomeOptionClinic            OutcomeOption = "clinic"
	OutcomeOptionProposedTreatment OutcomeOption = "proposed_treatment"
	OutcomeOptionCost              OutcomeOption = "cost"
	OutcomeOptionCallOutcome       OutcomeOption = "call_outcome"
)

// recognisedOutcomeOptions enumerates the outcome fields each action type accepts
var recognisedOutcomeOptions = map[ActionType][]OutcomeOption{
	ActionTypePhoneCall:               {OutcomeOptionCallOutcome, OutcomeOptionProposedTreatment, OutcomeOptionClinic},
	ActionTypeMeeting:                 {OutcomeOptionClinic, OutcomeOptionProposedTreatment, OutcomeOptionCost},
	ActionTypeFollowUp:                {OutcomeOptionClinic, OutcomeOptionProposedTreatment, OutcomeOptionCost},
	ActionTypeAppointmentConfirmation: {OutcomeOptionClinic, OutcomeOptionProposedTreatment, OutcomeOptionCost},
	ActionTypeTreatmentReminder:       {OutcomeOptionClinic, OutcomeOptionProposedTreatment, OutcomeOptionCost},
	ActionTypeEmail:                   {},
}

// RecognisedOutcomeOptions returns the outcome fields accepted for an action type
func RecognisedOutcomeOptions(t ActionType) []OutcomeOption {
	return recognisedOutcomeOptions[t]
}

// ActionOutcome is the typed result recorded when an action is completed
type ActionOutcome struct {
	Clinic            *string          `json:"clinic,omitempty"`
	ProposedTreatment *string          `json:"proposed_treatment,omitempty"`
	Cost              *decimal.Decimal `json:"cost,omitempty"`
	CallOutcome       *CallOutcome     `json:"call_outcome,omitempty"`
}

// IsEmpty returns true if no outcome field is set
func (o ActionOutcome) IsEmpty() bool {
	return len(o.setOptions()) == 0
}

func (o ActionOutcome) setOptions() []OutcomeOption {
	var opts []OutcomeOption
	if o.Clinic != nil {
		opts = append(opts, OutcomeOptionClinic)
	}
	if o.ProposedTreatment != nil {
		opts = append(opts, OutcomeOptionProposedTreatment)
	}
	if o.Cost != nil {
		opts = append(opts, OutcomeOptionCost)
	}
	if o.CallOutcome != nil {
		opts = append(opts, OutcomeOptionCallOutcome)
	}
	return opts
}

// ValidateFor checks that every set field is recognised for the action type
// and holds a valid value
func (o ActionOutcome) ValidateFor(t ActionType) error {
	allowed := recognisedOutcomeOptions[t]
	for _, opt := range o.setOptions() {
		if !containsOption(allowed, opt) {
			return shared.NewValidationError("Outcome option " + string(opt) + " is not recognised for action type " + string(t))
		}
	}

	if o.Clinic != nil && strings.TrimSpace(*o.Clinic) == "" {
		return shared.NewValidationError("Outcome clinic cannot be blank")
	}
	if o.ProposedTreatment != nil && strings.TrimSpace(*o.ProposedTreatment) == "" {
		return shared.NewValidationError("Outcome proposed treatment cannot be blank")
	}
	if o.Cost != nil && o.Cost.IsNegative() {
		return shared.NewValidationError("Outcome cost cannot be negative")
	}
	if o.CallOutcome != nil && !o.CallOutcome.IsValid() {
		return shared.NewValidationError("Invalid call outcome: " + string(*o.CallOutcome))
	}
	return nil
}

func containsOption(opts []OutcomeOption, target OutcomeOption) bool {
	for _, o := range opts {
		if o == target {
			return true
		}
	}
	return false
}
