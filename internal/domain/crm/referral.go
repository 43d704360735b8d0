package crm

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Referral code format
const (
	ReferralCodeLength   = 6
	ReferralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// DefaultMaxReferralDepth bounds the ancestor walk
const DefaultMaxReferralDepth = 1000

// ReferralNode is a user's position in the referral forest: the code others
// use to name this user as referrer, and a pointer to the user's own referrer
type ReferralNode struct {
	shared.BaseAggregateRoot
	UserID       uuid.UUID
	ReferralCode *string
	ReferredByID *uuid.UUID
}

// NewReferralNode creates an empty node for a user
func NewReferralNode(userID uuid.UUID) (*ReferralNode, error) {
	if userID == uuid.Nil {
		return nil, shared.NewValidationError("User ID cannot be empty")
	}
	return &ReferralNode{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		UserID:            userID,
	}, nil
}

// HasCode returns true once a referral code has been assigned
func (n *ReferralNode) HasCode() bool {
	return n.ReferralCode != nil
}

// AssignCode sets the user's referral code. It can be set only once.
func (n *ReferralNode) AssignCode(code string) error {
	if n.ReferralCode != nil {
		return shared.NewDomainError(shared.CodeAlreadySet, "Referral code has already been assigned")
	}
	code = NormalizeReferralCode(code)
	if err := ValidateReferralCode(code); err != nil {
		return err
	}
	n.ReferralCode = &code
	n.MarkChanged()
	n.AddDomainEvent(NewReferralCodeIssuedEvent(n))
	return nil
}

// SetReferrer records who referred this user. It can be set only once and a
// user cannot refer themselves.
func (n *ReferralNode) SetReferrer(referrer *ReferralNode) error {
	if referrer.UserID == n.UserID {
		return shared.NewDomainError(shared.CodeReferralCycle, "A user cannot refer themselves")
	}
	if n.ReferredByID != nil {
		return shared.NewDomainError(shared.CodeAlreadySet, "Referrer has already been set")
	}
	referrerID := referrer.UserID
	n.ReferredByID = &referrerID
	n.MarkChanged()
	n.AddDomainEvent(NewReferralAppliedEvent(n, referrer))
	return nil
}

// NormalizeReferralCode uppercases and trims a user-supplied code
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateReferralCode checks the code shape
func ValidateReferralCode(code string) error {
	if len(code) != ReferralCodeLength {
		return shared.NewValidationError("Referral code must be 6 characters")
	}
	for _, c := range code {
		if !strings.ContainsRune(ReferralCodeAlphabet, c) {
			return shared.NewValidationError("Referral code may only contain A-Z and 0-9")
		}
	}
	return nil
}

// GenerateReferralCode draws a random code from r, crypto/rand when r is nil
func GenerateReferralCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, ReferralCodeLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	out := make([]byte, ReferralCodeLength)
	for i, b := range buf {
		out[i] = ReferralCodeAlphabet[int(b)%len(ReferralCodeAlphabet)]
	}
	return string(out), nil
}

// ParentLookup returns the referrer of a user, nil for a root
type ParentLookup func(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error)

// EnsureNoReferralCycle walks upward from referrerID. If newUserID is found
// among the referrer and its ancestors, linking newUserID under referrerID
// would close a loop and a REFERRAL_CYCLE error is returned. A chain longer
// than maxDepth is a validation error.
func EnsureNoReferralCycle(ctx context.Context, parentOf ParentLookup, newUserID, referrerID uuid.UUID, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxReferralDepth
	}

	current := referrerID
	for depth := 0; depth <= maxDepth; depth++ {
		if current == newUserID {
			return shared.NewDomainError(shared.CodeReferralCycle, "Referrer is a descendant of the referred user")
		}
		parent, err := parentOf(ctx, current)
		if err != nil {
			return err
		}
		if parent == nil {
			return nil
		}
		current = *parent
	}
	return shared.NewValidationError(fmt.Sprintf("referral chain deeper than %d", maxDepth))
}

// Aggregate type constant
const AggregateTypeReferralNode = "ReferralNode"

// Event type constants
const (
	EventTypeReferralCodeIssued = "ReferralCodeIssued"
	EventTypeReferralApplied    = "ReferralApplied"
)

// ReferralCodeIssuedEvent is published when a user receives a referral code
type ReferralCodeIssuedEvent struct {
	shared.BaseDomainEvent
	UserID uuid.UUID `json:"user_id"`
	Code   string    `json:"code"`
}

// NewReferralCodeIssuedEvent creates a new ReferralCodeIssuedEvent
func NewReferralCodeIssuedEvent(node *ReferralNode) *ReferralCodeIssuedEvent {
	return &ReferralCodeIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReferralCodeIssued, AggregateTypeReferralNode, node.ID),
		UserID:          node.UserID,
		Code:            *node.ReferralCode,
	}
}

// ReferralAppliedEvent is published when a referrer edge is recorded
type ReferralAppliedEvent struct {
	shared.BaseDomainEvent
	UserID       uuid.UUID `json:"user_id"`
	ReferrerID   uuid.UUID `json:"referrer_id"`
	ReferralCode string    `json:"referral_code"`
}

// NewReferralAppliedEvent creates a new ReferralAppliedEvent
func NewReferralAppliedEvent(node, referrer *ReferralNode) *ReferralAppliedEvent {
	code := ""
	if referrer.ReferralCode != nil {
		code = *referrer.ReferralCode
	}
	return &ReferralAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReferralApplied, AggregateTypeReferralNode, node.ID),
		UserID:          node.UserID,
		ReferrerID:      referrer.UserID,
		ReferralCode:    code,
	}
}
