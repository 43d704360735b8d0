package crm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errCodeTaken = errors.New("referral code already taken")

// ReferralService issues referral codes and links users into the referral forest
type ReferralService struct {
	scope  TransactionScope
	random io.Reader
	logger *zap.Logger
	opts   options
}

// NewReferralService creates a new ReferralService
func NewReferralService(scope TransactionScope, logger *zap.Logger, opts ...Option) *ReferralService {
	return &ReferralService{
		scope:  scope,
		logger: logger,
		opts:   buildOptions(opts),
	}
}

// SetRandomSource replaces crypto/rand as the code source
func (s *ReferralService) SetRandomSource(r io.Reader) {
	s.random = r
}

// IssueCode returns the user's referral code, generating one on first call.
// Each attempt runs in its own transaction so a collision on the unique index
// does not poison the next try.
func (s *ReferralService) IssueCode(ctx context.Context, userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", shared.NewValidationError("User ID cannot be empty")
	}

	attempts := s.opts.settings.ReferralCodeAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		code, err := crm.GenerateReferralCode(s.random)
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}

		var issued string
		err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			node, isNew, err := findOrNewNode(ctx, repos, userID)
			if err != nil {
				return err
			}
			if node.HasCode() {
				issued = *node.ReferralCode
				return nil
			}

			taken, err := repos.Referrals().ExistsByCode(ctx, code)
			if err != nil {
				return err
			}
			if taken {
				return errCodeTaken
			}

			if err := node.AssignCode(code); err != nil {
				return err
			}
			if err := saveNode(ctx, repos, node, isNew); err != nil {
				return err
			}
			issued = code
			return nil
		})
		if err == nil {
			return issued, nil
		}
		if errors.Is(err, errCodeTaken) ||
			errors.Is(err, shared.ErrAlreadyExists) ||
			errors.Is(err, shared.ErrConcurrencyConflict) {
			s.logger.Debug("referral code attempt collided",
				zap.String("user_id", userID.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		return "", err
	}

	return "", fmt.Errorf("%w: no free referral code after %d attempts", shared.ErrAlreadyExists, attempts)
}

// ApplyReferral records that userID was referred by the owner of code.
// Fails NOT_FOUND for an unknown code, REFERRAL_CYCLE when the referrer is
// userID or one of its descendants, and ALREADY_SET when userID already has
// a referrer.
func (s *ReferralService) ApplyReferral(ctx context.Context, req ApplyReferralRequest) (*ReferralResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	code := crm.NormalizeReferralCode(req.Code)

	var (
		response   ReferralResponse
		referrerID uuid.UUID
	)
	err := withConflictRetry(s.logger, s.opts.metrics, "apply_referral", func() error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			// concurrent A->B and B->A links would each see an acyclic chain
			if err := repos.Referrals().LockForest(ctx); err != nil {
				return err
			}
			referrer, err := repos.Referrals().FindByCode(ctx, code)
			if err != nil {
				return err
			}
			referrerID = referrer.UserID

			err = crm.EnsureNoReferralCycle(ctx, repos.Referrals().FindParentID, req.UserID, referrer.UserID, s.opts.settings.ReferralMaxDepth)
			if err != nil {
				return err
			}

			node, isNew, err := findOrNewNode(ctx, repos, req.UserID)
			if err != nil {
				return err
			}
			if err := node.SetReferrer(referrer); err != nil {
				return err
			}
			if err := saveNode(ctx, repos, node, isNew); err != nil {
				return err
			}
			response = ToReferralResponse(node)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.opts.metrics.RecordReferralApplied(ctx)
	s.logger.Info("referral applied",
		zap.String("user_id", req.UserID.String()),
		zap.String("referrer_id", referrerID.String()),
	)
	return &response, nil
}

// GetReferral returns a user's node
func (s *ReferralService) GetReferral(ctx context.Context, userID uuid.UUID) (*ReferralResponse, error) {
	var response ReferralResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		node, err := repos.Referrals().FindByUserID(ctx, userID)
		if err != nil {
			return err
		}
		response = ToReferralResponse(node)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// Ancestors returns the referral chain above a user, nearest referrer first
func (s *ReferralService) Ancestors(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	maxDepth := s.opts.settings.ReferralMaxDepth
	var chain []uuid.UUID
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		seen := map[uuid.UUID]bool{userID: true}
		current := userID
		for len(chain) < maxDepth {
			parent, err := repos.Referrals().FindParentID(ctx, current)
			if err != nil {
				return err
			}
			if parent == nil {
				return nil
			}
			if seen[*parent] {
				return shared.NewDomainError(shared.CodeReferralCycle, "Referral chain contains a loop")
			}
			seen[*parent] = true
			chain = append(chain, *parent)
			current = *parent
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

func findOrNewNode(ctx context.Context, repos TransactionalRepositories, userID uuid.UUID) (*crm.ReferralNode, bool, error) {
	node, err := repos.Referrals().FindByUserID(ctx, userID)
	if err == nil {
		return node, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}
	node, err = crm.NewReferralNode(userID)
	if err != nil {
		return nil, false, err
	}
	return node, true, nil
}

func saveNode(ctx context.Context, repos TransactionalRepositories, node *crm.ReferralNode, isNew bool) error {
	var err error
	if isNew {
		err = repos.Referrals().Create(ctx, node)
	} else {
		err = repos.Referrals().SaveWithLock(ctx, node)
	}
	if err != nil {
		return err
	}
	return flushEvents(ctx, repos.Outbox(), node)
}
