package crm

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// codeBytes yields raw bytes that GenerateReferralCode maps to the given
// repeated alphabet letter, six per code
func codeBytes(letters ...byte) *bytes.Reader {
	var buf []byte
	for _, l := range letters {
		idx := bytes.IndexByte([]byte(crm.ReferralCodeAlphabet), l)
		buf = append(buf, bytes.Repeat([]byte{byte(idx)}, crm.ReferralCodeLength)...)
	}
	return bytes.NewReader(buf)
}

func newReferralTestService(scope *fakeScope, random *bytes.Reader, opts ...Option) *ReferralService {
	svc := NewReferralService(scope, zap.NewNop(), opts...)
	svc.SetRandomSource(random)
	return svc
}

func TestReferralService_IssueCode(t *testing.T) {
	t.Run("retries after a collision in a fresh transaction", func(t *testing.T) {
		scope := newFakeScope()
		referrals := new(MockReferralRepository)
		scope.repos.referrals = referrals
		userID := uuid.New()

		referrals.On("FindByUserID", mock.Anything, userID).Return(nil, shared.NewNotFoundError("referral", userID))
		referrals.On("ExistsByCode", mock.Anything, "AAAAAA").Return(true, nil)
		referrals.On("ExistsByCode", mock.Anything, "BBBBBB").Return(false, nil)
		referrals.On("Create", mock.Anything, mock.MatchedBy(func(n *crm.ReferralNode) bool {
			return n.UserID == userID && *n.ReferralCode == "BBBBBB"
		})).Return(nil)

		code, err := newReferralTestService(scope, codeBytes('A', 'B')).IssueCode(context.Background(), userID)

		require.NoError(t, err)
		assert.Equal(t, "BBBBBB", code)
		assert.Equal(t, 2, scope.calls)
		assert.Equal(t, []string{crm.EventTypeReferralCodeIssued}, scope.repos.sink.types())
	})

	t.Run("unique index race counts as a collision", func(t *testing.T) {
		scope := newFakeScope()
		referrals := new(MockReferralRepository)
		scope.repos.referrals = referrals
		userID := uuid.New()

		referrals.On("FindByUserID", mock.Anything, userID).Return(nil, shared.NewNotFoundError("referral", userID))
		referrals.On("ExistsByCode", mock.Anything, mock.Anything).Return(false, nil)
		referrals.On("Create", mock.Anything, mock.Anything).Return(shared.ErrAlreadyExists).Once()
		referrals.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

		code, err := newReferralTestService(scope, codeBytes('C', 'D')).IssueCode(context.Background(), userID)

		require.NoError(t, err)
		assert.Equal(t, "DDDDDD", code)
	})

	t.Run("existing code is returned unchanged", func(t *testing.T) {
		scope := newFakeScope()
		referrals := new(MockReferralRepository)
		scope.repos.referrals = referrals

		node, err := crm.NewReferralNode(uuid.New())
		require.NoError(t, err)
		require.NoError(t, node.AssignCode("XYZ123"))
		referrals.On("FindByUserID", mock.Anything, node.UserID).Return(node, nil)

		code, err := newReferralTestService(scope, codeBytes('A')).IssueCode(context.Background(), node.UserID)

		require.NoError(t, err)
		assert.Equal(t, "XYZ123", code)
		referrals.AssertNotCalled(t, "ExistsByCode", mock.Anything, mock.Anything)
	})

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		scope := newFakeScope()
		referrals := new(MockReferralRepository)
		scope.repos.referrals = referrals
		userID := uuid.New()

		referrals.On("FindByUserID", mock.Anything, userID).Return(nil, shared.NewNotFoundError("referral", userID))
		referrals.On("ExistsByCode", mock.Anything, mock.Anything).Return(true, nil)

		svc := newReferralTestService(scope, codeBytes('A', 'B', 'C'), WithSettings(Settings{ReferralCodeAttempts: 3}))
		_, err := svc.IssueCode(context.Background(), userID)

		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
		assert.Equal(t, 3, scope.calls)
	})

	t.Run("nil user", func(t *testing.T) {
		_, err := newReferralTestService(newFakeScope(), codeBytes('A')).IssueCode(context.Background(), uuid.Nil)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestReferralService_ApplyReferral(t *testing.T) {
	newNode := func(t *testing.T, code string) *crm.ReferralNode {
		node, err := crm.NewReferralNode(uuid.New())
		require.NoError(t, err)
		if code != "" {
			require.NoError(t, node.AssignCode(code))
		}
		node.ClearDomainEvents()
		return node
	}

	t.Run("links a new user under the referrer", func(t *testing.T) {
		scope := newFakeScope()
		referrals := new(MockReferralRepository)
		scope.repos.referrals = referrals
		metrics := &recordingMetrics{}

		referrer := newNode(t, "REF001")
		userID := uuid.New()
		referrals.On("LockForest", mock.Anything).Return(nil)
		referrals.On("FindByCode", mock.Anything, "REF001").Return(referrer, nil)
		referrals.On("FindParentID", mock.Anything, referrer.UserID).Return(nil, nil)
		referrals.On("FindByUserID", mock.Anything, userID).Return(nil, shared.NewNotFoundError("referral", userID))
		referrals.On("Create", mock.Anything, mock.Anything).Return(nil)

		svc := newReferralTestService(scope, codeBytes(), WithMetrics(metrics))
		resp, err := svc.ApplyReferral(context.Background(), ApplyReferralRequest{UserID: userID, Code: "ref001"})

		require.NoError(t, err)
		require.NotNil(t, resp.ReferredByID)
		assert.Equal(t, referrer.UserID, *resp.ReferredByID)
		assert.Equal(t, []string{crm.EventTypeReferralApplied}, scope.repos.sink.types())
		assert.Equal(t, 1, metrics.referrals)
	})

	t.Run("descendant as referrer is a cycle", func(t *testing.T) {
		scope := newFakeScope()
		referrals := new(MockReferralRepository)
		scope.repos.referrals = referrals

		// user -> child: child's code applied to user would close the loop
		user := newNode(t, "")
		child := newNode(t, "CHILD1")
		referrals.On("LockForest", mock.Anything).Return(nil)
		referrals.On("FindByCode", mock.Anything, "CHILD1").Return(child, nil)
		referrals.On("FindParentID", mock.Anything, child.UserID).Return(&user.UserID, nil)

		_, err := newReferralTestService(scope, codeBytes()).ApplyReferral(context.Background(),
			ApplyReferralRequest{UserID: user.UserID, Code: "CHILD1"})

		assert.ErrorIs(t, err, shared.ErrReferralCycle)
		referrals.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("unknown code", func(t *testing.T) {
		scope := newFakeScope()
		referrals := new(MockReferralRepository)
		scope.repos.referrals = referrals
		referrals.On("LockForest", mock.Anything).Return(nil)
		referrals.On("FindByCode", mock.Anything, "NOPE00").Return(nil, shared.NewNotFoundError("referral code", "NOPE00"))

		_, err := newReferralTestService(scope, codeBytes()).ApplyReferral(context.Background(),
			ApplyReferralRequest{UserID: uuid.New(), Code: "NOPE00"})

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("forest is locked before the chain is read", func(t *testing.T) {
		scope := newFakeScope()
		referrals := new(MockReferralRepository)
		scope.repos.referrals = referrals
		lockErr := errors.New("lock timeout")
		referrals.On("LockForest", mock.Anything).Return(lockErr)

		_, err := newReferralTestService(scope, codeBytes()).ApplyReferral(context.Background(),
			ApplyReferralRequest{UserID: uuid.New(), Code: "REF001"})

		assert.ErrorIs(t, err, lockErr)
		referrals.AssertNotCalled(t, "FindByCode", mock.Anything, mock.Anything)
		referrals.AssertNotCalled(t, "FindParentID", mock.Anything, mock.Anything)
	})

	t.Run("malformed code fails validation", func(t *testing.T) {
		_, err := newReferralTestService(newFakeScope(), codeBytes()).ApplyReferral(context.Background(),
			ApplyReferralRequest{UserID: uuid.New(), Code: "AB-12"})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}
