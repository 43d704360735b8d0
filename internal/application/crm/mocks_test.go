package crm

import (
	"context"
	"sync"
	"time"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockCustomerRecordRepository is a mock implementation of CustomerRecordRepository
type MockCustomerRecordRepository struct {
	mock.Mock
}

func (m *MockCustomerRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*crm.CustomerRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crm.CustomerRecord), args.Error(1)
}

func (m *MockCustomerRecordRepository) FindByCustomerID(ctx context.Context, customerID uuid.UUID) (*crm.CustomerRecord, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crm.CustomerRecord), args.Error(1)
}

func (m *MockCustomerRecordRepository) Create(ctx context.Context, record *crm.CustomerRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockCustomerRecordRepository) SaveWithLock(ctx context.Context, record *crm.CustomerRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockCustomerRecordRepository) AssignPrimaryAttribution(ctx context.Context, recordID, attributionID uuid.UUID) (bool, error) {
	args := m.Called(ctx, recordID, attributionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCustomerRecordRepository) AssignFacebookCampaign(ctx context.Context, recordID uuid.UUID, externalID string) (bool, error) {
	args := m.Called(ctx, recordID, externalID)
	return args.Bool(0), args.Error(1)
}

// MockCrmActionRepository is a mock implementation of CrmActionRepository
type MockCrmActionRepository struct {
	mock.Mock
}

func (m *MockCrmActionRepository) FindByID(ctx context.Context, id uuid.UUID) (*crm.CrmAction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crm.CrmAction), args.Error(1)
}

func (m *MockCrmActionRepository) Create(ctx context.Context, action *crm.CrmAction) error {
	return m.Called(ctx, action).Error(0)
}

func (m *MockCrmActionRepository) SaveWithLock(ctx context.Context, action *crm.CrmAction) error {
	return m.Called(ctx, action).Error(0)
}

func (m *MockCrmActionRepository) FindOpenByCustomer(ctx context.Context, customerID uuid.UUID) ([]crm.CrmAction, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).([]crm.CrmAction), args.Error(1)
}

func (m *MockCrmActionRepository) FindOpenBySalesperson(ctx context.Context, salespersonID uuid.UUID) ([]crm.CrmAction, error) {
	args := m.Called(ctx, salespersonID)
	return args.Get(0).([]crm.CrmAction), args.Error(1)
}

func (m *MockCrmActionRepository) FindLatestByCustomer(ctx context.Context, customerID uuid.UUID) (*crm.CrmAction, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crm.CrmAction), args.Error(1)
}

func (m *MockCrmActionRepository) FindOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]crm.CrmAction, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]crm.CrmAction), args.Error(1)
}

func (m *MockCrmActionRepository) MarkOverdue(ctx context.Context, action *crm.CrmAction) (bool, error) {
	args := m.Called(ctx, action)
	return args.Bool(0), args.Error(1)
}

// MockReferralRepository is a mock implementation of ReferralRepository
type MockReferralRepository struct {
	mock.Mock
}

func (m *MockReferralRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*crm.ReferralNode, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crm.ReferralNode), args.Error(1)
}

func (m *MockReferralRepository) FindByCode(ctx context.Context, code string) (*crm.ReferralNode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crm.ReferralNode), args.Error(1)
}

func (m *MockReferralRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockReferralRepository) FindParentID(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uuid.UUID), args.Error(1)
}

func (m *MockReferralRepository) LockForest(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockReferralRepository) Create(ctx context.Context, node *crm.ReferralNode) error {
	return m.Called(ctx, node).Error(0)
}

func (m *MockReferralRepository) SaveWithLock(ctx context.Context, node *crm.ReferralNode) error {
	return m.Called(ctx, node).Error(0)
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return nil
}

// recordingSink collects the events appended to the outbox
type recordingSink struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (s *recordingSink) Append(_ context.Context, events ...shared.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType()
	}
	return out
}

// fakeRepos hands out whichever mocks a test configured. A nil repository
// panics when used, which flags an unexpected call.
type fakeRepos struct {
	records   crm.CustomerRecordRepository
	actions   crm.CrmActionRepository
	referrals crm.ReferralRepository
	sink      *recordingSink
}

func (r *fakeRepos) CustomerRecords() crm.CustomerRecordRepository { return r.records }
func (r *fakeRepos) Campaigns() crm.AdCampaignRepository { return nil }
func (r *fakeRepos) Attributions() crm.AdAttributionRepository { return nil }
func (r *fakeRepos) Actions() crm.CrmActionRepository { return r.actions }
func (r *fakeRepos) Communications() crm.CommunicationRepository { return nil }
func (r *fakeRepos) Referrals() crm.ReferralRepository { return r.referrals }
func (r *fakeRepos) Outbox() EventSink { return r.sink }

// fakeScope runs fn directly and counts how many transactions were opened
type fakeScope struct {
	repos *fakeRepos
	calls int
}

func newFakeScope() *fakeScope {
	return &fakeScope{repos: &fakeRepos{sink: &recordingSink{}}}
}

func (s *fakeScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	s.calls++
	return fn(s.repos)
}

// recordingMetrics captures the counters the services emit
type recordingMetrics struct {
	NoopMetrics
	mu          sync.Mutex
	retried     []string
	swept       []int
	created     []string
	transitions [][2]string
	statuses    [][2]string
	referrals   int
}

func (m *recordingMetrics) ConflictRetried(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retried = append(m.retried, operation)
}

func (m *recordingMetrics) RecordOverdueSwept(_ context.Context, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swept = append(m.swept, count)
}

func (m *recordingMetrics) RecordActionCreated(_ context.Context, actionType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, actionType)
}

func (m *recordingMetrics) RecordActionTransition(_ context.Context, from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, [2]string{from, to})
}

func (m *recordingMetrics) RecordCustomerStatusChange(_ context.Context, from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, [2]string{from, to})
}

func (m *recordingMetrics) RecordReferralApplied(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.referrals++
}

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newPendingAction(t interface{ Fatalf(string, ...any) }, customerID uuid.UUID, due *time.Time) *crm.CrmAction {
	action, err := crm.NewCrmAction(crm.NewActionParams{
		CustomerID:    customerID,
		SalespersonID: uuid.New(),
		ActionType:    crm.ActionTypePhoneCall,
		Title:         "Call",
	}, time.Time{})
	if err != nil {
		t.Fatalf("new action: %v", err)
	}
	action.DueDate = due
	action.ClearDomainEvents()
	return action
}
