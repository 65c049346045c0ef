package commands

import (
	"context"
	"time"

	calendar "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	coursework "github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	profile "github.com/felixgeelhaar/studyflow/internal/profile/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// mockProposalRepo is a mock implementation of domain.ProposalRepository.
type mockProposalRepo struct {
	mock.Mock
}

func (m *mockProposalRepo) Save(ctx context.Context, proposal *domain.Proposal) error {
	args := m.Called(ctx, proposal)
	return args.Error(0)
}

func (m *mockProposalRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Proposal), args.Error(1)
}

func (m *mockProposalRepo) ListProposedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Proposal, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Proposal), args.Error(1)
}

func (m *mockProposalRepo) CountByStatusSince(ctx context.Context, since time.Time) (map[domain.Status]int, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.Status]int), args.Error(1)
}

func (m *mockProposalRepo) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Error(1)
}

func (m *mockProposalRepo) CountUndoneSince(ctx context.Context, since time.Time) (int, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Error(1)
}

// mockSnapshotRepo is a mock implementation of domain.SnapshotRepository.
type mockSnapshotRepo struct {
	mock.Mock
}

func (m *mockSnapshotRepo) Save(ctx context.Context, snapshot *domain.RollbackSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *mockSnapshotRepo) FindByProposal(ctx context.Context, proposalID uuid.UUID) (*domain.RollbackSnapshot, error) {
	args := m.Called(ctx, proposalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RollbackSnapshot), args.Error(1)
}

// mockChurnRepo is a mock implementation of domain.ChurnRepository.
type mockChurnRepo struct {
	mock.Mock
}

func (m *mockChurnRepo) GetLedger(ctx context.Context, ownerID uuid.UUID, day string) (domain.ChurnLedgerEntry, error) {
	args := m.Called(ctx, ownerID, day)
	return args.Get(0).(domain.ChurnLedgerEntry), args.Error(1)
}

func (m *mockChurnRepo) IncrementLedger(ctx context.Context, ownerID uuid.UUID, day string, minutes, moves, capSnapshot int) error {
	args := m.Called(ctx, ownerID, day, minutes, moves, capSnapshot)
	return args.Error(0)
}

func (m *mockChurnRepo) GetSettings(ctx context.Context, ownerID uuid.UUID) (*domain.ChurnSettings, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChurnSettings), args.Error(1)
}

// mockAttemptRepo is a mock implementation of domain.AttemptRepository.
type mockAttemptRepo struct {
	mock.Mock
}

func (m *mockAttemptRepo) FindByKey(ctx context.Context, idempotencyKey string) (domain.ApplyAttempt, error) {
	args := m.Called(ctx, idempotencyKey)
	return args.Get(0).(domain.ApplyAttempt), args.Error(1)
}

func (m *mockAttemptRepo) Create(ctx context.Context, attempt domain.ApplyAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *mockAttemptRepo) CountForProposal(ctx context.Context, proposalID uuid.UUID, operation domain.AttemptOperation) (int, error) {
	args := m.Called(ctx, proposalID, operation)
	return args.Int(0), args.Error(1)
}

// mockBlockRepo is a mock implementation of calendar.BlockRepository.
type mockBlockRepo struct {
	mock.Mock
}

func (m *mockBlockRepo) Create(ctx context.Context, block *calendar.Block) error {
	args := m.Called(ctx, block)
	return args.Error(0)
}

func (m *mockBlockRepo) FindByID(ctx context.Context, id uuid.UUID) (*calendar.Block, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*calendar.Block), args.Error(1)
}

func (m *mockBlockRepo) ListByOwnerInRange(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*calendar.Block, error) {
	args := m.Called(ctx, ownerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*calendar.Block), args.Error(1)
}

func (m *mockBlockRepo) UpdateTimes(ctx context.Context, id uuid.UUID, newStart, newEnd time.Time, expectedVersion int) error {
	args := m.Called(ctx, id, newStart, newEnd, expectedVersion)
	return args.Error(0)
}

func (m *mockBlockRepo) Delete(ctx context.Context, id uuid.UUID, expectedVersion int) error {
	args := m.Called(ctx, id, expectedVersion)
	return args.Error(0)
}

func (m *mockBlockRepo) Restore(ctx context.Context, id uuid.UUID, start, end time.Time, metadata calendar.Metadata, expectedVersion int) error {
	args := m.Called(ctx, id, start, end, metadata, expectedVersion)
	return args.Error(0)
}

// mockWorkItemRepo is a mock implementation of coursework.WorkItemRepository.
type mockWorkItemRepo struct {
	mock.Mock
}

func (m *mockWorkItemRepo) FindByID(ctx context.Context, id uuid.UUID) (*coursework.WorkItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coursework.WorkItem), args.Error(1)
}

func (m *mockWorkItemRepo) ListUpcoming(ctx context.Context, ownerID uuid.UUID, horizon time.Time) ([]*coursework.WorkItem, error) {
	args := m.Called(ctx, ownerID, horizon)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coursework.WorkItem), args.Error(1)
}

func (m *mockWorkItemRepo) ListOwnersWithUpcoming(ctx context.Context, horizon time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, horizon)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// mockCourseRepo is a mock implementation of coursework.CourseRepository.
type mockCourseRepo struct {
	mock.Mock
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id uuid.UUID) (*coursework.Course, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coursework.Course), args.Error(1)
}

// mockProfileRepo is a mock implementation of profile.ProfileRepository.
type mockProfileRepo struct {
	mock.Mock
}

func (m *mockProfileRepo) FindByUser(ctx context.Context, userID uuid.UUID) (*profile.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*profile.Profile), args.Error(1)
}

// mockEnergyRepo is a mock implementation of profile.EnergyStateRepository.
type mockEnergyRepo struct {
	mock.Mock
}

func (m *mockEnergyRepo) Get(ctx context.Context, userID uuid.UUID) (profile.EnergyState, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(profile.EnergyState), args.Error(1)
}

func (m *mockEnergyRepo) Set(ctx context.Context, userID uuid.UUID, level profile.EnergyLevel, reportedAt time.Time) error {
	args := m.Called(ctx, userID, level, reportedAt)
	return args.Error(0)
}

// mockUnitOfWork is a mock implementation of UnitOfWork.
type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// passthroughUnitOfWork runs the transaction body on the caller's context.
type passthroughUnitOfWork struct{}

func (passthroughUnitOfWork) Begin(ctx context.Context) (context.Context, error) { return ctx, nil }
func (passthroughUnitOfWork) Commit(ctx context.Context) error                   { return nil }
func (passthroughUnitOfWork) Rollback(ctx context.Context) error                 { return nil }
