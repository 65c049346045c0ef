package queries

import (
	"context"
	"time"

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
